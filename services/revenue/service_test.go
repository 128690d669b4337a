package revenue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"kinads-controlplane/services/registry"
	"kinads-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var day = time.Date(2020, 4, 11, 0, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) (registry.Repository, Repository) {
	t.Helper()
	db := testutil.NewTestDB(t, append(registry.Models(), Models()...)...)
	testutil.Seed(t, db,
		&registry.App{UserID: "u1", DataIdx: "username#alice", AppID: "app1", Wallet: "GALICE"},
		&registry.App{UserID: "u2", DataIdx: "username#bob", AppID: "app2", Wallet: "GBOB"},
		&registry.App{UserID: "u3", DataIdx: "username#carol", AppID: "app3"},
		&DailyRevenueReport{UserID: "u1", DateMediationID: ReportKey(day, "ironsource", "app1"), Revenue: decimal.NewFromInt(10)},
		&DailyRevenueReport{UserID: "u1", DateMediationID: ReportKey(day, "admob", "app1"), Revenue: decimal.NewFromInt(5)},
		&DailyRevenueReport{UserID: "u1", DateMediationID: ReportKey(day.AddDate(0, 0, 1), "ironsource", "app1"), Revenue: decimal.NewFromInt(100)},
		&DailyRevenueReport{UserID: "u3", DateMediationID: ReportKey(day, "ironsource", "app3"), Revenue: decimal.NewFromInt(7)},
	)
	return registry.NewRepository(db), NewRepository(db)
}

func TestReportKey(t *testing.T) {
	require.Equal(t, "20200411#IRONSOURCE#app1", ReportKey(day, "ironsource", "app1"))
}

func TestAggregate(t *testing.T) {
	apps, reports := seedStore(t)
	agg := NewAggregator(apps, reports, decimal.NewFromInt(5), 4)

	got, err := agg.Aggregate(context.Background(), "20200411")
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "u1", got[0].UserID)
	require.Equal(t, "app1", got[0].AppID)
	require.Equal(t, "GALICE", got[0].Wallet)
	require.True(t, decimal.RequireFromString("14.25").Equal(got[0].Revenue), "got %s", got[0].Revenue)

	require.Equal(t, "u2", got[1].UserID)
	require.True(t, got[1].Revenue.IsZero())

	require.True(t, decimal.RequireFromString("14.25").Equal(Total(got)))
}

func TestAggregateIsDeterministic(t *testing.T) {
	apps, reports := seedStore(t)
	agg := NewAggregator(apps, reports, decimal.NewFromInt(5), 2)

	first, err := agg.Aggregate(context.Background(), "20200411")
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), "20200411")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

type failingReports struct{ err error }

func (f failingReports) ReportsForUserAndDate(context.Context, string, string) ([]DailyRevenueReport, error) {
	return nil, f.err
}

func (f failingReports) SaveReport(context.Context, *DailyRevenueReport, ...string) error {
	return f.err
}

func TestAggregateStoreErrorIsFatal(t *testing.T) {
	apps, _ := seedStore(t)
	boom := errors.New("db down")

	_, err := NewAggregator(apps, failingReports{err: boom}, decimal.Zero, 2).Aggregate(context.Background(), "20200411")
	require.ErrorIs(t, err, boom)
}

func TestSaveReportMerges(t *testing.T) {
	_, reports := seedStore(t)
	ctx := context.Background()
	key := ReportKey(day, "adgem", "app2")

	require.NoError(t, reports.SaveReport(ctx, &DailyRevenueReport{
		UserID:          "u2",
		DateMediationID: key,
		Revenue:         decimal.NewFromInt(1),
		Impressions:     10,
		Metrics:         datatypes.JSON(`{"ecpm":1.5}`),
	}))

	require.NoError(t, reports.SaveReport(ctx, &DailyRevenueReport{
		UserID:          "u2",
		DateMediationID: key,
		Revenue:         decimal.NewFromInt(3),
	}, "revenue"))

	got, err := reports.ReportsForUserAndDate(ctx, "u2", "20200411")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, decimal.NewFromInt(3).Equal(got[0].Revenue))
	require.Equal(t, int64(10), got[0].Impressions)
	require.JSONEq(t, `{"ecpm":1.5}`, string(got[0].Metrics))
}
