package revenue

import (
	"context"
	"fmt"

	"kinads-controlplane/services/registry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var hundred = decimal.NewFromInt(100)

// Aggregator sums each payout app's daily revenue net of the platform fee.
type Aggregator struct {
	apps        registry.Repository
	reports     Repository
	fee         decimal.Decimal
	parallelism int
}

func NewAggregator(apps registry.Repository, reports Repository, feePercent decimal.Decimal, parallelism int) *Aggregator {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Aggregator{apps: apps, reports: reports, fee: feePercent, parallelism: parallelism}
}

// Aggregate returns the revenue of every app with a wallet for date
// (YYYYMMDD), in the store's app order.
func (a *Aggregator) Aggregate(ctx context.Context, date string) ([]AppRevenue, error) {
	apps, err := a.apps.ListPayoutApps(ctx)
	if err != nil {
		return nil, err
	}

	keep := decimal.NewFromInt(1).Sub(a.fee.Div(hundred))
	out := make([]AppRevenue, len(apps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, app := range apps {
		g.Go(func() error {
			reports, err := a.reports.ReportsForUserAndDate(gctx, app.UserID, date)
			if err != nil {
				return err
			}

			sum := decimal.Zero
			for _, r := range reports {
				sum = sum.Add(r.Revenue)
			}

			out[i] = AppRevenue{
				UserID:  app.UserID,
				AppID:   app.AppID,
				Wallet:  app.Wallet,
				Revenue: sum.Mul(keep),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate revenue for %s: %w", date, err)
	}

	zap.L().Debug("revenue aggregated", zap.String("date", date), zap.Int("apps", len(out)))
	return out, nil
}

// Total sums the revenue of all apps.
func Total(apps []AppRevenue) decimal.Decimal {
	total := decimal.Zero
	for _, app := range apps {
		total = total.Add(app.Revenue)
	}
	return total
}
