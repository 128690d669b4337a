package revenue

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	ReportsForUserAndDate(ctx context.Context, userID, date string) ([]DailyRevenueReport, error)
	SaveReport(ctx context.Context, report *DailyRevenueReport, columns ...string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ReportsForUserAndDate(ctx context.Context, userID, date string) ([]DailyRevenueReport, error) {
	var reports []DailyRevenueReport
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date_mediation_id LIKE ?", userID, date+"#%").
		Order("date_mediation_id").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("list reports for %s on %s: %w", userID, date, err)
	}
	return reports, nil
}

// SaveReport inserts the report or, when it exists, overwrites only the
// given columns. With no columns every metric column is overwritten.
func (r *repository) SaveReport(ctx context.Context, report *DailyRevenueReport, columns ...string) error {
	if len(columns) == 0 {
		columns = []string{"revenue", "impressions", "clicks", "metrics"}
	}
	columns = append(append([]string{}, columns...), "updated_at")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date_mediation_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(report).Error
	if err != nil {
		return fmt.Errorf("save report %s: %w", report.DateMediationID, err)
	}
	return nil
}
