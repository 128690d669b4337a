package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FindPayout(ctx context.Context, userID, date string) (*PayoutRecord, error)
	PaidUsers(ctx context.Context, date string) (map[string]bool, error)
	SavePayout(ctx context.Context, record *PayoutRecord) error

	Reserve(ctx context.Context) (decimal.Decimal, error)
	SetReserve(ctx context.Context, value decimal.Decimal) error

	CreateCycle(ctx context.Context, cycle *Cycle) error
	FinishCycle(ctx context.Context, cycle *Cycle) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindPayout returns nil without error when the app was not paid.
func (r *repository) FindPayout(ctx context.Context, userID, date string) (*PayoutRecord, error) {
	var record PayoutRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payout %s/%s: %w", userID, date, err)
	}
	return &record, nil
}

func (r *repository) PaidUsers(ctx context.Context, date string) (map[string]bool, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&PayoutRecord{}).
		Where("date = ?", date).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("list payouts for %s: %w", date, err)
	}

	paid := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		paid[id] = true
	}
	return paid, nil
}

func (r *repository) SavePayout(ctx context.Context, record *PayoutRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"tx_id", "kin", "revenue", "kin_price"}),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("save payout %s/%s: %w", record.UserID, record.Date, err)
	}
	return nil
}

// Reserve returns zero when the reserve was never written.
func (r *repository) Reserve(ctx context.Context) (decimal.Decimal, error) {
	var setting Setting
	err := r.db.WithContext(ctx).
		Where("name = ?", ReserveSetting).
		Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read reserve: %w", err)
	}
	return setting.Value, nil
}

func (r *repository) SetReserve(ctx context.Context, value decimal.Decimal) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&Setting{Name: ReserveSetting, Value: value}).Error
	if err != nil {
		return fmt.Errorf("write reserve: %w", err)
	}
	return nil
}

func (r *repository) CreateCycle(ctx context.Context, cycle *Cycle) error {
	return r.db.WithContext(ctx).Create(cycle).Error
}

func (r *repository) FinishCycle(ctx context.Context, cycle *Cycle) error {
	now := time.Now()
	cycle.CompletedAt = &now
	return r.db.WithContext(ctx).
		Model(&Cycle{}).
		Where("id = ?", cycle.ID).
		Updates(map[string]any{
			"status":       cycle.Status,
			"apps":         cycle.Apps,
			"paid":         cycle.Paid,
			"skipped":      cycle.Skipped,
			"failed":       cycle.Failed,
			"total":        cycle.Total,
			"kin_price":    cycle.KinPrice,
			"error":        cycle.Error,
			"completed_at": cycle.CompletedAt,
		}).Error
}
