package registry

import (
	"context"
	"errors"
	"fmt"

	"kinads-controlplane/pkg/errutil"

	"gorm.io/gorm"
)

// ErrClientNotFound is returned when no callback configuration exists.
var ErrClientNotFound = errors.New("client not found")

type Repository interface {
	FindByDataIdx(ctx context.Context, dataIdx string) (*App, error)
	ListPayoutApps(ctx context.Context) ([]App, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByDataIdx(ctx context.Context, dataIdx string) (*App, error) {
	var app App
	err := r.db.WithContext(ctx).
		Where("data_idx = ?", dataIdx).
		Take(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound(fmt.Sprintf("no app for %s", dataIdx), ErrClientNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find app by data_idx: %w", err)
	}
	return &app, nil
}

// ListPayoutApps returns every application row that has a payout wallet.
func (r *repository) ListPayoutApps(ctx context.Context) ([]App, error) {
	var apps []App
	err := r.db.WithContext(ctx).
		Where("data_idx LIKE ? AND wallet <> ''", AppPrefix+"%").
		Order("user_id").
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("list payout apps: %w", err)
	}
	return apps, nil
}
