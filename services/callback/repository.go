package callback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository interface {
	// Find returns nil without error when no event exists for the key.
	Find(ctx context.Context, userID, eventID string) (*RewardEvent, error)
	// CreateIfAbsent inserts the event unless the key exists and reports
	// whether this call created it.
	CreateIfAbsent(ctx context.Context, event *RewardEvent) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Find(ctx context.Context, userID, eventID string) (*RewardEvent, error) {
	var event RewardEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find reward event: %w", err)
	}
	return &event, nil
}

func (r *eventRepository) CreateIfAbsent(ctx context.Context, event *RewardEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, fmt.Errorf("create reward event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *eventRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires < ?", now.Unix()).
		Delete(&RewardEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired reward events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
