package repository

import (
	"context"
	"errors"
	"time"

	"golang-predict-settler/internal/entity"

	"gorm.io/gorm"
)

// OutboxRepository defines operations on the transactional outbox.
type OutboxRepository interface {
	// Create inserts an event in the caller's transaction. Event ids are
	// deterministic per domain transition, so a replayed transition returns
	// inserted=false instead of a second row.
	Create(ctx context.Context, event *entity.OutboxEvent) (inserted bool, err error)
	FindUnpublished(ctx context.Context, limit int) ([]entity.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uint64, publishedAt time.Time) error
}

// NewOutboxRepository creates a new GORM-based outbox repository.
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Create(ctx context.Context, event *entity.OutboxEvent) (bool, error) {
	// Check-then-insert: callers run inside the transaction that also locks
	// the aggregate driving the transition, so the check is race-free there.
	// The unique index on event_id stays as a backstop.
	var existing entity.OutboxEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", event.EventID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *outboxRepository) FindUnpublished(ctx context.Context, limit int) ([]entity.OutboxEvent, error) {
	var events []entity.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published = false").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uint64, publishedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"published":    true,
			"published_at": publishedAt,
		}).Error
}
