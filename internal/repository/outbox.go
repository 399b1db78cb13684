package repository

import (
	"context"

	"forum/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRepository defines data operations for the notification outbox.
type OutboxRepository interface {
	WithTx(tx *gorm.DB) OutboxRepository
	Enqueue(ctx context.Context, rows []*models.NotificationOutbox) error
	Claim(ctx context.Context, limit int) ([]*models.NotificationOutbox, error)
	Delete(ctx context.Context, ids []uint) error
	Count(ctx context.Context) (int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new outbox repository.
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) WithTx(tx *gorm.DB) OutboxRepository {
	return &outboxRepository{db: tx}
}

func (r *outboxRepository) Enqueue(ctx context.Context, rows []*models.NotificationOutbox) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// Claim locks up to limit of the oldest rows, skipping rows another drainer
// already holds.
func (r *outboxRepository) Claim(ctx context.Context, limit int) ([]*models.NotificationOutbox, error) {
	var rows []*models.NotificationOutbox
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: string(ForUpdate), Options: "SKIP LOCKED"}).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *outboxRepository) Delete(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.NotificationOutbox{}).Error
}

func (r *outboxRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.NotificationOutbox{}).Count(&n).Error
	return n, err
}
