package repository

import (
	"context"

	"forum/internal/models"

	"gorm.io/gorm"
)

// ModerationLogRepository defines data operations for the moderation audit log.
type ModerationLogRepository interface {
	WithTx(tx *gorm.DB) ModerationLogRepository
	Append(ctx context.Context, entry *models.ModerationLog) error
	List(ctx context.Context, limit, offset int) ([]*models.ModerationLog, error)
}

type moderationLogRepository struct {
	db *gorm.DB
}

// NewModerationLogRepository creates a new moderation log repository.
func NewModerationLogRepository(db *gorm.DB) ModerationLogRepository {
	return &moderationLogRepository{db: db}
}

func (r *moderationLogRepository) WithTx(tx *gorm.DB) ModerationLogRepository {
	return &moderationLogRepository{db: tx}
}

func (r *moderationLogRepository) Append(ctx context.Context, entry *models.ModerationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *moderationLogRepository) List(ctx context.Context, limit, offset int) ([]*models.ModerationLog, error) {
	var entries []*models.ModerationLog
	err := r.db.WithContext(ctx).
		Scopes(paginate(limit, offset)).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}
