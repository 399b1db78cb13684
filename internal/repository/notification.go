package repository

import (
	"context"
	"time"

	"forum/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository defines data operations for stored notifications.
// Every read and mutation is scoped to a recipient.
type NotificationRepository interface {
	WithTx(tx *gorm.DB) NotificationRepository
	Insert(ctx context.Context, n *models.Notification) (bool, error)
	List(ctx context.Context, recipientID uint, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, recipientID uint) (int64, error)
	MarkRead(ctx context.Context, recipientID, id uint, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, recipientID uint, at time.Time) (int64, error)
	Delete(ctx context.Context, recipientID, id uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) WithTx(tx *gorm.DB) NotificationRepository {
	return &notificationRepository{db: tx}
}

// Insert stores n unless an unread notification with the same dedupe key
// exists. It reports whether a row was written.
func (r *notificationRepository) Insert(ctx context.Context, n *models.Notification) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(n)
	return res.RowsAffected > 0, res.Error
}

// List returns notifications newest first.
func (r *notificationRepository) List(ctx context.Context, recipientID uint, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	var notifications []*models.Notification
	q := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	err := q.Scopes(paginate(limit, offset)).
		Order("created_at DESC, id DESC").
		Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&n).Error
	return n, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, id uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) Delete(ctx context.Context, recipientID, id uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
