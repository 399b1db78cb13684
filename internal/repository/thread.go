package repository

import (
	"context"
	"time"

	"forum/internal/models"

	"gorm.io/gorm"
)

// ThreadRepository defines data operations for threads.
type ThreadRepository interface {
	WithTx(tx *gorm.DB) ThreadRepository
	Create(ctx context.Context, thread *models.Thread) error
	GetVisible(ctx context.Context, id uint) (*models.Thread, error)
	Lock(ctx context.Context, id uint) (*models.Thread, error)
	SetState(ctx context.Context, id uint, state models.ThreadState, at time.Time) error
	RecordReply(ctx context.Context, id, authorID uint, at time.Time) error
	AdjustReplyCount(ctx context.Context, id uint, delta int64) error
	IncrementViewCount(ctx context.Context, id uint) (bool, error)
	ListByCategory(ctx context.Context, categoryID uint, limit, offset int) ([]*models.Thread, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.Thread, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.Thread, error)
	ListByAuthor(ctx context.Context, authorID uint, limit int) ([]*models.Thread, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Thread, error)
	CountVisible(ctx context.Context) (int64, error)
}

type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository creates a new thread repository.
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) WithTx(tx *gorm.DB) ThreadRepository {
	return &threadRepository{db: tx}
}

func (r *threadRepository) Create(ctx context.Context, thread *models.Thread) error {
	return r.db.WithContext(ctx).Create(thread).Error
}

// GetVisible returns the thread unless it is absent or deleted.
func (r *threadRepository) GetVisible(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	if err := r.db.WithContext(ctx).Scopes(visibleThreads).First(&thread, id).Error; err != nil {
		return nil, notFound(err, "Thread", id)
	}
	return &thread, nil
}

// Lock reads the thread FOR UPDATE, including deleted threads.
func (r *threadRepository) Lock(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	if err := r.db.WithContext(ctx).Clauses(locking(ForUpdate)).First(&thread, id).Error; err != nil {
		return nil, notFound(err, "Thread", id)
	}
	return &thread, nil
}

func (r *threadRepository) SetState(ctx context.Context, id uint, state models.ThreadState, at time.Time) error {
	updates := map[string]interface{}{
		"is_pinned":  state.Pinned,
		"is_locked":  state.Locked,
		"is_deleted": state.Deleted,
	}
	if state.Deleted {
		updates["removed_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Thread", id)
	}
	return nil
}

// RecordReply bumps reply_count and moves the last-reply marker to the new post.
func (r *threadRepository) RecordReply(ctx context.Context, id, authorID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"reply_count":   gorm.Expr("reply_count + ?", 1),
			"last_reply_at": at,
			"last_reply_by": authorID,
		}).Error
}

func (r *threadRepository) AdjustReplyCount(ctx context.Context, id uint, delta int64) error {
	return r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", id).
		UpdateColumn("reply_count", gorm.Expr("reply_count + ?", delta)).Error
}

// IncrementViewCount adds one view as a single atomic statement. It reports
// false when the thread is absent or deleted.
func (r *threadRepository) IncrementViewCount(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	return res.RowsAffected > 0, res.Error
}

// ListByCategory returns visible threads with pinned threads first, then by
// most recent reply.
func (r *threadRepository) ListByCategory(ctx context.Context, categoryID uint, limit, offset int) ([]*models.Thread, error) {
	var threads []*models.Thread
	err := r.db.WithContext(ctx).
		Scopes(visibleThreads, paginate(limit, offset)).
		Where("threads.category_id = ?", categoryID).
		Order("threads.is_pinned DESC, threads.last_reply_at DESC, threads.id DESC").
		Find(&threads).Error
	return threads, err
}

func (r *threadRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.Thread, error) {
	var threads []*models.Thread
	err := r.db.WithContext(ctx).
		Scopes(visibleThreads, paginate(limit, offset)).
		Order("threads.created_at DESC, threads.id DESC").
		Find(&threads).Error
	return threads, err
}

// ListActive returns visible threads across all categories by most recent
// reply. A thread without replies counts its creation as its last reply.
func (r *threadRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.Thread, error) {
	var threads []*models.Thread
	err := r.db.WithContext(ctx).
		Scopes(visibleThreads, paginate(limit, offset)).
		Order("threads.last_reply_at DESC, threads.id DESC").
		Find(&threads).Error
	return threads, err
}

func (r *threadRepository) ListByAuthor(ctx context.Context, authorID uint, limit int) ([]*models.Thread, error) {
	var threads []*models.Thread
	err := r.db.WithContext(ctx).
		Scopes(visibleThreads, paginate(limit, 0)).
		Where("threads.author_id = ?", authorID).
		Order("threads.created_at DESC, threads.id DESC").
		Find(&threads).Error
	return threads, err
}

func (r *threadRepository) Search(ctx context.Context, query string, limit int) ([]*models.Thread, error) {
	var threads []*models.Thread
	pattern := containsPattern(query)
	err := r.db.WithContext(ctx).
		Scopes(visibleThreads, paginate(limit, 0)).
		Where(`(LOWER(threads.title) LIKE ? ESCAPE '\' OR LOWER(threads.content) LIKE ? ESCAPE '\')`, pattern, pattern).
		Order("threads.last_reply_at DESC, threads.id DESC").
		Find(&threads).Error
	return threads, err
}

func (r *threadRepository) CountVisible(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Thread{}).Scopes(visibleThreads).Count(&n).Error
	return n, err
}
