package repository

import (
	"context"
	"time"

	"forum/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines data operations for posts.
type PostRepository interface {
	WithTx(tx *gorm.DB) PostRepository
	Create(ctx context.Context, post *models.Post) error
	GetVisible(ctx context.Context, id uint) (*models.Post, error)
	Lock(ctx context.Context, id uint) (*models.Post, error)
	LockVisible(ctx context.Context, id uint) (*models.Post, error)
	MarkDeleted(ctx context.Context, id uint, at time.Time) error
	AdjustLikeCount(ctx context.Context, id uint, delta int64) error
	ListByThread(ctx context.Context, threadID uint, limit, offset int) ([]*models.Post, error)
	ListByAuthor(ctx context.Context, authorID uint, limit int) ([]*models.Post, error)
	ListLikedBy(ctx context.Context, userID uint, limit int) ([]*models.Post, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.Post, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Post, error)
	CountVisible(ctx context.Context) (int64, error)
	CountLiveInThread(ctx context.Context, threadID uint) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) WithTx(tx *gorm.DB) PostRepository {
	return &postRepository{db: tx}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// GetVisible returns the post unless it or its thread is deleted.
func (r *postRepository) GetVisible(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Scopes(visiblePosts).
		Where("posts.id = ?", id).
		First(&post).Error
	if err != nil {
		return nil, notFound(err, "Post", id)
	}
	return &post, nil
}

// Lock reads the post FOR UPDATE, including deleted posts.
func (r *postRepository) Lock(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Clauses(locking(ForUpdate)).First(&post, id).Error; err != nil {
		return nil, notFound(err, "Post", id)
	}
	return &post, nil
}

// LockVisible reads a visible post FOR UPDATE. Only the post row is locked;
// the joined thread is read without a lock.
func (r *postRepository) LockVisible(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Scopes(visiblePosts).
		Clauses(clause.Locking{Strength: string(ForUpdate), Table: clause.Table{Name: "posts"}}).
		Where("posts.id = ?", id).
		First(&post).Error
	if err != nil {
		return nil, notFound(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) MarkDeleted(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_deleted": true, "removed_at": at}).Error
}

func (r *postRepository) AdjustLikeCount(ctx context.Context, id uint, delta int64) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
		UpdateColumn("like_count", gorm.Expr("like_count + ?", delta)).Error
}

// ListByThread returns the visible posts of a thread oldest first.
func (r *postRepository) ListByThread(ctx context.Context, threadID uint, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Scopes(visiblePosts, paginate(limit, offset)).
		Where("posts.thread_id = ?", threadID).
		Order("posts.created_at ASC, posts.id ASC").
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID uint, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Scopes(visiblePosts, paginate(limit, 0)).
		Where("posts.author_id = ?", authorID).
		Order("posts.created_at DESC, posts.id DESC").
		Find(&posts).Error
	return posts, err
}

// ListLikedBy returns the visible posts userID likes, most recently liked
// first.
func (r *postRepository) ListLikedBy(ctx context.Context, userID uint, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Scopes(visiblePosts, paginate(limit, 0)).
		Joins("JOIN likes ON likes.post_id = posts.id").
		Where("likes.user_id = ?", userID).
		Order("likes.created_at DESC, posts.id DESC").
		Find(&posts).Error
	return posts, err
}

// ListRecent returns visible posts across all threads, newest first.
func (r *postRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Scopes(visiblePosts, paginate(limit, offset)).
		Order("posts.created_at DESC, posts.id DESC").
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) Search(ctx context.Context, query string, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Scopes(visiblePosts, paginate(limit, 0)).
		Where(`LOWER(posts.content) LIKE ? ESCAPE '\'`, containsPattern(query)).
		Order("posts.created_at DESC, posts.id DESC").
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) CountVisible(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(visiblePosts).Count(&n).Error
	return n, err
}

// CountLiveInThread counts the thread's non-deleted posts regardless of the
// thread's own state.
func (r *postRepository) CountLiveInThread(ctx context.Context, threadID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("thread_id = ? AND is_deleted = ?", threadID, false).
		Count(&n).Error
	return n, err
}
