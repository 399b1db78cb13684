package repository

import (
	"context"
	"time"

	"forum/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeRepository defines data operations for likes. Rows are only ever
// inserted or deleted.
type LikeRepository interface {
	WithTx(tx *gorm.DB) LikeRepository
	Insert(ctx context.Context, userID, postID uint, at time.Time) (bool, error)
	Delete(ctx context.Context, userID, postID uint) (bool, error)
	Exists(ctx context.Context, userID, postID uint) (bool, error)
	CountByPost(ctx context.Context, postID uint) (int64, error)
	LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new like repository.
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) WithTx(tx *gorm.DB) LikeRepository {
	return &likeRepository{db: tx}
}

// Insert adds the like unless it already exists. It reports whether a row
// was written.
func (r *likeRepository) Insert(ctx context.Context, userID, postID uint, at time.Time) (bool, error) {
	like := models.Like{UserID: userID, PostID: postID, CreatedAt: at}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
	return res.RowsAffected > 0, res.Error
}

// Delete removes the like if present. It reports whether a row was removed.
func (r *likeRepository) Delete(ctx context.Context, userID, postID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&models.Like{})
	return res.RowsAffected > 0, res.Error
}

func (r *likeRepository) Exists(ctx context.Context, userID, postID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&n).Error
	return n > 0, err
}

func (r *likeRepository) CountByPost(ctx context.Context, postID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

func (r *likeRepository) LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) ([]uint, error) {
	if userID == 0 || len(postIDs) == 0 {
		return []uint{}, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error
	return ids, err
}
