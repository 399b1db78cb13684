package repository

import (
	"context"

	"forum/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CategoryRepository defines data operations for categories.
type CategoryRepository interface {
	WithTx(tx *gorm.DB) CategoryRepository
	List(ctx context.Context) ([]models.Category, error)
	GetByID(ctx context.Context, id uint) (*models.Category, error)
	GetBySlug(ctx context.Context, slug string) (*models.Category, error)
	Upsert(ctx context.Context, category *models.Category) error
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new category repository.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) WithTx(tx *gorm.DB) CategoryRepository {
	return &categoryRepository{db: tx}
}

// List returns active categories in display order with their visible
// thread counts.
func (r *categoryRepository) List(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).
		Model(&models.Category{}).
		Select("categories.*, (SELECT COUNT(*) FROM threads WHERE threads.category_id = categories.id AND threads.is_deleted = ?) AS thread_count", false).
		Where("categories.is_active = ?", true).
		Order("categories.sort_order ASC, categories.id ASC").
		Find(&categories).Error
	return categories, err
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, notFound(err, "Category", id)
	}
	return &category, nil
}

func (r *categoryRepository) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&category).Error; err != nil {
		return nil, notFound(err, "Category", slug)
	}
	return &category, nil
}

// Upsert inserts the category or refreshes the existing row with the same slug.
func (r *categoryRepository) Upsert(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "sort_order", "is_active"}),
	}).Create(category).Error
}
