package seed

import (
	"context"
	_ "embed"
	"fmt"

	"forum/internal/models"
	"forum/internal/repository"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed categories.yml
var categoriesYAML []byte

// BuiltInCategories parses the embedded reference categories.
func BuiltInCategories() ([]models.Category, error) {
	return parseCategories(categoriesYAML)
}

func parseCategories(raw []byte) ([]models.Category, error) {
	var categories []models.Category
	if err := yaml.Unmarshal(raw, &categories); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	seen := make(map[string]bool, len(categories))
	for i, c := range categories {
		if c.Slug == "" || c.Name == "" {
			return nil, fmt.Errorf("category %d: slug and name are required", i)
		}
		if seen[c.Slug] {
			return nil, fmt.Errorf("category %q listed twice", c.Slug)
		}
		seen[c.Slug] = true
	}
	return categories, nil
}

// Categories upserts the built-in categories by slug. Running it again
// updates names, descriptions and ordering in place.
func Categories(ctx context.Context, db *gorm.DB) error {
	categories, err := BuiltInCategories()
	if err != nil {
		return err
	}

	repo := repository.NewCategoryRepository(db)
	for i := range categories {
		if err := repo.Upsert(ctx, &categories[i]); err != nil {
			return fmt.Errorf("seed category %s: %w", categories[i].Slug, err)
		}
	}
	return nil
}
