// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"forum/internal/config"
	"forum/internal/database"
	"forum/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite database in a temporary directory. The
// connection is closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := &config.Config{
		DBDriver:     "sqlite",
		DBSQLitePath: filepath.Join(t.TempDir(), "forum.db"),
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// CreateProfile inserts an active member with the given id.
func CreateProfile(t testing.TB, db *gorm.DB, id uint, username string) *models.Profile {
	t.Helper()
	profile := &models.Profile{
		ID:       id,
		Username: username,
		Role:     models.RoleMember,
		BanState: models.BanStateActive,
		JoinedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

// CreateCategory inserts an active category.
func CreateCategory(t testing.TB, db *gorm.DB, slug string) *models.Category {
	t.Helper()
	category := &models.Category{Slug: slug, Name: slug, IsActive: true}
	require.NoError(t, db.Create(category).Error)
	return category
}

// CreateThread inserts a visible thread in categoryID by authorID.
func CreateThread(t testing.TB, db *gorm.DB, categoryID, authorID uint, title string) *models.Thread {
	t.Helper()
	now := time.Now().UTC()
	thread := &models.Thread{
		CategoryID:  categoryID,
		AuthorID:    authorID,
		Title:       title,
		Content:     "body of " + title,
		LastReplyAt: now,
		CreatedAt:   now,
	}
	require.NoError(t, db.Create(thread).Error)
	return thread
}

// CreatePost inserts a visible post in threadID by authorID.
func CreatePost(t testing.TB, db *gorm.DB, threadID, authorID uint, content string) *models.Post {
	t.Helper()
	post := &models.Post{ThreadID: threadID, AuthorID: authorID, Content: content, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(post).Error)
	return post
}
