package database

import (
	"fmt"

	"forum/internal/middleware"
	"forum/internal/models"

	"gorm.io/gorm"
)

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.Category{},
		&models.Thread{},
		&models.Post{},
		&models.Like{},
		&models.Notification{},
		&models.NotificationOutbox{},
		&models.ModerationLog{},
		&models.OperationReceipt{},
	}
}

// Migrate creates or updates every table, index and constraint the engine
// relies on, including the Like composite key and the partial unique index
// that keeps one unread notification per dedupe key.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	middleware.Logger.Info("Database migration completed")
	return nil
}
