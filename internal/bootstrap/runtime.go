// Package bootstrap prepares the database and Redis for a process.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"forum/internal/cache"
	"forum/internal/config"
	"forum/internal/database"
	"forum/internal/middleware"
	"forum/internal/models"
	"forum/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	Migrate        bool
	SeedCategories bool
}

// InitRuntime connects to the database and Redis, then optionally migrates
// the schema and seeds the reference categories.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional; the client is nil when unreachable.
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := Prepare(ctx, cfg, db, opts); err != nil {
		return nil, nil, err
	}
	return db, r, nil
}

// Prepare runs the schema and data steps selected by opts on db.
func Prepare(ctx context.Context, cfg *config.Config, db *gorm.DB, opts Options) error {
	if opts.Migrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	if opts.SeedCategories {
		if err := seed.Categories(ctx, db); err != nil {
			return fmt.Errorf("failed to seed categories: %w", err)
		}
	}
	if err := ensureDevModerator(ctx, cfg, db); err != nil {
		return fmt.Errorf("failed to bootstrap development moderator: %w", err)
	}
	return nil
}

// ensureDevModerator gives the configured identity a moderator profile in
// development so the moderation surface can be exercised locally.
func ensureDevModerator(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapModerator {
		return nil
	}
	if cfg.DevModeratorID == 0 {
		return errors.New("DEV_MODERATOR_ID must be set when DEV_BOOTSTRAP_MODERATOR is enabled")
	}
	username := strings.TrimSpace(cfg.DevModeratorUsername)
	if username == "" {
		username = "forum_root"
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Profile
		findErr := tx.First(&existing, cfg.DevModeratorID).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			return tx.Create(&models.Profile{
				ID:          cfg.DevModeratorID,
				Username:    username,
				DisplayName: username,
				Role:        models.RoleModerator,
				BanState:    models.BanStateActive,
				JoinedAt:    tx.NowFunc(),
			}).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&models.Profile{}).Where("id = ?", cfg.DevModeratorID).
				Updates(map[string]any{"role": models.RoleModerator, "ban_state": models.BanStateActive}).Error
		}
	})
	if err != nil {
		return err
	}

	cache.InvalidateProfiles(ctx, cfg.DevModeratorID)
	middleware.Logger.InfoContext(ctx, "development moderator ensured",
		slog.Uint64("profile_id", uint64(cfg.DevModeratorID)),
		slog.String("username", username),
	)
	return nil
}
