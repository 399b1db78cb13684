package database

import (
	"path/filepath"
	"testing"
	"time"

	"forum/internal/config"
	"forum/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"forum.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate",
		SQLiteDSN("forum.db"))
	assert.Equal(t,
		"file:forum.db?cache=shared&_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate",
		SQLiteDSN("file:forum.db?cache=shared"))
}

func TestPostgresDSN_DefaultsSSLMode(t *testing.T) {
	dsn := PostgresDSN(&config.Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "forum"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=forum sslmode=disable", dsn)
}

func TestConnectSQLite_PinsSingleConnection(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", DBSQLitePath: filepath.Join(t.TempDir(), "forum.db")}

	db, err := Connect(cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestMigrate_EnforcesLikeKeyAndUnreadDedupe(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", DBSQLitePath: filepath.Join(t.TempDir(), "forum.db")}
	db, err := Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, model := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
	assert.True(t, db.Migrator().HasIndex(&models.Notification{}, "idx_notifications_unread_dedupe"))

	like := models.Like{UserID: 1, PostID: 1, CreatedAt: time.Now()}
	require.NoError(t, db.Create(&like).Error)
	assert.Error(t, db.Create(&models.Like{UserID: 1, PostID: 1, CreatedAt: time.Now()}).Error)

	unread := func() *models.Notification {
		return &models.Notification{RecipientID: 1, Kind: models.NotificationLike, SubjectType: models.SubjectPost,
			SubjectID: 1, DedupeKey: "k", CreatedAt: time.Now()}
	}
	first := unread()
	require.NoError(t, db.Create(first).Error)

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(unread())
	require.NoError(t, res.Error)
	assert.Equal(t, int64(0), res.RowsAffected)

	require.NoError(t, db.Model(first).Update("is_read", true).Error)
	res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(unread())
	require.NoError(t, res.Error)
	assert.Equal(t, int64(1), res.RowsAffected)
}
