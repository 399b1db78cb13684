// Package repository provides data access for the forum store. Every
// repository can be rebound to a transaction with WithTx.
package repository

import (
	"strings"

	"forum/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockStrength selects the row lock taken by a locking read.
type LockStrength string

const (
	ForShare  LockStrength = "SHARE"
	ForUpdate LockStrength = "UPDATE"
)

func locking(strength LockStrength) clause.Locking {
	return clause.Locking{Strength: string(strength)}
}

func visibleThreads(db *gorm.DB) *gorm.DB {
	return db.Where("threads.is_deleted = ?", false)
}

// visiblePosts excludes deleted posts and posts whose thread is deleted.
func visiblePosts(db *gorm.DB) *gorm.DB {
	return db.Joins("JOIN threads ON threads.id = posts.thread_id").
		Where("posts.is_deleted = ? AND threads.is_deleted = ?", false, false)
}

func activeMembers(db *gorm.DB) *gorm.DB {
	return db.Where("profiles.ban_state = ?", models.BanStateActive)
}

func paginate(limit, offset int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}
		return db.Limit(limit).Offset(offset)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern matching q
// anywhere. Use it with "LOWER(col) LIKE ? ESCAPE '\'".
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(q))) + "%"
}
