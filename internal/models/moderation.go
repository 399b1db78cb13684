package models

import "time"

// ModerationLog is the audit row written alongside every effective
// moderation transition.
type ModerationLog struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	ActorID    uint        `gorm:"not null;index" json:"actor_id"`
	Action     string      `gorm:"size:32;not null" json:"action"`
	TargetType SubjectType `gorm:"size:16;not null" json:"target_type"`
	TargetID   uint        `gorm:"not null" json:"target_id"`
	CreatedAt  time.Time   `gorm:"index" json:"created_at"`
}

// ModerationStats summarizes forum state for the moderator dashboard.
type ModerationStats struct {
	Members        int64 `json:"members"`
	BannedMembers  int64 `json:"banned_members"`
	Moderators     int64 `json:"moderators"`
	VisibleThreads int64 `json:"visible_threads"`
	VisiblePosts   int64 `json:"visible_posts"`
}

// OperationReceipt records that a mutating transaction committed, keyed by
// the per-call idempotency token.
type OperationReceipt struct {
	Token     string    `gorm:"primaryKey;size:36"`
	Operation string    `gorm:"size:64;not null"`
	Result    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}
