package models

import "time"

// NotificationKind classifies a notification event.
type NotificationKind string

const (
	NotificationReply            NotificationKind = "reply"
	NotificationLike             NotificationKind = "like"
	NotificationMention          NotificationKind = "mention"
	NotificationModerationAction NotificationKind = "moderation_action"
	NotificationSystem           NotificationKind = "system"
)

// SubjectType names the kind of entity a notification refers to.
type SubjectType string

const (
	SubjectThread  SubjectType = "thread"
	SubjectPost    SubjectType = "post"
	SubjectProfile SubjectType = "profile"
)

// Notification is a stored notification event for one recipient.
// At most one unread row exists per dedupe key.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;index:idx_notifications_recipient_created,priority:1" json:"recipient_id"`
	Kind        NotificationKind `gorm:"size:32;not null" json:"kind"`
	SubjectType SubjectType      `gorm:"size:16;not null" json:"subject_type"`
	SubjectID   uint             `gorm:"not null" json:"subject_id"`
	ActorID     *uint            `json:"actor_id,omitempty"`
	Message     string           `gorm:"size:500" json:"message"`
	IsRead      bool             `gorm:"not null;default:false" json:"is_read"`
	DedupeKey   string           `gorm:"size:64;not null;uniqueIndex:idx_notifications_unread_dedupe,where:is_read = false" json:"-"`
	CreatedAt   time.Time        `gorm:"not null;index:idx_notifications_recipient_created,priority:2" json:"created_at"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
}

// NotificationOutbox holds events written in the same transaction as the
// mutation that produced them, waiting to be emitted.
type NotificationOutbox struct {
	ID          uint             `gorm:"primaryKey"`
	RecipientID uint             `gorm:"not null"`
	Kind        NotificationKind `gorm:"size:32;not null"`
	SubjectType SubjectType      `gorm:"size:16;not null"`
	SubjectID   uint             `gorm:"not null"`
	ActorID     *uint
	Message     string    `gorm:"size:500"`
	OccurredAt  time.Time `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index"`
}

// TableName keeps the outbox table name singular.
func (NotificationOutbox) TableName() string { return "notification_outbox" }
