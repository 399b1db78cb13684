package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrThreadDeleted is returned when a transition other than delete targets a deleted thread.
var ErrThreadDeleted = errors.New("thread is deleted")

// ThreadAction is a moderation transition over a thread.
type ThreadAction string

const (
	ThreadPin    ThreadAction = "pin"
	ThreadUnpin  ThreadAction = "unpin"
	ThreadLock   ThreadAction = "lock"
	ThreadUnlock ThreadAction = "unlock"
	ThreadDelete ThreadAction = "delete"
)

// Category is static reference data grouping threads.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Slug        string    `gorm:"size:64;uniqueIndex;not null" json:"slug" yaml:"slug"`
	Name        string    `gorm:"size:100;not null" json:"name" yaml:"name"`
	Description string    `gorm:"type:text" json:"description" yaml:"description"`
	SortOrder   int       `gorm:"not null;default:0" json:"sort_order" yaml:"sort_order"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`

	ThreadCount int64 `gorm:"->;-:migration" json:"thread_count" yaml:"-"`
}

// Thread is a top-level discussion topic within a category.
type Thread struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CategoryID  uint       `gorm:"not null;index" json:"category_id"`
	AuthorID    uint       `gorm:"not null;index" json:"author_id"`
	Title       string     `gorm:"size:300;not null" json:"title"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	IsPinned    bool       `gorm:"not null;default:false" json:"is_pinned"`
	IsLocked    bool       `gorm:"not null;default:false" json:"is_locked"`
	IsDeleted   bool       `gorm:"not null;default:false;index" json:"-"`
	ViewCount   int64      `gorm:"not null;default:0" json:"view_count"`
	ReplyCount  int64      `gorm:"not null;default:0" json:"reply_count"`
	LastReplyAt time.Time  `gorm:"not null;index" json:"last_reply_at"`
	LastReplyBy *uint      `json:"last_reply_by,omitempty"`
	RemovedAt   *time.Time `json:"-"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// State returns the thread's flags as a ThreadState.
func (t *Thread) State() ThreadState {
	return ThreadState{Pinned: t.IsPinned, Locked: t.IsLocked, Deleted: t.IsDeleted}
}

// ThreadState holds the independent pinned and locked flags plus the
// absorbing deleted flag.
type ThreadState struct {
	Pinned  bool
	Locked  bool
	Deleted bool
}

// Apply returns the state after action. changed is false for no-op
// transitions. Any action other than delete on a deleted thread fails with
// ErrThreadDeleted.
func (s ThreadState) Apply(action ThreadAction) (next ThreadState, changed bool, err error) {
	if s.Deleted {
		if action == ThreadDelete {
			return s, false, nil
		}
		return s, false, ErrThreadDeleted
	}

	next = s
	switch action {
	case ThreadPin:
		next.Pinned = true
	case ThreadUnpin:
		next.Pinned = false
	case ThreadLock:
		next.Locked = true
	case ThreadUnlock:
		next.Locked = false
	case ThreadDelete:
		next.Deleted = true
	default:
		return s, false, fmt.Errorf("unknown thread action %q", action)
	}
	return next, next != s, nil
}

func (s ThreadState) String() string {
	if s.Deleted {
		return "deleted"
	}
	var parts []string
	if s.Pinned {
		parts = append(parts, "pinned")
	}
	if s.Locked {
		parts = append(parts, "locked")
	}
	if len(parts) == 0 {
		return "open"
	}
	return strings.Join(parts, "+")
}

// Post is a reply within a thread.
type Post struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ThreadID  uint       `gorm:"not null;index:idx_posts_thread_created,priority:1" json:"thread_id"`
	AuthorID  uint       `gorm:"not null;index" json:"author_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	IsDeleted bool       `gorm:"not null;default:false;index" json:"-"`
	LikeCount int64      `gorm:"not null;default:0" json:"like_count"`
	RemovedAt *time.Time `json:"-"`
	CreatedAt time.Time  `gorm:"index:idx_posts_thread_created,priority:2" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Like records that a user liked a post. Rows are only inserted or deleted.
type Like struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeResult is the outcome of a like toggle.
type LikeResult string

const (
	Liked   LikeResult = "liked"
	Unliked LikeResult = "unliked"
)
