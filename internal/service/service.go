// Package service implements the forum operations. Every mutation runs in
// one store transaction through repository.Runner and hands its
// notification events to the dispatcher inside that transaction.
package service

import (
	"context"
	"time"

	"forum/internal/models"
	"forum/internal/notifications"
	"forum/internal/observability"
	"forum/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const (
	maxTitleLen         = 300
	maxThreadContentLen = 50000
	maxPostContentLen   = 10000
	maxUsernameLen      = 50
	maxDisplayNameLen   = 100
	maxBioLen           = 2000
	maxLocationLen      = 100
	maxWebsiteLen       = 200
	maxSearchResults    = 20
)

var now = func() time.Time { return time.Now().UTC() }

// actionAttrs tags a service span with who acted on what.
func actionAttrs(actorID uint, subject models.SubjectType, id uint) []attribute.KeyValue {
	return append(observability.Subject(string(subject), id), observability.Actor(actorID))
}

// Repositories bundles the repositories services rebind to their transaction.
type Repositories struct {
	Profiles      repository.ProfileRepository
	Categories    repository.CategoryRepository
	Threads       repository.ThreadRepository
	Posts         repository.PostRepository
	Likes         repository.LikeRepository
	ModerationLog repository.ModerationLogRepository
}

// NewRepositories creates every repository over db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Profiles:      repository.NewProfileRepository(db),
		Categories:    repository.NewCategoryRepository(db),
		Threads:       repository.NewThreadRepository(db),
		Posts:         repository.NewPostRepository(db),
		Likes:         repository.NewLikeRepository(db),
		ModerationLog: repository.NewModerationLogRepository(db),
	}
}

// activeAuthor loads the acting profile under lock and rejects missing or
// banned profiles.
func activeAuthor(ctx context.Context, profiles repository.ProfileRepository, id uint, strength repository.LockStrength) (*models.Profile, error) {
	if id == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	profile, err := profiles.Lock(ctx, id, strength)
	if models.IsCode(err, models.CodeNotFound) {
		return nil, models.NewUnauthorizedError("Profile not registered")
	}
	if err != nil {
		return nil, err
	}
	if !profile.Standing().CanAuthor() {
		return nil, models.NewUnauthorizedError("Profile is banned")
	}
	return profile, nil
}

// MentionResolver returns the profiles mentioned in post content.
type MentionResolver interface {
	Mentions(ctx context.Context, tx *gorm.DB, content string) ([]uint, error)
}

// NoMentions resolves no mentions.
type NoMentions struct{}

func (NoMentions) Mentions(context.Context, *gorm.DB, string) ([]uint, error) {
	return nil, nil
}

// EventSink queues notification events in the caller's transaction and is
// woken once that transaction commits.
type EventSink interface {
	Enqueue(ctx context.Context, tx *gorm.DB, events ...notifications.Event) error
	Wake(ctx context.Context)
}
