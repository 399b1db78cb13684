package service

import (
	"context"
	"fmt"

	"forum/internal/cache"
	"forum/internal/models"
	"forum/internal/notifications"
	"forum/internal/observability"
	"forum/internal/repository"

	"gorm.io/gorm"
)

// toggleAttempts bounds how often a toggle re-reads the like row when a
// concurrent toggle by the same user changed it mid-transaction.
const toggleAttempts = 3

// LikeService maintains likes and the counters derived from them.
type LikeService struct {
	runner *repository.Runner
	repos  Repositories
	events EventSink
}

// LikeOutcome reports a toggle's result and the post's like count after it.
type LikeOutcome struct {
	Result    models.LikeResult `json:"result"`
	LikeCount int64             `json:"like_count"`
}

func NewLikeService(runner *repository.Runner, repos Repositories, events EventSink) *LikeService {
	return &LikeService{runner: runner, repos: repos, events: events}
}

// ToggleLike likes the post if userID has not liked it yet and unlikes it
// otherwise. The like row, like_count and the author's reputation change in
// one transaction with the post row locked, so toggles on the same post
// serialize. Self-likes do not change reputation.
func (s *LikeService) ToggleLike(ctx context.Context, userID, postID uint) (*LikeOutcome, error) {
	span, ctx := observability.StartSpan(ctx, "like.toggle", actionAttrs(userID, models.SubjectPost, postID)...)
	defer span.End()

	var authorID uint
	outcome, err := repository.Execute(ctx, s.runner, "like.toggle", func(tx *gorm.DB) (*LikeOutcome, error) {
		profiles := s.repos.Profiles.WithTx(tx)
		posts := s.repos.Posts.WithTx(tx)
		likes := s.repos.Likes.WithTx(tx)

		actor, err := activeAuthor(ctx, profiles, userID, repository.ForShare)
		if err != nil {
			return nil, err
		}
		post, err := posts.LockVisible(ctx, postID)
		if err != nil {
			return nil, err
		}
		authorID = post.AuthorID

		result, err := s.flip(ctx, likes, actor.ID, post.ID)
		if err != nil {
			return nil, err
		}

		delta := int64(1)
		if result == models.Unliked {
			delta = -1
		}
		if err := posts.AdjustLikeCount(ctx, post.ID, delta); err != nil {
			return nil, err
		}
		if post.AuthorID != actor.ID {
			if err := profiles.AdjustReputation(ctx, post.AuthorID, delta); err != nil {
				return nil, err
			}
		}

		if result == models.Liked {
			if err := s.events.Enqueue(ctx, tx, notifications.Event{
				RecipientID: post.AuthorID,
				Kind:        models.NotificationLike,
				SubjectType: models.SubjectPost,
				SubjectID:   post.ID,
				ActorID:     actor.ID,
				Message:     fmt.Sprintf("%s liked your post", actor.Username),
				OccurredAt:  now(),
			}); err != nil {
				return nil, err
			}
		}

		return &LikeOutcome{Result: result, LikeCount: post.LikeCount + delta}, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetResult(string(outcome.Result))
	observability.LikeToggles.WithLabelValues(string(outcome.Result)).Inc()
	if authorID != 0 && authorID != userID {
		cache.InvalidateProfiles(ctx, authorID)
	}
	if outcome.Result == models.Liked {
		s.events.Wake(ctx)
	}
	return outcome, nil
}

// flip removes an existing like or inserts a missing one. Both statements
// report whether they changed a row, so the branch taken always matches
// the row change that actually happened.
func (s *LikeService) flip(ctx context.Context, likes repository.LikeRepository, userID, postID uint) (models.LikeResult, error) {
	for i := 0; i < toggleAttempts; i++ {
		removed, err := likes.Delete(ctx, userID, postID)
		if err != nil {
			return "", err
		}
		if removed {
			return models.Unliked, nil
		}
		inserted, err := likes.Insert(ctx, userID, postID, now())
		if err != nil {
			return "", err
		}
		if inserted {
			return models.Liked, nil
		}
	}
	return "", models.NewConflictError("Like changed concurrently, try again")
}

// HasLiked reports whether userID currently likes postID.
func (s *LikeService) HasLiked(ctx context.Context, userID, postID uint) (bool, error) {
	return s.repos.Likes.Exists(ctx, userID, postID)
}
