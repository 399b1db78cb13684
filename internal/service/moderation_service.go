package service

import (
	"context"
	"errors"
	"fmt"

	"forum/internal/cache"
	"forum/internal/models"
	"forum/internal/notifications"
	"forum/internal/observability"
	"forum/internal/repository"

	"gorm.io/gorm"
)

// ModerationService authorizes and applies moderation transitions. The
// actor's profile is read under a row lock in the same transaction as the
// write, so a concurrent demotion or ban cannot race a privileged change
// through.
type ModerationService struct {
	runner *repository.Runner
	repos  Repositories
	events EventSink
}

// ModerationResult describes a moderation call. Changed is false for
// no-op transitions.
type ModerationResult struct {
	Action     string             `json:"action"`
	TargetType models.SubjectType `json:"target_type"`
	TargetID   uint               `json:"target_id"`
	Changed    bool               `json:"changed"`
	State      string             `json:"state"`
}

func NewModerationService(runner *repository.Runner, repos Repositories, events EventSink) *ModerationService {
	return &ModerationService{runner: runner, repos: repos, events: events}
}

func (s *ModerationService) Pin(ctx context.Context, actorID, threadID uint) (*ModerationResult, error) {
	return s.threadAction(ctx, actorID, threadID, models.ThreadPin)
}

func (s *ModerationService) Unpin(ctx context.Context, actorID, threadID uint) (*ModerationResult, error) {
	return s.threadAction(ctx, actorID, threadID, models.ThreadUnpin)
}

func (s *ModerationService) Lock(ctx context.Context, actorID, threadID uint) (*ModerationResult, error) {
	return s.threadAction(ctx, actorID, threadID, models.ThreadLock)
}

func (s *ModerationService) Unlock(ctx context.Context, actorID, threadID uint) (*ModerationResult, error) {
	return s.threadAction(ctx, actorID, threadID, models.ThreadUnlock)
}

// DeleteThread soft-deletes a thread. Moderators may delete any thread;
// active members may delete their own.
func (s *ModerationService) DeleteThread(ctx context.Context, actorID, threadID uint) (*ModerationResult, error) {
	return s.threadAction(ctx, actorID, threadID, models.ThreadDelete)
}

func (s *ModerationService) Ban(ctx context.Context, actorID, userID uint) (*ModerationResult, error) {
	return s.profileAction(ctx, actorID, userID, models.ProfileBan)
}

func (s *ModerationService) Unban(ctx context.Context, actorID, userID uint) (*ModerationResult, error) {
	return s.profileAction(ctx, actorID, userID, models.ProfileUnban)
}

func (s *ModerationService) Promote(ctx context.Context, actorID, userID uint) (*ModerationResult, error) {
	return s.profileAction(ctx, actorID, userID, models.ProfilePromote)
}

func (s *ModerationService) Demote(ctx context.Context, actorID, userID uint) (*ModerationResult, error) {
	return s.profileAction(ctx, actorID, userID, models.ProfileDemote)
}

// lockActor reads the actor FOR SHARE. Missing profiles are unauthorized.
func lockActor(ctx context.Context, profiles repository.ProfileRepository, actorID uint) (*models.Profile, error) {
	if actorID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	actor, err := profiles.Lock(ctx, actorID, repository.ForShare)
	if models.IsCode(err, models.CodeNotFound) {
		return nil, models.NewUnauthorizedError("Profile not registered")
	}
	return actor, err
}

// mayRemove reports whether actor may delete content written by authorID.
func mayRemove(actor *models.Profile, authorID uint) bool {
	standing := actor.Standing()
	return standing.CanModerate() || (actor.ID == authorID && standing.CanAuthor())
}

func (s *ModerationService) threadAction(ctx context.Context, actorID, threadID uint, action models.ThreadAction) (*ModerationResult, error) {
	op := "moderation.thread_" + string(action)
	span, ctx := observability.StartSpan(ctx, op, actionAttrs(actorID, models.SubjectThread, threadID)...)
	defer span.End()
	result, err := repository.Execute(ctx, s.runner, op, func(tx *gorm.DB) (*ModerationResult, error) {
		threads := s.repos.Threads.WithTx(tx)

		actor, err := lockActor(ctx, s.repos.Profiles.WithTx(tx), actorID)
		if err != nil {
			return nil, err
		}
		if action != models.ThreadDelete && !actor.Standing().CanModerate() {
			return nil, models.NewUnauthorizedError("Moderator role required")
		}

		thread, err := threads.Lock(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if action == models.ThreadDelete && !mayRemove(actor, thread.AuthorID) {
			return nil, models.NewUnauthorizedError("Moderator role required")
		}

		next, changed, err := thread.State().Apply(action)
		if errors.Is(err, models.ErrThreadDeleted) {
			return nil, models.NewNotFoundError("Thread", threadID)
		}
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}

		result := &ModerationResult{
			Action:     string(action),
			TargetType: models.SubjectThread,
			TargetID:   thread.ID,
			Changed:    changed,
			State:      next.String(),
		}
		if !changed {
			return result, nil
		}

		if err := threads.SetState(ctx, thread.ID, next, now()); err != nil {
			return nil, err
		}
		if err := s.record(ctx, tx, actor, result, thread.AuthorID,
			fmt.Sprintf("Your thread %q was %s", thread.Title, pastTense(string(action)))); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetResult(result.State)
	s.finish(ctx, result)
	if result.Changed && action == models.ThreadDelete {
		cache.InvalidateCategories(ctx)
	}
	return result, nil
}

// DeletePost soft-deletes a post and decrements its thread's reply_count.
// Moderators may delete any post; active members may delete their own.
func (s *ModerationService) DeletePost(ctx context.Context, actorID, postID uint) (*ModerationResult, error) {
	span, ctx := observability.StartSpan(ctx, "moderation.post_delete", actionAttrs(actorID, models.SubjectPost, postID)...)
	defer span.End()
	result, err := repository.Execute(ctx, s.runner, "moderation.post_delete", func(tx *gorm.DB) (*ModerationResult, error) {
		threads := s.repos.Threads.WithTx(tx)
		posts := s.repos.Posts.WithTx(tx)

		actor, err := lockActor(ctx, s.repos.Profiles.WithTx(tx), actorID)
		if err != nil {
			return nil, err
		}
		post, err := posts.Lock(ctx, postID)
		if err != nil {
			return nil, err
		}
		if !mayRemove(actor, post.AuthorID) {
			return nil, models.NewUnauthorizedError("Moderator role required")
		}

		thread, err := threads.Lock(ctx, post.ThreadID)
		if err != nil {
			return nil, err
		}
		result := &ModerationResult{
			Action:     string(models.ThreadDelete),
			TargetType: models.SubjectPost,
			TargetID:   post.ID,
			State:      "deleted",
		}
		// A post inside a deleted thread is already hidden.
		if thread.IsDeleted {
			return result, nil
		}

		changed, err := softDeletePost(ctx, threads, posts, post)
		if err != nil || !changed {
			return result, err
		}
		result.Changed = true
		if err := s.record(ctx, tx, actor, result, post.AuthorID,
			fmt.Sprintf("Your post in %q was deleted", thread.Title)); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetResult(result.State)
	s.finish(ctx, result)
	return result, nil
}

func (s *ModerationService) profileAction(ctx context.Context, actorID, userID uint, action models.ProfileAction) (*ModerationResult, error) {
	op := "moderation.profile_" + string(action)
	span, ctx := observability.StartSpan(ctx, op, actionAttrs(actorID, models.SubjectProfile, userID)...)
	defer span.End()
	result, err := repository.Execute(ctx, s.runner, op, func(tx *gorm.DB) (*ModerationResult, error) {
		profiles := s.repos.Profiles.WithTx(tx)

		actor, target, err := lockPair(ctx, profiles, actorID, userID)
		if err != nil {
			return nil, err
		}
		if !actor.Standing().CanModerate() {
			return nil, models.NewUnauthorizedError("Moderator role required")
		}
		if action == models.ProfileBan && actor.ID == userID {
			return nil, models.NewValidationError("Moderators cannot ban themselves")
		}
		if target == nil {
			return nil, models.NewNotFoundError("Profile", userID)
		}

		next, changed, err := target.Standing().Apply(action)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		result := &ModerationResult{
			Action:     string(action),
			TargetType: models.SubjectProfile,
			TargetID:   target.ID,
			Changed:    changed,
			State:      fmt.Sprintf("%s/%s", next.Role, next.BanState),
		}
		if !changed {
			return result, nil
		}

		if err := profiles.SetStanding(ctx, target.ID, next); err != nil {
			return nil, err
		}
		if err := s.record(ctx, tx, actor, result, target.ID,
			fmt.Sprintf("A moderator applied %q to your account", action)); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetResult(result.State)
	s.finish(ctx, result)
	if result.Changed {
		cache.InvalidateProfiles(ctx, userID)
	}
	return result, nil
}

// lockPair locks the actor and target profiles FOR UPDATE in ascending id
// order. target is nil when it does not exist.
func lockPair(ctx context.Context, profiles repository.ProfileRepository, actorID, targetID uint) (actor, target *models.Profile, err error) {
	if actorID == 0 {
		return nil, nil, models.NewUnauthorizedError("Authentication required")
	}
	ids := []uint{actorID, targetID}
	if targetID < actorID {
		ids[0], ids[1] = targetID, actorID
	}

	locked := make(map[uint]*models.Profile, 2)
	for _, id := range ids {
		if _, seen := locked[id]; seen {
			continue
		}
		p, err := profiles.Lock(ctx, id, repository.ForUpdate)
		if models.IsCode(err, models.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		locked[id] = p
	}

	actor = locked[actorID]
	if actor == nil {
		return nil, nil, models.NewUnauthorizedError("Profile not registered")
	}
	return actor, locked[targetID], nil
}

// record writes the audit row and queues the ModerationAction notification
// for an effective transition.
func (s *ModerationService) record(ctx context.Context, tx *gorm.DB, actor *models.Profile, result *ModerationResult, recipientID uint, message string) error {
	entry := &models.ModerationLog{
		ActorID:    actor.ID,
		Action:     result.Action,
		TargetType: result.TargetType,
		TargetID:   result.TargetID,
		CreatedAt:  now(),
	}
	if err := s.repos.ModerationLog.WithTx(tx).Append(ctx, entry); err != nil {
		return err
	}
	return s.events.Enqueue(ctx, tx, notifications.Event{
		RecipientID: recipientID,
		Kind:        models.NotificationModerationAction,
		SubjectType: result.TargetType,
		SubjectID:   result.TargetID,
		ActorID:     actor.ID,
		Message:     message,
		OccurredAt:  entry.CreatedAt,
	})
}

func (s *ModerationService) finish(ctx context.Context, result *ModerationResult) {
	effect := "noop"
	if result.Changed {
		effect = "applied"
		s.events.Wake(ctx)
	}
	observability.ModerationActions.WithLabelValues(string(result.TargetType)+"_"+result.Action, effect).Inc()
}

// Stats summarizes forum state for the moderator dashboard.
func (s *ModerationService) Stats(ctx context.Context, actorID uint) (*models.ModerationStats, error) {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return nil, err
	}

	var stats models.ModerationStats
	var err error
	if stats.Members, stats.BannedMembers, stats.Moderators, err = s.repos.Profiles.Counts(ctx); err != nil {
		return nil, err
	}
	if stats.VisibleThreads, err = s.repos.Threads.CountVisible(ctx); err != nil {
		return nil, err
	}
	if stats.VisiblePosts, err = s.repos.Posts.CountVisible(ctx); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Users lists every profile for the moderator dashboard, banned members
// included, newest first.
func (s *ModerationService) Users(ctx context.Context, actorID uint, limit, offset int) ([]*models.Profile, error) {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repos.Profiles.ListAll(ctx, limit, offset)
}

// RecentPosts lists visible posts across all threads, newest first.
func (s *ModerationService) RecentPosts(ctx context.Context, actorID uint, limit, offset int) ([]*models.Post, error) {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repos.Posts.ListRecent(ctx, limit, offset)
}

// Log returns moderation audit rows newest first.
func (s *ModerationService) Log(ctx context.Context, actorID uint, limit, offset int) ([]*models.ModerationLog, error) {
	if err := s.requireModerator(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repos.ModerationLog.List(ctx, limit, offset)
}

// requireModerator checks the actor's current standing from the store.
func (s *ModerationService) requireModerator(ctx context.Context, actorID uint) error {
	actor, err := s.repos.Profiles.GetByID(ctx, actorID)
	if models.IsCode(err, models.CodeNotFound) {
		return models.NewUnauthorizedError("Profile not registered")
	}
	if err != nil {
		return err
	}
	if !actor.Standing().CanModerate() {
		return models.NewUnauthorizedError("Moderator role required")
	}
	return nil
}

func pastTense(action string) string {
	switch action {
	case "pin", "unpin":
		return action + "ned"
	case "delete":
		return "deleted"
	default:
		return action + "ed"
	}
}
