package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"forum/internal/cache"
	"forum/internal/models"
	"forum/internal/notifications"
	"forum/internal/observability"
	"forum/internal/repository"

	"gorm.io/gorm"
)

// ThreadService owns the thread and post lifecycle and every read of
// forum content.
type ThreadService struct {
	runner   *repository.Runner
	repos    Repositories
	events   EventSink
	mentions MentionResolver
}

type CreateThreadInput struct {
	AuthorID   uint
	CategoryID uint
	Title      string
	Content    string
}

type CreatePostInput struct {
	AuthorID uint
	ThreadID uint
	Content  string
}

// ThreadDetail is a visible thread with a page of its visible posts.
type ThreadDetail struct {
	Thread       *models.Thread `json:"thread"`
	Posts        []*models.Post `json:"posts"`
	LikedPostIDs []uint         `json:"liked_post_ids"`
}

// SearchResults groups matches across content and members.
type SearchResults struct {
	Threads  []*models.Thread  `json:"threads"`
	Posts    []*models.Post    `json:"posts"`
	Profiles []*models.Profile `json:"profiles"`
}

func NewThreadService(runner *repository.Runner, repos Repositories, events EventSink, mentions MentionResolver) *ThreadService {
	if mentions == nil {
		mentions = NoMentions{}
	}
	return &ThreadService{runner: runner, repos: repos, events: events, mentions: mentions}
}

func (s *ThreadService) CreateThread(ctx context.Context, in CreateThreadInput) (*models.Thread, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return nil, models.NewValidationError(fmt.Sprintf("Title too long (max %d characters)", maxTitleLen))
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(in.Content) > maxThreadContentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Content too long (max %d characters)", maxThreadContentLen))
	}

	span, ctx := observability.StartSpan(ctx, "thread.create", observability.Actor(in.AuthorID))
	defer span.End()

	thread, err := repository.Execute(ctx, s.runner, "thread.create", func(tx *gorm.DB) (*models.Thread, error) {
		author, err := activeAuthor(ctx, s.repos.Profiles.WithTx(tx), in.AuthorID, repository.ForShare)
		if err != nil {
			return nil, err
		}
		category, err := s.repos.Categories.WithTx(tx).GetByID(ctx, in.CategoryID)
		if err != nil {
			return nil, err
		}
		if !category.IsActive {
			return nil, models.NewValidationError("Category is not accepting threads")
		}

		at := now()
		thread := &models.Thread{
			CategoryID:  category.ID,
			AuthorID:    author.ID,
			Title:       title,
			Content:     in.Content,
			LastReplyAt: at,
			CreatedAt:   at,
		}
		if err := s.repos.Threads.WithTx(tx).Create(ctx, thread); err != nil {
			return nil, err
		}
		return thread, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.AddAttributes(observability.Subject(string(models.SubjectThread), thread.ID)...)
	cache.InvalidateCategories(ctx)
	return thread, nil
}

// CreatePost appends a reply. The thread must be visible and unlocked and
// the author active; the reply counters and the author's post count move
// in the same transaction.
func (s *ThreadService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(in.Content) > maxPostContentLen {
		return nil, models.NewValidationError(fmt.Sprintf("Content too long (max %d characters)", maxPostContentLen))
	}

	span, ctx := observability.StartSpan(ctx, "post.create", actionAttrs(in.AuthorID, models.SubjectThread, in.ThreadID)...)
	defer span.End()

	post, err := repository.Execute(ctx, s.runner, "post.create", func(tx *gorm.DB) (*models.Post, error) {
		threads := s.repos.Threads.WithTx(tx)
		profiles := s.repos.Profiles.WithTx(tx)

		// Profiles lock before threads, as in moderation. The thread errors
		// still take precedence over the author's.
		author, authorErr := activeAuthor(ctx, profiles, in.AuthorID, repository.ForUpdate)
		if authorErr != nil && !models.IsCode(authorErr, models.CodeUnauthorized) {
			return nil, authorErr
		}
		thread, err := threads.Lock(ctx, in.ThreadID)
		if err != nil {
			return nil, err
		}
		if thread.IsDeleted {
			return nil, models.NewNotFoundError("Thread", in.ThreadID)
		}
		if thread.IsLocked {
			return nil, models.NewConflictError("Thread is locked")
		}
		if authorErr != nil {
			return nil, authorErr
		}

		at := now()
		post := &models.Post{ThreadID: thread.ID, AuthorID: author.ID, Content: in.Content, CreatedAt: at}
		if err := s.repos.Posts.WithTx(tx).Create(ctx, post); err != nil {
			return nil, err
		}
		if err := threads.RecordReply(ctx, thread.ID, author.ID, at); err != nil {
			return nil, err
		}
		if err := profiles.IncrementPostCount(ctx, author.ID); err != nil {
			return nil, err
		}

		events := []notifications.Event{{
			RecipientID: thread.AuthorID,
			Kind:        models.NotificationReply,
			SubjectType: models.SubjectThread,
			SubjectID:   thread.ID,
			ActorID:     author.ID,
			Message:     fmt.Sprintf("%s replied to %q", author.Username, thread.Title),
			OccurredAt:  at,
		}}
		mentioned, err := s.mentions.Mentions(ctx, tx, in.Content)
		if err != nil {
			return nil, err
		}
		for _, id := range mentioned {
			events = append(events, notifications.Event{
				RecipientID: id,
				Kind:        models.NotificationMention,
				SubjectType: models.SubjectPost,
				SubjectID:   post.ID,
				ActorID:     author.ID,
				Message:     fmt.Sprintf("%s mentioned you in %q", author.Username, thread.Title),
				OccurredAt:  at,
			})
		}
		if err := s.events.Enqueue(ctx, tx, events...); err != nil {
			return nil, err
		}
		return post, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	cache.InvalidateProfiles(ctx, in.AuthorID)
	s.events.Wake(ctx)
	return post, nil
}

// SoftDeleteThread hides the thread and, through it, all of its posts.
// Deleting a deleted thread is a no-op. Authorization is the caller's job;
// see ModerationService.DeleteThread.
func (s *ThreadService) SoftDeleteThread(ctx context.Context, threadID uint) error {
	_, err := repository.Execute(ctx, s.runner, "thread.soft_delete", func(tx *gorm.DB) (bool, error) {
		return softDeleteThread(ctx, s.repos.Threads.WithTx(tx), threadID)
	})
	if err == nil {
		cache.InvalidateCategories(ctx)
	}
	return err
}

// SoftDeletePost hides the post and decrements its own thread's
// reply_count. Deleting a deleted post is a no-op.
func (s *ThreadService) SoftDeletePost(ctx context.Context, postID uint) error {
	_, err := repository.Execute(ctx, s.runner, "post.soft_delete", func(tx *gorm.DB) (bool, error) {
		post, err := s.repos.Posts.WithTx(tx).Lock(ctx, postID)
		if err != nil {
			return false, err
		}
		return softDeletePost(ctx, s.repos.Threads.WithTx(tx), s.repos.Posts.WithTx(tx), post)
	})
	return err
}

func softDeleteThread(ctx context.Context, threads repository.ThreadRepository, threadID uint) (bool, error) {
	thread, err := threads.Lock(ctx, threadID)
	if err != nil {
		return false, err
	}
	next, changed, err := thread.State().Apply(models.ThreadDelete)
	if err != nil || !changed {
		return false, err
	}
	return true, threads.SetState(ctx, thread.ID, next, now())
}

// softDeletePost expects post to be locked by the caller's transaction.
func softDeletePost(ctx context.Context, threads repository.ThreadRepository, posts repository.PostRepository, post *models.Post) (bool, error) {
	if post.IsDeleted {
		return false, nil
	}
	if err := posts.MarkDeleted(ctx, post.ID, now()); err != nil {
		return false, err
	}
	if err := threads.AdjustReplyCount(ctx, post.ThreadID, -1); err != nil {
		return false, err
	}
	return true, nil
}

// ListCategories returns active categories with their visible thread counts.
func (s *ThreadService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := cache.Aside(ctx, cache.CategoriesKey, &categories, cache.CategoriesTTL, func() error {
		var err error
		categories, err = s.repos.Categories.List(ctx)
		return err
	})
	return categories, err
}

// ListThreads returns a page of a category's visible threads, pinned first.
func (s *ThreadService) ListThreads(ctx context.Context, slug string, limit, offset int) (*models.Category, []*models.Thread, error) {
	category, err := s.repos.Categories.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	if !category.IsActive {
		return nil, nil, models.NewNotFoundError("Category", slug)
	}
	threads, err := s.repos.Threads.ListByCategory(ctx, category.ID, limit, offset)
	if err != nil {
		return nil, nil, err
	}
	return category, threads, nil
}

// ActiveThreads returns visible threads across all categories by most
// recent reply, for the forum index.
func (s *ThreadService) ActiveThreads(ctx context.Context, limit, offset int) ([]*models.Thread, error) {
	return s.repos.Threads.ListActive(ctx, limit, offset)
}

func (s *ThreadService) RecentThreads(ctx context.Context, limit, offset int) ([]*models.Thread, error) {
	return s.repos.Threads.ListRecent(ctx, limit, offset)
}

// GetThread returns the thread, its first page of posts and which of those
// posts viewerID has liked. viewerID may be zero.
func (s *ThreadService) GetThread(ctx context.Context, threadID, viewerID uint, limit int) (*ThreadDetail, error) {
	thread, err := s.repos.Threads.GetVisible(ctx, threadID)
	if err != nil {
		return nil, err
	}
	posts, err := s.repos.Posts.ListByThread(ctx, thread.ID, limit, 0)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	liked, err := s.repos.Likes.LikedPostIDs(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}
	return &ThreadDetail{Thread: thread, Posts: posts, LikedPostIDs: liked}, nil
}

func (s *ThreadService) ListPosts(ctx context.Context, threadID uint, limit, offset int) ([]*models.Post, error) {
	if _, err := s.repos.Threads.GetVisible(ctx, threadID); err != nil {
		return nil, err
	}
	return s.repos.Posts.ListByThread(ctx, threadID, limit, offset)
}

// Search matches visible threads, visible posts and active members.
func (s *ThreadService) Search(ctx context.Context, query string) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}

	threads, err := s.repos.Threads.Search(ctx, query, maxSearchResults)
	if err != nil {
		return nil, err
	}
	posts, err := s.repos.Posts.Search(ctx, query, maxSearchResults)
	if err != nil {
		return nil, err
	}
	profiles, err := s.repos.Profiles.Search(ctx, query, maxSearchResults)
	if err != nil {
		return nil, err
	}
	return &SearchResults{Threads: threads, Posts: posts, Profiles: profiles}, nil
}
