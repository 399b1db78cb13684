package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"forum/internal/models"
	"forum/internal/notifications"
	"forum/internal/repository"
	"forum/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	t          *testing.T
	db         *gorm.DB
	runner     *repository.Runner
	repos      Repositories
	dispatcher *notifications.Dispatcher
	threads    *ThreadService
	likes      *LikeService
	views      *ViewService
	moderation *ModerationService
	profiles   *ProfileService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	runner := repository.NewRunner(db, repository.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond})
	repos := NewRepositories(db)
	dispatcher := notifications.NewDispatcher(runner, notifications.Options{DedupeWindow: time.Minute})

	return &harness{
		t:          t,
		db:         db,
		runner:     runner,
		repos:      repos,
		dispatcher: dispatcher,
		threads:    NewThreadService(runner, repos, dispatcher, nil),
		likes:      NewLikeService(runner, repos, dispatcher),
		views:      NewViewService(runner, repos.Threads),
		moderation: NewModerationService(runner, repos, dispatcher),
		profiles:   NewProfileService(runner, repos),
	}
}

func (h *harness) member(id uint, username string) *models.Profile {
	h.t.Helper()
	return testutil.CreateProfile(h.t, h.db, id, username)
}

func (h *harness) moderator(id uint, username string) *models.Profile {
	h.t.Helper()
	p := testutil.CreateProfile(h.t, h.db, id, username)
	require.NoError(h.t, h.db.Model(p).Update("role", models.RoleModerator).Error)
	p.Role = models.RoleModerator
	return p
}

func (h *harness) category(slug string) *models.Category {
	h.t.Helper()
	return testutil.CreateCategory(h.t, h.db, slug)
}

func (h *harness) thread(authorID, categoryID uint, title string) *models.Thread {
	h.t.Helper()
	thread, err := h.threads.CreateThread(context.Background(), CreateThreadInput{
		AuthorID: authorID, CategoryID: categoryID, Title: title, Content: "opening post",
	})
	require.NoError(h.t, err)
	return thread
}

func (h *harness) post(authorID, threadID uint, content string) *models.Post {
	h.t.Helper()
	post, err := h.threads.CreatePost(context.Background(), CreatePostInput{AuthorID: authorID, ThreadID: threadID, Content: content})
	require.NoError(h.t, err)
	return post
}

func (h *harness) reloadThread(id uint) *models.Thread {
	h.t.Helper()
	var thread models.Thread
	require.NoError(h.t, h.db.First(&thread, id).Error)
	return &thread
}

func (h *harness) reloadPost(id uint) *models.Post {
	h.t.Helper()
	var post models.Post
	require.NoError(h.t, h.db.First(&post, id).Error)
	return &post
}

func (h *harness) reloadProfile(id uint) *models.Profile {
	h.t.Helper()
	var profile models.Profile
	require.NoError(h.t, h.db.First(&profile, id).Error)
	return &profile
}

// unread drains the outbox and returns the recipient's unread notifications.
func (h *harness) unread(recipientID uint) []*models.Notification {
	h.t.Helper()
	_, err := h.dispatcher.Drain(context.Background())
	require.NoError(h.t, err)
	list, err := h.dispatcher.ListUnread(context.Background(), recipientID, 100, 0)
	require.NoError(h.t, err)
	return list
}

func countKind(list []*models.Notification, kind models.NotificationKind) int {
	n := 0
	for _, item := range list {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

// assertReplyInvariant checks reply_count against the live post rows.
func (h *harness) assertReplyInvariant(threadID uint) {
	h.t.Helper()
	live, err := h.repos.Posts.CountLiveInThread(context.Background(), threadID)
	require.NoError(h.t, err)
	require.Equal(h.t, live, h.reloadThread(threadID).ReplyCount, "reply_count diverged from live posts")
}

// assertLikeInvariant checks like_count against the like rows.
func (h *harness) assertLikeInvariant(postID uint) {
	h.t.Helper()
	rows, err := h.repos.Likes.CountByPost(context.Background(), postID)
	require.NoError(h.t, err)
	require.Equal(h.t, rows, h.reloadPost(postID).LikeCount, "like_count diverged from like rows")
}

// recordingSink is an EventSink that keeps events in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []notifications.Event
	wakes  int
}

func (s *recordingSink) Enqueue(_ context.Context, _ *gorm.DB, events ...notifications.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) Wake(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wakes++
}

// freezeClock pins the service clock for the rest of the test so that
// notification dedupe buckets are deterministic.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}
