package service

import (
	"context"
	"testing"
	"time"

	"forum/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeration_AuthorizationClosureAfterSelfDemote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.moderator(1, "mod")
	a := h.member(2, "alice")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")

	res, err := h.moderation.Demote(ctx, m.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	_, err = h.moderation.Pin(ctx, m.ID, thread.ID)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	assert.False(t, h.reloadThread(thread.ID).IsPinned)
}

func TestModeration_RequiresActiveModerator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	member := h.member(1, "member")
	bannedMod := h.moderator(2, "fallen")
	require.NoError(t, h.db.Model(bannedMod).Update("ban_state", models.BanStateBanned).Error)
	target := h.member(3, "target")
	cat := h.category("general")
	thread := h.thread(target.ID, cat.ID, "T1")

	for _, actor := range []uint{member.ID, bannedMod.ID, 999} {
		_, err := h.moderation.Lock(ctx, actor, thread.ID)
		assert.True(t, models.IsCode(err, models.CodeUnauthorized), "lock by %d", actor)
		_, err = h.moderation.Ban(ctx, actor, target.ID)
		assert.True(t, models.IsCode(err, models.CodeUnauthorized), "ban by %d", actor)
		_, err = h.moderation.Ban(ctx, actor, actor)
		assert.True(t, models.IsCode(err, models.CodeUnauthorized), "self-ban by %d", actor)
		_, err = h.moderation.Stats(ctx, actor)
		assert.True(t, models.IsCode(err, models.CodeUnauthorized), "stats by %d", actor)
	}
	assert.False(t, h.reloadThread(thread.ID).IsLocked)
	assert.Equal(t, models.BanStateActive, h.reloadProfile(target.ID).BanState)
}

func TestModeration_ThreadTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.moderator(1, "mod")
	a := h.member(2, "alice")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	steps := []struct {
		name    string
		run     func() (*ModerationResult, error)
		changed bool
		state   string
	}{
		{"pin", func() (*ModerationResult, error) { return h.moderation.Pin(ctx, m.ID, thread.ID) }, true, "pinned"},
		{"pin again", func() (*ModerationResult, error) { return h.moderation.Pin(ctx, m.ID, thread.ID) }, false, "pinned"},
		{"lock", func() (*ModerationResult, error) { return h.moderation.Lock(ctx, m.ID, thread.ID) }, true, "pinned+locked"},
		{"unpin", func() (*ModerationResult, error) { return h.moderation.Unpin(ctx, m.ID, thread.ID) }, true, "locked"},
		{"unlock", func() (*ModerationResult, error) { return h.moderation.Unlock(ctx, m.ID, thread.ID) }, true, "open"},
		{"unlock again", func() (*ModerationResult, error) { return h.moderation.Unlock(ctx, m.ID, thread.ID) }, false, "open"},
		{"delete", func() (*ModerationResult, error) { return h.moderation.DeleteThread(ctx, m.ID, thread.ID) }, true, "deleted"},
		{"delete again", func() (*ModerationResult, error) { return h.moderation.DeleteThread(ctx, m.ID, thread.ID) }, false, "deleted"},
	}
	for i, step := range steps {
		freezeClock(t, start.Add(time.Duration(i)*time.Hour))
		res, err := step.run()
		require.NoError(t, err, step.name)
		assert.Equal(t, step.changed, res.Changed, step.name)
		assert.Equal(t, step.state, res.State, step.name)
	}

	_, err := h.moderation.Pin(ctx, m.ID, thread.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound), "deleted is absorbing")
	_, err = h.moderation.Lock(ctx, m.ID, 999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	unread := h.unread(a.ID)
	assert.Equal(t, 5, countKind(unread, models.NotificationModerationAction), "one notification per effective transition")

	log, err := h.moderation.Log(ctx, m.ID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, log, 5)
	assert.Equal(t, "delete", log[0].Action)
}

func TestModeration_NoopsEmitNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.moderator(1, "mod")
	other := h.moderator(2, "other")
	a := h.member(3, "alice")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")

	_, err := h.moderation.Unpin(ctx, m.ID, thread.ID)
	require.NoError(t, err)
	_, err = h.moderation.Unban(ctx, m.ID, a.ID)
	require.NoError(t, err)
	_, err = h.moderation.Promote(ctx, m.ID, other.ID)
	require.NoError(t, err)
	_, err = h.moderation.Demote(ctx, m.ID, a.ID)
	require.NoError(t, err)

	assert.Empty(t, h.unread(a.ID))
	assert.Empty(t, h.unread(other.ID))
	log, err := h.moderation.Log(ctx, m.ID, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestModeration_ProfileTransitions(t *testing.T) {
	h := newHarness(t)
	freezeClock(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	m := h.moderator(5, "mod")
	a := h.member(2, "alice")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")

	res, err := h.moderation.Ban(ctx, m.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "member/banned", res.State)

	res, err = h.moderation.Ban(ctx, m.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = h.threads.CreatePost(ctx, CreatePostInput{AuthorID: a.ID, ThreadID: thread.ID, Content: "let me in"})
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	_, err = h.moderation.Unban(ctx, m.ID, a.ID)
	require.NoError(t, err)
	h.post(a.ID, thread.ID, "back again")

	res, err = h.moderation.Promote(ctx, m.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "moderator/active", res.State)

	_, err = h.moderation.Pin(ctx, a.ID, thread.ID)
	require.NoError(t, err)

	_, err = h.moderation.Ban(ctx, m.ID, m.ID)
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = h.moderation.Ban(ctx, m.ID, 999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	// ban, unban and promote share a subject and bucket, so they collapse
	// into the one unread notification.
	assert.Equal(t, 1, countKind(h.unread(a.ID), models.NotificationModerationAction))
}

func TestModeration_DeleteOwnContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.member(1, "alice")
	b := h.member(2, "bob")
	m := h.moderator(3, "mod")
	cat := h.category("general")
	thread := h.thread(a.ID, cat.ID, "T1")
	bobPost := h.post(b.ID, thread.ID, "bob's")
	alicePost := h.post(a.ID, thread.ID, "alice's")

	_, err := h.moderation.DeletePost(ctx, a.ID, bobPost.ID)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized), "members cannot delete others' posts")

	res, err := h.moderation.DeletePost(ctx, a.ID, alicePost.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	h.assertReplyInvariant(thread.ID)

	res, err = h.moderation.DeletePost(ctx, m.ID, bobPost.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	res, err = h.moderation.DeletePost(ctx, m.ID, bobPost.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	h.assertReplyInvariant(thread.ID)
	assert.Zero(t, h.reloadThread(thread.ID).ReplyCount)

	_, err = h.moderation.DeleteThread(ctx, b.ID, thread.ID)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))

	res, err = h.moderation.DeleteThread(ctx, a.ID, thread.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	assert.Equal(t, 1, countKind(h.unread(b.ID), models.NotificationModerationAction))
	assert.Zero(t, countKind(h.unread(a.ID), models.NotificationModerationAction), "deleting your own content does not notify you")

	_, err = h.moderation.DeletePost(ctx, m.ID, 999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestModeration_UsersIncludeBannedNewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	names := []string{"mod", "alice", "bob"}
	for i, name := range names {
		freezeClock(t, start.Add(time.Duration(i)*24*time.Hour))
		_, err := h.profiles.Register(ctx, RegisterInput{UserID: uint(i + 1), Username: name})
		require.NoError(t, err)
	}
	require.NoError(t, h.db.Model(&models.Profile{}).Where("id = ?", 1).Update("role", models.RoleModerator).Error)

	_, err := h.moderation.Ban(ctx, 1, 3)
	require.NoError(t, err)

	users, err := h.moderation.Users(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "bob", users[0].Username)
	assert.Equal(t, models.BanStateBanned, users[0].BanState)
	assert.Equal(t, "alice", users[1].Username)
	assert.Equal(t, "mod", users[2].Username)

	_, err = h.moderation.Users(ctx, 2, 10, 0)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
}

func TestModeration_RecentPostsSkipHiddenContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.moderator(1, "mod")
	a := h.member(2, "alice")
	cat := h.category("general")
	kept := h.thread(a.ID, cat.ID, "kept")
	dropped := h.thread(a.ID, cat.ID, "dropped")

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	var posts []*models.Post
	for i, spec := range []struct {
		thread uint
		body   string
	}{{kept.ID, "first"}, {kept.ID, "second"}, {dropped.ID, "gone with thread"}, {kept.ID, "third"}} {
		freezeClock(t, start.Add(time.Duration(i)*time.Minute))
		posts = append(posts, h.post(a.ID, spec.thread, spec.body))
	}
	_, err := h.moderation.DeleteThread(ctx, m.ID, dropped.ID)
	require.NoError(t, err)
	_, err = h.moderation.DeletePost(ctx, m.ID, posts[1].ID)
	require.NoError(t, err)

	recent, err := h.moderation.RecentPosts(ctx, m.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, posts[3].ID, recent[0].ID)
	assert.Equal(t, posts[0].ID, recent[1].ID)

	_, err = h.moderation.RecentPosts(ctx, a.ID, 10, 0)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
}

func TestModeration_Stats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.moderator(1, "mod")
	a := h.member(2, "alice")
	b := h.member(3, "bob")
	cat := h.category("general")
	t1 := h.thread(a.ID, cat.ID, "T1")
	t2 := h.thread(a.ID, cat.ID, "T2")
	h.post(b.ID, t1.ID, "one")
	h.post(b.ID, t2.ID, "two")

	_, err := h.moderation.Ban(ctx, m.ID, b.ID)
	require.NoError(t, err)
	_, err = h.moderation.DeleteThread(ctx, m.ID, t2.ID)
	require.NoError(t, err)

	stats, err := h.moderation.Stats(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationStats{
		Members:        3,
		BannedMembers:  1,
		Moderators:     1,
		VisibleThreads: 1,
		VisiblePosts:   1,
	}, *stats)
}
