package service

import (
	"context"
	"testing"
	"time"

	"forum/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenario_ReplyLockLike walks one thread through a reply, a lock and a
// like and checks counters and notifications after every step.
func TestScenario_ReplyLockLike(t *testing.T) {
	h := newHarness(t)
	freezeClock(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	a := h.member(1, "alice")
	b := h.member(2, "bob")
	m := h.moderator(3, "mod")
	cat := h.category("general")

	t1 := h.thread(a.ID, cat.ID, "T1")
	assert.Zero(t, h.reloadThread(t1.ID).ReplyCount)
	opening := h.post(a.ID, t1.ID, "first post by A")

	_, err := h.threads.CreatePost(ctx, CreatePostInput{AuthorID: b.ID, ThreadID: t1.ID, Content: "hi"})
	require.NoError(t, err)
	stored := h.reloadThread(t1.ID)
	assert.Equal(t, int64(2), stored.ReplyCount)
	require.NotNil(t, stored.LastReplyBy)
	assert.Equal(t, b.ID, *stored.LastReplyBy)

	_, err = h.moderation.Lock(ctx, m.ID, t1.ID)
	require.NoError(t, err)
	for _, author := range []uint{a.ID, b.ID, m.ID} {
		_, err = h.threads.CreatePost(ctx, CreatePostInput{AuthorID: author, ThreadID: t1.ID, Content: "too late"})
		assert.True(t, models.IsCode(err, models.CodeConflict), "post by %d after lock", author)
	}
	assert.Equal(t, int64(2), h.reloadThread(t1.ID).ReplyCount)

	out, err := h.likes.ToggleLike(ctx, b.ID, opening.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Liked, out.Result)
	assert.Equal(t, int64(1), out.LikeCount)
	h.assertLikeInvariant(opening.ID)
	h.assertReplyInvariant(t1.ID)

	unread := h.unread(a.ID)
	assert.Equal(t, 1, countKind(unread, models.NotificationReply))
	assert.Equal(t, 1, countKind(unread, models.NotificationLike))
	assert.Equal(t, 1, countKind(unread, models.NotificationModerationAction))

	again := h.unread(a.ID)
	assert.Len(t, again, len(unread), "re-draining never duplicates")
}
