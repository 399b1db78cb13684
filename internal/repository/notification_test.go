package repository

import (
	"context"
	"testing"
	"time"

	"forum/internal/models"
	"forum/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotification(recipient uint, key string, at time.Time) *models.Notification {
	return &models.Notification{
		RecipientID: recipient,
		Kind:        models.NotificationReply,
		SubjectType: models.SubjectThread,
		SubjectID:   1,
		DedupeKey:   key,
		CreatedAt:   at,
	}
}

func TestNotificationRepository_DedupeOnlyWhileUnread(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	first := newNotification(1, "k1", now)
	created, err := repo.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Insert(ctx, newNotification(1, "k1", now))
	require.NoError(t, err)
	assert.False(t, created)

	n, err := repo.MarkRead(ctx, 1, first.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	created, err = repo.Insert(ctx, newNotification(1, "k1", now))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestNotificationRepository_ScopedToRecipient(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	mine := newNotification(1, "a", now)
	_, err := repo.Insert(ctx, mine)
	require.NoError(t, err)

	n, err := repo.MarkRead(ctx, 2, mine.ID, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.Delete(ctx, 2, mine.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	unread, err := repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	n, err = repo.Delete(ctx, 1, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNotificationRepository_ListNewestFirst(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	base := time.Now().UTC()

	for i, key := range []string{"a", "b", "c"} {
		_, err := repo.Insert(ctx, newNotification(1, key, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, 1, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].DedupeKey)
	assert.Equal(t, "a", all[2].DedupeKey)

	n, err := repo.MarkAllRead(ctx, 1, base)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	unread, err := repo.List(ctx, 1, true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestOutboxRepository_ClaimSkipsLockedRows(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "notification_outbox" ORDER BY id ASC LIMIT \$1 FOR UPDATE SKIP LOCKED`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_id"}).AddRow(1, 7))

	rows, err := repo.Claim(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(7), rows[0].RecipientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_EnqueueClaimDelete(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewOutboxRepository(db)
	now := time.Now().UTC()

	require.NoError(t, repo.Enqueue(ctx, []*models.NotificationOutbox{
		{RecipientID: 1, Kind: models.NotificationReply, SubjectType: models.SubjectThread, SubjectID: 1, OccurredAt: now},
		{RecipientID: 2, Kind: models.NotificationLike, SubjectType: models.SubjectPost, SubjectID: 9, OccurredAt: now},
	}))
	require.NoError(t, repo.Enqueue(ctx, nil))

	rows, err := repo.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(1), rows[0].RecipientID)

	require.NoError(t, repo.Delete(ctx, []uint{rows[0].ID}))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
