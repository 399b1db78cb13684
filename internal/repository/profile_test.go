package repository

import (
	"context"
	"testing"

	"forum/internal/models"
	"forum/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRepository_LockStrength(t *testing.T) {
	tests := []struct {
		strength LockStrength
		suffix   string
	}{
		{ForShare, `FOR SHARE`},
		{ForUpdate, `FOR UPDATE`},
	}

	for _, tt := range tests {
		t.Run(string(tt.strength), func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewProfileRepository(db)

			mock.ExpectQuery(`SELECT \* FROM "profiles" WHERE "profiles"."id" = \$1 .*` + tt.suffix).
				WillReturnRows(sqlmock.NewRows([]string{"id", "role", "ban_state"}).AddRow(4, "moderator", "active"))

			p, err := repo.Lock(context.Background(), 4, tt.strength)
			require.NoError(t, err)
			assert.True(t, p.Standing().CanModerate())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestProfileRepository_CreateDuplicateIsConflict(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewProfileRepository(db)
	testutil.CreateProfile(t, db, 1, "alice")

	err := repo.Create(context.Background(), &models.Profile{ID: 1, Username: "alice2", Role: models.RoleMember, BanState: models.BanStateActive})
	assert.True(t, models.IsCode(err, models.CodeConflict))
}

func TestProfileRepository_StandingAndCounters(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(db)
	testutil.CreateProfile(t, db, 1, "alice")
	testutil.CreateProfile(t, db, 2, "bob")
	testutil.CreateProfile(t, db, 3, "carol")

	require.NoError(t, repo.SetStanding(ctx, 2, models.Standing{Role: models.RoleModerator, BanState: models.BanStateActive}))
	require.NoError(t, repo.SetStanding(ctx, 3, models.Standing{Role: models.RoleMember, BanState: models.BanStateBanned}))
	assert.True(t, models.IsCode(repo.SetStanding(ctx, 99, models.Standing{Role: models.RoleMember, BanState: models.BanStateActive}), models.CodeNotFound))

	require.NoError(t, repo.IncrementPostCount(ctx, 1))
	require.NoError(t, repo.AdjustReputation(ctx, 1, 5))
	require.NoError(t, repo.AdjustReputation(ctx, 2, 2))

	members, banned, moderators, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), members)
	assert.Equal(t, int64(1), banned)
	assert.Equal(t, int64(1), moderators)

	listed, err := repo.ListMembers(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, uint(1), listed[0].ID)
	assert.Equal(t, int64(1), listed[0].PostCount)

	found, err := repo.Search(ctx, "BO", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bob", found[0].Username)
}

func TestCategoryRepository_ListCountsVisibleThreads(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	repo := NewCategoryRepository(db)
	author := testutil.CreateProfile(t, db, 1, "alice")

	require.NoError(t, repo.Upsert(ctx, &models.Category{Slug: "b", Name: "B", SortOrder: 2, IsActive: true}))
	require.NoError(t, repo.Upsert(ctx, &models.Category{Slug: "a", Name: "A", SortOrder: 1, IsActive: true}))
	require.NoError(t, repo.Upsert(ctx, &models.Category{Slug: "a", Name: "Renamed", SortOrder: 1, IsActive: true}))

	a, err := repo.GetBySlug(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", a.Name)

	testutil.CreateThread(t, db, a.ID, author.ID, "one")
	gone := testutil.CreateThread(t, db, a.ID, author.ID, "two")
	require.NoError(t, db.Model(gone).Update("is_deleted", true).Error)

	categories, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "a", categories[0].Slug)
	assert.Equal(t, int64(1), categories[0].ThreadCount)
	assert.Zero(t, categories[1].ThreadCount)

	_, err = repo.GetBySlug(ctx, "missing")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
