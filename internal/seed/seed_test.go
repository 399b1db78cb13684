package seed

import (
	"context"
	"testing"

	"forum/internal/models"
	"forum/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInCategories(t *testing.T) {
	categories, err := BuiltInCategories()
	require.NoError(t, err)
	require.NotEmpty(t, categories)

	for i, c := range categories {
		assert.NotEmpty(t, c.Slug)
		assert.True(t, c.IsActive, c.Slug)
		if i > 0 {
			assert.Greater(t, c.SortOrder, categories[i-1].SortOrder, "categories are listed in display order")
		}
	}
}

func TestParseCategories_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing slug": "- name: General\n",
		"duplicate":    "- slug: a\n  name: A\n- slug: a\n  name: B\n",
		"not a list":   "slug: a\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseCategories([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestCategories_Idempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, Categories(ctx, db))
	require.NoError(t, db.Model(&models.Category{}).Where("slug = ?", "general").Update("name", "Renamed").Error)
	require.NoError(t, Categories(ctx, db))

	want, err := BuiltInCategories()
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Category{}).Count(&count).Error)
	assert.Equal(t, int64(len(want)), count)

	var general models.Category
	require.NoError(t, db.Where("slug = ?", "general").First(&general).Error)
	assert.Equal(t, "General Discussion", general.Name, "seeding restores the reference name")
}

func TestDemo_KeepsCountersConsistent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, Categories(ctx, db))

	f := NewFactory(db, Options{Members: 5, Threads: 3, PostsPerThread: 4, LikesPerPost: 2, Seed: 7})
	summary, err := f.Demo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Members)
	assert.Equal(t, 3, summary.Threads)
	assert.Equal(t, 12, summary.Posts)
	assert.Equal(t, 24, summary.Likes)

	var threads []models.Thread
	require.NoError(t, db.Find(&threads).Error)
	for _, thread := range threads {
		var live int64
		require.NoError(t, db.Model(&models.Post{}).Where("thread_id = ? AND is_deleted = ?", thread.ID, false).Count(&live).Error)
		assert.Equal(t, live, thread.ReplyCount)
	}

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	for _, post := range posts {
		var likes int64
		require.NoError(t, db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&likes).Error)
		assert.Equal(t, likes, post.LikeCount)
	}

	var postCounts int64
	require.NoError(t, db.Model(&models.Profile{}).Select("COALESCE(SUM(post_count), 0)").Scan(&postCounts).Error)
	assert.Equal(t, int64(12), postCounts)

	var outbox int64
	require.NoError(t, db.Model(&models.NotificationOutbox{}).Count(&outbox).Error)
	assert.Zero(t, outbox, "demo drains the outbox")
}

func TestDemo_RequiresCategories(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewFactory(db, Options{Members: 1}).Demo(context.Background())
	assert.Error(t, err)
}
