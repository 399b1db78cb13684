package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ProfileKeyPrefix = "forum:profile:%d"
	CategoriesKey    = "forum:categories"
)

const (
	ProfileTTL    = 5 * time.Minute
	CategoriesTTL = 10 * time.Minute
)

func ProfileKey(userID uint) string {
	return fmt.Sprintf(ProfileKeyPrefix, userID)
}

// Invalidate deletes key. Failures only cost a stale read until the TTL expires.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}

// InvalidateProfiles drops the cached profiles of the given users.
func InvalidateProfiles(ctx context.Context, userIDs ...uint) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != 0 {
			keys = append(keys, ProfileKey(id))
		}
	}
	Invalidate(ctx, keys...)
}

// InvalidateCategories drops the cached category list.
func InvalidateCategories(ctx context.Context) {
	Invalidate(ctx, CategoriesKey)
}
