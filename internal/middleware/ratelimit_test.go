package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRateLimiter_Check(t *testing.T) {
	t.Run("bypassed in test and development", func(t *testing.T) {
		for _, env := range []string{"test", "development", ""} {
			allowed, err := NewRateLimiter(nil, env).Check(context.Background(), "like", "user:1", 1, time.Minute)
			assert.NoError(t, err)
			assert.True(t, allowed, "env %q", env)
		}
	})

	t.Run("nil redis in production is an error", func(t *testing.T) {
		allowed, err := NewRateLimiter(nil, "production").Check(context.Background(), "like", "user:1", 1, time.Minute)
		assert.Error(t, err)
		assert.False(t, allowed)
	})

	t.Run("configured environment wins over the process environment", func(t *testing.T) {
		t.Setenv("APP_ENV", "")
		_, rdb := newTestRedis(t)
		limiter := NewRateLimiter(rdb, "production")

		allowed, err := limiter.Check(context.Background(), "search", "ip:1", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		allowed, err = limiter.Check(context.Background(), "search", "ip:1", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("counts within window and resets after expiry", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		limiter := NewRateLimiter(rdb, "production")
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			allowed, err := limiter.Check(ctx, "create_post", "user:9", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d should pass", i+1)
		}

		allowed, err := limiter.Check(ctx, "create_post", "user:9", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		assert.True(t, mr.TTL("rl:create_post:user:9") > 0)
		mr.FastForward(time.Minute + time.Second)

		allowed, err = limiter.Check(ctx, "create_post", "user:9", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("FailOpen with nil redis in production", func(t *testing.T) {
		app := fiber.New()
		app.Get("/test", NewRateLimiter(nil, "production").Limit(1, time.Minute), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("FailClosed with nil redis in production", func(t *testing.T) {
		app := fiber.New()
		app.Get("/sensitive", NewRateLimiter(nil, "production").LimitWithPolicy(1, time.Minute, FailClosed), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sensitive", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("keys by user and rejects past the limit", func(t *testing.T) {
		_, rdb := newTestRedis(t)

		app := fiber.New()
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("userID", uint(42))
			return c.Next()
		})
		app.Post("/like", NewRateLimiter(rdb, "production").Limit(2, time.Minute, "like"), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		statuses := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/like", nil))
			require.NoError(t, err)
			statuses = append(statuses, resp.StatusCode)
			_ = resp.Body.Close()
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

		n, err := rdb.Get(context.Background(), "rl:like:user:42").Int()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}
