package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// RateLimiter enforces fixed-window request limits in Redis. Limits are
// skipped in the test and development environments.
type RateLimiter struct {
	rdb     *redis.Client
	enforce bool
}

// NewRateLimiter creates a RateLimiter for the configured environment.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "test", "development":
		return &RateLimiter{rdb: rdb}
	}
	return &RateLimiter{rdb: rdb, enforce: true}
}

// Check reports whether id may perform another resource action in the
// current window.
func (l *RateLimiter) Check(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, error) {
	if !l.enforce {
		return true, nil
	}
	if l.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return cnt <= int64(limit), nil
}

// Limit returns a Fiber middleware enforcing `limit` requests per `window`.
// It keys by authenticated userID when present, otherwise by remote IP.
func (l *RateLimiter) Limit(limit int, window time.Duration, name ...string) fiber.Handler {
	return l.LimitWithPolicy(limit, window, FailOpen, name...)
}

// LimitWithPolicy returns a Fiber middleware enforcing `limit` requests per `window` with a specific failure policy.
func (l *RateLimiter) LimitWithPolicy(limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if uid, ok := c.Locals("userID").(uint); ok {
			id = fmt.Sprintf("user:%d", uid)
		} else {
			id = "ip:" + c.IP()
		}

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		allowed, err := l.Check(c.UserContext(), resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
					slog.String("resource", resource),
					slog.String("error", err.Error()),
				)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
