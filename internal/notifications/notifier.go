// Package notifications stores notification events and delivers them
// through a transactional outbox.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"forum/internal/middleware"
	"forum/internal/models"

	"github.com/redis/go-redis/v9"
)

// WakeChannel is the Redis channel used to nudge outbox drainers on every
// instance after a commit enqueued events.
const WakeChannel = "forum:notifications:wake"

// Notifier publishes notification signals into Redis channels. A Notifier
// without a Redis client is a no-op.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// UserChannel returns the channel announcing new notifications for a profile.
func UserChannel(profileID uint) string {
	return fmt.Sprintf("forum:notifications:user:%d", profileID)
}

// PublishWake asks every subscribed dispatcher to drain the outbox.
func (n *Notifier) PublishWake(ctx context.Context) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, WakeChannel, "drain").Err()
}

// PublishCreated announces a stored notification on its recipient's channel.
func (n *Notifier) PublishCreated(ctx context.Context, notification *models.Notification) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.rdb.Publish(ctx, UserChannel(notification.RecipientID), string(payload)).Err()
}

// StartWakeSubscriber subscribes to WakeChannel and calls onWake for every
// message until ctx is cancelled.
func (n *Notifier) StartWakeSubscriber(ctx context.Context, onWake func()) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, WakeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", WakeChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in wake subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onWake()
				}()
			}
		}
	}()

	return nil
}
