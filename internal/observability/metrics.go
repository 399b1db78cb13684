package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreTransactions counts store transactions by operation and outcome
	// (committed, replayed, rejected, failed).
	StoreTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_store_transactions_total",
		Help: "Store transactions by operation and outcome",
	}, []string{"operation", "outcome"})

	// StoreRetries counts retried store attempts after a transient failure.
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_store_retries_total",
		Help: "Store transaction attempts retried after a transient failure",
	}, []string{"operation"})

	// LikeToggles counts like toggles by result.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_like_toggles_total",
		Help: "Like toggles by result",
	}, []string{"result"})

	// ViewIncrements counts thread view increments.
	ViewIncrements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forum_thread_view_increments_total",
		Help: "Thread view increments",
	})

	// ModerationActions counts effective moderation transitions.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_moderation_actions_total",
		Help: "Moderation transitions by action and effect (applied, noop)",
	}, []string{"action", "effect"})

	// NotificationsEmitted counts notification emits by kind and outcome
	// (created, deduped).
	NotificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_notifications_emitted_total",
		Help: "Notification emits by kind and outcome",
	}, []string{"kind", "outcome"})

	// OutboxDrained counts outbox rows processed by the dispatcher.
	OutboxDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forum_notification_outbox_drained_total",
		Help: "Notification outbox rows processed",
	})

	// OutboxBacklog is the outbox size observed at the last drain.
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forum_notification_outbox_backlog",
		Help: "Notification outbox rows pending at the last drain",
	})
)
