package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"forum/internal/middleware"
	"forum/internal/models"
	"forum/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RetryPolicy bounds how a Runner retries transient store failures.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy allows three attempts with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}
}

// Runner executes store transactions. Transient failures are retried with
// exponential backoff; every other failure is returned on the first attempt.
type Runner struct {
	db     *gorm.DB
	policy RetryPolicy

	// afterCommit runs once a transaction has committed; an error makes the
	// attempt look failed to the caller, as a dropped connection would.
	afterCommit func() error
}

// NewRunner creates a Runner over db.
func NewRunner(db *gorm.DB, policy RetryPolicy) *Runner {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}
	return &Runner{db: db, policy: policy}
}

// DB returns the underlying connection for non-transactional reads.
func (r *Runner) DB() *gorm.DB {
	return r.db
}

func (r *Runner) retryOptions(op string) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.StoreRetries.WithLabelValues(op).Inc()
			middleware.Logger.Warn("retrying store transaction",
				slog.String("operation", op),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()),
			)
		}),
	}
}

// Execute runs fn in a transaction that also records a receipt keyed by a
// token generated for this call. If an attempt fails in a way that leaves
// the commit outcome unknown, the next attempt first looks the token up and
// returns the recorded result instead of applying fn a second time.
func Execute[T any](ctx context.Context, r *Runner, op string, fn func(tx *gorm.DB) (T, error)) (T, error) {
	span, ctx := observability.StartStoreSpan(ctx, op)
	defer span.End()

	token := uuid.NewString()
	span.AddAttributes(observability.AttrReceipt.String(token))

	attempt := 0
	replayed := false
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		var zero T

		if attempt > 1 {
			prior, found, err := lookupReceipt[T](ctx, r.db, token)
			if err != nil {
				return zero, retryable(err)
			}
			if found {
				replayed = true
				return prior, nil
			}
		}

		var out T
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			v, err := fn(tx)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s receipt: %w", op, err)
			}
			receipt := models.OperationReceipt{
				Token:     token,
				Operation: op,
				Result:    string(payload),
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&receipt).Error; err != nil {
				return err
			}
			out = v
			return nil
		})
		if err != nil {
			return zero, retryable(err)
		}
		if r.afterCommit != nil {
			if err := r.afterCommit(); err != nil {
				return zero, retryable(err)
			}
		}
		return out, nil
	}, r.retryOptions(op)...)

	if err != nil {
		span.SetError(err)
		span.SetStoreOutcome(outcome(err), attempt)
		observability.StoreTransactions.WithLabelValues(op, outcome(err)).Inc()
		return result, surface(err)
	}
	status := "committed"
	if replayed {
		status = "replayed"
	}
	span.SetStoreOutcome(status, attempt)
	observability.StoreTransactions.WithLabelValues(op, status).Inc()
	return result, nil
}

// Do runs fn in a retried transaction without a receipt. fn must be
// naturally idempotent.
func (r *Runner) Do(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	span, ctx := observability.StartStoreSpan(ctx, op)
	defer span.End()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := r.db.WithContext(ctx).Transaction(fn)
		if err != nil {
			return struct{}{}, retryable(err)
		}
		return struct{}{}, nil
	}, r.retryOptions(op)...)

	if err != nil {
		span.SetError(err)
		span.SetStoreOutcome(outcome(err), attempt)
		observability.StoreTransactions.WithLabelValues(op, outcome(err)).Inc()
		return surface(err)
	}
	span.SetStoreOutcome("committed", attempt)
	observability.StoreTransactions.WithLabelValues(op, "committed").Inc()
	return nil
}

// PruneReceipts deletes receipts created before cutoff.
func (r *Runner) PruneReceipts(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.OperationReceipt{})
	return res.RowsAffected, res.Error
}

func lookupReceipt[T any](ctx context.Context, db *gorm.DB, token string) (T, bool, error) {
	var zero T
	var receipt models.OperationReceipt
	err := db.WithContext(ctx).Where("token = ?", token).Limit(1).Find(&receipt).Error
	if err != nil {
		return zero, false, err
	}
	if receipt.Token == "" {
		return zero, false, nil
	}

	var out T
	if err := json.Unmarshal([]byte(receipt.Result), &out); err != nil {
		return zero, false, fmt.Errorf("decode receipt %s: %w", token, err)
	}
	return out, true, nil
}

func retryable(err error) error {
	if IsTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}

func outcome(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return "rejected"
	}
	return "failed"
}

// surface converts a final failure into an AppError so callers always see
// an error kind.
func surface(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if IsTransient(err) || errors.Is(err, context.Canceled) {
		return models.NewTransientStoreError(err)
	}
	return models.NewInternalError(err)
}
