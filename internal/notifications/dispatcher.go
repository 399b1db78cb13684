package notifications

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"forum/internal/featureflags"
	"forum/internal/middleware"
	"forum/internal/models"
	"forum/internal/observability"
	"forum/internal/repository"

	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// Event is a notification produced by a committed mutation.
type Event struct {
	RecipientID uint
	Kind        models.NotificationKind
	SubjectType models.SubjectType
	SubjectID   uint
	// ActorID is the profile that caused the event; zero for system events.
	ActorID    uint
	Message    string
	OccurredAt time.Time
}

func (e Event) selfInflicted() bool {
	return e.ActorID != 0 && e.ActorID == e.RecipientID
}

// Options configures a Dispatcher.
type Options struct {
	DedupeWindow time.Duration
	BatchSize    int
	PollInterval time.Duration
	Flags        *featureflags.Manager
	Notifier     *Notifier
	Now          func() time.Time
}

// Dispatcher records notification events. Mutations enqueue events into the
// outbox inside their own transaction; Drain turns outbox rows into stored,
// deduplicated notifications.
type Dispatcher struct {
	runner        *repository.Runner
	notifications repository.NotificationRepository
	outbox        repository.OutboxRepository
	opts          Options
	wake          chan struct{}
}

// NewDispatcher creates a Dispatcher over the runner's database.
func NewDispatcher(runner *repository.Runner, opts Options) *Dispatcher {
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = 5 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		runner:        runner,
		notifications: repository.NewNotificationRepository(runner.DB()),
		outbox:        repository.NewOutboxRepository(runner.DB()),
		opts:          opts,
		wake:          make(chan struct{}, 1),
	}
}

// DedupeKey identifies events that collapse into one unread notification:
// same recipient, kind and subject within the same window-aligned bucket.
func DedupeKey(e Event, window time.Duration) string {
	bucket := e.OccurredAt.UTC().Truncate(window).Unix()

	h, _ := blake2b.New256(nil)
	var buf [8]byte
	for _, v := range []uint64{uint64(e.RecipientID), uint64(e.SubjectID), uint64(bucket)} {
		binary.BigEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	_, _ = h.Write([]byte(e.Kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(e.SubjectType))
	return hex.EncodeToString(h.Sum(nil))
}

// Enqueue writes events into the outbox through tx so they commit or roll
// back with the mutation that produced them. Events addressed to nobody or
// to their own actor are dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, tx *gorm.DB, events ...Event) error {
	rows := make([]*models.NotificationOutbox, 0, len(events))
	for _, e := range events {
		if e.RecipientID == 0 || e.selfInflicted() {
			continue
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = d.opts.Now()
		}
		rows = append(rows, &models.NotificationOutbox{
			RecipientID: e.RecipientID,
			Kind:        e.Kind,
			SubjectType: e.SubjectType,
			SubjectID:   e.SubjectID,
			ActorID:     actorRef(e.ActorID),
			Message:     e.Message,
			OccurredAt:  e.OccurredAt.UTC(),
			CreatedAt:   d.opts.Now(),
		})
	}
	return d.outbox.WithTx(tx).Enqueue(ctx, rows)
}

// Wake asks the local drain loop, and any dispatcher subscribed through
// Redis, to drain the outbox now.
func (d *Dispatcher) Wake(ctx context.Context) {
	d.signal()
	if err := d.opts.Notifier.PublishWake(ctx); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish outbox wake", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Emit stores one event immediately. It reports false when the event was
// dropped or collapsed into an existing unread notification.
func (d *Dispatcher) Emit(ctx context.Context, e Event) (bool, error) {
	if e.RecipientID == 0 {
		return false, models.NewValidationError("notification recipient is required")
	}
	var created *models.Notification
	err := d.runner.Do(ctx, "notification.emit", func(tx *gorm.DB) error {
		var err error
		created, err = d.store(ctx, tx, e)
		return err
	})
	if err != nil {
		return false, err
	}
	if created != nil {
		d.announce(ctx, created)
	}
	return created != nil, nil
}

func (d *Dispatcher) store(ctx context.Context, tx *gorm.DB, e Event) (*models.Notification, error) {
	if e.selfInflicted() {
		observability.NotificationsEmitted.WithLabelValues(string(e.Kind), "skipped").Inc()
		return nil, nil
	}
	if !d.opts.Flags.AllowsNotification(e.Kind, e.RecipientID) {
		observability.NotificationsEmitted.WithLabelValues(string(e.Kind), "disabled").Inc()
		return nil, nil
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = d.opts.Now()
	}

	n := &models.Notification{
		RecipientID: e.RecipientID,
		Kind:        e.Kind,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		ActorID:     actorRef(e.ActorID),
		Message:     e.Message,
		DedupeKey:   DedupeKey(e, d.opts.DedupeWindow),
		CreatedAt:   e.OccurredAt.UTC(),
	}
	inserted, err := d.notifications.WithTx(tx).Insert(ctx, n)
	if err != nil {
		return nil, err
	}
	if !inserted {
		observability.NotificationsEmitted.WithLabelValues(string(e.Kind), "deduped").Inc()
		return nil, nil
	}
	observability.NotificationsEmitted.WithLabelValues(string(e.Kind), "created").Inc()
	return n, nil
}

func (d *Dispatcher) announce(ctx context.Context, n *models.Notification) {
	if err := d.opts.Notifier.PublishCreated(ctx, n); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish notification",
			slog.Uint64("recipient_id", uint64(n.RecipientID)),
			slog.String("error", err.Error()),
		)
	}
}

// Drain emits outbox rows in batches until the outbox is empty and returns
// how many rows it processed. Each batch is claimed, emitted and removed in
// one transaction.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		var (
			claimed int
			created []*models.Notification
		)
		err := d.runner.Do(ctx, "notification.drain", func(tx *gorm.DB) error {
			claimed, created = 0, created[:0]
			rows, err := d.outbox.WithTx(tx).Claim(ctx, d.opts.BatchSize)
			if err != nil {
				return err
			}
			ids := make([]uint, 0, len(rows))
			for _, row := range rows {
				n, err := d.store(ctx, tx, eventFromOutbox(row))
				if err != nil {
					return err
				}
				if n != nil {
					created = append(created, n)
				}
				ids = append(ids, row.ID)
			}
			claimed = len(rows)
			return d.outbox.WithTx(tx).Delete(ctx, ids)
		})
		if err != nil {
			return total, err
		}

		total += claimed
		observability.OutboxDrained.Add(float64(claimed))
		for _, n := range created {
			d.announce(ctx, n)
		}
		if claimed < d.opts.BatchSize {
			break
		}
	}

	if backlog, err := d.outbox.Count(ctx); err == nil {
		observability.OutboxBacklog.Set(float64(backlog))
	}
	return total, nil
}

// Run drains the outbox on every poll tick and wake-up until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	if err := d.opts.Notifier.StartWakeSubscriber(ctx, d.signal); err != nil {
		middleware.Logger.Warn("outbox wake subscription unavailable, polling only", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		if n, err := d.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			middleware.Logger.Error("outbox drain failed", slog.String("error", err.Error()))
		} else if n > 0 {
			middleware.Logger.Debug("outbox drained", slog.Int("rows", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// MarkRead marks one of the recipient's notifications as read. Unknown ids
// and ids owned by another profile are ignored.
func (d *Dispatcher) MarkRead(ctx context.Context, recipientID, id uint) error {
	return d.runner.Do(ctx, "notification.mark_read", func(tx *gorm.DB) error {
		_, err := d.notifications.WithTx(tx).MarkRead(ctx, recipientID, id, d.opts.Now())
		return err
	})
}

// MarkAllRead marks every unread notification of the recipient as read and
// returns how many changed.
func (d *Dispatcher) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	var n int64
	err := d.runner.Do(ctx, "notification.mark_all_read", func(tx *gorm.DB) error {
		var err error
		n, err = d.notifications.WithTx(tx).MarkAllRead(ctx, recipientID, d.opts.Now())
		return err
	})
	return n, err
}

// Delete removes one of the recipient's notifications. Unknown ids and ids
// owned by another profile are ignored.
func (d *Dispatcher) Delete(ctx context.Context, recipientID, id uint) error {
	return d.runner.Do(ctx, "notification.delete", func(tx *gorm.DB) error {
		_, err := d.notifications.WithTx(tx).Delete(ctx, recipientID, id)
		return err
	})
}

// ListUnread returns the recipient's unread notifications newest first.
func (d *Dispatcher) ListUnread(ctx context.Context, recipientID uint, limit, offset int) ([]*models.Notification, error) {
	return d.notifications.List(ctx, recipientID, true, limit, offset)
}

// ListAll returns the recipient's notifications newest first.
func (d *Dispatcher) ListAll(ctx context.Context, recipientID uint, limit, offset int) ([]*models.Notification, error) {
	return d.notifications.List(ctx, recipientID, false, limit, offset)
}

func (d *Dispatcher) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	return d.notifications.CountUnread(ctx, recipientID)
}

func eventFromOutbox(row *models.NotificationOutbox) Event {
	e := Event{
		RecipientID: row.RecipientID,
		Kind:        row.Kind,
		SubjectType: row.SubjectType,
		SubjectID:   row.SubjectID,
		Message:     row.Message,
		OccurredAt:  row.OccurredAt,
	}
	if row.ActorID != nil {
		e.ActorID = *row.ActorID
	}
	return e
}

func actorRef(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}
