package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/clinicore/reminder-service/internal/model"
)

//go:generate mockgen -source=dispatcher.go -destination=../mocks/worker/mock.go -package=mocks

type reminderStore interface {
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Reminder, error)
}

type deliverer interface {
	Deliver(ctx context.Context, rem model.Reminder) error
}

type outcomeRecorder interface {
	MarkSent(ctx context.Context, strategy retry.Strategy, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error
}

// Dispatcher periodically claims due reminders and hands each one to the
// delivery worker.
//
// A compare-and-swap guard keeps at most one dispatch cycle in flight per
// process; a tick that fires while the previous cycle is still running exits
// without touching the store. The guard is process-local: running several
// instances of this service against one database needs an external lock.
type Dispatcher struct {
	store    reminderStore
	outcomes outcomeRecorder
	delivery deliverer
	strategy retry.Strategy

	interval     time.Duration
	batchSize    int
	claimTimeout time.Duration

	running atomic.Bool
	now     func() time.Time
}

// NewDispatcher creates a dispatcher claiming up to batchSize due reminders
// every interval. Claims older than claimTimeout count as abandoned and are
// returned to the pool at the start of the next cycle.
func NewDispatcher(
	store reminderStore,
	outcomes outcomeRecorder,
	delivery deliverer,
	strategy retry.Strategy,
	interval time.Duration,
	batchSize int,
	claimTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		store:        store,
		outcomes:     outcomes,
		delivery:     delivery,
		strategy:     strategy,
		interval:     interval,
		batchSize:    batchSize,
		claimTimeout: claimTimeout,
		now:          time.Now,
	}
}

// Run drives the dispatch loop on a fixed period and blocks until ctx is
// cancelled. A running cycle is drained before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	engine := cron.New()

	if _, err := engine.AddFunc(fmt.Sprintf("@every %s", d.interval), func() {
		d.Tick(ctx)
	}); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to register dispatch job")
	}

	engine.Start()
	zlog.Logger.Info().Dur("interval", d.interval).Int("batch_size", d.batchSize).Msg("dispatcher started")

	<-ctx.Done()

	stopCtx := engine.Stop()
	<-stopCtx.Done()
	zlog.Logger.Info().Msg("dispatcher stopped")
}

// Tick runs one dispatch cycle: release stale claims, claim a batch of due
// reminders, deliver each one and record its outcome. It returns the number
// of claimed records.
//
// A failure to release or claim aborts the whole cycle; the next tick
// retries from scratch. A failure to deliver one record marks that record
// failed and moves on to the rest of the batch. Context cancellation is not
// a delivery failure: the batch stops where it is and the interrupted
// claims are left for stale reclaim to return to the pool.
func (d *Dispatcher) Tick(ctx context.Context) int {
	if !d.running.CompareAndSwap(false, true) {
		zlog.Logger.Debug().Msg("previous dispatch cycle still running, skipping tick")
		return 0
	}
	defer d.running.Store(false)

	now := d.now()

	released, err := d.store.ReleaseStale(ctx, now.Add(-d.claimTimeout))
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to release stale claims")
		return 0
	}
	if released > 0 {
		zlog.Logger.Warn().Int64("count", released).Msg("released stale reminder claims back to pending")
	}

	batch, err := d.store.ClaimDue(ctx, now, d.batchSize)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to claim due reminders")
		return 0
	}

	if len(batch) == 0 {
		return 0
	}

	zlog.Logger.Info().Int("count", len(batch)).Msg("claimed due reminders")

	for _, rem := range batch {
		if err := d.delivery.Deliver(ctx, rem); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				zlog.Logger.Info().Str("reminder_id", rem.ID.String()).Msg("dispatch interrupted, leaving claimed reminders for stale reclaim")
				return len(batch)
			}

			zlog.Logger.Error().Err(err).Str("reminder_id", rem.ID.String()).Str("kind", string(rem.Kind)).Msg("reminder delivery failed")

			if markErr := d.outcomes.MarkFailed(ctx, d.strategy, rem.ID); markErr != nil {
				zlog.Logger.Error().Err(markErr).Str("reminder_id", rem.ID.String()).Msg("failed to record delivery failure")
			}
			continue
		}

		if err := d.outcomes.MarkSent(ctx, d.strategy, rem.ID, d.now()); err != nil {
			zlog.Logger.Error().Err(err).Str("reminder_id", rem.ID.String()).Msg("failed to record delivery success")
		}
	}

	return len(batch)
}
