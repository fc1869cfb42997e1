package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"opsync/internal/connectivity"
	"opsync/internal/domain"
	"opsync/internal/events"
	"opsync/internal/metrics"
	"opsync/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Engine drains the durable queue against the live backend. Exactly one
// drain runs at a time; redundant Sync calls from the schedule, the
// connectivity monitor or the admin API report Skipped and return.
type Engine struct {
	store     domain.OperationStore
	transport domain.Transport
	monitor   *connectivity.Monitor
	notifier  domain.EventPublisher
	retry     RetryPolicy
	batchSize int
	schedule  string
	logger    *zerolog.Logger

	syncing atomic.Bool

	mu          sync.Mutex
	lastSummary *models.SyncSummary
}

func New(
	store domain.OperationStore,
	t domain.Transport,
	monitor *connectivity.Monitor,
	notifier domain.EventPublisher,
	retry RetryPolicy,
	batchSize int,
	schedule string,
	logger *zerolog.Logger,
) *Engine {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = models.DefaultMaxRetries
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if batchSize <= 0 {
		batchSize = models.DefaultBatchSize
	}
	if schedule == "" {
		schedule = models.DefaultSyncSchedule
	}

	return &Engine{
		store:     store,
		transport: t,
		monitor:   monitor,
		notifier:  notifier,
		retry:     retry,
		batchSize: batchSize,
		schedule:  schedule,
		logger:    logger,
	}
}

// Sync runs one drain pass over the pending snapshot taken at start.
// Items enqueued during the pass wait for the next trigger. A call while
// a drain is active, or while offline, is a no-op reporting Skipped.
func (e *Engine) Sync(ctx context.Context) (models.SyncSummary, error) {
	if !e.monitor.Online() {
		return models.SyncSummary{Skipped: true}, nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return models.SyncSummary{Skipped: true}, nil
	}
	// The flag must always be released, or every future drain deadlocks.
	defer e.syncing.Store(false)

	_ = e.notifier.PublishJSON(events.EventSyncing, struct{}{})

	ops, err := e.store.ListPending(ctx, e.batchSize)
	if err != nil {
		return e.abort(fmt.Errorf("read pending queue: %w", err))
	}

	summary := models.SyncSummary{Total: len(ops)}
	for idx := range ops {
		if ctx.Err() != nil {
			return e.abort(ctx.Err())
		}
		if err := e.replay(ctx, &ops[idx], &summary); err != nil {
			return e.abort(err)
		}
	}

	e.finish(ctx, summary)
	return summary, nil
}

// replay attempts one operation. Transport failures are per-item
// outcomes (retry or terminal); a storage error is drain-level and
// propagates to abort the pass.
func (e *Engine) replay(ctx context.Context, op *models.QueuedOperation, summary *models.SyncSummary) error {
	_, err := e.transport.Do(ctx, op.Method, op.URL, op.Payload, op.Headers)
	if err == nil {
		if rerr := e.store.Remove(ctx, op.ID); rerr != nil {
			return fmt.Errorf("remove replayed operation %s: %w", op.ID, rerr)
		}
		summary.Succeeded++
		metrics.IncReplayed()
		e.logger.Info().Str("op_id", op.ID).Str("op_type", string(op.Type)).Msg("operation replayed")
		return nil
	}

	attempt := op.RetryCount + 1
	if attempt >= e.retry.MaxRetries {
		if serr := e.store.MarkFailed(ctx, op.ID, err.Error()); serr != nil {
			return fmt.Errorf("mark operation %s failed: %w", op.ID, serr)
		}
		summary.Failed++
		metrics.IncFailed()
		_ = e.notifier.PublishJSON(events.EventOpFailed, events.OperationPayload{
			OperationID: op.ID,
			OpType:      string(op.Type),
			Method:      op.Method,
			URL:         op.URL,
			Error:       err.Error(),
		})
		e.logger.Error().Str("op_id", op.ID).Err(err).Int("attempts", attempt).Msg("operation exhausted retries")
		return nil
	}

	// Stored timestamps are UTC throughout; sqlite compares the DATETIME
	// text, so a zone-bearing value would shift the eligibility window.
	next := time.Now().UTC().Add(e.retry.NextDelay(attempt))
	if serr := e.store.RecordFailure(ctx, op.ID, err.Error(), &next); serr != nil {
		return fmt.Errorf("record failure for operation %s: %w", op.ID, serr)
	}
	e.logger.Warn().Str("op_id", op.ID).Err(err).Int("attempt", attempt).Time("next_retry_at", next).Msg("replay failed, will retry")
	return nil
}

func (e *Engine) finish(ctx context.Context, summary models.SyncSummary) {
	e.mu.Lock()
	s := summary
	e.lastSummary = &s
	e.mu.Unlock()

	metrics.IncDrain("completed")
	if pending, err := e.store.CountPending(ctx); err == nil {
		metrics.SetQueuePending(pending)
	}

	_ = e.notifier.PublishJSON(events.EventSyncCompleted, summary)
	e.logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("total", summary.Total).
		Msg("drain completed")
}

// abort releases the pass after a drain-level error. The queue's
// persisted contents are unaffected, so the next trigger retries
// cleanly.
func (e *Engine) abort(err error) (models.SyncSummary, error) {
	metrics.IncDrain("error")
	_ = e.notifier.PublishJSON(events.EventSyncError, events.SyncErrorPayload{Message: err.Error()})
	e.logger.Error().Err(err).Msg("drain aborted")
	return models.SyncSummary{}, err
}

// LastSummary returns the outcome of the most recent completed drain.
func (e *Engine) LastSummary() *models.SyncSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastSummary == nil {
		return nil
	}
	s := *e.lastSummary
	return &s
}

// Start schedules periodic drains and subscribes to connectivity
// restoration. Blocks until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	unsubscribe := e.monitor.OnChange(func(online bool) {
		if online {
			// Fire-and-forget: the transition handler must not block.
			go e.drain(ctx)
		}
	})
	defer unsubscribe()

	c := cron.New()
	if _, err := c.AddFunc(e.schedule, func() { e.drain(ctx) }); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", e.schedule, err)
	}
	c.Start()
	e.logger.Info().Str("schedule", e.schedule).Msg("sync engine started")

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	e.logger.Info().Msg("sync engine stopped")
	return nil
}

func (e *Engine) drain(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	summary, err := e.Sync(ctx)
	if err != nil {
		return
	}
	if summary.Skipped {
		metrics.IncDrain("skipped")
	}
}
