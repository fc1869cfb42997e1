package intercept

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"opsync/internal/connectivity"
	"opsync/internal/domain"
	"opsync/internal/events"
	"opsync/internal/metrics"
	"opsync/internal/models"
	"opsync/internal/transport"

	"github.com/rs/zerolog"
)

// ErrOffline is returned for a GET issued while offline with no cached
// value to serve.
var ErrOffline = errors.New("offline and no cached value available")

// Result is what callers of Execute receive. A queued operation is
// shaped like a success (202, Queued=true) so call sites that only check
// for a truthy outcome keep working without offline special-casing.
type Result struct {
	Status      int             `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Queued      bool            `json:"queued,omitempty"`
	OperationID string          `json:"operation_id,omitempty"`
	FromCache   bool            `json:"from_cache,omitempty"`
}

// Interceptor wraps every outbound operation. Connectivity failures of
// mutating calls divert into the durable queue; application failures
// propagate unchanged.
type Interceptor struct {
	transport domain.Transport
	queue     domain.OperationStore
	snapshots domain.SnapshotStore
	cache     domain.CacheRepository
	monitor   *connectivity.Monitor
	notifier  domain.EventPublisher
	logger    *zerolog.Logger
}

func New(
	t domain.Transport,
	queue domain.OperationStore,
	snapshots domain.SnapshotStore,
	cache domain.CacheRepository,
	monitor *connectivity.Monitor,
	notifier domain.EventPublisher,
	logger *zerolog.Logger,
) *Interceptor {
	return &Interceptor{
		transport: t,
		queue:     queue,
		snapshots: snapshots,
		cache:     cache,
		monitor:   monitor,
		notifier:  notifier,
		logger:    logger,
	}
}

// Execute performs one operation. When online it goes straight to the
// transport and the success path is indistinguishable from an
// un-intercepted call. Ambiguous failures classify as connectivity
// issues and queue rather than error: losing a completed maintenance
// task to a flaky connection is worse than a duplicate submission caught
// by server-side idempotency.
func (i *Interceptor) Execute(ctx context.Context, method, url string, payload json.RawMessage, headers map[string]string) (*Result, error) {
	method = strings.ToUpper(strings.TrimSpace(method))

	if !i.monitor.Online() {
		// Best current knowledge says the round trip is doomed; skip it.
		return i.divert(ctx, method, url, payload, headers, nil)
	}

	resp, err := i.transport.Do(ctx, method, url, payload, headers)
	if err == nil {
		if method == http.MethodGet {
			if cerr := i.cache.Put(ctx, cacheKey(method, url), resp.Body); cerr != nil {
				i.logger.Warn().Err(cerr).Str("url", url).Msg("cache write failed")
			}
		}
		return &Result{Status: resp.Status, Data: resp.Body}, nil
	}

	if !transport.IsConnectivity(err) {
		// A response was received; retrying a validation or auth error
		// would never succeed and masking it hides real bugs.
		return nil, err
	}

	i.monitor.ReportFailure()
	return i.divert(ctx, method, url, payload, headers, err)
}

// divert handles the offline path: GETs are served from the read cache,
// mutating verbs are persisted for replay. cause is the transport error
// that got us here, nil on the offline fast path.
func (i *Interceptor) divert(ctx context.Context, method, url string, payload json.RawMessage, headers map[string]string, cause error) (*Result, error) {
	if method == http.MethodGet {
		entry, err := i.cache.Get(ctx, cacheKey(method, url))
		if err != nil {
			i.logger.Warn().Err(err).Str("url", url).Msg("cache read failed")
		}
		if entry != nil {
			return &Result{Status: http.StatusOK, Data: entry.Value, FromCache: true}, nil
		}
		if cause != nil {
			return nil, cause
		}
		return nil, ErrOffline
	}

	op := &models.QueuedOperation{
		Type:    models.ClassifyOp(method, url),
		Method:  method,
		URL:     url,
		Payload: payload,
		Headers: headers,
	}
	if err := i.queue.Enqueue(ctx, op); err != nil {
		// Never claim "queued" when persistence failed; this must reach
		// the caller as a hard error.
		return nil, fmt.Errorf("queue operation while offline: %w", err)
	}

	i.saveSnapshot(ctx, op)

	metrics.IncEnqueued(string(op.Type))
	_ = i.notifier.PublishJSON(events.EventOpQueued, events.OperationPayload{
		OperationID: op.ID,
		OpType:      string(op.Type),
		Method:      op.Method,
		URL:         op.URL,
	})
	i.logger.Info().Str("op_id", op.ID).Str("op_type", string(op.Type)).Str("url", url).Msg("operation queued for replay")

	body, _ := json.Marshal(map[string]any{"queued": true, "operation_id": op.ID})
	return &Result{
		Status:      http.StatusAccepted,
		Data:        body,
		Queued:      true,
		OperationID: op.ID,
	}, nil
}

// saveSnapshot keeps the latest offline payload per entity so a client
// can restore drafts after restart. Best effort; the queued operation is
// the durable source of truth.
func (i *Interceptor) saveSnapshot(ctx context.Context, op *models.QueuedOperation) {
	if i.snapshots == nil || len(op.Payload) == 0 {
		return
	}
	if err := i.snapshots.SaveSnapshot(ctx, op.Type.EntityType(), op.URL, op.Payload); err != nil {
		i.logger.Warn().Err(err).Str("op_id", op.ID).Msg("snapshot write failed")
	}
}

func cacheKey(method, url string) string {
	return method + " " + url
}
