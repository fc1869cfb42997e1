package intercept

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"opsync/internal/connectivity"
	"opsync/internal/domain"
	"opsync/internal/events"
	"opsync/internal/models"
	"opsync/internal/repository"
	"opsync/internal/store"
	"opsync/internal/transport"

	"github.com/rs/zerolog"
)

type scriptedTransport struct {
	calls int
	err   error
	body  []byte
}

func (f *scriptedTransport) Do(ctx context.Context, method, url string, payload json.RawMessage, headers map[string]string) (*domain.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	body := f.body
	if body == nil {
		body = []byte(`{"ok":true}`)
	}
	return &domain.Response{Status: 200, Body: body}, nil
}

func newTestInterceptor(t *testing.T, ft *scriptedTransport) (*Interceptor, *store.Store, *connectivity.Monitor) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "intercept.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	logger := zerolog.Nop()
	bus := events.NewEventBus()
	monitor := connectivity.NewMonitor(bus, &logger)
	cache := repository.NewTieredCache(repository.NewMemoryCache(0), repository.NewDurableCache(s), &logger)
	return New(ft, s, s, cache, monitor, bus, &logger), s, monitor
}

func connErr() error {
	return &transport.ConnectivityError{Op: "POST /x", Err: errors.New("dial refused")}
}

func TestExecuteOnlinePassthrough(t *testing.T) {
	ft := &scriptedTransport{body: []byte(`{"id":5}`)}
	ic, s, _ := newTestInterceptor(t, ft)

	res, err := ic.Execute(context.Background(), "post", "/api/tasks", []byte(`{"title":"pm"}`), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != 200 || res.Queued || res.FromCache {
		t.Fatalf("expected transparent success, got %+v", res)
	}
	if string(res.Data) != `{"id":5}` {
		t.Fatalf("unexpected body: %s", res.Data)
	}

	pending, _ := s.ListPending(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("nothing should be queued on success")
	}
}

func TestConnectivityFailureQueuesOperation(t *testing.T) {
	ft := &scriptedTransport{err: connErr()}
	ic, s, monitor := newTestInterceptor(t, ft)

	res, err := ic.Execute(context.Background(), "POST", "/api/tasks/5/start", []byte(`{"worker":7}`), map[string]string{"X-Org": "acme"})
	if err != nil {
		t.Fatalf("execute should not error on connectivity failure: %v", err)
	}
	if res.Status != http.StatusAccepted || !res.Queued || res.OperationID == "" {
		t.Fatalf("expected 202/queued result, got %+v", res)
	}

	var body map[string]any
	if err := json.Unmarshal(res.Data, &body); err != nil || body["queued"] != true {
		t.Fatalf("expected queued marker in body, got %s", res.Data)
	}

	pending, _ := s.ListPending(context.Background(), 10)
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued operation, got %d", len(pending))
	}
	op := pending[0]
	if op.Method != "POST" || op.URL != "/api/tasks/5/start" {
		t.Fatalf("unexpected queued op: %+v", op)
	}
	if op.Type != models.OpTaskStart {
		t.Fatalf("expected task_start type, got %s", op.Type)
	}

	if monitor.Online() {
		t.Fatal("monitor should flip offline after a connectivity failure")
	}

	snap, _ := s.GetSnapshot(context.Background(), "task", "/api/tasks/5/start")
	if snap == nil {
		t.Fatal("expected entity snapshot for queued operation")
	}
}

func TestApplicationFailurePropagatesUnqueued(t *testing.T) {
	ft := &scriptedTransport{err: &transport.StatusError{Status: 400, Body: []byte(`{"error":"bad"}`)}}
	ic, s, monitor := newTestInterceptor(t, ft)

	_, err := ic.Execute(context.Background(), "POST", "/api/tasks", []byte(`{}`), nil)
	if err == nil {
		t.Fatal("expected application failure to propagate")
	}
	if status, ok := transport.StatusCode(err); !ok || status != 400 {
		t.Fatalf("expected status 400 in error, got %v", err)
	}

	pending, _ := s.ListPending(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatal("application failures must never be queued")
	}
	if !monitor.Online() {
		t.Fatal("application failure must not flip connectivity state")
	}
}

func TestOfflineFastPathSkipsTransport(t *testing.T) {
	ft := &scriptedTransport{}
	ic, s, monitor := newTestInterceptor(t, ft)
	monitor.SetOffline()

	res, err := ic.Execute(context.Background(), "PUT", "/api/inventory/parts/3", []byte(`{"qty":4}`), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Queued {
		t.Fatalf("expected queued result, got %+v", res)
	}
	if ft.calls != 0 {
		t.Fatalf("transport must not be attempted while offline, got %d calls", ft.calls)
	}

	pending, _ := s.ListPending(context.Background(), 10)
	if len(pending) != 1 || pending[0].Type != models.OpInventoryUpdate {
		t.Fatalf("unexpected queue contents: %+v", pending)
	}
}

func TestOfflineGETServedFromCache(t *testing.T) {
	ft := &scriptedTransport{body: []byte(`[{"id":1}]`)}
	ic, _, monitor := newTestInterceptor(t, ft)
	ctx := context.Background()

	// Online GET primes the cache.
	if _, err := ic.Execute(ctx, "GET", "/api/tasks", nil, nil); err != nil {
		t.Fatalf("online get: %v", err)
	}

	monitor.SetOffline()

	res, err := ic.Execute(ctx, "GET", "/api/tasks", nil, nil)
	if err != nil {
		t.Fatalf("offline get: %v", err)
	}
	if !res.FromCache || res.Status != 200 {
		t.Fatalf("expected cached result, got %+v", res)
	}
	if string(res.Data) != `[{"id":1}]` {
		t.Fatalf("unexpected cached body: %s", res.Data)
	}

	// A GET with no cached value is a hard miss.
	if _, err := ic.Execute(ctx, "GET", "/api/never-seen", nil, nil); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
}

type brokenQueue struct {
	domain.OperationStore
}

func (b *brokenQueue) Enqueue(ctx context.Context, op *models.QueuedOperation) error {
	return errors.New("storage denied")
}

func TestEnqueueFailureIsLoud(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewEventBus()
	monitor := connectivity.NewMonitor(bus, &logger)
	monitor.SetOffline()
	cache := repository.NewMemoryCache(time.Minute)

	ic := New(&scriptedTransport{}, &brokenQueue{}, nil, cache, monitor, bus, &logger)

	res, err := ic.Execute(context.Background(), "POST", "/api/tasks/5/complete", []byte(`{}`), nil)
	if err == nil {
		t.Fatal("expected hard error when the queue cannot persist")
	}
	if res != nil {
		t.Fatalf("must not pretend the operation was queued: %+v", res)
	}
}
