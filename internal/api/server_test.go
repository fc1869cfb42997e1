package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"opsync/internal/config"
	"opsync/internal/intercept"
	"opsync/internal/models"
	"opsync/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	summary models.SyncSummary
	last    *models.SyncSummary
	calls   int
	lastCtx context.Context
}

func (f *fakeSyncer) Sync(ctx context.Context) (models.SyncSummary, error) {
	f.calls++
	f.lastCtx = ctx
	return f.summary, nil
}

func (f *fakeSyncer) LastSummary() *models.SyncSummary { return f.last }

type fakeOnline struct{ online bool }

func (f *fakeOnline) Online() bool { return f.online }

type fakeExecutor struct {
	result *intercept.Result
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, method, url string, payload json.RawMessage, headers map[string]string) (*intercept.Result, error) {
	return f.result, f.err
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Port:    0,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "secret-key", Name: "dashboard"}},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 100},
	}
}

func newTestServer(t *testing.T, syncer *fakeSyncer, executor Executor) (*httptest.Server, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	logger := zerolog.Nop()
	srv := NewHTTPServer(testConfig(), s, syncer, &fakeOnline{online: true}, executor, &logger)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts, s
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("x-api-key", "secret-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestMissingAPIKeyRejected(t *testing.T) {
	ts, _ := newTestServer(t, &fakeSyncer{}, &fakeExecutor{})

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	syncer := &fakeSyncer{last: &models.SyncSummary{Succeeded: 3, Total: 3}}
	ts, s := newTestServer(t, syncer, &fakeExecutor{})

	require.NoError(t, s.Enqueue(context.Background(), &models.QueuedOperation{Type: models.OpUnknown, Method: "POST", URL: "/x"}))

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/status", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Online   bool                `json:"online"`
		Pending  int                 `json:"pending"`
		LastSync *models.SyncSummary `json:"last_sync"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Online)
	assert.Equal(t, 1, body.Pending)
	require.NotNil(t, body.LastSync)
	assert.Equal(t, 3, body.LastSync.Succeeded)
}

func TestManualSyncTrigger(t *testing.T) {
	syncer := &fakeSyncer{summary: models.SyncSummary{Succeeded: 2, Total: 2}}
	ts, _ := newTestServer(t, syncer, &fakeExecutor{})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/sync", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, syncer.calls)

	var summary models.SyncSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 2, summary.Succeeded)
}

func TestManualSyncSurvivesClientDisconnect(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	syncer := &fakeSyncer{summary: models.SyncSummary{Succeeded: 1, Total: 1}}
	logger := zerolog.Nop()
	srv := NewHTTPServer(testConfig(), s, syncer, &fakeOnline{online: true}, &fakeExecutor{}, &logger)

	// Simulate a client that has already gone away.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSync(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, syncer.lastCtx)
	assert.NoError(t, syncer.lastCtx.Err(), "drain context must not inherit the request cancellation")
}

func TestPendingAndFailedListings(t *testing.T) {
	ts, s := newTestServer(t, &fakeSyncer{}, &fakeExecutor{})
	ctx := context.Background()

	op := &models.QueuedOperation{Type: models.OpTaskStart, Method: "POST", URL: "/api/tasks/5/start"}
	require.NoError(t, s.Enqueue(ctx, op))
	failedOp := &models.QueuedOperation{Type: models.OpUnknown, Method: "POST", URL: "/broken"}
	require.NoError(t, s.Enqueue(ctx, failedOp))
	require.NoError(t, s.MarkFailed(ctx, failedOp.ID, "exhausted"))

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/queue/pending", nil)
	defer resp.Body.Close()
	var pending struct {
		Operations []models.QueuedOperation `json:"operations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Len(t, pending.Operations, 1)
	assert.Equal(t, op.ID, pending.Operations[0].ID)

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/queue/failed", nil)
	defer resp.Body.Close()
	var failed struct {
		Operations []models.QueuedOperation `json:"operations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	require.Len(t, failed.Operations, 1)
	assert.Equal(t, failedOp.ID, failed.Operations[0].ID)
}

func TestRetryFailedOperation(t *testing.T) {
	ts, s := newTestServer(t, &fakeSyncer{}, &fakeExecutor{})
	ctx := context.Background()

	op := &models.QueuedOperation{Type: models.OpUnknown, Method: "POST", URL: "/broken"}
	require.NoError(t, s.Enqueue(ctx, op))
	require.NoError(t, s.MarkFailed(ctx, op.ID, "exhausted"))

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/queue/failed/"+op.ID+"/retry", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pending, err := s.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].RetryCount)

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/queue/failed/nope/retry", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteProxyReturnsQueuedResult(t *testing.T) {
	executor := &fakeExecutor{result: &intercept.Result{
		Status:      http.StatusAccepted,
		Queued:      true,
		OperationID: "123-abc",
	}}
	ts, _ := newTestServer(t, &fakeSyncer{}, executor)

	body, _ := json.Marshal(map[string]any{
		"method":  "POST",
		"url":     "/api/tasks/5/start",
		"payload": map[string]int{"worker": 7},
	})
	resp := doRequest(t, ts, http.MethodPost, "/api/v1/execute", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result intercept.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Queued)
	assert.Equal(t, "123-abc", result.OperationID)
}

func TestExecuteProxyValidatesInput(t *testing.T) {
	ts, _ := newTestServer(t, &fakeSyncer{}, &fakeExecutor{})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/execute", []byte(`{"method":"POST"}`))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitPerClient(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := testConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}

	logger := zerolog.Nop()
	srv := NewHTTPServer(cfg, s, &fakeSyncer{}, &fakeOnline{online: true}, &fakeExecutor{}, &logger)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	first := doRequest(t, ts, http.MethodGet, "/api/v1/status", nil)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := doRequest(t, ts, http.MethodGet, "/api/v1/status", nil)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}
