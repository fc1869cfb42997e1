package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"opsync/internal/config"
	"opsync/internal/domain"
	"opsync/internal/intercept"
	"opsync/internal/models"
	"opsync/internal/store"
	"opsync/internal/transport"

	"github.com/rs/zerolog"
)

// Executor is the interceptor surface the local proxy endpoint exposes
// to UI clients.
type Executor interface {
	Execute(ctx context.Context, method, url string, payload json.RawMessage, headers map[string]string) (*intercept.Result, error)
}

// HTTPServer exposes the operational surface of the sync core: the
// offline-first proxy for UI calls, queue visibility, manual drain
// triggers, and requeue of terminal operations.
type HTTPServer struct {
	cfg      config.APIConfig
	queue    domain.OperationStore
	syncer   domain.Syncer
	online   domain.ConnectivitySource
	executor Executor
	logger   *zerolog.Logger
	server   *http.Server
	auth     *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, queue domain.OperationStore, syncer domain.Syncer, online domain.ConnectivitySource, executor Executor, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, queue: queue, syncer: syncer, online: online, executor: executor, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/execute", srv.handleExecute)
	mux.HandleFunc("/api/v1/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/sync", srv.handleSync)
	mux.HandleFunc("/api/v1/queue/pending", srv.handlePending)
	mux.HandleFunc("/api/v1/queue/failed", srv.handleFailed)
	mux.HandleFunc("/api/v1/queue/failed/", srv.handleRetry)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("admin API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleExecute forwards one operation through the interceptor. UI
// callers use this instead of hitting the backend directly; when the
// backend is unreachable the response is the 202/queued placeholder.
func (s *HTTPServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Method  string            `json:"method"`
		URL     string            `json:"url"`
		Payload json.RawMessage   `json:"payload,omitempty"`
		Headers map[string]string `json:"headers,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Method == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "method and url are required")
		return
	}

	result, err := s.executor.Execute(r.Context(), req.Method, req.URL, req.Payload, req.Headers)
	if err != nil {
		if status, ok := transport.StatusCode(err); ok {
			writeError(w, status, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, result.Status, result)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pending, err := s.queue.CountPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}

	resp := map[string]any{
		"online":  s.online.Online(),
		"pending": pending,
	}
	if last := s.syncer.LastSummary(); last != nil {
		resp["last_sync"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Detach from the request context so a client disconnect does not
	// abort a drain that is already replaying operations.
	summary, err := s.syncer.Sync(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("sync failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ops, err := s.queue.ListPending(r.Context(), models.DefaultBatchSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pending operations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": opsOrEmpty(ops)})
}

func (s *HTTPServer) handleFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ops, err := s.queue.ListFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list failed operations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": opsOrEmpty(ops)})
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/queue/failed/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	id, ok := strings.CutSuffix(rest, "/retry")
	id = strings.TrimSuffix(id, "/")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := s.queue.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no failed operation with that id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to requeue operation")
		return
	}

	s.logger.Info().Str("op_id", id).Msg("failed operation requeued manually")
	writeJSON(w, http.StatusOK, map[string]any{"requeued": id})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("admin API request")
	})
}

func opsOrEmpty(ops []models.QueuedOperation) []models.QueuedOperation {
	if ops == nil {
		return []models.QueuedOperation{}
	}
	return ops
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
