package domain

import (
	"context"
	"encoding/json"
	"time"

	"opsync/internal/models"
)

// OperationStore is the durable queue of deferred operations.
type OperationStore interface {
	Enqueue(ctx context.Context, op *models.QueuedOperation) error
	ListPending(ctx context.Context, limit int) ([]models.QueuedOperation, error)
	ListFailed(ctx context.Context) ([]models.QueuedOperation, error)
	GetOperation(ctx context.Context, id string) (*models.QueuedOperation, error)
	Remove(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, errMsg string, nextRetryAt *time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Requeue(ctx context.Context, id string) error
	CountPending(ctx context.Context) (int, error)
}

// SnapshotStore persists opaque per-entity blobs for draft recovery.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, entityType, entityKey string, data []byte) error
	GetSnapshot(ctx context.Context, entityType, entityKey string) (*models.EntitySnapshot, error)
	DeleteSnapshot(ctx context.Context, entityType, entityKey string) error
}

// CacheRepository stores last-known-good read results. Get returns
// (nil, nil) on a miss.
type CacheRepository interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Transport performs one HTTP-shaped operation against the active
// backend. Implementations must return a transport.ConnectivityError
// when no response was received and a transport.StatusError when the
// server answered with 4xx/5xx.
type Transport interface {
	Do(ctx context.Context, method, url string, payload json.RawMessage, headers map[string]string) (*Response, error)
}

// Response is a successful transport result.
type Response struct {
	Status int
	Body   json.RawMessage
}

// EventPublisher fans status events out to observers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Syncer drains the durable queue. Safe to call redundantly; a call
// during an active drain reports Skipped.
type Syncer interface {
	Sync(ctx context.Context) (models.SyncSummary, error)
	LastSummary() *models.SyncSummary
}

// ConnectivitySource exposes the current best-knowledge online state.
type ConnectivitySource interface {
	Online() bool
}
