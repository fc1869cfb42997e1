package models

import (
	"encoding/json"
	"time"
)

// OpStatus is the persisted lifecycle state of a queued operation.
// An operation is either waiting for replay or terminally failed;
// successful operations are deleted, not retained.
type OpStatus string

const (
	StatusPending OpStatus = "pending"
	StatusFailed  OpStatus = "failed"
)

// QueuedOperation is a deferred API call persisted locally because it
// could not be completed against the live backend at submission time.
type QueuedOperation struct {
	ID          string            `json:"id"`
	Type        OpType            `json:"type"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
	Status      OpStatus          `json:"status"`
	RetryCount  int               `json:"retry_count"`
	LastError   *string           `json:"last_error,omitempty"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
}

// SyncSummary is the outcome of one drain pass. Failed counts only
// operations that went terminal during the pass; items left pending for
// a later retry are counted in Total only.
type SyncSummary struct {
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Total     int  `json:"total"`
	Skipped   bool `json:"skipped,omitempty"`
}

// CacheEntry is a last-known-good read result.
type CacheEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EntitySnapshot holds an opaque per-entity blob (task drafts, checklist
// drafts) so a client can restore in-flight work after a restart.
type EntitySnapshot struct {
	EntityType string          `json:"entity_type"`
	EntityKey  string          `json:"entity_key"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
