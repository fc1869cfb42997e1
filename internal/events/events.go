package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSyncing       = "syncing"
	EventSyncCompleted = "sync_completed"
	EventSyncError     = "sync_error"
	EventOpQueued      = "op_queued"
	EventOpFailed      = "op_failed"
	EventConnectivity  = "connectivity_changed"
)

// SyncErrorPayload reports a drain-level failure.
type SyncErrorPayload struct {
	Message string `json:"message"`
}

// OperationPayload describes one queued operation for event consumers.
type OperationPayload struct {
	OperationID string `json:"operation_id"`
	OpType      string `json:"op_type"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	Error       string `json:"error,omitempty"`
}

// ConnectivityPayload reports an online/offline transition.
type ConnectivityPayload struct {
	Online bool `json:"online"`
}

// Event represents a lightweight status event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      int64
	handler EventHandler
}

// EventBus provides in-process pub/sub for status events. Fan-out is
// synchronous and unbuffered; late subscribers miss prior events.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      int64
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for a given event type and returns a
// function that removes it.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, sub := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		_ = sub.handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
