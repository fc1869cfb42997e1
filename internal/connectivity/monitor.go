package connectivity

import (
	"sync"
	"sync/atomic"

	"opsync/internal/events"

	"github.com/rs/zerolog"
)

// Monitor tracks the process-wide online/offline state. It is an
// injectable object rather than a global so tests can drive transitions
// deterministically. The state is best-knowledge: a transport failure
// flips it to offline pessimistically, a successful probe flips it back.
type Monitor struct {
	online   atomic.Bool
	notifier *events.EventBus
	logger   *zerolog.Logger

	mu     sync.Mutex
	nextID int64
	subs   map[int64]func(online bool)
}

func NewMonitor(notifier *events.EventBus, logger *zerolog.Logger) *Monitor {
	m := &Monitor{
		notifier: notifier,
		logger:   logger,
		subs:     make(map[int64]func(bool)),
	}
	m.online.Store(true)
	return m
}

// Online reports the current best-knowledge connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records a connectivity restoration and notifies observers.
func (m *Monitor) SetOnline() {
	if m.online.CompareAndSwap(false, true) {
		m.logger.Info().Msg("connectivity restored")
		m.broadcast(true)
	}
}

// SetOffline records a connectivity loss and notifies observers.
func (m *Monitor) SetOffline() {
	if m.online.CompareAndSwap(true, false) {
		m.logger.Warn().Msg("connectivity lost")
		m.broadcast(false)
	}
}

// ReportFailure flips the state to offline after a connectivity-classed
// transport failure. This is a heuristic: the next probe or direct call
// self-corrects the state.
func (m *Monitor) ReportFailure() {
	m.SetOffline()
}

// OnChange registers a callback for online/offline transitions and
// returns a function that removes it. Callbacks run synchronously on the
// goroutine that triggered the transition.
func (m *Monitor) OnChange(fn func(online bool)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Monitor) broadcast(online bool) {
	m.mu.Lock()
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	if m.notifier != nil {
		_ = m.notifier.PublishJSON(events.EventConnectivity, events.ConnectivityPayload{Online: online})
	}
}
