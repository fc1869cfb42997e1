package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"opsync/internal/events"

	"github.com/rs/zerolog"
)

func newTestMonitor() (*Monitor, *events.EventBus) {
	logger := zerolog.Nop()
	bus := events.NewEventBus()
	return NewMonitor(bus, &logger), bus
}

func TestMonitorStartsOnline(t *testing.T) {
	m, _ := newTestMonitor()
	if !m.Online() {
		t.Fatal("monitor should start online")
	}
}

func TestMonitorTransitions(t *testing.T) {
	m, _ := newTestMonitor()

	var transitions []bool
	m.OnChange(func(online bool) {
		transitions = append(transitions, online)
	})

	m.SetOffline()
	m.SetOffline() // duplicate, must not re-notify
	m.SetOnline()
	m.SetOnline() // duplicate

	if m.Online() != true {
		t.Fatal("expected online after restoration")
	}
	if len(transitions) != 2 || transitions[0] != false || transitions[1] != true {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestReportFailureFlipsOffline(t *testing.T) {
	m, _ := newTestMonitor()
	m.ReportFailure()
	if m.Online() {
		t.Fatal("expected offline after reported transport failure")
	}
}

func TestOnChangeUnsubscribe(t *testing.T) {
	m, _ := newTestMonitor()

	var calls int
	unsubscribe := m.OnChange(func(bool) { calls++ })

	m.SetOffline()
	unsubscribe()
	m.SetOnline()

	if calls != 1 {
		t.Fatalf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestMonitorPublishesConnectivityEvents(t *testing.T) {
	m, bus := newTestMonitor()

	var payloads []string
	bus.Subscribe(events.EventConnectivity, func(e *events.Event) error {
		payloads = append(payloads, string(e.Payload))
		return nil
	})

	m.SetOffline()
	m.SetOnline()

	if len(payloads) != 2 {
		t.Fatalf("expected 2 connectivity events, got %d", len(payloads))
	}
}

func TestProberRestoresOnline(t *testing.T) {
	m, _ := newTestMonitor()
	m.SetOffline()

	var failures atomic.Int32
	failures.Store(2)
	ping := func(ctx context.Context) error {
		if failures.Add(-1) >= 0 {
			return errors.New("still down")
		}
		return nil
	}

	logger := zerolog.Nop()
	p := NewProber(m, ping, 5*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	deadline := time.After(2 * time.Second)
	for !m.Online() {
		select {
		case <-deadline:
			t.Fatal("prober never restored online state")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestProberIdleWhileOnline(t *testing.T) {
	m, _ := newTestMonitor()

	var pings atomic.Int32
	ping := func(ctx context.Context) error {
		pings.Add(1)
		return nil
	}

	logger := zerolog.Nop()
	p := NewProber(m, ping, 5*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if pings.Load() != 0 {
		t.Fatalf("prober must not ping while online, got %d pings", pings.Load())
	}
}
