package connectivity

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PingFunc checks whether the backend is reachable. A nil error means
// reachable.
type PingFunc func(ctx context.Context) error

// Prober periodically probes the backend while the monitor believes it
// is offline and flips the state back to online on the first success.
// It stands in for the platform online event a browser would deliver.
type Prober struct {
	monitor  *Monitor
	ping     PingFunc
	interval time.Duration
	logger   *zerolog.Logger
}

func NewProber(monitor *Monitor, ping PingFunc, interval time.Duration, logger *zerolog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{monitor: monitor, ping: ping, interval: interval, logger: logger}
}

// Start runs the probe loop; stops when ctx is done.
func (p *Prober) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.monitor.Online() {
				continue
			}
			if err := p.ping(ctx); err != nil {
				p.logger.Debug().Err(err).Msg("connectivity probe failed")
				continue
			}
			p.monitor.SetOnline()
		}
	}
}
