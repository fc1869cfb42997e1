package transport

import (
	"strings"
	"sync"

	"opsync/internal/config"
)

// Resolver holds the active backend base URL. Queued operations carry
// relative paths only; the base is resolved per call so replays follow
// an endpoint switch that happened after enqueue.
type Resolver struct {
	mu       sync.RWMutex
	primary  string
	fallback string
	active   string
	health   string
}

func NewResolver(cfg config.EndpointsConfig) *Resolver {
	return &Resolver{
		primary:  strings.TrimRight(cfg.Primary, "/"),
		fallback: strings.TrimRight(cfg.Fallback, "/"),
		active:   strings.TrimRight(cfg.Primary, "/"),
		health:   cfg.Health,
	}
}

// BaseURL returns the currently active base.
func (r *Resolver) BaseURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// HealthPath returns the relative path used by the connectivity probe.
func (r *Resolver) HealthPath() string {
	return r.health
}

// UseFallback switches replays to the fallback endpoint, when one is
// configured.
func (r *Resolver) UseFallback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback == "" {
		return false
	}
	r.active = r.fallback
	return true
}

// UsePrimary switches replays back to the primary endpoint.
func (r *Resolver) UsePrimary() {
	r.mu.Lock()
	r.active = r.primary
	r.mu.Unlock()
}

// Resolve joins the base with a relative resource path.
func (r *Resolver) Resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.BaseURL() + path
}
