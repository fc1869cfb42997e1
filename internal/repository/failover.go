package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"opsync/internal/domain"
	"opsync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverCache fronts a primary cache tier (redis) with a fallback
// (memory). After a primary failure it stays on the fallback and probes
// the primary again after a cooldown.
type FailoverCache struct {
	primary  domain.CacheRepository
	fallback domain.CacheRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	cooldown  time.Duration
}

func NewFailoverCache(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCache {
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		cooldown: time.Minute,
	}
}

func (r *FailoverCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	if !r.isDown.Load() {
		entry, err := r.primary.Get(ctx, key)
		if err == nil {
			return entry, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		entry, err := r.primary.Get(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			return entry, nil
		}
	}

	return r.fallback.Get(ctx, key)
}

func (r *FailoverCache) Put(ctx context.Context, key string, value []byte) error {
	if !r.isDown.Load() {
		err := r.primary.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Put(ctx, key, value)
}

func (r *FailoverCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary cache tier failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverCache) shouldProbe() bool {
	if !r.isDown.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) < r.cooldown {
		return false
	}
	r.lastCheck = time.Now()
	return true
}
