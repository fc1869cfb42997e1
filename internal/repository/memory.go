package repository

import (
	"context"
	"sync"
	"time"

	"opsync/internal/models"
)

// MemoryCache is the in-process fallback cache tier.
type MemoryCache struct {
	entries sync.Map
	ttl     time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl}
}

func (r *MemoryCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	val, ok := r.entries.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*models.CacheEntry)
	if r.ttl > 0 && time.Since(entry.UpdatedAt) > r.ttl {
		r.entries.Delete(key)
		return nil, nil
	}
	return entry, nil
}

func (r *MemoryCache) Put(ctx context.Context, key string, value []byte) error {
	r.entries.Store(key, &models.CacheEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	})
	return nil
}
