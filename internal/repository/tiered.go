package repository

import (
	"context"

	"opsync/internal/domain"
	"opsync/internal/models"
	"opsync/internal/store"

	"github.com/rs/zerolog"
)

// DurableCache adapts the SQLite store's read_cache table to the
// CacheRepository interface. It is the restart-surviving copy.
type DurableCache struct {
	store *store.Store
}

func NewDurableCache(s *store.Store) *DurableCache {
	return &DurableCache{store: s}
}

func (r *DurableCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	return r.store.GetCache(ctx, key)
}

func (r *DurableCache) Put(ctx context.Context, key string, value []byte) error {
	return r.store.PutCache(ctx, key, value)
}

// TieredCache reads through a hot tier backed by the durable tier.
// Writes land in the durable tier first; a hot-tier write failure is
// logged and ignored, a durable write failure propagates.
type TieredCache struct {
	hot     domain.CacheRepository
	durable domain.CacheRepository
	logger  *zerolog.Logger
}

func NewTieredCache(hot, durable domain.CacheRepository, logger *zerolog.Logger) *TieredCache {
	return &TieredCache{hot: hot, durable: durable, logger: logger}
}

func (r *TieredCache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	if r.hot != nil {
		entry, err := r.hot.Get(ctx, key)
		if err == nil && entry != nil {
			return entry, nil
		}
		if err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("hot cache read failed")
		}
	}

	entry, err := r.durable.Get(ctx, key)
	if err != nil || entry == nil {
		return entry, err
	}

	// Backfill the hot tier so the next read stays off disk.
	if r.hot != nil {
		if err := r.hot.Put(ctx, key, entry.Value); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("hot cache backfill failed")
		}
	}
	return entry, nil
}

func (r *TieredCache) Put(ctx context.Context, key string, value []byte) error {
	if err := r.durable.Put(ctx, key, value); err != nil {
		return err
	}
	if r.hot != nil {
		if err := r.hot.Put(ctx, key, value); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("hot cache write failed")
		}
	}
	return nil
}
