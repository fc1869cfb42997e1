package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"opsync/internal/models"
)

// PutCache upserts a last-known-good read result.
func (s *Store) PutCache(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO read_cache (key, value, updated_at) VALUES (?, ?, ?)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// GetCache returns the cached entry for key, or nil when absent.
func (s *Store) GetCache(ctx context.Context, key string) (*models.CacheEntry, error) {
	query := `SELECT key, value, updated_at FROM read_cache WHERE key = ?`
	var entry models.CacheEntry
	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&entry.Key, &value, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	entry.Value = value
	return &entry, nil
}
