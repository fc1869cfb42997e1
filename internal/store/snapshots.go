package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"opsync/internal/models"
)

// SaveSnapshot upserts an opaque per-entity blob.
func (s *Store) SaveSnapshot(ctx context.Context, entityType, entityKey string, data []byte) error {
	query := `INSERT INTO entity_snapshots (entity_type, entity_key, data, updated_at) VALUES (?, ?, ?, ?)
              ON CONFLICT(entity_type, entity_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, entityType, entityKey, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a snapshot, or nil when absent.
func (s *Store) GetSnapshot(ctx context.Context, entityType, entityKey string) (*models.EntitySnapshot, error) {
	query := `SELECT entity_type, entity_key, data, updated_at FROM entity_snapshots
              WHERE entity_type = ? AND entity_key = ?`
	var snap models.EntitySnapshot
	var data []byte
	err := s.db.QueryRowContext(ctx, query, entityType, entityKey).
		Scan(&snap.EntityType, &snap.EntityKey, &data, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.Data = data
	return &snap, nil
}

// DeleteSnapshot removes a snapshot once the entity has synced.
func (s *Store) DeleteSnapshot(ctx context.Context, entityType, entityKey string) error {
	query := `DELETE FROM entity_snapshots WHERE entity_type = ? AND entity_key = ?`
	if _, err := s.db.ExecContext(ctx, query, entityType, entityKey); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns all snapshots of one entity type, newest first.
func (s *Store) ListSnapshots(ctx context.Context, entityType string) ([]models.EntitySnapshot, error) {
	query := `SELECT entity_type, entity_key, data, updated_at FROM entity_snapshots
              WHERE entity_type = ? ORDER BY updated_at DESC`
	rows, err := s.db.QueryContext(ctx, query, entityType)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.EntitySnapshot
	for rows.Next() {
		var snap models.EntitySnapshot
		var data []byte
		if err := rows.Scan(&snap.EntityType, &snap.EntityKey, &data, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Data = data
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
