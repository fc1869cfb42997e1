package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an operation id does not exist.
var ErrNotFound = errors.New("operation not found")

// Store is the durable local store: the operation queue, the read cache
// and per-entity snapshots. Individual reads and writes rely on SQLite's
// transactional semantics; the sync engine's mutual-exclusion flag
// provides the only higher-level locking.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS operation_queue (
            id TEXT PRIMARY KEY,
            op_type TEXT NOT NULL,
            method TEXT NOT NULL,
            url TEXT NOT NULL,
            payload BLOB,
            headers TEXT,
            enqueued_at DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            next_retry_at DATETIME
        )`,
		`CREATE INDEX IF NOT EXISTS idx_queue_status_enqueued
            ON operation_queue(status, enqueued_at)`,
		`CREATE TABLE IF NOT EXISTS read_cache (
            key TEXT PRIMARY KEY,
            value BLOB NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS entity_snapshots (
            entity_type TEXT NOT NULL,
            entity_key TEXT NOT NULL,
            data BLOB NOT NULL,
            updated_at DATETIME NOT NULL,
            PRIMARY KEY (entity_type, entity_key)
        )`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// newOperationID embeds a millisecond timestamp so lexical order roughly
// follows enqueue order; the uuid suffix guarantees uniqueness.
func newOperationID() string {
	return fmt.Sprintf("%013d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
