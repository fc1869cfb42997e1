package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"opsync/internal/models"
)

// Enqueue persists an operation and assigns its id and enqueue time.
// A persistence error propagates to the caller: the interceptor must
// never report "queued" for an operation that was not actually stored.
func (s *Store) Enqueue(ctx context.Context, op *models.QueuedOperation) error {
	if op.ID == "" {
		op.ID = newOperationID()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}
	if op.Status == "" {
		op.Status = models.StatusPending
	}

	var headers []byte
	if len(op.Headers) > 0 {
		var err error
		headers, err = json.Marshal(op.Headers)
		if err != nil {
			return fmt.Errorf("encode headers: %w", err)
		}
	}

	query := `INSERT INTO operation_queue (id, op_type, method, url, payload, headers, enqueued_at, status, retry_count, last_error, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		string(op.Type),
		op.Method,
		op.URL,
		[]byte(op.Payload),
		nullableBytes(headers),
		op.EnqueuedAt,
		string(op.Status),
		op.RetryCount,
		op.LastError,
		op.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue operation: %w", err)
	}
	return nil
}

// ListPending returns pending operations in enqueue order, excluding
// items whose backoff window has not elapsed. Backoff is honored here,
// at snapshot time: an item gated by next_retry_at simply waits for a
// later drain.
func (s *Store) ListPending(ctx context.Context, limit int) ([]models.QueuedOperation, error) {
	query := `SELECT id, op_type, method, url, payload, headers, enqueued_at, status, retry_count, last_error, next_retry_at
              FROM operation_queue
              WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY enqueued_at ASC, id ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// ListFailed returns operations that exhausted their retry budget,
// newest first. These require manual intervention via Requeue.
func (s *Store) ListFailed(ctx context.Context) ([]models.QueuedOperation, error) {
	query := `SELECT id, op_type, method, url, payload, headers, enqueued_at, status, retry_count, last_error, next_retry_at
              FROM operation_queue WHERE status = 'failed'
              ORDER BY enqueued_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list failed operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// GetOperation fetches a single operation by id.
func (s *Store) GetOperation(ctx context.Context, id string) (*models.QueuedOperation, error) {
	query := `SELECT id, op_type, method, url, payload, headers, enqueued_at, status, retry_count, last_error, next_retry_at
              FROM operation_queue WHERE id = ?`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	defer rows.Close()

	ops, err := scanOperations(rows)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, ErrNotFound
	}
	return &ops[0], nil
}

// Remove deletes a successfully replayed operation. No history of
// successful operations is retained.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM operation_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove operation: %w", err)
	}
	return nil
}

// RecordFailure bumps the retry counter after a failed replay attempt
// and schedules the next eligibility window. The operation stays pending.
func (s *Store) RecordFailure(ctx context.Context, id string, errMsg string, nextRetryAt *time.Time) error {
	query := `UPDATE operation_queue
              SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
              WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, errMsg, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// MarkFailed transitions an operation to its terminal state. It is
// excluded from automatic drains from here on.
func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string) error {
	query := `UPDATE operation_queue
              SET status = 'failed', retry_count = retry_count + 1, last_error = ?, next_retry_at = NULL
              WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// Requeue resets a terminal operation back to pending with a fresh retry
// budget. This is the manual-intervention path for failed items.
func (s *Store) Requeue(ctx context.Context, id string) error {
	query := `UPDATE operation_queue
              SET status = 'pending', retry_count = 0, last_error = NULL, next_retry_at = NULL
              WHERE id = ? AND status = 'failed'`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("requeue operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue operation: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPending reports the queue depth of pending operations, including
// those still inside their backoff window.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operation_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func scanOperations(rows *sql.Rows) ([]models.QueuedOperation, error) {
	var ops []models.QueuedOperation
	for rows.Next() {
		var (
			op          models.QueuedOperation
			opType      string
			status      string
			payload     []byte
			headers     sql.NullString
			lastError   sql.NullString
			nextRetryAt sql.NullTime
		)
		err := rows.Scan(&op.ID, &opType, &op.Method, &op.URL, &payload, &headers,
			&op.EnqueuedAt, &status, &op.RetryCount, &lastError, &nextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.Type = models.OpType(opType)
		op.Status = models.OpStatus(status)
		op.Payload = payload
		if headers.Valid && headers.String != "" {
			if err := json.Unmarshal([]byte(headers.String), &op.Headers); err != nil {
				return nil, fmt.Errorf("decode headers: %w", err)
			}
		}
		if lastError.Valid {
			v := lastError.String
			op.LastError = &v
		}
		if nextRetryAt.Valid {
			t := nextRetryAt.Time
			op.NextRetryAt = &t
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
