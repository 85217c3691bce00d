// ABOUTME: Durable invocation records backing the dispatcher's idempotency cache
// ABOUTME: Completed rows let retried invocation ids replay results across restarts

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetInvocation retrieves an invocation record by id.
// Returns ErrNotFound if no record exists.
func (s *SQLiteStore) GetInvocation(ctx context.Context, id string) (*Invocation, error) {
	inv := &Invocation{}
	var createdStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, tool, status, result, err_kind, created_at FROM invocations WHERE id = ?`,
		id,
	).Scan(&inv.ID, &inv.SessionID, &inv.Tool, &inv.Status, &inv.Result, &inv.ErrKind, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invocation: %w", err)
	}
	inv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parsing invocation timestamp: %w", err)
	}
	return inv, nil
}

// SaveInvocation inserts or replaces an invocation record.
func (s *SQLiteStore) SaveInvocation(ctx context.Context, inv *Invocation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO invocations (id, session_id, tool, status, result, err_kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.SessionID, inv.Tool, inv.Status, inv.Result, inv.ErrKind,
		inv.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving invocation: %w", err)
	}
	return nil
}

// PruneInvocations deletes invocation records older than the cutoff.
// The in-memory cache bounds the hot set; this keeps the table from
// growing without bound.
func (s *SQLiteStore) PruneInvocations(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM invocations WHERE created_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning invocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning invocations: %w", err)
	}
	return int(n), nil
}
