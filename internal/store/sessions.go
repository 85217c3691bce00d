// ABOUTME: Session and turn persistence for the session manager
// ABOUTME: History is append-only; turns are never updated or deleted on the hot path

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureSession inserts a session row if it does not already exist.
// Returns true if the session was created by this call.
func (s *SQLiteStore) EnsureSession(ctx context.Context, sessionID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)`,
		sessionID, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("ensuring session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensuring session: %w", err)
	}
	return n > 0, nil
}

// AppendTurn persists one history turn and bumps the session's updated_at.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning turn append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, role, content, err_kind, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Role, turn.Content, turn.ErrKind,
		turn.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), turn.SessionID,
	)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn append: %w", err)
	}

	s.logger.Debug("turn appended",
		"turn_id", turn.ID,
		"session_id", turn.SessionID,
		"role", turn.Role,
	)
	return nil
}

// GetTurns returns a session's history in insertion order.
func (s *SQLiteStore) GetTurns(ctx context.Context, sessionID string) ([]*Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, err_kind, created_at
		 FROM turns WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		turn := &Turn{}
		var createdStr string
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Role, &turn.Content, &turn.ErrKind, &createdStr); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turn.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parsing turn timestamp: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// SaveBinding records a session's provider account binding, replacing any
// previous binding for the same provider.
func (s *SQLiteStore) SaveBinding(ctx context.Context, b *Binding) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bindings (session_id, provider, account, created_at) VALUES (?, ?, ?, ?)`,
		b.SessionID, b.Provider, b.Account, b.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving binding: %w", err)
	}
	return nil
}

// GetBindings returns all credential bindings for a session.
func (s *SQLiteStore) GetBindings(ctx context.Context, sessionID string) ([]*Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, provider, account, created_at FROM bindings WHERE session_id = ? ORDER BY provider`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*Binding
	for rows.Next() {
		b := &Binding{}
		var createdStr string
		if err := rows.Scan(&b.SessionID, &b.Provider, &b.Account, &createdStr); err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}
		b.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parsing binding timestamp: %w", err)
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// SessionLastUpdated returns the updated_at timestamp for a session.
// Returns ErrNotFound if the session does not exist.
func (s *SQLiteStore) SessionLastUpdated(ctx context.Context, sessionID string) (time.Time, error) {
	var updatedStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM sessions WHERE id = ?`, sessionID,
	).Scan(&updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying session: %w", err)
	}
	return time.Parse(time.RFC3339, updatedStr)
}

// EvictSessions deletes sessions (with their turns and bindings) whose
// updated_at is older than the cutoff. This is an explicit maintenance
// operation, never run on the dispatch path. Returns the ids of the
// sessions removed so callers can drop matching in-memory state.
func (s *SQLiteStore) EvictSessions(ctx context.Context, olderThan time.Time) ([]string, error) {
	cutoff := olderThan.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning eviction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing evictable sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing evictable sessions: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM turns WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, cutoff,
	); err != nil {
		return nil, fmt.Errorf("evicting turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bindings WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, cutoff,
	); err != nil {
		return nil, fmt.Errorf("evicting bindings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("evicting sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing eviction: %w", err)
	}

	s.logger.Info("sessions evicted", "count", len(ids), "cutoff", cutoff)
	return ids, nil
}
