// ABOUTME: Relay checkpoint persistence tracking the last sequence per provider stream
// ABOUTME: Lets the poller resume after the provider's retention horizon on restart

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetCheckpoint returns the last recorded sequence number for a provider
// stream, or 0 if none has been recorded.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, provider string) (uint64, error) {
	var seq uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seq FROM relay_checkpoints WHERE provider = ?`, provider,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying checkpoint: %w", err)
	}
	return seq, nil
}

// SaveCheckpoint records the last delivered sequence number for a provider stream.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, provider string, seq uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO relay_checkpoints (provider, last_seq) VALUES (?, ?)`,
		provider, seq,
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}
