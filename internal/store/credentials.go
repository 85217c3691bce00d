// ABOUTME: Credential persistence for the OAuth credential store
// ABOUTME: Rows are replaced atomically so a refresh is durable before it commits

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetCredential retrieves the credential for a (provider, account) pair.
// Returns ErrNotFound if no credential is stored.
func (s *SQLiteStore) GetCredential(ctx context.Context, provider, account string) (*Credential, error) {
	query := `
		SELECT provider, account, access_token, refresh_token, expiry, scopes, invalid, updated_at
		FROM credentials
		WHERE provider = ? AND account = ?
	`

	cred := &Credential{}
	var expiryStr, updatedStr, scopes string
	var invalid int
	err := s.db.QueryRowContext(ctx, query, provider, account).Scan(
		&cred.Provider,
		&cred.Account,
		&cred.AccessToken,
		&cred.RefreshToken,
		&expiryStr,
		&scopes,
		&invalid,
		&updatedStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	cred.Expiry, err = time.Parse(time.RFC3339, expiryStr)
	if err != nil {
		return nil, fmt.Errorf("parsing credential expiry: %w", err)
	}
	cred.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing credential updated_at: %w", err)
	}
	if scopes != "" {
		cred.Scopes = strings.Split(scopes, " ")
	}
	cred.Invalid = invalid != 0

	return cred, nil
}

// ReplaceCredential atomically inserts or replaces the credential row.
// A successful return means the token pair is durable; callers must not
// treat a refresh as committed before this returns.
func (s *SQLiteStore) ReplaceCredential(ctx context.Context, cred *Credential) error {
	query := `
		INSERT OR REPLACE INTO credentials
			(provider, account, access_token, refresh_token, expiry, scopes, invalid, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	invalid := 0
	if cred.Invalid {
		invalid = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		cred.Provider,
		cred.Account,
		cred.AccessToken,
		cred.RefreshToken,
		cred.Expiry.UTC().Format(time.RFC3339),
		strings.Join(cred.Scopes, " "),
		invalid,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("replacing credential: %w", err)
	}

	s.logger.Debug("credential persisted",
		"provider", cred.Provider,
		"account", cred.Account,
		"expiry", cred.Expiry,
		"invalid", cred.Invalid,
	)
	return nil
}

// MarkCredentialInvalid flags a credential whose refresh token was rejected.
// The row is kept so re-authorization can replace it in place.
func (s *SQLiteStore) MarkCredentialInvalid(ctx context.Context, provider, account string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET invalid = 1, updated_at = ? WHERE provider = ? AND account = ?`,
		time.Now().UTC().Format(time.RFC3339), provider, account,
	)
	if err != nil {
		return fmt.Errorf("marking credential invalid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking credential invalid: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCredentials returns all stored credentials ordered by provider then account.
func (s *SQLiteStore) ListCredentials(ctx context.Context) ([]*Credential, error) {
	query := `
		SELECT provider, account, access_token, refresh_token, expiry, scopes, invalid, updated_at
		FROM credentials
		ORDER BY provider, account
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		cred := &Credential{}
		var expiryStr, updatedStr, scopes string
		var invalid int
		if err := rows.Scan(
			&cred.Provider, &cred.Account, &cred.AccessToken, &cred.RefreshToken,
			&expiryStr, &scopes, &invalid, &updatedStr,
		); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		cred.Expiry, err = time.Parse(time.RFC3339, expiryStr)
		if err != nil {
			return nil, fmt.Errorf("parsing credential expiry: %w", err)
		}
		cred.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing credential updated_at: %w", err)
		}
		if scopes != "" {
			cred.Scopes = strings.Split(scopes, " ")
		}
		cred.Invalid = invalid != 0
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}
