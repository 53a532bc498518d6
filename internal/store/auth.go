package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campusgate/gatepass/internal/model"
)

// Credential is the minimal login-time view of a principal: just enough to
// verify a password and mint a session, never the full Principal record.
type Credential struct {
	ID           uint64
	Role         model.Role
	Active       bool
	PasswordHash string
}

// GetCredentialByUsername loads login material for username.
func (s *Store) GetCredentialByUsername(ctx context.Context, username string) (Credential, error) {
	var c Credential
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, role, active, COALESCE(password_hash, '') FROM principals WHERE username = ?`, username,
	).Scan(&c.ID, &c.Role, &c.Active, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("get credential: %w", err)
	}
	c.PasswordHash = hash.String
	return c, nil
}

// CreateSession inserts a new session row keyed by a hash of the opaque
// bearer token. The plaintext token is never persisted, matching the
// teacher's token_hash convention.
func (s *Store) CreateSession(ctx context.Context, tokenHash string, principalID uint64, expiresAt time.Time) error {
	now := time.Now().UTC()
	return s.writeQ.Write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO auth_sessions (token_hash, principal_id, created_at, expires_at, last_seen)
			VALUES (?, ?, ?, ?, ?)`, tokenHash, principalID, now, expiresAt, now)
		return err
	})
}

// SessionPrincipalID resolves a session token hash to its owning principal,
// rejecting (and deleting) an expired session.
func (s *Store) SessionPrincipalID(ctx context.Context, tokenHash string) (uint64, error) {
	var principalID uint64
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT principal_id, expires_at FROM auth_sessions WHERE token_hash = ?`, tokenHash,
	).Scan(&principalID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("session lookup: %w", err)
	}

	if time.Now().UTC().After(expiresAt) {
		s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token_hash = ?`, tokenHash)
		return 0, ErrNotFound
	}
	return principalID, nil
}

// DeleteSession removes a session, ignoring a missing one.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token_hash = ?`, tokenHash)
	return err
}
