package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RefreshStore tracks issued refresh tokens so they can be rotated once.
type RefreshStore struct {
	db *sql.DB
}

// NewRefreshStore creates a store.
func NewRefreshStore(db *sql.DB) *RefreshStore {
	return &RefreshStore{db: db}
}

// Save stores a refresh token for rotation checks.
func (s *RefreshStore) Save(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (subject, token, expires_at)
		VALUES ($1, $2, $3)
	`, subject, token, expiresAt)
	return err
}

// Consume revokes a live token. It fails when the token is unknown, expired or
// already used.
func (s *RefreshStore) Consume(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE AND expires_at > NOW()
	`, token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("refresh token revoked or expired")
	}
	return nil
}
