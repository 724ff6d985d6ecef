package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository stores dashboard sessions. A session row outlives its
// Spotify token: an expired token sends the user back through authorization,
// an expired session signs them out.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, access_token, refresh_token, token_expiry, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.UserID, s.Spotify.Access, s.Spotify.Refresh, s.Spotify.Expiry, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", s.UserID, err)
	}
	return nil
}

// Get returns an unexpired session with the poster's display name filled in.
func (r *SessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT s.id, s.user_id, u.display_name,
		       s.access_token, s.refresh_token, s.token_expiry,
		       s.created_at, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1 AND s.expires_at > NOW()
	`, id)
	return scanSession(row)
}

// Delete signs a session out. Unknown IDs are not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// UpdateToken stores the token from a re-authorization of the same user.
func (r *SessionRepository) UpdateToken(ctx context.Context, id string, tok SpotifyToken) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET access_token = $2, refresh_token = $3, token_expiry = $4
		WHERE id = $1
	`, id, tok.Access, tok.Refresh, tok.Expiry)
	if err != nil {
		return fmt.Errorf("updating spotify token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired signs out every session past its expiry and reports how many.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.UserName,
		&s.Spotify.Access, &s.Spotify.Refresh, &s.Spotify.Expiry,
		&s.CreatedAt, &s.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &s, nil
}
