package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository stores posters.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Get returns the poster with the given Spotify user ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, display_name, email, image_url, created_at, updated_at, last_sync_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.DisplayName, &u.Email, &u.ImageURL, &u.CreatedAt, &u.UpdatedAt, &u.LastSyncAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %s: %w", id, err)
	}
	return &u, nil
}

// Upsert records a sign-in. The image is left to profile sync.
func (r *UserRepository) Upsert(ctx context.Context, u *User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, display_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, u.ID, u.DisplayName, u.Email).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// UpdateName mirrors the Spotify display name.
func (r *UserRepository) UpdateName(ctx context.Context, id, name string) error {
	return r.mirror(ctx, `UPDATE users SET display_name = $2, last_sync_at = NOW(), updated_at = NOW() WHERE id = $1`, id, name)
}

// UpdateImage mirrors the canonical Spotify profile image.
func (r *UserRepository) UpdateImage(ctx context.Context, id, imageURL string) error {
	return r.mirror(ctx, `UPDATE users SET image_url = $2, last_sync_at = NOW(), updated_at = NOW() WHERE id = $1`, id, imageURL)
}

// mirror runs a single-field profile sync update.
func (r *UserRepository) mirror(ctx context.Context, query, id, value string) error {
	result, err := r.pool.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("syncing profile of %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
