package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostRepository handles post database operations.
type PostRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new post, assigning an ID if none is set.
func (r *PostRepository) Create(ctx context.Context, post *Post) error {
	query := `
		INSERT INTO posts (id, user_id, song_id, title, album, artist, album_cover, preview_url, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, query,
		post.ID,
		post.UserID,
		post.SongID,
		post.Title,
		post.Album,
		post.Artist,
		post.AlbumCover,
		post.PreviewURL,
		post.Description,
	).Scan(&post.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}
	return nil
}

// Get retrieves a post by ID.
func (r *PostRepository) Get(ctx context.Context, id uuid.UUID) (*Post, error) {
	query := `
		SELECT id, user_id, song_id, title, album, artist, album_cover, preview_url, description, created_at
		FROM posts
		WHERE id = $1
	`
	post, err := scanPost(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying post: %w", err)
	}
	return post, nil
}

// ListRecent returns up to limit posts, newest first.
func (r *PostRepository) ListRecent(ctx context.Context, limit int) ([]Post, error) {
	query := `
		SELECT id, user_id, song_id, title, album, artist, album_cover, preview_url, description, created_at
		FROM posts
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	return posts, nil
}

// Delete removes a post owned by userID.
func (r *PostRepository) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	query := `DELETE FROM posts WHERE id = $1 AND user_id = $2`
	result, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPost(row pgx.Row) (*Post, error) {
	var post Post
	err := row.Scan(
		&post.ID,
		&post.UserID,
		&post.SongID,
		&post.Title,
		&post.Album,
		&post.Artist,
		&post.AlbumCover,
		&post.PreviewURL,
		&post.Description,
		&post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}
