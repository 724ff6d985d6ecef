package db

import (
	"time"

	"github.com/google/uuid"
)

// User is a poster. Name and image are mirrored from their Spotify profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
	ImageURL    *string // nullable
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastSyncAt  *time.Time // nullable, set by profile sync
}

// SpotifyToken is the delegated Spotify credential a session searches with.
type SpotifyToken struct {
	Access  string
	Refresh string
	Expiry  time.Time
}

// Session binds a browser cookie to a signed-in user and their Spotify token.
type Session struct {
	ID        string
	UserID    string
	UserName  string // joined from users on read, not stored
	Spotify   SpotifyToken
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Post is a published song post.
type Post struct {
	ID          uuid.UUID
	UserID      string
	SongID      string
	Title       string
	Album       string
	Artist      string
	AlbumCover  string
	PreviewURL  string
	Description string
	CreatedAt   time.Time
}
