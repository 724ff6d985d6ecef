package dashboard

import (
	"github.com/justestif/song-posts/internal/spotify"
)

// DraftPost is the unsaved post composed from a selected track.
// JSON names follow the POST /posts contract.
type DraftPost struct {
	TrackID     string `json:"song_id"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	Artist      string `json:"artist"`
	AlbumCover  string `json:"album_cover"`
	Author      string `json:"author"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description"`
}

// NewDraft copies track into a fresh draft with an empty description.
// The cover is the first album image; artists are joined with ", ".
func NewDraft(track spotify.Track, author string) DraftPost {
	return DraftPost{
		TrackID:    track.ID,
		Title:      track.Name,
		Album:      track.AlbumName,
		Artist:     track.Artist(),
		AlbumCover: track.AlbumCover(),
		Author:     author,
		PreviewURL: track.PreviewURL,
	}
}

// WithDescription returns a copy of p with only Description replaced.
func (p DraftPost) WithDescription(text string) DraftPost {
	p.Description = text
	return p
}

// State is the composer state.
type State int

const (
	// NoDraft means nothing is selected; Submit is a no-op.
	NoDraft State = iota
	// DraftPending means a selected track is waiting to be submitted.
	DraftPending
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case NoDraft:
		return "no draft"
	case DraftPending:
		return "draft pending"
	default:
		return "unknown"
	}
}
