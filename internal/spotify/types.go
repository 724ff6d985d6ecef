package spotify

import "strings"

// Track is an immutable catalog track.
type Track struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	AlbumName      string   `json:"album_name"`
	ArtistNames    []string `json:"artist_names"`
	AlbumCoverURLs []string `json:"album_cover_urls"` // provider order
	PreviewURL     string   `json:"preview_url,omitempty"`
}

// Artist joins the artist names with ", ".
func (t Track) Artist() string {
	return strings.Join(t.ArtistNames, ", ")
}

// AlbumCover returns the first album image URL, or "" if there is none.
func (t Track) AlbumCover() string {
	if len(t.AlbumCoverURLs) == 0 {
		return ""
	}
	return t.AlbumCoverURLs[0]
}

// Artist is a catalog artist as returned by the top-items endpoint.
type Artist struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Genres   []string `json:"genres,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Profile is the remote user's profile.
type Profile struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	ImageURLs   []string `json:"image_urls"` // provider order
}
