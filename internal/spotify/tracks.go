package spotify

import (
	"context"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/song-posts/internal/credential"
)

// SearchTracks runs a track-scoped catalog search for query.
// The query is URL-escaped by the underlying client.
// Returns an empty slice (not nil) when Spotify reports no tracks.
func (c *Client) SearchTracks(ctx context.Context, cred credential.Credential, query string) ([]Track, error) {
	api, err := c.api(ctx, cred)
	if err != nil {
		return nil, fetchError("searching tracks", err)
	}

	res, err := api.Search(ctx, query, spotify.SearchTypeTrack)
	if err != nil {
		return nil, fetchError("searching tracks", err)
	}

	if res.Tracks == nil {
		return []Track{}, nil
	}
	return convertTracks(res.Tracks.Tracks), nil
}

func convertTracks(full []spotify.FullTrack) []Track {
	tracks := make([]Track, len(full))
	for i, t := range full {
		tracks[i] = convertTrack(t)
	}
	return tracks
}

// convertTrack copies the fields a post needs out of a Spotify track.
func convertTrack(t spotify.FullTrack) Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	covers := make([]string, len(t.Album.Images))
	for i, img := range t.Album.Images {
		covers[i] = img.URL
	}

	return Track{
		ID:             t.ID.String(),
		Name:           t.Name,
		AlbumName:      t.Album.Name,
		ArtistNames:    artists,
		AlbumCoverURLs: covers,
		PreviewURL:     t.PreviewURL,
	}
}
