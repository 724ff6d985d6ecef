package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/song-posts/internal/credential"
)

// ItemType selects what GET /v1/me/top/{type} returns.
type ItemType string

const (
	ItemArtists ItemType = "artists"
	ItemTracks  ItemType = "tracks"
)

// TimeRange is the affinity window for top items.
type TimeRange string

const (
	ShortTerm  TimeRange = "short_term"  // about 4 weeks
	MediumTerm TimeRange = "medium_term" // about 6 months
	LongTerm   TimeRange = "long_term"   // about a year, plus new data
)

const (
	defaultTopLimit = 5
	maxTopLimit     = 50
)

// TopItemsQuery parameterises a favorites lookup. Zero values take defaults:
// tracks, short_term, limit 5, offset 0.
type TopItemsQuery struct {
	Type      ItemType
	TimeRange TimeRange
	Limit     int
	Offset    int
}

// withDefaults fills unset fields.
func (q TopItemsQuery) withDefaults() TopItemsQuery {
	if q.Type == "" {
		q.Type = ItemTracks
	}
	if q.TimeRange == "" {
		q.TimeRange = ShortTerm
	}
	if q.Limit == 0 {
		q.Limit = defaultTopLimit
	}
	return q
}

// Validate checks the query after defaults are applied.
func (q TopItemsQuery) Validate() error {
	q = q.withDefaults()

	switch q.Type {
	case ItemArtists, ItemTracks:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidQuery, q.Type)
	}

	switch q.TimeRange {
	case ShortTerm, MediumTerm, LongTerm:
	default:
		return fmt.Errorf("%w: time range %q", ErrInvalidQuery, q.TimeRange)
	}

	if q.Limit < 1 || q.Limit > maxTopLimit {
		return fmt.Errorf("%w: limit %d outside 1-%d", ErrInvalidQuery, q.Limit, maxTopLimit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidQuery, q.Offset)
	}
	return nil
}

// TopItems holds the result of a favorites lookup. Only the slice matching
// the query type is populated.
type TopItems struct {
	Type    ItemType `json:"type"`
	Tracks  []Track  `json:"tracks,omitempty"`
	Artists []Artist `json:"artists,omitempty"`
}

// TopItems fetches the user's top artists or tracks.
func (c *Client) TopItems(ctx context.Context, cred credential.Credential, q TopItemsQuery) (*TopItems, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q = q.withDefaults()

	api, err := c.api(ctx, cred)
	if err != nil {
		return nil, fetchError("getting top items", err)
	}

	opts := []spotify.RequestOption{
		spotify.Timerange(spotify.Range(q.TimeRange)),
		spotify.Limit(q.Limit),
		spotify.Offset(q.Offset),
	}

	if q.Type == ItemArtists {
		page, err := api.CurrentUsersTopArtists(ctx, opts...)
		if err != nil {
			return nil, fetchError("getting top artists", err)
		}
		artists := make([]Artist, len(page.Artists))
		for i, a := range page.Artists {
			artists[i] = convertArtist(a)
		}
		return &TopItems{Type: ItemArtists, Artists: artists}, nil
	}

	page, err := api.CurrentUsersTopTracks(ctx, opts...)
	if err != nil {
		return nil, fetchError("getting top tracks", err)
	}
	return &TopItems{Type: ItemTracks, Tracks: convertTracks(page.Tracks)}, nil
}

func convertArtist(a spotify.FullArtist) Artist {
	artist := Artist{
		ID:     a.ID.String(),
		Name:   a.Name,
		Genres: a.Genres,
	}
	if len(a.Images) > 0 {
		artist.ImageURL = a.Images[0].URL
	}
	return artist
}
