package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/justestif/song-posts/internal/spotify"
)

// SetSearchText records a change of the search input.
//
// An empty text clears the results without a network call, even before the
// page is loaded. Whitespace-only text is recorded but issues no call and keeps
// the results. Any other text queries the catalog; on success the results are
// replaced, on failure they are left untouched and the error is returned.
//
// Only the most recently issued query may replace the results. A completion
// arriving after a newer query, a selection or a clear is discarded.
func (d *Dashboard) SetSearchText(ctx context.Context, text string) error {
	d.mu.Lock()
	d.searchText = text
	d.seq++
	seq := d.seq

	if text == "" {
		d.results = nil
		d.mu.Unlock()
		return nil
	}
	if !d.ready {
		d.mu.Unlock()
		return ErrNotReady
	}
	if strings.TrimSpace(text) == "" {
		d.mu.Unlock()
		return nil
	}
	cred := d.cred
	d.mu.Unlock()

	tracks, err := d.catalog.SearchTracks(ctx, cred, text)
	if err != nil {
		d.logger.Error("searching catalog", "query", text, "err", err)
		return fmt.Errorf("searching for %q: %w", text, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if seq != d.seq {
		d.logger.Debug("discarding stale search results", "query", text)
		return nil
	}
	d.results = tracks
	return nil
}

// Search re-runs the query for the current search text, as a search button does.
func (d *Dashboard) Search(ctx context.Context) error {
	return d.SetSearchText(ctx, d.SearchText())
}

// SearchText returns the current search input.
func (d *Dashboard) SearchText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.searchText
}

// Results returns a copy of the current result sequence.
func (d *Dashboard) Results() []spotify.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]spotify.Track, len(d.results))
	copy(out, d.results)
	return out
}

// Favorites fetches the user's top items. It is independent of the search
// results and the draft; the last successful response is kept.
func (d *Dashboard) Favorites(ctx context.Context, q spotify.TopItemsQuery) (*spotify.TopItems, error) {
	d.mu.Lock()
	if !d.ready {
		d.mu.Unlock()
		return nil, ErrNotReady
	}
	cred := d.cred
	d.mu.Unlock()

	items, err := d.catalog.TopItems(ctx, cred, q)
	if err != nil {
		d.logger.Error("fetching top items", "type", q.Type, "range", q.TimeRange, "err", err)
		return nil, fmt.Errorf("fetching favorites: %w", err)
	}

	d.mu.Lock()
	d.favorites = items
	d.mu.Unlock()
	return items, nil
}

// LastFavorites returns the last favorites response, or nil.
func (d *Dashboard) LastFavorites() *spotify.TopItems {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.favorites
}
