package dashboard

import (
	"context"
	"fmt"

	"github.com/justestif/song-posts/internal/spotify"
)

// SelectTrack turns track into the draft, replacing any pending one without
// confirmation, and retracts the search results.
func (d *Dashboard) SelectTrack(track spotify.Track) DraftPost {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectLocked(track)
}

// SelectTrackByID selects the track with the given ID from the current results.
func (d *Dashboard) SelectTrackByID(id string) (DraftPost, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range d.results {
		if t.ID == id {
			return d.selectLocked(t), nil
		}
	}
	return DraftPost{}, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
}

func (d *Dashboard) selectLocked(track spotify.Track) DraftPost {
	draft := NewDraft(track, d.author)
	d.draft = &draft
	d.draftRev++
	d.results = nil
	d.seq++
	return draft
}

// EditDescription replaces the draft description. No other field changes.
func (d *Dashboard) EditDescription(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.draft == nil {
		return ErrNoDraft
	}
	*d.draft = d.draft.WithDescription(text)
	d.draftRev++
	return nil
}

// Draft returns a copy of the pending draft.
func (d *Dashboard) Draft() (DraftPost, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draft == nil {
		return DraftPost{}, false
	}
	return *d.draft, true
}

// Submit sends the pending draft to the backend.
//
// Without a draft nothing is sent and ErrNoDraft is returned. A backend
// failure keeps the draft for a manual retry and wraps ErrSubmissionFailed.
// On success the post list is refreshed and the draft is cleared, unless it was
// replaced or edited while the request was in flight. A changed draft stays
// pending so the newer content can be submitted.
func (d *Dashboard) Submit(ctx context.Context) error {
	d.mu.Lock()
	if d.draft == nil {
		d.mu.Unlock()
		return ErrNoDraft
	}
	if d.submitting {
		d.mu.Unlock()
		return ErrSubmitInProgress
	}
	d.submitting = true
	rev := d.draftRev
	post := *d.draft
	d.mu.Unlock()

	err := d.posts.CreatePost(ctx, post)

	d.mu.Lock()
	d.submitting = false
	if err != nil {
		d.mu.Unlock()
		d.logger.Error("creating post", "song_id", post.TrackID, "err", err)
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if d.draftRev == rev {
		d.draft = nil
	} else {
		d.logger.Debug("draft changed during submit, keeping it", "song_id", post.TrackID)
	}
	d.mu.Unlock()

	d.logger.Info("post created", "song_id", post.TrackID, "title", post.Title)

	if d.refresher == nil {
		return nil
	}
	if err := d.refresher.Refresh(ctx); err != nil {
		d.logger.Warn("refreshing post list", "err", err)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return nil
}
