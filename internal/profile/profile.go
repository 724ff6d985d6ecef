// Package profile mirrors the remote Spotify profile onto the local user record.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/spotify"
)

// Fetcher reads the remote profile for a credential.
type Fetcher interface {
	CurrentProfile(ctx context.Context, cred credential.Credential) (*spotify.Profile, error)
}

// UserStore receives the mirrored fields.
type UserStore interface {
	UpdateImage(ctx context.Context, imageURL string) error
	UpdateName(ctx context.Context, name string) error
}

// RemoteUser is the read-only view of the synced profile.
type RemoteUser struct {
	DisplayName string
	ImageURL    string // empty when the provider has no image
}

// Result reports what a sync did.
type Result struct {
	User            RemoteUser
	Profile         *spotify.Profile
	ImageDispatched bool
	ImageErr        error
	NameErr         error
}

// Err joins the dispatch failures, or returns nil if both succeeded.
func (r *Result) Err() error {
	var errs []error
	if r.ImageErr != nil {
		errs = append(errs, fmt.Errorf("syncing image: %w", r.ImageErr))
	}
	if r.NameErr != nil {
		errs = append(errs, fmt.Errorf("syncing name: %w", r.NameErr))
	}
	return errors.Join(errs...)
}

// CanonicalImage returns the last image the provider lists.
func CanonicalImage(p *spotify.Profile) (string, bool) {
	if p == nil || len(p.ImageURLs) == 0 {
		return "", false
	}
	return p.ImageURLs[len(p.ImageURLs)-1], true
}

// Syncer fetches the profile once and pushes name and image to the store.
type Syncer struct {
	fetcher Fetcher
	store   UserStore
}

// NewSyncer creates a Syncer.
func NewSyncer(fetcher Fetcher, store UserStore) *Syncer {
	return &Syncer{fetcher: fetcher, store: store}
}

// Sync fetches the remote profile for cred and dispatches the name update and,
// if an image exists, the image update. The two updates run concurrently and
// neither blocks the other; their outcomes are recorded on the Result.
// A fetch failure returns an error and dispatches nothing.
func (s *Syncer) Sync(ctx context.Context, cred credential.Credential) (*Result, error) {
	p, err := s.fetcher.CurrentProfile(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("fetching spotify profile: %w", err)
	}

	res := &Result{
		Profile: p,
		User:    RemoteUser{DisplayName: p.DisplayName},
	}

	var wg sync.WaitGroup

	if img, ok := CanonicalImage(p); ok {
		res.User.ImageURL = img
		res.ImageDispatched = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.ImageErr = s.store.UpdateImage(ctx, img)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		res.NameErr = s.store.UpdateName(ctx, p.DisplayName)
	}()

	wg.Wait()
	return res, nil
}
