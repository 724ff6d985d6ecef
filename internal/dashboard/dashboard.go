// Package dashboard holds the per-page workflow of the song post composer:
// credential check and profile sync on load, catalog search, track selection
// into a draft, and draft submission.
//
// A Dashboard is an explicit context object. Each external input (page load,
// search text change, track selection, description edit, submit) is one method
// and one transition. No lock is held across network calls.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/logging"
	"github.com/justestif/song-posts/internal/profile"
	"github.com/justestif/song-posts/internal/spotify"
)

var (
	// ErrNotReady is returned for catalog operations before the gate allowed a credential.
	ErrNotReady = errors.New("dashboard not loaded with a usable credential")

	// ErrAlreadyLoaded is returned when Load is called twice on the same page.
	ErrAlreadyLoaded = errors.New("dashboard already loaded")

	// ErrNoDraft is returned when editing or submitting without a draft.
	ErrNoDraft = errors.New("no draft post")

	// ErrTrackNotFound is returned when selecting an ID absent from the results.
	ErrTrackNotFound = errors.New("track not in current results")

	// ErrSubmissionFailed wraps backend failures while creating a post.
	ErrSubmissionFailed = errors.New("submitting post failed")

	// ErrSubmitInProgress is returned when a submit is already in flight.
	ErrSubmitInProgress = errors.New("submission already in progress")

	// ErrRefreshFailed is returned when the post was created but the list refresh failed.
	ErrRefreshFailed = errors.New("refreshing post list failed")
)

// Catalog is the subset of the Spotify client the dashboard uses.
type Catalog interface {
	profile.Fetcher
	SearchTracks(ctx context.Context, cred credential.Credential, query string) ([]spotify.Track, error)
	TopItems(ctx context.Context, cred credential.Credential, q spotify.TopItemsQuery) (*spotify.TopItems, error)
}

// PostStore creates posts on the backend.
type PostStore interface {
	CreatePost(ctx context.Context, post DraftPost) error
}

// Refresher reloads the surrounding post list after a successful submit.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Config carries the collaborators of a Dashboard.
type Config struct {
	Sessions  credential.Source
	Catalog   Catalog
	Users     profile.UserStore
	Posts     PostStore
	Refresher Refresher // optional
	Author    string    // copied into every draft
	Logger    *log.Logger

	// GateOptions are passed to the credential gate.
	GateOptions []credential.Option
}

// Dashboard is the state of one page load.
type Dashboard struct {
	gate      *credential.Gate
	catalog   Catalog
	syncer    *profile.Syncer
	posts     PostStore
	refresher Refresher
	author    string
	logger    *log.Logger

	mu         sync.Mutex
	loaded     bool
	ready      bool
	cred       credential.Credential
	user       *profile.RemoteUser
	searchText string
	results    []spotify.Track
	seq        uint64 // bumped whenever results are superseded
	draft      *DraftPost
	draftRev   uint64 // bumped on every selection and description edit
	submitting bool
	favorites  *spotify.TopItems
}

// New creates a Dashboard in the NoDraft state with no credential.
func New(cfg Config) *Dashboard {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dashboard{
		gate:      credential.NewGate(cfg.Sessions, cfg.GateOptions...),
		catalog:   cfg.Catalog,
		syncer:    profile.NewSyncer(cfg.Catalog, cfg.Users),
		posts:     cfg.Posts,
		refresher: cfg.Refresher,
		author:    cfg.Author,
		logger:    logger,
	}
}

// LoadResult describes a page load.
type LoadResult struct {
	Decision credential.Decision
	Sync     *profile.Result // nil when redirected or when the profile fetch failed
	SyncErr  error           // profile fetch failure
}

// Load runs the credential gate once. When the credential is usable it is kept
// for catalog calls and the profile is synced; otherwise the result carries the
// redirect target and nothing else happens. Profile sync failures are reported
// on the result and do not fail the load.
func (d *Dashboard) Load(ctx context.Context) (*LoadResult, error) {
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return nil, ErrAlreadyLoaded
	}
	d.loaded = true
	d.mu.Unlock()

	decision, err := d.gate.Evaluate(ctx)
	if err != nil {
		d.logger.Error("checking spotify credential", "err", err)
		return nil, err
	}

	res := &LoadResult{Decision: decision}
	if !decision.Allowed() {
		d.logger.Info("spotify credential unusable, redirecting", "to", decision.Redirect)
		return res, nil
	}

	d.mu.Lock()
	d.cred = decision.Credential
	d.ready = true
	d.mu.Unlock()

	synced, err := d.syncer.Sync(ctx, decision.Credential)
	if err != nil {
		d.logger.Error("syncing spotify profile", "err", err)
		res.SyncErr = err
		return res, nil
	}
	if err := synced.Err(); err != nil {
		d.logger.Warn("mirroring spotify profile", "err", err)
	}

	d.mu.Lock()
	user := synced.User
	d.user = &user
	d.mu.Unlock()

	res.Sync = synced
	return res, nil
}

// Ready reports whether the gate allowed a credential.
func (d *Dashboard) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// User returns the synced remote profile, or nil before a successful sync.
func (d *Dashboard) User() *profile.RemoteUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.user == nil {
		return nil
	}
	u := *d.user
	return &u
}

// State reports whether a draft is pending.
func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draft == nil {
		return NoDraft
	}
	return DraftPending
}
