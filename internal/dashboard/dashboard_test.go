package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/spotify"
)

var now = time.Unix(1_700_000_000, 0)

var validCred = credential.Credential{Token: "tok", ExpiresAt: now.Unix() + 3600}

// fakeCatalog records calls and answers from configurable functions.
type fakeCatalog struct {
	mu           sync.Mutex
	profile      *spotify.Profile
	profileErr   error
	profileCalls int
	searchCalls  []string
	search       func(ctx context.Context, query string) ([]spotify.Track, error)
	topCalls     int
	top          *spotify.TopItems
}

func (c *fakeCatalog) CurrentProfile(context.Context, credential.Credential) (*spotify.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profileCalls++
	if c.profileErr != nil {
		return nil, c.profileErr
	}
	if c.profile == nil {
		return &spotify.Profile{DisplayName: "Someone"}, nil
	}
	return c.profile, nil
}

func (c *fakeCatalog) SearchTracks(ctx context.Context, _ credential.Credential, query string) ([]spotify.Track, error) {
	c.mu.Lock()
	c.searchCalls = append(c.searchCalls, query)
	fn := c.search
	c.mu.Unlock()
	if fn == nil {
		return []spotify.Track{{ID: query, Name: query}}, nil
	}
	return fn(ctx, query)
}

func (c *fakeCatalog) TopItems(context.Context, credential.Credential, spotify.TopItemsQuery) (*spotify.TopItems, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topCalls++
	return c.top, nil
}

func (c *fakeCatalog) searches() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.searchCalls...)
}

type fakeUsers struct {
	mu     sync.Mutex
	images []string
	names  []string
}

func (u *fakeUsers) UpdateImage(_ context.Context, url string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.images = append(u.images, url)
	return nil
}

func (u *fakeUsers) UpdateName(_ context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	return nil
}

type fakePosts struct {
	posts  []DraftPost
	err    error
	calls  int
	before func() // runs before the post is stored
}

func (p *fakePosts) CreatePost(_ context.Context, post DraftPost) error {
	p.calls++
	if p.before != nil {
		p.before()
	}
	if p.err != nil {
		return p.err
	}
	p.posts = append(p.posts, post)
	return nil
}

// blockSubmit makes the next CreatePost wait until release is closed and
// returns once the request is in flight.
func blockSubmit(t *testing.T, f *fixture) (release chan struct{}, done chan error) {
	t.Helper()
	release = make(chan struct{})
	started := make(chan struct{})
	f.posts.before = func() {
		close(started)
		<-release
	}
	done = make(chan error, 1)
	go func() {
		done <- f.dash.Submit(context.Background())
	}()
	<-started
	return release, done
}

type fixture struct {
	catalog   *fakeCatalog
	users     *fakeUsers
	posts     *fakePosts
	refreshes int
	refresh   error
	dash      *Dashboard
}

func newFixture(t *testing.T, cred credential.Credential) *fixture {
	t.Helper()
	f := &fixture{
		catalog: &fakeCatalog{},
		users:   &fakeUsers{},
		posts:   &fakePosts{},
	}
	f.dash = New(Config{
		Sessions: credential.SourceFunc(func(context.Context) (credential.Credential, error) {
			return cred, nil
		}),
		Catalog: f.catalog,
		Users:   f.users,
		Posts:   f.posts,
		Refresher: RefresherFunc(func(context.Context) error {
			f.refreshes++
			return f.refresh
		}),
		Author:      "user-1",
		GateOptions: []credential.Option{credential.WithClock(func() time.Time { return now })},
	})
	return f
}

// loaded returns a fixture whose dashboard passed the gate.
func loaded(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, validCred)
	res, err := f.dash.Load(context.Background())
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed())
	return f
}

var sampleTrack = spotify.Track{
	ID:             "1",
	Name:           "X",
	AlbumName:      "A",
	ArtistNames:    []string{"P", "Q"},
	AlbumCoverURLs: []string{"cover.png", "thumb.png"},
	PreviewURL:     "preview.mp3",
}

func TestLoad_UnusableCredentialRedirects(t *testing.T) {
	tests := []struct {
		name string
		cred credential.Credential
	}{
		{"empty token zero expiry", credential.Credential{Token: "", ExpiresAt: 0}},
		{"expired", credential.Credential{Token: "tok", ExpiresAt: now.Unix() - 1}},
		{"expires exactly now", credential.Credential{Token: "tok", ExpiresAt: now.Unix()}},
		{"empty token future expiry", credential.Credential{Token: "", ExpiresAt: now.Unix() + 3600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cred)

			res, err := f.dash.Load(context.Background())
			require.NoError(t, err)
			require.Equal(t, credential.AuthorizePath, res.Decision.Redirect)
			require.ErrorIs(t, res.Decision.Err(), credential.ErrUnavailable)
			require.Nil(t, res.Sync)
			require.False(t, f.dash.Ready())

			// No profile call, and search is refused without a call.
			require.Zero(t, f.catalog.profileCalls)
			require.ErrorIs(t, f.dash.SetSearchText(context.Background(), "daft punk"), ErrNotReady)
			require.Empty(t, f.catalog.searches())
			_, err = f.dash.Favorites(context.Background(), spotify.TopItemsQuery{})
			require.ErrorIs(t, err, ErrNotReady)
			require.Zero(t, f.catalog.topCalls)
		})
	}
}

func TestLoad_ValidCredentialSyncsProfile(t *testing.T) {
	f := newFixture(t, validCred)
	f.catalog.profile = &spotify.Profile{DisplayName: "Ann", ImageURLs: []string{"a", "b"}}

	res, err := f.dash.Load(context.Background())
	require.NoError(t, err)
	require.True(t, res.Decision.Allowed())
	require.NotNil(t, res.Sync)
	require.NoError(t, res.Sync.Err())

	require.Equal(t, 1, f.catalog.profileCalls)
	require.Equal(t, []string{"b"}, f.users.images)
	require.Equal(t, []string{"Ann"}, f.users.names)

	user := f.dash.User()
	require.NotNil(t, user)
	require.Equal(t, "Ann", user.DisplayName)
	require.Equal(t, "b", user.ImageURL)
	require.True(t, f.dash.Ready())
}

func TestLoad_ProfileFailureStillAllowsSearch(t *testing.T) {
	f := newFixture(t, validCred)
	f.catalog.profileErr = errors.New("status 500")

	res, err := f.dash.Load(context.Background())
	require.NoError(t, err)
	require.Error(t, res.SyncErr)
	require.Nil(t, res.Sync)
	require.Empty(t, f.users.names)
	require.Empty(t, f.users.images)
	require.Nil(t, f.dash.User())

	require.NoError(t, f.dash.SetSearchText(context.Background(), "q"))
	require.Len(t, f.dash.Results(), 1)
}

func TestLoad_SessionFailure(t *testing.T) {
	dash := New(Config{
		Sessions: credential.SourceFunc(func(context.Context) (credential.Credential, error) {
			return credential.Credential{}, errors.New("backend down")
		}),
		Catalog: &fakeCatalog{},
		Users:   &fakeUsers{},
		Posts:   &fakePosts{},
	})

	res, err := dash.Load(context.Background())
	require.ErrorIs(t, err, credential.ErrSessionFetch)
	require.Nil(t, res)
	require.False(t, dash.Ready())
}

func TestLoad_OnlyOnce(t *testing.T) {
	f := loaded(t)
	_, err := f.dash.Load(context.Background())
	require.ErrorIs(t, err, ErrAlreadyLoaded)
	require.Equal(t, 1, f.catalog.profileCalls)
}

func TestSetSearchText_Query(t *testing.T) {
	f := loaded(t)
	items := []spotify.Track{sampleTrack, {ID: "2", Name: "Y"}}
	f.catalog.search = func(context.Context, string) ([]spotify.Track, error) {
		return items, nil
	}

	require.NoError(t, f.dash.SetSearchText(context.Background(), "daft punk"))
	require.Equal(t, []string{"daft punk"}, f.catalog.searches())
	require.Equal(t, items, f.dash.Results())
	require.Equal(t, "daft punk", f.dash.SearchText())
}

func TestSetSearchText_EmptyClearsWithoutCall(t *testing.T) {
	t.Run("after results", func(t *testing.T) {
		f := loaded(t)
		require.NoError(t, f.dash.SetSearchText(context.Background(), "first"))
		require.NotEmpty(t, f.dash.Results())

		require.NoError(t, f.dash.SetSearchText(context.Background(), ""))
		require.Empty(t, f.dash.Results())
		require.Equal(t, []string{"first"}, f.catalog.searches())
	})

	t.Run("before load", func(t *testing.T) {
		f := newFixture(t, validCred)
		require.NoError(t, f.dash.SetSearchText(context.Background(), ""))
		require.Empty(t, f.dash.Results())
		require.Empty(t, f.catalog.searches())
	})
}

func TestSetSearchText_WhitespaceIssuesNoCall(t *testing.T) {
	f := loaded(t)
	require.NoError(t, f.dash.SetSearchText(context.Background(), "keep"))
	before := f.dash.Results()

	require.NoError(t, f.dash.SetSearchText(context.Background(), "   "))
	require.Equal(t, before, f.dash.Results())
	require.Equal(t, []string{"keep"}, f.catalog.searches())
}

func TestSetSearchText_FailureKeepsResults(t *testing.T) {
	f := loaded(t)
	require.NoError(t, f.dash.SetSearchText(context.Background(), "good"))
	before := f.dash.Results()

	boom := &spotify.FetchError{Op: "searching tracks", Status: 500, Err: errors.New("boom")}
	f.catalog.search = func(context.Context, string) ([]spotify.Track, error) {
		return nil, boom
	}

	err := f.dash.SetSearchText(context.Background(), "bad")
	require.ErrorIs(t, err, spotify.ErrRemoteFetch)
	require.Equal(t, before, f.dash.Results())
}

func TestSetSearchText_StaleCompletionDiscarded(t *testing.T) {
	f := loaded(t)

	release := make(chan struct{})
	started := make(chan struct{})
	f.catalog.search = func(_ context.Context, query string) ([]spotify.Track, error) {
		if query == "slow" {
			close(started)
			<-release
		}
		return []spotify.Track{{ID: query}}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.dash.SetSearchText(context.Background(), "slow")
	}()
	<-started

	require.NoError(t, f.dash.SetSearchText(context.Background(), "fast"))
	close(release)
	require.NoError(t, <-done)

	require.Equal(t, []spotify.Track{{ID: "fast"}}, f.dash.Results())
}

func TestSelectTrack(t *testing.T) {
	f := loaded(t)
	f.catalog.search = func(context.Context, string) ([]spotify.Track, error) {
		return []spotify.Track{sampleTrack}, nil
	}
	require.NoError(t, f.dash.SetSearchText(context.Background(), "x"))
	require.Equal(t, NoDraft, f.dash.State())

	draft := f.dash.SelectTrack(sampleTrack)
	require.Equal(t, DraftPost{
		TrackID:    "1",
		Title:      "X",
		Album:      "A",
		Artist:     "P, Q",
		AlbumCover: "cover.png",
		Author:     "user-1",
		PreviewURL: "preview.mp3",
	}, draft)
	require.Empty(t, draft.Description)
	require.Empty(t, f.dash.Results())
	require.Equal(t, DraftPending, f.dash.State())

	got, ok := f.dash.Draft()
	require.True(t, ok)
	require.Equal(t, draft, got)
}

func TestSelectTrack_ReplacesPendingDraft(t *testing.T) {
	f := loaded(t)
	f.dash.SelectTrack(sampleTrack)
	require.NoError(t, f.dash.EditDescription("first thoughts"))

	other := spotify.Track{ID: "2", Name: "Y", AlbumName: "B", ArtistNames: []string{"R"}}
	f.dash.SelectTrack(other)

	got, ok := f.dash.Draft()
	require.True(t, ok)
	require.Equal(t, "2", got.TrackID)
	require.Equal(t, "R", got.Artist)
	require.Empty(t, got.AlbumCover)
	require.Empty(t, got.Description)
}

func TestSelectTrack_DiscardsInFlightSearch(t *testing.T) {
	f := loaded(t)

	release := make(chan struct{})
	started := make(chan struct{})
	f.catalog.search = func(context.Context, string) ([]spotify.Track, error) {
		close(started)
		<-release
		return []spotify.Track{{ID: "late"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.dash.SetSearchText(context.Background(), "q")
	}()
	<-started

	f.dash.SelectTrack(sampleTrack)
	close(release)
	require.NoError(t, <-done)

	require.Empty(t, f.dash.Results())
}

func TestSelectTrackByID(t *testing.T) {
	f := loaded(t)
	f.catalog.search = func(context.Context, string) ([]spotify.Track, error) {
		return []spotify.Track{sampleTrack}, nil
	}
	require.NoError(t, f.dash.SetSearchText(context.Background(), "x"))

	_, err := f.dash.SelectTrackByID("missing")
	require.ErrorIs(t, err, ErrTrackNotFound)
	require.Len(t, f.dash.Results(), 1)

	draft, err := f.dash.SelectTrackByID("1")
	require.NoError(t, err)
	require.Equal(t, "X", draft.Title)
	require.Empty(t, f.dash.Results())
}

func TestEditDescription_FieldIsolation(t *testing.T) {
	f := loaded(t)
	original := f.dash.SelectTrack(sampleTrack)

	for _, text := range []string{"great song", "", "  spaced  ", "ünïcødé ✨", "great song"} {
		require.NoError(t, f.dash.EditDescription(text))
		got, ok := f.dash.Draft()
		require.True(t, ok)
		require.Equal(t, text, got.Description)
		require.Equal(t, original, got.WithDescription(""))
	}
}

func TestEditDescription_NoDraft(t *testing.T) {
	f := loaded(t)
	require.ErrorIs(t, f.dash.EditDescription("text"), ErrNoDraft)
	require.Equal(t, NoDraft, f.dash.State())
}

func TestSubmit_NoDraftIsNoop(t *testing.T) {
	f := loaded(t)
	require.ErrorIs(t, f.dash.Submit(context.Background()), ErrNoDraft)
	require.Zero(t, f.posts.calls)
	require.Zero(t, f.refreshes)
}

func TestSubmit_Success(t *testing.T) {
	f := loaded(t)
	f.dash.SelectTrack(sampleTrack)
	require.NoError(t, f.dash.EditDescription("on repeat"))

	require.NoError(t, f.dash.Submit(context.Background()))
	require.Len(t, f.posts.posts, 1)
	require.Equal(t, "on repeat", f.posts.posts[0].Description)
	require.Equal(t, "P, Q", f.posts.posts[0].Artist)
	require.Equal(t, 1, f.refreshes)
	require.Equal(t, NoDraft, f.dash.State())
}

func TestSubmit_FailurePreservesDraft(t *testing.T) {
	f := loaded(t)
	f.posts.err = errors.New("status 500")
	f.dash.SelectTrack(sampleTrack)
	require.NoError(t, f.dash.EditDescription("keep me"))
	before, _ := f.dash.Draft()

	err := f.dash.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.ErrorIs(t, err, f.posts.err)
	require.Zero(t, f.refreshes)
	require.Equal(t, DraftPending, f.dash.State())

	after, ok := f.dash.Draft()
	require.True(t, ok)
	require.Equal(t, before, after)

	// Manual retry succeeds once the backend recovers.
	f.posts.err = nil
	require.NoError(t, f.dash.Submit(context.Background()))
	require.Equal(t, NoDraft, f.dash.State())
	require.Equal(t, 2, f.posts.calls)
}

func TestSubmit_InProgressRejectsSecondSubmit(t *testing.T) {
	f := loaded(t)
	f.dash.SelectTrack(sampleTrack)

	release, done := blockSubmit(t, f)
	require.ErrorIs(t, f.dash.Submit(context.Background()), ErrSubmitInProgress)
	close(release)
	require.NoError(t, <-done)

	require.Equal(t, 1, f.posts.calls)
	require.Len(t, f.posts.posts, 1)
	require.Equal(t, NoDraft, f.dash.State())
}

func TestSubmit_DraftReplacedInFlightSurvives(t *testing.T) {
	f := loaded(t)
	f.dash.SelectTrack(sampleTrack)

	release, done := blockSubmit(t, f)
	next := spotify.Track{ID: "2", Name: "Y", AlbumName: "B", ArtistNames: []string{"R"}}
	f.dash.SelectTrack(next)
	close(release)
	require.NoError(t, <-done)

	require.Equal(t, "1", f.posts.posts[0].TrackID)
	draft, ok := f.dash.Draft()
	require.True(t, ok)
	require.Equal(t, "2", draft.TrackID)
	require.Equal(t, 1, f.refreshes)
}

func TestSubmit_DescriptionEditedInFlightSurvives(t *testing.T) {
	f := loaded(t)
	f.dash.SelectTrack(sampleTrack)
	require.NoError(t, f.dash.EditDescription("v1"))

	release, done := blockSubmit(t, f)
	require.NoError(t, f.dash.EditDescription("v2 edited while sending"))
	close(release)
	require.NoError(t, <-done)

	require.Equal(t, "v1", f.posts.posts[0].Description)
	draft, ok := f.dash.Draft()
	require.True(t, ok, "edited draft was discarded")
	require.Equal(t, "v2 edited while sending", draft.Description)
	require.Equal(t, DraftPending, f.dash.State())

	// The edit can still be published.
	f.posts.before = nil
	require.NoError(t, f.dash.Submit(context.Background()))
	require.Equal(t, "v2 edited while sending", f.posts.posts[1].Description)
	require.Equal(t, NoDraft, f.dash.State())
}

func TestSubmit_RefreshFailure(t *testing.T) {
	f := loaded(t)
	f.refresh = errors.New("list unavailable")
	f.dash.SelectTrack(sampleTrack)

	err := f.dash.Submit(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.Len(t, f.posts.posts, 1)
	require.Equal(t, NoDraft, f.dash.State())
}

func TestFavorites(t *testing.T) {
	f := loaded(t)
	f.catalog.top = &spotify.TopItems{Type: spotify.ItemTracks, Tracks: []spotify.Track{sampleTrack}}

	items, err := f.dash.Favorites(context.Background(), spotify.TopItemsQuery{})
	require.NoError(t, err)
	require.Equal(t, f.catalog.top, items)
	require.Equal(t, items, f.dash.LastFavorites())

	// Favorites never touch the search results or the draft.
	require.Empty(t, f.dash.Results())
	require.Equal(t, NoDraft, f.dash.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "no draft", NoDraft.String())
	require.Equal(t, "draft pending", DraftPending.String())
	require.Equal(t, "unknown", State(7).String())
}
