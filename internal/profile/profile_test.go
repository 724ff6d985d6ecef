package profile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/spotify"
)

type fakeFetcher struct {
	profile *spotify.Profile
	err     error
	calls   int
}

func (f *fakeFetcher) CurrentProfile(context.Context, credential.Credential) (*spotify.Profile, error) {
	f.calls++
	return f.profile, f.err
}

type fakeStore struct {
	mu       sync.Mutex
	images   []string
	names    []string
	imageErr error
	nameErr  error
}

func (s *fakeStore) UpdateImage(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, url)
	return s.imageErr
}

func (s *fakeStore) UpdateName(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return s.nameErr
}

var cred = credential.Credential{Token: "tok", ExpiresAt: 1 << 40}

func TestSync_LastImageAndName(t *testing.T) {
	fetcher := &fakeFetcher{profile: &spotify.Profile{
		DisplayName: "Ann",
		ImageURLs:   []string{"a", "b"},
	}}
	store := &fakeStore{}

	res, err := NewSyncer(fetcher, store).Sync(context.Background(), cred)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, []string{"b"}, store.images)
	require.Equal(t, []string{"Ann"}, store.names)
	require.True(t, res.ImageDispatched)
	require.Equal(t, RemoteUser{DisplayName: "Ann", ImageURL: "b"}, res.User)
}

func TestSync_NoImageSkipsImageSync(t *testing.T) {
	fetcher := &fakeFetcher{profile: &spotify.Profile{DisplayName: "Bo"}}
	store := &fakeStore{}

	res, err := NewSyncer(fetcher, store).Sync(context.Background(), cred)
	require.NoError(t, err)

	require.Empty(t, store.images)
	require.Equal(t, []string{"Bo"}, store.names)
	require.False(t, res.ImageDispatched)
	require.Empty(t, res.User.ImageURL)
}

func TestSync_FetchFailureDispatchesNothing(t *testing.T) {
	boom := errors.New("status 401")
	fetcher := &fakeFetcher{err: boom}
	store := &fakeStore{}

	res, err := NewSyncer(fetcher, store).Sync(context.Background(), cred)
	require.ErrorIs(t, err, boom)
	require.Nil(t, res)
	require.Empty(t, store.images)
	require.Empty(t, store.names)
}

func TestSync_DispatchFailuresAreIndependent(t *testing.T) {
	tests := []struct {
		name     string
		imageErr error
		nameErr  error
	}{
		{"image fails", errors.New("image down"), nil},
		{"name fails", nil, errors.New("name down")},
		{"both fail", errors.New("image down"), errors.New("name down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{profile: &spotify.Profile{DisplayName: "Ann", ImageURLs: []string{"x"}}}
			store := &fakeStore{imageErr: tt.imageErr, nameErr: tt.nameErr}

			res, err := NewSyncer(fetcher, store).Sync(context.Background(), cred)
			require.NoError(t, err)

			// Both dispatches happen regardless of the other's outcome.
			require.Len(t, store.images, 1)
			require.Len(t, store.names, 1)

			require.Equal(t, tt.imageErr, res.ImageErr)
			require.Equal(t, tt.nameErr, res.NameErr)
			require.Error(t, res.Err())
			if tt.imageErr != nil {
				require.ErrorIs(t, res.Err(), tt.imageErr)
			}
			if tt.nameErr != nil {
				require.ErrorIs(t, res.Err(), tt.nameErr)
			}
		})
	}
}

func TestCanonicalImage(t *testing.T) {
	tests := []struct {
		name    string
		profile *spotify.Profile
		want    string
		wantOK  bool
	}{
		{"nil profile", nil, "", false},
		{"no images", &spotify.Profile{}, "", false},
		{"single", &spotify.Profile{ImageURLs: []string{"only"}}, "only", true},
		{"picks last", &spotify.Profile{ImageURLs: []string{"large", "medium", "small"}}, "small", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalImage(tt.profile)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantOK, ok)
		})
	}
}
