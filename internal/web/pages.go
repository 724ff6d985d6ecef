package web

import (
	"context"
	"sync"

	"github.com/justestif/song-posts/internal/backend"
	"github.com/justestif/song-posts/internal/dashboard"
	"github.com/justestif/song-posts/internal/db"
)

const postListLimit = 50

// page is one loaded dashboard and the post list it shows.
type page struct {
	dash  *dashboard.Dashboard
	store PostStore

	mu    sync.Mutex
	posts []db.Post
}

// Refresh reloads the post list after a successful submit.
func (p *page) Refresh(ctx context.Context) error {
	posts, err := p.store.ListRecent(ctx, postListLimit)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.posts = posts
	p.mu.Unlock()
	return nil
}

// Posts returns the last loaded post list.
func (p *page) Posts() []db.Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]db.Post(nil), p.posts...)
}

// pageRegistry holds the current dashboard of each session. A new page load
// replaces the previous one.
type pageRegistry struct {
	mu    sync.Mutex
	pages map[string]*page
}

func newPageRegistry() *pageRegistry {
	return &pageRegistry{pages: make(map[string]*page)}
}

func (r *pageRegistry) put(sessionID string, p *page) {
	r.mu.Lock()
	r.pages[sessionID] = p
	r.mu.Unlock()
}

func (r *pageRegistry) get(sessionID string) *page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pages[sessionID]
}

// ids returns the session IDs with a registered page.
func (r *pageRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.pages))
	for id := range r.pages {
		ids = append(ids, id)
	}
	return ids
}

func (r *pageRegistry) drop(sessionID string) {
	r.mu.Lock()
	delete(r.pages, sessionID)
	r.mu.Unlock()
}

// sessionPosts binds a PostStore to one author for the dashboard.
type sessionPosts struct {
	store  PostStore
	userID string
}

func (s sessionPosts) CreatePost(ctx context.Context, draft dashboard.DraftPost) error {
	post := postFromDraft(draft, s.userID)
	return s.store.Create(ctx, &post)
}

var (
	_ dashboard.PostStore = sessionPosts{}
	_ dashboard.Refresher = (*page)(nil)
)

// postFromDraft converts a draft into a stored post owned by userID.
func postFromDraft(d dashboard.DraftPost, userID string) db.Post {
	return db.Post{
		UserID:      userID,
		SongID:      d.TrackID,
		Title:       d.Title,
		Album:       d.Album,
		Artist:      d.Artist,
		AlbumCover:  d.AlbumCover,
		PreviewURL:  d.PreviewURL,
		Description: d.Description,
	}
}

// wirePost converts a stored post into its JSON form.
func wirePost(p db.Post) backend.Post {
	return backend.Post{
		ID: p.ID.String(),
		DraftPost: dashboard.DraftPost{
			TrackID:     p.SongID,
			Title:       p.Title,
			Album:       p.Album,
			Artist:      p.Artist,
			AlbumCover:  p.AlbumCover,
			Author:      p.UserID,
			PreviewURL:  p.PreviewURL,
			Description: p.Description,
		},
		CreatedAt: p.CreatedAt,
	}
}
