package web

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/song-posts/internal/db"
	"github.com/justestif/song-posts/internal/profile"
)

// UserStore persists local user records.
type UserStore interface {
	Get(ctx context.Context, id string) (*db.User, error)
	Upsert(ctx context.Context, user *db.User) error
	UpdateName(ctx context.Context, id, name string) error
	UpdateImage(ctx context.Context, id, imageURL string) error
}

// PostStore persists posts.
type PostStore interface {
	Create(ctx context.Context, post *db.Post) error
	ListRecent(ctx context.Context, limit int) ([]db.Post, error)
}

var (
	_ UserStore = (*db.UserRepository)(nil)
	_ PostStore = (*db.PostRepository)(nil)
)

// ============================================================================
// In-Memory Stores (used when no database is configured)
// ============================================================================

// MemoryUserStore keeps users in memory.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]db.User
}

// NewMemoryUserStore creates an empty MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]db.User)}
}

// Get returns a copy of the user with the given ID.
func (s *MemoryUserStore) Get(_ context.Context, id string) (*db.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &user, nil
}

// Upsert creates or updates a user, keeping the stored image.
func (s *MemoryUserStore) Upsert(_ context.Context, user *db.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.users[user.ID]
	if ok {
		existing.DisplayName = user.DisplayName
		existing.Email = user.Email
		existing.UpdatedAt = now
	} else {
		existing = db.User{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Email:       user.Email,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	s.users[user.ID] = existing
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = existing.UpdatedAt
	return nil
}

// UpdateName sets the display name.
func (s *MemoryUserStore) UpdateName(_ context.Context, id, name string) error {
	return s.update(id, func(u *db.User) { u.DisplayName = name })
}

// UpdateImage sets the profile image.
func (s *MemoryUserStore) UpdateImage(_ context.Context, id, imageURL string) error {
	return s.update(id, func(u *db.User) { u.ImageURL = &imageURL })
}

func (s *MemoryUserStore) update(id string, fn func(*db.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return db.ErrNotFound
	}
	fn(&user)
	now := time.Now()
	user.UpdatedAt = now
	user.LastSyncAt = &now
	s.users[id] = user
	return nil
}

// MemoryPostStore keeps posts in memory.
type MemoryPostStore struct {
	mu    sync.RWMutex
	posts []db.Post
	now   func() time.Time
}

// NewMemoryPostStore creates an empty MemoryPostStore.
func NewMemoryPostStore() *MemoryPostStore {
	return &MemoryPostStore{now: time.Now}
}

// Create stores a post, assigning an ID if none is set.
func (s *MemoryPostStore) Create(_ context.Context, post *db.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	post.CreatedAt = s.now()
	s.posts = append(s.posts, *post)
	return nil
}

// ListRecent returns up to limit posts, newest first.
func (s *MemoryPostStore) ListRecent(_ context.Context, limit int) ([]db.Post, error) {
	s.mu.RLock()
	posts := make([]db.Post, len(s.posts))
	copy(posts, s.posts)
	s.mu.RUnlock()

	// Newest first; of two equal timestamps the later insert comes first.
	slices.Reverse(posts)
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// ============================================================================
// Session-bound adapters for the dashboard
// ============================================================================

// sessionUsers binds a UserStore to one user for profile sync.
type sessionUsers struct {
	store  UserStore
	userID string
}

func (u sessionUsers) UpdateImage(ctx context.Context, imageURL string) error {
	return u.store.UpdateImage(ctx, u.userID, imageURL)
}

func (u sessionUsers) UpdateName(ctx context.Context, name string) error {
	return u.store.UpdateName(ctx, u.userID, name)
}

var _ profile.UserStore = sessionUsers{}
