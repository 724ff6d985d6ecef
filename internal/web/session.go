package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session is a signed-in dashboard visitor. It lives longer than its Spotify
// token: once the token expires the dashboard sends the visitor back through
// authorization, which refreshes the token in place.
type Session struct {
	ID           string
	UserID       string
	UserName     string
	SpotifyToken *oauth2.Token
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Credential returns the session's Spotify token for the credential gate.
// A nil session yields the zero Credential, which the gate rejects.
func (s *Session) Credential() credential.Credential {
	if s == nil {
		return credential.Credential{}
	}
	return credential.FromOAuth2(s.SpotifyToken)
}

// CanSearch reports whether the session may still reach the catalog at now.
func (s *Session) CanSearch(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt) && s.Credential().Usable(now)
}

// SessionManager is implemented by the memory and PostgreSQL session stores.
type SessionManager interface {
	Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	UpdateToken(ctx context.Context, id string, token *oauth2.Token)
	DeleteExpired(ctx context.Context) (int64, error)
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// sessionCookies carries the cookie half of SessionManager for both stores.
type sessionCookies struct{}

// SetCookie points the browser at session.
func (sessionCookies) SetCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// ClearCookie signs the browser out.
func (sessionCookies) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func sessionFromRequest(r *http.Request, get func(context.Context, string) *Session) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return get(r.Context(), cookie.Value)
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SessionStore keeps sessions in memory. Used when no database is configured
// and in tests.
type SessionStore struct {
	sessionCookies

	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore returns an empty in-memory store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create signs userID in with token.
func (s *SessionStore) Create(_ context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:           id,
		UserID:       userID,
		UserName:     userName,
		SpotifyToken: token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()
	return session, nil
}

// Get returns the session with id, or nil when it is unknown or expired.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || !s.now().Before(session.ExpiresAt) {
		return nil
	}
	return session
}

// Delete signs the session out.
func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// UpdateToken replaces the Spotify token after a re-authorization.
func (s *SessionStore) UpdateToken(_ context.Context, id string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.SpotifyToken = token
	}
}

// DeleteExpired drops sessions past their expiry.
func (s *SessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// GetFromRequest resolves the request's session cookie.
func (s *SessionStore) GetFromRequest(r *http.Request) *Session {
	return sessionFromRequest(r, s.Get)
}

// DBSessionStore keeps sessions in PostgreSQL.
type DBSessionStore struct {
	sessionCookies

	repo *db.SessionRepository
}

// NewDBSessionStore returns a store backed by database.
func NewDBSessionStore(database *db.DB) *DBSessionStore {
	return &DBSessionStore{repo: database.Sessions()}
}

// Create signs userID in with token.
func (s *DBSessionStore) Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:           id,
		UserID:       userID,
		UserName:     userName,
		SpotifyToken: token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	row := &db.Session{
		ID:        id,
		UserID:    userID,
		Spotify:   storedToken(token),
		CreatedAt: now,
		ExpiresAt: session.ExpiresAt,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns the session with id, or nil when it is unknown or expired.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	row, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil
	}
	return &Session{
		ID:       row.ID,
		UserID:   row.UserID,
		UserName: row.UserName,
		SpotifyToken: &oauth2.Token{
			AccessToken:  row.Spotify.Access,
			RefreshToken: row.Spotify.Refresh,
			Expiry:       row.Spotify.Expiry,
			TokenType:    "Bearer",
		},
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}
}

// Delete signs the session out.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	_ = s.repo.Delete(ctx, id)
}

// UpdateToken replaces the Spotify token after a re-authorization.
func (s *DBSessionStore) UpdateToken(ctx context.Context, id string, token *oauth2.Token) {
	_ = s.repo.UpdateToken(ctx, id, storedToken(token))
}

// DeleteExpired drops sessions past their expiry.
func (s *DBSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

// GetFromRequest resolves the request's session cookie.
func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	return sessionFromRequest(r, s.Get)
}

func storedToken(t *oauth2.Token) db.SpotifyToken {
	return db.SpotifyToken{Access: t.AccessToken, Refresh: t.RefreshToken, Expiry: t.Expiry}
}

var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
