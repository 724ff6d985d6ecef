// Package backend is an HTTP client for the song-posts server. It carries the
// browser session cookie and implements the collaborators the dashboard needs:
// the session credential source, the user profile store, the post store and
// the post list refresher.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/justestif/song-posts/internal/credential"
	"github.com/justestif/song-posts/internal/dashboard"
	"github.com/justestif/song-posts/internal/profile"
)

// SessionCookieName is the cookie the server reads the session from.
const SessionCookieName = "session_id"

// ErrUnexpectedStatus is matched by every StatusError.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Is reports whether target is ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Post is a stored post as listed by GET /posts.
type Post struct {
	ID string `json:"id"`
	dashboard.DraftPost
	CreatedAt time.Time `json:"created_at"`
}

// Client talks to the song-posts server on behalf of one session.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client

	mu    sync.Mutex
	posts []Post
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a Client for the server at baseURL using sessionID as cookie.
func New(baseURL, sessionID string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		sessionID: sessionID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credential fetches the session's Spotify token (GET /api/spotify-session).
func (c *Client) Credential(ctx context.Context) (credential.Credential, error) {
	var payload credential.SessionPayload
	if err := c.do(ctx, http.MethodGet, "/api/spotify-session", nil, &payload); err != nil {
		return credential.Credential{}, err
	}
	return payload.Credential(), nil
}

// UpdateImage mirrors the profile image (POST /update-user-image).
func (c *Client) UpdateImage(ctx context.Context, imageURL string) error {
	body := struct {
		ProfileURL string `json:"profile_url"`
	}{imageURL}
	return c.do(ctx, http.MethodPost, "/update-user-image", body, nil)
}

// UpdateName mirrors the display name (POST /update-user-name).
func (c *Client) UpdateName(ctx context.Context, name string) error {
	body := struct {
		Name string `json:"name"`
	}{name}
	return c.do(ctx, http.MethodPost, "/update-user-name", body, nil)
}

// CreatePost sends a draft as a new post (POST /posts).
func (c *Client) CreatePost(ctx context.Context, post dashboard.DraftPost) error {
	return c.do(ctx, http.MethodPost, "/posts", post, nil)
}

// ListPosts returns the post list, newest first (GET /posts).
func (c *Client) ListPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := c.do(ctx, http.MethodGet, "/posts", nil, &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

// Refresh re-fetches the post list and keeps it for Posts.
func (c *Client) Refresh(ctx context.Context) error {
	posts, err := c.ListPosts(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.posts = posts
	c.mu.Unlock()
	return nil
}

// Posts returns the list from the last successful Refresh.
func (c *Client) Posts() []Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Post(nil), c.posts...)
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

var (
	_ credential.Source   = (*Client)(nil)
	_ profile.UserStore   = (*Client)(nil)
	_ dashboard.PostStore = (*Client)(nil)
	_ dashboard.Refresher = (*Client)(nil)
)
