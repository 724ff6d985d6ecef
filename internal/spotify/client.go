// Package spotify provides a wrapper around the Spotify Web API for catalog
// search, the current user's profile and their top items.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/justestif/song-posts/internal/credential"
)

var (
	// ErrRemoteFetch matches every failed catalog call.
	ErrRemoteFetch = errors.New("spotify request failed")

	// ErrInvalidQuery is returned before any call for malformed top-items queries.
	ErrInvalidQuery = errors.New("invalid top items query")
)

// FetchError describes a failed catalog call.
type FetchError struct {
	Op     string
	Status int // HTTP status reported by Spotify, 0 for transport errors
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes every FetchError match ErrRemoteFetch.
func (e *FetchError) Is(target error) bool { return target == ErrRemoteFetch }

func fetchError(op string, err error) error {
	fe := &FetchError{Op: op, Err: err}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		fe.Status = apiErr.Status
	}
	return fe
}

// Client issues catalog calls on behalf of a credential.
// It holds no token itself; every call receives the credential to use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the base HTTP client used beneath the bearer transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a different API root. The URL must end in "/".
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithRateLimit bounds outgoing calls to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// New creates a new Spotify client wrapper.
func New(opts ...Option) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// api builds a zmb3 client authorised with cred. The token source is static so
// an expired token is sent as-is instead of being refreshed.
func (c *Client) api(ctx context.Context, cred credential.Credential) (*spotify.Client, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(cred.OAuth2Token()))

	var opts []spotify.ClientOption
	if c.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.baseURL))
	}
	return spotify.New(hc, opts...), nil
}
