// Package credential decides whether the delegated Spotify access token held by
// the current session can be used for catalog calls.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// AuthorizePath is the navigation target used when no usable credential exists.
const AuthorizePath = "/authorize-spotify"

var (
	// ErrUnavailable reports a missing or expired credential.
	ErrUnavailable = errors.New("spotify credential unavailable")

	// ErrSessionFetch is returned when the session backend could not be asked
	// for the credential at all.
	ErrSessionFetch = errors.New("fetching spotify session failed")
)

// Credential is a delegated access token and its expiry in epoch seconds.
type Credential struct {
	Token     string
	ExpiresAt int64
}

// Usable reports whether the token is non-empty and has not expired at now.
func (c Credential) Usable(now time.Time) bool {
	return c.Token != "" && now.Unix() < c.ExpiresAt
}

// OAuth2Token returns the credential as a static bearer token.
// No refresh token is carried, so the token is never renewed locally.
func (c Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
		Expiry:      time.Unix(c.ExpiresAt, 0),
	}
}

// FromOAuth2 converts a token obtained through the OAuth flow.
// A nil token yields the zero Credential.
func FromOAuth2(token *oauth2.Token) Credential {
	if token == nil {
		return Credential{}
	}
	var expires int64
	if !token.Expiry.IsZero() {
		expires = token.Expiry.Unix()
	}
	return Credential{Token: token.AccessToken, ExpiresAt: expires}
}

// SessionPayload is the JSON body of GET /api/spotify-session.
type SessionPayload struct {
	AccessToken  string `json:"spotify_access_token"`
	TokenExpires int64  `json:"spotify_token_expires"`
}

// Credential converts the payload.
func (p SessionPayload) Credential() Credential {
	return Credential{Token: p.AccessToken, ExpiresAt: p.TokenExpires}
}

// NewSessionPayload builds the wire form of c.
func NewSessionPayload(c Credential) SessionPayload {
	return SessionPayload{AccessToken: c.Token, TokenExpires: c.ExpiresAt}
}

// Source supplies the current session's credential.
type Source interface {
	Credential(ctx context.Context) (Credential, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Credential, error)

// Credential calls f.
func (f SourceFunc) Credential(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// Decision is the outcome of a gate evaluation. Exactly one of Credential
// (when allowed) or Redirect is meaningful.
type Decision struct {
	Credential Credential
	Redirect   string
}

// Allowed reports whether catalog calls may proceed.
func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// Err returns ErrUnavailable when the decision is a redirect.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return ErrUnavailable
}

// Gate is a binary check on the session credential.
type Gate struct {
	source        Source
	now           func() time.Time
	authorizePath string
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithAuthorizePath overrides the redirect target.
func WithAuthorizePath(path string) Option {
	return func(g *Gate) {
		g.authorizePath = path
	}
}

// NewGate creates a Gate reading from source.
func NewGate(source Source, opts ...Option) *Gate {
	g := &Gate{
		source:        source,
		now:           time.Now,
		authorizePath: AuthorizePath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate asks the source once and decides.
// A source failure is returned as an error and never turns into a redirect,
// so a broken session backend cannot cause a redirect loop.
func (g *Gate) Evaluate(ctx context.Context) (Decision, error) {
	c, err := g.source.Credential(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrSessionFetch, err)
	}

	if !c.Usable(g.now()) {
		return Decision{Redirect: g.authorizePath}, nil
	}

	return Decision{Credential: c}, nil
}
