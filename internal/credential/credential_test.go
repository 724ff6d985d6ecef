package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func clock() time.Time { return fixedNow }

func TestCredentialUsable(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{"empty token", Credential{Token: "", ExpiresAt: fixedNow.Unix() + 3600}, false},
		{"zero value", Credential{}, false},
		{"expired", Credential{Token: "abc", ExpiresAt: fixedNow.Unix() - 1}, false},
		{"expires now", Credential{Token: "abc", ExpiresAt: fixedNow.Unix()}, false},
		{"valid", Credential{Token: "abc", ExpiresAt: fixedNow.Unix() + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.cred.Usable(fixedNow))
		})
	}
}

func TestGateEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		cred         Credential
		wantAllowed  bool
		wantRedirect string
	}{
		{
			name:         "empty token and zero expiry redirects",
			cred:         Credential{Token: "", ExpiresAt: 0},
			wantRedirect: AuthorizePath,
		},
		{
			name:         "expired token redirects",
			cred:         Credential{Token: "tok", ExpiresAt: fixedNow.Unix() - 60},
			wantRedirect: AuthorizePath,
		},
		{
			name:        "valid token allowed",
			cred:        Credential{Token: "tok", ExpiresAt: fixedNow.Unix() + 60},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			src := SourceFunc(func(context.Context) (Credential, error) {
				calls++
				return tt.cred, nil
			})

			d, err := NewGate(src, WithClock(clock)).Evaluate(context.Background())
			require.NoError(t, err)
			require.Equal(t, 1, calls)
			require.Equal(t, tt.wantAllowed, d.Allowed())
			require.Equal(t, tt.wantRedirect, d.Redirect)

			if tt.wantAllowed {
				require.NoError(t, d.Err())
				require.Equal(t, tt.cred, d.Credential)
			} else {
				require.ErrorIs(t, d.Err(), ErrUnavailable)
				require.Empty(t, d.Credential.Token)
			}
		})
	}
}

func TestGateEvaluate_SourceFailureDoesNotRedirect(t *testing.T) {
	boom := errors.New("connection refused")
	src := SourceFunc(func(context.Context) (Credential, error) {
		return Credential{}, boom
	})

	d, err := NewGate(src).Evaluate(context.Background())
	require.ErrorIs(t, err, ErrSessionFetch)
	require.ErrorIs(t, err, boom)
	require.Empty(t, d.Redirect)
	require.False(t, d.Credential.Usable(time.Now()))
}

func TestGateEvaluate_CustomAuthorizePath(t *testing.T) {
	src := SourceFunc(func(context.Context) (Credential, error) {
		return Credential{}, nil
	})

	d, err := NewGate(src, WithAuthorizePath("/login")).Evaluate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/login", d.Redirect)
}

func TestOAuth2RoundTrip(t *testing.T) {
	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       fixedNow.Add(time.Hour),
	}

	c := FromOAuth2(token)
	require.Equal(t, "access", c.Token)
	require.Equal(t, fixedNow.Add(time.Hour).Unix(), c.ExpiresAt)

	back := c.OAuth2Token()
	require.Equal(t, "access", back.AccessToken)
	require.Equal(t, "Bearer", back.TokenType)
	require.Empty(t, back.RefreshToken)

	require.Equal(t, Credential{}, FromOAuth2(nil))
}

func TestSessionPayload(t *testing.T) {
	p := NewSessionPayload(Credential{Token: "t", ExpiresAt: 42})
	require.Equal(t, SessionPayload{AccessToken: "t", TokenExpires: 42}, p)
	require.Equal(t, Credential{Token: "t", ExpiresAt: 42}, p.Credential())
}
