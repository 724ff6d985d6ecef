package spotify

import (
	"context"

	"github.com/justestif/song-posts/internal/credential"
)

// CurrentProfile fetches the profile of the user owning cred (GET /v1/me).
func (c *Client) CurrentProfile(ctx context.Context, cred credential.Credential) (*Profile, error) {
	api, err := c.api(ctx, cred)
	if err != nil {
		return nil, fetchError("getting current user", err)
	}

	user, err := api.CurrentUser(ctx)
	if err != nil {
		return nil, fetchError("getting current user", err)
	}

	images := make([]string, len(user.Images))
	for i, img := range user.Images {
		images[i] = img.URL
	}

	return &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		ImageURLs:   images,
	}, nil
}
