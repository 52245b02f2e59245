package postgrest

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Session resolves the user behind an access token. An empty token yields
// an anonymous session without contacting the server.
func (c *Client) Session(ctx context.Context, accessToken string) (types.StaticSession, error) {
	if accessToken == "" {
		return types.StaticSession{}, nil
	}
	if err := ctx.Err(); err != nil {
		return types.StaticSession{}, err
	}
	user, err := c.sb.Auth.WithToken(accessToken).GetUser()
	if err != nil {
		return types.StaticSession{}, fmt.Errorf("resolving session: %w", err)
	}
	c.log.Info().Str("user_id", user.ID.String()).Msg("session resolved")
	return types.StaticSession{ID: user.ID.String()}, nil
}
