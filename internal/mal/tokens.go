package mal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"animehub/internal/auth"
)

// expiryBuffer refreshes tokens slightly before they actually expire so a
// long-running sync never trips over mid-flight expiry.
const expiryBuffer = 5 * time.Minute

// EnsureValidToken returns an access token usable right now, refreshing and
// persisting a new pair when the stored one is expired or about to expire.
// The user struct is updated in place so callers see the rotated tokens.
func (c *Client) EnsureValidToken(ctx context.Context, user *auth.User) (string, error) {
	if !user.HasMALTokens() {
		return "", &AuthError{Reason: "no myanimelist account linked"}
	}

	if user.MALTokenExpiresAt != nil && time.Until(*user.MALTokenExpiresAt) > expiryBuffer {
		return user.MALAccessToken, nil
	}

	tok, err := c.RefreshToken(ctx, user.MALRefreshToken)
	if err != nil {
		// A 400-class rejection of the refresh grant means the stored
		// credentials are dead, not that MAL is down.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return "", &AuthError{Reason: "refresh token rejected", Err: err}
		}
		return "", fmt.Errorf("refresh mal token for user %s: %w", user.ID, err)
	}

	expiresAt := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := c.tokens.StoreMALTokens(ctx, user.ID, tok.AccessToken, tok.RefreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed tokens for user %s: %w", user.ID, err)
	}

	user.MALAccessToken = tok.AccessToken
	user.MALRefreshToken = tok.RefreshToken
	user.MALTokenExpiresAt = &expiresAt

	log.Printf("[mal] refreshed access token for user %s", user.ID)
	return tok.AccessToken, nil
}
