package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	// refreshTokenPrefix is the Redis key prefix for active refresh tokens.
	refreshTokenPrefix = "session:refresh:"
	// revokedAccessPrefix is the Redis key prefix for revoked access tokens.
	revokedAccessPrefix = "session:revoked:"
)

// StoreRefreshToken records an issued refresh token so it can be revoked
// or rotated. The key is a QuickHash of the token, never the token itself.
func (c *Cache) StoreRefreshToken(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	key := refreshTokenPrefix + tokenHash
	if err := c.client.Set(ctx, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// RefreshTokenUser returns the user a refresh token was issued to.
// Returns empty string if the token is unknown (revoked, rotated or expired).
func (c *Cache) RefreshTokenUser(ctx context.Context, tokenHash string) (string, error) {
	key := refreshTokenPrefix + tokenHash
	userID, err := c.client.Get(ctx, key).Result()
	if err != nil {
		// Unknown token is not an error
		return "", nil //nolint:nilerr
	}
	return userID, nil
}

// DeleteRefreshToken removes a refresh token from the active set.
// Used on logout and rotation.
func (c *Cache) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	return c.client.Del(ctx, refreshTokenPrefix+tokenHash).Err()
}

// RevokeAccessToken puts an access token on the denylist until its natural
// expiry. ttl should be the remaining token lifetime.
func (c *Cache) RevokeAccessToken(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // Already expired, nothing to revoke
	}
	key := revokedAccessPrefix + tokenHash
	if err := c.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

// IsAccessTokenRevoked checks the revocation denylist.
func (c *Cache) IsAccessTokenRevoked(ctx context.Context, tokenHash string) (bool, error) {
	key := revokedAccessPrefix + tokenHash
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
