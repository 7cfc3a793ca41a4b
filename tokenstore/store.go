// Package tokenstore persists refresh tokens and revoked access token ids.
//
// Every implementation is keyed by the token's jti and gives each entry a
// time to live. Infrastructure failures are returned wrapping
// ErrStoreUnavailable and are never reported as "not found" or
// "not blacklisted"; callers decide how to fail closed.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	refreshKeyPrefix   = "refresh:"
	blacklistKeyPrefix = "blacklist:"
)

var (
	// ErrStoreUnavailable wraps any failure to reach the backing store.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrInvalidTTL is returned for a non-positive time to live.
	ErrInvalidTTL = errors.New("token ttl must be positive")
)

// Store is the refresh token and blacklist persistence contract.
type Store interface {
	// SaveRefreshToken upserts the payload for jti, expiring after ttl.
	SaveRefreshToken(ctx context.Context, jti, payload string, ttl time.Duration) error
	// GetRefreshToken returns the payload for jti; found is false when absent or expired.
	GetRefreshToken(ctx context.Context, jti string) (payload string, found bool, err error)
	// TakeRefreshToken returns the payload for jti and deletes it in one step.
	// Of any number of concurrent callers at most one sees found == true.
	TakeRefreshToken(ctx context.Context, jti string) (payload string, found bool, err error)
	// DeleteRefreshToken removes jti. Deleting an absent jti is not an error.
	DeleteRefreshToken(ctx context.Context, jti string) error
	// AddToBlacklist marks an access token id revoked for ttl, the token's remaining lifetime.
	AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error
	// IsBlacklisted reports whether a live blacklist entry exists for jti.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// RefreshKey is the backing-store key of a refresh token.
func RefreshKey(jti string) string {
	return refreshKeyPrefix + jti
}

// BlacklistKey is the backing-store key of a blacklist entry.
func BlacklistKey(jti string) string {
	return blacklistKeyPrefix + jti
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTTL, ttl)
	}
	return nil
}
