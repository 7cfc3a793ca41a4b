package tokenstore

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

const defaultMaxCacheTTL = 30 * time.Second

// CachedStore remembers positive blacklist answers in memory so repeated
// checks of a revoked token skip the backing store. Negative answers are
// never cached: a token revoked on another node must be seen immediately.
//
// Entries added through AddToBlacklist are cached for min(ttl, max cache TTL).
// Positive answers read from the backing store are cached for the max cache
// TTL, so a cached entry may outlive the backing entry by up to that long. The
// blacklist TTL equals the access token's remaining lifetime, so by then the
// token has expired anyway.
type CachedStore struct {
	Store
	cache  *ristretto.Cache
	maxTTL time.Duration
}

// NewCachedStore wraps next with a positive blacklist cache.
func NewCachedStore(next Store, opts ...func(*CachedStore)) (*CachedStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	s := &CachedStore{Store: next, cache: cache, maxTTL: defaultMaxCacheTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// WithMaxCacheTTL bounds how long a positive answer is served from memory.
// default: 30s
func WithMaxCacheTTL(d time.Duration) func(*CachedStore) {
	return func(s *CachedStore) {
		if d > 0 {
			s.maxTTL = d
		}
	}
}

func (s *CachedStore) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if err := s.Store.AddToBlacklist(ctx, jti, ttl); err != nil {
		return err
	}
	s.remember(jti, ttl)
	return nil
}

func (s *CachedStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if _, ok := s.cache.Get(BlacklistKey(jti)); ok {
		return true, nil
	}

	blacklisted, err := s.Store.IsBlacklisted(ctx, jti)
	if err != nil || !blacklisted {
		return blacklisted, err
	}

	s.remember(jti, s.maxTTL)
	return true, nil
}

// Wait blocks until pending cache writes are applied.
func (s *CachedStore) Wait() {
	s.cache.Wait()
}

// Close releases the cache.
func (s *CachedStore) Close() {
	s.cache.Close()
}

func (s *CachedStore) remember(jti string, ttl time.Duration) {
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.cache.SetWithTTL(BlacklistKey(jti), true, 1, ttl)
}
