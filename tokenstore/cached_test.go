package tokenstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/parkerroan/authgate/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records blacklist lookups against an in-memory set.
type countingStore struct {
	tokenstore.InertStore

	mu      sync.Mutex
	entries map[string]bool
	lookups int
	err     error
}

func newCountingStore() *countingStore {
	return &countingStore{entries: map[string]bool{}}
}

func (s *countingStore) AddToBlacklist(_ context.Context, jti string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries[jti] = true
	return nil
}

func (s *countingStore) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return false, s.err
	}
	return s.entries[jti], nil
}

func (s *countingStore) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func newCachedStore(t *testing.T, next tokenstore.Store) *tokenstore.CachedStore {
	t.Helper()
	s, err := tokenstore.NewCachedStore(next, tokenstore.WithMaxCacheTTL(time.Minute))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestCachedStore_PositiveAnswersAreCached(t *testing.T) {
	backing := newCountingStore()
	backing.entries["t2"] = true
	s := newCachedStore(t, backing)
	ctx := context.Background()

	blacklisted, err := s.IsBlacklisted(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, blacklisted)
	s.Wait()

	for i := 0; i < 5; i++ {
		blacklisted, err = s.IsBlacklisted(ctx, "t2")
		require.NoError(t, err)
		assert.True(t, blacklisted)
	}
	assert.Equal(t, 1, backing.Lookups())
}

func TestCachedStore_NegativeAnswersAreNotCached(t *testing.T) {
	backing := newCountingStore()
	s := newCachedStore(t, backing)
	ctx := context.Background()

	blacklisted, err := s.IsBlacklisted(ctx, "t3")
	require.NoError(t, err)
	assert.False(t, blacklisted)
	s.Wait()

	// Revoked elsewhere, straight into the backing store.
	backing.entries["t3"] = true

	blacklisted, err = s.IsBlacklisted(ctx, "t3")
	require.NoError(t, err)
	assert.True(t, blacklisted)
	assert.Equal(t, 2, backing.Lookups())
}

func TestCachedStore_AddWritesThrough(t *testing.T) {
	backing := newCountingStore()
	s := newCachedStore(t, backing)
	ctx := context.Background()

	require.NoError(t, s.AddToBlacklist(ctx, "t4", 10*time.Second))
	s.Wait()

	assert.True(t, backing.entries["t4"])

	blacklisted, err := s.IsBlacklisted(ctx, "t4")
	require.NoError(t, err)
	assert.True(t, blacklisted)
	assert.Zero(t, backing.Lookups())
}

func TestCachedStore_AddHonorsShorterTTL(t *testing.T) {
	backing := newCountingStore()
	s := newCachedStore(t, backing)
	ctx := context.Background()

	require.NoError(t, s.AddToBlacklist(ctx, "t6", 100*time.Millisecond))
	s.Wait()

	backing.mu.Lock()
	delete(backing.entries, "t6")
	backing.mu.Unlock()

	time.Sleep(250 * time.Millisecond)

	blacklisted, err := s.IsBlacklisted(ctx, "t6")
	require.NoError(t, err)
	assert.False(t, blacklisted, "cached entry must expire with the entry ttl, not the cache max")
	assert.Equal(t, 1, backing.Lookups())
}

func TestCachedStore_ErrorsPropagate(t *testing.T) {
	backing := newCountingStore()
	backing.err = fmt.Errorf("%w: check blacklist: %w", tokenstore.ErrStoreUnavailable, errors.New("connection refused"))
	s := newCachedStore(t, backing)
	ctx := context.Background()

	_, err := s.IsBlacklisted(ctx, "t5")
	assert.ErrorIs(t, err, tokenstore.ErrStoreUnavailable)

	err = s.AddToBlacklist(ctx, "t5", time.Minute)
	assert.ErrorIs(t, err, tokenstore.ErrStoreUnavailable)
	s.Wait()

	// A failed add must not leave a cached entry.
	backing.err = nil
	blacklisted, err := s.IsBlacklisted(ctx, "t5")
	require.NoError(t, err)
	assert.False(t, blacklisted)
}

func TestCachedStore_DelegatesRefreshTokens(t *testing.T) {
	s := newCachedStore(t, newSQLiteStore(t))
	ctx := context.Background()

	require.NoError(t, s.SaveRefreshToken(ctx, "t1", "u1:USER", time.Minute))
	payload, found, err := s.GetRefreshToken(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "u1:USER", payload)
}
