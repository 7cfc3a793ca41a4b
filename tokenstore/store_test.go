package tokenstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/parkerroan/authgate/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every durable Store shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) tokenstore.Store) {
	t.Helper()

	t.Run("save then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveRefreshToken(ctx, "t1", "u1:USER", time.Minute))

		payload, found, err := s.GetRefreshToken(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "u1:USER", payload)
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveRefreshToken(ctx, "t1", "u1:USER", time.Minute))
		require.NoError(t, s.SaveRefreshToken(ctx, "t1", "u1:ADMIN", time.Minute))

		payload, found, err := s.GetRefreshToken(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "u1:ADMIN", payload)
	})

	t.Run("delete then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveRefreshToken(ctx, "t1", "u1:USER", time.Minute))
		require.NoError(t, s.DeleteRefreshToken(ctx, "t1"))

		_, found, err := s.GetRefreshToken(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete unknown is not an error", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.DeleteRefreshToken(context.Background(), "missing"))
	})

	t.Run("take consumes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveRefreshToken(ctx, "t1", "u1:USER", time.Minute))

		payload, found, err := s.TakeRefreshToken(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "u1:USER", payload)

		_, found, err = s.TakeRefreshToken(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.GetRefreshToken(ctx, "t1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("take unknown", func(t *testing.T) {
		s := newStore(t)
		payload, found, err := s.TakeRefreshToken(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, payload)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		payload, found, err := s.GetRefreshToken(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, payload)
	})

	t.Run("blacklist", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.AddToBlacklist(ctx, "t2", 30*time.Second))

		blacklisted, err := s.IsBlacklisted(ctx, "t2")
		require.NoError(t, err)
		assert.True(t, blacklisted)

		blacklisted, err = s.IsBlacklisted(ctx, "never-added")
		require.NoError(t, err)
		assert.False(t, blacklisted)
	})

	t.Run("refresh and blacklist namespaces are separate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.AddToBlacklist(ctx, "shared", time.Minute))

		_, found, err := s.GetRefreshToken(ctx, "shared")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("invalid ttl", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		assert.ErrorIs(t, s.SaveRefreshToken(ctx, "t1", "u1:USER", 0), tokenstore.ErrInvalidTTL)
		assert.ErrorIs(t, s.AddToBlacklist(ctx, "t2", -time.Second), tokenstore.ErrInvalidTTL)
	})
}

func TestInertStore(t *testing.T) {
	s := tokenstore.InertStore{}
	ctx := context.Background()

	require.NoError(t, s.SaveRefreshToken(ctx, "t1", "u1:USER", time.Minute))
	_, found, err := s.GetRefreshToken(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.TakeRefreshToken(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.AddToBlacklist(ctx, "t2", time.Minute))
	blacklisted, err := s.IsBlacklisted(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, blacklisted)

	assert.NoError(t, s.DeleteRefreshToken(ctx, "t1"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "refresh:t1", tokenstore.RefreshKey("t1"))
	assert.Equal(t, "blacklist:t2", tokenstore.BlacklistKey("t2"))
}
