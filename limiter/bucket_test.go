package limiter_test

import (
	"sync"
	"testing"
	"time"

	"github.com/parkerroan/authgate/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func BenchmarkBucket_TryAccept(b *testing.B) {
	bucket := limiter.NewBucket(limiter.Policy{Capacity: 10, Period: time.Second}, time.Now())
	now := time.Now()

	for i := 0; i < b.N; i++ {
		bucket.TryAccept(now)
	}
}

func TestBucket_TryAcceptWithInfo(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bucket := limiter.NewBucket(limiter.Policy{Capacity: 3, Period: time.Minute}, now)

	ok, info := bucket.TryAcceptWithInfo(now)
	require.True(t, ok, "First request should be allowed")
	assert.Equal(t, 2, info.Remaining)
	assert.Equal(t, 3, info.Limit)
	assert.Equal(t, time.Minute, info.Window)

	ok, info = bucket.TryAcceptWithInfo(now)
	require.True(t, ok, "Second request should be allowed")
	assert.Equal(t, 1, info.Remaining)

	ok, info = bucket.TryAcceptWithInfo(now)
	require.True(t, ok, "Third request should be allowed")
	assert.Equal(t, 0, info.Remaining)

	ok, info = bucket.TryAcceptWithInfo(now)
	assert.False(t, ok, "Fourth request should not be allowed")
	assert.Equal(t, 0, info.Remaining)
	// 3 tokens per minute is one token every 20 seconds.
	assert.InDelta(t, float64(20*time.Second), float64(info.Reset), float64(time.Millisecond))
}

func TestBucket_RefillsAfterPeriod(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bucket := limiter.NewBucket(limiter.Policy{Capacity: 10, Period: time.Minute}, now)

	for i := 0; i < 10; i++ {
		require.True(t, bucket.TryAccept(now), "request %d should be allowed", i+1)
	}
	require.False(t, bucket.TryAccept(now))

	later := now.Add(time.Minute)
	assert.InDelta(t, 10, bucket.Available(later), 0.001)
	for i := 0; i < 10; i++ {
		assert.True(t, bucket.TryAccept(later), "request %d after refill should be allowed", i+1)
	}
	assert.False(t, bucket.TryAccept(later))
}

func TestBucket_PartialRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bucket := limiter.NewBucket(limiter.Policy{Capacity: 10, Period: time.Minute}, now)

	for i := 0; i < 10; i++ {
		require.True(t, bucket.TryAccept(now))
	}

	// Half a token has regenerated, so the wait is the other half.
	ok, info := bucket.TryAcceptWithInfo(now.Add(3 * time.Second))
	assert.False(t, ok)
	assert.InDelta(t, float64(3*time.Second), float64(info.Reset), float64(time.Millisecond))

	assert.True(t, bucket.TryAccept(now.Add(6*time.Second)))
}

func TestBucket_NeverExceedsCapacity(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	bucket := limiter.NewBucket(limiter.Policy{Capacity: 5, Period: time.Second}, now)

	assert.InDelta(t, 5, bucket.Available(now.Add(time.Hour)), 0.001)
}

func TestBucket_ConcurrentConsumption(t *testing.T) {
	const capacity, extra = 20, 15

	now := time.Unix(1_700_000_000, 0)
	bucket := limiter.NewBucket(limiter.Policy{Capacity: capacity, Period: time.Minute}, now)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < capacity+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bucket.TryAccept(now) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, allowed)
}

func TestBucket_LimitDetails(t *testing.T) {
	bucket := limiter.NewBucket(limiter.Policy{Capacity: 2, Period: 5 * time.Second}, time.Now())

	size, window := bucket.LimitDetails()
	assert.Equal(t, 2, size)
	assert.Equal(t, 5*time.Second, window)
}

func TestPolicy_Validate(t *testing.T) {
	testCases := []struct {
		description string
		policy      limiter.Policy
		valid       bool
	}{
		{description: "positive values", policy: limiter.Policy{Capacity: 10, Period: time.Minute}, valid: true},
		{description: "zero capacity", policy: limiter.Policy{Capacity: 0, Period: time.Minute}},
		{description: "negative capacity", policy: limiter.Policy{Capacity: -1, Period: time.Minute}},
		{description: "zero period", policy: limiter.Policy{Capacity: 10}},
		{description: "sub-second period", policy: limiter.Policy{Capacity: 10, Period: 500 * time.Millisecond}},
		{description: "fractional seconds", policy: limiter.Policy{Capacity: 10, Period: 1500 * time.Millisecond}},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			err := tc.policy.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, limiter.ErrInvalidPolicy)
		})
	}
}
