package limiter

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token bucket for one (route class, client) pair.
//
// Tokens regenerate continuously at Capacity/Period per second and are
// computed from the elapsed time at each call; nothing runs in the background.
// The refill-and-consume step is atomic per bucket.
type Bucket struct {
	limiter  *rate.Limiter
	policy   Policy
	lastSeen atomic.Int64 // unix nanos of the last lookup, used for idle eviction
}

var _ Limiter = (*Bucket)(nil)

// NewBucket returns a full bucket for the policy.
func NewBucket(policy Policy, now time.Time) *Bucket {
	limit := rate.Limit(float64(policy.Capacity) / policy.Period.Seconds())

	b := &Bucket{
		limiter: rate.NewLimiter(limit, policy.Capacity),
		policy:  policy,
	}
	b.touch(now)
	return b
}

// TryAccept consumes one token if available.
func (b *Bucket) TryAccept(now time.Time) bool {
	ok, _ := b.TryAcceptWithInfo(now)
	return ok
}

// TryAcceptWithInfo consumes one token if available and reports the bucket state.
// When rejected, Reset is the time until a whole token will have regenerated.
func (b *Bucket) TryAcceptWithInfo(now time.Time) (bool, RateLimitInfo) {
	info := RateLimitInfo{
		Limit:  b.policy.Capacity,
		Window: b.policy.Period,
	}

	if b.limiter.AllowN(now, 1) {
		info.Remaining = wholeTokens(b.limiter.TokensAt(now))
		return true, info
	}

	tokens := b.limiter.TokensAt(now)
	info.Remaining = wholeTokens(tokens)

	missing := 1 - tokens
	if missing < 0 {
		missing = 0
	}
	perSecond := float64(b.limiter.Limit())
	info.Reset = time.Duration(missing / perSecond * float64(time.Second))

	return false, info
}

// Available returns the tokens the bucket would hold at now, without consuming any.
func (b *Bucket) Available(now time.Time) float64 {
	return b.limiter.TokensAt(now)
}

// LimitDetails returns the capacity and refill period of the bucket.
func (b *Bucket) LimitDetails() (int, time.Duration) {
	return b.policy.Capacity, b.policy.Period
}

// LastSeen returns the time of the most recent registry lookup of this bucket.
func (b *Bucket) LastSeen() time.Time {
	return time.Unix(0, b.lastSeen.Load())
}

func (b *Bucket) touch(now time.Time) {
	b.lastSeen.Store(now.UnixNano())
}

func wholeTokens(tokens float64) int {
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}
