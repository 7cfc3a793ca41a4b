package limiter

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	defaultShards     = 32
	defaultMaxBuckets = 100_000
)

// Registry maps bucket keys to buckets.
//
// Keys are spread over independently locked shards, so a lookup only
// contends with lookups that hash to the same shard, and no lock is held
// while a bucket is consumed. Each shard is a bounded LRU: on insert, the
// least recently used buckets that have been idle longer than the idle
// threshold are dropped, and when a shard is full its least recently used
// bucket is dropped.
type Registry struct {
	shards     []*shard
	maxBuckets int
	idleAfter  time.Duration
}

type shard struct {
	mu      sync.Mutex
	buckets *simplelru.LRU[string, *Bucket]
}

// NewRegistry creates a Registry. Buckets are never evicted for idleness
// unless WithIdleAfter is set.
func NewRegistry(opts ...func(*Registry)) *Registry {
	r := &Registry{
		shards:     make([]*shard, defaultShards),
		maxBuckets: defaultMaxBuckets,
	}

	// Apply all provided options
	for _, opt := range opts {
		opt(r)
	}

	perShard := r.maxBuckets / len(r.shards)
	if perShard < 1 {
		perShard = 1
	}
	for i := range r.shards {
		// size is always positive here, which is the only error NewLRU reports
		buckets, _ := simplelru.NewLRU[string, *Bucket](perShard, nil)
		r.shards[i] = &shard{buckets: buckets}
	}

	return r
}

// WithShards sets the number of independently locked shards.
// default: 32
func WithShards(n int) func(*Registry) {
	return func(r *Registry) {
		if n > 0 {
			r.shards = make([]*shard, n)
		}
	}
}

// WithMaxBuckets bounds the total number of buckets held, split evenly across shards.
// default: 100000
func WithMaxBuckets(n int) func(*Registry) {
	return func(r *Registry) {
		if n > 0 {
			r.maxBuckets = n
		}
	}
}

// WithIdleAfter sets how long a bucket may go unused before it can be evicted.
// It should be at least the longest policy period: a bucket idle for a full
// period has refilled completely and is indistinguishable from a new one.
func WithIdleAfter(d time.Duration) func(*Registry) {
	return func(r *Registry) {
		r.idleAfter = d
	}
}

// GetOrCreate returns the bucket stored under key, creating it with policy if absent.
// Concurrent callers for the same key always receive the same bucket.
func (r *Registry) GetOrCreate(key string, policy Policy, now time.Time) *Bucket {
	s := r.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets.Get(key); ok {
		b.touch(now)
		return b
	}

	s.evictIdle(now, r.idleAfter)

	b := NewBucket(policy, now)
	s.buckets.Add(key, b)
	return b
}

// Len returns the number of buckets currently held.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += s.buckets.Len()
		s.mu.Unlock()
	}
	return n
}

func (r *Registry) shardFor(key string) *shard {
	return r.shards[xxhash.Sum64String(key)%uint64(len(r.shards))]
}

// evictIdle drops buckets from the cold end of the shard while they are idle.
func (s *shard) evictIdle(now time.Time, idleAfter time.Duration) {
	if idleAfter <= 0 {
		return
	}
	for {
		_, oldest, ok := s.buckets.GetOldest()
		if !ok || now.Sub(oldest.LastSeen()) <= idleAfter {
			return
		}
		s.buckets.RemoveOldest()
	}
}
