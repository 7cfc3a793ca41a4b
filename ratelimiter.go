package authgate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/parkerroan/authgate/limiter"
	"golang.org/x/exp/slog"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int // Whole seconds until a retry can succeed, at least 1 when rejected
	Class             RouteClass
	Limit             int
	Remaining         int
}

// DefaultPolicies are the stock capacity and period per class.
func DefaultPolicies() map[RouteClass]limiter.Policy {
	return map[RouteClass]limiter.Policy{
		Login:      {Capacity: 10, Period: time.Minute},
		Signup:     {Capacity: 10, Period: time.Minute},
		Refresh:    {Capacity: 20, Period: 5 * time.Minute},
		PublicRead: {Capacity: 100, Period: time.Minute},
	}
}

// RateLimiter decides whether a request may proceed based on its route class and client.
type RateLimiter struct {
	routes       *RouteTable
	policies     map[RouteClass]limiter.Policy
	registry     *limiter.Registry
	registryOpts []func(*limiter.Registry)
	events       EventSink
	now          func() time.Time
}

// NewRateLimiter creates a RateLimiter. Every managed class must have a valid policy.
func NewRateLimiter(policies map[RouteClass]limiter.Policy, opts ...func(*RateLimiter)) (*RateLimiter, error) {
	rl := &RateLimiter{
		routes:   DefaultRouteTable(),
		policies: make(map[RouteClass]limiter.Policy, len(policies)),
		now:      time.Now,
	}

	var longest time.Duration
	for _, class := range RouteClasses {
		policy, ok := policies[class]
		if !ok {
			return nil, fmt.Errorf("%w: no policy for %s", limiter.ErrInvalidPolicy, class)
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", class, err)
		}
		rl.policies[class] = policy
		if policy.Period > longest {
			longest = policy.Period
		}
	}

	// Apply all provided options
	for _, opt := range opts {
		opt(rl)
	}

	if rl.registry == nil {
		regOpts := append([]func(*limiter.Registry){limiter.WithIdleAfter(3 * longest)}, rl.registryOpts...)
		rl.registry = limiter.NewRegistry(regOpts...)
	}

	return rl, nil
}

// WithRouteTable replaces the default route classification.
func WithRouteTable(t *RouteTable) func(*RateLimiter) {
	return func(rl *RateLimiter) {
		rl.routes = t
	}
}

// WithRegistry sets the bucket registry, e.g. to change its bounds.
func WithRegistry(r *limiter.Registry) func(*RateLimiter) {
	return func(rl *RateLimiter) {
		rl.registry = r
	}
}

// WithRegistryOptions tunes the default registry. Ignored when WithRegistry is used.
func WithRegistryOptions(opts ...func(*limiter.Registry)) func(*RateLimiter) {
	return func(rl *RateLimiter) {
		rl.registryOpts = append(rl.registryOpts, opts...)
	}
}

// WithEventSink records every rejection to sink.
func WithEventSink(sink EventSink) func(*RateLimiter) {
	return func(rl *RateLimiter) {
		rl.events = sink
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) func(*RateLimiter) {
	return func(rl *RateLimiter) {
		rl.now = now
	}
}

// Allow consumes one token for the request's route class and client.
// Requests on unmanaged routes are always allowed without touching a bucket.
func (rl *RateLimiter) Allow(method, path, clientKey string) Decision {
	class := rl.routes.Classify(method, path)
	if class == Unmanaged {
		return Decision{Allowed: true}
	}

	now := rl.now()
	bucket := rl.registry.GetOrCreate(bucketKey(class, clientKey), rl.policies[class], now)

	allowed, info := bucket.TryAcceptWithInfo(now)
	decision := Decision{
		Allowed:   allowed,
		Class:     class,
		Limit:     info.Limit,
		Remaining: info.Remaining,
	}
	if allowed {
		return decision
	}

	decision.RetryAfterSeconds = retryAfterSeconds(info.Reset)
	masked := MaskClientKey(clientKey)

	slog.Warn("rate limit exceeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("client_key", masked),
		slog.Int("retry_after_sec", decision.RetryAfterSeconds),
	)

	if rl.events != nil {
		rl.events.Record(RateEvent{
			Event:      RequestRejected,
			Class:      string(class),
			Method:     method,
			Path:       path,
			ClientKey:  masked,
			RetryAfter: decision.RetryAfterSeconds,
			Timestamp:  now,
		})
	}

	return decision
}

// Registry exposes the bucket registry for inspection.
func (rl *RateLimiter) Registry() *limiter.Registry {
	return rl.registry
}

// bucketKey scopes a client to a class; public reads share one bucket per client.
func bucketKey(class RouteClass, clientKey string) string {
	return strings.ToLower(string(class)) + ":" + clientKey
}

func retryAfterSeconds(wait time.Duration) int {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
