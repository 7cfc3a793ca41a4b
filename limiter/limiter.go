package limiter

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned when a policy has a non-positive capacity or period.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// Limiter is the interface that abstracts the limitations functionality.
type Limiter interface {
	TryAccept(time.Time) bool
	TryAcceptWithInfo(time.Time) (bool, RateLimitInfo)
	LimitDetails() (int, time.Duration)
}

// RateLimitInfo describes the state of a limiter after a decision.
type RateLimitInfo struct {
	Limit     int           // Maximum number of tokens held
	Remaining int           // Whole tokens left after the decision
	Reset     time.Duration // Time until the next token is available, zero when accepted
	Window    time.Duration // Refill period
}

// Policy is the capacity and refill period of a token bucket.
// A full bucket is regenerated over one Period.
type Policy struct {
	Capacity int
	Period   time.Duration
}

// Validate reports whether the policy can back a bucket.
func (p Policy) Validate() error {
	if p.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidPolicy, p.Capacity)
	}
	if p.Period < time.Second {
		return fmt.Errorf("%w: period must be at least one second, got %v", ErrInvalidPolicy, p.Period)
	}
	if p.Period%time.Second != 0 {
		return fmt.Errorf("%w: period must be whole seconds, got %v", ErrInvalidPolicy, p.Period)
	}
	return nil
}
