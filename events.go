package authgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/semaphore"
)

const (
	// RequestRejected is the event type for a request that was rate limited.
	RequestRejected = "REQUEST_REJECTED"
)

// ErrPublisherStarted is returned by Start when called on a publisher that has already run.
var ErrPublisherStarted = errors.New("event publisher already started")

// RateEvent represents a rate limit decision worth recording.
type RateEvent struct {
	Event      string    `json:"event"`       // Type of event, e.g., "REQUEST_REJECTED"
	Class      string    `json:"class"`       // Route class of the request
	Method     string    `json:"method"`      // HTTP method
	Path       string    `json:"path"`        // Request path
	ClientKey  string    `json:"client_key"`  // Masked client key
	RetryAfter int       `json:"retry_after"` // Seconds advertised to the client
	Timestamp  time.Time `json:"timestamp"`   // When the decision was made
}

// EventSink receives rate limit events. Record must not block.
type EventSink interface {
	Record(RateEvent)
}

// RedisEventPublisher batches rate events into a Redis stream.
//
// Record only enqueues; events are dropped when the queue is full so the
// request path never waits on Redis.
type RedisEventPublisher struct {
	stream       string
	client       *redis.Client
	maxStreamLen int64

	backoff *backoff.Backoff
	events  chan RateEvent
	sem     *semaphore.Weighted
	threads int64

	started atomic.Bool
	dropped atomic.Int64
}

var _ EventSink = (*RedisEventPublisher)(nil)

// NewRedisEventPublisher creates a publisher writing to rdb.
func NewRedisEventPublisher(rdb *redis.Client, opts ...func(*RedisEventPublisher)) *RedisEventPublisher {
	// Create an exponential backoff configuration
	b := backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	p := &RedisEventPublisher{
		client:  rdb,
		stream:  "authgate:ratelimit",
		backoff: &b,
		events:  make(chan RateEvent, 1000),
		threads: 4,
	}

	// Apply all provided options
	for _, opt := range opts {
		opt(p)
	}

	p.sem = semaphore.NewWeighted(p.threads)
	return p
}

// WithStream sets the Redis stream name.
// default: "authgate:ratelimit"
func WithStream(stream string) func(*RedisEventPublisher) {
	return func(p *RedisEventPublisher) {
		p.stream = stream
	}
}

// WithCappedStream sets the approximate maximum length of the stream.
func WithCappedStream(maxLen int64) func(*RedisEventPublisher) {
	return func(p *RedisEventPublisher) {
		p.maxStreamLen = maxLen
	}
}

// WithMaxThreads sets the maximum number of concurrent publish calls.
// default: 4
func WithMaxThreads(maxThreads int) func(*RedisEventPublisher) {
	return func(p *RedisEventPublisher) {
		if maxThreads > 0 {
			p.threads = int64(maxThreads)
		}
	}
}

// WithBufferSize sets how many events may wait for publishing before new ones are dropped.
// default: 1000
func WithBufferSize(size int) func(*RedisEventPublisher) {
	return func(p *RedisEventPublisher) {
		p.events = make(chan RateEvent, size)
	}
}

// Record enqueues an event, dropping it if the queue is full.
func (p *RedisEventPublisher) Record(ev RateEvent) {
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (p *RedisEventPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Start publishes queued events in batches until ctx is done, then waits for
// in-flight publishes to finish.
func (p *RedisEventPublisher) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPublisherStarted
	}

	defer func() {
		// Acquiring every slot waits out in-flight publishes.
		_ = p.sem.Acquire(context.Background(), p.threads)
	}()

	const batchSize = 100

	for {
		batch := make([]RateEvent, 0, batchSize)

		// Block until we receive the first event
		select {
		case ev := <-p.events:
			batch = append(batch, ev)
		case <-ctx.Done():
			return nil
		}

		// Gather whatever else is ready without waiting
	gather:
		for len(batch) < batchSize {
			select {
			case ev := <-p.events:
				batch = append(batch, ev)
			default:
				break gather
			}
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		go func(batch []RateEvent) {
			defer p.sem.Release(1)

			publishCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			if err := p.publish(publishCtx, batch); err != nil {
				wait := p.backoff.Duration()
				slog.Error("error publishing rate events",
					slog.Any("error", err),
					slog.Int("events", len(batch)),
					slog.Duration("backoff", wait),
				)
				// The slot stays held while backing off.
				time.Sleep(wait)
				return
			}
			p.backoff.Reset()
		}(batch)
	}
}

// Recent returns up to n of the newest events in the stream, newest first.
func (p *RedisEventPublisher) Recent(ctx context.Context, n int64) ([]RateEvent, error) {
	messages, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", p.stream, err)
	}

	var out []RateEvent
	for _, message := range messages {
		raw, ok := message.Values["events"].(string)
		if !ok {
			continue
		}

		var events []RateEvent
		if err := json.Unmarshal([]byte(raw), &events); err != nil {
			return nil, fmt.Errorf("decode stream message %s: %w", message.ID, err)
		}
		// Events inside a message are oldest first.
		for i := len(events) - 1; i >= 0; i-- {
			out = append(out, events[i])
		}
	}

	if int64(len(out)) > n {
		out = out[:n]
	}
	return out, nil
}

func (p *RedisEventPublisher) publish(ctx context.Context, batch []RateEvent) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"events": payload,
		},
	}).Err()
}
