package authgate_test

import (
	"context"
	"testing"
	"time"

	"github.com/parkerroan/authgate"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisEventPublisher_RecordDropsWhenFull(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	publisher := authgate.NewRedisEventPublisher(rdb, authgate.WithBufferSize(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			publisher.Record(authgate.RateEvent{Event: authgate.RequestRejected})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	assert.Equal(t, int64(3), publisher.Dropped())
}

func TestRedisEventPublisher_StartTwice(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	publisher := authgate.NewRedisEventPublisher(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, publisher.Start(ctx))
	assert.ErrorIs(t, publisher.Start(ctx), authgate.ErrPublisherStarted)
}
