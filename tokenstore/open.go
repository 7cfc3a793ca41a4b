package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store types accepted by Open.
const (
	TypeRedis  = "redis"
	TypeSQLite = "sqlite"
	TypeInert  = "inert"
)

// Config selects and configures a Store.
type Config struct {
	Type string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Timeout       time.Duration // per-operation Redis timeout
	PingAttempts  int

	SQLitePath string

	CacheBlacklist bool
}

// Open builds the configured Store. The returned close function releases its resources.
func Open(ctx context.Context, cfg Config) (Store, func() error, error) {
	var (
		store   Store
		closers []func() error
	)

	switch cfg.Type {
	case TypeRedis:
		rdb, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store = NewRedisStore(rdb)
		closers = append(closers, rdb.Close)

	case TypeSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: open sqlite %s: %w", ErrStoreUnavailable, cfg.SQLitePath, err)
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, sqlDB.Close)
		}
		sqlStore, err := NewSQLiteStore(db)
		if err != nil {
			_ = closeAll(closers)
			return nil, nil, err
		}
		store = sqlStore

	case TypeInert:
		slog.Warn("inert token store in use: refresh tokens are not kept and revocation is disabled")
		return InertStore{}, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported token store type: %q", cfg.Type)
	}

	if cfg.CacheBlacklist {
		cached, err := NewCachedStore(store)
		if err != nil {
			_ = closeAll(closers)
			return nil, nil, err
		}
		store = cached
		closers = append(closers, func() error {
			cached.Close()
			return nil
		})
	}

	return store, func() error { return closeAll(closers) }, nil
}

// closeAll runs closers newest first and returns the first error.
func closeAll(closers []func() error) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openRedis connects and pings with exponential backoff.
func openRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	attempts := cfg.PingAttempts
	if attempts <= 0 {
		attempts = 5
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			slog.Info("redis connected", slog.String("addr", cfg.RedisAddr))
			return rdb, nil
		}
		if attempt == attempts {
			break
		}

		wait := b.Duration()
		slog.Warn("redis ping failed, retrying",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
		}
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("%w: redis ping %s: %w", ErrStoreUnavailable, cfg.RedisAddr, err)
}
