package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

// RedisStore is a Store backed by Redis, relying on native key expiry.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps a connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{client: rdb}
}

func (s *RedisStore) SaveRefreshToken(ctx context.Context, jti, payload string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}

	if err := s.client.Set(ctx, RefreshKey(jti), payload, ttl).Err(); err != nil {
		return unavailable("save refresh token", jti, err)
	}

	slog.Debug("refresh token saved", slog.String("jti", jti), slog.Duration("ttl", ttl))
	return nil
}

func (s *RedisStore) GetRefreshToken(ctx context.Context, jti string) (string, bool, error) {
	payload, err := s.client.Get(ctx, RefreshKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get refresh token", jti, err)
	}
	return payload, true, nil
}

func (s *RedisStore) TakeRefreshToken(ctx context.Context, jti string) (string, bool, error) {
	payload, err := s.client.GetDel(ctx, RefreshKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("take refresh token", jti, err)
	}
	return payload, true, nil
}

func (s *RedisStore) DeleteRefreshToken(ctx context.Context, jti string) error {
	deleted, err := s.client.Del(ctx, RefreshKey(jti)).Result()
	if err != nil {
		return unavailable("delete refresh token", jti, err)
	}

	slog.Debug("refresh token deleted", slog.String("jti", jti), slog.Bool("deleted", deleted > 0))
	return nil
}

func (s *RedisStore) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}

	if err := s.client.Set(ctx, BlacklistKey(jti), "1", ttl).Err(); err != nil {
		return unavailable("add to blacklist", jti, err)
	}

	slog.Debug("access token blacklisted", slog.String("jti", jti), slog.Duration("ttl", ttl))
	return nil
}

func (s *RedisStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, BlacklistKey(jti)).Result()
	if err != nil {
		return false, unavailable("check blacklist", jti, err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// unavailable logs a backing-store failure and wraps it. Payloads are never logged.
func unavailable(op, jti string, err error) error {
	slog.Error("token store operation failed",
		slog.String("op", op),
		slog.String("jti", jti),
		slog.Any("error", err),
	)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
