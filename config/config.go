// Package config loads authgate settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/parkerroan/authgate"
	"github.com/parkerroan/authgate/limiter"
	"github.com/parkerroan/authgate/tokenstore"
	"golang.org/x/exp/slog"
)

// ErrInvalidPolicy is returned when a rate limit capacity or period is unusable.
var ErrInvalidPolicy = errors.New("invalid rate limit configuration")

type Config struct {
	Port              int    `envconfig:"SERVER_PORT" default:"8080"`
	UpstreamURL       string `envconfig:"UPSTREAM_URL"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	TrustForwardedFor bool   `envconfig:"TRUST_FORWARDED_FOR" default:"true"`
	AccessJTIHeader   string `envconfig:"ACCESS_JTI_HEADER" default:"X-Access-Jti"`

	TokenStore            string        `envconfig:"TOKEN_STORE" default:"redis"`
	RedisURL              string        `envconfig:"REDIS_URL" default:"localhost:6379"`
	RedisPassword         string        `envconfig:"REDIS_PASSWORD"`
	RedisDB               int           `envconfig:"REDIS_DB" default:"0"`
	RedisTimeout          time.Duration `envconfig:"REDIS_TIMEOUT" default:"500ms"`
	SQLitePath            string        `envconfig:"SQLITE_PATH" default:"authgate.db"`
	BlacklistCacheEnabled bool          `envconfig:"BLACKLIST_CACHE_ENABLED" default:"true"`

	Shards     int           `envconfig:"RATE_LIMIT_SHARDS" default:"32"`
	MaxBuckets int           `envconfig:"RATE_LIMIT_MAX_BUCKETS" default:"100000"`
	IdleAfter  time.Duration `envconfig:"RATE_LIMIT_IDLE_AFTER" default:"0s"` // 0 means 3x the longest period

	EventsEnabled bool   `envconfig:"RATE_EVENTS_ENABLED" default:"false"`
	EventsStream  string `envconfig:"RATE_EVENTS_STREAM" default:"authgate:ratelimit"`
	EventsMaxLen  int64  `envconfig:"RATE_EVENTS_MAXLEN" default:"10000"`

	NTPServer    string        `envconfig:"NTP_SERVER"`
	NTPMaxOffset time.Duration `envconfig:"NTP_MAX_OFFSET" default:"2s"`

	LoginCapacity   int           `envconfig:"RATE_LIMIT_LOGIN_CAPACITY" default:"10"`
	LoginPeriod     time.Duration `envconfig:"RATE_LIMIT_LOGIN_PERIOD" default:"1m"`
	SignupCapacity  int           `envconfig:"RATE_LIMIT_SIGNUP_CAPACITY" default:"10"`
	SignupPeriod    time.Duration `envconfig:"RATE_LIMIT_SIGNUP_PERIOD" default:"1m"`
	RefreshCapacity int           `envconfig:"RATE_LIMIT_REFRESH_CAPACITY" default:"20"`
	RefreshPeriod   time.Duration `envconfig:"RATE_LIMIT_REFRESH_PERIOD" default:"5m"`
	PublicCapacity  int           `envconfig:"RATE_LIMIT_PUBLIC_CAPACITY" default:"100"`
	PublicPeriod    time.Duration `envconfig:"RATE_LIMIT_PUBLIC_PERIOD" default:"1m"`
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every rate limit policy and the store selection.
func (c Config) Validate() error {
	var longest time.Duration
	for class, policy := range c.Policies() {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, class, err)
		}
		if policy.Period > longest {
			longest = policy.Period
		}
	}

	if c.Shards <= 0 || c.MaxBuckets <= 0 {
		return fmt.Errorf("%w: shards and max buckets must be positive", ErrInvalidPolicy)
	}
	if c.IdleAfter < 0 {
		return fmt.Errorf("%w: negative idle eviction threshold", ErrInvalidPolicy)
	}
	// A bucket evicted before a full period has passed may not have refilled yet.
	if c.IdleAfter > 0 && c.IdleAfter < longest {
		return fmt.Errorf("%w: RATE_LIMIT_IDLE_AFTER %v is shorter than the longest period %v",
			ErrInvalidPolicy, c.IdleAfter, longest)
	}

	switch c.TokenStore {
	case tokenstore.TypeRedis, tokenstore.TypeSQLite, tokenstore.TypeInert:
	default:
		return fmt.Errorf("unsupported TOKEN_STORE %q", c.TokenStore)
	}
	return nil
}

// Policies returns the configured policy of each route class.
func (c Config) Policies() map[authgate.RouteClass]limiter.Policy {
	return map[authgate.RouteClass]limiter.Policy{
		authgate.Login:      {Capacity: c.LoginCapacity, Period: c.LoginPeriod},
		authgate.Signup:     {Capacity: c.SignupCapacity, Period: c.SignupPeriod},
		authgate.Refresh:    {Capacity: c.RefreshCapacity, Period: c.RefreshPeriod},
		authgate.PublicRead: {Capacity: c.PublicCapacity, Period: c.PublicPeriod},
	}
}

// Store converts the store settings for tokenstore.Open.
func (c Config) Store() tokenstore.Config {
	return tokenstore.Config{
		Type:           c.TokenStore,
		RedisAddr:      c.RedisURL,
		RedisPassword:  c.RedisPassword,
		RedisDB:        c.RedisDB,
		Timeout:        c.RedisTimeout,
		SQLitePath:     c.SQLitePath,
		CacheBlacklist: c.BlacklistCacheEnabled,
	}
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		slog.Warn("unexpected error looking for env file", slog.String("path", path), slog.Any("error", err))
	}
	return nil
}
