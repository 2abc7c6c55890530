// Package cache is the short-lived response cache shared by the
// orchestrator. Values are opaque bytes with a mandatory TTL; every failure
// degrades to a miss or a no-op write.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a key/value cache with per-entry expiry.
type Store interface {
	// Get returns the value for key. Backend errors and expired entries
	// are reported as a miss.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for ttl, overwriting any previous value.
	// A non-positive ttl is rejected.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	// ClearPattern removes every key matching the shell-style glob and
	// returns how many were removed.
	ClearPattern(ctx context.Context, pattern string) int
	Mode() string
	Close() error
}

const (
	ModeRedis  = "redis"
	ModeMemory = "memory"
)

const pingTimeout = 2 * time.Second

// Options configures Open.
type Options struct {
	RedisURL string
	Logger   *slog.Logger
	// Now overrides the clock of the in-memory backend.
	Now func() time.Time
}

// Open picks the backend once. An empty RedisURL, an unparsable URL or a
// failed ping selects the in-memory store for the lifetime of the process.
func Open(ctx context.Context, opts Options) Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")

	if opts.RedisURL == "" {
		logger.Info("cache backend selected", "mode", ModeMemory)
		return NewMemoryStore(opts.Now)
	}

	redisOpts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache", "error", err)
		return NewMemoryStore(opts.Now)
	}

	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-memory cache", "error", err)
		_ = client.Close()
		return NewMemoryStore(opts.Now)
	}

	logger.Info("cache backend selected", "mode", ModeRedis, "addr", redisOpts.Addr)
	return NewRedisStore(client, logger)
}

// GetJSON decodes the cached value for key into v. A value that fails to
// decode counts as a miss.
func GetJSON(ctx context.Context, s Store, key string, v any) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return s.Set(ctx, key, data, ttl)
}
