// Package redis provides the optional shared cache for external name
// lookups.
//
// Graceful fallback: if Redis is unavailable, operations silently return
// zero values instead of blocking message handling.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyName prefixes resolved display names, by normalized token.
const KeyName = "name:"

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

var (
	client    *redis.Client
	connected bool
	logger    = zap.NewNop()
	mu        sync.RWMutex
)

// Init initializes the Redis connection. Returns true if connected.
func Init(cfg Config, l *zap.Logger) bool {
	if l != nil {
		mu.Lock()
		logger = l.Named("redis")
		mu.Unlock()
	}
	log := getLogger()

	if cfg.URL == "" {
		log.Info("url not configured, skipping init")
		return false
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Warn("invalid url", zap.Error(err))
		return false
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		log.Warn("connection failed", zap.Error(err))
		_ = c.Close()
		return false
	}

	mu.Lock()
	client = c
	connected = true
	mu.Unlock()

	log.Info("connected", zap.String("addr", opts.Addr))
	return true
}

// Close closes the Redis connection.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if client != nil {
		_ = client.Close()
		client = nil
		connected = false
		logger.Info("connection closed")
	}
}

// Client returns the Redis client. Returns nil if not available.
func Client() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	if connected {
		return client
	}
	return nil
}

// IsAvailable checks if Redis is connected.
func IsAvailable() bool {
	mu.RLock()
	defer mu.RUnlock()
	return connected && client != nil
}

func getLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// --- Cache operations (with graceful fallback) ---

// CacheGet reads a string value. Returns "" if unavailable.
func CacheGet(ctx context.Context, key string) string {
	c := Client()
	if c == nil {
		return ""
	}
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			getLogger().Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return val
}

// CacheSet writes a string value with TTL. Returns false on failure.
func CacheSet(ctx context.Context, key, value string, ttl time.Duration) bool {
	c := Client()
	if c == nil {
		return false
	}
	if err := c.Set(ctx, key, value, ttl).Err(); err != nil {
		getLogger().Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// CacheDel deletes a key. Returns false on failure.
func CacheDel(ctx context.Context, key string) bool {
	c := Client()
	if c == nil {
		return false
	}
	if err := c.Del(ctx, key).Err(); err != nil {
		getLogger().Warn("cache del failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// CacheGetJSON reads a JSON value into out. Returns false if not found/error.
func CacheGetJSON(ctx context.Context, key string, out any) bool {
	raw := CacheGet(ctx, key)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		getLogger().Warn("cache get json parse failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// CacheSetJSON writes a JSON-serialized value with TTL.
func CacheSetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		getLogger().Warn("cache set json marshal failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return CacheSet(ctx, key, string(data), ttl)
}

// NameKey returns the Redis key for a normalized token.
func NameKey(normalized string) string {
	return fmt.Sprintf("%s%s", KeyName, normalized)
}
