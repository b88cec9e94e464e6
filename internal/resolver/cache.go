package resolver

import (
	"context"
	"time"

	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/redis"
)

// Cache stores external lookup results keyed by normalized token.
type Cache interface {
	Get(ctx context.Context, key string) (mappings.Entry, bool)
	Set(ctx context.Context, key string, e mappings.Entry)
}

// RedisCache keeps results in the shared Redis instance. When Redis is not
// connected every call is a miss.
type RedisCache struct {
	TTL time.Duration
}

func (c RedisCache) Get(ctx context.Context, key string) (mappings.Entry, bool) {
	var e mappings.Entry
	if !redis.CacheGetJSON(ctx, redis.NameKey(key), &e) || e.DisplayName == "" {
		return mappings.Entry{}, false
	}
	e.Source = mappings.SourceExternal
	return e, true
}

func (c RedisCache) Set(ctx context.Context, key string, e mappings.Entry) {
	redis.CacheSetJSON(ctx, redis.NameKey(key), e, c.TTL)
}

// Delete evicts the cached result for key. It reports false when Redis is
// not connected or the delete failed.
func (c RedisCache) Delete(ctx context.Context, key string) bool {
	return redis.CacheDel(ctx, redis.NameKey(key))
}
