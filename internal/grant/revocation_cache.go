package grant

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationCache is an optional accelerator in front of the
// MessageStore-backed revocation lookup. Get's second return value
// reports whether the cache held an entry at all; Loader falls back to
// querying MessageStore on a miss, exactly as the teacher's rate limiter
// falls back to allowing a request when its own accelerator is absent.
type RevocationCache interface {
	Get(ctx context.Context, tenant, grantID string) (revoked bool, found bool)
	Set(ctx context.Context, tenant, grantID string, revoked bool)
}

// RedisRevocationCache caches revocation lookups in Redis, grounded on
// internal/middleware.RedisRateLimitStore's "accelerator in front of
// authoritative state, fail open on error" shape.
type RedisRevocationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultRevocationCacheTTL bounds how long a cached "not revoked" result
// is trusted before the next check re-queries MessageStore; short enough
// that a PermissionsRevoke issued moments ago is honored promptly.
const DefaultRevocationCacheTTL = 30 * time.Second

// NewRedisRevocationCache builds a cache against client using
// DefaultRevocationCacheTTL.
func NewRedisRevocationCache(client *redis.Client) *RedisRevocationCache {
	return NewRedisRevocationCacheWithTTL(client, DefaultRevocationCacheTTL)
}

// NewRedisRevocationCacheWithTTL builds a cache against client with an
// explicit TTL.
func NewRedisRevocationCacheWithTTL(client *redis.Client, ttl time.Duration) *RedisRevocationCache {
	return &RedisRevocationCache{client: client, ttl: ttl}
}

func (c *RedisRevocationCache) key(tenant, grantID string) string {
	return "dwn:grant-revoked:" + tenant + ":" + grantID
}

// Get reports the cached revocation state. On any Redis error it reports
// found=false, sending the caller to MessageStore — a Redis outage must
// never manufacture a false "not revoked" answer.
func (c *RedisRevocationCache) Get(ctx context.Context, tenant, grantID string) (bool, bool) {
	val, err := c.client.Get(ctx, c.key(tenant, grantID)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set stores the revocation state with the cache's TTL. Errors are
// swallowed: a failed cache write just means the next Get misses and
// falls back to MessageStore.
func (c *RedisRevocationCache) Set(ctx context.Context, tenant, grantID string, revoked bool) {
	val := "0"
	if revoked {
		val = "1"
	}
	c.client.Set(ctx, c.key(tenant, grantID), val, c.ttl)
}
