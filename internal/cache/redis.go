package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long an episode stays cached in Redis.
	DefaultTTL = 1800 * time.Second
	// DefaultKeyPrefix namespaces episode cache keys.
	DefaultKeyPrefix = "ua-harvester:episode"
)

// RedisBackend keeps episode payloads in Redis with a per-entry TTL, so that
// concurrent harvesters share one cache.
type RedisBackend struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisBackend creates a Redis backend. Zero values select the defaults.
func NewRedisBackend(client redis.Cmdable, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) key(mediaPackageID string) string {
	return b.prefix + ":" + mediaPackageID
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements Backend.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.key(key), value, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
