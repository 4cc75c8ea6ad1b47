package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache namespaces every key with a version number. InvalidateAll bumps
// the version, so stale entries are never read again and expire on their own.
type RedisCache struct {
	client     *redis.Client
	prefix     string
	versionKey string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "catalog"
	}
	return &RedisCache{client: client, prefix: prefix, versionKey: prefix + ":version"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	version, err := c.version(ctx)
	if err != nil {
		return nil, false, err
	}
	val, err := c.client.Get(ctx, c.versionedKey(version, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	version, err := c.version(ctx)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.versionedKey(version, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.versionKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// version reads the current namespace version; a missing key is version 0.
func (c *RedisCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis cache version: %w", err)
	}
	return v, nil
}

func (c *RedisCache) versionedKey(version int64, key string) string {
	return fmt.Sprintf("%s:v%d:%s", c.prefix, version, key)
}
