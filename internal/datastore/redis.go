package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a cache key does not exist or has expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the expiring key/value operations backed by Redis.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, ttl time.Duration, err error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string, limit int64) ([]string, error)
	Close() error
}

// RedisCache implements Cache on a single Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("datastore: ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Set stores value under key. A zero ttl stores it without expiry.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return errors.New("datastore: cache set: key is empty")
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("datastore: cache set %s: %w", key, err)
	}
	return nil
}

// Get returns the value and remaining ttl for key, or ErrCacheMiss. A zero
// ttl means the key has no expiry.
func (c *RedisCache) Get(ctx context.Context, key string) (string, time.Duration, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, fmt.Errorf("datastore: cache get %s: %w", key, ErrCacheMiss)
	}
	if err != nil {
		return "", 0, fmt.Errorf("datastore: cache get %s: %w", key, err)
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return "", 0, fmt.Errorf("datastore: cache ttl %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0 // -1 means no expiry, -2 means the key vanished meanwhile
	}
	return val, ttl, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("datastore: cache delete %s: %w", key, err)
	}
	return nil
}

// Keys returns up to limit keys matching the glob pattern, using SCAN so
// large keyspaces are never blocked. An empty pattern matches everything.
func (c *RedisCache) Keys(ctx context.Context, pattern string, limit int64) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("datastore: cache scan %q: %w", pattern, err)
		}
		keys = append(keys, batch...)
		if limit > 0 && int64(len(keys)) >= limit {
			return keys[:limit], nil
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Close releases the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
