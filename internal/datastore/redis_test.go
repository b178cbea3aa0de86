package datastore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedis connects to DATASTACK_TEST_REDIS_ADDR, or skips when no
// server is available.
func testRedis(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("DATASTACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DATASTACK_TEST_REDIS_ADDR not set")
	}

	cache, err := NewRedisCache(context.Background(), addr, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	cache := testRedis(t)
	ctx := context.Background()
	key := "test:" + t.Name()
	t.Cleanup(func() { _ = cache.Delete(ctx, key) })

	require.NoError(t, cache.Set(ctx, key, "hello", time.Minute))

	val, ttl, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", val)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, cache.Delete(ctx, key))
	_, _, err = cache.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_NoExpiry(t *testing.T) {
	cache := testRedis(t)
	ctx := context.Background()
	key := "test:" + t.Name()
	t.Cleanup(func() { _ = cache.Delete(ctx, key) })

	require.NoError(t, cache.Set(ctx, key, "forever", 0))

	_, ttl, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ttl)
}

func TestRedisCache_Keys(t *testing.T) {
	cache := testRedis(t)
	ctx := context.Background()
	prefix := "test:keys:" + t.Name() + ":"

	for _, k := range []string{"a", "b", "c"} {
		key := prefix + k
		require.NoError(t, cache.Set(ctx, key, "1", time.Minute))
		t.Cleanup(func() { _ = cache.Delete(ctx, key) })
	}

	keys, err := cache.Keys(ctx, prefix+"*", 10)
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	limited, err := cache.Keys(ctx, prefix+"*", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
