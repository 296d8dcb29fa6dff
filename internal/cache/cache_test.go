package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	// returned slices are copies
	got[0] = 'x'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("v"), again)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	now = now.Add(2 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_NonPositiveTTL(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictExpired(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))

	now = now.Add(time.Minute)
	c.evictExpired()
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, "shared", []byte("v"), time.Minute)
			_, _, _ = c.Get(ctx, "shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestNewRedisCache_RequiresAddr(t *testing.T) {
	_, err := NewRedisCache(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := NewRedisCache(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
