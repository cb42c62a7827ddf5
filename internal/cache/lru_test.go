package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memgo/resource"
)

func TestLRUBlockCacheBasic(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(1024, nil)

	key := Key{Path: "snap-001.bin", Block: 0}

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, []byte("hello"))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, int64(5), c.Size())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUBlockCacheEviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(10, nil)

	c.Set(ctx, Key{Path: "a", Block: 0}, make([]byte, 4))
	c.Set(ctx, Key{Path: "a", Block: 1}, make([]byte, 4))

	// Touch block 0 so block 1 becomes the eviction victim.
	_, ok := c.Get(ctx, Key{Path: "a", Block: 0})
	require.True(t, ok)

	c.Set(ctx, Key{Path: "a", Block: 2}, make([]byte, 4))

	_, ok = c.Get(ctx, Key{Path: "a", Block: 0})
	assert.True(t, ok)
	_, ok = c.Get(ctx, Key{Path: "a", Block: 1})
	assert.False(t, ok, "LRU victim should be gone")
	_, ok = c.Get(ctx, Key{Path: "a", Block: 2})
	assert.True(t, ok)
}

func TestLRUBlockCacheOversizedEntryNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(10, nil)

	c.Set(ctx, Key{Path: "big"}, make([]byte, 11))
	_, ok := c.Get(ctx, Key{Path: "big"})
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Size())
}

func TestLRUBlockCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(1024, nil)

	c.Set(ctx, Key{Path: "a", Block: 0}, []byte{1})
	c.Set(ctx, Key{Path: "a", Block: 1}, []byte{2})
	c.Set(ctx, Key{Path: "b", Block: 0}, []byte{3})

	c.Invalidate(func(key Key) bool { return key.Path == "a" })

	_, ok := c.Get(ctx, Key{Path: "a", Block: 0})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Path: "b", Block: 0})
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Size())
}

func TestLRUBlockCacheResourceAccounting(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 8})
	c := NewLRUBlockCache(1024, rc)

	c.Set(ctx, Key{Path: "a", Block: 0}, make([]byte, 6))
	assert.Equal(t, int64(6), rc.MemoryUsage())

	// Over the global limit: refused even though local capacity remains.
	c.Set(ctx, Key{Path: "a", Block: 1}, make([]byte, 6))
	_, ok := c.Get(ctx, Key{Path: "a", Block: 1})
	assert.False(t, ok)
	assert.Equal(t, int64(6), rc.MemoryUsage())

	require.NoError(t, c.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestLRUBlockCacheUpdateExisting(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(1024, nil)

	key := Key{Path: "a", Block: 0}
	c.Set(ctx, key, []byte{1, 2})
	c.Set(ctx, key, []byte{3, 4, 5})

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte{3, 4, 5}, got)
	assert.Equal(t, int64(3), c.Size())
}
