package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(cfg *Config) (*MemoryCache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache[string](cfg)
	c.now = clock.Now
	return c, clock
}

func TestMemoryCache_GetPut(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(DefaultConfig())
	defer cache.Close()

	require.NoError(t, cache.Put(ctx, "schema", "Node labels: Station"))

	got, ok := cache.Get(ctx, "schema")
	assert.True(t, ok)
	assert.Equal(t, "Node labels: Station", got)

	got, ok = cache.Get(ctx, "nonexistent")
	assert.False(t, ok)
	assert.Empty(t, got)

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(DefaultConfig().WithTTL(time.Minute))

	require.NoError(t, cache.Put(ctx, "k", "v"))

	clock.Advance(59 * time.Second)
	_, ok := cache.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok, "entry expires at exactly TTL")
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_NoTTL(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(DefaultConfig().WithTTL(0))

	require.NoError(t, cache.Put(ctx, "k", "v"))
	clock.Advance(24 * time.Hour)

	_, ok := cache.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(DefaultConfig().WithMaxEntries(2))

	require.NoError(t, cache.Put(ctx, "a", "1"))
	clock.Advance(time.Second)
	require.NoError(t, cache.Put(ctx, "b", "2"))
	clock.Advance(time.Second)

	// Touch a so b becomes least recently used.
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	clock.Advance(time.Second)

	require.NoError(t, cache.Put(ctx, "c", "3"))

	assert.Equal(t, 2, cache.Len())
	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), cache.Stats().Evictions)
}

func TestMemoryCache_EvictsExpiredFirst(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestCache(DefaultConfig().WithMaxEntries(2).WithTTL(time.Minute))

	require.NoError(t, cache.Put(ctx, "old", "1"))
	clock.Advance(2 * time.Minute)
	require.NoError(t, cache.Put(ctx, "fresh", "2"))
	require.NoError(t, cache.Put(ctx, "newer", "3"))

	_, ok := cache.Get(ctx, "fresh")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "newer")
	assert.True(t, ok)
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(DefaultConfig().WithMaxEntries(1))

	require.NoError(t, cache.Put(ctx, "a", "1"))
	require.NoError(t, cache.Put(ctx, "a", "2"))

	got, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "2", got)
	assert.Equal(t, uint64(0), cache.Stats().Evictions)
}

func TestMemoryCache_DeleteClear(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(DefaultConfig())

	require.NoError(t, cache.Put(ctx, "a", "1"))
	require.NoError(t, cache.Put(ctx, "b", "2"))

	require.NoError(t, cache.Delete(ctx, "a"))
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, cache.Clear(ctx))
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_StatsDisabled(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(DefaultConfig().WithStats(false))

	require.NoError(t, cache.Put(ctx, "a", "1"))
	cache.Get(ctx, "a")

	assert.Equal(t, Stats{}, cache.Stats())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache[int](DefaultConfig().WithMaxEntries(16))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + (i+j)%26))
				_ = cache.Put(ctx, key, j)
				cache.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 16)
}
