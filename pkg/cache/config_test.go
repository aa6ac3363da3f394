package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 128, config.MaxEntries)
	assert.Equal(t, 5*time.Minute, config.TTL)
	assert.True(t, config.EnableStats)
}

func TestConfig_Builders(t *testing.T) {
	config := DefaultConfig().
		WithMaxEntries(4).
		WithTTL(time.Second).
		WithStats(false)

	assert.Equal(t, 4, config.MaxEntries)
	assert.Equal(t, time.Second, config.TTL)
	assert.False(t, config.EnableStats)
}

func TestSchemaSummaryConfig(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		wantTTL time.Duration
	}{
		{name: "positive ttl", ttl: 10 * time.Minute, wantTTL: 10 * time.Minute},
		{name: "zero keeps forever", ttl: 0, wantTTL: 0},
		{name: "negative keeps forever", ttl: -time.Second, wantTTL: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := SchemaSummaryConfig(tt.ttl)
			assert.Equal(t, 1, config.MaxEntries)

			norm := config.normalized()
			assert.Equal(t, tt.wantTTL, norm.TTL)
			assert.Equal(t, 1, norm.MaxEntries)
		})
	}
}

func TestConfig_NegativeMaxEntriesIsUnbounded(t *testing.T) {
	cache := NewMemoryCache[string](DefaultConfig().WithMaxEntries(-1))
	ctx := context.Background()

	for _, key := range []string{"Station", "Line", "Year"} {
		assert.NoError(t, cache.Put(ctx, key, key))
	}
	for _, key := range []string{"Station", "Line", "Year"} {
		_, ok := cache.Get(ctx, key)
		assert.True(t, ok, key)
	}
}
