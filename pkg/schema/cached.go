package schema

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/TFMV/cypherplan/pkg/cache"
	"github.com/TFMV/cypherplan/pkg/services"
)

const summaryKey = "schema_summary"

// CachedProvider memoizes another provider's summary for a TTL. Concurrent
// misses share a single load.
type CachedProvider struct {
	source services.SchemaProvider
	cache  *cache.MemoryCache[string]
	group  singleflight.Group
	logger zerolog.Logger
}

// NewCachedProvider wraps source. A non-positive ttl keeps the summary until Invalidate.
func NewCachedProvider(source services.SchemaProvider, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		source: source,
		cache:  cache.NewMemoryCache[string](cache.SchemaSummaryConfig(ttl)),
		logger: logger.With().Str("component", "schema_cache").Logger(),
	}
}

// Summary returns the cached summary, loading it on a miss. Failed loads are not cached.
func (p *CachedProvider) Summary(ctx context.Context) (string, error) {
	if s, ok := p.cache.Get(ctx, summaryKey); ok {
		return s, nil
	}

	v, err, shared := p.group.Do(summaryKey, func() (interface{}, error) {
		s, err := p.source.Summary(ctx)
		if err != nil {
			return "", err
		}
		_ = p.cache.Put(ctx, summaryKey, s)
		return s, nil
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Schema summary load failed")
		return "", err
	}
	p.logger.Debug().Bool("shared", shared).Msg("Schema summary loaded")
	return v.(string), nil
}

// Invalidate drops the cached summary.
func (p *CachedProvider) Invalidate(ctx context.Context) {
	_ = p.cache.Delete(ctx, summaryKey)
}

// Stats exposes the underlying cache statistics.
func (p *CachedProvider) Stats() cache.Stats {
	return p.cache.Stats()
}
