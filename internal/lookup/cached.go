// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lookup

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

// GeocodeCache persists geocoding answers across runs. Both the SQL store
// and the Redis cache implement it.
type GeocodeCache interface {
	Get(ctx context.Context, address string) (types.GeocodeResult, bool, error)
	Put(ctx context.Context, address string, res types.GeocodeResult) error
}

// CacheStats counts how geocode requests were served.
type CacheStats struct {
	Memory int
	Hits   int
	Misses int
}

// CachedGeocoder fronts a Geocoder with a per-run memo and an optional
// persistent cache. Only successful answers are cached, including empty
// ones, so an address the service cannot place is not asked again.
type CachedGeocoder struct {
	next  Geocoder
	cache GeocodeCache
	log   *zap.Logger

	mu    sync.Mutex
	memo  map[string]types.GeocodeResult
	stats CacheStats
}

// NewCachedGeocoder wraps next. cache may be nil.
func NewCachedGeocoder(next Geocoder, cache GeocodeCache, log *zap.Logger) *CachedGeocoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedGeocoder{
		next:  next,
		cache: cache,
		log:   log,
		memo:  make(map[string]types.GeocodeResult),
	}
}

// Geocode returns the memoized, cached or freshly fetched result.
// Cache read and write failures are logged and otherwise ignored.
func (g *CachedGeocoder) Geocode(ctx context.Context, normalized string) (types.GeocodeResult, error) {
	g.mu.Lock()
	if res, ok := g.memo[normalized]; ok {
		g.stats.Memory++
		g.mu.Unlock()
		return res, nil
	}
	g.mu.Unlock()

	if g.cache != nil {
		res, ok, err := g.cache.Get(ctx, normalized)
		if err != nil {
			g.log.Warn("geocode cache read failed", zap.String("address", normalized), zap.Error(err))
		}
		if ok {
			g.remember(normalized, res, func(s *CacheStats) { s.Hits++ })
			return res, nil
		}
	}

	res, err := g.next.Geocode(ctx, normalized)
	if err != nil {
		return res, err
	}
	g.remember(normalized, res, func(s *CacheStats) { s.Misses++ })

	if g.cache != nil {
		if err := g.cache.Put(ctx, normalized, res); err != nil {
			g.log.Warn("geocode cache write failed", zap.String("address", normalized), zap.Error(err))
		}
	}
	return res, nil
}

func (g *CachedGeocoder) remember(address string, res types.GeocodeResult, count func(*CacheStats)) {
	g.mu.Lock()
	g.memo[address] = res
	count(&g.stats)
	g.mu.Unlock()
}

// Stats returns the current counters.
func (g *CachedGeocoder) Stats() CacheStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
