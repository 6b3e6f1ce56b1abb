package pricing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/comp-pricer/internal/aggregate"
	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/store"
)

// Cache answers freshness lookups against the stored latest results.
type Cache struct {
	store store.Store
}

// NewCache creates a Cache over st.
func NewCache(st store.Store) *Cache {
	return &Cache{store: st}
}

// GetFresh returns the latest unexpired result for a request. A hit marks
// the result as served from cache; the flag is never cleared.
func (c *Cache) GetFresh(ctx context.Context, requestID string, now time.Time) (*model.PricingResult, bool, error) {
	r, err := c.store.GetFreshResult(ctx, requestID, now)
	if err != nil || r == nil {
		return nil, false, err
	}
	if !r.CacheHit {
		if err := c.store.MarkCacheHit(ctx, r.ID); err != nil {
			zap.L().Warn("pricing: mark cache hit failed", zap.String("result_id", r.ID), zap.Error(err))
		} else {
			r.CacheHit = true
		}
	}
	return r, true, nil
}

// GetLatest returns the latest result regardless of expiry, or nil.
func (c *Cache) GetLatest(ctx context.Context, requestID string) (*model.PricingResult, error) {
	return c.store.GetLatestResult(ctx, requestID)
}

// ExpiresAt is calculatedAt plus the shortest TTL among the contributing
// sources. A source without a configured TTL counts with the fallback TTL.
func ExpiresAt(calculatedAt time.Time, sources []aggregate.SourceWeight, cfg *aggregate.Config) time.Time {
	ttl := cfg.FallbackTTL()
	for i, s := range sources {
		d, ok := cfg.TTL(s.Name, s.Type)
		if !ok {
			d = cfg.FallbackTTL()
		}
		if i == 0 || d < ttl {
			ttl = d
		}
	}
	return calculatedAt.Add(ttl)
}
