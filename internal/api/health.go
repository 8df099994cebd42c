package api

import (
	"context"
	"net/http"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/cache"
	"github.com/dukapos/pos-core-go/internal/infra/observability"
	"github.com/dukapos/pos-core-go/internal/transport"
)

const healthCacheKey = "health"

// HealthClient polls the backend liveness/version probe. Results have no
// identity beyond "last observed", so a short TTL cache absorbs rapid
// repeated polls from the UI.
type HealthClient struct {
	transport *transport.Client
	cache     *cache.InMemory[domain.HealthStatus]
	metrics   *observability.Metrics
}

// NewHealthClient creates a HealthClient. cache may be nil to disable
// the last-observed window.
func NewHealthClient(t *transport.Client, c *cache.InMemory[domain.HealthStatus], metrics *observability.Metrics) *HealthClient {
	return &HealthClient{transport: t, cache: c, metrics: metrics}
}

// Check probes GET /api/v1/health. No auth is required.
func (c *HealthClient) Check(ctx context.Context) (*domain.HealthStatus, error) {
	ctx, span := tracer.Start(ctx, "Health.Check")
	defer span.End()

	if c.cache != nil {
		if hs, ok := c.cache.Get(healthCacheKey); ok {
			c.metrics.IncrCacheHit(healthCacheKey)
			return &hs, nil
		}
		c.metrics.IncrCacheMiss(healthCacheKey)
	}

	var hs domain.HealthStatus
	if err := c.transport.Do(ctx, http.MethodGet, "/health", nil, false, &hs); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(healthCacheKey, hs)
	}
	return &hs, nil
}
