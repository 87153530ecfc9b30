package client

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/observability"
)

// CachedClient wraps a WeatherClient with a ResponseCache so repeated
// lookups for the same city within the TTL window skip the provider call.
type CachedClient struct {
	inner  WeatherClient
	cache  ResponseCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedClient creates a caching decorator around inner. ttl controls how
// long a cached response stays usable.
func NewCachedClient(inner WeatherClient, cache ResponseCache, ttl time.Duration, logger *zap.Logger) *CachedClient {
	return &CachedClient{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// FetchCurrent returns the cached response for city when one is fresh,
// otherwise calls the inner client and caches the result. Cache errors are
// logged and treated as misses; a broken cache must not break lookups.
func (c *CachedClient) FetchCurrent(ctx context.Context, city string) (models.WeatherData, error) {
	key := cacheKey(city)

	data, ok, err := c.cache.Get(ctx, key, c.ttl)
	if err != nil {
		c.logger.Warn("weather cache read failed",
			zap.String("city", city),
			zap.Error(err))
	}
	if ok {
		observability.CacheHitsTotal.WithLabelValues("weather_api").Inc()
		return data, nil
	}

	data, err = c.inner.FetchCurrent(ctx, city)
	if err != nil {
		return models.WeatherData{}, err
	}

	if err := c.cache.Set(ctx, key, data); err != nil {
		c.logger.Warn("weather cache write failed",
			zap.String("city", city),
			zap.Error(err))
	}
	return data, nil
}

func cacheKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
