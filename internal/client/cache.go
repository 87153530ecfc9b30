package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/ttlcache"
)

// ResponseCache caches provider responses with read-time TTL semantics: the
// TTL is supplied on Get, not bound to the entry, so callers with different
// freshness needs can share one cache.
type ResponseCache interface {
	Get(ctx context.Context, key string, ttl time.Duration) (models.WeatherData, bool, error)
	Set(ctx context.Context, key string, value models.WeatherData) error
}

// MemoryCache is the in-process ResponseCache backend.
type MemoryCache struct {
	cache *ttlcache.Cache[string, models.WeatherData]
}

// NewMemoryCache creates an in-process response cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{cache: ttlcache.New[string, models.WeatherData]()}
}

// Get implements ResponseCache.Get; never errors.
func (c *MemoryCache) Get(ctx context.Context, key string, ttl time.Duration) (models.WeatherData, bool, error) {
	v, ok := c.cache.Get(key, ttl)
	return v, ok, nil
}

// Set implements ResponseCache.Set; never errors.
func (c *MemoryCache) Set(ctx context.Context, key string, value models.WeatherData) error {
	c.cache.Set(key, value)
	return nil
}

// Sweep removes entries older than ttl; for callers that sweep periodically.
func (c *MemoryCache) Sweep(ttl time.Duration) int {
	return c.cache.Sweep(ttl)
}

const keyPrefix = "weather:"

// envelope carries the write timestamp alongside the value so memcached can
// honor read-time TTL the same way the in-process backend does. Items get a
// generous server-side expiry as a backstop; the real freshness decision
// happens on read.
type envelope struct {
	Data     models.WeatherData `json:"data"`
	StoredAt time.Time          `json:"stored_at"`
}

// MemcachedCache is the memcached ResponseCache backend for deployments
// with several service instances sharing one response cache.
type MemcachedCache struct {
	client *memcache.Client
	maxTTL time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
// maxTTL bounds the server-side backstop expiry.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, maxTTL time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if maxTTL <= 0 {
		maxTTL = time.Hour
	}
	return &MemcachedCache{client: client, maxTTL: maxTTL}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements ResponseCache.Get. Returns false, nil on cache miss;
// an entry whose write timestamp is older than ttl is deleted and misses.
func (c *MemcachedCache) Get(ctx context.Context, key string, ttl time.Duration) (models.WeatherData, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherData{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.WeatherData{}, false, nil
		}
		return models.WeatherData{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return models.WeatherData{}, false, err
	}
	if time.Since(env.StoredAt) >= ttl {
		_ = c.client.Delete(c.key(key))
		return models.WeatherData{}, false, nil
	}
	return env.Data, true, nil
}

// Set implements ResponseCache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherData) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(envelope{Data: value, StoredAt: time.Now()})
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: int32(c.maxTTL.Seconds()),
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
