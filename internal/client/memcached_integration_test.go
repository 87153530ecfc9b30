//go:build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dmccrea/forecast-cache-service/internal/models"
)

func openTestMemcached(t *testing.T) *MemcachedCache {
	t.Helper()

	addrs := os.Getenv("FORECAST_MEMCACHED_ADDRS")
	if addrs == "" {
		t.Skip("FORECAST_MEMCACHED_ADDRS not set; skipping memcached integration tests")
	}

	cache, err := NewMemcachedCache(addrs, 2*time.Second, 2, time.Hour)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	if err := cache.Ping(); err != nil {
		t.Fatalf("memcached ping failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestMemcachedCache_RoundTrip(t *testing.T) {
	cache := openTestMemcached(t)
	ctx := context.Background()

	want := models.WeatherData{
		City:        "chicago",
		Temperature: 21.5,
		Conditions:  "scattered clouds",
		Humidity:    60,
		WindSpeed:   4.2,
		FetchedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := cache.Set(ctx, "chicago", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, "chicago", time.Minute)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() missed immediately after Set()")
	}
	if got.City != want.City || got.Temperature != want.Temperature || got.Humidity != want.Humidity {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestMemcachedCache_MissOnUnknownKey(t *testing.T) {
	cache := openTestMemcached(t)

	_, ok, err := cache.Get(context.Background(), "no-such-city", time.Minute)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit on unknown key")
	}
}

func TestMemcachedCache_ReadTimeTTLExpiry(t *testing.T) {
	cache := openTestMemcached(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "expiring", models.WeatherData{City: "expiring"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// A zero TTL makes any stored entry stale on read; the stale read must
	// also delete the entry.
	if _, ok, _ := cache.Get(ctx, "expiring", 0); ok {
		t.Error("Get() with zero TTL hit")
	}
	if _, ok, _ := cache.Get(ctx, "expiring", time.Hour); ok {
		t.Error("stale read did not delete the entry")
	}
}
