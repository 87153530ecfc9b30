package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmccrea/forecast-cache-service/internal/models"
)

type stubWeatherClient struct {
	calls int
	data  models.WeatherData
	err   error
}

func (s *stubWeatherClient) FetchCurrent(ctx context.Context, city string) (models.WeatherData, error) {
	s.calls++
	return s.data, s.err
}

func TestCachedClient_SecondLookupHitsCache(t *testing.T) {
	inner := &stubWeatherClient{
		data: models.WeatherData{City: "chicago", Temperature: 20, FetchedAt: time.Now()},
	}
	c := NewCachedClient(inner, NewMemoryCache(), 10*time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		data, err := c.FetchCurrent(context.Background(), "Chicago")
		if err != nil {
			t.Fatalf("FetchCurrent() call %d error = %v", i+1, err)
		}
		if data.Temperature != 20 {
			t.Errorf("Temperature = %v, want 20", data.Temperature)
		}
	}

	if inner.calls != 1 {
		t.Errorf("inner client called %d times, want 1", inner.calls)
	}
}

func TestCachedClient_KeyNormalization(t *testing.T) {
	inner := &stubWeatherClient{
		data: models.WeatherData{City: "chicago", Temperature: 20},
	}
	c := NewCachedClient(inner, NewMemoryCache(), 10*time.Minute, zap.NewNop())

	for _, city := range []string{"Chicago", "  chicago  ", "CHICAGO"} {
		if _, err := c.FetchCurrent(context.Background(), city); err != nil {
			t.Fatalf("FetchCurrent(%q) error = %v", city, err)
		}
	}

	if inner.calls != 1 {
		t.Errorf("inner client called %d times, want 1", inner.calls)
	}
}

func TestCachedClient_ErrorsNotCached(t *testing.T) {
	inner := &stubWeatherClient{err: ErrUpstreamFailure}
	c := NewCachedClient(inner, NewMemoryCache(), 10*time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := c.FetchCurrent(context.Background(), "Chicago"); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("FetchCurrent() error = %v, want ErrUpstreamFailure", err)
		}
	}

	if inner.calls != 2 {
		t.Errorf("inner client called %d times, want 2", inner.calls)
	}
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string, ttl time.Duration) (models.WeatherData, bool, error) {
	return models.WeatherData{}, false, errors.New("cache down")
}

func (failingCache) Set(ctx context.Context, key string, value models.WeatherData) error {
	return errors.New("cache down")
}

func TestCachedClient_CacheFailureFallsThrough(t *testing.T) {
	inner := &stubWeatherClient{
		data: models.WeatherData{City: "chicago", Temperature: 20},
	}
	c := NewCachedClient(inner, failingCache{}, 10*time.Minute, zap.NewNop())

	data, err := c.FetchCurrent(context.Background(), "Chicago")
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if data.Temperature != 20 {
		t.Errorf("Temperature = %v, want 20", data.Temperature)
	}
	if inner.calls != 1 {
		t.Errorf("inner client called %d times, want 1", inner.calls)
	}
}

func TestMemoryCache_ReadTimeTTL(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "chicago", models.WeatherData{Temperature: 15}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok, _ := cache.Get(ctx, "chicago", time.Minute); !ok {
		t.Error("Get() with generous TTL missed")
	}
	if _, ok, _ := cache.Get(ctx, "chicago", 0); ok {
		t.Error("Get() with zero TTL hit")
	}
}
