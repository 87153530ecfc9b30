package forecastcache

import (
	"context"

	enc "github.com/dmccrea/forecast-cache-service/internal/encoding"
	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/store"
)

// StoreCache is the production facade backend over the Postgres forecast
// store. Text and audio live in one atomic record, so a hit always returns
// a consistent pair.
type StoreCache struct {
	store      *store.Store
	ttlMinutes int
	encoding   enc.Encoding
}

// NewStoreCache wraps the store with the facade contract. ttlMinutes applies
// to entries recorded through Store; zero means the store default. encoding
// is used for entries recorded through Store; empty means detect from the
// text's script mix.
func NewStoreCache(s *store.Store, ttlMinutes int, encoding enc.Encoding) *StoreCache {
	return &StoreCache{store: s, ttlMinutes: ttlMinutes, encoding: encoding}
}

// Lookup returns the current forecast for city if one is fresh.
func (c *StoreCache) Lookup(ctx context.Context, city string) (Result, error) {
	cur, found, err := c.store.GetCurrent(ctx, city, "")
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{Cached: false}, nil
	}
	return Result{
		Cached:     true,
		Text:       cur.Text,
		Audio:      cur.Audio,
		AgeSeconds: cur.AgeSeconds,
	}, nil
}

// Store records e as the current forecast for its city.
func (c *StoreCache) Store(ctx context.Context, e Entry) error {
	_, err := c.store.Upload(ctx, store.UploadInput{
		City:       e.City,
		Text:       e.Text,
		Audio:      e.Audio,
		ForecastAt: e.ForecastAt,
		TTLMinutes: c.ttlMinutes,
		Encoding:   c.encoding,
		Language:   e.Language,
		Locale:     e.Locale,
	})
	return err
}

// Stats passes through to the store's aggregate statistics.
func (c *StoreCache) Stats(ctx context.Context) (models.StorageStats, error) {
	return c.store.Stats(ctx)
}

// Cleanup runs the store's expiry sweep.
func (c *StoreCache) Cleanup(ctx context.Context) (CleanupResult, error) {
	deleted, remaining, err := c.store.CleanupExpired(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	return CleanupResult{Deleted: deleted, Remaining: remaining}, nil
}
