// Package forecastcache presents a single "is there a fresh forecast for
// this city" contract over interchangeable backends: the durable Postgres
// store for production and a filesystem cache for development, selected by
// configuration rather than by caller code.
package forecastcache

import (
	"context"
	"time"

	"github.com/dmccrea/forecast-cache-service/internal/models"
)

// Result is a facade lookup outcome. Cached false is the common miss case;
// the remaining fields are only set on a hit.
type Result struct {
	Cached     bool
	Text       string
	Audio      []byte
	AgeSeconds int64
}

// Entry is one forecast to record as current for a city.
type Entry struct {
	City       string
	Text       string
	Audio      []byte
	ForecastAt time.Time
	Language   string
	Locale     string
}

// CleanupResult reports one expiry sweep.
type CleanupResult struct {
	Deleted   int `json:"deleted_count"`
	Remaining int `json:"remaining_count"`
}

// Cache is the uniform forecast-cache contract. Backends must report
// backing-store failures (so callers know writes may be lost) but translate
// "nothing fresh for this city" into Result.Cached=false, never an error.
type Cache interface {
	Lookup(ctx context.Context, city string) (Result, error)
	Store(ctx context.Context, e Entry) error
	Stats(ctx context.Context) (models.StorageStats, error)
	Cleanup(ctx context.Context) (CleanupResult, error)
}
