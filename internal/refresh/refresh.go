// Package refresh keeps forecasts for a configured set of cities fresh by
// fetching current conditions and writing a composed forecast into the cache.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmccrea/forecast-cache-service/internal/client"
	"github.com/dmccrea/forecast-cache-service/internal/forecastcache"
	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/tts"
)

// Refresher fetches conditions for tracked cities and stores forecasts.
type Refresher struct {
	fetcher client.WeatherClient
	cache   forecastcache.Cache
	synth   tts.Synthesizer // nil stores text-only forecasts
	logger  *zap.Logger
}

// New creates a Refresher. synth may be nil.
func New(fetcher client.WeatherClient, cache forecastcache.Cache, synth tts.Synthesizer, logger *zap.Logger) *Refresher {
	return &Refresher{
		fetcher: fetcher,
		cache:   cache,
		synth:   synth,
		logger:  logger,
	}
}

// RefreshAll fetches and stores a forecast for each city concurrently.
// Returns an aggregated error when any city failed; the rest still refresh.
func (r *Refresher) RefreshAll(ctx context.Context, cities []string) error {
	start := time.Now()
	r.logger.Info("refreshing tracked cities", zap.Int("cities", len(cities)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.refreshCity(ctx, city); err != nil {
				errCh <- fmt.Errorf("refresh %s: %w", city, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	r.logger.Info("refresh complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)))
	if len(errs) > 0 {
		return fmt.Errorf("refresh: %v", errs)
	}
	return nil
}

func (r *Refresher) refreshCity(ctx context.Context, city string) error {
	data, err := r.fetcher.FetchCurrent(ctx, city)
	if err != nil {
		return err
	}

	text := ComposeText(data)
	var audio []byte
	if r.synth != nil {
		audio, err = r.synth.Synthesize(ctx, text, "neutral")
		if err != nil {
			r.logger.Warn("synthesis failed, storing text only",
				zap.String("city", city),
				zap.Error(err))
			audio = nil
		}
	}

	return r.cache.Store(ctx, forecastcache.Entry{
		City:       city,
		Text:       text,
		Audio:      audio,
		ForecastAt: data.FetchedAt,
		Language:   "en",
	})
}

// ComposeText renders current conditions as a short spoken-style forecast.
func ComposeText(d models.WeatherData) string {
	return fmt.Sprintf("Current conditions in %s: %s, %.1f degrees, humidity %d%%, wind %.1f meters per second.",
		d.City, d.Conditions, d.Temperature, d.Humidity, d.WindSpeed)
}
