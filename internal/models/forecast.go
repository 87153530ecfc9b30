package models

import (
	"time"

	"github.com/dmccrea/forecast-cache-service/internal/encoding"
)

// UploadResult describes a persisted forecast immediately after upload.
type UploadResult struct {
	ForecastID string            `json:"forecast_id"`
	CreatedAt  time.Time         `json:"created_at"`
	Encoding   encoding.Encoding `json:"encoding"`
	Language   string            `json:"language,omitempty"`
	Locale     string            `json:"locale,omitempty"`
	TextBytes  int               `json:"text_bytes"`
	AudioBytes int               `json:"audio_bytes"`
}

// CurrentForecast is the most recent non-expired forecast for a city,
// decoded and ready to serve.
type CurrentForecast struct {
	City       string            `json:"city"`
	Text       string            `json:"text"`
	Audio      []byte            `json:"-"`
	ForecastAt time.Time         `json:"forecast_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	AgeSeconds int64             `json:"age_seconds"`
	Encoding   encoding.Encoding `json:"encoding"`
	Language   string            `json:"language,omitempty"`
	Locale     string            `json:"locale,omitempty"`
	TextBytes  int               `json:"text_bytes"`
	AudioBytes int               `json:"audio_bytes"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// ForecastSummary is one row of forecast history. Expired is computed at
// read time, never stored.
type ForecastSummary struct {
	ForecastID string            `json:"forecast_id"`
	City       string            `json:"city"`
	ForecastAt time.Time         `json:"forecast_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Expired    bool              `json:"expired"`
	TextBytes  int               `json:"text_bytes"`
	AudioBytes int               `json:"audio_bytes"`
	Encoding   encoding.Encoding `json:"encoding"`
	Language   string            `json:"language,omitempty"`
	Locale     string            `json:"locale,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CityStats aggregates the currently-valid forecasts for one city.
type CityStats struct {
	City            string    `json:"city"`
	ForecastCount   int       `json:"forecast_count"`
	TotalTextBytes  int64     `json:"total_text_bytes"`
	TotalAudioBytes int64     `json:"total_audio_bytes"`
	LatestForecast  time.Time `json:"latest_forecast"`
}

// StorageStats aggregates storage across all cities. All figures, including
// the encoding and language histograms, count only currently-valid records.
type StorageStats struct {
	TotalForecasts  int            `json:"total_forecasts"`
	TotalTextBytes  int64          `json:"total_text_bytes"`
	TotalAudioBytes int64          `json:"total_audio_bytes"`
	EncodingsUsed   map[string]int `json:"encodings_used"`
	LanguagesUsed   map[string]int `json:"languages_used"`
	CityBreakdown   []CityStats    `json:"city_breakdown"`
}

// ConnectionStatus is the result of the store's liveness probe. Connected
// without SchemaReady means the database is reachable but the forecasts
// table has not been created.
type ConnectionStatus struct {
	Connected   bool   `json:"connected"`
	Database    string `json:"database"`
	Version     string `json:"version,omitempty"`
	SchemaReady bool   `json:"schema_ready"`
}
