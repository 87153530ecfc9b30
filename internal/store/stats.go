package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/observability"
)

// Stats aggregates storage statistics over currently-valid records. Totals,
// histograms and the per-city breakdown all apply the same expires_at filter
// and run in one read-only transaction so they describe a single snapshot.
func (s *Store) Stats(ctx context.Context) (models.StorageStats, error) {
	stats := models.StorageStats{
		EncodingsUsed: map[string]int{},
		LanguagesUsed: map[string]int{},
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return stats, opErr(ctx, "begin stats", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(text_size_bytes), 0),
			COALESCE(SUM(audio_size_bytes), 0)
		FROM forecasts
		WHERE expires_at > now()`).Scan(
		&stats.TotalForecasts, &stats.TotalTextBytes, &stats.TotalAudioBytes,
	)
	if err != nil {
		observability.StoreOperationDuration.WithLabelValues("stats", "error").Observe(time.Since(start).Seconds())
		return stats, opErr(ctx, "aggregate totals", err)
	}

	if err := scanHistogram(ctx, tx, `
		SELECT text_encoding, COUNT(*)
		FROM forecasts
		WHERE expires_at > now()
		GROUP BY text_encoding`, stats.EncodingsUsed); err != nil {
		return stats, err
	}

	if err := scanHistogram(ctx, tx, `
		SELECT text_language, COUNT(*)
		FROM forecasts
		WHERE expires_at > now() AND text_language IS NOT NULL
		GROUP BY text_language`, stats.LanguagesUsed); err != nil {
		return stats, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT
			city,
			COUNT(*) AS forecast_count,
			COALESCE(SUM(text_size_bytes), 0) AS total_text_bytes,
			COALESCE(SUM(audio_size_bytes), 0) AS total_audio_bytes,
			MAX(forecast_at) AS latest_forecast
		FROM forecasts
		WHERE expires_at > now()
		GROUP BY city
		ORDER BY forecast_count DESC, city ASC`)
	if err != nil {
		return stats, opErr(ctx, "city breakdown", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cs models.CityStats
		if err := rows.Scan(&cs.City, &cs.ForecastCount, &cs.TotalTextBytes, &cs.TotalAudioBytes, &cs.LatestForecast); err != nil {
			return stats, opErr(ctx, "scan city stats", err)
		}
		stats.CityBreakdown = append(stats.CityBreakdown, cs)
	}
	if err := rows.Err(); err != nil {
		return stats, opErr(ctx, "iterate city stats", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, opErr(ctx, "commit stats", err)
	}
	observability.StoreOperationDuration.WithLabelValues("stats", "success").Observe(time.Since(start).Seconds())
	return stats, nil
}

func scanHistogram(ctx context.Context, tx *sql.Tx, query string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return opErr(ctx, "histogram query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return opErr(ctx, "scan histogram row", err)
		}
		into[key] = count
	}
	return rows.Err()
}
