package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	enc "github.com/dmccrea/forecast-cache-service/internal/encoding"
	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/observability"
)

// DefaultTTLMinutes applies when an upload does not specify a TTL.
const DefaultTTLMinutes = 30

// UploadInput describes one forecast to persist. Encoding empty means
// auto-detect from the text's script mix.
type UploadInput struct {
	City       string
	Text       string
	Audio      []byte
	ForecastAt time.Time
	TTLMinutes int
	Encoding   enc.Encoding
	Language   string
	Locale     string
}

// Upload encodes the forecast text and persists a new record in a single
// transaction. The record's expiry is ForecastAt + TTL; the row is never
// mutated afterwards. Codec failures propagate as EncodingError with no
// partial write; database failures as ErrUnavailable.
func (s *Store) Upload(ctx context.Context, in UploadInput) (models.UploadResult, error) {
	var res models.UploadResult

	if in.ForecastAt.IsZero() {
		return res, fmt.Errorf("%w: forecast_at is required", ErrBadTimestamp)
	}
	ttl := in.TTLMinutes
	if ttl == 0 {
		ttl = DefaultTTLMinutes
	}
	if ttl < 0 {
		return res, fmt.Errorf("%w: ttl_minutes must be positive, got %d", ErrBadTimestamp, in.TTLMinutes)
	}

	encName := in.Encoding
	if encName == "" {
		encName = enc.DetectDefault(in.Text)
	} else {
		parsed, err := enc.Parse(string(encName))
		if err != nil {
			return res, err
		}
		encName = parsed
	}
	textBytes, textSize, used, err := enc.Encode(in.Text, encName)
	if err != nil {
		return res, err
	}

	// A nil slice would travel to the driver as SQL NULL and trip the
	// column's NOT NULL constraint; text-only forecasts store an empty blob.
	audio := in.Audio
	if audio == nil {
		audio = []byte{}
	}

	expiresAt := in.ForecastAt.Add(time.Duration(ttl) * time.Minute)
	metadata, err := json.Marshal(map[string]any{
		"ttl_minutes":     ttl,
		"character_count": utf8.RuneCountInString(in.Text),
		"encoding_used":   string(used),
	})
	if err != nil {
		return res, unavailable("marshal metadata", err)
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		observability.StoreOperationDuration.WithLabelValues("upload", "error").Observe(time.Since(start).Seconds())
		return res, opErr(ctx, "begin upload", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO forecasts (
			city, forecast_at, expires_at,
			forecast_text, audio_file,
			text_size_bytes, audio_size_bytes,
			text_encoding, text_language, text_locale,
			audio_format, audio_language,
			metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		normalizeCity(in.City),
		in.ForecastAt,
		expiresAt,
		textBytes,
		audio,
		textSize,
		len(audio),
		string(used),
		nullString(in.Language),
		nullString(in.Locale),
		"wav",
		nullString(in.Language),
		metadata,
	).Scan(&id, &createdAt)
	if err != nil {
		observability.StoreOperationDuration.WithLabelValues("upload", "error").Observe(time.Since(start).Seconds())
		return res, opErr(ctx, "insert forecast", err)
	}
	if err := tx.Commit(); err != nil {
		observability.StoreOperationDuration.WithLabelValues("upload", "error").Observe(time.Since(start).Seconds())
		return res, opErr(ctx, "commit upload", err)
	}

	observability.StoreOperationDuration.WithLabelValues("upload", "success").Observe(time.Since(start).Seconds())
	observability.ForecastUploadsTotal.WithLabelValues(string(used)).Inc()

	return models.UploadResult{
		ForecastID: id,
		CreatedAt:  createdAt,
		Encoding:   used,
		Language:   in.Language,
		Locale:     in.Locale,
		TextBytes:  textSize,
		AudioBytes: len(audio),
	}, nil
}

// GetCurrent returns the most recent non-expired forecast for a city,
// optionally filtered by language. The second return is false on a cache
// miss, which is expected traffic and never an error. A record whose stored
// text fails to decode is treated as corruption and reported as
// ErrUnavailable, not as a miss.
func (s *Store) GetCurrent(ctx context.Context, city, language string) (models.CurrentForecast, bool, error) {
	var cur models.CurrentForecast

	query := `
		SELECT
			id, forecast_text, audio_file, forecast_at,
			expires_at, text_size_bytes, audio_size_bytes,
			text_encoding, text_language, text_locale,
			created_at, metadata
		FROM forecasts
		WHERE city = $1
		  AND expires_at > now()`
	args := []any{normalizeCity(city)}
	if language != "" {
		query += ` AND text_language = $2`
		args = append(args, language)
	}
	query += ` ORDER BY forecast_at DESC, created_at DESC LIMIT 1`

	start := time.Now()
	var (
		id          string
		textBytes   []byte
		audio       []byte
		forecastAt  time.Time
		expiresAt   time.Time
		textSize    int
		audioSize   int
		encName     string
		lang        sql.NullString
		locale      sql.NullString
		createdAt   time.Time
		metadataRaw []byte
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&id, &textBytes, &audio, &forecastAt,
		&expiresAt, &textSize, &audioSize,
		&encName, &lang, &locale,
		&createdAt, &metadataRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		observability.ForecastLookupsTotal.WithLabelValues("miss").Inc()
		observability.StoreOperationDuration.WithLabelValues("get_current", "success").Observe(time.Since(start).Seconds())
		return cur, false, nil
	}
	if err != nil {
		observability.ForecastLookupsTotal.WithLabelValues("error").Inc()
		observability.StoreOperationDuration.WithLabelValues("get_current", "error").Observe(time.Since(start).Seconds())
		return cur, false, opErr(ctx, "query current forecast", err)
	}

	text, err := enc.Decode(textBytes, enc.Encoding(encName))
	if err != nil {
		observability.ForecastLookupsTotal.WithLabelValues("error").Inc()
		return cur, false, unavailable(fmt.Sprintf("stored text corrupt for forecast %s", id), err)
	}

	var metadata map[string]any
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
			metadata = nil
		}
	}

	age := int64(s.now().Sub(forecastAt).Seconds())
	if age < 0 {
		age = 0
	}

	observability.ForecastLookupsTotal.WithLabelValues("hit").Inc()
	observability.StoreOperationDuration.WithLabelValues("get_current", "success").Observe(time.Since(start).Seconds())

	return models.CurrentForecast{
		City:       normalizeCity(city),
		Text:       text,
		Audio:      audio,
		ForecastAt: forecastAt,
		ExpiresAt:  expiresAt,
		AgeSeconds: age,
		Encoding:   enc.Encoding(encName),
		Language:   lang.String,
		Locale:     locale.String,
		TextBytes:  textSize,
		AudioBytes: audioSize,
		Metadata:   metadata,
	}, true, nil
}

// List returns forecast history ordered by forecast_at descending, across
// all cities when city is empty. Expired rows are excluded in the query
// unless includeExpired is set, so limit always bounds rows the caller will
// actually see. Each summary carries an Expired flag computed against the
// query's clock.
func (s *Store) List(ctx context.Context, city string, limit int, includeExpired bool) ([]models.ForecastSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT
			id, city, forecast_at, expires_at,
			text_size_bytes, audio_size_bytes,
			text_encoding, text_language, text_locale,
			created_at,
			expires_at < now() AS expired
		FROM forecasts
		WHERE TRUE`
	args := []any{}
	if city != "" {
		query += fmt.Sprintf(` AND city = $%d`, len(args)+1)
		args = append(args, normalizeCity(city))
	}
	if !includeExpired {
		query += ` AND expires_at > now()`
	}
	query += fmt.Sprintf(` ORDER BY forecast_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		observability.StoreOperationDuration.WithLabelValues("list", "error").Observe(time.Since(start).Seconds())
		return nil, opErr(ctx, "list forecasts", err)
	}
	defer rows.Close()

	var out []models.ForecastSummary
	for rows.Next() {
		var (
			fs      models.ForecastSummary
			encName string
			lang    sql.NullString
			locale  sql.NullString
		)
		if err := rows.Scan(
			&fs.ForecastID, &fs.City, &fs.ForecastAt, &fs.ExpiresAt,
			&fs.TextBytes, &fs.AudioBytes,
			&encName, &lang, &locale,
			&fs.CreatedAt, &fs.Expired,
		); err != nil {
			return nil, opErr(ctx, "scan forecast row", err)
		}
		fs.Encoding = enc.Encoding(encName)
		fs.Language = lang.String
		fs.Locale = locale.String
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr(ctx, "iterate forecast rows", err)
	}
	observability.StoreOperationDuration.WithLabelValues("list", "success").Observe(time.Since(start).Seconds())
	return out, nil
}

// CleanupExpired deletes every record whose expiry has passed and reports
// how many were removed and how many remain, in one transaction so the two
// figures are consistent. Idempotent: a second sweep deletes nothing.
func (s *Store) CleanupExpired(ctx context.Context) (deleted, remaining int, err error) {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, opErr(ctx, "begin cleanup", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM forecasts WHERE expires_at < now()`)
	if err != nil {
		observability.StoreOperationDuration.WithLabelValues("cleanup", "error").Observe(time.Since(start).Seconds())
		return 0, 0, opErr(ctx, "delete expired", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, opErr(ctx, "cleanup rows affected", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM forecasts`).Scan(&remaining); err != nil {
		return 0, 0, opErr(ctx, "count remaining", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, opErr(ctx, "commit cleanup", err)
	}

	deleted = int(affected)
	observability.CleanupDeletedTotal.Add(float64(deleted))
	observability.StoreOperationDuration.WithLabelValues("cleanup", "success").Observe(time.Since(start).Seconds())
	return deleted, remaining, nil
}

// nullString maps "" to SQL NULL for the optional classification columns.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
