package store

import "context"

// schemaStatements create the forecasts table and its query index. Records
// are append-only; the only delete path is the expiry sweep. The
// (city, expires_at) index serves the GetCurrent validity filter.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS forecasts (
		id               uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		city             text NOT NULL,
		forecast_at      timestamptz NOT NULL,
		expires_at       timestamptz NOT NULL,
		forecast_text    bytea NOT NULL,
		audio_file       bytea NOT NULL,
		text_size_bytes  integer NOT NULL,
		audio_size_bytes integer NOT NULL,
		text_encoding    text NOT NULL,
		text_language    text,
		text_locale      text,
		audio_format     text NOT NULL DEFAULT 'wav',
		audio_language   text,
		metadata         jsonb,
		created_at       timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT forecasts_validity CHECK (expires_at > forecast_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_city_expires
		ON forecasts (city, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_expires
		ON forecasts (expires_at)`,
}

// EnsureSchema creates the forecasts table and indexes if missing. Safe to
// call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return opErr(ctx, "ensure schema", err)
		}
	}
	return nil
}
