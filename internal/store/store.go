// Package store persists forecast records in PostgreSQL. It owns the
// forecasts schema and the insert/query/cleanup/statistics operations, and
// enforces at-most-one-fresh-forecast-per-city-per-language semantics at
// read time: validity is always computed from expires_at, never stored.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/dmccrea/forecast-cache-service/internal/models"
)

// Config holds the connection parameters for the backing database.
type Config struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
}

// Store owns the database handle. Construct with Open, release with Close;
// there is no package-level connection state.
type Store struct {
	db       *sql.DB
	database string
	now      func() time.Time
}

// Open connects to PostgreSQL and verifies the connection with a ping.
// The pool is owned by the returned Store and released by Close.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf(
		"user=%s dbname=%s host=%s port=%d password=%s sslmode=%s",
		cfg.User, cfg.Database, cfg.Host, cfg.Port, cfg.Password, sslMode,
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, opErr(ctx, "ping", err)
	}
	return &Store{db: db, database: cfg.Database, now: time.Now}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return opErr(ctx, "ping", err)
	}
	return nil
}

// TestConnection probes liveness and readiness, distinguishing "unreachable"
// (error return) from "reachable but schema missing" (Connected true,
// SchemaReady false).
func (s *Store) TestConnection(ctx context.Context) (models.ConnectionStatus, error) {
	status := models.ConnectionStatus{Database: s.database}

	var version string
	if err := s.db.QueryRowContext(ctx, `SELECT version()`).Scan(&version); err != nil {
		return status, opErr(ctx, "version query", err)
	}
	status.Connected = true
	status.Version = version

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'forecasts'
		)`).Scan(&exists)
	if err != nil {
		return status, opErr(ctx, "schema check", err)
	}
	status.SchemaReady = exists
	return status, nil
}

// normalizeCity lower-cases and trims a city key. Every write and read goes
// through this so city comparison is case-insensitive.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
