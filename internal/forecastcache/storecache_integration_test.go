//go:build integration
// +build integration

package forecastcache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	enc "github.com/dmccrea/forecast-cache-service/internal/encoding"
	"github.com/dmccrea/forecast-cache-service/internal/store"
)

func openFacadeTestStore(t *testing.T) *store.Store {
	t.Helper()
	host := os.Getenv("FORECAST_DB_HOST")
	if host == "" {
		t.Skip("FORECAST_DB_HOST not set; skipping facade integration tests")
	}
	port := 5432
	if p := os.Getenv("FORECAST_DB_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	name := os.Getenv("FORECAST_DB_NAME")
	if name == "" {
		name = "weather_test"
	}
	user := os.Getenv("FORECAST_DB_USER")
	if user == "" {
		user = "postgres"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := store.Open(ctx, store.Config{
		Host:     host,
		Port:     port,
		Database: name,
		User:     user,
		Password: os.Getenv("FORECAST_DB_PASSWORD"),
	})
	if err != nil {
		t.Skipf("Open() failed (database may not be running): %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return s
}

// TestStoreCache_DefaultEncoding_Integration verifies the facade's configured
// encoding reaches the stored record: ASCII text that detection would store
// as utf-8 comes back utf-16 when the facade is built with that default.
func TestStoreCache_DefaultEncoding_Integration(t *testing.T) {
	s := openFacadeTestStore(t)
	ctx := context.Background()

	c := NewStoreCache(s, 30, enc.UTF16)
	city := "facade-encoding-test"
	if err := c.Store(ctx, Entry{
		City:       city,
		Text:       "Sunny, 75F",
		Audio:      []byte("a"),
		ForecastAt: time.Now(),
	}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	cur, found, err := s.GetCurrent(ctx, city, "")
	if err != nil || !found {
		t.Fatalf("GetCurrent() = found %v, err %v", found, err)
	}
	if cur.Encoding != enc.UTF16 {
		t.Errorf("stored encoding = %s, want utf-16 from the facade default", cur.Encoding)
	}
	if cur.Text != "Sunny, 75F" {
		t.Errorf("round-trip text = %q, want %q", cur.Text, "Sunny, 75F")
	}
}
