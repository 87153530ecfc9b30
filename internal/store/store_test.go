package store

import (
	"context"
	"errors"
	"testing"
	"time"

	enc "github.com/dmccrea/forecast-cache-service/internal/encoding"
)

// TestNormalizeCity verifies case-insensitive city normalization.
func TestNormalizeCity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Chicago", "chicago"},
		{"  CHICAGO  ", "chicago"},
		{"new york", "new york"},
		{"México", "méxico"},
	}
	for _, tt := range tests {
		if got := normalizeCity(tt.in); got != tt.want {
			t.Errorf("normalizeCity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestUpload_InputValidation verifies that bad timestamps, bad TTLs and bad
// encodings are rejected before any database work happens.
func TestUpload_InputValidation(t *testing.T) {
	s := &Store{now: time.Now}
	ctx := context.Background()

	_, err := s.Upload(ctx, UploadInput{City: "chicago", Text: "sunny"})
	if !errors.Is(err, ErrBadTimestamp) {
		t.Errorf("Upload() with zero forecast_at error = %v, want ErrBadTimestamp", err)
	}

	_, err = s.Upload(ctx, UploadInput{
		City:       "chicago",
		Text:       "sunny",
		ForecastAt: time.Now(),
		TTLMinutes: -5,
	})
	if !errors.Is(err, ErrBadTimestamp) {
		t.Errorf("Upload() with negative ttl error = %v, want ErrBadTimestamp", err)
	}

	_, err = s.Upload(ctx, UploadInput{
		City:       "chicago",
		Text:       "sunny",
		ForecastAt: time.Now(),
		TTLMinutes: 30,
		Encoding:   enc.Encoding("latin-1"),
	})
	var encErr *enc.EncodingError
	if !errors.As(err, &encErr) {
		t.Errorf("Upload() with bad encoding error = %v, want *encoding.EncodingError", err)
	}
}

// TestNullString verifies empty strings map to SQL NULL for the optional
// language/locale columns.
func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("nullString(\"\") Valid = true, want false")
	}
	if ns := nullString("en"); !ns.Valid || ns.String != "en" {
		t.Errorf("nullString(\"en\") = %+v, want valid \"en\"", ns)
	}
}
