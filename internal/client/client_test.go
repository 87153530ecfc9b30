package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testAPIKey = "test-api-key-12345"

func TestNewOpenWeatherClient_KeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr bool
	}{
		{"valid key", testAPIKey, false},
		{"empty key", "", true},
		{"too short", "short", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenWeatherClient(tt.apiKey, "http://localhost", 5*time.Second)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOpenWeatherClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidAPIKey) {
				t.Errorf("error = %v, want ErrInvalidAPIKey", err)
			}
		})
	}
}

func TestFetchCurrent_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Chicago" {
			t.Errorf("query city = %q, want %q", got, "Chicago")
		}
		if got := r.URL.Query().Get("appid"); got != testAPIKey {
			t.Errorf("query appid = %q, want %q", got, testAPIKey)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"main": {"temp": 21.5, "humidity": 60},
			"weather": [{"main": "Clouds", "description": "scattered clouds"}],
			"wind": {"speed": 4.2},
			"name": "Chicago"
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenWeatherClient(testAPIKey, srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	data, err := c.FetchCurrent(context.Background(), "Chicago")
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if data.City != "chicago" {
		t.Errorf("City = %q, want %q", data.City, "chicago")
	}
	if data.Temperature != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", data.Temperature)
	}
	if data.Conditions != "scattered clouds" {
		t.Errorf("Conditions = %q, want %q", data.Conditions, "scattered clouds")
	}
	if data.Humidity != 60 {
		t.Errorf("Humidity = %d, want 60", data.Humidity)
	}
	if data.FetchedAt.IsZero() {
		t.Error("FetchedAt is zero")
	}
}

func TestFetchCurrent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"city not found", http.StatusNotFound, ErrCityNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrUpstreamFailure},
		{"bad gateway", http.StatusBadGateway, ErrUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			c, err := NewOpenWeatherClientWithRetry(testAPIKey, srv.URL, time.Second, 1, time.Millisecond, time.Millisecond)
			if err != nil {
				t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
			}

			_, err = c.FetchCurrent(context.Background(), "Chicago")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchCurrent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchCurrent_RetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"main": {"temp": 10, "humidity": 50}, "weather": [{"main": "Clear"}], "wind": {"speed": 1}, "name": "Boston"}`))
	}))
	defer srv.Close()

	c, err := NewOpenWeatherClientWithRetry(testAPIKey, srv.URL, time.Second, 3, time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}

	data, err := c.FetchCurrent(context.Background(), "Boston")
	if err != nil {
		t.Fatalf("FetchCurrent() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("provider called %d times, want 3", calls)
	}
	if data.City != "boston" {
		t.Errorf("City = %q, want %q", data.City, "boston")
	}
}

func TestFetchCurrent_NoRetryOnCityNotFound(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewOpenWeatherClientWithRetry(testAPIKey, srv.URL, time.Second, 3, time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}

	_, err = c.FetchCurrent(context.Background(), "Nowhereville")
	if !errors.Is(err, ErrCityNotFound) {
		t.Fatalf("FetchCurrent() error = %v, want ErrCityNotFound", err)
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1", calls)
	}
}

func TestFetchCurrent_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewOpenWeatherClientWithRetry(testAPIKey, srv.URL, time.Second, 1, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}
	c.EnableBreaker(2, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.FetchCurrent(context.Background(), "Chicago"); err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
	}

	// Breaker is now open; the next call must fail fast without reaching
	// the server.
	srv.Close()
	_, err = c.FetchCurrent(context.Background(), "Chicago")
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("FetchCurrent() with open breaker error = %v, want ErrUpstreamFailure", err)
	}
}

func TestCalculateBackoff_CapsAtMaxDelay(t *testing.T) {
	c := &OpenWeatherClient{
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  time.Second,
	}

	for attempt := 1; attempt <= 10; attempt++ {
		delay := c.calculateBackoff(attempt)
		// 10% jitter on top of the capped delay.
		if delay > time.Second+100*time.Millisecond {
			t.Errorf("backoff(%d) = %v, exceeds cap", attempt, delay)
		}
		if delay <= 0 {
			t.Errorf("backoff(%d) = %v, want positive", attempt, delay)
		}
	}
}
