package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dmccrea/forecast-cache-service/internal/forecastcache"
	"github.com/dmccrea/forecast-cache-service/internal/validation"
)

// FacadeHandler serves the forecast routes from a forecastcache.Cache
// backend. Used when the service runs on the filesystem backend, which has no
// per-record history or connection probe; those routes are not registered.
type FacadeHandler struct {
	cache  forecastcache.Cache
	logger *zap.Logger
}

// NewFacadeHandler returns a handler over the given cache backend.
func NewFacadeHandler(cache forecastcache.Cache, logger *zap.Logger) *FacadeHandler {
	return &FacadeHandler{cache: cache, logger: logger}
}

// GetForecast handles GET /forecast/{city}.
func (h *FacadeHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city, err := validation.City(mux.Vars(r)["city"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	// Lookup outcome metrics are recorded by the cache backend.
	res, err := h.cache.Lookup(r.Context(), city)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !res.Cached {
		writeError(w, r, http.StatusNotFound, "FORECAST_NOT_FOUND", "no current forecast for "+city)
		return
	}

	resp := map[string]interface{}{
		"city":        city,
		"text":        res.Text,
		"age_seconds": res.AgeSeconds,
	}
	if len(res.Audio) > 0 {
		resp["audio_base64"] = base64.StdEncoding.EncodeToString(res.Audio)
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostForecast handles POST /forecast/{city}.
func (h *FacadeHandler) PostForecast(w http.ResponseWriter, r *http.Request) {
	city, err := validation.City(mux.Vars(r)["city"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "text is required")
		return
	}
	forecastAt, err := time.Parse(time.RFC3339, req.ForecastAt)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_TIMESTAMP", "forecast_at must be RFC 3339")
		return
	}
	var audio []byte
	if req.AudioBase64 != "" {
		audio, err = base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "audio_base64 is not valid base64")
			return
		}
	}

	if err := h.cache.Store(r.Context(), forecastcache.Entry{
		City:       city,
		Text:       req.Text,
		Audio:      audio,
		ForecastAt: forecastAt,
		Language:   req.Language,
		Locale:     req.Locale,
	}); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"city":       city,
		"text_bytes": len(req.Text),
	})
}

// GetStats handles GET /stats.
func (h *FacadeHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetHealth handles GET /health. The filesystem backend has no connection to
// probe; reporting reachable storage is a Stats round-trip.
func (h *FacadeHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := map[string]string{"store": "healthy"}

	if _, err := h.cache.Stats(r.Context()); err != nil {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		checks["store"] = "unreachable"
		if logger := requestLogger(r); logger != nil {
			logger.Warn("health check: cache unreachable", zap.Error(err))
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "forecast-cache-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
