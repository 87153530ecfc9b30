package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	enc "github.com/dmccrea/forecast-cache-service/internal/encoding"
	"github.com/dmccrea/forecast-cache-service/internal/models"
	"github.com/dmccrea/forecast-cache-service/internal/store"
	"github.com/dmccrea/forecast-cache-service/internal/tts"
	"github.com/dmccrea/forecast-cache-service/internal/validation"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// ForecastStore is the persistence surface the REST handlers consume.
// *store.Store satisfies it; tests substitute a fake.
type ForecastStore interface {
	Upload(ctx context.Context, in store.UploadInput) (models.UploadResult, error)
	GetCurrent(ctx context.Context, city, language string) (models.CurrentForecast, bool, error)
	List(ctx context.Context, city string, limit int, includeExpired bool) ([]models.ForecastSummary, error)
	Stats(ctx context.Context) (models.StorageStats, error)
	TestConnection(ctx context.Context) (models.ConnectionStatus, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store  ForecastStore
	synth  tts.Synthesizer // nil disables synthesis on upload
	logger *zap.Logger
	// CachePing, when set, is reported in /health checks. Used when the
	// api-call cache backend is memcached.
	CachePing func() error
}

// NewHandler returns a new Handler. synth may be nil.
func NewHandler(st ForecastStore, synth tts.Synthesizer, logger *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		synth:  synth,
		logger: logger,
	}
}

// forecastResponse carries a CurrentForecast plus its audio as base64.
type forecastResponse struct {
	models.CurrentForecast
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// GetForecast handles GET /forecast/{city}?language=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city, err := validation.City(mux.Vars(r)["city"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}
	language, err := validation.Language(r.URL.Query().Get("language"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LANGUAGE", err.Error())
		return
	}

	// Lookup outcome metrics are recorded by the store itself.
	cur, ok, err := h.store.GetCurrent(r.Context(), city, language)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "FORECAST_NOT_FOUND", "no current forecast for "+city)
		return
	}

	resp := forecastResponse{CurrentForecast: cur}
	if len(cur.Audio) > 0 {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(cur.Audio)
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadRequest is the POST /forecast/{city} body.
type uploadRequest struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audio_base64"`
	ForecastAt  string `json:"forecast_at"`
	TTLMinutes  int    `json:"ttl_minutes"`
	Encoding    string `json:"encoding"`
	Language    string `json:"language"`
	Locale      string `json:"locale"`
	Tone        string `json:"tone"`
}

// PostForecast handles POST /forecast/{city}. When the body carries no audio
// and a synthesizer is configured, audio is generated from the text.
func (h *Handler) PostForecast(w http.ResponseWriter, r *http.Request) {
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
	language, err := validation.Language(req.Language)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LANGUAGE", err.Error())
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
	} else if h.synth != nil {
		audio, err = h.synth.Synthesize(r.Context(), req.Text, req.Tone)
		if err != nil {
			if logger := requestLogger(r); logger != nil {
				logger.Warn("speech synthesis failed, storing text only", zap.Error(err))
			}
			audio = nil
		}
	}

	res, err := h.store.Upload(r.Context(), store.UploadInput{
		City:       city,
		Text:       req.Text,
		Audio:      audio,
		ForecastAt: forecastAt,
		TTLMinutes: req.TTLMinutes,
		Encoding:   enc.Encoding(req.Encoding),
		Language:   language,
		Locale:     req.Locale,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetHistory handles GET /forecast/{city}/history?limit=&include_expired=.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	city, err := validation.City(mux.Vars(r)["city"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}
	limit, err := validation.Limit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
		return
	}
	includeExpired := r.URL.Query().Get("include_expired") == "true"

	// Expired rows are excluded in the store's query so limit bounds the
	// rows the caller actually receives.
	rows, err := h.store.List(r.Context(), city, limit, includeExpired)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.ForecastSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"city":      city,
		"forecasts": rows,
		"count":     len(rows),
	})
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetHealth handles GET /health. 503 when the store is unreachable; a
// reachable store with missing schema stays 200 with the gap surfaced in
// checks.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	conn, err := h.store.TestConnection(r.Context())
	switch {
	case err != nil || !conn.Connected:
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		checks["store"] = "unreachable"
		if logger := requestLogger(r); logger != nil {
			logger.Warn("health check: store unreachable", zap.Error(err))
		}
	case !conn.SchemaReady:
		checks["store"] = "schema_missing"
	default:
		checks["store"] = "healthy"
	}

	if h.CachePing != nil {
		if h.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
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

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available in context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeStoreError maps store failures to HTTP codes. Backing-store error
// text is logged but never returned verbatim.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var encErr *enc.EncodingError
	switch {
	case errors.As(err, &encErr):
		writeError(w, r, http.StatusBadRequest, "INVALID_ENCODING", encErr.Error())
		return
	case errors.Is(err, store.ErrBadTimestamp):
		writeError(w, r, http.StatusBadRequest, "INVALID_TIMESTAMP", err.Error())
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "forecast store unavailable")
	if logger := requestLogger(r); logger != nil {
		logger.Error("store error", zap.Error(err))
	}
}

func requestLogger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}
