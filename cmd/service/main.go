package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dmccrea/forecast-cache-service/internal/client"
	"github.com/dmccrea/forecast-cache-service/internal/config"
	"github.com/dmccrea/forecast-cache-service/internal/forecastcache"
	httphandler "github.com/dmccrea/forecast-cache-service/internal/http"
	"github.com/dmccrea/forecast-cache-service/internal/observability"
	"github.com/dmccrea/forecast-cache-service/internal/refresh"
	"github.com/dmccrea/forecast-cache-service/internal/store"
	"github.com/dmccrea/forecast-cache-service/internal/tts"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var (
		st     *store.Store
		facade forecastcache.Cache
	)
	switch cfg.ForecastBackend {
	case "postgres":
		openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err = store.Open(openCtx, store.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			Database:     cfg.Database.Name,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		})
		openCancel()
		if err != nil {
			logger.Fatal("forecast store", zap.Error(err))
		}
		schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = st.EnsureSchema(schemaCtx)
		schemaCancel()
		if err != nil {
			logger.Fatal("forecast schema", zap.Error(err))
		}
		facade = forecastcache.NewStoreCache(st, cfg.DefaultTTLMinutes, cfg.DefaultEncoding)
		logger.Info("forecast backend: postgres",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Name))
	default:
		facade = forecastcache.NewFileCache(cfg.FilesystemDir, time.Duration(cfg.DefaultTTLMinutes)*time.Minute)
		logger.Info("forecast backend: filesystem", zap.String("dir", cfg.FilesystemDir))
	}

	var synth tts.Synthesizer
	if cfg.TTSEndpoint != "" {
		synth, err = tts.NewHTTPSynthesizer(cfg.TTSEndpoint, cfg.TTSVoice, cfg.TTSTimeout)
		if err != nil {
			logger.Fatal("tts", zap.Error(err))
		}
		logger.Info("speech synthesis enabled", zap.String("endpoint", cfg.TTSEndpoint))
	}

	var (
		weather        client.WeatherClient
		memcacheCloser *client.MemcachedCache
	)
	if cfg.WeatherAPIKey != "" {
		base, err := client.NewOpenWeatherClientWithRetry(
			cfg.WeatherAPIKey,
			cfg.WeatherAPIURL,
			cfg.WeatherAPITimeout,
			cfg.RetryAttempts,
			cfg.RetryBaseDelay,
			cfg.RetryMaxDelay,
		)
		if err != nil {
			logger.Fatal("weather client", zap.Error(err))
		}
		base.EnableBreaker(uint32(cfg.BreakerFailures), cfg.BreakerOpenTimeout)

		var respCache client.ResponseCache
		switch cfg.APICacheBackend {
		case "memcached":
			mc, err := client.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.APICacheTTL)
			if err != nil {
				logger.Fatal("memcached cache", zap.Error(err))
			}
			memcacheCloser = mc
			respCache = mc
			logger.Info("api cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		default:
			respCache = client.NewMemoryCache()
			logger.Info("api cache backend: in_memory")
		}
		weather = client.NewCachedClient(base, respCache, cfg.APICacheTTL, logger)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Handle("/metrics", observability.MetricsHandler())

	forecastRouter := router.PathPrefix("/forecast").Subrouter()
	forecastRouter.Use(httphandler.RateLimitMiddleware(limiter))
	forecastRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))

	if st != nil {
		handler := httphandler.NewHandler(st, synth, logger)
		if memcacheCloser != nil {
			handler.CachePing = memcacheCloser.Ping
		}
		router.HandleFunc("/health", handler.GetHealth).Methods("GET")
		router.HandleFunc("/stats", handler.GetStats).Methods("GET")
		forecastRouter.HandleFunc("/{city}/history", handler.GetHistory).Methods("GET")
		forecastRouter.HandleFunc("/{city}", handler.GetForecast).Methods("GET")
		forecastRouter.HandleFunc("/{city}", handler.PostForecast).Methods("POST")
	} else {
		handler := httphandler.NewFacadeHandler(facade, logger)
		router.HandleFunc("/health", handler.GetHealth).Methods("GET")
		router.HandleFunc("/stats", handler.GetStats).Methods("GET")
		forecastRouter.HandleFunc("/{city}", handler.GetForecast).Methods("GET")
		forecastRouter.HandleFunc("/{city}", handler.PostForecast).Methods("POST")
	}

	jobs := cron.New()
	if cfg.CleanupSpec != "" {
		err := jobs.AddFunc(cfg.CleanupSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			// Deletion metrics are recorded by the cache backend.
			res, err := facade.Cleanup(ctx)
			if err != nil {
				logger.Error("cleanup sweep", zap.Error(err))
				return
			}
			logger.Info("cleanup sweep complete",
				zap.Int("deleted", res.Deleted),
				zap.Int("remaining", res.Remaining))
		})
		if err != nil {
			logger.Fatal("cleanup schedule", zap.Error(err))
		}
		logger.Info("cleanup scheduled", zap.String("spec", cfg.CleanupSpec))
	}
	if cfg.RefreshSpec != "" && weather != nil && len(cfg.TrackedCities) > 0 {
		refresher := refresh.New(weather, facade, synth, logger)
		err := jobs.AddFunc(cfg.RefreshSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := refresher.RefreshAll(ctx, cfg.TrackedCities); err != nil {
				logger.Warn("tracked city refresh", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("refresh schedule", zap.Error(err))
		}
		logger.Info("refresh scheduled",
			zap.String("spec", cfg.RefreshSpec),
			zap.Strings("cities", cfg.TrackedCities))
	}
	jobs.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	jobs.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if st != nil {
		if err := st.Close(); err != nil {
			logger.Error("store close", zap.Error(err))
		}
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
