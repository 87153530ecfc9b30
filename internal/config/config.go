package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dmccrea/forecast-cache-service/internal/encoding"
)

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string

	Database DatabaseConfig

	DefaultTTLMinutes int
	DefaultEncoding   encoding.Encoding

	ForecastBackend string // "postgres" or "filesystem"
	FilesystemDir   string

	CleanupSpec string // 6-field cron spec; empty disables the sweep

	RefreshSpec   string   // cron spec for refreshing tracked cities; empty disables
	TrackedCities []string // cities the refresh job keeps fresh

	APICacheBackend string // "in_memory" or "memcached"
	APICacheTTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	WeatherAPIKey     string // empty disables the weather client
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RetryAttempts      int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	BreakerFailures    int
	BreakerOpenTimeout time.Duration

	TTSEndpoint string // empty disables synthesis on upload
	TTSVoice    string
	TTSTimeout  time.Duration

	RequestTimeout  time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds Postgres connection parameters. Password comes from
// env only, never YAML.
type DatabaseConfig struct {
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		Name         string `yaml:"name"`
		User         string `yaml:"user"`
		SSLMode      string `yaml:"sslmode"`
		MaxOpenConns int    `yaml:"max_open_conns"`
	} `yaml:"database"`

	Forecast struct {
		DefaultTTLMinutes int      `yaml:"default_ttl_minutes"`
		DefaultEncoding   string   `yaml:"default_encoding"`
		Backend           string   `yaml:"backend"`
		FilesystemDir     string   `yaml:"filesystem_dir"`
		CleanupSpec       string   `yaml:"cleanup_spec"`
		RefreshSpec       string   `yaml:"refresh_spec"`
		TrackedCities     []string `yaml:"tracked_cities"`
	} `yaml:"forecast"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	TTS struct {
		Endpoint string `yaml:"endpoint"`
		Voice    string `yaml:"voice"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"tts"`

	Reliability struct {
		RetryMaxAttempts   int    `yaml:"retry_max_attempts"`
		RetryBaseDelay     string `yaml:"retry_base_delay"`
		RetryMaxDelay      string `yaml:"retry_max_delay"`
		BreakerFailures    int    `yaml:"breaker_failures"`
		BreakerOpenTimeout string `yaml:"breaker_open_timeout"`
		RateLimitRPS       int    `yaml:"rate_limit_rps"`
		RateLimitBurst     int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), then
// applies .env (if present) and environment overrides. Secrets (DB password,
// weather API key) come from env only. Call from project root.
func Load() (*Config, error) {
	// .env values become env vars unless already set; real env wins.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("SERVER_PORT", fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.Database = DatabaseConfig{
		Host:         envOr("FORECAST_DB_HOST", fc.Database.Host),
		Port:         envIntOr("FORECAST_DB_PORT", fc.Database.Port),
		Name:         envOr("FORECAST_DB_NAME", fc.Database.Name),
		User:         envOr("FORECAST_DB_USER", fc.Database.User),
		Password:     os.Getenv("FORECAST_DB_PASSWORD"),
		SSLMode:      fc.Database.SSLMode,
		MaxOpenConns: fc.Database.MaxOpenConns,
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port <= 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "forecasts"
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}

	cfg.DefaultTTLMinutes = fc.Forecast.DefaultTTLMinutes
	if cfg.DefaultTTLMinutes <= 0 {
		cfg.DefaultTTLMinutes = 30
	}
	if fc.Forecast.DefaultEncoding != "" {
		enc, err := encoding.Parse(fc.Forecast.DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("forecast.default_encoding: %w", err)
		}
		cfg.DefaultEncoding = enc
	}

	cfg.ForecastBackend = strings.TrimSpace(strings.ToLower(envOr("FORECAST_BACKEND", fc.Forecast.Backend)))
	if cfg.ForecastBackend == "" {
		cfg.ForecastBackend = "postgres"
	}
	cfg.FilesystemDir = envOr("FORECAST_FILESYSTEM_DIR", fc.Forecast.FilesystemDir)
	if cfg.FilesystemDir == "" {
		cfg.FilesystemDir = "forecast_cache"
	}
	cfg.CleanupSpec = fc.Forecast.CleanupSpec
	cfg.RefreshSpec = fc.Forecast.RefreshSpec
	cfg.TrackedCities = fc.Forecast.TrackedCities

	cfg.APICacheBackend = strings.TrimSpace(strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend)))
	if cfg.APICacheBackend == "" {
		cfg.APICacheBackend = "in_memory"
	}
	cfg.APICacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 2*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.BreakerFailures = fc.Reliability.BreakerFailures
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.Reliability.BreakerOpenTimeout, 30*time.Second)

	cfg.TTSEndpoint = envOr("TTS_ENDPOINT", fc.TTS.Endpoint)
	cfg.TTSVoice = fc.TTS.Voice
	cfg.TTSTimeout = parseDuration(fc.TTS.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.ForecastBackend {
	case "postgres", "filesystem":
	default:
		return fmt.Errorf("forecast.backend must be postgres or filesystem, got %q", cfg.ForecastBackend)
	}
	switch cfg.APICacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.APICacheBackend)
	}
	if cfg.ForecastBackend == "postgres" && cfg.Database.Password == "" {
		return fmt.Errorf("FORECAST_DB_PASSWORD required (set env or .env)")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	return nil
}
