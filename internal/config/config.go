package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

// Cache backends.
const (
	CacheBackendNone      = "none"
	CacheBackendInMemory  = "in_memory"
	CacheBackendMemcached = "memcached"
	CacheBackendRedis     = "redis"
	CacheBackendValkey    = "valkey"
)

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string

	GeocodingURL       string
	GeocodingUserAgent string
	GeocodingTimeout   time.Duration

	PlacesAPIKey  string
	PlacesAPIURL  string
	PlacesAPIHost string
	PlacesTimeout time.Duration

	WeatherAPIKey  string
	WeatherAPIURL  string
	WeatherAPIHost string
	WeatherTimeout time.Duration

	RequestTimeout time.Duration
	FetchTimeout   time.Duration
	MaxQueryLength int

	CacheBackend    string
	PlacesCacheTTL  time.Duration
	WeatherCacheTTL time.Duration
	GeocodeCacheTTL time.Duration
	WarmLocations   []models.Coordinates
	WarmInterval    time.Duration
	PurgeInterval   time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisURL              string
	ValkeyAddr            string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration
	MaxSessions          int

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DefaultLat float64
	DefaultLng float64
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Geocoding struct {
		URL       string `yaml:"url"`
		UserAgent string `yaml:"user_agent"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"geocoding"`

	PlacesAPI struct {
		URL     string `yaml:"url"`
		Host    string `yaml:"host"`
		Timeout string `yaml:"timeout"`
	} `yaml:"places_api"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Host    string `yaml:"host"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout        string `yaml:"timeout"`
		FetchTimeout   string `yaml:"fetch_timeout"`
		MaxQueryLength int    `yaml:"max_query_length"`
	} `yaml:"request"`

	Cache struct {
		Backend       string `yaml:"backend"`
		PlacesTTL     string `yaml:"places_ttl"`
		WeatherTTL    string `yaml:"weather_ttl"`
		GeocodeTTL    string `yaml:"geocode_ttl"`
		PurgeInterval string `yaml:"purge_interval"`
		Warm          struct {
			Interval  string `yaml:"interval"`
			Locations []struct {
				Lat float64 `yaml:"lat"`
				Lng float64 `yaml:"lng"`
			} `yaml:"locations"`
		} `yaml:"warm"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			URL string `yaml:"url"`
		} `yaml:"redis"`
		Valkey struct {
			Addr string `yaml:"addr"`
		} `yaml:"valkey"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Sessions struct {
		IdleTimeout   string `yaml:"idle_timeout"`
		SweepInterval string `yaml:"sweep_interval"`
		Max           int    `yaml:"max"`
	} `yaml:"sessions"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	DefaultLocation struct {
		Lat *float64 `yaml:"lat"`
		Lng *float64 `yaml:"lng"`
	} `yaml:"default_location"`
}

type secretsFile struct {
	PlacesAPIKey  string `yaml:"places_api_key"`
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads config/{ENV_NAME}.yaml (default dev), an optional .env file and
// config/secrets.yaml. API keys come from PLACES_API_KEY / WEATHER_API_KEY or
// the secrets file. Missing keys are not an error: the matching upstream
// degrades to empty results. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
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
	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.PlacesAPIKey = firstNonEmpty(os.Getenv("PLACES_API_KEY"), sec.PlacesAPIKey)
	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)

	cfg.GeocodingURL = firstNonEmpty(fc.Geocoding.URL, "https://nominatim.openstreetmap.org/search")
	cfg.GeocodingUserAgent = firstNonEmpty(fc.Geocoding.UserAgent, "travel-discovery-service")
	cfg.GeocodingTimeout = parseDurationOrZero(fc.Geocoding.Timeout, 3*time.Second)

	cfg.PlacesAPIURL = firstNonEmpty(fc.PlacesAPI.URL, "https://travel-advisor.p.rapidapi.com")
	cfg.PlacesAPIHost = firstNonEmpty(fc.PlacesAPI.Host, "travel-advisor.p.rapidapi.com")
	cfg.PlacesTimeout = parseDurationOrZero(fc.PlacesAPI.Timeout, 5*time.Second)

	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://community-open-weather-map.p.rapidapi.com")
	cfg.WeatherAPIHost = firstNonEmpty(fc.WeatherAPI.Host, "community-open-weather-map.p.rapidapi.com")
	cfg.WeatherTimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 3*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.FetchTimeout = parseDuration(fc.Request.FetchTimeout, 15*time.Second)
	cfg.MaxQueryLength = fc.Request.MaxQueryLength
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 200
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, CacheBackendInMemory)))
	cfg.PlacesCacheTTL = parseDuration(fc.Cache.PlacesTTL, 5*time.Minute)
	cfg.WeatherCacheTTL = parseDuration(fc.Cache.WeatherTTL, 10*time.Minute)
	cfg.GeocodeCacheTTL = parseDuration(fc.Cache.GeocodeTTL, time.Hour)
	for _, l := range fc.Cache.Warm.Locations {
		cfg.WarmLocations = append(cfg.WarmLocations, models.Coordinates{Lat: l.Lat, Lng: l.Lng})
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)
	cfg.PurgeInterval = parseDuration(fc.Cache.PurgeInterval, time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisURL = strings.TrimSpace(firstNonEmpty(os.Getenv("REDIS_URL"), fc.Cache.Redis.URL, "redis://localhost:6379/0"))
	cfg.ValkeyAddr = strings.TrimSpace(firstNonEmpty(os.Getenv("VALKEY_ADDR"), fc.Cache.Valkey.Addr, "localhost:6379"))

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.CircuitBreakerEnabled = true
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.SessionIdleTimeout = parseDuration(fc.Sessions.IdleTimeout, 30*time.Minute)
	cfg.SessionSweepInterval = parseDuration(fc.Sessions.SweepInterval, time.Minute)
	cfg.MaxSessions = fc.Sessions.Max
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10000
	}

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DefaultLat = 40.7128
	cfg.DefaultLng = -74.006
	if fc.DefaultLocation.Lat != nil && fc.DefaultLocation.Lng != nil {
		cfg.DefaultLat = *fc.DefaultLocation.Lat
		cfg.DefaultLng = *fc.DefaultLocation.Lng
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load checks. Upstream timeouts must be positive;
// RequestTimeout and FetchTimeout are raised above the slowest upstream.
func validate(cfg *Config) error {
	var errs []string
	for name, d := range map[string]time.Duration{
		"geocoding.timeout":   cfg.GeocodingTimeout,
		"places_api.timeout":  cfg.PlacesTimeout,
		"weather_api.timeout": cfg.WeatherTimeout,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	slowest := cfg.GeocodingTimeout
	if cfg.PlacesTimeout > slowest {
		slowest = cfg.PlacesTimeout
	}
	if cfg.WeatherTimeout > slowest {
		slowest = cfg.WeatherTimeout
	}
	if cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	if cfg.FetchTimeout <= slowest {
		cfg.FetchTimeout = slowest + time.Second
	}
	switch cfg.CacheBackend {
	case CacheBackendNone, CacheBackendInMemory, CacheBackendMemcached, CacheBackendRedis, CacheBackendValkey:
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be none, in_memory, memcached, redis or valkey, got %q", cfg.CacheBackend))
	}
	for i, c := range cfg.WarmLocations {
		if !c.Valid() {
			errs = append(errs, fmt.Sprintf("cache.warm.locations[%d] out of range", i))
		}
	}
	if cfg.DefaultLat < -90 || cfg.DefaultLat > 90 || cfg.DefaultLng < -180 || cfg.DefaultLng > 180 {
		errs = append(errs, "default_location out of range")
	}
	if cfg.DegradedErrorPct > 100 {
		errs = append(errs, "health.degraded_error_pct must be <= 100")
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
