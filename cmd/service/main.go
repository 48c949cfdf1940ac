package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/travel-discovery-service/internal/cache"
	"github.com/kjstillabower/travel-discovery-service/internal/circuitbreaker"
	"github.com/kjstillabower/travel-discovery-service/internal/client"
	"github.com/kjstillabower/travel-discovery-service/internal/config"
	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	httphandler "github.com/kjstillabower/travel-discovery-service/internal/http"
	"github.com/kjstillabower/travel-discovery-service/internal/lifecycle"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
	"github.com/kjstillabower/travel-discovery-service/internal/service"
	"github.com/kjstillabower/travel-discovery-service/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

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

	cacheSvc, cacheCloser, err := cache.New(backendConfig(cfg))
	if err != nil {
		logger.Fatal("cache backend", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Breakers:         map[string]httphandler.BreakerState{},
		Version:          version,
	}
	if p, ok := cacheSvc.(cache.Pinger); ok {
		healthConfig.CachePing = p.Ping
	}

	upstreamOpts := func(api string) []client.Option {
		opts := []client.Option{client.WithRetry(client.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
		})}
		if cfg.CircuitBreakerEnabled {
			cb := newBreaker(cfg, api)
			healthConfig.Breakers[api] = cb
			opts = append(opts, client.WithBreaker(cb))
		}
		return opts
	}

	geocoder := client.NewNominatimClient(cfg.GeocodingURL, cfg.GeocodingUserAgent, cfg.GeocodingTimeout, upstreamOpts(observability.UpstreamGeocoding)...)
	places := client.NewTravelAdvisorClient(cfg.PlacesAPIKey, cfg.PlacesAPIURL, cfg.PlacesAPIHost, cfg.PlacesTimeout, upstreamOpts(observability.UpstreamPlaces)...)
	weather := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPIHost, cfg.WeatherTimeout, upstreamOpts(observability.UpstreamWeather)...)
	if cfg.PlacesAPIKey == "" {
		healthConfig.Unconfigured = append(healthConfig.Unconfigured, observability.UpstreamPlaces)
		logger.Warn("places api key not configured; place lists will be empty")
	}
	if cfg.WeatherAPIKey == "" {
		healthConfig.Unconfigured = append(healthConfig.Unconfigured, observability.UpstreamWeather)
		logger.Warn("weather api key not configured; weather badge disabled")
	}
	if cfg.CircuitBreakerEnabled {
		logger.Info("circuit breakers enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	discovery := service.NewDiscoveryService(geocoder, places, weather, cacheSvc, service.Config{
		PlacesTTL:  cfg.PlacesCacheTTL,
		WeatherTTL: cfg.WeatherCacheTTL,
		GeocodeTTL: cfg.GeocodeCacheTTL,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.WarmLocations) > 0 {
		startWarming(ctx, service.NewWarmer(discovery, logger), cfg, logger)
	}

	store := session.NewStore(discovery, discovery, session.Config{
		IdleTimeout:   cfg.SessionIdleTimeout,
		SweepInterval: cfg.SessionSweepInterval,
		MaxSessions:   cfg.MaxSessions,
		Coordinator: coordinator.Options{
			FetchTimeout: cfg.FetchTimeout,
			Fallback:     models.Coordinates{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng},
		},
	}, logger)
	go func() {
		if err := store.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session sweeper stopped", zap.Error(err))
		}
	}()

	if mem, ok := cacheSvc.(*cache.InMemoryCache); ok {
		go func() {
			err := mem.RunPurge(ctx, cfg.PurgeInterval, func(n int) {
				logger.Debug("purged expired cache entries", zap.Int("count", n), zap.Int("remaining", mem.Len()))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("cache purge stopped", zap.Error(err))
			}
		}()
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(discovery, store, healthConfig, logger, cfg.MaxQueryLength)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	// No WriteTimeout: session streams hold their connection open and manage
	// their own write deadlines; other routes are bounded by RequestTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	lifecycle.MarkStarted(time.Now())
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	// Shutdown does not wait for hijacked connections; closing the store ends
	// every open stream.
	store.Close()

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := cacheCloser.Close(); err != nil {
		logger.Error("cache close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func backendConfig(cfg *config.Config) cache.BackendConfig {
	return cache.BackendConfig{
		Backend:               cfg.CacheBackend,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		RedisURL:              cfg.RedisURL,
		ValkeyAddr:            cfg.ValkeyAddr,
	}
}

func newBreaker(cfg *config.Config, api string) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.New(circuitbreaker.Config{
		Name:             api,
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		IsFailure:        client.IsBreakerFailure,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(api).Set(0)
	return cb
}

// startWarming primes the cache once, in the background, and keeps it warm
// when an interval is configured.
func startWarming(ctx context.Context, warmer *service.Warmer, cfg *config.Config, logger *zap.Logger) {
	if cfg.WarmInterval > 0 {
		go func() {
			if err := warmer.WarmPeriodic(ctx, cfg.WarmLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
		return
	}
	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
	}()
}
