package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream labels.
const (
	UpstreamGeocoding = "geocoding"
	UpstreamPlaces    = "places"
	UpstreamWeather   = "weather"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate by api and status. Watch for: error vs success ratio per api.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Upstream errors by category (timeout, malformed_response, missing_credential, ...).
	UpstreamErrorsTotal *prometheus.CounterVec

	// Places entries dropped during normalization because coordinates were missing.
	PlacesDroppedTotal *prometheus.CounterVec

	// Cache lookups by kind (places, weather, geocode) and result (hit, miss, error).
	CacheLookupsTotal *prometheus.CounterVec

	// Upstream fetches that joined an identical in-flight request instead of calling out.
	RequestsCoalescedTotal *prometheus.CounterVec

	// Coordinator fetches by kind and outcome (applied, stale, error).
	CoordinatorFetchesTotal *prometheus.CounterVec

	// Live sessions.
	SessionsActive prometheus.Gauge

	// Sessions removed by idle expiry.
	SessionsExpiredTotal prometheus.Counter

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per upstream: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream API calls",
		},
		[]string{"api", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for upstream calls",
		},
		[]string{"api"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Upstream failures converted to empty results, by category",
		},
		[]string{"api", "category"},
	)
	PlacesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placesDroppedTotal",
			Help: "Places entries dropped during normalization",
		},
		[]string{"category", "reason"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)
	RequestsCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestsCoalescedTotal",
			Help: "Fetches that shared an in-flight upstream request",
		},
		[]string{"kind"},
	)
	CoordinatorFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinatorFetchesTotal",
			Help: "Coordinator fetch completions by kind and outcome (applied, stale, error)",
		},
		[]string{"kind", "outcome"},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionsActive",
			Help: "Number of live discovery sessions",
		},
	)
	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionsExpiredTotal",
			Help: "Sessions removed after the idle timeout",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
		},
		[]string{"api"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"api", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal, UpstreamErrorsTotal,
		PlacesDroppedTotal, CacheLookupsTotal, RequestsCoalescedTotal, CoordinatorFetchesTotal,
		SessionsActive, SessionsExpiredTotal, RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RecordCircuitBreakerTransition counts a breaker transition and updates the state gauge.
func RecordCircuitBreakerTransition(api, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(api, from, to).Inc()
	CircuitBreakerState.WithLabelValues(api).Set(float64(toValue))
}

// StatusLabel maps an HTTP status code to the upstream status label.
func StatusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
