package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/travel-discovery-service/internal/circuitbreaker"
	"github.com/kjstillabower/travel-discovery-service/internal/degraded"
	"github.com/kjstillabower/travel-discovery-service/internal/lifecycle"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
	"github.com/kjstillabower/travel-discovery-service/internal/session"
	"github.com/kjstillabower/travel-discovery-service/internal/validation"
)

const defaultMaxQueryLength = 200

// Discovery is the stateless lookup surface, normally *service.DiscoveryService.
// None of the methods fail: upstream trouble yields empty results.
type Discovery interface {
	Search(ctx context.Context, q string) []models.GeocodeResult
	Places(ctx context.Context, category models.Category, b models.Bounds) []models.Place
	Weather(ctx context.Context, c models.Coordinates) *models.WeatherSnapshot
}

// BreakerState reports a circuit breaker's state.
type BreakerState interface {
	State() circuitbreaker.State
}

// HealthConfig holds what the health handler inspects.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Breakers maps upstream name to its breaker when breakers are enabled.
	Breakers map[string]BreakerState
	// Unconfigured lists upstreams running without an API key.
	Unconfigured []string
	// CachePing, when set, checks cache reachability.
	CachePing func(ctx context.Context) error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	discovery      Discovery
	sessions       *session.Store
	healthConfig   *HealthConfig
	logger         *zap.Logger
	maxQueryLength int

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxQueryLength <= 0 takes the default.
func NewHandler(discovery Discovery, sessions *session.Store, healthConfig *HealthConfig, logger *zap.Logger, maxQueryLength int) *Handler {
	if maxQueryLength <= 0 {
		maxQueryLength = defaultMaxQueryLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		discovery:      discovery,
		sessions:       sessions,
		healthConfig:   healthConfig,
		logger:         logger,
		maxQueryLength: maxQueryLength,
	}
}

// GetGeocode handles GET /geocode?q=.
func (h *Handler) GetGeocode(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateQuery(r.URL.Query().Get("q"), h.maxQueryLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.discovery.Search(r.Context(), q)))
}

// GetPlaces handles GET /places/{category}?ne_lat&ne_lng&sw_lat&sw_lng.
func (h *Handler) GetPlaces(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CATEGORY", err.Error())
		return
	}
	q := r.URL.Query()
	b, err := validation.ParseBounds(q.Get("ne_lat"), q.Get("ne_lng"), q.Get("sw_lat"), q.Get("sw_lng"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BOUNDS", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.discovery.Places(r.Context(), category, b)))
}

// GetWeather handles GET /weather?lat&lng. No snapshot is 204.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := validation.ParseCoordinates(q.Get("lat"), q.Get("lng"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	snap := h.discovery.Weather(r.Context(), c)
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "travel-discovery-service",
		"version":   version,
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Len()
	}
	if up := lifecycle.Uptime(time.Now()); up > 0 {
		resp["uptimeSeconds"] = int64(up.Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in order: shutting-down, then each upstream
// (open breaker or error rate at or above the threshold makes it unhealthy).
// Any unhealthy upstream marks the service degraded. Unconfigured upstreams
// and the cache are reported but do not change the status.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := make(map[string]string)
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}
	cfg := h.healthConfig

	unconfigured := make(map[string]bool, len(cfg.Unconfigured))
	for _, api := range cfg.Unconfigured {
		unconfigured[api] = true
	}
	apis := []string{observability.UpstreamGeocoding, observability.UpstreamPlaces, observability.UpstreamWeather}

	var degradedAPIs []string
	for _, api := range apis {
		if unconfigured[api] {
			checks[api] = "unconfigured"
			continue
		}
		if !upstreamHealthy(cfg, api) {
			checks[api] = "unhealthy"
			degradedAPIs = append(degradedAPIs, api)
			continue
		}
		checks[api] = "healthy"
	}

	if cfg.CachePing != nil {
		if err := cfg.CachePing(ctx); err != nil {
			checks["cache"] = "unhealthy"
		} else {
			checks["cache"] = "healthy"
		}
	}

	if len(degradedAPIs) > 0 {
		sort.Strings(degradedAPIs)
		return healthResult{"degraded", http.StatusServiceUnavailable, "upstream_unhealthy:" + degradedAPIs[0], checks}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

func upstreamHealthy(cfg *HealthConfig, api string) bool {
	if cb := cfg.Breakers[api]; cb != nil && cb.State() == circuitbreaker.StateOpen {
		return false
	}
	exceeded, _ := degraded.Exceeded(api, cfg.DegradedWindow, cfg.DegradedErrorPct)
	return !exceeded
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
