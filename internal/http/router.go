package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/travel-discovery-service/internal/observability"
)

// RouterConfig holds the per-route middleware settings.
type RouterConfig struct {
	// Limiter guards every API route; nil disables rate limiting.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter wires every route. /health and /metrics bypass the rate limiter;
// the session stream bypasses the request timeout.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.Handle("/sessions/{id}/stream",
		RateLimitMiddleware(cfg.Limiter)(http.HandlerFunc(h.Stream))).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/geocode", h.GetGeocode).Methods(http.MethodGet)
	api.HandleFunc("/places/{category}", h.GetPlaces).Methods(http.MethodGet)
	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)

	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/category", h.PutCategory).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/rating", h.PutRating).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/viewport", h.PostViewport).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/select", h.PostSelect).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/search", h.GetSearch).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/search/select", h.PostSearchSelect).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/search/focus", h.PostSearchFocus).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/search/dismiss", h.PostSearchDismiss).Methods(http.MethodPost)
	return router
}
