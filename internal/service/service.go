package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/umahmood/haversine"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/travel-discovery-service/internal/cache"
	"github.com/kjstillabower/travel-discovery-service/internal/client"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
)

// Geocoder resolves a free-text query.
type Geocoder interface {
	Search(ctx context.Context, q string) ([]models.GeocodeResult, error)
}

// PlacesLister lists places of a category inside a rectangle.
type PlacesLister interface {
	ListInBoundary(ctx context.Context, category models.Category, b models.Bounds) ([]models.Place, error)
}

// WeatherFinder fetches the weather snapshot around a point.
type WeatherFinder interface {
	Find(ctx context.Context, c models.Coordinates) (*models.WeatherSnapshot, error)
}

// Config holds cache lifetimes. A zero TTL disables caching for that kind.
type Config struct {
	PlacesTTL  time.Duration
	WeatherTTL time.Duration
	GeocodeTTL time.Duration
}

// Cache kinds, also used as metric labels.
const (
	kindPlaces  = "places"
	kindWeather = "weather"
	kindGeocode = "geocode"
)

// DiscoveryService fronts the three upstreams with cache-aside lookups and
// request coalescing. The Fetch* methods report errors; Search, Places and
// Weather never fail and return empty or nil results instead.
type DiscoveryService struct {
	geocoder Geocoder
	places   PlacesLister
	weather  WeatherFinder
	cache    cache.Cache
	cfg      Config
	logger   *zap.Logger
	group    singleflight.Group
}

// NewDiscoveryService wires the service. A nil cache disables caching.
func NewDiscoveryService(geocoder Geocoder, places PlacesLister, weather WeatherFinder, c cache.Cache, cfg Config, logger *zap.Logger) *DiscoveryService {
	if c == nil {
		c = cache.NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoveryService{
		geocoder: geocoder,
		places:   places,
		weather:  weather,
		cache:    c,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search returns geocoding matches, or an empty slice on any failure.
func (s *DiscoveryService) Search(ctx context.Context, q string) []models.GeocodeResult {
	res, err := s.FetchSearch(ctx, q)
	if err != nil {
		s.logFailure(ctx, observability.UpstreamGeocoding, err, zap.String("query", q))
		return []models.GeocodeResult{}
	}
	return res
}

// Places returns places inside b, or an empty slice on any failure.
func (s *DiscoveryService) Places(ctx context.Context, category models.Category, b models.Bounds) []models.Place {
	res, err := s.FetchPlaces(ctx, category, b)
	if err != nil {
		s.logFailure(ctx, observability.UpstreamPlaces, err,
			zap.String("category", string(category)), zap.String("bounds", b.Key(4)))
		return []models.Place{}
	}
	return res
}

// Weather returns the snapshot around c, or nil on any failure.
func (s *DiscoveryService) Weather(ctx context.Context, c models.Coordinates) *models.WeatherSnapshot {
	snap, err := s.FetchWeather(ctx, c)
	if err != nil {
		s.logFailure(ctx, observability.UpstreamWeather, err,
			zap.Float64("lat", c.Lat), zap.Float64("lng", c.Lng))
		return nil
	}
	return snap
}

// FetchSearch is Search with the error reported. Queries shorter than
// client.MinQueryRunes return an empty slice without any lookup.
func (s *DiscoveryService) FetchSearch(ctx context.Context, q string) ([]models.GeocodeResult, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < client.MinQueryRunes {
		return []models.GeocodeResult{}, nil
	}
	key := kindGeocode + ":" + strings.ToLower(q)
	return cached(ctx, s, kindGeocode, key, s.cfg.GeocodeTTL, func(ctx context.Context) ([]models.GeocodeResult, error) {
		return s.geocoder.Search(ctx, q)
	})
}

// FetchPlaces is Places with the error reported. Entries without a distance
// get the great-circle distance in miles from the centre of b.
func (s *DiscoveryService) FetchPlaces(ctx context.Context, category models.Category, b models.Bounds) ([]models.Place, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s:%s:%s", kindPlaces, category, b.Key(4))
	places, err := cached(ctx, s, kindPlaces, key, s.cfg.PlacesTTL, func(ctx context.Context) ([]models.Place, error) {
		places, err := s.places.ListInBoundary(ctx, category, b)
		if err != nil {
			return nil, err
		}
		fillDistances(places, b.Center())
		return places, nil
	})
	if err != nil {
		return nil, err
	}
	if places == nil {
		places = []models.Place{}
	}
	return places, nil
}

// FetchWeather is Weather with the error reported. Zero coordinates return
// (nil, nil).
func (s *DiscoveryService) FetchWeather(ctx context.Context, c models.Coordinates) (*models.WeatherSnapshot, error) {
	if c.IsZero() {
		return nil, nil
	}
	key := fmt.Sprintf("%s:%.2f,%.2f", kindWeather, c.Lat, c.Lng)
	return cached(ctx, s, kindWeather, key, s.cfg.WeatherTTL, func(ctx context.Context) (*models.WeatherSnapshot, error) {
		return s.weather.Find(ctx, c)
	})
}

// cached runs a cache-aside lookup. Concurrent misses for the same key share
// one upstream call; the shared call is detached from any single caller's
// cancellation and bounded by the client timeouts instead.
func cached[T any](ctx context.Context, s *DiscoveryService, kind, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	logger := observability.LoggerFrom(ctx, s.logger)

	if ttl > 0 {
		v, ok, err := cache.GetJSON[T](ctx, s.cache, key)
		switch {
		case err != nil:
			observability.CacheLookupsTotal.WithLabelValues(kind, "error").Inc()
			logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		case ok:
			observability.CacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
			logger.Debug("cache hit", zap.String("key", key))
			return v, nil
		default:
			observability.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()
		}
	}

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		v, err := fetch(detached)
		if err != nil {
			return v, err
		}
		if ttl > 0 {
			if setErr := cache.SetJSON(detached, s.cache, key, v, ttl); setErr != nil {
				logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
			}
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			observability.RequestsCoalescedTotal.WithLabelValues(kind).Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

func fillDistances(places []models.Place, centre models.Coordinates) {
	from := haversine.Coord{Lat: centre.Lat, Lon: centre.Lng}
	for i := range places {
		if places[i].Distance != "" {
			continue
		}
		pos, ok := places[i].Position()
		if !ok {
			continue
		}
		miles, _ := haversine.Distance(from, haversine.Coord{Lat: pos.Lat, Lon: pos.Lng})
		places[i].Distance = strconv.FormatFloat(miles, 'f', 2, 64)
	}
}

func (s *DiscoveryService) logFailure(ctx context.Context, api string, err error, fields ...zap.Field) {
	category := client.CategorizeError(err)
	observability.UpstreamErrorsTotal.WithLabelValues(api, string(category)).Inc()
	logger := observability.LoggerFrom(ctx, s.logger)
	fields = append(fields, zap.String("api", api), zap.String("category", string(category)), zap.Error(err))
	if category == client.ErrorCategoryMissingCredential {
		logger.Debug("upstream unavailable", fields...)
		return
	}
	logger.Warn("upstream fetch failed", fields...)
}
