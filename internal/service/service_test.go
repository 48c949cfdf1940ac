package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/travel-discovery-service/internal/cache"
	"github.com/kjstillabower/travel-discovery-service/internal/client"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

type fakeGeocoder struct {
	calls   int32
	results []models.GeocodeResult
	err     error
}

func (f *fakeGeocoder) Search(ctx context.Context, q string) ([]models.GeocodeResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.results, f.err
}

type fakePlaces struct {
	calls   int32
	places  []models.Place
	err     error
	release chan struct{}
}

func (f *fakePlaces) ListInBoundary(ctx context.Context, category models.Category, b models.Bounds) ([]models.Place, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	return models.ClonePlaces(f.places), f.err
}

type fakeWeather struct {
	calls int32
	snap  *models.WeatherSnapshot
	err   error
}

func (f *fakeWeather) Find(ctx context.Context, c models.Coordinates) (*models.WeatherSnapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.snap, f.err
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache get: connection refused")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache set: connection refused")
}

var (
	nyc       = models.Coordinates{Lat: 40.7128, Lng: -74.006}
	nycBounds = models.PadBounds(nyc, models.DefaultPad)
	ttls      = Config{PlacesTTL: time.Minute, WeatherTTL: time.Minute, GeocodeTTL: time.Minute}
)

func newTestService(g Geocoder, p PlacesLister, w WeatherFinder, c cache.Cache) *DiscoveryService {
	return NewDiscoveryService(g, p, w, c, ttls, zap.NewNop())
}

func TestPlaces_CacheAside(t *testing.T) {
	// Arrange
	places := &fakePlaces{places: []models.Place{{Name: "Cafe", Latitude: models.FlexString("40.72"), Longitude: models.FlexString("-74.0")}}}
	svc := newTestService(&fakeGeocoder{}, places, &fakeWeather{}, cache.NewInMemoryCache())
	ctx := context.Background()

	// Act
	first := svc.Places(ctx, models.CategoryRestaurants, nycBounds)
	second := svc.Places(ctx, models.CategoryRestaurants, nycBounds)

	// Assert
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d places, want 1 each", len(first), len(second))
	}
	if n := atomic.LoadInt32(&places.calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if lat := second[0].Latitude.String(); lat != "40.72" {
		t.Errorf("cached latitude = %q, want original string form", lat)
	}
}

func TestPlaces_CacheKeyedByCategory(t *testing.T) {
	places := &fakePlaces{}
	svc := newTestService(&fakeGeocoder{}, places, &fakeWeather{}, cache.NewInMemoryCache())
	ctx := context.Background()

	svc.Places(ctx, models.CategoryRestaurants, nycBounds)
	svc.Places(ctx, models.CategoryHotels, nycBounds)

	if n := atomic.LoadInt32(&places.calls); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
}

func TestPlaces_FillsDistance(t *testing.T) {
	places := &fakePlaces{places: []models.Place{
		{Name: "Centre", Latitude: models.FlexNumber(nyc.Lat), Longitude: models.FlexNumber(nyc.Lng)},
		{Name: "Given", Latitude: models.FlexNumber(40.8), Longitude: models.FlexNumber(-74), Distance: "9.9"},
	}}
	svc := newTestService(&fakeGeocoder{}, places, &fakeWeather{}, nil)

	got := svc.Places(context.Background(), models.CategoryRestaurants, nycBounds)

	if got[0].Distance != "0.00" {
		t.Errorf("centre distance = %q, want 0.00", got[0].Distance)
	}
	if got[1].Distance != "9.9" {
		t.Errorf("upstream distance overwritten: %q", got[1].Distance)
	}
}

func TestPlaces_ErrorDegradesToEmpty(t *testing.T) {
	// Arrange
	core, logs := observer.New(zapcore.WarnLevel)
	places := &fakePlaces{err: client.ErrUpstreamFailure}
	svc := NewDiscoveryService(&fakeGeocoder{}, places, &fakeWeather{}, nil, ttls, zap.New(core))

	// Act
	got := svc.Places(context.Background(), models.CategoryRestaurants, nycBounds)

	// Assert
	if got == nil || len(got) != 0 {
		t.Errorf("Places() = %#v, want empty non-nil slice", got)
	}
	if logs.FilterMessage("upstream fetch failed").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
}

func TestPlaces_MissingCredentialLoggedAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewDiscoveryService(&fakeGeocoder{}, &fakePlaces{err: client.ErrMissingCredential}, &fakeWeather{}, nil, ttls, zap.New(core))

	svc.Places(context.Background(), models.CategoryRestaurants, nycBounds)

	if logs.Len() != 0 {
		t.Errorf("missing credential should not warn, got %v", logs.All())
	}
}

func TestFetchPlaces_InvalidBounds(t *testing.T) {
	places := &fakePlaces{}
	svc := newTestService(&fakeGeocoder{}, places, &fakeWeather{}, nil)
	bad := models.Bounds{NE: models.Coordinates{Lat: 1, Lng: 1}, SW: models.Coordinates{Lat: 2, Lng: 0}}

	_, err := svc.FetchPlaces(context.Background(), models.CategoryRestaurants, bad)
	if !errors.Is(err, models.ErrInvalidBounds) {
		t.Errorf("err = %v, want ErrInvalidBounds", err)
	}
	if places.calls != 0 {
		t.Error("upstream called for invalid bounds")
	}
}

func TestFetchPlaces_CoalescesConcurrentMisses(t *testing.T) {
	// Arrange
	places := &fakePlaces{release: make(chan struct{})}
	svc := newTestService(&fakeGeocoder{}, places, &fakeWeather{}, cache.NewInMemoryCache())
	var wg sync.WaitGroup

	// Act
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.FetchPlaces(context.Background(), models.CategoryHotels, nycBounds)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(places.release)
	wg.Wait()

	// Assert
	if n := atomic.LoadInt32(&places.calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestFetchPlaces_CallerCancellation(t *testing.T) {
	places := &fakePlaces{release: make(chan struct{})}
	svc := newTestService(&fakeGeocoder{}, places, &fakeWeather{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.FetchPlaces(ctx, models.CategoryHotels, nycBounds)
	close(places.release)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPlaces_CacheErrorsFallThrough(t *testing.T) {
	places := &fakePlaces{places: []models.Place{{Name: "A"}}}
	svc := newTestService(&fakeGeocoder{}, places, &fakeWeather{}, failingCache{})

	got := svc.Places(context.Background(), models.CategoryRestaurants, nycBounds)
	if len(got) != 1 {
		t.Errorf("Places() = %v, want upstream result despite cache errors", got)
	}
}

func TestWeather(t *testing.T) {
	snap := &models.WeatherSnapshot{List: []models.WeatherEntry{{Main: &models.WeatherMain{Temp: 290}}}}
	tests := []struct {
		name      string
		coords    models.Coordinates
		finder    *fakeWeather
		wantNil   bool
		wantCalls int32
	}{
		{"success", nyc, &fakeWeather{snap: snap}, false, 1},
		{"zero coordinates", models.Coordinates{Lat: 0, Lng: -74}, &fakeWeather{snap: snap}, true, 0},
		{"missing credential", nyc, &fakeWeather{err: client.ErrMissingCredential}, true, 1},
		{"upstream failure", nyc, &fakeWeather{err: client.ErrUpstreamFailure}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeGeocoder{}, &fakePlaces{}, tt.finder, nil)
			got := svc.Weather(context.Background(), tt.coords)
			if (got == nil) != tt.wantNil {
				t.Errorf("Weather() = %v, wantNil %v", got, tt.wantNil)
			}
			if tt.finder.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", tt.finder.calls, tt.wantCalls)
			}
		})
	}
}

func TestWeather_CacheKeyRoundsCoordinates(t *testing.T) {
	finder := &fakeWeather{snap: &models.WeatherSnapshot{}}
	svc := newTestService(&fakeGeocoder{}, &fakePlaces{}, finder, cache.NewInMemoryCache())
	ctx := context.Background()

	svc.Weather(ctx, models.Coordinates{Lat: 40.7128, Lng: -74.006})
	svc.Weather(ctx, models.Coordinates{Lat: 40.7131, Lng: -74.0059})

	if finder.calls != 1 {
		t.Errorf("calls = %d, want 1 for coordinates equal to two decimals", finder.calls)
	}
}

func TestSearch(t *testing.T) {
	geo := &fakeGeocoder{results: []models.GeocodeResult{{Name: "Paris", Lat: 48.85, Lng: 2.35}}}
	svc := newTestService(geo, &fakePlaces{}, &fakeWeather{}, cache.NewInMemoryCache())
	ctx := context.Background()

	if got := svc.Search(ctx, "pa"); len(got) != 0 {
		t.Errorf("short query returned %v", got)
	}
	if got := svc.Search(ctx, "Paris"); len(got) != 1 {
		t.Errorf("Search() = %v", got)
	}
	svc.Search(ctx, " paris ")
	if geo.calls != 1 {
		t.Errorf("calls = %d, want 1 (short query skipped, repeat cached)", geo.calls)
	}

	failing := newTestService(&fakeGeocoder{err: client.ErrRateLimited}, &fakePlaces{}, &fakeWeather{}, nil)
	if got := failing.Search(ctx, "London"); got == nil || len(got) != 0 {
		t.Errorf("failed Search() = %#v, want empty slice", got)
	}
}
