package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/viewport"
)

type fakeBackend struct {
	mu          sync.Mutex
	placesCalls int
	results     []models.GeocodeResult
}

func (f *fakeBackend) FetchPlaces(ctx context.Context, category models.Category, b models.Bounds) ([]models.Place, error) {
	f.mu.Lock()
	f.placesCalls++
	f.mu.Unlock()
	return []models.Place{
		{Name: "Katz's", Latitude: models.FlexString("40.72"), Longitude: models.FlexString("-73.98"), Rating: models.FlexString("4.5")},
		{Name: "Corner Deli", Latitude: models.FlexString("40.71"), Longitude: models.FlexString("-74.01"), Rating: models.FlexString("3.5")},
	}, nil
}

func (f *fakeBackend) FetchWeather(ctx context.Context, c models.Coordinates) (*models.WeatherSnapshot, error) {
	return nil, nil
}

func (f *fakeBackend) Search(ctx context.Context, q string) []models.GeocodeResult {
	return f.results
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placesCalls
}

func newTestStore(t *testing.T, cfg Config) (*Store, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	store := NewStore(backend, backend, cfg, zaptest.NewLogger(t))
	t.Cleanup(store.Close)
	return store, backend
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatal("channel closed, want signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
}

// TestStore_CreateRunsInit verifies a new session resolves its location and
// fetches places before the page is rendered.
func TestStore_CreateRunsInit(t *testing.T) {
	// Arrange
	store, backend := newTestStore(t, Config{})
	here := models.Coordinates{Lat: 40.7306, Lng: -73.9866}

	// Act
	sess, err := store.Create(context.Background(), coordinator.FixedLocator(here))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess.Coordinator().Wait()
	page := sess.Page()

	// Assert
	if sess.ID == "" {
		t.Error("session id is empty")
	}
	if backend.calls() != 1 {
		t.Errorf("places calls = %d, want 1", backend.calls())
	}
	if page.Map.Center != here || page.Map.Zoom != viewport.DefaultZoom {
		t.Errorf("map view = %+v/%d, want %+v/%d", page.Map.Center, page.Map.Zoom, here, viewport.DefaultZoom)
	}
	if len(page.List.Cards) != 2 {
		t.Errorf("cards = %d, want 2", len(page.List.Cards))
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStore_GetAndDelete(t *testing.T) {
	store, _ := newTestStore(t, Config{})
	sess, err := store.Create(context.Background(), coordinator.DeniedLocator)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(sess.ID)
	if err != nil || got != sess {
		t.Fatalf("Get() = %v, %v; want the created session", got, err)
	}
	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if err := sess.Coordinator().SetCategory(models.CategoryHotels); !errors.Is(err, coordinator.ErrClosed) {
		t.Errorf("SetCategory on deleted session error = %v, want ErrClosed", err)
	}
}

func TestStore_MaxSessions(t *testing.T) {
	store, _ := newTestStore(t, Config{MaxSessions: 1})
	if _, err := store.Create(context.Background(), nil); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := store.Create(context.Background(), nil); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("second Create error = %v, want ErrTooManySessions", err)
	}
}

func TestStore_ClosedRejectsCreate(t *testing.T) {
	store, _ := newTestStore(t, Config{})
	store.Close()
	if _, err := store.Create(context.Background(), nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Create after Close error = %v, want ErrStoreClosed", err)
	}
}

// TestStore_Sweep verifies idle sessions expire while touched sessions and
// sessions with an open stream survive.
func TestStore_Sweep(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t, Config{IdleTimeout: time.Minute})
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	idle, _ := store.Create(context.Background(), nil)
	active, _ := store.Create(context.Background(), nil)
	streaming, _ := store.Create(context.Background(), nil)
	_, cancel := streaming.Subscribe()
	defer cancel()

	now = now.Add(50 * time.Second)
	if _, err := store.Get(active.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(30 * time.Second)

	// Act
	n := store.Sweep()

	// Assert
	if n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, err := store.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session still present: %v", err)
	}
	for _, s := range []*Session{active, streaming} {
		if _, err := store.Get(s.ID); err != nil {
			t.Errorf("session %s expired early: %v", s.ID, err)
		}
	}
}

// TestSession_SubscribeFansOutChanges verifies stream subscribers see both
// coordinator changes and search box changes.
func TestSession_SubscribeFansOutChanges(t *testing.T) {
	// Arrange
	store, backend := newTestStore(t, Config{})
	backend.results = []models.GeocodeResult{{Lat: 48.8566, Lng: 2.3522, Name: "Paris"}}
	sess, err := store.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess.Coordinator().Wait()
	ch, cancel := sess.Subscribe()
	defer cancel()

	// Act / Assert: coordinator change
	if err := sess.Coordinator().SetCategory(models.CategoryHotels); err != nil {
		t.Fatalf("SetCategory: %v", err)
	}
	waitSignal(t, ch)
	sess.Coordinator().Wait()

	// Act / Assert: search change
	sess.Search().Type(context.Background(), "Paris")
	waitSignal(t, ch)
	if got := sess.Page().Search.Results; len(got) != 1 || got[0].Name != "Paris" {
		t.Errorf("search results = %+v", got)
	}
}

// TestSession_PageRecentersOnLocationChange verifies the map follows a
// selected search result.
func TestSession_PageRecentersOnLocationChange(t *testing.T) {
	store, backend := newTestStore(t, Config{})
	paris := models.GeocodeResult{Lat: 48.8566, Lng: 2.3522, Name: "Paris"}
	backend.results = []models.GeocodeResult{paris}
	sess, _ := store.Create(context.Background(), nil)
	sess.Coordinator().Wait()
	if c := sess.Page().Map.Center; c != models.DefaultCoordinates {
		t.Fatalf("initial centre = %+v, want fallback", c)
	}

	sess.Search().Type(context.Background(), "Paris")
	if err := sess.Search().Select(0); err != nil {
		t.Fatalf("Select: %v", err)
	}
	sess.Coordinator().Wait()

	if c := sess.Page().Map.Center; c != paris.Coordinates() {
		t.Errorf("centre = %+v, want %+v", c, paris.Coordinates())
	}
}

func TestSession_HandleMapEvent(t *testing.T) {
	store, backend := newTestStore(t, Config{})
	sess, _ := store.Create(context.Background(), nil)
	sess.Coordinator().Wait()
	before := backend.calls()
	b := models.Bounds{
		NE: models.Coordinates{Lat: 40.8, Lng: -73.9},
		SW: models.Coordinates{Lat: 40.6, Lng: -74.1},
	}

	if ok, err := sess.HandleMapEvent(viewport.EventMove, b); ok || err != nil {
		t.Fatalf("move reported = %v, %v; want false, nil", ok, err)
	}
	ok, err := sess.HandleMapEvent(viewport.EventMoveEnd, b)
	if !ok || err != nil {
		t.Fatalf("moveend reported = %v, %v; want true, nil", ok, err)
	}
	sess.Coordinator().Wait()

	if backend.calls() != before+1 {
		t.Errorf("places calls = %d, want %d", backend.calls(), before+1)
	}
	if st := sess.Coordinator().State(); st.Bounds == nil || *st.Bounds != b {
		t.Errorf("bounds = %+v, want %+v", st.Bounds, b)
	}
}

// TestSession_ViewportAfterSearchSelect verifies the map's settled viewport
// replaces the padded box a search selection sets, even when the map lands
// on the rectangle it reported before the search.
func TestSession_ViewportAfterSearchSelect(t *testing.T) {
	// Arrange
	store, _ := newTestStore(t, Config{})
	sess, _ := store.Create(context.Background(), nil)
	sess.Coordinator().Wait()
	visible := models.Bounds{
		NE: models.Coordinates{Lat: 48.87, Lng: 2.39},
		SW: models.Coordinates{Lat: 48.83, Lng: 2.31},
	}
	if ok, err := sess.HandleMapEvent(viewport.EventReady, visible); !ok || err != nil {
		t.Fatalf("ready reported = %v, %v; want true, nil", ok, err)
	}
	if err := sess.Coordinator().SelectLocation(models.GeocodeResult{Name: "Paris", Lat: 48.85, Lng: 2.35}); err != nil {
		t.Fatalf("SelectLocation() error = %v", err)
	}

	// Act
	ok, err := sess.HandleMapEvent(viewport.EventMoveEnd, visible)

	// Assert
	if !ok || err != nil {
		t.Fatalf("moveend reported = %v, %v; want true, nil", ok, err)
	}
	sess.Coordinator().Wait()
	if st := sess.Coordinator().State(); st.Bounds == nil || *st.Bounds != visible {
		t.Errorf("bounds = %+v, want %+v", st.Bounds, visible)
	}
}

func TestSession_SubscribeClosedOnDelete(t *testing.T) {
	store, _ := newTestStore(t, Config{})
	sess, _ := store.Create(context.Background(), nil)
	ch, cancel := sess.Subscribe()
	defer cancel()

	_ = store.Delete(sess.ID)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed after Delete")
		}
	}
}
