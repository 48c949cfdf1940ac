// Package coordinator owns the discovery state machine: location, viewport,
// filters, fetched places and weather, and the fetch pipeline that keeps
// them consistent.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
)

var (
	ErrAlreadyInitialized = errors.New("coordinator already initialized")
	ErrClosed             = errors.New("coordinator closed")
	ErrInvalidLocation    = errors.New("location has no usable coordinates")
	ErrInvalidCategory    = errors.New("unknown category")
	ErrSelectionRange     = errors.New("selection out of range")
)

// DefaultFetchTimeout bounds every places and weather fetch.
const DefaultFetchTimeout = 15 * time.Second

// Fetcher is the data source, normally *service.DiscoveryService.
type Fetcher interface {
	FetchPlaces(ctx context.Context, category models.Category, b models.Bounds) ([]models.Place, error)
	FetchWeather(ctx context.Context, c models.Coordinates) (*models.WeatherSnapshot, error)
}

// Options configures a Coordinator. Zero values take defaults.
type Options struct {
	FetchTimeout time.Duration
	Fallback     models.Coordinates
	Pad          float64
	Logger       *zap.Logger
}

// Coordinator is safe for concurrent use. Fetches run on their own
// goroutines; each carries a generation number and a completion whose
// generation is no longer current is discarded.
type Coordinator struct {
	fetcher      Fetcher
	logger       *zap.Logger
	fetchTimeout time.Duration
	fallback     models.Coordinates
	pad          float64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	initialized bool
	closed      bool
	placesGen   uint64
	weatherGen  uint64
	subs        map[chan struct{}]struct{}
}

// New creates a Coordinator in its pre-Init state: default category, no
// rating threshold, no bounds.
func New(fetcher Fetcher, opts Options) *Coordinator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Fallback.IsZero() || !opts.Fallback.Valid() {
		opts.Fallback = models.DefaultCoordinates
	}
	if opts.Pad <= 0 {
		opts.Pad = models.DefaultPad
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		fetcher:      fetcher,
		logger:       opts.Logger,
		fetchTimeout: opts.FetchTimeout,
		fallback:     opts.Fallback,
		pad:          opts.Pad,
		ctx:          ctx,
		cancel:       cancel,
		state: State{
			Category: models.DefaultCategory,
			Selected: NoSelection,
		},
		subs: make(map[chan struct{}]struct{}),
	}
}

// Init resolves the starting location from loc, falling back to the default
// point when loc is nil, fails, or reports an unusable position. It then
// starts the first weather and places fetches. Init succeeds only once.
func (c *Coordinator) Init(ctx context.Context, loc Locator) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.mu.Unlock()

	coords := c.locate(ctx, loc)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Coords = coords
	b := models.PadBounds(coords, c.pad)
	c.state.Bounds = &b
	c.state.LocationResolved = true
	c.refreshWeatherLocked()
	c.refreshPlacesLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

func (c *Coordinator) locate(ctx context.Context, loc Locator) models.Coordinates {
	if loc == nil {
		c.logger.Info("no locator, using fallback location")
		return c.fallback
	}
	coords, err := loc.Locate(ctx)
	if err != nil {
		c.logger.Info("device location unavailable, using fallback", zap.Error(err))
		return c.fallback
	}
	if coords.IsZero() || !coords.Valid() {
		c.logger.Info("device location unusable, using fallback",
			zap.Float64("lat", coords.Lat), zap.Float64("lng", coords.Lng))
		return c.fallback
	}
	return coords
}

// SetMinRating changes the rating threshold. The displayed list is
// recomputed at once and a places fetch is started. Setting the current
// value again is a no-op.
func (c *Coordinator) SetMinRating(r models.MinRating) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if r == c.state.MinRating {
		c.mu.Unlock()
		return nil
	}
	c.state.MinRating = r
	c.recomputeLocked()
	c.refreshPlacesLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

// SetCategory switches the category and starts exactly one places fetch.
// Setting the current category again is a no-op.
func (c *Coordinator) SetCategory(cat models.Category) error {
	cat, err := models.ParseCategory(string(cat))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCategory, err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if cat == c.state.Category {
		c.mu.Unlock()
		return nil
	}
	c.state.Category = cat
	c.refreshPlacesLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

// SelectLocation moves to a search result. Places are cleared immediately so
// no markers from the old location remain while the new fetch runs.
func (c *Coordinator) SelectLocation(res models.GeocodeResult) error {
	coords := res.Coordinates()
	if coords.IsZero() || !coords.Valid() {
		return ErrInvalidLocation
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Coords = coords
	c.state.Places = []models.Place{}
	c.state.FilteredPlaces = []models.Place{}
	c.state.Selected = NoSelection
	b := models.PadBounds(coords, c.pad)
	c.state.Bounds = &b
	c.logger.Debug("location selected", zap.String("name", res.Name),
		zap.Float64("lat", coords.Lat), zap.Float64("lng", coords.Lng))
	c.refreshWeatherLocked()
	c.refreshPlacesLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

// ViewportChanged replaces the bounds with the rectangle the map settled on
// and starts a places fetch.
func (c *Coordinator) ViewportChanged(b models.Bounds) error {
	if err := b.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Bounds = &b
	c.refreshPlacesLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

// CurrentBounds returns the bounds places are fetched for, if any.
func (c *Coordinator) CurrentBounds() (models.Bounds, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Bounds == nil {
		return models.Bounds{}, false
	}
	return *c.state.Bounds, true
}

// SelectPlace records the clicked marker. i indexes the displayed list;
// NoSelection clears it.
func (c *Coordinator) SelectPlace(i int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if i != NoSelection && (i < 0 || i >= len(c.state.Displayed())) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrSelectionRange, i)
	}
	c.state.Selected = i
	c.mu.Unlock()

	c.notify()
	return nil
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Displayed returns a copy of the list the views render.
func (c *Coordinator) Displayed() []models.Place {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ClonePlaces(c.state.Displayed())
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce: a slow reader sees one pending signal, then reads
// State. The channel is closed by cancel or Close.
func (c *Coordinator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
			c.mu.Unlock()
		})
	}
}

// Wait blocks until every fetch started so far has completed.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight fetches and closes every subscription. Later
// transitions return ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Coordinator) recomputeLocked() {
	c.state.FilteredPlaces = filterByRating(c.state.Places, c.state.MinRating)
	c.state.Selected = NoSelection
}

// refreshPlacesLocked starts a places fetch for the current category and
// bounds. Nothing happens until the location is resolved.
func (c *Coordinator) refreshPlacesLocked() {
	if !c.state.LocationResolved || c.state.Bounds == nil || c.state.Coords.IsZero() {
		return
	}
	c.placesGen++
	gen := c.placesGen
	category := c.state.Category
	bounds := *c.state.Bounds
	threshold := c.state.MinRating
	c.state.IsLoading = true

	c.wg.Add(1)
	go c.fetchPlaces(gen, category, bounds, threshold)
}

func (c *Coordinator) fetchPlaces(gen uint64, category models.Category, b models.Bounds, threshold models.MinRating) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	defer cancel()
	start := time.Now()

	places, err := c.fetcher.FetchPlaces(ctx, category, b)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if gen != c.placesGen {
		c.mu.Unlock()
		observability.CoordinatorFetchesTotal.WithLabelValues("places", "stale").Inc()
		c.logger.Debug("discarding stale places response",
			zap.Uint64("generation", gen), zap.String("category", string(category)))
		return
	}
	if err != nil {
		c.state.Places = []models.Place{}
		c.state.FilteredPlaces = []models.Place{}
		observability.CoordinatorFetchesTotal.WithLabelValues("places", "error").Inc()
		c.logger.Warn("places fetch failed",
			zap.String("category", string(category)), zap.String("bounds", b.Key(4)), zap.Error(err))
	} else {
		kept := displayable(places)
		if threshold.IsSet() {
			kept = filterByRating(kept, threshold)
		}
		c.state.Places = kept
		observability.CoordinatorFetchesTotal.WithLabelValues("places", "applied").Inc()
		c.logger.Debug("places updated",
			zap.String("category", string(category)),
			zap.Int("fetched", len(places)),
			zap.Int("kept", len(kept)),
			zap.Duration("duration", time.Since(start)))
	}
	c.state.Selected = NoSelection
	c.recomputeLocked()
	c.state.IsLoading = false
	c.mu.Unlock()

	c.notify()
}

// refreshWeatherLocked starts a weather fetch for the current coordinates.
func (c *Coordinator) refreshWeatherLocked() {
	if !c.state.LocationResolved || c.state.Coords.IsZero() {
		return
	}
	c.weatherGen++
	gen := c.weatherGen
	coords := c.state.Coords

	c.wg.Add(1)
	go c.fetchWeather(gen, coords)
}

func (c *Coordinator) fetchWeather(gen uint64, coords models.Coordinates) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	defer cancel()

	snap, err := c.fetcher.FetchWeather(ctx, coords)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if gen != c.weatherGen {
		c.mu.Unlock()
		observability.CoordinatorFetchesTotal.WithLabelValues("weather", "stale").Inc()
		return
	}
	if err != nil || snap == nil {
		c.mu.Unlock()
		outcome := "empty"
		if err != nil {
			outcome = "error"
			c.logger.Debug("weather fetch failed, keeping previous snapshot", zap.Error(err))
		}
		observability.CoordinatorFetchesTotal.WithLabelValues("weather", outcome).Inc()
		return
	}
	c.state.Weather = snap
	c.mu.Unlock()
	observability.CoordinatorFetchesTotal.WithLabelValues("weather", "applied").Inc()

	c.notify()
}
