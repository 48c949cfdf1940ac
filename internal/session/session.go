// Package session keeps one discovery state machine per browser tab. A
// session bundles a Coordinator, its search box and the map viewport, and
// fans every change out to stream subscribers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/view"
	"github.com/kjstillabower/travel-discovery-service/internal/viewport"
)

// Session is safe for concurrent use.
type Session struct {
	ID      string
	Created time.Time

	coord   *coordinator.Coordinator
	search  *coordinator.SearchBox
	tracker *viewport.Tracker

	stopCoord func()
	done      chan struct{}

	mu       sync.Mutex
	lastSeen time.Time
	subs     map[chan struct{}]struct{}
	closed   bool
}

func newSession(id string, now time.Time, coord *coordinator.Coordinator, searcher coordinator.Searcher) *Session {
	s := &Session{
		ID:       id,
		Created:  now,
		coord:    coord,
		tracker:  viewport.NewTracker(coord),
		done:     make(chan struct{}),
		lastSeen: now,
		subs:     make(map[chan struct{}]struct{}),
	}
	s.search = coordinator.NewSearchBox(searcher, coord, s.broadcast)

	changes, stop := coord.Subscribe()
	s.stopCoord = stop
	go func() {
		defer close(s.done)
		for range changes {
			s.broadcast()
		}
	}()
	return s
}

// Coordinator returns the session's state machine.
func (s *Session) Coordinator() *coordinator.Coordinator { return s.coord }

// Search returns the session's location-search box.
func (s *Session) Search() *coordinator.SearchBox { return s.search }

// Viewport returns the session's map tracker.
func (s *Session) Viewport() *viewport.Tracker { return s.tracker }

// Page renders the session. The map is recentred whenever the coordinator's
// coordinates have moved since the last render.
func (s *Session) Page() view.Page {
	st := s.coord.State()
	v := s.tracker.View()
	if st.LocationResolved && !st.Coords.IsZero() {
		v, _ = s.tracker.Recenter(st.Coords)
	}
	return view.NewPage(st, s.search.State(), v)
}

// HandleMapEvent passes a map event to the viewport tracker.
func (s *Session) HandleMapEvent(ev viewport.Event, b models.Bounds) (bool, error) {
	return s.tracker.Handle(ev, b)
}

// Subscribe returns a channel signalled after any change to the coordinator
// or the search box. Signals coalesce. cancel releases the subscription; the
// channel is also closed when the session is closed.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// LastSeen returns when the session was last touched.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
	s.mu.Unlock()
}

// subscribers reports the number of open streams; a session with an open
// stream is never idle.
func (s *Session) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()

	s.stopCoord()
	s.coord.Close()
	<-s.done
}

// Init resolves the session's starting location.
func (s *Session) Init(ctx context.Context, loc coordinator.Locator) error {
	return s.coord.Init(ctx, loc)
}
