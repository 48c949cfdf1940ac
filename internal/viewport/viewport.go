// Package viewport turns raw map events into settled viewport reports.
package viewport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

// DefaultZoom is the zoom the map returns to whenever it is recentred.
const DefaultZoom = 13

// Event is a map interaction signal.
type Event string

const (
	EventReady     Event = "ready"
	EventMoveStart Event = "movestart"
	EventMove      Event = "move"
	EventMoveEnd   Event = "moveend"
	EventZoomStart Event = "zoomstart"
	EventZoomEnd   Event = "zoomend"
)

// ErrUnknownEvent is returned for event names the tracker does not know.
var ErrUnknownEvent = errors.New("unknown map event")

// ParseEvent validates an event name.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventReady, EventMoveStart, EventMove, EventMoveEnd, EventZoomStart, EventZoomEnd:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// BoundsSink receives settled viewports, normally the coordinator.
type BoundsSink interface {
	ViewportChanged(b models.Bounds) error
}

// boundsReader is implemented by sinks that can move their bounds on their
// own, as the coordinator does when a search result is selected.
type boundsReader interface {
	CurrentBounds() (models.Bounds, bool)
}

// View is where the map should be centred.
type View struct {
	Center models.Coordinates `json:"center"`
	Zoom   int                `json:"zoom"`
}

// Tracker forwards bounds only once the map has settled (ready, moveend,
// zoomend). Transient rectangles reported mid-gesture are ignored, as is a
// settled rectangle the sink already holds.
type Tracker struct {
	sink BoundsSink

	mu      sync.Mutex
	moving  bool
	zooming bool
	last    *models.Bounds
	view    View
	hasView bool
}

// NewTracker creates a tracker reporting to sink.
func NewTracker(sink BoundsSink) *Tracker {
	return &Tracker{sink: sink}
}

// Handle processes one map event. It reports whether the bounds were
// forwarded to the sink.
func (t *Tracker) Handle(ev Event, b models.Bounds) (bool, error) {
	t.mu.Lock()
	switch ev {
	case EventMoveStart:
		t.moving = true
		t.mu.Unlock()
		return false, nil
	case EventZoomStart:
		t.zooming = true
		t.mu.Unlock()
		return false, nil
	case EventMove:
		t.mu.Unlock()
		return false, nil
	case EventMoveEnd:
		t.moving = false
	case EventZoomEnd:
		t.zooming = false
	case EventReady:
		t.moving, t.zooming = false, false
	default:
		t.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
	if t.moving || t.zooming {
		t.mu.Unlock()
		return false, nil
	}
	if err := b.Validate(); err != nil {
		t.mu.Unlock()
		return false, err
	}
	last := t.last
	t.mu.Unlock()

	if r, ok := t.sink.(boundsReader); ok {
		if cur, ok := r.CurrentBounds(); ok && cur == b {
			return false, nil
		}
	} else if last != nil && *last == b {
		return false, nil
	}

	if err := t.sink.ViewportChanged(b); err != nil {
		return false, err
	}

	t.mu.Lock()
	t.last = &b
	t.mu.Unlock()
	return true, nil
}

// Recenter moves the view to c at DefaultZoom. It reports whether the centre
// actually changed.
func (t *Tracker) Recenter(c models.Coordinates) (View, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasView && t.view.Center == c {
		return t.view, false
	}
	t.view = View{Center: c, Zoom: DefaultZoom}
	t.hasView = true
	return t.view, true
}

// View returns the current centre and zoom.
func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}
