package viewport

import (
	"errors"
	"testing"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

type recordingSink struct {
	reports []models.Bounds
	err     error
}

func (r *recordingSink) ViewportChanged(b models.Bounds) error {
	if r.err != nil {
		return r.err
	}
	r.reports = append(r.reports, b)
	return nil
}

func box(lat, lng, size float64) models.Bounds {
	return models.Bounds{
		NE: models.Coordinates{Lat: lat + size, Lng: lng + size},
		SW: models.Coordinates{Lat: lat - size, Lng: lng - size},
	}
}

func TestTracker_ReportsOnlySettledBounds(t *testing.T) {
	// Arrange
	sink := &recordingSink{}
	tr := NewTracker(sink)
	a, b, c := box(40, -74, 0.1), box(40.01, -74, 0.1), box(40.02, -74, 0.1)

	// Act
	steps := []struct {
		ev   Event
		b    models.Bounds
		want bool
	}{
		{EventReady, a, true},
		{EventMoveStart, a, false},
		{EventMove, b, false},
		{EventMove, c, false},
		{EventMoveEnd, c, true},
		{EventZoomStart, c, false},
		{EventZoomEnd, b, true},
	}
	for i, s := range steps {
		got, err := tr.Handle(s.ev, s.b)
		if err != nil {
			t.Fatalf("step %d: Handle(%s) error = %v", i, s.ev, err)
		}
		if got != s.want {
			t.Errorf("step %d: Handle(%s) reported = %v, want %v", i, s.ev, got, s.want)
		}
	}

	// Assert
	if len(sink.reports) != 3 {
		t.Fatalf("reports = %d, want 3", len(sink.reports))
	}
	if sink.reports[1] != c || sink.reports[2] != b {
		t.Errorf("reports = %+v", sink.reports)
	}
}

func TestTracker_ZoomDuringPanWaitsForBoth(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink)
	a := box(10, 10, 0.5)

	_, _ = tr.Handle(EventMoveStart, a)
	_, _ = tr.Handle(EventZoomStart, a)
	if ok, _ := tr.Handle(EventZoomEnd, a); ok {
		t.Error("reported while pan still in progress")
	}
	if ok, _ := tr.Handle(EventMoveEnd, a); !ok {
		t.Error("not reported once both gestures ended")
	}
}

func TestTracker_SuppressesIdenticalReports(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink)
	a := box(1, 1, 0.1)

	_, _ = tr.Handle(EventReady, a)
	if ok, _ := tr.Handle(EventMoveEnd, a); ok {
		t.Error("identical bounds reported twice")
	}
	if len(sink.reports) != 1 {
		t.Errorf("reports = %d, want 1", len(sink.reports))
	}
}

// holdingSink keeps its own bounds, which can change behind the tracker's back.
type holdingSink struct {
	recordingSink
	current *models.Bounds
}

func (h *holdingSink) ViewportChanged(b models.Bounds) error {
	h.current = &b
	return h.recordingSink.ViewportChanged(b)
}

func (h *holdingSink) CurrentBounds() (models.Bounds, bool) {
	if h.current == nil {
		return models.Bounds{}, false
	}
	return *h.current, true
}

func TestTracker_ReportsWhenSinkMovedElsewhere(t *testing.T) {
	// Arrange
	sink := &holdingSink{}
	tr := NewTracker(sink)
	a := box(48.85, 2.35, 0.02)
	_, _ = tr.Handle(EventReady, a)
	padded := box(48.85, 2.35, 0.1)
	sink.current = &padded

	// Act
	ok, err := tr.Handle(EventMoveEnd, a)

	// Assert
	if !ok || err != nil {
		t.Fatalf("Handle(moveend) = %v, %v; want reported", ok, err)
	}
	if len(sink.reports) != 2 || *sink.current != a {
		t.Errorf("reports = %d, current = %+v", len(sink.reports), sink.current)
	}
	if ok, _ := tr.Handle(EventZoomEnd, a); ok {
		t.Error("bounds the sink already holds were reported again")
	}
}

func TestTracker_Errors(t *testing.T) {
	tr := NewTracker(&recordingSink{})
	if _, err := tr.Handle("drag", box(1, 1, 1)); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown event err = %v", err)
	}
	inverted := models.Bounds{NE: models.Coordinates{Lat: 0, Lng: 1}, SW: models.Coordinates{Lat: 1, Lng: 0}}
	if _, err := tr.Handle(EventReady, inverted); !errors.Is(err, models.ErrInvalidBounds) {
		t.Errorf("invalid bounds err = %v", err)
	}

	sinkErr := errors.New("closed")
	failing := NewTracker(&recordingSink{err: sinkErr})
	a := box(1, 1, 0.1)
	if _, err := failing.Handle(EventReady, a); !errors.Is(err, sinkErr) {
		t.Errorf("sink err = %v", err)
	}
}

func TestTracker_Recenter(t *testing.T) {
	tr := NewTracker(&recordingSink{})
	nyc := models.DefaultCoordinates

	v, changed := tr.Recenter(nyc)
	if !changed || v.Center != nyc || v.Zoom != DefaultZoom {
		t.Errorf("Recenter() = %+v, %v", v, changed)
	}
	if _, changed := tr.Recenter(nyc); changed {
		t.Error("Recenter() to the same point reported a change")
	}
	if tr.View().Zoom != 13 {
		t.Errorf("zoom = %d", tr.View().Zoom)
	}
}

func TestParseEvent(t *testing.T) {
	if e, err := ParseEvent("moveend"); err != nil || e != EventMoveEnd {
		t.Errorf("ParseEvent(moveend) = %v, %v", e, err)
	}
	if _, err := ParseEvent("click"); err == nil {
		t.Error("ParseEvent(click) expected error")
	}
}
