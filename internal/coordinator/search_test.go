package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

type fakeSearcher struct {
	calls int32
	fn    func(q string) []models.GeocodeResult
}

func (f *fakeSearcher) Search(ctx context.Context, q string) []models.GeocodeResult {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(q)
}

type recordingSelector struct {
	mu       sync.Mutex
	selected []models.GeocodeResult
	err      error
}

func (r *recordingSelector) SelectLocation(res models.GeocodeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = append(r.selected, res)
	return r.err
}

var parisResults = []models.GeocodeResult{
	{Name: "Paris, France", Lat: 48.85, Lng: 2.35, PlaceType: "city"},
	{Name: "Paris, Texas", Lat: 33.66, Lng: -95.55, PlaceType: "town"},
}

func TestSearchBox_ShortQueriesNeverSearch(t *testing.T) {
	s := &fakeSearcher{fn: func(string) []models.GeocodeResult { return parisResults }}
	box := NewSearchBox(s, &recordingSelector{}, nil)

	for _, q := range []string{"", "p", "pa", "ab ", "  x  "} {
		st := box.Type(context.Background(), q)
		if len(st.Results) != 0 || st.ShowResults || st.IsSearching {
			t.Errorf("Type(%q) = %+v, want cleared", q, st)
		}
	}
	if s.calls != 0 {
		t.Errorf("searcher called %d times", s.calls)
	}
}

func TestSearchBox_TypeShowsResults(t *testing.T) {
	// Arrange
	var changes int32
	s := &fakeSearcher{fn: func(string) []models.GeocodeResult { return parisResults }}
	box := NewSearchBox(s, &recordingSelector{}, func() { atomic.AddInt32(&changes, 1) })

	// Act
	st := box.Type(context.Background(), "Par")

	// Assert
	if len(st.Results) != 2 || !st.ShowResults || st.IsSearching || st.Query != "Par" {
		t.Errorf("state = %+v", st)
	}
	if atomic.LoadInt32(&changes) < 2 {
		t.Errorf("onChange ran %d times, want searching + results", changes)
	}

	// A shorter query afterwards hides and clears.
	st = box.Type(context.Background(), "Pa")
	if len(st.Results) != 0 || st.ShowResults {
		t.Errorf("after backspace state = %+v", st)
	}
}

func TestSearchBox_StaleKeystrokeDropped(t *testing.T) {
	// Arrange: "Lon" resolves after "London".
	slow := make(chan struct{})
	started := make(chan struct{})
	s := &fakeSearcher{fn: func(q string) []models.GeocodeResult {
		if q == "Lon" {
			close(started)
			<-slow
			return []models.GeocodeResult{{Name: "Long Beach", Lat: 33.77, Lng: -118.19}}
		}
		return []models.GeocodeResult{{Name: "London", Lat: 51.5, Lng: -0.12}}
	}}
	box := NewSearchBox(s, &recordingSelector{}, nil)

	// Act
	done := make(chan struct{})
	go func() {
		box.Type(context.Background(), "Lon")
		close(done)
	}()
	<-started
	box.Type(context.Background(), "London")
	close(slow)
	<-done

	// Assert
	st := box.State()
	if st.Query != "London" || len(st.Results) != 1 || st.Results[0].Name != "London" {
		t.Errorf("state = %+v, want London results", st)
	}
}

func TestSearchBox_Select(t *testing.T) {
	sel := &recordingSelector{}
	box := NewSearchBox(&fakeSearcher{fn: func(string) []models.GeocodeResult { return parisResults }}, sel, nil)
	box.Type(context.Background(), "Paris")

	if err := box.Select(1); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	st := box.State()
	if st.Query != "Paris, Texas" || st.ShowResults {
		t.Errorf("state = %+v", st)
	}
	if len(sel.selected) != 1 || sel.selected[0] != parisResults[1] {
		t.Errorf("selected = %+v", sel.selected)
	}

	box.Focus()
	if !box.State().ShowResults {
		t.Error("Focus() did not reopen non-empty results")
	}
	box.Dismiss()
	if box.State().ShowResults {
		t.Error("Dismiss() left results open")
	}
}

func TestSearchBox_SelectErrors(t *testing.T) {
	sel := &recordingSelector{err: ErrInvalidLocation}
	box := NewSearchBox(&fakeSearcher{fn: func(string) []models.GeocodeResult { return parisResults }}, sel, nil)

	if err := box.Select(0); !errors.Is(err, ErrSelectionRange) {
		t.Errorf("Select before results err = %v", err)
	}
	box.Type(context.Background(), "Paris")
	if err := box.Select(0); !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("Select err = %v, want ErrInvalidLocation", err)
	}
	if box.State().Query != "Paris" {
		t.Errorf("query changed despite failed selection")
	}
}

func TestSearchBox_DrivesCoordinator(t *testing.T) {
	f := &fakeFetcher{}
	c := newTestCoordinator(t, f)
	_ = c.Init(context.Background(), nil)
	c.Wait()
	box := NewSearchBox(&fakeSearcher{fn: func(string) []models.GeocodeResult { return parisResults }}, c, nil)

	box.Type(context.Background(), "Paris")
	if err := box.Select(0); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	c.Wait()

	if got := c.State().Coords; got != parisResults[0].Coordinates() {
		t.Errorf("Coords = %+v", got)
	}
}
