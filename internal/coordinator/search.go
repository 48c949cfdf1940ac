package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

// minSearchRunes is the shortest query that triggers a lookup.
const minSearchRunes = 3

// Searcher resolves text to places; it never fails, returning empty instead.
type Searcher interface {
	Search(ctx context.Context, q string) []models.GeocodeResult
}

// LocationSelector receives the chosen search result.
type LocationSelector interface {
	SelectLocation(res models.GeocodeResult) error
}

// SearchState is the search box as rendered.
type SearchState struct {
	Query       string                 `json:"query"`
	Results     []models.GeocodeResult `json:"results"`
	ShowResults bool                   `json:"showResults"`
	IsSearching bool                   `json:"isSearching"`
}

// SearchBox drives location autocomplete. Each keystroke bumps a generation;
// a response for an older keystroke is dropped so a slow lookup cannot
// overwrite the results of a newer one.
type SearchBox struct {
	searcher Searcher
	target   LocationSelector
	onChange func()

	mu    sync.Mutex
	gen   uint64
	state SearchState
}

// NewSearchBox creates a search box that reports selections to target.
// onChange, if set, runs after every state change.
func NewSearchBox(searcher Searcher, target LocationSelector, onChange func()) *SearchBox {
	if onChange == nil {
		onChange = func() {}
	}
	return &SearchBox{searcher: searcher, target: target, onChange: onChange}
}

// Type sets the query. Queries of three or more characters, ignoring
// surrounding whitespace, run a lookup before Type returns; shorter ones
// clear and hide the results.
func (s *SearchBox) Type(ctx context.Context, q string) SearchState {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state.Query = q
	if utf8.RuneCountInString(strings.TrimSpace(q)) < minSearchRunes {
		s.state.Results = nil
		s.state.ShowResults = false
		s.state.IsSearching = false
		st := s.snapshotLocked()
		s.mu.Unlock()
		s.onChange()
		return st
	}
	s.state.IsSearching = true
	s.mu.Unlock()
	s.onChange()

	results := s.searcher.Search(ctx, q)

	s.mu.Lock()
	if gen == s.gen {
		s.state.Results = results
		s.state.ShowResults = true
		s.state.IsSearching = false
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.onChange()
	return st
}

// Select picks result i: the coordinator moves there, the query shows the
// result's name and the list closes.
func (s *SearchBox) Select(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.state.Results) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrSelectionRange, i)
	}
	res := s.state.Results[i]
	s.mu.Unlock()

	if err := s.target.SelectLocation(res); err != nil {
		return err
	}

	s.mu.Lock()
	s.state.Query = res.Name
	s.state.ShowResults = false
	s.mu.Unlock()
	s.onChange()
	return nil
}

// Focus reopens the result list if it has entries.
func (s *SearchBox) Focus() {
	s.mu.Lock()
	if len(s.state.Results) > 0 {
		s.state.ShowResults = true
	}
	s.mu.Unlock()
	s.onChange()
}

// Dismiss hides the result list, as a click outside the box does.
func (s *SearchBox) Dismiss() {
	s.mu.Lock()
	s.state.ShowResults = false
	s.mu.Unlock()
	s.onChange()
}

// State returns a copy of the search box state.
func (s *SearchBox) State() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SearchBox) snapshotLocked() SearchState {
	st := s.state
	if s.state.Results != nil {
		st.Results = append([]models.GeocodeResult(nil), s.state.Results...)
	}
	return st
}
