package coordinator

import (
	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

// NoSelection is the Selected value when no marker has been clicked.
const NoSelection = -1

// State is a point-in-time copy of everything the coordinator owns.
type State struct {
	Coords           models.Coordinates      `json:"coords"`
	Bounds           *models.Bounds          `json:"bounds"`
	Category         models.Category         `json:"category"`
	MinRating        models.MinRating        `json:"minRating"`
	Places           []models.Place          `json:"places"`
	FilteredPlaces   []models.Place          `json:"filteredPlaces"`
	Weather          *models.WeatherSnapshot `json:"weather"`
	IsLoading        bool                    `json:"isLoading"`
	LocationResolved bool                    `json:"locationResolved"`
	Selected         int                     `json:"selected"`
}

// Displayed is the list the views render: FilteredPlaces while a rating
// threshold is set, Places otherwise.
func (s State) Displayed() []models.Place {
	if s.MinRating.IsSet() {
		return s.FilteredPlaces
	}
	return s.Places
}

func (s State) clone() State {
	out := s
	out.Places = models.ClonePlaces(s.Places)
	out.FilteredPlaces = models.ClonePlaces(s.FilteredPlaces)
	if s.Bounds != nil {
		b := *s.Bounds
		out.Bounds = &b
	}
	return out
}

// filterByRating keeps places rated at least threshold. An unset threshold keeps nothing;
// callers fall back to the unfiltered list in that case.
func filterByRating(places []models.Place, threshold models.MinRating) []models.Place {
	if !threshold.IsSet() {
		return nil
	}
	out := make([]models.Place, 0, len(places))
	for _, p := range places {
		if threshold.Allows(p) {
			out = append(out, p)
		}
	}
	return out
}

func displayable(places []models.Place) []models.Place {
	out := make([]models.Place, 0, len(places))
	for _, p := range places {
		if p.Displayable() {
			out = append(out, p)
		}
	}
	return out
}
