package view

import (
	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

// Fixed list copy.
const (
	ListTitle      = "Discover Amazing Places"
	LoadingText    = "Exploring places..."
	EmptyTitle     = "No places found"
	EmptyHint      = "Try adjusting your filters or search in a different area"
	fallbackLabel  = "places"
	allRatingsText = "⭐ All Ratings"
)

// Option is one entry of a select control.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// EmptyState is shown instead of cards when nothing is displayed.
type EmptyState struct {
	Title string `json:"title"`
	Hint  string `json:"hint"`
}

// List is the side panel: filter controls plus one card per displayed place.
type List struct {
	Title      string      `json:"title"`
	Subtitle   string      `json:"subtitle"`
	Loading    bool        `json:"loading"`
	Categories []Option    `json:"categories"`
	Ratings    []Option    `json:"ratings"`
	Cards      []Card      `json:"cards"`
	Empty      *EmptyState `json:"empty,omitempty"`
}

type labelled struct {
	value string
	label string
}

var categoryOptions = []labelled{
	{string(models.CategoryRestaurants), "🍽️ Restaurants"},
	{string(models.CategoryHotels), "🏨 Hotels"},
	{string(models.CategoryAttractions), "🎯 Attractions"},
}

var categoryNames = map[models.Category]string{
	models.CategoryRestaurants: "Restaurants",
	models.CategoryHotels:      "Hotels",
	models.CategoryAttractions: "Attractions",
}

var ratingOptions = []labelled{
	{"", allRatingsText},
	{"3", "⭐ 3.0+"},
	{"4", "⭐ 4.0+"},
	{"4.5", "⭐ 4.5+"},
}

// NewList renders the side panel for st.
func NewList(st coordinator.State) List {
	name, ok := categoryNames[st.Category]
	if !ok {
		name = fallbackLabel
	}
	l := List{
		Title:    ListTitle,
		Subtitle: "Find the best " + name + " around you",
		Loading:  st.IsLoading,
		Cards:    []Card{},
	}

	for _, o := range categoryOptions {
		l.Categories = append(l.Categories, Option{Value: o.value, Label: o.label, Selected: o.value == string(st.Category)})
	}
	current := st.MinRating.String()
	for _, o := range ratingOptions {
		l.Ratings = append(l.Ratings, Option{Value: o.value, Label: o.label, Selected: o.value == current})
	}

	if st.IsLoading {
		return l
	}
	for i, p := range st.Displayed() {
		l.Cards = append(l.Cards, NewCard(p, i, i == st.Selected))
	}
	if len(l.Cards) == 0 {
		l.Empty = &EmptyState{Title: EmptyTitle, Hint: EmptyHint}
	}
	return l
}
