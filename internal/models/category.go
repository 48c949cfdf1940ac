package models

import (
	"fmt"
	"strings"
)

// Category parameterizes the places fetch.
type Category string

const (
	CategoryRestaurants Category = "restaurants"
	CategoryHotels      Category = "hotels"
	CategoryAttractions Category = "attractions"
)

// DefaultCategory is selected before the user changes the filter.
const DefaultCategory = CategoryRestaurants

// Categories lists the enumeration in display order.
var Categories = []Category{CategoryRestaurants, CategoryHotels, CategoryAttractions}

// ParseCategory accepts the enumeration case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryRestaurants, CategoryHotels, CategoryAttractions:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ContentType is the singular form attached to every normalized place.
func (c Category) ContentType() string {
	switch c {
	case CategoryRestaurants:
		return "restaurant"
	case CategoryHotels:
		return "hotel"
	default:
		return "attraction"
	}
}
