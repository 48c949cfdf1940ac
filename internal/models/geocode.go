package models

// GeocodeResult is one named coordinate returned by a text search.
type GeocodeResult struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Name       string  `json:"name"`
	LocationID string  `json:"locationId"`
	PlaceType  string  `json:"placeType"`
}

// Coordinates returns the point of the result.
func (g GeocodeResult) Coordinates() Coordinates {
	return Coordinates{Lat: g.Lat, Lng: g.Lng}
}
