package models

// PlaceholderImageURL is shown when a place carries no photo.
const PlaceholderImageURL = "https://via.placeholder.com/400x300?text=No+Image"

// Place is the normalized record produced by every places fetch.
type Place struct {
	Name        string    `json:"name"`
	Latitude    FlexFloat `json:"latitude"`
	Longitude   FlexFloat `json:"longitude"`
	Rating      FlexFloat `json:"rating,omitempty"`
	NumReviews  int       `json:"num_reviews"`
	PriceLevel  int       `json:"price_level,omitempty"`
	Ranking     string    `json:"ranking,omitempty"`
	Photo       *Photo    `json:"photo,omitempty"`
	Cuisine     []Cuisine `json:"cuisine,omitempty"`
	Awards      []Award   `json:"awards,omitempty"`
	Address     string    `json:"address,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	WebURL      string    `json:"web_url,omitempty"`
	Website     string    `json:"website,omitempty"`
	ContentID   string    `json:"contentId,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Distance    string    `json:"distance,omitempty"`
}

// Photo holds the image variants; only the URLs are consumed.
type Photo struct {
	Images PhotoImages `json:"images"`
}

// PhotoImages lists the size variants in preference order.
type PhotoImages struct {
	Large  *ImageRef `json:"large,omitempty"`
	Medium *ImageRef `json:"medium,omitempty"`
	Small  *ImageRef `json:"small,omitempty"`
}

// ImageRef is a single image URL.
type ImageRef struct {
	URL string `json:"url"`
}

// Cuisine is a restaurant cuisine tag.
type Cuisine struct {
	Name string `json:"name"`
}

// Award is a badge attached to a place.
type Award struct {
	DisplayName string `json:"display_name"`
	Images      struct {
		Small string `json:"small"`
	} `json:"images"`
}

// BestURL returns the first present of large, medium, small, else the placeholder.
func (p *Photo) BestURL() string {
	if p == nil {
		return PlaceholderImageURL
	}
	for _, ref := range []*ImageRef{p.Images.Large, p.Images.Medium, p.Images.Small} {
		if ref != nil && ref.URL != "" {
			return ref.URL
		}
	}
	return PlaceholderImageURL
}

// RatingValue coerces the rating, treating missing or unparseable as 0.
func (p Place) RatingValue() float64 {
	v, ok := p.Rating.Float()
	if !ok {
		return 0
	}
	return v
}

// Position returns the parsed coordinates; ok is false if either is not finite.
func (p Place) Position() (Coordinates, bool) {
	lat, ok := p.Latitude.Float()
	if !ok {
		return Coordinates{}, false
	}
	lng, ok := p.Longitude.Float()
	if !ok {
		return Coordinates{}, false
	}
	return Coordinates{Lat: lat, Lng: lng}, true
}

// Displayable reports whether the place has a name and coordinates that can
// be shown on the map.
func (p Place) Displayable() bool {
	if p.Name == "" || !p.Latitude.Truthy() || !p.Longitude.Truthy() {
		return false
	}
	_, ok := p.Position()
	return ok
}

// ClonePlaces copies the slice header and element values. Nested slices are
// shared; places are never mutated after normalization.
func ClonePlaces(in []Place) []Place {
	if in == nil {
		return nil
	}
	out := make([]Place, len(in))
	copy(out, in)
	return out
}
