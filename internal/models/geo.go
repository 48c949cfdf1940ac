package models

import (
	"errors"
	"fmt"
	"math"
)

// DefaultPad is the half-width in degrees of the box drawn around a freshly
// resolved point.
const DefaultPad = 0.1

// DefaultCoordinates is used when device geolocation is unavailable or denied.
var DefaultCoordinates = Coordinates{Lat: 40.7128, Lng: -74.006}

// ErrInvalidBounds is returned when a rectangle cannot be used for a places fetch.
var ErrInvalidBounds = errors.New("invalid bounds")

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero mirrors the "falsy coordinate" check: a zero latitude or longitude
// is treated as not yet known.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 || c.Lng == 0
}

// Valid reports whether both components are finite and inside WGS84 ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Bounds is an axis-aligned rectangle given by its north-east and south-west corners.
type Bounds struct {
	NE Coordinates `json:"ne"`
	SW Coordinates `json:"sw"`
}

// PadBounds returns the rectangle c±pad.
func PadBounds(c Coordinates, pad float64) Bounds {
	return Bounds{
		NE: Coordinates{Lat: c.Lat + pad, Lng: c.Lng + pad},
		SW: Coordinates{Lat: c.Lat - pad, Lng: c.Lng - pad},
	}
}

// Validate checks ne.lat >= sw.lat, finite corners and a non-degenerate area.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.NE.Lat, b.NE.Lng, b.SW.Lat, b.SW.Lng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite corner", ErrInvalidBounds)
		}
	}
	if b.NE.Lat < b.SW.Lat {
		return fmt.Errorf("%w: ne.lat %.6f below sw.lat %.6f", ErrInvalidBounds, b.NE.Lat, b.SW.Lat)
	}
	if b.NE.Lat == b.SW.Lat || b.NE.Lng == b.SW.Lng {
		return fmt.Errorf("%w: degenerate rectangle", ErrInvalidBounds)
	}
	return nil
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() Coordinates {
	return Coordinates{
		Lat: (b.NE.Lat + b.SW.Lat) / 2,
		Lng: (b.NE.Lng + b.SW.Lng) / 2,
	}
}

// Key renders the rectangle rounded to the given number of decimals; used
// for cache keys and metric-free identity checks.
func (b Bounds) Key(decimals int) string {
	f := fmt.Sprintf("%%.%df", decimals)
	return fmt.Sprintf(f+","+f+","+f+","+f, b.SW.Lat, b.SW.Lng, b.NE.Lat, b.NE.Lng)
}
