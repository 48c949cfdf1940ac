// Package validation parses and checks request inputs before they reach the
// service or a session.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

var (
	// ErrQueryEmpty is returned when the search text is empty after trim.
	ErrQueryEmpty = errors.New("query is required")
	// ErrQueryTooLong is returned when the search text exceeds the maximum length.
	ErrQueryTooLong = errors.New("query too long")
	// ErrQueryInvalidChars is returned for control characters in the search text.
	ErrQueryInvalidChars = errors.New("query contains invalid characters")

	ErrCoordinateMissing = errors.New("coordinate is required")
	ErrCoordinateInvalid = errors.New("coordinate is not a valid number")
	ErrCoordinateRange   = errors.New("coordinate out of range")
	ErrIndexInvalid      = errors.New("index must be an integer")
)

// ValidateQuery trims the input and enforces maxLen runes (0 disables the
// check). Unlike the search box, short queries are accepted: the client
// decides whether they warrant a lookup.
func ValidateQuery(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrQueryEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if unicode.IsControl(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// ParseFloat parses one named coordinate component.
func ParseFloat(name, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", ErrCoordinateMissing, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrCoordinateInvalid, name, raw)
	}
	return v, nil
}

// ParseCoordinates parses a lat/lng pair and checks WGS84 ranges.
func ParseCoordinates(lat, lng string) (models.Coordinates, error) {
	la, err := ParseFloat("lat", lat)
	if err != nil {
		return models.Coordinates{}, err
	}
	ln, err := ParseFloat("lng", lng)
	if err != nil {
		return models.Coordinates{}, err
	}
	return CheckCoordinates(models.Coordinates{Lat: la, Lng: ln})
}

// CheckCoordinates returns c unchanged when it is inside WGS84 ranges.
func CheckCoordinates(c models.Coordinates) (models.Coordinates, error) {
	if !c.Valid() {
		return models.Coordinates{}, fmt.Errorf("%w: %.6f,%.6f", ErrCoordinateRange, c.Lat, c.Lng)
	}
	return c, nil
}

// ParseBounds parses the four corner components of a rectangle.
func ParseBounds(neLat, neLng, swLat, swLng string) (models.Bounds, error) {
	var vals [4]float64
	for i, f := range []struct{ name, raw string }{
		{"ne_lat", neLat}, {"ne_lng", neLng}, {"sw_lat", swLat}, {"sw_lng", swLng},
	} {
		v, err := ParseFloat(f.name, f.raw)
		if err != nil {
			return models.Bounds{}, err
		}
		vals[i] = v
	}
	b := models.Bounds{
		NE: models.Coordinates{Lat: vals[0], Lng: vals[1]},
		SW: models.Coordinates{Lat: vals[2], Lng: vals[3]},
	}
	return CheckBounds(b)
}

// CheckBounds validates the rectangle and both corners.
func CheckBounds(b models.Bounds) (models.Bounds, error) {
	if !b.NE.Valid() || !b.SW.Valid() {
		return models.Bounds{}, fmt.Errorf("%w: corner out of range", models.ErrInvalidBounds)
	}
	if err := b.Validate(); err != nil {
		return models.Bounds{}, err
	}
	return b, nil
}

// ParseIndex parses a list or marker index. Negative values are passed
// through so callers can map them to "no selection".
func ParseIndex(raw string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrIndexInvalid, raw)
	}
	return i, nil
}
