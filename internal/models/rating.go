package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinRating is the rating filter. The zero value means "no filter".
type MinRating struct {
	value float64
	set   bool
}

// NoRating is the unset filter.
var NoRating = MinRating{}

// RatingAtLeast returns a filter keeping places rated >= v.
func RatingAtLeast(v float64) MinRating {
	return MinRating{value: v, set: true}
}

// ParseMinRating accepts "" (no filter) or a finite non-negative number.
func ParseMinRating(s string) (MinRating, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoRating, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return NoRating, fmt.Errorf("invalid rating %q", s)
	}
	return RatingAtLeast(v), nil
}

// IsSet reports whether the filter is active.
func (r MinRating) IsSet() bool { return r.set }

// Value returns the threshold; meaningless when unset.
func (r MinRating) Value() float64 { return r.value }

// Allows reports whether p passes the filter. Missing or unparseable ratings
// count as 0.
func (r MinRating) Allows(p Place) bool {
	if !r.set {
		return true
	}
	return p.RatingValue() >= r.value
}

// String returns "" when unset so it round-trips through ParseMinRating.
func (r MinRating) String() string {
	if !r.set {
		return ""
	}
	return strconv.FormatFloat(r.value, 'f', -1, 64)
}

// MarshalJSON encodes the filter as its string form.
func (r MinRating) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(r.String())), nil
}

// UnmarshalJSON accepts a string or a number.
func (r *MinRating) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*r = NoRating
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	parsed, err := ParseMinRating(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
