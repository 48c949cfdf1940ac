package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexFloat holds a JSON value the upstream sends either as a number or as a
// numeric string. The original form is kept so it round-trips unchanged.
type FlexFloat struct {
	raw      string
	isString bool
	present  bool
}

// FlexNumber builds a numeric FlexFloat.
func FlexNumber(v float64) FlexFloat {
	return FlexFloat{raw: strconv.FormatFloat(v, 'f', -1, 64), present: true}
}

// FlexString builds a string FlexFloat.
func FlexString(s string) FlexFloat {
	return FlexFloat{raw: s, isString: true, present: true}
}

// Present reports whether the field was supplied and not null.
func (f FlexFloat) Present() bool { return f.present }

// Float parses the value. ok is false when absent, unparseable or non-finite.
func (f FlexFloat) Float() (float64, bool) {
	if !f.present {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(f.raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Truthy follows the upstream's loose presence check: a non-empty string or
// a non-zero number.
func (f FlexFloat) Truthy() bool {
	if !f.present {
		return false
	}
	if f.isString {
		return f.raw != ""
	}
	v, ok := f.Float()
	return ok && v != 0
}

// String returns the raw text.
func (f FlexFloat) String() string { return f.raw }

// MarshalJSON writes the value back in its original form.
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.present {
		return []byte("null"), nil
	}
	if f.isString {
		return json.Marshal(f.raw)
	}
	return []byte(f.raw), nil
}

// UnmarshalJSON accepts numbers, strings and null.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexFloat{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexFloat{raw: n.String(), present: true}
	return nil
}
