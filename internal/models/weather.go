package models

import (
	"encoding/json"
	"math"
)

// WeatherSnapshot is the /find payload. It is treated as read-only
// pass-through: the original bytes are re-emitted on marshal.
type WeatherSnapshot struct {
	List    []WeatherEntry `json:"list"`
	Cod     FlexFloat      `json:"cod"`
	Message string         `json:"message,omitempty"`

	raw json.RawMessage
}

// WeatherEntry is one forecast item. Temperatures are Kelvin.
type WeatherEntry struct {
	Coord   *WeatherCoord      `json:"coord,omitempty"`
	Main    *WeatherMain       `json:"main,omitempty"`
	Weather []WeatherCondition `json:"weather,omitempty"`
}

// WeatherCoord is the station position.
type WeatherCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherMain holds the temperature block.
type WeatherMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like,omitempty"`
	TempMin   float64 `json:"temp_min,omitempty"`
	TempMax   float64 `json:"temp_max,omitempty"`
	Pressure  float64 `json:"pressure,omitempty"`
	Humidity  float64 `json:"humidity,omitempty"`
}

// WeatherCondition is an icon code plus description.
type WeatherCondition struct {
	ID          int    `json:"id,omitempty"`
	Main        string `json:"main,omitempty"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type weatherSnapshotAlias WeatherSnapshot

// UnmarshalJSON decodes the typed view and keeps the original bytes.
func (w *WeatherSnapshot) UnmarshalJSON(data []byte) error {
	var alias weatherSnapshotAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*w = WeatherSnapshot(alias)
	w.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the upstream bytes when available.
func (w WeatherSnapshot) MarshalJSON() ([]byte, error) {
	if len(w.raw) > 0 {
		return w.raw, nil
	}
	return json.Marshal(weatherSnapshotAlias(w))
}

// Current returns the first entry, the only one consumed for display.
func (w *WeatherSnapshot) Current() (WeatherEntry, bool) {
	if w == nil || len(w.List) == 0 {
		return WeatherEntry{}, false
	}
	return w.List[0], true
}

// KelvinToCelsius rounds k - 273.15 half away from zero.
func KelvinToCelsius(k float64) int {
	return int(math.Round(k - 273.15))
}
