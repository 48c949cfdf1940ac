package view

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/viewport"
)

const (
	weatherIconURL = "https://openweathermap.org/img/w/%s.png"
	notAvailable   = "N/A"
)

var titleCaser = cases.Title(language.English)

// Marker is one clickable pin. Index points into the displayed list.
type Marker struct {
	Index   int     `json:"index"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Name    string  `json:"name"`
	Rating  string  `json:"rating,omitempty"`
	Address string  `json:"address,omitempty"`
}

// WeatherBadge summarizes the first weather entry.
type WeatherBadge struct {
	Temperature string `json:"temperature"`
	IconURL     string `json:"iconUrl,omitempty"`
	Description string `json:"description"`
}

// Map is the map pane. Ready is false until a location is known.
type Map struct {
	Ready   bool               `json:"ready"`
	Center  models.Coordinates `json:"center"`
	Zoom    int                `json:"zoom"`
	Markers []Marker           `json:"markers"`
	Weather *WeatherBadge      `json:"weather,omitempty"`
}

// NewMap renders the map pane for st, centred on v.
func NewMap(st coordinator.State, v viewport.View) Map {
	m := Map{
		Ready:   !st.Coords.IsZero(),
		Center:  v.Center,
		Zoom:    v.Zoom,
		Markers: []Marker{},
		Weather: NewWeatherBadge(st.Weather),
	}
	if v.Zoom == 0 {
		m.Center = st.Coords
		m.Zoom = viewport.DefaultZoom
	}
	for i, p := range st.Displayed() {
		pos, ok := p.Position()
		if !ok {
			continue
		}
		mk := Marker{Index: i, Lat: pos.Lat, Lng: pos.Lng, Name: p.Name, Address: p.Address}
		if p.Rating.Truthy() {
			mk.Rating = p.Rating.String()
		}
		m.Markers = append(m.Markers, mk)
	}
	return m
}

// NewWeatherBadge returns nil unless the snapshot has at least one entry.
func NewWeatherBadge(w *models.WeatherSnapshot) *WeatherBadge {
	cur, ok := w.Current()
	if !ok {
		return nil
	}
	b := &WeatherBadge{Temperature: notAvailable + "°C", Description: notAvailable}
	if cur.Main != nil && cur.Main.Temp != 0 {
		b.Temperature = fmt.Sprintf("%d°C", models.KelvinToCelsius(cur.Main.Temp))
	}
	if len(cur.Weather) > 0 {
		if icon := cur.Weather[0].Icon; icon != "" {
			b.IconURL = fmt.Sprintf(weatherIconURL, icon)
		}
		if d := cur.Weather[0].Description; d != "" {
			b.Description = titleCaser.String(d)
		}
	}
	return b
}
