package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
)

// MinQueryRunes is the shortest query that reaches the geocoder.
const MinQueryRunes = 3

const (
	geocodeLimit       = 5
	defaultPlaceType   = "location"
	defaultGeocodeName = "Unknown location"
)

// NominatimClient resolves free-text queries to coordinates.
type NominatimClient struct {
	baseURL   string
	userAgent string
	up        upstream
}

// NewNominatimClient creates a geocoding client. The public Nominatim
// instance rejects requests without a User-Agent.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration, opts ...Option) *NominatimClient {
	return &NominatimClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		up:        newUpstream(observability.UpstreamGeocoding, timeout, opts),
	}
}

type nominatimResult struct {
	Lat         string          `json:"lat"`
	Lon         string          `json:"lon"`
	DisplayName string          `json:"display_name"`
	PlaceID     json.RawMessage `json:"place_id"`
	Type        string          `json:"type"`
}

// Search returns up to five matches for q. Queries shorter than MinQueryRunes
// return an empty slice without a network call.
func (c *NominatimClient) Search(ctx context.Context, q string) ([]models.GeocodeResult, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinQueryRunes {
		return []models.GeocodeResult{}, nil
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(geocodeLimit))
	params.Set("addressdetails", "1")
	reqURL := c.baseURL + "?" + params.Encode()

	body, err := c.up.get(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var raw []nominatimResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	results := make([]models.GeocodeResult, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		res := models.GeocodeResult{
			Lat:        lat,
			Lng:        lng,
			Name:       r.DisplayName,
			LocationID: placeID(r.PlaceID),
			PlaceType:  r.Type,
		}
		if res.Name == "" {
			res.Name = defaultGeocodeName
		}
		if res.PlaceType == "" {
			res.PlaceType = defaultPlaceType
		}
		results = append(results, res)
	}
	return results, nil
}

// placeID renders the id whether Nominatim sent it as a number or a string.
func placeID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
