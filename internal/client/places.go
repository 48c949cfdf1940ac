package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
)

// Drop reasons recorded by NormalizePlaces.
const (
	DropNull         = "null_entry"
	DropUndecodable  = "undecodable"
	DropMissingCoord = "missing_coordinates"
)

const unknownPlaceName = "Unknown"

// TravelAdvisorClient lists points of interest inside a rectangle.
type TravelAdvisorClient struct {
	apiKey  string
	baseURL string
	host    string
	up      upstream
}

// NewTravelAdvisorClient creates a places client. An empty apiKey is allowed;
// every call then fails with ErrMissingCredential.
func NewTravelAdvisorClient(apiKey, baseURL, host string, timeout time.Duration, opts ...Option) *TravelAdvisorClient {
	return &TravelAdvisorClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		host:    host,
		up:      newUpstream(observability.UpstreamPlaces, timeout, opts),
	}
}

// PlacesResult is the outcome of normalizing one list-in-boundary body.
type PlacesResult struct {
	Places  []models.Place
	Dropped map[string]int
}

// DroppedTotal sums the per-reason drop counts.
func (r PlacesResult) DroppedTotal() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// ListInBoundary fetches places of the given category inside b.
func (c *TravelAdvisorClient) ListInBoundary(ctx context.Context, category models.Category, b models.Bounds) ([]models.Place, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredential
	}

	params := url.Values{}
	params.Set("bl_latitude", formatCoord(b.SW.Lat))
	params.Set("bl_longitude", formatCoord(b.SW.Lng))
	params.Set("tr_latitude", formatCoord(b.NE.Lat))
	params.Set("tr_longitude", formatCoord(b.NE.Lng))
	reqURL := fmt.Sprintf("%s/%s/list-in-boundary?%s", c.baseURL, url.PathEscape(string(category)), params.Encode())

	body, err := c.up.get(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-rapidapi-key", c.apiKey)
		req.Header.Set("x-rapidapi-host", c.host)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	res, err := NormalizePlaces(category, body)
	if err != nil {
		return nil, err
	}
	for reason, n := range res.Dropped {
		observability.PlacesDroppedTotal.WithLabelValues(string(category), reason).Add(float64(n))
	}
	return res.Places, nil
}

// rawPlace captures every field variant the places upstream is known to send.
type rawPlace struct {
	Name          string           `json:"name"`
	Latitude      models.FlexFloat `json:"latitude"`
	Lat           models.FlexFloat `json:"lat"`
	Longitude     models.FlexFloat `json:"longitude"`
	Lng           models.FlexFloat `json:"lng"`
	Rating        models.FlexFloat `json:"rating"`
	NumReviews    models.FlexFloat `json:"num_reviews"`
	PriceLevel    models.FlexFloat `json:"price_level"`
	Ranking       string           `json:"ranking"`
	Address       string           `json:"address"`
	AddressObj    *struct {
		Street1 string `json:"street1"`
	} `json:"address_obj"`
	AddressString string `json:"address_string"`
	Photo         *struct {
		Images map[string]*models.ImageRef `json:"images"`
	} `json:"photo"`
	Cuisine       []models.Cuisine `json:"cuisine"`
	Awards        []models.Award   `json:"awards"`
	Phone         string           `json:"phone"`
	WebURL        string           `json:"web_url"`
	Website       string           `json:"website"`
	LocationID    models.FlexFloat `json:"location_id"`
	LocationIDAlt models.FlexFloat `json:"locationId"`
	Distance      models.FlexFloat `json:"distance"`
}

// NormalizePlaces decodes a list-in-boundary body into Places. Both the
// {"data":[...]} envelope and a bare array are accepted; anything else is
// ErrMalformedResponse. Entries without a latitude or longitude are dropped.
func NormalizePlaces(category models.Category, body []byte) (PlacesResult, error) {
	items, err := placesArray(body)
	if err != nil {
		return PlacesResult{}, err
	}

	res := PlacesResult{Places: make([]models.Place, 0, len(items)), Dropped: map[string]int{}}
	contentType := category.ContentType()
	for _, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			res.Dropped[DropNull]++
			continue
		}
		var raw rawPlace
		if err := json.Unmarshal(item, &raw); err != nil {
			res.Dropped[DropUndecodable]++
			continue
		}
		lat := firstTruthy(raw.Latitude, raw.Lat)
		lng := firstTruthy(raw.Longitude, raw.Lng)
		if !lat.Truthy() || !lng.Truthy() {
			res.Dropped[DropMissingCoord]++
			continue
		}
		res.Places = append(res.Places, raw.toPlace(lat, lng, contentType))
	}
	return res, nil
}

func placesArray(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return items, nil
	case '{':
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		data := bytes.TrimSpace(env.Data)
		if len(data) == 0 || data[0] != '[' {
			return nil, fmt.Errorf("%w: data is not a list", ErrMalformedResponse)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: unexpected top-level value", ErrMalformedResponse)
}

func (r rawPlace) toPlace(lat, lng models.FlexFloat, contentType string) models.Place {
	p := models.Place{
		Name:        r.Name,
		Latitude:    lat,
		Longitude:   lng,
		Rating:      r.Rating,
		NumReviews:  flexInt(r.NumReviews),
		PriceLevel:  priceLevel(r.PriceLevel),
		Ranking:     r.Ranking,
		Cuisine:     r.Cuisine,
		Awards:      r.Awards,
		Phone:       r.Phone,
		WebURL:      r.WebURL,
		Website:     r.Website,
		ContentType: contentType,
		Distance:    r.Distance.String(),
	}
	if p.Name == "" {
		p.Name = unknownPlaceName
	}

	switch {
	case r.Address != "":
		p.Address = r.Address
	case r.AddressObj != nil && r.AddressObj.Street1 != "":
		p.Address = r.AddressObj.Street1
	default:
		p.Address = r.AddressString
	}

	if r.Photo != nil {
		p.Photo = &models.Photo{}
		for _, size := range []string{"large", "original", "medium"} {
			if ref := r.Photo.Images[size]; ref != nil && ref.URL != "" {
				p.Photo.Images.Large = &models.ImageRef{URL: ref.URL}
				break
			}
		}
	}

	switch {
	case r.LocationID.Truthy():
		p.ContentID = r.LocationID.String()
	case r.LocationIDAlt.Truthy():
		p.ContentID = r.LocationIDAlt.String()
	}
	return p
}

func firstTruthy(values ...models.FlexFloat) models.FlexFloat {
	for _, v := range values {
		if v.Truthy() {
			return v
		}
	}
	return models.FlexFloat{}
}

func flexInt(f models.FlexFloat) int {
	v, ok := f.Float()
	if !ok || v < 0 {
		return 0
	}
	return int(v)
}

// priceLevel accepts a number or the "$$ - $$$" form, in which case the
// lower end of the range is used.
func priceLevel(f models.FlexFloat) int {
	if v, ok := f.Float(); ok {
		return flexInt(models.FlexNumber(v))
	}
	s := strings.TrimSpace(f.String())
	n := 0
	for _, r := range s {
		if r != '$' {
			break
		}
		n++
	}
	return n
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
