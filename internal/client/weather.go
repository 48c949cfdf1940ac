package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
)

// OpenWeatherClient fetches current conditions around a point.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	host    string
	up      upstream
}

// NewOpenWeatherClient creates a weather client. An empty apiKey is allowed;
// Find then returns nil without calling out.
func NewOpenWeatherClient(apiKey, baseURL, host string, timeout time.Duration, opts ...Option) *OpenWeatherClient {
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		host:    host,
		up:      newUpstream(observability.UpstreamWeather, timeout, opts),
	}
}

// Find returns the /find snapshot for c. Zero coordinates yield (nil, nil)
// and a missing key yields (nil, ErrMissingCredential), both without a call.
func (w *OpenWeatherClient) Find(ctx context.Context, c models.Coordinates) (*models.WeatherSnapshot, error) {
	if c.IsZero() {
		return nil, nil
	}
	if w.apiKey == "" {
		return nil, ErrMissingCredential
	}

	params := url.Values{}
	params.Set("lat", formatCoord(c.Lat))
	params.Set("lon", formatCoord(c.Lng))
	reqURL := w.baseURL + "/find?" + params.Encode()

	body, err := w.up.get(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-rapidapi-key", w.apiKey)
		req.Header.Set("x-rapidapi-host", w.host)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var snap models.WeatherSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &snap, nil
}
