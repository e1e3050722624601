// Package geocode resolves venue addresses to coordinates and fills the
// proximity cache in the background.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/happymapper/internal/models"
)

const defaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// ErrNoResults is returned when the API knows no location for an address.
var ErrNoResults = errors.New("no geocoding results")

// Client calls the Google Geocoding API.
type Client struct {
	apiKey      string
	endpoint    string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:      apiKey,
		endpoint:    defaultEndpoint,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(10), 1),
	}
}

type geocodeResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Geocode returns the first match for address.
func (c *Client) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return models.Coordinates{}, err
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return models.Coordinates{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Coordinates{}, fmt.Errorf("geocode status: %s", resp.Status)
	}

	var result geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}

	switch result.Status {
	case "OK":
	case "ZERO_RESULTS":
		return models.Coordinates{}, ErrNoResults
	default:
		return models.Coordinates{}, fmt.Errorf("geocode API error: %s %s", result.Status, result.ErrorMessage)
	}
	if len(result.Results) == 0 {
		return models.Coordinates{}, ErrNoResults
	}

	loc := result.Results[0].Geometry.Location
	return models.Coordinates{Latitude: loc.Lat, Longitude: loc.Lng}, nil
}
