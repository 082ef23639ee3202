package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	log "propertypackaging/internal/logging"
)

const DefaultGeoapifyURL = "https://api.geoapify.com/v2/places"

// Place is one point of interest returned by the places API.
type Place struct {
	Name         string
	Categories   []string
	AddressLine1 string
	AddressLine2 string
	// Distance from the bias point in metres; zero when the API omitted it.
	Distance float64
	PlaceID  string
	Lat      float64
	Lon      float64
}

func (p Place) hasCategory(substrs ...string) bool {
	for _, c := range p.Categories {
		for _, s := range substrs {
			if strings.Contains(c, s) {
				return true
			}
		}
	}
	return false
}

type PlacesQuery struct {
	Categories []string
	Lat, Lon   float64
	// Radius of the circle filter in metres.
	Radius int
	Limit  int
}

type geoapifyResponse struct {
	Features []struct {
		Properties struct {
			Name         string   `json:"name"`
			Categories   []string `json:"categories"`
			AddressLine1 string   `json:"address_line1"`
			AddressLine2 string   `json:"address_line2"`
			Distance     float64  `json:"distance"`
			PlaceID      string   `json:"place_id"`
		} `json:"properties"`
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// GeoapifyClient queries the Geoapify places API. Requests are throttled
// client side to stay under the plan's per-second quota.
type GeoapifyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	// RetryDelay is how long to wait before the single retry after a 429.
	RetryDelay time.Duration
}

func NewGeoapifyClient(apiKey, baseURL string) *GeoapifyClient {
	if baseURL == "" {
		baseURL = DefaultGeoapifyURL
	}
	return &GeoapifyClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		RetryDelay: 2 * time.Second,
	}
}

// Places runs one category search. A 429 is retried once after RetryDelay.
func (c *GeoapifyClient) Places(ctx context.Context, q PlacesQuery) ([]Place, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	places, err := c.places(ctx, q)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		log.WithFields(log.Fields{
			"event": "geoapify_rate_limited",
			"delay": c.RetryDelay.String(),
		}).Warn("Geoapify rate limited, retrying once")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.RetryDelay):
		}
		places, err = c.places(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%w: retry failed: %v", ErrRateLimited, err)
		}
	}
	return places, err
}

func (c *GeoapifyClient) places(ctx context.Context, q PlacesQuery) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	lon := strconv.FormatFloat(q.Lon, 'f', -1, 64)
	lat := strconv.FormatFloat(q.Lat, 'f', -1, 64)
	params := url.Values{
		"categories": {strings.Join(q.Categories, ",")},
		"filter":     {fmt.Sprintf("circle:%s,%s,%d", lon, lat, q.Radius)},
		"bias":       {fmt.Sprintf("proximity:%s,%s", lon, lat)},
		"limit":      {strconv.Itoa(q.Limit)},
		"apiKey":     {c.apiKey},
	}

	var resp geoapifyResponse
	if err := getJSON(ctx, c.httpClient, "geoapify", c.baseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Place, 0, len(resp.Features))
	for _, f := range resp.Features {
		p := Place{
			Name:         f.Properties.Name,
			Categories:   f.Properties.Categories,
			AddressLine1: f.Properties.AddressLine1,
			AddressLine2: f.Properties.AddressLine2,
			Distance:     f.Properties.Distance,
			PlaceID:      f.Properties.PlaceID,
		}
		if len(f.Geometry.Coordinates) >= 2 {
			p.Lon = f.Geometry.Coordinates[0]
			p.Lat = f.Geometry.Coordinates[1]
		}
		out = append(out, p)
	}

	log.WithFields(log.Fields{
		"event":  "geoapify_request",
		"radius": q.Radius,
		"count":  len(out),
	}).Info("Geoapify places returned")
	return out, nil
}
