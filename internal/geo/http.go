// Package geo wraps the Geoscape geocoder and the Geoapify places API and
// builds the proximity summary shown on the property review.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
)

var (
	ErrNotConfigured = errors.New("geo: api key not configured")
	ErrRateLimited   = errors.New("geo: rate limited")
)

// APIError is a non-2xx answer from an upstream geo service.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Service, e.StatusCode, e.Body)
}

func getJSON(ctx context.Context, hc *http.Client, service, url string, headers map[string]string, out interface{}) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(service, start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.WithFields(log.Fields{
		"event":   "upstream_request",
		"service": service,
	}).Debug("calling upstream")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make %s request: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", service, err)
	}
	return nil
}
