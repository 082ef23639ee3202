// Package ghl talks to GoHighLevel custom object records, directly and
// through the Make.com scenarios that front it.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"propertypackaging/internal/form"
	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
)

const (
	DefaultBaseURL    = "https://services.leadconnectorhq.com"
	DefaultAPIVersion = "2021-07-28"
)

var ErrNotConfigured = errors.New("GHL API configuration is missing. Please check environment variables.")

// APIError carries the upstream status so handlers can pass it through.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GHL API error: %d %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL     string
	ObjectID    string
	LocationID  string
	BearerToken string
	APIVersion  string
}

// Client reads and writes Property Review records.
type Client struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

func (c *Client) Configured() bool {
	return c.config.ObjectID != "" && c.config.LocationID != "" && c.config.BearerToken != ""
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body interface{}) (resp *http.Response, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("ghl", start, err) }()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	req.Header.Set("Version", c.config.APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.WithFields(log.Fields{
		"event":    "ghl_request",
		"method":   method,
		"endpoint": endpoint,
	}).Debug("Making request to GHL")

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return resp, nil
}

func (c *Client) recordsPath() string {
	return "/objects/" + url.PathEscape(c.config.ObjectID) + "/records"
}

// CreateRecord submits a new review and returns the GHL record id.
func (c *Client) CreateRecord(ctx context.Context, d *form.Data) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	payload := ToRecord(d, false, c.now())
	payload["locationId"] = c.config.LocationID

	resp, err := c.makeRequest(ctx, http.MethodPost, c.recordsPath(), payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID       string `json:"id"`
		RecordID string `json:"recordId"`
		Record   struct {
			ID string `json:"id"`
		} `json:"record"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode GHL response: %w", err)
	}
	id := result.ID
	if id == "" {
		id = result.RecordID
	}
	if id == "" {
		id = result.Record.ID
	}

	log.WithFields(log.Fields{
		"event":     "ghl_record_created",
		"record_id": id,
		"address":   d.Address.PropertyAddress,
	}).Info("Property submitted to GHL")
	return id, nil
}

// GetRecord fetches a record and maps it back into a review.
func (c *Client) GetRecord(ctx context.Context, recordID string) (*form.Data, string, error) {
	if !c.Configured() {
		return nil, "", ErrNotConfigured
	}

	q := url.Values{
		"locationId": {c.config.LocationID},
		// GHL caches record reads aggressively.
		"_t": {strconv.FormatInt(c.now().UnixMilli(), 10)},
	}
	resp, err := c.makeRequest(ctx, http.MethodGet, c.recordsPath()+"/"+url.PathEscape(recordID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var result struct {
		Record struct {
			ID         string                 `json:"id"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"record"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("failed to decode GHL response: %w", err)
	}
	id := result.Record.ID
	if id == "" {
		id = recordID
	}
	props := result.Record.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	return FromRecord(props), id, nil
}

// UpdateRecord sends only the fields present in d. GHL answers 404 to PUT on
// some objects, in which case the update is retried as PATCH.
func (c *Client) UpdateRecord(ctx context.Context, recordID string, d *form.Data) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	endpoint := c.recordsPath() + "/" + url.PathEscape(recordID) + "?" + url.Values{"locationId": {c.config.LocationID}}.Encode()
	body := map[string]interface{}{"properties": ToRecord(d, true, c.now())}

	resp, err := c.makeRequest(ctx, http.MethodPut, endpoint, body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		log.WithFields(log.Fields{
			"event":     "ghl_update_patch_fallback",
			"record_id": recordID,
		}).Warn("PUT returned 404, retrying with PATCH")
		resp, err = c.makeRequest(ctx, http.MethodPatch, endpoint, body)
	}
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	if result.ID == "" {
		result.ID = recordID
	}

	log.WithFields(log.Fields{
		"event":     "ghl_record_updated",
		"record_id": result.ID,
	}).Info("Property updated in GHL")
	return result.ID, nil
}
