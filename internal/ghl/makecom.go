package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"propertypackaging/internal/address"
	log "propertypackaging/internal/logging"
	"propertypackaging/internal/metrics"
)

var ErrSearchNotConfigured = errors.New("Property search webhook not configured. Please set MAKE_WEBHOOK_PROPERTY_SEARCH environment variable.")

const addressCheckFailed = "Could not verify address uniqueness - proceeding with folder creation"

// MakeConfig holds the Make.com scenario webhooks.
type MakeConfig struct {
	CheckAddressURL   string
	PropertySearchURL string
	StashURL          string
}

// MakeClient calls Make.com scenarios that query GHL and Stash on our behalf.
type MakeClient struct {
	config     MakeConfig
	httpClient *http.Client
}

func NewMakeClient(config MakeConfig) *MakeClient {
	return &MakeClient{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *MakeClient) post(ctx context.Context, service, webhookURL string, payload interface{}) (status int, body []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(service, start, err) }()

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call %s webhook: %w", service, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", service, err)
	}
	log.WithFields(log.Fields{
		"event":   "make_webhook",
		"service": service,
		"status":  resp.StatusCode,
	}).Debug("Make.com webhook answered")
	return resp.StatusCode, body, nil
}

// AddressCheck is the answer to "is this address already in GHL".
type AddressCheck struct {
	Exists          bool          `json:"exists"`
	MatchingRecords []interface{} `json:"matchingRecords"`
	Error           string        `json:"error,omitempty"`
}

// CheckAddress asks GHL whether a record already exists for the address. It
// fails open: any error reports the address as new, with the reason attached.
func (m *MakeClient) CheckAddress(ctx context.Context, propertyAddress string) AddressCheck {
	check := AddressCheck{MatchingRecords: []interface{}{}}
	if m.config.CheckAddressURL == "" {
		check.Error = addressCheckFailed
		return check
	}

	status, body, err := m.post(ctx, "make_check_address", m.config.CheckAddressURL, map[string]string{"propertyAddress": propertyAddress})
	if err != nil {
		check.Error = err.Error()
		return check
	}
	if status < 200 || status > 299 {
		check.Error = addressCheckFailed
		return check
	}

	var result struct {
		Exists          bool          `json:"exists"`
		MatchingRecords []interface{} `json:"matchingRecords"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		check.Error = "Could not verify address uniqueness"
		return check
	}
	check.Exists = result.Exists || anyRecordMatches(result.MatchingRecords, propertyAddress)
	if result.MatchingRecords != nil {
		check.MatchingRecords = result.MatchingRecords
	}
	return check
}

// anyRecordMatches reports whether a returned record carries the same address
// once both are normalized.
func anyRecordMatches(records []interface{}, propertyAddress string) bool {
	for _, r := range records {
		rec, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range []string{"property_address", "propertyAddress"} {
			if s, ok := rec[key].(string); ok && address.Match(s, propertyAddress) {
				return true
			}
		}
	}
	return false
}

// SearchProperties returns the GHL records matching an address.
func (m *MakeClient) SearchProperties(ctx context.Context, addr string) ([]interface{}, error) {
	if m.config.PropertySearchURL == "" {
		return []interface{}{}, ErrSearchNotConfigured
	}

	status, body, err := m.post(ctx, "make_property_search", m.config.PropertySearchURL, map[string]string{"address": addr})
	if err != nil {
		return []interface{}{}, err
	}
	if status < 200 || status > 299 {
		return []interface{}{}, &APIError{StatusCode: status, Body: string(body)}
	}

	var result struct {
		Properties []interface{} `json:"properties"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return []interface{}{}, fmt.Errorf("failed to decode search response: %w", err)
	}
	if result.Properties == nil {
		return []interface{}{}, nil
	}
	return result.Properties, nil
}

// Stash looks up risk overlays and zoning for an address. Failures come back
// as a result with Error set so the packager can continue manually.
func (m *MakeClient) Stash(ctx context.Context, propertyAddress string) StashResult {
	if m.config.StashURL == "" {
		return stashError()
	}

	status, body, err := m.post(ctx, "stash", m.config.StashURL, map[string]string{"property_address": propertyAddress})
	if err != nil || status < 200 || status > 299 {
		fields := log.Fields{"event": "stash_failed", "status": status}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.WithFields(fields).Warn("Stash lookup failed")
		return stashError()
	}
	return ParseStash(body)
}
