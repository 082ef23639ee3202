// Package sheets reads and writes the Google Sheets the packaging team keeps
// as static reference data: market performance per suburb, Hotspotting
// investment highlight reports, the sourcer list and the cashflow autofill tab.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"propertypackaging/internal/metrics"
)

var (
	ErrNotConfigured = errors.New("google sheets not configured")
	ErrNotFound      = errors.New("Row not found")
)

const (
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	ScopeDrive        = "https://www.googleapis.com/auth/drive"

	inputRaw         = "RAW"
	inputUserEntered = "USER_ENTERED"
	insertRows       = "INSERT_ROWS"
	serviceName      = "google_sheets"
	escapedNewline   = `\n`
	dateLayout       = "2006-01-02"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// serialEpoch is day zero of spreadsheet serial dates.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseCredentials cleans up a service-account key pasted into an env var:
// wrapping quotes are dropped, a multi-line paste is flattened when it does
// not parse as-is, and escaped newlines in the private key are restored.
func ParseCredentials(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ErrNotConfigured
	}
	for _, q := range []string{"'", `"`} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[1 : len(s)-1]
		}
	}

	var creds map[string]interface{}
	if err := json.Unmarshal([]byte(s), &creds); err != nil {
		flat := whitespaceRun.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " ")
		if err := json.Unmarshal([]byte(flat), &creds); err != nil {
			return nil, fmt.Errorf("failed to parse GOOGLE_SHEETS_CREDENTIALS: %w", err)
		}
	}
	if key, ok := creds["private_key"].(string); ok {
		creds["private_key"] = strings.TrimSpace(strings.ReplaceAll(key, escapedNewline, "\n"))
	}
	return json.Marshal(creds)
}

// Credentials builds a token source for the service account in raw.
func Credentials(ctx context.Context, raw string, scopes ...string) (*google.Credentials, error) {
	key, err := ParseCredentials(raw)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, key, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to load service account: %w", err)
	}
	return creds, nil
}

// Client wraps the Sheets values API.
type Client struct {
	svc *sheets.Service
	now func() time.Time
}

// NewClient returns a client for an already configured Sheets service.
func NewClient(svc *sheets.Service) *Client {
	return &Client{svc: svc, now: time.Now}
}

// Connect builds a Sheets client from service-account JSON. Extra options
// are appended after the credentials.
func Connect(ctx context.Context, credentialsJSON string, opts ...option.ClientOption) (*Client, error) {
	creds, err := Credentials(ctx, credentialsJSON, ScopeSpreadsheets)
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx, append([]option.ClientOption{option.WithCredentials(creds)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewClient(svc), nil
}

func (c *Client) today() string {
	return c.now().UTC().Format(dateLayout)
}

func (c *Client) readRows(ctx context.Context, spreadsheetID, rng string) (rows [][]interface{}, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(serviceName, start, err) }()

	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) batchUpdate(ctx context.Context, spreadsheetID, inputOption string, data []*sheets.ValueRange) (err error) {
	if len(data) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.ObserveUpstream(serviceName, start, err) }()

	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: inputOption, Data: data}
	if _, err = c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update %d ranges: %w", len(data), err)
	}
	return nil
}

func (c *Client) appendRow(ctx context.Context, spreadsheetID, rng string, row []interface{}) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(serviceName, start, err) }()

	_, err = c.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption(inputRaw).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", rng, err)
	}
	return nil
}

func (c *Client) updateCell(ctx context.Context, spreadsheetID, rng string, value interface{}) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(serviceName, start, err) }()

	_, err = c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, cellRange(rng, value)).
		ValueInputOption(inputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return nil
}

func cellRange(rng string, value interface{}) *sheets.ValueRange {
	return &sheets.ValueRange{Range: rng, Values: [][]interface{}{{value}}}
}

// cell returns column i of row as text. Short rows are padded with "".
func cell(row []interface{}, i int) string {
	if i >= len(row) {
		return ""
	}
	switch v := row[i].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// column maps a zero-based index to its letter. Only A-Z are used.
func column(i int) string {
	return string(rune('A' + i))
}
