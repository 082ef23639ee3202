package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	log "propertypackaging/internal/logging"
)

const (
	sourcersTab = "Packagers & Sourcers"
	sourcersTTL = 5 * time.Minute
)

var fallbackSourcers = []string{"Adi", "Ali", "James", "Jess", "John", "Josh", "Mohit", "Sachin", "Shay", "Will"}

// FallbackSourcers is served when the admin sheet is unavailable or empty.
// Each call returns a fresh copy.
func FallbackSourcers() []string {
	return append([]string(nil), fallbackSourcers...)
}

// SourcerList serves the sourcer dropdown from the admin sheet, caching the
// names for five minutes. Concurrent refreshes share one sheet read.
type SourcerList struct {
	client        *Client
	spreadsheetID string
	ttl           time.Duration

	group     singleflight.Group
	mu        sync.RWMutex
	names     []string
	fetchedAt time.Time
}

func NewSourcerList(client *Client, spreadsheetID string) *SourcerList {
	return &SourcerList{client: client, spreadsheetID: spreadsheetID, ttl: sourcersTTL}
}

// Names never fails: errors and empty sheets fall back to FallbackSourcers.
// The boolean reports whether the names came from the sheet. The slice is
// the caller's to modify.
func (l *SourcerList) Names(ctx context.Context) ([]string, bool) {
	l.mu.RLock()
	if l.names != nil && time.Since(l.fetchedAt) < l.ttl {
		names := append([]string(nil), l.names...)
		l.mu.RUnlock()
		return names, true
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("sourcers", func() (interface{}, error) {
		names, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.names = names
		l.fetchedAt = time.Now()
		l.mu.Unlock()
		return names, nil
	})
	if err != nil {
		log.WithFields(log.Fields{
			"event": "sourcers_fallback",
			"error": err.Error(),
		}).Warn("Serving fallback sourcer list")
		return FallbackSourcers(), false
	}
	return append([]string(nil), v.([]string)...), true
}

func (l *SourcerList) fetch(ctx context.Context) ([]string, error) {
	if l.client == nil || l.spreadsheetID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_SHEET_ID_ADMIN environment variable is not set", ErrNotConfigured)
	}
	rows, err := l.client.readRows(ctx, l.spreadsheetID, sourcersTab+"!A2:A")
	if err != nil {
		return nil, err
	}
	names := SourcerNames(rows)
	if len(names) == 0 {
		return nil, fmt.Errorf("no sourcers listed in %s", sourcersTab)
	}
	return names, nil
}

// SourcerNames turns a column of emails into display names: the part before
// the @, sorted without regard to case.
func SourcerNames(rows [][]interface{}) []string {
	var names []string
	for _, row := range rows {
		email := strings.TrimSpace(cell(row, 0))
		if at := strings.Index(email, "@"); at >= 0 {
			email = email[:at]
		}
		if email != "" {
			names = append(names, email)
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}
