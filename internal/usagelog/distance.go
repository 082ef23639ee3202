package usagelog

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	log "propertypackaging/internal/logging"
)

// Trigger sources for distance lookups.
const (
	TriggerFormEarly = "form-early-processing"
	TriggerFormStep5 = "form-step5"
	TriggerForm      = "form"
	TriggerPortal    = "portal"
	TriggerTest      = "test"
	TriggerMakeCom   = "make-com"
	TriggerUnknown   = "unknown"

	ProcessFormCompletion = "property-form-completion"
	ProcessPortalOpening  = "portal-opening"
)

const recentLogs = 50

type DistanceMatrixEntry struct {
	ID                string `json:"id"`
	Timestamp         string `json:"timestamp"`
	UserEmail         string `json:"userEmail,omitempty"`
	PropertyAddress   string `json:"propertyAddress,omitempty"`
	TriggerSource     string `json:"triggerSource"`
	Process           string `json:"process,omitempty"`
	APICallCount      int    `json:"apiCallCount"`
	DestinationsCount int    `json:"destinationsCount"`
	IP                string `json:"clientIP"`
	DurationMS        int64  `json:"duration"`
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	Referer           string `json:"referer,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	Origin            string `json:"origin,omitempty"`
}

// FromRequest starts an entry from the caller's headers.
func FromRequest(r *http.Request, ip string) DistanceMatrixEntry {
	return DistanceMatrixEntry{
		IP:        ip,
		Referer:   r.Header.Get("Referer"),
		UserAgent: r.Header.Get("User-Agent"),
		Origin:    r.Header.Get("Origin"),
	}
}

// InferTrigger guesses which part of the product made a distance lookup from
// the referring page, origin and user agent.
func InferTrigger(referer, origin, userAgent string) (source, process string) {
	if referer != "" {
		switch {
		case strings.Contains(referer, "/form") || strings.Contains(referer, "property-packaging"):
			if strings.Contains(referer, "step=3") || strings.Contains(referer, "step=4") {
				return TriggerFormEarly, ProcessFormCompletion
			}
			if strings.Contains(referer, "step=5") || strings.Contains(referer, "step5") {
				return TriggerFormStep5, ProcessFormCompletion
			}
			return TriggerForm, ProcessFormCompletion
		case strings.Contains(referer, "portal") || strings.Contains(referer, "buyersclub123.github.io"):
			return TriggerPortal, ProcessPortalOpening
		case strings.Contains(referer, "test"):
			return TriggerTest, ""
		}
	}
	if strings.Contains(origin, "make.com") {
		return TriggerMakeCom, ""
	}
	if strings.Contains(userAgent, "Make") || strings.Contains(userAgent, "Integromat") {
		return TriggerMakeCom, ""
	}
	return TriggerUnknown, ""
}

// LogDistanceMatrix stores one proximity lookup. The trigger source is
// inferred from the headers when not already set.
func (s *Store) LogDistanceMatrix(ctx context.Context, e DistanceMatrixEntry) error {
	if e.TriggerSource == "" {
		e.TriggerSource, e.Process = InferTrigger(e.Referer, e.Origin, e.UserAgent)
	}
	e.ID = uuid.NewString()
	e.Timestamp = s.stamp()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO distance_matrix (
            id, timestamp, user_email, property_address, trigger_source, process,
            api_call_count, destinations_count, ip, duration_ms, success, error,
            referer, user_agent, origin
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, e.ID, e.Timestamp, e.UserEmail, e.PropertyAddress, e.TriggerSource, e.Process,
		e.APICallCount, e.DestinationsCount, e.IP, e.DurationMS, e.Success, e.Error,
		e.Referer, e.UserAgent, e.Origin)
	if err != nil {
		return fmt.Errorf("log distance matrix usage: %w", err)
	}

	log.WithFields(log.Fields{
		"event":     "distance_matrix_logged",
		"user":      e.UserEmail,
		"address":   e.PropertyAddress,
		"trigger":   e.TriggerSource,
		"api_calls": e.APICallCount,
		"success":   e.Success,
	}).Info("Logged distance matrix usage")
	return nil
}

// Logs returns up to limit entries in the range, newest first.
func (s *Store) Logs(ctx context.Context, limit int, r DateRange) ([]DistanceMatrixEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	where, args := r.where()
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, timestamp, user_email, property_address, trigger_source, process,
               api_call_count, destinations_count, ip, duration_ms, success, error,
               referer, user_agent, origin
        FROM distance_matrix`+where+`
        ORDER BY timestamp DESC, rowid DESC
        LIMIT ?
    `, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("read distance matrix logs: %w", err)
	}
	defer rows.Close()

	out := []DistanceMatrixEntry{}
	for rows.Next() {
		var e DistanceMatrixEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.UserEmail, &e.PropertyAddress, &e.TriggerSource, &e.Process,
			&e.APICallCount, &e.DestinationsCount, &e.IP, &e.DurationMS, &e.Success, &e.Error,
			&e.Referer, &e.UserAgent, &e.Origin); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type UserCount struct {
	UserEmail string `json:"userEmail"`
	Count     int    `json:"count"`
}

type Stats struct {
	TotalCalls      int                   `json:"totalCalls"`
	TotalAPICalls   int                   `json:"totalApiCalls"`
	UniqueUsers     int                   `json:"uniqueUsers"`
	UniqueAddresses int                   `json:"uniqueAddresses"`
	ByTriggerSource map[string]int        `json:"byTriggerSource"`
	ByProcess       map[string]int        `json:"byProcess"`
	ByUser          []UserCount           `json:"byUser"`
	RecentLogs      []DistanceMatrixEntry `json:"recentLogs"`
}

func (s *Store) Stats(ctx context.Context, r DateRange) (Stats, error) {
	where, args := r.where()
	st := Stats{ByTriggerSource: map[string]int{}, ByProcess: map[string]int{}, ByUser: []UserCount{}}

	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(api_call_count), 0),
               COUNT(DISTINCT NULLIF(user_email, '')),
               COUNT(DISTINCT NULLIF(property_address, ''))
        FROM distance_matrix`+where, args...).
		Scan(&st.TotalCalls, &st.TotalAPICalls, &st.UniqueUsers, &st.UniqueAddresses)
	if err != nil {
		return Stats{}, fmt.Errorf("distance matrix totals: %w", err)
	}

	groups := []struct {
		expr string
		into map[string]int
	}{
		{"trigger_source", st.ByTriggerSource},
		{"CASE WHEN process = '' THEN 'unknown' ELSE process END", st.ByProcess},
	}
	for _, g := range groups {
		if err := s.countBy(ctx, g.expr, where, args, func(key string, n int) { g.into[key] = n }); err != nil {
			return Stats{}, err
		}
	}

	userWhere := " WHERE user_email <> ''"
	if where != "" {
		userWhere = where + " AND user_email <> ''"
	}
	err = s.countBy(ctx, "user_email", userWhere, args, func(key string, n int) {
		st.ByUser = append(st.ByUser, UserCount{UserEmail: key, Count: n})
	})
	if err != nil {
		return Stats{}, err
	}

	if st.RecentLogs, err = s.Logs(ctx, recentLogs, r); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// countBy groups rows by expr, largest groups first.
func (s *Store) countBy(ctx context.Context, expr, where string, args []interface{}, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+expr+` AS k, COUNT(*) AS n
        FROM distance_matrix`+where+`
        GROUP BY k
        ORDER BY n DESC, k
    `, args...)
	if err != nil {
		return fmt.Errorf("distance matrix counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		fn(k, n)
	}
	return rows.Err()
}
