// Package usagelog records API requests and paid distance lookups in sqlite
// so usage can be reviewed from the admin dashboard.
package usagelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	log "propertypackaging/internal/logging"
)

const (
	DefaultPath = "usage.db"
	MemoryPath  = ":memory:"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id          TEXT PRIMARY KEY,
    timestamp   TEXT NOT NULL,
    ip          TEXT NOT NULL,
    endpoint    TEXT NOT NULL,
    method      TEXT NOT NULL,
    status      INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS requests_timestamp ON requests (timestamp);

CREATE TABLE IF NOT EXISTS distance_matrix (
    id                 TEXT PRIMARY KEY,
    timestamp          TEXT NOT NULL,
    user_email         TEXT NOT NULL DEFAULT '',
    property_address   TEXT NOT NULL DEFAULT '',
    trigger_source     TEXT NOT NULL,
    process            TEXT NOT NULL DEFAULT '',
    api_call_count     INTEGER NOT NULL,
    destinations_count INTEGER NOT NULL,
    ip                 TEXT NOT NULL,
    duration_ms        INTEGER NOT NULL,
    success            INTEGER NOT NULL,
    error              TEXT NOT NULL DEFAULT '',
    referer            TEXT NOT NULL DEFAULT '',
    user_agent         TEXT NOT NULL DEFAULT '',
    origin             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS distance_matrix_timestamp ON distance_matrix (timestamp);
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the usage database at path. ":memory:"
// gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	dsn := "file::memory:"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.WithFields(log.Fields{
		"event": "usage_db_opened",
		"path":  path,
	}).Info("Usage log ready")
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// DateRange limits queries to entries logged between From and To inclusive,
// both YYYY-MM-DD. Empty bounds are open.
type DateRange struct {
	From string
	To   string
}

func (r DateRange) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if r.From != "" {
		conds = append(conds, "substr(timestamp, 1, 10) >= ?")
		args = append(args, r.From)
	}
	if r.To != "" {
		conds = append(conds, "substr(timestamp, 1, 10) <= ?")
		args = append(args, r.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type RequestEntry struct {
	IP         string `json:"ip"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	Status     int    `json:"status"`
	DurationMS int64  `json:"duration"`
	Error      string `json:"error,omitempty"`
}

func (s *Store) LogRequest(ctx context.Context, e RequestEntry) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO requests (id, timestamp, ip, endpoint, method, status, duration_ms, error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, uuid.NewString(), s.stamp(), e.IP, e.Endpoint, e.Method, e.Status, e.DurationMS, e.Error)
	if err != nil {
		return fmt.Errorf("log request: %w", err)
	}
	return nil
}

type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
}

// RequestSummary is one day of API traffic.
type RequestSummary struct {
	Date          string          `json:"date"`
	TotalRequests int             `json:"totalRequests"`
	UniqueIPs     int             `json:"uniqueIPs"`
	Errors        int             `json:"errors"`
	RateLimited   int             `json:"rateLimited"`
	ByEndpoint    []EndpointCount `json:"byEndpoint"`
}

// DailySummary aggregates the requests logged on day (UTC).
func (s *Store) DailySummary(ctx context.Context, day time.Time) (RequestSummary, error) {
	date := day.UTC().Format("2006-01-02")
	sum := RequestSummary{Date: date, ByEndpoint: []EndpointCount{}}

	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COUNT(DISTINCT ip),
               COALESCE(SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = 429 THEN 1 ELSE 0 END), 0)
        FROM requests
        WHERE substr(timestamp, 1, 10) = ?
    `, date).Scan(&sum.TotalRequests, &sum.UniqueIPs, &sum.Errors, &sum.RateLimited)
	if err != nil {
		return RequestSummary{}, fmt.Errorf("summarize requests: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT endpoint, COUNT(*) AS n
        FROM requests
        WHERE substr(timestamp, 1, 10) = ?
        GROUP BY endpoint
        ORDER BY n DESC, endpoint
    `, date)
	if err != nil {
		return RequestSummary{}, fmt.Errorf("summarize requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ec EndpointCount
		if err := rows.Scan(&ec.Endpoint, &ec.Count); err != nil {
			return RequestSummary{}, err
		}
		sum.ByEndpoint = append(sum.ByEndpoint, ec)
	}
	return sum, rows.Err()
}
