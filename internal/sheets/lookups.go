package sheets

import (
	"context"
	"fmt"
	"strings"

	log "propertypackaging/internal/logging"
)

const stagesTab = "Pipeline Stage Names"

var (
	stageIDHeaders   = []string{"pipeline stage id", "pipeline_stage_id", "stage_id", "stage id"}
	stageNameHeaders = []string{"stage", "stage_name", "stage name", "pipeline_stage"}
	baIDHeaders      = []string{"ghl user id", "ghl_user_id", "user_id", "user id", "ba_id", "ba id", "assigned_to"}
	baNameHeaders    = []string{"friendly name", "friendly_name", "ba_name", "ba name", "name"}
)

// Lookups map GHL IDs to display names for the admin dropdowns.
type Lookups struct {
	BA    map[string]string `json:"baLookup"`
	Stage map[string]string `json:"stageLookup"`
}

// AdminLookups reads the ID to name tables from the admin sheet.
type AdminLookups struct {
	client        *Client
	spreadsheetID string
}

func NewAdminLookups(client *Client, spreadsheetID string) *AdminLookups {
	return &AdminLookups{client: client, spreadsheetID: spreadsheetID}
}

// Lookups reads both tables. A tab that cannot be read or lacks the expected
// headers leaves its map empty.
func (a *AdminLookups) Lookups(ctx context.Context) (Lookups, error) {
	if a.client == nil || a.spreadsheetID == "" {
		return Lookups{}, fmt.Errorf("%w: GOOGLE_SHEET_ID_ADMIN environment variable is not set", ErrNotConfigured)
	}
	return Lookups{
		Stage: a.table(ctx, stagesTab, stageIDHeaders, stageNameHeaders),
		BA:    a.table(ctx, sourcersTab, baIDHeaders, baNameHeaders),
	}, nil
}

func (a *AdminLookups) table(ctx context.Context, tab string, idHeaders, nameHeaders []string) map[string]string {
	out := map[string]string{}
	logger := log.WithFields(log.Fields{"tab": tab})

	rows, err := a.client.readRows(ctx, a.spreadsheetID, tab+"!A:Z")
	if err != nil {
		logger.WithField("event", "lookup_read_failed").WithError(err).Warn("Could not read lookup tab")
		return out
	}
	if len(rows) == 0 {
		return out
	}
	table, ok := LookupTable(rows, idHeaders, nameHeaders)
	if !ok {
		headers := make([]string, len(rows[0]))
		for i := range rows[0] {
			headers[i] = cell(rows[0], i)
		}
		logger.WithField("event", "lookup_headers_missing").Warn("Lookup columns not found. Available columns: " + strings.Join(headers, ", "))
	}
	return table
}

// LookupTable maps the ID column to the name column, finding both by header
// in the first row. Rows missing either value are skipped. The boolean is
// false when either header is absent.
func LookupTable(rows [][]interface{}, idHeaders, nameHeaders []string) (map[string]string, bool) {
	out := map[string]string{}
	if len(rows) == 0 {
		return out, false
	}
	idCol := headerIndex(rows[0], idHeaders)
	nameCol := headerIndex(rows[0], nameHeaders)
	if idCol < 0 || nameCol < 0 {
		return out, false
	}
	for _, row := range rows[1:] {
		id := strings.TrimSpace(cell(row, idCol))
		name := strings.TrimSpace(cell(row, nameCol))
		if id != "" && name != "" {
			out[id] = name
		}
	}
	return out, true
}

func headerIndex(header []interface{}, names []string) int {
	for i := range header {
		h := strings.ToLower(cell(header, i))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}
