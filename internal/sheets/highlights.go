package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/api/sheets/v4"

	"propertypackaging/internal/reportdate"
)

const (
	highlightsTab = "Investment Highlights"

	// A suburbs, B state, C-O report content, P display name.
	colReportName   = 2
	colPDFFileID    = 14
	colDisplayName  = 15
	highlightsWidth = 15
)

// Report is one Hotspotting investment highlights report. Suburbs is the
// comma-separated list of suburbs the report covers.
type Report struct {
	Suburbs                 string `json:"suburbs"`
	State                   string `json:"state"`
	ReportName              string `json:"reportName"`
	ValidPeriod             string `json:"validPeriod"`
	MainBody                string `json:"mainBody"`
	ExtraInfo               string `json:"extraInfo"`
	PopulationGrowthContext string `json:"populationGrowthContext"`
	Residential             string `json:"residential"`
	Industrial              string `json:"industrial"`
	CommercialAndCivic      string `json:"commercialAndCivic"`
	HealthAndEducation      string `json:"healthAndEducation"`
	Transport               string `json:"transport"`
	JobImplications         string `json:"jobImplications"`
	PDFDriveLink            string `json:"pdfDriveLink"`
	PDFFileID               string `json:"pdfFileId"`
	DisplayName             string `json:"displayName,omitempty"`
}

// content covers columns C-P in order.
func (r *Report) content() []*string {
	return []*string{
		&r.ReportName, &r.ValidPeriod, &r.MainBody, &r.ExtraInfo,
		&r.PopulationGrowthContext, &r.Residential, &r.Industrial, &r.CommercialAndCivic,
		&r.HealthAndEducation, &r.Transport, &r.JobImplications,
		&r.PDFDriveLink, &r.PDFFileID, &r.DisplayName,
	}
}

// ReportFields is a partial report; nil fields are not written.
type ReportFields struct {
	Suburbs                 *string `json:"suburbs,omitempty"`
	ReportName              *string `json:"reportName,omitempty"`
	ValidPeriod             *string `json:"validPeriod,omitempty"`
	MainBody                *string `json:"mainBody,omitempty"`
	ExtraInfo               *string `json:"extraInfo,omitempty"`
	PopulationGrowthContext *string `json:"populationGrowthContext,omitempty"`
	Residential             *string `json:"residential,omitempty"`
	Industrial              *string `json:"industrial,omitempty"`
	CommercialAndCivic      *string `json:"commercialAndCivic,omitempty"`
	HealthAndEducation      *string `json:"healthAndEducation,omitempty"`
	Transport               *string `json:"transport,omitempty"`
	JobImplications         *string `json:"jobImplications,omitempty"`
	PDFDriveLink            *string `json:"pdfDriveLink,omitempty"`
	PDFFileID               *string `json:"pdfFileId,omitempty"`
}

// content covers columns C-O in order.
func (f ReportFields) content() []*string {
	return []*string{
		f.ReportName, f.ValidPeriod, f.MainBody, f.ExtraInfo,
		f.PopulationGrowthContext, f.Residential, f.Industrial, f.CommercialAndCivic,
		f.HealthAndEducation, f.Transport, f.JobImplications,
		f.PDFDriveLink, f.PDFFileID,
	}
}

type HighlightsLookup struct {
	Found bool    `json:"found"`
	Data  *Report `json:"data,omitempty"`
	// Current is false once the report's valid period has ended.
	Current bool `json:"isCurrent"`
}

type ReportListItem struct {
	FileID      string            `json:"fileId"`
	DisplayName string            `json:"displayName"`
	ReportName  string            `json:"reportName"`
	State       string            `json:"state"`
	ValidPeriod string            `json:"validPeriod"`
	Suburbs     []string          `json:"suburbs"`
	DateStatus  reportdate.Result `json:"dateStatus"`
}

// ReportList groups reports by upper-case state, each group sorted by name.
type ReportList struct {
	Reports      map[string][]ReportListItem `json:"reports"`
	States       []string                    `json:"states"`
	TotalReports int                         `json:"totalReports"`
}

// HighlightsStore is the investment highlights spreadsheet.
type HighlightsStore struct {
	client        *Client
	spreadsheetID string
}

func NewHighlightsStore(client *Client, spreadsheetID string) *HighlightsStore {
	return &HighlightsStore{client: client, spreadsheetID: spreadsheetID}
}

func (s *HighlightsStore) rows(ctx context.Context) ([][]interface{}, error) {
	if s.client == nil || s.spreadsheetID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_SHEET_ID_INVESTMENT_HIGHLIGHTS environment variable is not set", ErrNotConfigured)
	}
	return s.client.readRows(ctx, s.spreadsheetID, highlightsTab+"!A2:P")
}

func splitSuburbs(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// findReportRow matches on state, then on the suburb or the LGA appearing in
// the row's suburb list.
func findReportRow(rows [][]interface{}, lga, suburb, state string) int {
	lga = strings.ToLower(strings.TrimSpace(lga))
	suburb = strings.ToLower(strings.TrimSpace(suburb))
	state = strings.ToUpper(strings.TrimSpace(state))

	for i, row := range rows {
		if strings.ToUpper(strings.TrimSpace(cell(row, 1))) != state {
			continue
		}
		for _, name := range splitSuburbs(cell(row, 0)) {
			name = strings.ToLower(name)
			if (suburb != "" && name == suburb) || (lga != "" && name == lga) {
				return i
			}
		}
	}
	return -1
}

func reportFromRow(row []interface{}) *Report {
	r := &Report{Suburbs: cell(row, 0), State: cell(row, 1)}
	for i, f := range r.content() {
		*f = cell(row, colReportName+i)
	}
	return r
}

func (s *HighlightsStore) Lookup(ctx context.Context, suburb, lga, state string) (HighlightsLookup, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return HighlightsLookup{}, err
	}
	idx := findReportRow(rows, lga, suburb, state)
	if idx < 0 {
		return HighlightsLookup{Found: false}, nil
	}
	r := reportFromRow(rows[idx])
	return HighlightsLookup{Found: true, Data: r, Current: reportdate.IsCurrent(r.ValidPeriod, s.client.now())}, nil
}

// Save merges suburb into the matching report row and writes the provided
// fields, or appends a new report when nothing matches.
func (s *HighlightsStore) Save(ctx context.Context, lga, suburb, state string, fields ReportFields) error {
	rows, err := s.rows(ctx)
	if err != nil {
		return err
	}

	idx := findReportRow(rows, lga, suburb, state)
	if idx < 0 {
		suburbs := strings.TrimSpace(suburb)
		if suburbs == "" {
			suburbs = strings.TrimSpace(lga)
		}
		if fields.Suburbs != nil && *fields.Suburbs != "" {
			suburbs = *fields.Suburbs
		}
		row := make([]interface{}, 0, highlightsWidth)
		row = append(row, suburbs, state)
		for _, v := range fields.content() {
			if v != nil {
				row = append(row, *v)
			} else {
				row = append(row, "")
			}
		}
		return s.client.appendRow(ctx, s.spreadsheetID, highlightsTab+"!A:O", row)
	}

	rowNum := idx + 2
	var updates []*sheets.ValueRange

	suburb = strings.TrimSpace(suburb)
	list := splitSuburbs(cell(rows[idx], 0))
	if suburb != "" && !containsFold(list, suburb) {
		list = append(list, suburb)
		updates = append(updates, cellRange(highlightsCell(0, rowNum), strings.Join(list, ", ")))
	}
	for i, v := range fields.content() {
		if v != nil {
			updates = append(updates, cellRange(highlightsCell(colReportName+i, rowNum), *v))
		}
	}
	return s.client.batchUpdate(ctx, s.spreadsheetID, inputRaw, updates)
}

// List returns every report with a stored PDF, for the report picker.
func (s *HighlightsStore) List(ctx context.Context) (ReportList, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return ReportList{}, err
	}

	now := s.client.now()
	list := ReportList{Reports: map[string][]ReportListItem{}, States: []string{}}
	for _, row := range rows {
		r := reportFromRow(row)
		if r.PDFFileID == "" {
			continue
		}
		item := ReportListItem{
			FileID:      r.PDFFileID,
			DisplayName: r.DisplayName,
			ReportName:  r.ReportName,
			State:       r.State,
			ValidPeriod: r.ValidPeriod,
			Suburbs:     splitSuburbs(r.Suburbs),
			DateStatus:  reportdate.Check(r.ValidPeriod, now),
		}
		if item.DisplayName == "" {
			item.DisplayName = r.ReportName
		}
		if item.Suburbs == nil {
			item.Suburbs = []string{}
		}
		state := strings.ToUpper(r.State)
		if state == "" {
			state = "UNKNOWN"
		}
		list.Reports[state] = append(list.Reports[state], item)
		list.TotalReports++
	}

	for state, items := range list.Reports {
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].DisplayName) < strings.ToLower(items[j].DisplayName)
		})
		list.States = append(list.States, state)
	}
	sort.Strings(list.States)
	return list, nil
}

func highlightsCell(col, row int) string {
	return fmt.Sprintf("%s!%s%d", highlightsTab, column(col), row)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// AddSuburb appends suburb to the suburb list of the report named reportName
// in state. It returns the resulting list and whether the suburb was new.
func (s *HighlightsStore) AddSuburb(ctx context.Context, reportName, state, suburb string) (string, bool, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return "", false, err
	}
	reportName = strings.ToLower(strings.TrimSpace(reportName))
	state = strings.ToUpper(strings.TrimSpace(state))
	suburb = strings.TrimSpace(suburb)

	idx := -1
	for i, row := range rows {
		if strings.ToLower(strings.TrimSpace(cell(row, colReportName))) == reportName &&
			strings.ToUpper(strings.TrimSpace(cell(row, 1))) == state {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false, ErrNotFound
	}

	existing := strings.TrimSpace(cell(rows[idx], 0))
	list := splitSuburbs(existing)
	if containsFold(list, suburb) {
		return existing, false, nil
	}
	updated := strings.Join(append(list, suburb), ", ")
	if err := s.client.updateCell(ctx, s.spreadsheetID, highlightsCell(0, idx+2), updated); err != nil {
		return "", false, err
	}
	return updated, true, nil
}
