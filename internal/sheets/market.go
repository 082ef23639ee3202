package sheets

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/api/sheets/v4"

	log "propertypackaging/internal/logging"
)

const (
	marketTab    = "Market Performance"
	marketLogTab = "Market Performance Log"
	mockData     = "Mock Data"

	spiSite = "smartpropertyinvestment.com.au"
	reiSite = "info.realestateinvestar.com.au"

	// Columns A-L: suburb, state, SPI date, REI date, then the eight metrics.
	colSPIDate      = 2
	colREIDate      = 3
	colFirstMetric  = 4
	marketRowOffset = 2
)

// spiMetrics are the metric indexes (3 and 5 year price change) sourced from
// Smart Property Investment. Every other metric comes from Real Estate Investar.
var spiMetrics = map[int]bool{2: true, 3: true}

type DataSource string

const (
	SourceSPI  DataSource = "SPI"
	SourceREI  DataSource = "REI"
	SourceBoth DataSource = "BOTH"
)

func (s DataSource) Valid() bool {
	return s == SourceSPI || s == SourceREI || s == SourceBoth
}

func (s DataSource) includesSPI() bool { return s == SourceSPI || s == SourceBoth }
func (s DataSource) includesREI() bool { return s == SourceREI || s == SourceBoth }

func (s DataSource) label() string {
	switch s {
	case SourceSPI:
		return "Smart Property Investment"
	case SourceREI:
		return "Real Estate Investar"
	}
	return "Both"
}

type ActionType string

const (
	ActionCollected ActionType = "COLLECTED"
	ActionUpdated   ActionType = "UPDATED"
	ActionVerified  ActionType = "VERIFIED"
)

// MarketMetrics are the eight suburb statistics, in sheet column order.
type MarketMetrics struct {
	MedianPriceChange3Months string `json:"medianPriceChange3Months"`
	MedianPriceChange1Year   string `json:"medianPriceChange1Year"`
	MedianPriceChange3Year   string `json:"medianPriceChange3Year"`
	MedianPriceChange5Year   string `json:"medianPriceChange5Year"`
	MedianYield              string `json:"medianYield"`
	MedianRentChange1Year    string `json:"medianRentChange1Year"`
	RentalPopulation         string `json:"rentalPopulation"`
	VacancyRate              string `json:"vacancyRate"`
}

func (m *MarketMetrics) fields() []*string {
	return []*string{
		&m.MedianPriceChange3Months, &m.MedianPriceChange1Year, &m.MedianPriceChange3Year, &m.MedianPriceChange5Year,
		&m.MedianYield, &m.MedianRentChange1Year, &m.RentalPopulation, &m.VacancyRate,
	}
}

// MarketFields is a partial update: nil fields are left untouched.
type MarketFields struct {
	MedianPriceChange3Months *string `json:"medianPriceChange3Months,omitempty"`
	MedianPriceChange1Year   *string `json:"medianPriceChange1Year,omitempty"`
	MedianPriceChange3Year   *string `json:"medianPriceChange3Year,omitempty"`
	MedianPriceChange5Year   *string `json:"medianPriceChange5Year,omitempty"`
	MedianYield              *string `json:"medianYield,omitempty"`
	MedianRentChange1Year    *string `json:"medianRentChange1Year,omitempty"`
	RentalPopulation         *string `json:"rentalPopulation,omitempty"`
	VacancyRate              *string `json:"vacancyRate,omitempty"`
}

func (f MarketFields) values() []*string {
	return []*string{
		f.MedianPriceChange3Months, f.MedianPriceChange1Year, f.MedianPriceChange3Year, f.MedianPriceChange5Year,
		f.MedianYield, f.MedianRentChange1Year, f.RentalPopulation, f.VacancyRate,
	}
}

type MarketData struct {
	SuburbName       string `json:"suburbName"`
	State            string `json:"state"`
	DataSource       string `json:"dataSource"`
	DateCollectedSPI string `json:"dateCollectedSPI"`
	DateCollectedREI string `json:"dateCollectedREI"`
	MarketMetrics
}

type MarketLookup struct {
	Found              bool        `json:"found"`
	Data               *MarketData `json:"data,omitempty"`
	IsMockData         bool        `json:"isMockData"`
	DaysSinceLastCheck *int        `json:"daysSinceLastCheck,omitempty"`
}

// MarketLogEntry is one row of the audit tab. Metrics hold only the values
// that changed or were verified; the rest stay blank.
type MarketLogEntry struct {
	SuburbName string
	State      string
	Action     ActionType
	ChangedBy  string
	Timestamp  time.Time
	Metrics    MarketMetrics
	Notes      string
}

// MarketStore is the market performance spreadsheet.
type MarketStore struct {
	client        *Client
	spreadsheetID string
}

func NewMarketStore(client *Client, spreadsheetID string) *MarketStore {
	return &MarketStore{client: client, spreadsheetID: spreadsheetID}
}

func (s *MarketStore) rows(ctx context.Context) ([][]interface{}, error) {
	if s.client == nil || s.spreadsheetID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_SHEET_ID_MARKET_PERFORMANCE environment variable is not set", ErrNotConfigured)
	}
	return s.client.readRows(ctx, s.spreadsheetID, marketTab+"!A2:L")
}

func findMarketRow(rows [][]interface{}, suburb, state string) int {
	suburb = strings.ToLower(strings.TrimSpace(suburb))
	state = strings.ToUpper(strings.TrimSpace(state))
	for i, row := range rows {
		if strings.ToLower(strings.TrimSpace(cell(row, 0))) == suburb &&
			strings.ToUpper(strings.TrimSpace(cell(row, 1))) == state {
			return i
		}
	}
	return -1
}

// Lookup finds the row for a suburb, ignoring case and surrounding spaces.
func (s *MarketStore) Lookup(ctx context.Context, suburb, state string) (MarketLookup, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return MarketLookup{}, err
	}
	idx := findMarketRow(rows, suburb, state)
	if idx < 0 {
		return MarketLookup{Found: false}, nil
	}
	return s.lookupResult(rows[idx], s.client.now()), nil
}

func (s *MarketStore) lookupResult(row []interface{}, now time.Time) MarketLookup {
	data := &MarketData{
		SuburbName:       cell(row, 0),
		State:            cell(row, 1),
		DateCollectedSPI: sheetDate(row, colSPIDate),
		DateCollectedREI: sheetDate(row, colREIDate),
	}
	for i, f := range data.MarketMetrics.fields() {
		*f = cell(row, colFirstMetric+i)
	}

	var sources []string
	if data.DateCollectedSPI != "" && data.DateCollectedSPI != mockData {
		sources = append(sources, spiSite)
	}
	if data.DateCollectedREI != "" && data.DateCollectedREI != mockData {
		sources = append(sources, reiSite)
	}
	data.DataSource = strings.Join(sources, ", ")
	if data.DataSource == "" {
		data.DataSource = mockData
	}

	result := MarketLookup{
		Found: true,
		Data:  data,
		IsMockData: data.DateCollectedSPI == mockData || data.DateCollectedREI == mockData ||
			(data.DateCollectedSPI == "" && data.DateCollectedREI == ""),
	}

	var latest time.Time
	for _, d := range []string{data.DateCollectedSPI, data.DateCollectedREI} {
		if t, ok := parseCheckDate(d); ok && t.After(latest) {
			latest = t
		}
	}
	if !latest.IsZero() {
		days := int(math.Floor(now.Sub(latest).Hours() / 24))
		result.DaysSinceLastCheck = &days
	}
	return result
}

// Save writes a suburb's metrics. An existing row gets today's date in the
// collected column of each source plus every provided field; a new suburb is
// appended as a full row.
func (s *MarketStore) Save(ctx context.Context, suburb, state string, fields MarketFields, source DataSource) error {
	rows, err := s.rows(ctx)
	if err != nil {
		return err
	}
	today := s.client.today()

	idx := findMarketRow(rows, suburb, state)
	if idx < 0 {
		row := []interface{}{suburb, state, "", ""}
		if source.includesSPI() {
			row[colSPIDate] = today
		}
		if source.includesREI() {
			row[colREIDate] = today
		}
		for _, v := range fields.values() {
			if v != nil {
				row = append(row, *v)
			} else {
				row = append(row, "")
			}
		}
		return s.client.appendRow(ctx, s.spreadsheetID, marketTab+"!A:L", row)
	}

	rowNum := idx + marketRowOffset
	var updates []*sheets.ValueRange
	if source.includesSPI() {
		updates = append(updates, cellRange(marketCell(colSPIDate, rowNum), today))
	}
	if source.includesREI() {
		updates = append(updates, cellRange(marketCell(colREIDate, rowNum), today))
	}
	for i, v := range fields.values() {
		if v != nil {
			updates = append(updates, cellRange(marketCell(colFirstMetric+i, rowNum), *v))
		}
	}
	return s.client.batchUpdate(ctx, s.spreadsheetID, inputRaw, updates)
}

// UpdateTimestamp marks a suburb as checked today. Each source's date moves
// only when the row holds data from that source.
func (s *MarketStore) UpdateTimestamp(ctx context.Context, suburb, state string) error {
	rows, err := s.rows(ctx)
	if err != nil {
		return err
	}
	idx := findMarketRow(rows, suburb, state)
	if idx < 0 {
		return ErrNotFound
	}

	var hasSPI, hasREI bool
	for i := 0; i < 8; i++ {
		if cell(rows[idx], colFirstMetric+i) == "" {
			continue
		}
		if spiMetrics[i] {
			hasSPI = true
		} else {
			hasREI = true
		}
	}

	rowNum := idx + marketRowOffset
	today := s.client.today()
	var updates []*sheets.ValueRange
	if hasSPI {
		updates = append(updates, cellRange(marketCell(colSPIDate, rowNum), today))
	}
	if hasREI {
		updates = append(updates, cellRange(marketCell(colREIDate, rowNum), today))
	}
	return s.client.batchUpdate(ctx, s.spreadsheetID, inputRaw, updates)
}

// UpdateTimestampForSource moves the collected date of a single source.
func (s *MarketStore) UpdateTimestampForSource(ctx context.Context, suburb, state string, source DataSource) error {
	col := colREIDate
	switch source {
	case SourceSPI:
		col = colSPIDate
	case SourceREI:
	default:
		return fmt.Errorf("source must be SPI or REI, got %q", source)
	}

	rows, err := s.rows(ctx)
	if err != nil {
		return err
	}
	idx := findMarketRow(rows, suburb, state)
	if idx < 0 {
		return ErrNotFound
	}
	return s.client.updateCell(ctx, s.spreadsheetID, marketCell(col, idx+marketRowOffset), s.client.today())
}

// Log appends an audit row. A failed write is logged and otherwise ignored.
func (s *MarketStore) Log(ctx context.Context, entry MarketLogEntry) {
	if s.client == nil || s.spreadsheetID == "" {
		return
	}
	row := []interface{}{
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.SuburbName,
		entry.State,
		string(entry.Action),
		entry.ChangedBy,
	}
	for _, f := range entry.Metrics.fields() {
		row = append(row, *f)
	}
	row = append(row, entry.Notes)

	if err := s.client.appendRow(ctx, s.spreadsheetID, marketLogTab+"!A:N", row); err != nil {
		log.WithFields(log.Fields{
			"event":  "market_log_failed",
			"suburb": entry.SuburbName,
			"error":  err.Error(),
		}).Warn("Failed to write market performance log row")
	}
}

// SaveAndLog saves fields and records the values that differ from what the
// sheet held before. The action is COLLECTED for a new suburb.
func (s *MarketStore) SaveAndLog(ctx context.Context, suburb, state string, fields MarketFields, source DataSource, changedBy string) error {
	before, err := s.Lookup(ctx, suburb, state)
	if err != nil {
		return err
	}
	if err := s.Save(ctx, suburb, state, fields, source); err != nil {
		return err
	}

	entry := s.logEntry(suburb, state, ActionCollected, changedBy)
	entry.Notes = "Data source: " + source.label()
	var old MarketMetrics
	if before.Found {
		entry.Action = ActionUpdated
		old = before.Data.MarketMetrics
	}
	oldValues := old.fields()
	changed := entry.Metrics.fields()
	for i, v := range fields.values() {
		if v != nil && *v != *oldValues[i] {
			*changed[i] = *v
		}
	}
	s.Log(ctx, entry)
	return nil
}

// Verify marks the suburb's data as still valid and logs its current values.
func (s *MarketStore) Verify(ctx context.Context, suburb, state, changedBy string) error {
	current, err := s.Lookup(ctx, suburb, state)
	if err != nil {
		return err
	}
	if err := s.UpdateTimestamp(ctx, suburb, state); err != nil {
		return err
	}

	entry := s.logEntry(suburb, state, ActionVerified, changedBy)
	entry.Notes = "Data verified as still valid"
	if current.Found {
		entry.Metrics = current.Data.MarketMetrics
	}
	s.Log(ctx, entry)
	return nil
}

// VerifySource is Verify for one source, logging only that source's metrics.
func (s *MarketStore) VerifySource(ctx context.Context, suburb, state string, source DataSource, changedBy string) error {
	current, err := s.Lookup(ctx, suburb, state)
	if err != nil {
		return err
	}
	if err := s.UpdateTimestampForSource(ctx, suburb, state, source); err != nil {
		return err
	}

	other := SourceSPI
	if source == SourceSPI {
		other = SourceREI
	}
	entry := s.logEntry(suburb, state, ActionVerified, changedBy)
	entry.Notes = fmt.Sprintf("%s data verified as still valid (checked when updating %s data)", source, other)
	if current.Found {
		src := current.Data.MarketMetrics.fields()
		dst := entry.Metrics.fields()
		for i := range src {
			if spiMetrics[i] == (source == SourceSPI) {
				*dst[i] = *src[i]
			}
		}
	}
	s.Log(ctx, entry)
	return nil
}

// LogProceeded records that a packager moved on without refreshing stale data.
func (s *MarketStore) LogProceeded(ctx context.Context, suburb, state string, daysSinceLastCheck int, changedBy string) {
	entry := s.logEntry(suburb, state, ActionVerified, changedBy)
	entry.Notes = fmt.Sprintf("Proceeded without checking data. Data was %d days old.", daysSinceLastCheck)
	s.Log(ctx, entry)
}

func (s *MarketStore) logEntry(suburb, state string, action ActionType, changedBy string) MarketLogEntry {
	if changedBy == "" {
		changedBy = "Unknown"
	}
	now := time.Now()
	if s.client != nil {
		now = s.client.now()
	}
	return MarketLogEntry{
		SuburbName: suburb,
		State:      state,
		Action:     action,
		ChangedBy:  changedBy,
		Timestamp:  now,
	}
}

func marketCell(col, row int) string {
	return fmt.Sprintf("%s!%s%d", marketTab, column(col), row)
}

// sheetDate reads a date cell, converting serial numbers to YYYY-MM-DD.
func sheetDate(row []interface{}, i int) string {
	if i < len(row) {
		if serial, ok := row[i].(float64); ok {
			return serialEpoch.AddDate(0, 0, int(serial)).Format(dateLayout)
		}
	}
	return cell(row, i)
}

// checkDateLayouts are tried in order; month-first wins for ambiguous
// slash dates, day-first catches the rest.
var checkDateLayouts = []string{
	dateLayout,
	"2006-1-2",
	time.RFC3339,
	"1/2/2006",
	"2/1/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

func parseCheckDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == mockData {
		return time.Time{}, false
	}
	for _, layout := range checkDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
