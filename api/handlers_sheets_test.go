package handler

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertypackaging/internal/openai"
	"propertypackaging/internal/pdfmeta"
	"propertypackaging/internal/sheets"
)

func strPtr(s string) *string { return &s }

func TestMarketRoutesNotConfigured(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))
	w, env := doRequest(t, r, http.MethodGet, "/api/market-performance/lookup?suburbName=Urangan&state=QLD", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "GOOGLE_SHEET_ID_MARKET_PERFORMANCE environment variable is not set", env.Error)
}

func TestMarketLookupGetAndPost(t *testing.T) {
	svcs := newTestServices(t)
	days := 12
	market := &fakeMarket{lookup: sheets.MarketLookup{Found: true, DaysSinceLastCheck: &days}}
	svcs.Market = market
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodGet, "/api/market-performance/lookup?suburbName=Urangan&state=QLD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got sheets.MarketLookup
	decodeData(t, env, &got)
	assert.True(t, got.Found)
	assert.Equal(t, 12, *got.DaysSinceLastCheck)

	w, _ = doRequest(t, r, http.MethodPost, "/market-performance/lookup", gin.H{"suburbName": "Pialba", "state": "QLD"})
	require.Equal(t, http.StatusOK, w.Code)

	want := []marketCall{
		{method: "Lookup", suburb: "Urangan", state: "QLD"},
		{method: "Lookup", suburb: "Pialba", state: "QLD"},
	}
	if diff := cmp.Diff(want, market.calls, cmp.AllowUnexported(marketCall{})); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	w, env = doRequest(t, r, http.MethodGet, "/api/market-performance/lookup?suburbName=Urangan", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Suburb name and state are required", env.Error)
}

func TestMarketSave(t *testing.T) {
	svcs := newTestServices(t)
	market := &fakeMarket{}
	svcs.Market = market
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/market-performance/save", gin.H{"suburbName": "Urangan", "state": "QLD", "dataSource": "SPI"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Suburb name, state, data, and dataSource are required", env.Error)

	w, env = doRequest(t, r, http.MethodPost, "/api/market-performance/save", gin.H{
		"suburbName": "Urangan", "state": "QLD", "dataSource": "ABS", "data": gin.H{"medianYield": "5.1%"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "dataSource must be SPI, REI, or BOTH", env.Error)
	assert.Empty(t, market.calls)

	w, env = doRequest(t, r, http.MethodPost, "/api/market-performance/save", gin.H{
		"suburbName": "Urangan",
		"state":      "QLD",
		"dataSource": "BOTH",
		"changedBy":  "will@buyersclub.com.au",
		"data":       gin.H{"medianYield": "5.1%", "vacancyRate": "0.8%"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Market performance data saved", env.Message)

	want := marketCall{
		method:    "SaveAndLog",
		suburb:    "Urangan",
		state:     "QLD",
		source:    sheets.SourceBoth,
		changedBy: "will@buyersclub.com.au",
		fields:    sheets.MarketFields{MedianYield: strPtr("5.1%"), VacancyRate: strPtr("0.8%")},
	}
	require.Len(t, market.calls, 1)
	if diff := cmp.Diff(want, market.calls[0], cmp.AllowUnexported(marketCall{})); diff != "" {
		t.Errorf("save mismatch (-want +got):\n%s", diff)
	}
}

func TestMarketTimestamps(t *testing.T) {
	svcs := newTestServices(t)
	market := &fakeMarket{}
	svcs.Market = market
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/market-performance/update-timestamp", gin.H{"suburbName": "Urangan", "state": "QLD"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User email (changedBy) is required", env.Error)

	w, env = doRequest(t, r, http.MethodPost, "/api/market-performance/update-timestamp-source", gin.H{
		"suburbName": "Urangan", "state": "QLD", "source": "BOTH", "changedBy": "will@buyersclub.com.au",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Source must be either SPI or REI", env.Error)

	w, env = doRequest(t, r, http.MethodPost, "/api/market-performance/update-timestamp-source", gin.H{
		"suburbName": "Urangan", "state": "QLD", "source": "REI", "changedBy": "will@buyersclub.com.au",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "REI timestamp updated", env.Message)

	w, _ = doRequest(t, r, http.MethodPost, "/api/market-performance/update-timestamp", gin.H{
		"suburbName": "Urangan", "state": "QLD", "changedBy": "will@buyersclub.com.au",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, r, http.MethodPost, "/api/market-performance/log-proceeded", gin.H{
		"suburbName": "Urangan", "state": "QLD", "daysSinceLastCheck": 45, "changedBy": "will@buyersclub.com.au",
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, market.calls, 3)
	assert.Equal(t, "VerifySource", market.calls[0].method)
	assert.Equal(t, sheets.SourceREI, market.calls[0].source)
	assert.Equal(t, "Verify", market.calls[1].method)
	assert.Equal(t, "LogProceeded", market.calls[2].method)
	assert.Equal(t, 45, market.calls[2].days)
}

func TestHighlightsSaveMapsRequest(t *testing.T) {
	svcs := newTestServices(t)
	hl := &fakeHighlights{}
	svcs.Highlights = hl
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/investment-highlights/save", gin.H{
		"suburbs": []string{"Urangan"}, "state": "QLD", "reportName": "Fraser Coast",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Report name and valid period are required", env.Error)

	w, env = doRequest(t, r, http.MethodPost, "/api/investment-highlights/save", gin.H{
		"suburbs": []string{" ", ""}, "state": "QLD", "reportName": "Fraser Coast", "validPeriod": "October 2025 - January 2026",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Suburbs and state are required", env.Error)

	w, env = doRequest(t, r, http.MethodPost, "/api/investment-highlights/save", gin.H{
		"suburbs":     []string{"Urangan", " Pialba ", ""},
		"lga":         "Fraser Coast Regional",
		"state":       "QLD",
		"reportName":  "Fraser Coast",
		"validPeriod": "October 2025 - January 2026",
		"mainBody":    "Strong tourism and health sector growth",
		"pdfLink":     "https://drive.google.com/file/d/f1/view",
		"fileId":      "f1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Investment highlights saved", env.Message)

	assert.Equal(t, "Fraser Coast Regional", hl.lga)
	assert.Equal(t, "Urangan", hl.suburb)
	assert.Equal(t, "QLD", hl.state)
	want := sheets.ReportFields{
		Suburbs:      strPtr("Urangan, Pialba"),
		ReportName:   strPtr("Fraser Coast"),
		ValidPeriod:  strPtr("October 2025 - January 2026"),
		MainBody:     strPtr("Strong tourism and health sector growth"),
		PDFDriveLink: strPtr("https://drive.google.com/file/d/f1/view"),
		PDFFileID:    strPtr("f1"),
	}
	if diff := cmp.Diff(want, hl.fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestHighlightsSaveKeepsReportSections(t *testing.T) {
	svcs := newTestServices(t)
	hl := &fakeHighlights{}
	svcs.Highlights = hl
	r := newTestRouter(t, svcs)

	w, _ := doRequest(t, r, http.MethodPost, "/investment-highlights/save", gin.H{
		"suburbs":      []string{"Geelong", "Belmont"},
		"state":        "VIC",
		"reportName":   "Geelong",
		"validPeriod":  "March - June 2026",
		"transport":    "**$1 billion** Rail duplication",
		"pdfDriveLink": "https://drive.google.com/file/d/old/view",
		"pdfFileId":    "old",
	})
	require.Equal(t, http.StatusOK, w.Code)

	want := sheets.ReportFields{
		Suburbs:      strPtr("Geelong, Belmont"),
		ReportName:   strPtr("Geelong"),
		ValidPeriod:  strPtr("March - June 2026"),
		Transport:    strPtr("**$1 billion** Rail duplication"),
		PDFDriveLink: strPtr("https://drive.google.com/file/d/old/view"),
		PDFFileID:    strPtr("old"),
	}
	if diff := cmp.Diff(want, hl.fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, hl.fields.MainBody)
	assert.Equal(t, "Geelong", hl.suburb)
}

func TestHighlightsLookupAndList(t *testing.T) {
	svcs := newTestServices(t)
	hl := &fakeHighlights{
		lookup: sheets.HighlightsLookup{Found: false},
		list:   sheets.ReportList{Reports: map[string][]sheets.ReportListItem{}, States: []string{}},
	}
	svcs.Highlights = hl
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodGet, "/api/investment-highlights/lookup?suburb=Urangan", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "State and a suburb or LGA are required", env.Error)

	w, _ = doRequest(t, r, http.MethodGet, "/api/investment-highlights/lookup?lga=Fraser+Coast&state=QLD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"", "Fraser Coast", "QLD"}, hl.lookedUp)

	w, env = doRequest(t, r, http.MethodGet, "/investment-highlights/list-reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list sheets.ReportList
	decodeData(t, env, &list)
	assert.Zero(t, list.TotalReports)
}

func TestExtractMetadataFromText(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))
	text := "HOTSPOTTING\n\nFraser Coast\nOctober 2025 - January 2026\nPopulation growth context..."

	w, env := doRequest(t, r, http.MethodPost, "/api/investment-highlights/extract-metadata", gin.H{"text": text})
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		pdfmeta.Metadata
		Text string `json:"text"`
	}
	decodeData(t, env, &got)
	assert.Equal(t, "Fraser Coast", got.ReportName)
	assert.Equal(t, "October 2025 - January 2026", got.ValidPeriod)
	assert.Equal(t, text, got.Text)

	w, env = doRequest(t, r, http.MethodPost, "/api/investment-highlights/extract-metadata", gin.H{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No text provided", env.Error)
}

func multipartRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField(field, string(content)))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestExtractMetadataUpload(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/investment-highlights/extract-metadata", "note", "", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No file provided")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/investment-highlights/extract-metadata", "file", "report.pdf", []byte("this is not a pdf document")))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to extract text from PDF")
}

func TestParseWithAI(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodPost, "/api/investment-highlights/parse-with-ai", gin.H{"text": "report body"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "AI parsing not configured. Please enter information manually.", env.Error)

	svcs.AI = &fakeAI{parsed: openai.ParsedReport{ReportName: "Fraser Coast", ValidPeriod: "October 2025 - January 2026", MainBody: "summary"}}
	w, env = doRequest(t, r, http.MethodPost, "/api/investment-highlights/parse-with-ai", gin.H{"text": "report body"})
	require.Equal(t, http.StatusOK, w.Code)
	var got openai.ParsedReport
	decodeData(t, env, &got)
	assert.Equal(t, "summary", got.MainBody)

	w, env = doRequest(t, r, http.MethodPost, "/api/investment-highlights/parse-with-ai", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No text provided", env.Error)
}

func TestValidatePeriod(t *testing.T) {
	r := newTestRouter(t, newTestServices(t))

	w, env := doRequest(t, r, http.MethodPost, "/api/investment-highlights/validate-period", gin.H{"validPeriod": "not a period"})
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	decodeData(t, env, &got)
	assert.Equal(t, false, got["isValid"])
	assert.Contains(t, got, "displayText")
}

func TestAddSuburb(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)
	body := gin.H{"suburb": " Pialba ", "state": "QLD", "reportName": "Fraser Coast"}

	w, env := doRequest(t, r, http.MethodPost, "/api/investment-highlights/add-suburb", gin.H{"suburb": "Pialba", "state": "QLD"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Suburb, state, and report name are required", env.Error)

	w, _ = doRequest(t, r, http.MethodPost, "/api/investment-highlights/add-suburb", body)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	hl := &fakeHighlights{merged: "Urangan, Pialba", isNew: true}
	svcs.Highlights = hl
	w, env = doRequest(t, r, http.MethodPost, "/investment-highlights/add-suburb", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `Suburb "Pialba" added to report`, env.Message)
	assert.Equal(t, []string{"Fraser Coast", "QLD", "Pialba"}, hl.added)
	var got map[string]string
	decodeData(t, env, &got)
	assert.Equal(t, "Urangan, Pialba", got["updatedSuburbs"])

	hl.isNew = false
	_, env = doRequest(t, r, http.MethodPost, "/api/investment-highlights/add-suburb", body)
	assert.Equal(t, `Suburb "Pialba" already in report`, env.Message)

	hl.err = sheets.ErrNotFound
	w, env = doRequest(t, r, http.MethodPost, "/api/investment-highlights/add-suburb", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Report not found", env.Error)
}

func stubPDFText(t *testing.T, text string, err error) {
	t.Helper()
	orig := extractPDFText
	extractPDFText = func(io.ReaderAt, int64) (string, error) { return text, err }
	t.Cleanup(func() { extractPDFText = orig })
}

func TestGenerateSummary(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)
	path := "/api/investment-highlights/generate-summary"

	w, env := doRequest(t, r, http.MethodPost, path, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File ID is required", env.Error)

	w, _ = doRequest(t, r, http.MethodPost, path, gin.H{"fileId": "pdf-1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	files := &fakeDownloads{data: []byte("%PDF-1.4")}
	svcs.Files = files
	w, env = doRequest(t, r, http.MethodPost, path, gin.H{"fileId": "pdf-1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "OPENAI_API_KEY environment variable is not set", env.Error)

	ai := &fakeAI{infra: openai.InfrastructureSummary{
		Sections: openai.ReportSections{Transport: "**$2.5 billion** Bruce Highway upgrade"},
		MainBody: "**Transport:**\n**$2.5 billion** Bruce Highway upgrade",
	}}
	svcs.AI = ai
	report := strings.Repeat("Hervey Bay hospital and highway projects. ", 5)
	stubPDFText(t, report, nil)

	w, env = doRequest(t, r, http.MethodPost, path, gin.H{"fileId": "pdf-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf-1", files.fileID)
	assert.Equal(t, report, ai.summarised)
	var got openai.InfrastructureSummary
	decodeData(t, env, &got)
	assert.Equal(t, ai.infra, got)

	ai.err = openai.ErrRateLimited
	w, _ = doRequest(t, r, http.MethodPost, path, gin.H{"fileId": "pdf-1"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGenerateSummaryUnreadablePDF(t *testing.T) {
	svcs := newTestServices(t)
	svcs.AI = &fakeAI{}
	files := &fakeDownloads{err: errors.New("404 file not found")}
	svcs.Files = files
	r := newTestRouter(t, svcs)
	path := "/investment-highlights/generate-summary"

	w, env := doRequest(t, r, http.MethodPost, path, gin.H{"fileId": "missing"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to download PDF from Google Drive", env.Error)

	files.err = nil
	files.data = []byte("not a pdf")
	w, env = doRequest(t, r, http.MethodPost, path, gin.H{"fileId": "pdf-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "PDF text extraction failed or returned insufficient text", env.Error)

	stubPDFText(t, "Cover page only", nil)
	w, _ = doRequest(t, r, http.MethodPost, path, gin.H{"fileId": "pdf-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLookups(t *testing.T) {
	svcs := newTestServices(t)
	r := newTestRouter(t, svcs)

	w, env := doRequest(t, r, http.MethodGet, "/api/lookups", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "GOOGLE_SHEET_ID_ADMIN environment variable is not set", env.Error)

	svcs.Lookups = fakeLookups{lookups: sheets.Lookups{
		BA:    map[string]string{"u-1": "Will"},
		Stage: map[string]string{"stg-1": "Packaging"},
	}}
	w, env = doRequest(t, r, http.MethodGet, "/lookups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]map[string]string
	decodeData(t, env, &got)
	assert.Equal(t, "Will", got["baLookup"]["u-1"])
	assert.Equal(t, "Packaging", got["stageLookup"]["stg-1"])

	svcs.Lookups = fakeLookups{err: sheets.ErrNotConfigured}
	w, env = doRequest(t, r, http.MethodGet, "/api/lookups", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to load lookup data", env.Error)
}
