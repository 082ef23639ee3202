package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"propertypackaging/internal/drive"
	log "propertypackaging/internal/logging"
	"propertypackaging/internal/openai"
	"propertypackaging/internal/pdfmeta"
	"propertypackaging/internal/reportdate"
	"propertypackaging/internal/sheets"
)

const (
	maxPDFUpload = 32 << 20

	// minReportText is the least text a report PDF must yield to be summarised.
	minReportText = 100
)

var extractPDFText = pdfmeta.ExtractText

func marketNotConfigured(c *gin.Context) {
	fail(c, http.StatusInternalServerError, "GOOGLE_SHEET_ID_MARKET_PERFORMANCE environment variable is not set", sheets.ErrNotConfigured)
}

func highlightsNotConfigured(c *gin.Context) {
	fail(c, http.StatusInternalServerError, "GOOGLE_SHEET_ID_INVESTMENT_HIGHLIGHTS environment variable is not set", sheets.ErrNotConfigured)
}

// MarketLookupHandler reads a suburb's market performance row. It accepts
// query parameters (GET) or a JSON body (POST).
func MarketLookupHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MarketLookupRequest
		if err := c.ShouldBind(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid JSON payload", err)
			return
		}
		if strings.TrimSpace(req.SuburbName) == "" || strings.TrimSpace(req.State) == "" {
			fail(c, http.StatusBadRequest, "Suburb name and state are required", nil)
			return
		}
		if svcs.Market == nil {
			marketNotConfigured(c)
			return
		}

		result, err := svcs.Market.Lookup(c.Request.Context(), req.SuburbName, req.State)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to look up market performance data", err)
			return
		}
		ok(c, "", result)
	}
}

// MarketSaveHandler writes SPI and/or REI figures and logs what changed
func MarketSaveHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MarketSaveRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.SuburbName == "" || req.State == "" || req.Data == nil || req.DataSource == "" {
			fail(c, http.StatusBadRequest, "Suburb name, state, data, and dataSource are required", nil)
			return
		}
		if !req.DataSource.Valid() {
			fail(c, http.StatusBadRequest, "dataSource must be SPI, REI, or BOTH", nil)
			return
		}
		if svcs.Market == nil {
			marketNotConfigured(c)
			return
		}

		err := svcs.Market.SaveAndLog(c.Request.Context(), req.SuburbName, req.State, *req.Data, req.DataSource, req.ChangedBy)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to save market performance data", err)
			return
		}
		log.WithFields(log.Fields{
			"event":       "market_performance_saved",
			"suburb":      req.SuburbName,
			"state":       req.State,
			"data_source": req.DataSource,
			"changed_by":  req.ChangedBy,
		}).Info("Market performance saved")
		ok(c, "Market performance data saved", nil)
	}
}

// MarketUpdateTimestampHandler confirms the stored figures are still current
func MarketUpdateTimestampHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MarketTimestampRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.SuburbName == "" || req.State == "" {
			fail(c, http.StatusBadRequest, "Suburb name and state are required", nil)
			return
		}
		if req.ChangedBy == "" {
			fail(c, http.StatusBadRequest, "User email (changedBy) is required", nil)
			return
		}
		if svcs.Market == nil {
			marketNotConfigured(c)
			return
		}

		if err := svcs.Market.Verify(c.Request.Context(), req.SuburbName, req.State, req.ChangedBy); err != nil {
			fail(c, http.StatusInternalServerError, "Failed to update timestamp", err)
			return
		}
		ok(c, "Timestamp updated", nil)
	}
}

// MarketUpdateSourceTimestampHandler confirms one source's figures
func MarketUpdateSourceTimestampHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MarketTimestampRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.SuburbName == "" || req.State == "" {
			fail(c, http.StatusBadRequest, "Suburb name and state are required", nil)
			return
		}
		if req.Source != sheets.SourceSPI && req.Source != sheets.SourceREI {
			fail(c, http.StatusBadRequest, "Source must be either SPI or REI", nil)
			return
		}
		if req.ChangedBy == "" {
			fail(c, http.StatusBadRequest, "User email (changedBy) is required", nil)
			return
		}
		if svcs.Market == nil {
			marketNotConfigured(c)
			return
		}

		err := svcs.Market.VerifySource(c.Request.Context(), req.SuburbName, req.State, req.Source, req.ChangedBy)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to update timestamp", err)
			return
		}
		ok(c, string(req.Source)+" timestamp updated", nil)
	}
}

// MarketLogProceededHandler records that stale data was accepted as is
func MarketLogProceededHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LogProceededRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.SuburbName == "" || req.State == "" {
			fail(c, http.StatusBadRequest, "Suburb name and state are required", nil)
			return
		}
		if svcs.Market == nil {
			marketNotConfigured(c)
			return
		}
		svcs.Market.LogProceeded(c.Request.Context(), req.SuburbName, req.State, req.DaysSinceLastCheck, req.ChangedBy)
		ok(c, "Logged", nil)
	}
}

// HighlightsLookupHandler finds the report covering a suburb or LGA
func HighlightsLookupHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		suburb := strings.TrimSpace(c.Query("suburb"))
		lga := strings.TrimSpace(c.Query("lga"))
		state := strings.TrimSpace(c.Query("state"))
		if state == "" || (suburb == "" && lga == "") {
			fail(c, http.StatusBadRequest, "State and a suburb or LGA are required", nil)
			return
		}
		if svcs.Highlights == nil {
			highlightsNotConfigured(c)
			return
		}

		result, err := svcs.Highlights.Lookup(c.Request.Context(), suburb, lga, state)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to look up investment highlights", err)
			return
		}
		ok(c, "", result)
	}
}

func HighlightsListHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Highlights == nil {
			highlightsNotConfigured(c)
			return
		}
		list, err := svcs.Highlights.List(c.Request.Context())
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to list reports", err)
			return
		}
		ok(c, "", list)
	}
}

// HighlightsSaveHandler stores a report, or adds the suburb to the report
// that already covers its LGA.
func HighlightsSaveHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req HighlightsSaveRequest
		if !bindJSON(c, &req) {
			return
		}
		var suburbs []string
		for _, s := range req.Suburbs {
			if s = strings.TrimSpace(s); s != "" {
				suburbs = append(suburbs, s)
			}
		}
		if len(suburbs) == 0 || req.State == "" {
			fail(c, http.StatusBadRequest, "Suburbs and state are required", nil)
			return
		}
		if req.ReportName == nil || *req.ReportName == "" || req.ValidPeriod == nil || *req.ValidPeriod == "" {
			fail(c, http.StatusBadRequest, "Report name and valid period are required", nil)
			return
		}
		if svcs.Highlights == nil {
			highlightsNotConfigured(c)
			return
		}

		joined := strings.Join(suburbs, ", ")
		fields := req.ReportFields(joined)

		if err := svcs.Highlights.Save(c.Request.Context(), req.LGA, suburbs[0], req.State, fields); err != nil {
			fail(c, http.StatusInternalServerError, "Failed to save investment highlights", err)
			return
		}
		log.WithFields(log.Fields{
			"event":       "highlights_saved",
			"report_name": *req.ReportName,
			"suburbs":     joined,
			"state":       req.State,
		}).Info("Investment highlights saved")
		ok(c, "Investment highlights saved", nil)
	}
}

type extractedMetadata struct {
	pdfmeta.Metadata
	Text string `json:"text"`
}

// ExtractMetadataHandler reads the report name and valid period from an
// uploaded PDF (multipart field "file") or from already extracted text.
func ExtractMetadataHandler(c *gin.Context) {
	var text string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			fail(c, http.StatusBadRequest, "No file provided", err)
			return
		}
		if header.Size > maxPDFUpload {
			fail(c, http.StatusRequestEntityTooLarge, "File too large", nil)
			return
		}
		f, err := header.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "Could not read uploaded file", err)
			return
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			fail(c, http.StatusBadRequest, "Could not read uploaded file", err)
			return
		}
		text, err = extractPDFText(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			fail(c, http.StatusUnprocessableEntity, "Failed to extract text from PDF", err)
			return
		}
	} else {
		var req ExtractMetadataRequest
		if !bindJSON(c, &req) {
			return
		}
		text = req.Text
	}
	if strings.TrimSpace(text) == "" {
		fail(c, http.StatusBadRequest, "No text provided", nil)
		return
	}

	meta := pdfmeta.ExtractMetadata(text)
	log.WithFields(log.Fields{
		"event":        "metadata_extracted",
		"report_name":  meta.ReportName,
		"valid_period": meta.ValidPeriod,
		"text_length":  len(text),
	}).Info("Report metadata extracted")
	ok(c, "", extractedMetadata{Metadata: meta, Text: text})
}

// ParseReportHandler structures a report's text with the AI parser
func ParseReportHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ParseReportRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			fail(c, http.StatusBadRequest, "No text provided", nil)
			return
		}
		if svcs.AI == nil {
			fail(c, http.StatusInternalServerError, "AI parsing not configured. Please enter information manually.", openai.ErrNotConfigured)
			return
		}

		parsed, err := svcs.AI.ParseReport(c.Request.Context(), req.Text, req.ReportName, req.ValidPeriod)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error(), err)
			return
		}
		ok(c, "", parsed)
	}
}

// ValidatePeriodHandler reports whether a report's valid period is current
func ValidatePeriodHandler(c *gin.Context) {
	var req ValidatePeriodRequest
	if !bindJSON(c, &req) {
		return
	}
	ok(c, "", reportdate.Check(req.ValidPeriod, time.Now()))
}

// SourcersHandler lists sourcer names for the form's dropdown. It never
// fails: without the admin sheet the built-in list is served.
func SourcersHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, fromSheet := sheets.FallbackSourcers(), false
		if svcs.Sourcers != nil {
			names, fromSheet = svcs.Sourcers.Names(c.Request.Context())
		}
		ok(c, "", gin.H{
			"sourcers":  names,
			"fromSheet": fromSheet,
		})
	}
}

// AddSuburbHandler adds a suburb to the report picked for it on the form
func AddSuburbHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddSuburbRequest
		if !bindJSON(c, &req) {
			return
		}
		suburb := strings.TrimSpace(req.Suburb)
		if suburb == "" || strings.TrimSpace(req.State) == "" || strings.TrimSpace(req.ReportName) == "" {
			fail(c, http.StatusBadRequest, "Suburb, state, and report name are required", nil)
			return
		}
		if svcs.Highlights == nil {
			highlightsNotConfigured(c)
			return
		}

		list, added, err := svcs.Highlights.AddSuburb(c.Request.Context(), req.ReportName, req.State, suburb)
		switch {
		case errors.Is(err, sheets.ErrNotFound):
			fail(c, http.StatusNotFound, "Report not found", nil)
			return
		case err != nil:
			fail(c, http.StatusInternalServerError, "Failed to add suburb to report", err)
			return
		}
		message := fmt.Sprintf("Suburb %q already in report", suburb)
		if added {
			message = fmt.Sprintf("Suburb %q added to report", suburb)
		}
		ok(c, message, gin.H{"updatedSuburbs": list})
	}
}

// GenerateSummaryHandler downloads a report PDF from Drive and asks the model
// for its infrastructure sections and main body.
func GenerateSummaryHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateSummaryRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.FileID) == "" {
			fail(c, http.StatusBadRequest, "File ID is required", nil)
			return
		}
		if svcs.Files == nil {
			fail(c, http.StatusInternalServerError, "GOOGLE_SHEETS_CREDENTIALS environment variable is not set", drive.ErrNotConfigured)
			return
		}
		if svcs.AI == nil {
			fail(c, http.StatusInternalServerError, "OPENAI_API_KEY environment variable is not set", openai.ErrNotConfigured)
			return
		}

		ctx := c.Request.Context()
		raw, err := svcs.Files.Download(ctx, req.FileID)
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to download PDF from Google Drive", err)
			return
		}
		text, err := extractPDFText(bytes.NewReader(raw), int64(len(raw)))
		if err != nil || len(strings.TrimSpace(text)) < minReportText {
			fail(c, http.StatusUnprocessableEntity, "PDF text extraction failed or returned insufficient text", err)
			return
		}

		summary, err := svcs.AI.InfrastructureSummary(ctx, text)
		if err != nil {
			aiFailure(c, err)
			return
		}
		log.WithFields(log.Fields{
			"event":       "summary_generated",
			"file_id":     req.FileID,
			"text_length": len(text),
			"body_length": len(summary.MainBody),
		}).Info("Report summary generated")
		ok(c, "", summary)
	}
}

// LookupsHandler serves the GHL user and pipeline stage names for the admin
// dropdowns.
func LookupsHandler(svcs *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svcs.Lookups == nil {
			fail(c, http.StatusInternalServerError, "GOOGLE_SHEET_ID_ADMIN environment variable is not set", sheets.ErrNotConfigured)
			return
		}
		lookups, err := svcs.Lookups.Lookups(c.Request.Context())
		if err != nil {
			fail(c, http.StatusInternalServerError, "Failed to load lookup data", err)
			return
		}
		ok(c, "", lookups)
	}
}
