// Package pdfmeta pulls the text and cover metadata out of Hotspotting
// investment highlight reports.
package pdfmeta

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	UnknownReport = "Unknown Report"
	DateNotFound  = "Date not found"
)

var (
	regionPattern = regexp.MustCompile(`(?i)(Fraser Coast|Sunshine Coast|Gold Coast|[\w\s]+Region|[\w\s]+Coast)`)
	periodPattern = []*regexp.Regexp{
		regexp.MustCompile(`([A-Za-z]+\s+\d{4})\s*[-–—]\s*([A-Za-z]+\s+\d{4})`),
		regexp.MustCompile(`([A-Za-z]+)\s*[-–—]\s*([A-Za-z]+\s+\d{4})`),
	}
)

// Metadata is what the upload step pre-fills before the packager reviews it.
type Metadata struct {
	ReportName  string `json:"reportName"`
	ValidPeriod string `json:"validPeriod"`
	MainBody    string `json:"mainBody"`
}

// ExtractText returns the plain text of every page in the document.
func ExtractText(r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// ExtractMetadata finds the region name and valid period on the report cover.
// The main body is the full text; summarising it is left to the AI parser.
func ExtractMetadata(text string) Metadata {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	md := Metadata{
		ReportName:  reportName(lines),
		ValidPeriod: validPeriod(text),
		MainBody:    text,
	}
	if md.ReportName == "" {
		md.ReportName = UnknownReport
	}
	if md.ValidPeriod == "" {
		md.ValidPeriod = DateNotFound
	}
	return md
}

func reportName(lines []string) string {
	for i := 0; i < len(lines) && i < 10; i++ {
		if m := regionPattern.FindStringSubmatch(lines[i]); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for i := 0; i < len(lines) && i < 5; i++ {
		line := lines[i]
		if len(line) > 10 && len(line) < 50 && !strings.Contains(strings.ToLower(line), "hotspotting") {
			return line
		}
	}
	return ""
}

func validPeriod(text string) string {
	for _, p := range periodPattern {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
