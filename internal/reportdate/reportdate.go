// Package reportdate decides whether a Hotspotting report is still current
// from the free-text "valid period" printed on its cover.
package reportdate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusCurrent      Status = "current"
	StatusExpiringSoon Status = "expiring-soon"
	StatusExpired      Status = "expired"
	StatusInvalid      Status = "invalid"
)

// expiringSoonDays is the last day count still reported as expiring soon.
const expiringSoonDays = 3

var (
	monthRange  = regexp.MustCompile(`^([A-Z]+)\s*[-–—]\s*([A-Z]+)\s+(\d{4})$`)
	fullRange   = regexp.MustCompile(`^([A-Z]+)\s+(\d{4})\s*[-–—]\s*([A-Z]+)\s+(\d{4})$`)
	quarter     = regexp.MustCompile(`^Q([1-4])\s+(\d{4})$`)
	yearOnly    = regexp.MustCompile(`^(\d{4})$`)
	singleMonth = regexp.MustCompile(`^([A-Z]+)\s+(\d{4})$`)

	months = map[string]time.Month{
		"JANUARY": time.January, "JAN": time.January,
		"FEBRUARY": time.February, "FEB": time.February,
		"MARCH": time.March, "MAR": time.March,
		"APRIL": time.April, "APR": time.April,
		"MAY":  time.May,
		"JUNE": time.June, "JUN": time.June,
		"JULY": time.July, "JUL": time.July,
		"AUGUST": time.August, "AUG": time.August,
		"SEPTEMBER": time.September, "SEP": time.September, "SEPT": time.September,
		"OCTOBER": time.October, "OCT": time.October,
		"NOVEMBER": time.November, "NOV": time.November,
		"DECEMBER": time.December, "DEC": time.December,
	}
)

// Period is the inclusive span a report covers, at day granularity.
type Period struct {
	Start time.Time
	End   time.Time
}

// Result describes a valid period relative to a given day.
type Result struct {
	Valid           bool       `json:"isValid"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	DaysUntilExpiry *int       `json:"daysUntilExpiry"`
	Status          Status     `json:"status"`
	DisplayText     string     `json:"displayText"`
}

// ParseError explains why a valid period could not be read.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// Parse reads "SEPTEMBER - DECEMBER 2025", "October 2025 - January 2026",
// "Q4 2025", "2025" or "December 2025". The end of the period is the last day
// of its final month.
func Parse(validPeriod string) (Period, error) {
	if strings.TrimSpace(validPeriod) == "" {
		return Period{}, &ParseError{Input: validPeriod, Reason: "No valid period specified"}
	}
	normalized := strings.ToUpper(strings.TrimSpace(validPeriod))

	if m := monthRange.FindStringSubmatch(normalized); m != nil {
		year := atoi(m[3])
		return monthSpan(m[1], year, m[2], year)
	}
	if m := fullRange.FindStringSubmatch(normalized); m != nil {
		return monthSpan(m[1], atoi(m[2]), m[3], atoi(m[4]))
	}
	if m := quarter.FindStringSubmatch(normalized); m != nil {
		q, year := atoi(m[1]), atoi(m[2])
		first := time.Month((q-1)*3 + 1)
		return Period{Start: firstDay(year, first), End: lastDay(year, first+2)}, nil
	}
	if m := yearOnly.FindStringSubmatch(normalized); m != nil {
		year := atoi(m[1])
		return Period{Start: firstDay(year, time.January), End: lastDay(year, time.December)}, nil
	}
	if m := singleMonth.FindStringSubmatch(normalized); m != nil {
		year := atoi(m[2])
		return monthSpan(m[1], year, m[1], year)
	}
	return Period{}, &ParseError{Input: validPeriod, Reason: fmt.Sprintf("Unable to parse: %q", validPeriod)}
}

func monthSpan(startName string, startYear int, endName string, endYear int) (Period, error) {
	start, ok1 := months[startName]
	end, ok2 := months[endName]
	if !ok1 || !ok2 {
		return Period{}, &ParseError{Reason: "Invalid month name"}
	}
	return Period{Start: firstDay(startYear, start), End: lastDay(endYear, end)}, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func firstDay(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func lastDay(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// Check evaluates validPeriod against the calendar day of now.
func Check(validPeriod string, now time.Time) Result {
	period, err := Parse(validPeriod)
	if err != nil {
		return Result{Status: StatusInvalid, DisplayText: err.Error()}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(math.Floor(period.End.Sub(today).Hours() / 24))

	res := Result{
		Valid:           true,
		StartDate:       &period.Start,
		EndDate:         &period.End,
		DaysUntilExpiry: &days,
	}
	switch {
	case days < 0:
		res.Status = StatusExpired
		res.DisplayText = fmt.Sprintf("Expired %s ago", plural(-days, "day"))
	case days <= expiringSoonDays:
		res.Status = StatusExpiringSoon
		res.DisplayText = fmt.Sprintf("Expires in %s", plural(days, "day"))
	default:
		res.Status = StatusCurrent
		res.DisplayText = fmt.Sprintf("Valid until %s (%s remaining)",
			period.End.Format("Jan 2, 2006"), plural(days/30, "month"))
	}
	return res
}

// IsCurrent reports whether the report has not yet expired.
func IsCurrent(validPeriod string, now time.Time) bool {
	res := Check(validPeriod, now)
	return res.Valid && res.Status != StatusExpired
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
