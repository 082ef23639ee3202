// Package phone formats Australian mobile numbers for agent contact fields.
package phone

import (
	"regexp"
	"strings"
)

// TBC is accepted in place of a number while the agent's mobile is unknown.
const TBC = "TBC"

var (
	nonDigits  = regexp.MustCompile(`\D`)
	letters    = regexp.MustCompile(`[A-Za-z]`)
	onlyTBCish = regexp.MustCompile(`^[TBCtbc]+$`)
)

func digitsOf(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// mobileDigits returns the nine significant digits of a mobile number, or
// false when digits cannot be an Australian mobile.
func mobileDigits(digits string) (string, bool) {
	if len(digits) < 9 || len(digits) > 10 {
		return "", false
	}
	trimmed := strings.TrimPrefix(digits, "0")
	if len(trimmed) != 9 || !strings.HasPrefix(trimmed, "4") {
		return "", false
	}
	return trimmed, true
}

// FormatMobile renders a valid mobile as "+61 4 XX XXX XXX". Input that is not
// a complete mobile is returned unchanged so partial entries are not mangled.
func FormatMobile(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), TBC) {
		return TBC
	}
	digits := digitsOf(value)
	if digits == "" {
		return ""
	}
	m, ok := mobileDigits(digits)
	if !ok {
		return value
	}
	return "+61 " + m[0:1] + " " + m[1:3] + " " + m[3:6] + " " + m[6:]
}

// IsValidMobileInput accepts TBC, nine digits starting with 4, or ten digits
// starting with 04.
func IsValidMobileInput(value string) bool {
	trimmed := strings.TrimSpace(value)
	if strings.EqualFold(trimmed, TBC) {
		return true
	}
	digits := digitsOf(trimmed)
	if len(digits) == 10 && !strings.HasPrefix(digits, "0") {
		return false
	}
	_, ok := mobileDigits(digits)
	return ok
}

// NormalizeForStorage is FormatMobile applied to trimmed input.
func NormalizeForStorage(value string) string {
	return FormatMobile(strings.TrimSpace(value))
}

// FormatInput groups up to ten typed digits as 4-3-3 ("0450 581 822").
// Partial "TBC" input is preserved; other letters clear the field.
func FormatInput(value string) string {
	trimmed := strings.TrimSpace(value)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, TBC) {
		return TBC
	}
	if upper == "T" || upper == "TB" {
		return trimmed
	}
	if letters.MatchString(trimmed) && !onlyTBCish.MatchString(trimmed) {
		return ""
	}

	digits := digitsOf(trimmed)
	if len(digits) > 10 {
		digits = digits[:10]
	}
	switch {
	case len(digits) <= 4:
		return digits
	case len(digits) <= 7:
		return digits[:4] + " " + digits[4:]
	default:
		return digits[:4] + " " + digits[4:7] + " " + digits[7:]
	}
}
