package address

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxFolderNameLength is the longest folder name written to Drive, in
// characters.
const MaxFolderNameLength = 250

var (
	lotOrUnitPrefix = regexp.MustCompile(`(?i)^(lot|unit)\s`)
	forbiddenChars  = regexp.MustCompile(`[/\\?*:|"<>]`)
)

// Parts is the subset of the form's address step needed to name a property.
type Parts struct {
	PropertyAddress        string `json:"propertyAddress"`
	LotNumber              string `json:"lotNumber,omitempty"`
	LotNumberNotApplicable bool   `json:"lotNumberNotApplicable,omitempty"`
	UnitNumber             string `json:"unitNumber,omitempty"`
	HasUnitNumbers         bool   `json:"hasUnitNumbers,omitempty"`
}

// ConstructFull prefixes the property address with its lot and unit numbers,
// unless the address already leads with one of them.
func ConstructFull(p Parts) string {
	main := strings.TrimSpace(p.PropertyAddress)
	if main == "" || lotOrUnitPrefix.MatchString(main) {
		return main
	}

	var parts []string
	if lot := strings.TrimSpace(p.LotNumber); lot != "" && !p.LotNumberNotApplicable {
		parts = append(parts, withPrefix("Lot", lot))
	}
	if unit := strings.TrimSpace(p.UnitNumber); unit != "" && p.HasUnitNumbers {
		parts = append(parts, withPrefix("Unit", unit))
	}
	parts = append(parts, main)
	return strings.Join(parts, ", ")
}

func withPrefix(prefix, value string) string {
	if strings.HasPrefix(strings.ToLower(value), strings.ToLower(prefix)) {
		return value
	}
	return prefix + " " + value
}

// FolderName returns the sanitized, length-capped folder name for p.
func FolderName(p Parts) string {
	return Sanitize(truncate(ConstructFull(p)))
}

func truncate(name string) string {
	if utf8.RuneCountInString(name) <= MaxFolderNameLength {
		return name
	}
	return string([]rune(name)[:MaxFolderNameLength-3]) + "..."
}

// Sanitize strips characters Drive rejects and collapses whitespace.
func Sanitize(name string) string {
	sanitized := forbiddenChars.ReplaceAllString(name, "")
	sanitized = strings.TrimSpace(sanitized)
	return spaces.ReplaceAllString(sanitized, " ")
}

// ValidFolderName reports whether name can be used as-is.
func ValidFolderName(name string) bool {
	return name != "" && utf8.ValidString(name) &&
		utf8.RuneCountInString(name) <= MaxFolderNameLength && !forbiddenChars.MatchString(name)
}
