// Package address normalizes and compares Australian street addresses and
// builds Drive-safe folder names from them.
package address

import (
	"regexp"
	"strings"
)

type expansion struct {
	pattern *regexp.Regexp
	full    string
}

func wordExpansion(abbrev, full string) expansion {
	return expansion{pattern: regexp.MustCompile(`\b` + abbrev + `\b`), full: full}
}

var (
	punctuation = regexp.MustCompile(`[.,;:]`)
	spaces      = regexp.MustCompile(`\s+`)
	lotToken    = regexp.MustCompile(`\blot\s+\d+`)
	unitToken   = regexp.MustCompile(`\b(unit|lot|apt|apartment)\s+\d+`)

	streetTypes = []expansion{
		wordExpansion("st", "street"),
		wordExpansion("rd", "road"),
		wordExpansion("ave", "avenue"),
		wordExpansion("dr", "drive"),
		wordExpansion("ct", "court"),
		wordExpansion("pl", "place"),
		wordExpansion("ln", "lane"),
		wordExpansion("cres", "crescent"),
		wordExpansion("tce", "terrace"),
		wordExpansion("pde", "parade"),
		wordExpansion("blvd", "boulevard"),
	}

	states = []expansion{
		wordExpansion("qld", "queensland"),
		wordExpansion("nsw", "new south wales"),
		wordExpansion("vic", "victoria"),
		wordExpansion("sa", "south australia"),
		wordExpansion("wa", "western australia"),
		wordExpansion("tas", "tasmania"),
		wordExpansion("nt", "northern territory"),
		wordExpansion("act", "australian capital territory"),
	}
)

// minContainedLength is the shortest normalized address that may match by containment.
const minContainedLength = 10

// Normalize reduces an address to a canonical lowercase form so that
// "12 Smith St, Brisbane QLD" and "12 smith street brisbane queensland" compare equal.
func Normalize(addr string) string {
	if addr == "" {
		return ""
	}
	normalized := strings.ToLower(strings.TrimSpace(addr))
	normalized = punctuation.ReplaceAllString(normalized, " ")
	normalized = spaces.ReplaceAllString(normalized, " ")

	for _, e := range streetTypes {
		normalized = e.pattern.ReplaceAllString(normalized, e.full)
	}
	for _, e := range states {
		normalized = e.pattern.ReplaceAllString(normalized, e.full)
	}

	normalized = lotToken.ReplaceAllString(normalized, "")
	normalized = unitToken.ReplaceAllString(normalized, "")
	normalized = spaces.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Match reports whether two addresses refer to the same property after
// normalization. One address may contain the other when the shorter of the
// two is long enough to be meaningful. Empty addresses never match.
func Match(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		shorter := na
		if len(nb) < len(na) {
			shorter = nb
		}
		return len(shorter) >= minContainedLength
	}
	return false
}
