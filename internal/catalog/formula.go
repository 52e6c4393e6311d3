package catalog

import (
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// derivedFormulaStopwords excludes SQL-function names that can appear inside
// a derived formula (e.g. NULLIF) from being mistaken for catalog field
// references.
var derivedFormulaStopwords = map[string]bool{
	"NULLIF": true,
	"NULL":   true,
}

// dependenciesOf extracts the catalog field names a derived field's formula
// references, by scanning bare identifiers and discarding SQL keywords.
func dependenciesOf(f Field) []string {
	matches := identifierRe.FindAllString(f.Source.Derived, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if derivedFormulaStopwords[strings.ToUpper(m)] {
			continue
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
