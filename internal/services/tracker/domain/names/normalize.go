// Package names resolves character surface forms ("johnny", "Dr. Chen",
// "Zoë") to canonical character names. Resolution runs once per turn after
// all extractors: direct lookup, then normalized lookup, then fuzzy matching
// against canonical names and recorded aliases, with anything left over
// handed to an injected Disambiguator.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes and removes combining marks, so "Zoë" and "Zoe"
// normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// honorifics are leading title tokens dropped during normalized lookup.
// Keys are normalized, without a trailing period.
var honorifics = map[string]struct{}{
	"mr":        {},
	"mrs":       {},
	"ms":        {},
	"miss":      {},
	"mx":        {},
	"dr":        {},
	"doctor":    {},
	"prof":      {},
	"professor": {},
	"sir":       {},
	"dame":      {},
	"lady":      {},
	"lord":      {},
	"madam":     {},
	"madame":    {},
	"capt":      {},
	"captain":   {},
	"sgt":       {},
	"sergeant":  {},
	"st":        {},
	"saint":     {},
}

// Normalize case-folds a name, strips diacritics, and collapses interior
// whitespace. It does not remove honorifics; see StripHonorific.
func Normalize(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	// cases.Fold caser is stateful, so build one per call.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// StripHonorific removes one leading title token ("dr.", "lady") from an
// already-normalized name. A bare title is kept as-is.
func StripHonorific(normalized string) string {
	first, rest, ok := strings.Cut(normalized, " ")
	if !ok {
		return normalized
	}
	if _, found := honorifics[strings.TrimSuffix(first, ".")]; found {
		return rest
	}
	return normalized
}
