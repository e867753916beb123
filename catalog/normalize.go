package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalize folds case, strips diacritics and collapses whitespace, so that
// "Décanoate de nandrolone" and "decanoate  DE Nandrolone" compare equal.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func containsFolded(normalizedName, normalizedQuery string) bool {
	return normalizedQuery == "" || strings.Contains(normalizedName, normalizedQuery)
}
