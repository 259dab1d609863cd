package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ASCII folds accents ("Montréal" -> "Montreal") and drops whatever is still
// outside ASCII afterwards (emoji, decorative symbols).
func ASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var sb strings.Builder
	sb.Grow(len(folded))
	for _, r := range folded {
		if r <= unicode.MaxASCII {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
