package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds s for catalog comparisons: diacritics removed, case folded, punctuation dropped,
// "&" spelled out and whitespace collapsed.
//
// Transformers are built per call since [transform.Transformer] and [cases.Caser] values are stateful.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '&':
			b.WriteString(" and ")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// contractions stay joined: "don't" == "dont"
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeTrackKey builds a comparison key from a title and an artist.
func NormalizeTrackKey(title, artist string) string {
	return Normalize(title) + "|" + Normalize(artist)
}

// Simplify strips decorations catalogs disagree on: anything after " - ", bracketed suffixes and
// featured-artist credits. "Song (Remastered 2011) - Mono" becomes "Song".
func Simplify(title string) string {
	s := title
	for _, sep := range []string{" - ", "(", "[", " feat.", " ft.", " featuring "} {
		lower := strings.ToLower(s)
		if len(lower) != len(s) {
			lower = s
		}
		if i := strings.Index(lower, sep); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
