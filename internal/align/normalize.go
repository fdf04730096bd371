package align

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases a word, applies NFKD so accented characters compare
// by their base form, and strips punctuation. The result is what every
// matching rule operates on; raw tokens are preserved only for reporting.
func Normalize(word string) string {
	word = strings.ToLower(norm.NFKD.String(word))

	var b strings.Builder
	b.Grow(len(word))
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// fields splits a transcript into whitespace-separated raw tokens.
func fields(transcript string) []string {
	return strings.Fields(transcript)
}
