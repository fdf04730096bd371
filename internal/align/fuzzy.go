package align

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// fuzzyOK reports whether recognized is close enough to expected to count
// as a fuzzy match. Both inputs must already be normalised.
//
// The edit-distance budget is tiered by the target word's length in runes
// so that short words stay strict — "a" must never match "i" — while long
// words absorb the substitutions accent and mishearing produce:
//
//	1-2 runes: exact only
//	3 runes:   distance <= 1, same first rune
//	4-6 runes: distance <= 2
//	7+ runes:  distance <= threshold, or threshold+1 with a shared
//	           two-rune prefix
//
// A phonetic alias table hit is accepted before any distance check, and the
// optional Double Metaphone fallback after it.
func (m matcher) fuzzyOK(recognized, expected string) bool {
	if m.opts.aliases.Match(recognized, expected) {
		return true
	}

	n := utf8.RuneCountInString(expected)
	switch {
	case n <= 2:
		return recognized == expected

	case n == 3:
		if recognized == "" {
			return false
		}
		return matchr.Levenshtein(recognized, expected) <= 1 &&
			firstRune(recognized) == firstRune(expected)

	case n <= 6:
		if matchr.Levenshtein(recognized, expected) <= 2 {
			return true
		}

	default:
		dist := matchr.Levenshtein(recognized, expected)
		if dist <= m.opts.fuzzyThreshold {
			return true
		}
		if dist <= m.opts.fuzzyThreshold+1 && startsSame(recognized, expected) {
			return true
		}
	}

	return m.phoneticOK(recognized, expected)
}

// phoneticOK is the config-gated Double Metaphone fallback: two words that
// encode to the same primary phonetic code are treated as a fuzzy match.
// Restricted to words of 4+ runes; short codes collide too easily.
func (m matcher) phoneticOK(recognized, expected string) bool {
	if !m.opts.phoneticFallback ||
		utf8.RuneCountInString(expected) < 4 || utf8.RuneCountInString(recognized) < 4 {
		return false
	}
	p1, _ := matchr.DoubleMetaphone(recognized)
	p2, _ := matchr.DoubleMetaphone(expected)
	return p1 != "" && p1 == p2
}

// firstRune returns the first rune of s, or utf8.RuneError for an empty s.
func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

// startsSame reports whether two words share their first two runes, falling
// back to the first rune for one-rune inputs.
func startsSame(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return len(ra) > 0 && len(rb) > 0 && ra[0] == rb[0]
	}
	return ra[0] == rb[0] && ra[1] == rb[1]
}

// containsWord reports whether one normalised word contains the other, with
// the shorter side at least 3 runes. Catches compound STT output such as
// "goodmorning" against "morning".
func containsWord(recognized, expected string) bool {
	if utf8.RuneCountInString(expected) >= 3 && strings.Contains(recognized, expected) {
		return true
	}
	if utf8.RuneCountInString(recognized) >= 3 && strings.Contains(expected, recognized) {
		return true
	}
	return false
}
