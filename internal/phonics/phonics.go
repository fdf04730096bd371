// Package phonics decides which words have tricky pronunciation and
// produces short child-friendly hints for them. Rule-based: silent-e
// endings, digraphs, and the common silent-letter patterns of early
// reader English.
package phonics

import (
	"regexp"
	"strings"
)

var (
	// silentE matches consonant-vowel-consonant-e words where the trailing
	// e is silent and lengthens the vowel.
	silentE = regexp.MustCompile(`^[a-z]*[bcdfghjklmnpqrstvwxyz][aeiou][bcdfghjklmnpqrstvwxyz]e$`)

	ghPattern    = regexp.MustCompile(`gh`)
	phPattern    = regexp.MustCompile(`ph`)
	knPattern    = regexp.MustCompile(`^kn`)
	wrPattern    = regexp.MustCompile(`^wr`)
	tionPattern  = regexp.MustCompile(`[ts]ion$`)
	oughPattern  = regexp.MustCompile(`ough`)
	// Go's regexp has no backreferences, so spell out the doubled-letter
	// pattern (equivalent to `([a-z])\1`).
	doubleLetter = regexp.MustCompile(`aa|bb|cc|dd|ee|ff|gg|hh|ii|jj|kk|ll|mm|nn|oo|pp|qq|rr|ss|tt|uu|vv|ww|xx|yy|zz`)
	leEnding     = regexp.MustCompile(`[bcdfgkptz]le$`)
)

// simpleWords are common early-reader words that never need a phonetic
// guide even when a pattern above matches.
var simpleWords = map[string]struct{}{
	"a": {}, "an": {}, "i": {}, "is": {}, "it": {}, "in": {}, "on": {},
	"up": {}, "to": {}, "go": {}, "no": {}, "so": {}, "do": {}, "he": {},
	"she": {}, "we": {}, "be": {}, "me": {}, "my": {}, "at": {}, "am": {},
	"the": {}, "and": {}, "but": {}, "not": {}, "you": {}, "was": {},
	"are": {}, "his": {}, "her": {}, "had": {}, "has": {}, "can": {},
	"ran": {}, "big": {}, "red": {}, "see": {}, "saw": {}, "run": {},
	"fun": {}, "sun": {}, "cat": {}, "dog": {}, "hat": {}, "bat": {},
	"sit": {}, "hit": {}, "got": {}, "hot": {}, "lot": {}, "let": {},
	"get": {}, "set": {}, "put": {}, "cut": {}, "cup": {}, "bus": {},
	"mud": {}, "bug": {}, "rug": {}, "hug": {}, "dug": {}, "all": {},
	"for": {}, "out": {}, "old": {}, "new": {}, "now": {}, "how": {},
	"too": {}, "two": {}, "did": {}, "say": {}, "said": {},
}

func clean(word string) string {
	return strings.Trim(strings.ToLower(word), ".,!?;:'\"()-")
}

// Tricky reports whether a word likely has a non-obvious pronunciation.
func Tricky(word string) bool {
	w := clean(word)
	if _, ok := simpleWords[w]; ok {
		return false
	}
	if len(w) <= 2 {
		return false
	}

	switch {
	case silentE.MatchString(w),
		ghPattern.MatchString(w),
		phPattern.MatchString(w),
		knPattern.MatchString(w),
		wrPattern.MatchString(w),
		tionPattern.MatchString(w),
		oughPattern.MatchString(w),
		leEnding.MatchString(w):
		return true
	case len(w) >= 5 && doubleLetter.MatchString(w):
		return true
	}
	return false
}

// Hint returns a short pronunciation hint for a tricky word, or the empty
// string when the word is simple enough to need none.
func Hint(word string) string {
	w := clean(word)
	if !Tricky(w) {
		return ""
	}

	var hints []string

	if ghPattern.MatchString(w) {
		switch {
		case strings.HasSuffix(w, "ght"):
			hints = append(hints, `The "gh" is silent!`)
		case strings.HasSuffix(w, "ugh"):
			hints = append(hints, `The "gh" sounds like "f"!`)
		case strings.HasSuffix(w, "ough"):
			hints = append(hints, `"ough" is a tricky sound - listen carefully!`)
		default:
			hints = append(hints, `The "gh" has a special sound - listen carefully!`)
		}
	}
	if silentE.MatchString(w) {
		hints = append(hints, `The "e" at the end is silent - it makes the vowel say its name!`)
	}
	if phPattern.MatchString(w) {
		hints = append(hints, `"ph" sounds like "f"!`)
	}
	if knPattern.MatchString(w) {
		hints = append(hints, `The "k" is silent - just say the "n"!`)
	}
	if wrPattern.MatchString(w) {
		hints = append(hints, `The "w" is silent - just say the "r"!`)
	}
	if tionPattern.MatchString(w) {
		hints = append(hints, `"-tion" sounds like "shun"!`)
	}

	return strings.Join(hints, " ")
}
