package align

// commonShortWords is the closed list of high-frequency function words that
// are barred from matching at lookahead offsets beyond 1. These occur so
// often in children's texts that a distant match is almost certainly
// spurious. Short content words ("dog", "fox") stay matchable: a reader
// jumping two words to a distinctive word is real skip evidence.
var commonShortWords = map[string]struct{}{
	"a": {}, "an": {}, "am": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"do": {}, "go": {}, "he": {}, "i": {}, "if": {}, "in": {}, "is": {},
	"it": {}, "me": {}, "my": {}, "no": {}, "of": {}, "on": {}, "or": {},
	"so": {}, "to": {}, "up": {}, "us": {}, "we": {}, "the": {}, "and": {},
	"are": {}, "but": {}, "can": {}, "did": {}, "for": {}, "get": {},
	"got": {}, "had": {}, "has": {}, "her": {}, "him": {}, "his": {},
	"how": {}, "its": {}, "let": {}, "may": {}, "new": {}, "not": {},
	"now": {}, "old": {}, "one": {}, "our": {}, "out": {}, "own": {},
	"put": {}, "ran": {}, "run": {}, "say": {}, "see": {}, "she": {},
	"too": {}, "two": {}, "use": {}, "was": {}, "way": {}, "who": {},
	"why": {}, "you": {}, "all": {}, "big": {},
}

// isCommonShort reports whether a normalised word is in the common-word
// list.
func isCommonShort(word string) bool {
	_, ok := commonShortWords[word]
	return ok
}
