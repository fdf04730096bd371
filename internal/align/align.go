// Package align maps noisy speech-to-text transcript tokens onto an ordered
// target word sequence.
//
// The aligner is tuned for children reading aloud with accented speech. The
// fuzzy matching is intentionally lenient: it is better to give a reader
// credit for a close-enough pronunciation than to mark them wrong because
// the STT model misheard an accent.
//
// Cursor advancement is conservative: a small lookahead window, with fuzzy
// and substring matching restricted to the current position and offset 1,
// keeps common short words from matching far ahead in the text and dragging
// the cursor past the reader's actual position.
//
// Align is pure and deterministic — no I/O, no shared state, identical
// output for identical input.
package align

// MatchKind classifies how a transcript token relates to a target word.
type MatchKind string

const (
	// MatchCorrect is an exact match after normalisation.
	MatchCorrect MatchKind = "correct"

	// MatchFuzzy is an accepted non-exact match: within the length-tiered
	// edit-distance budget, a phonetic alias, or substring containment.
	MatchFuzzy MatchKind = "fuzzy"

	// MatchMismatch means the token matched nothing at or near the cursor.
	// The reader is assumed to still be on the current word.
	MatchMismatch MatchKind = "mismatch"

	// MatchSkip marks a target word the reader jumped over. Skips are
	// recorded but never count as forward evidence on their own.
	MatchSkip MatchKind = "skip"
)

// Event is a single classified comparison between one transcript token (or
// its absence, for skips) and one target word. Events are immutable once
// created.
type Event struct {
	WordIndex  int       `json:"word_index"`
	Expected   string    `json:"expected_word"`
	Recognized *string   `json:"recognized_word"`
	Match      MatchKind `json:"match_kind"`
}

// Defaults for the alignment options. They mirror the live tuning: a
// 3-word lookahead only ever skips one or two mumbled words, and the
// 8-word advance cap bounds the damage of a single bad transcript.
const (
	DefaultLookahead      = 3
	DefaultFuzzyThreshold = 2
	DefaultMaxAdvance     = 8
)

// Option is a functional option for Align.
type Option func(*options)

type options struct {
	lookahead        int
	fuzzyThreshold   int
	maxAdvance       int
	aliases          *AliasTable
	phoneticFallback bool
}

// WithLookahead bounds the forward search for skipped words. Default: 3.
func WithLookahead(n int) Option {
	return func(o *options) {
		o.lookahead = n
	}
}

// WithFuzzyThreshold sets the edit-distance budget for long words (7+
// characters). Default: 2.
func WithFuzzyThreshold(n int) Option {
	return func(o *options) {
		o.fuzzyThreshold = n
	}
}

// WithMaxAdvance caps how many target words a single Align call may
// consume. Default: 8.
func WithMaxAdvance(n int) Option {
	return func(o *options) {
		o.maxAdvance = n
	}
}

// WithAliases attaches a phonetic alias table. A table hit is always
// accepted as a fuzzy match regardless of edit distance.
func WithAliases(t *AliasTable) Option {
	return func(o *options) {
		o.aliases = t
	}
}

// WithPhoneticFallback additionally accepts tokens whose Double Metaphone
// code equals the target word's, for targets of 4+ characters. Off by
// default; enable for heavily accented speech the alias table does not
// cover.
func WithPhoneticFallback(enabled bool) Option {
	return func(o *options) {
		o.phoneticFallback = enabled
	}
}

// Align maps the tokens of transcript onto target starting at cursor and
// returns the resulting alignment events in order.
//
// Per token, in order of preference: exact match at the cursor, fuzzy match
// at the cursor, substring containment at the cursor, then a bounded
// lookahead (skip detection). A token matching nothing produces a mismatch
// and leaves the cursor in place. Empty tokens after normalisation are
// dropped silently.
//
// The resulting cursor (the highest consumed index + 1) never moves
// backwards from the input cursor, and never advances more than the
// configured max advance.
func Align(target []string, transcript string, cursor int, opts ...Option) []Event {
	o := options{
		lookahead:      DefaultLookahead,
		fuzzyThreshold: DefaultFuzzyThreshold,
		maxAdvance:     DefaultMaxAdvance,
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := matcher{opts: o}

	tokens := fields(transcript)
	var events []Event

	idx := cursor
	advanced := 0

	for ti := 0; ti < len(tokens) && idx < len(target) && advanced < o.maxAdvance; ti++ {
		raw := tokens[ti]
		recognized := Normalize(raw)
		if recognized == "" {
			continue
		}

		expected := Normalize(target[idx])

		// Exact match at the cursor.
		if recognized == expected {
			events = append(events, spoken(idx, target[idx], raw, MatchCorrect))
			idx++
			advanced++
			continue
		}

		// Fuzzy match at the cursor, tried before any lookahead.
		if m.fuzzyOK(recognized, expected) {
			events = append(events, spoken(idx, target[idx], raw, MatchFuzzy))
			idx++
			advanced++
			continue
		}

		// Substring containment at the cursor (compound STT output such as
		// "intothe" for "into").
		if containsWord(recognized, expected) {
			events = append(events, spoken(idx, target[idx], raw, MatchFuzzy))
			idx++
			advanced++
			continue
		}

		// Bounded lookahead for skipped words.
		if offset, kind, ok := m.lookahead(target, idx, recognized); ok {
			for s := 0; s < offset; s++ {
				events = append(events, Event{
					WordIndex: idx + s,
					Expected:  target[idx+s],
					Match:     MatchSkip,
				})
			}
			events = append(events, spoken(idx+offset, target[idx+offset], raw, kind))
			idx += offset + 1
			advanced += offset + 1
			continue
		}

		// No match anywhere near the cursor: the reader is still on this word.
		events = append(events, spoken(idx, target[idx], raw, MatchMismatch))
	}

	return events
}

// spoken builds an event that carries the raw recognized token.
func spoken(idx int, expected, raw string, kind MatchKind) Event {
	return Event{
		WordIndex:  idx,
		Expected:   expected,
		Recognized: &raw,
		Match:      kind,
	}
}

// matcher bundles the per-call options for the fuzzy and lookahead rules.
type matcher struct {
	opts options
}

// lookahead searches up to opts.lookahead words past the cursor for a home
// for the token. At offset 1 exact, fuzzy, and substring matches are all
// accepted; beyond that only exact matches count, and positions where both
// the token and the candidate are common short words are skipped — a word
// like "the" occurs so often that matching it several positions ahead is
// far more likely a false jump than a real skip.
func (m matcher) lookahead(target []string, idx int, recognized string) (offset int, kind MatchKind, ok bool) {
	shortRecognized := isCommonShort(recognized)

	maxOffset := m.opts.lookahead
	if remaining := len(target) - idx - 1; maxOffset > remaining {
		maxOffset = remaining
	}

	for off := 1; off <= maxOffset; off++ {
		ahead := Normalize(target[idx+off])

		if off == 1 {
			if recognized == ahead {
				return off, MatchCorrect, true
			}
			if m.fuzzyOK(recognized, ahead) {
				return off, MatchFuzzy, true
			}
			if containsWord(recognized, ahead) {
				return off, MatchFuzzy, true
			}
			continue
		}

		if shortRecognized && isCommonShort(ahead) {
			continue
		}
		if recognized == ahead {
			return off, MatchCorrect, true
		}
	}
	return 0, "", false
}
