// Package level is the adaptive progression engine: it looks at a rolling
// window of recent scored attempts and decides whether a reader should move
// up, stay, or move down a reading level.
package level

import (
	"fmt"
	"time"
)

// Level bounds and decision defaults.
const (
	MinLevel = 1
	MaxLevel = 6

	DefaultWindow           = 10
	DefaultPromoteThreshold = 80.0
	DefaultDemoteThreshold  = 45.0

	// minAttempts is the floor below which no decision is made. Fewer
	// attempts than this cannot distinguish skill from luck.
	minAttempts = 3
)

// wordRanges maps a level to the story word-count range suited to it.
var wordRanges = map[int][2]int{
	1: {100, 200},
	2: {200, 300},
	3: {300, 600},
	4: {600, 900},
	5: {900, 1500},
	6: {1500, 2000},
}

// WordRange returns the story word-count range for a level.
func WordRange(level int) (low, high int, ok bool) {
	r, ok := wordRanges[level]
	return r[0], r[1], ok
}

// Action is the outcome of one progression evaluation.
type Action string

const (
	ActionPromote Action = "promote"
	ActionHold    Action = "hold"
	ActionDemote  Action = "demote"
)

// State is one reader's persisted level state.
type State struct {
	CurrentLevel       int
	Confidence         float64
	LastDecisionReason string
	UpdatedAt          time.Time
}

// Attempt is the slice of a scored attempt the evaluator needs.
type Attempt struct {
	Total    float64
	Accuracy float64
}

// Decision explains one evaluation outcome.
type Decision struct {
	Action   Action
	NewLevel int
	Reason   string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWindow sets how many recent attempts are considered. Default: 10.
func WithWindow(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithThresholds sets the promote and demote thresholds on the weighted
// average score. Defaults: 80 and 45.
func WithThresholds(promote, demote float64) Option {
	return func(e *Evaluator) {
		e.promote = promote
		e.demote = demote
	}
}

// Evaluator decides level changes. Stateless and safe for concurrent use.
type Evaluator struct {
	window  int
	promote float64
	demote  float64
}

// NewEvaluator returns an Evaluator with the given options applied over the
// defaults.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		window:  DefaultWindow,
		promote: DefaultPromoteThreshold,
		demote:  DefaultDemoteThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate inspects recent attempts, newest first, and returns the updated
// state plus the decision. With fewer than three scored attempts the level
// always holds and the state is returned untouched. Level changes saturate
// at [MinLevel] and [MaxLevel]; confidence is the weighted average mapped
// into [0, 1].
func (e *Evaluator) Evaluate(st State, recent []Attempt, now time.Time) (State, Decision) {
	if st.CurrentLevel < MinLevel {
		st.CurrentLevel = MinLevel
	}

	if len(recent) > e.window {
		recent = recent[:e.window]
	}
	if len(recent) < minAttempts {
		return st, Decision{
			Action:   ActionHold,
			NewLevel: st.CurrentLevel,
			Reason:   fmt.Sprintf("Only %d scored attempts; need at least %d", len(recent), minAttempts),
		}
	}

	// Recency-weighted average: the newest attempt carries the most weight.
	var weightedSum, totalWeight float64
	for i, a := range recent {
		w := float64(len(recent) - i)
		weightedSum += a.Total * w
		totalWeight += w
	}
	avg := weightedSum / totalWeight

	var accSum float64
	for _, a := range recent {
		accSum += a.Accuracy
	}
	avgAccuracy := accSum / float64(len(recent))

	var d Decision
	switch {
	case avg >= e.promote && st.CurrentLevel < MaxLevel:
		d = Decision{
			Action:   ActionPromote,
			NewLevel: st.CurrentLevel + 1,
			Reason: fmt.Sprintf("Weighted avg score %.1f >= %.1f (accuracy %.1f%%) over last %d attempts",
				avg, e.promote, avgAccuracy, len(recent)),
		}
	case avg < e.demote && st.CurrentLevel > MinLevel:
		d = Decision{
			Action:   ActionDemote,
			NewLevel: st.CurrentLevel - 1,
			Reason: fmt.Sprintf("Weighted avg score %.1f < %.1f over last %d attempts",
				avg, e.demote, len(recent)),
		}
	default:
		d = Decision{
			Action:   ActionHold,
			NewLevel: st.CurrentLevel,
			Reason: fmt.Sprintf("Weighted avg score %.1f - holding at level %d (accuracy %.1f%%)",
				avg, st.CurrentLevel, avgAccuracy),
		}
	}

	st.CurrentLevel = d.NewLevel
	st.Confidence = clamp01(avg / 100)
	st.LastDecisionReason = d.Reason
	st.UpdatedAt = now

	return st, d
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
