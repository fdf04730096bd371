// Package score turns a finished attempt's event history into a 0-100
// score breakdown.
//
// Two scoring policies exist. The completion strategy is the canonical one:
// it rewards how far through the story the reader got, which avoids
// penalising fast readers whose transcription lags behind. The components
// strategy is an alternate that grades accuracy, fluency, and independence
// separately. Both are pure and deterministic.
package score

import (
	"fmt"
	"math"
	"time"

	"github.com/readwell/readalong/internal/align"
)

// Strategy names accepted by New.
const (
	StrategyCompletion = "completion"
	StrategyComponents = "components"
)

// Input is everything a strategy may consider for one attempt.
type Input struct {
	// Events is the full alignment event history, in order.
	Events []align.Event

	// TotalWords is the length of the target sequence.
	TotalWords int

	// Duration is active reading time, paused time excluded.
	Duration time.Duration

	// Interventions counts hints or adult help given during the attempt.
	Interventions int

	// Skips counts words the reader was allowed to jump over.
	Skips int
}

// Result is a computed score breakdown. All fields are derived, never
// mutated after computation.
type Result struct {
	Total float64 `json:"total"`

	Completion float64 `json:"completion"`
	Effort     float64 `json:"effort"`

	Accuracy     float64 `json:"accuracy"`
	Fluency      float64 `json:"fluency"`
	Independence float64 `json:"independence"`

	WordsPerMinute float64 `json:"wpm"`
	WordsReached   int     `json:"words_reached"`

	Encouragement string `json:"encouragement"`
	Strategy      string `json:"strategy"`
}

// Strategy computes a Result from an attempt's history.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Score computes the breakdown. Must handle TotalWords == 0 without
	// dividing by zero.
	Score(in Input) Result
}

// New returns the named strategy. The empty string selects the canonical
// completion strategy.
func New(name string) (Strategy, error) {
	switch name {
	case "", StrategyCompletion:
		return Completion{}, nil
	case StrategyComponents:
		return Components{}, nil
	}
	return nil, fmt.Errorf("score: unknown strategy %q", name)
}

// wordsReached derives how far the reader got from the highest word index
// seen in the event history.
func wordsReached(events []align.Event, totalWords int) int {
	if len(events) == 0 {
		return 0
	}
	max := 0
	for _, e := range events {
		if e.WordIndex > max {
			max = e.WordIndex
		}
	}
	return min(max+1, totalWords)
}

func wordsPerMinute(wordsReached int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return round1(float64(wordsReached) / d.Seconds() * 60)
}

// pickEncouragement selects the message shown to the reader. Thresholds are
// on completion ratio, not total score: a slow but thorough read deserves
// the same cheer as a quick one.
func pickEncouragement(completionRatio float64) string {
	switch {
	case completionRatio >= 0.95:
		return "You finished the whole story! You're a reading superstar! 🌟"
	case completionRatio >= 0.75:
		return "Wow, you read so much! Almost finished! 📚"
	case completionRatio >= 0.50:
		return "Great effort! You're more than halfway through! 💪"
	case completionRatio >= 0.25:
		return "Good start! Try reading a little more next time! 🎉"
	}
	return "Nice try! Every page you read helps you grow! Keep going! 📖"
}

func emptyResult(strategy string) Result {
	return Result{
		Encouragement: "Let's try reading together! 📖",
		Strategy:      strategy,
	}
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
