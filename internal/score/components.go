package score

import "github.com/readwell/readalong/internal/align"

// Component weights and tuning.
const (
	accuracyMax     = 60.0
	fluencyMax      = 25.0
	independenceMax = 15.0

	// targetWPM is the pace that earns full fluency credit.
	targetWPM = 90.0

	// stallPenalty is deducted from the fluency ratio per mismatch chunk,
	// capped so a rough patch cannot zero out an otherwise fluent read.
	stallPenalty    = 0.05
	stallPenaltyCap = 0.5

	interventionPenalty = 0.1
	skipPenalty         = 0.05
)

// Components is the alternate strategy: accuracy from the ratio of spoken
// matches to attempts, fluency from reading pace penalised by stalls, and
// independence from how much help the reader needed.
type Components struct{}

var _ Strategy = Components{}

func (Components) Name() string { return StrategyComponents }

func (Components) Score(in Input) Result {
	if in.TotalWords == 0 {
		return emptyResult(StrategyComponents)
	}

	var spoken, mismatches int
	for _, e := range in.Events {
		switch e.Match {
		case align.MatchCorrect, align.MatchFuzzy:
			spoken++
		case align.MatchMismatch:
			mismatches++
		}
	}

	reached := wordsReached(in.Events, in.TotalWords)
	ratio := float64(reached) / float64(in.TotalWords)
	wpm := wordsPerMinute(reached, in.Duration)

	accuracy := round1(accuracyRatio(spoken, mismatches) * accuracyMax)
	fluency := round1(fluencyRatio(wpm, mismatches) * fluencyMax)
	independence := round1(independenceRatio(in.Interventions, in.Skips) * independenceMax)
	total := round1(min(accuracy+fluency+independence, 100))

	return Result{
		Total: total,

		Accuracy:     accuracy,
		Fluency:      fluency,
		Independence: independence,

		WordsPerMinute: wpm,
		WordsReached:   reached,
		Encouragement:  pickEncouragement(ratio),
		Strategy:       StrategyComponents,
	}
}

func accuracyRatio(spoken, mismatches int) float64 {
	attempted := spoken + mismatches
	if attempted == 0 {
		return 0
	}
	return float64(spoken) / float64(attempted)
}

func fluencyRatio(wpm float64, stalls int) float64 {
	pace := wpm / targetWPM
	if pace > 1 {
		pace = 1
	}
	penalty := float64(stalls) * stallPenalty
	if penalty > stallPenaltyCap {
		penalty = stallPenaltyCap
	}
	if pace-penalty < 0 {
		return 0
	}
	return pace - penalty
}

func independenceRatio(interventions, skips int) float64 {
	r := 1 - float64(interventions)*interventionPenalty - float64(skips)*skipPenalty
	if r < 0 {
		return 0
	}
	return r
}
