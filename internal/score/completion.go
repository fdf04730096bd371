package score

// Completion weights.
const (
	completionMax = 80.0
	effortMax     = 20.0
)

// Completion is the canonical strategy: the score is dominated by how much
// of the story the reader got through, plus an effort bonus. Mistakes along
// the way do not subtract.
type Completion struct{}

var _ Strategy = Completion{}

func (Completion) Name() string { return StrategyCompletion }

func (Completion) Score(in Input) Result {
	if in.TotalWords == 0 {
		return emptyResult(StrategyCompletion)
	}

	reached := wordsReached(in.Events, in.TotalWords)
	ratio := float64(reached) / float64(in.TotalWords)

	completion := round1(ratio * completionMax)
	effort := effortBonus(ratio)
	total := round1(min(completion+effort, 100))

	return Result{
		Total:      total,
		Completion: completion,
		Effort:     effort,

		// Component fields mirror the completion breakdown so downstream
		// consumers keyed on accuracy keep working with either strategy.
		Accuracy:     completion,
		Fluency:      effort,
		Independence: 0,

		WordsPerMinute: wordsPerMinute(reached, in.Duration),
		WordsReached:   reached,
		Encouragement:  pickEncouragement(ratio),
		Strategy:       StrategyCompletion,
	}
}

// effortBonus grants the full bonus for near-complete reads and scales
// partial credit down in pieces: completion ratio 0.5 is worth half the
// bonus, 0.1 a single point.
func effortBonus(ratio float64) float64 {
	switch {
	case ratio >= 0.9:
		return effortMax
	case ratio >= 0.5:
		return round1(10 + (ratio-0.5)/0.4*10)
	case ratio >= 0.1:
		return round1(ratio / 0.5 * 10)
	}
	return round1(ratio * effortMax)
}
