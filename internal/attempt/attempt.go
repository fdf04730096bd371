// Package attempt owns the reading-attempt lifecycle around a live
// session: starting an attempt, finishing it (scoring, progression, and
// trouble-word bookkeeping), and recording help the reader asked for.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/readwell/readalong/internal/align"
	"github.com/readwell/readalong/internal/level"
	"github.com/readwell/readalong/internal/observe"
	"github.com/readwell/readalong/internal/score"
	"github.com/readwell/readalong/internal/store"
)

// masteryStep is added to a problem word's mastery per attempt in which it
// was read correctly. Three clean reads retire the word.
const masteryStep = 0.34

// Engine drives the attempt lifecycle against the store.
type Engine struct {
	store     store.Store
	strategy  score.Strategy
	evaluator *level.Evaluator
	window    int
	metrics   *observe.Metrics
	log       *slog.Logger

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWindow sets how many recent scored attempts feed progression.
func WithWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine returns an Engine using the given store, scoring strategy, and
// progression evaluator.
func NewEngine(st store.Store, strategy score.Strategy, evaluator *level.Evaluator, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		strategy:  strategy,
		evaluator: evaluator,
		window:    level.DefaultWindow,
		metrics:   nil,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Start opens a new attempt for a reader on a story.
func (e *Engine) Start(ctx context.Context, readerID, storyID string) (store.Attempt, error) {
	a, err := e.store.CreateAttempt(ctx, readerID, storyID)
	if err != nil {
		return store.Attempt{}, fmt.Errorf("attempt: start: %w", err)
	}
	e.log.Info("attempt started", "attempt", a.ID, "reader", readerID, "story", storyID)
	return a, nil
}

// FinishResult is everything Finish produces for one attempt.
type FinishResult struct {
	Attempt  store.Attempt
	Score    score.Result
	Decision level.Decision
	Level    level.State
}

// Finish scores the attempt from its persisted event history, stores the
// result, updates the reader's trouble words, and runs a progression
// evaluation. The score write is retried once; trouble-word and
// progression failures are logged but never fail the finish, since the
// score itself is already safe.
func (e *Engine) Finish(ctx context.Context, attemptID string) (FinishResult, error) {
	a, err := e.store.Attempt(ctx, attemptID)
	if err != nil {
		return FinishResult{}, fmt.Errorf("attempt: finish: %w", err)
	}

	story, err := e.store.Story(ctx, a.StoryID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return FinishResult{}, fmt.Errorf("attempt: finish: %w", err)
	}

	events, err := e.store.Events(ctx, attemptID)
	if err != nil {
		return FinishResult{}, fmt.Errorf("attempt: finish: %w", err)
	}

	now := e.now()
	scoreStart := now

	skips := a.Skips
	for _, ev := range events {
		if ev.Match == align.MatchSkip {
			skips++
		}
	}

	res := e.strategy.Score(score.Input{
		Events:        events,
		TotalWords:    story.WordCount,
		Duration:      now.Sub(a.StartedAt),
		Interventions: a.Interventions,
		Skips:         skips,
	})
	e.metrics.ScoreDuration.Record(ctx, e.now().Sub(scoreStart).Seconds())

	if err := e.store.FinishAttempt(ctx, attemptID, now, res); err != nil {
		e.log.Warn("score write failed, retrying once", "attempt", attemptID, "err", err)
		if err := e.store.FinishAttempt(ctx, attemptID, now, res); err != nil {
			return FinishResult{}, fmt.Errorf("attempt: persist score: %w", err)
		}
	}

	if err := e.updateProblemWords(ctx, a.ReaderID, events, story.Level); err != nil {
		e.log.Error("trouble word update failed", "attempt", attemptID, "err", err)
	}

	st, decision, err := e.evaluateProgression(ctx, a.ReaderID)
	if err != nil {
		e.log.Error("progression evaluation failed", "attempt", attemptID, "err", err)
	}

	a.EndedAt = now
	a.Score = &res

	e.metrics.RecordAttemptFinished(ctx, e.strategy.Name())
	e.log.Info("attempt finished",
		"attempt", attemptID,
		"total", res.Total,
		"words_reached", res.WordsReached,
		"action", decision.Action,
		"level", st.CurrentLevel,
	)

	return FinishResult{Attempt: a, Score: res, Decision: decision, Level: st}, nil
}

// RecordLookup tracks a pronunciation lookup as a trouble word: the reader
// asked the app to say the word out loud, so mastery resets.
func (e *Engine) RecordLookup(ctx context.Context, attemptID, word string) error {
	return e.recordHelp(ctx, attemptID, word, func(w *store.ProblemWord) {
		w.TotalLookups++
	}, 0)
}

// RecordHint tracks an explicit hint given for a word and counts it as an
// intervention against the attempt.
func (e *Engine) RecordHint(ctx context.Context, attemptID, word string) error {
	return e.recordHelp(ctx, attemptID, word, func(w *store.ProblemWord) {
		w.TotalHints++
	}, 1)
}

func (e *Engine) recordHelp(ctx context.Context, attemptID, word string, bump func(*store.ProblemWord), interventions int) error {
	w := cleanWord(word)
	if w == "" {
		return fmt.Errorf("attempt: record help: empty word")
	}

	a, err := e.store.Attempt(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("attempt: record help: %w", err)
	}

	storyLevel := 1
	if story, err := e.store.Story(ctx, a.StoryID); err == nil && story.Level > 0 {
		storyLevel = story.Level
	}

	if interventions > 0 {
		if err := e.store.AddCounts(ctx, attemptID, interventions, 0); err != nil {
			return fmt.Errorf("attempt: record help: %w", err)
		}
	}

	pw, err := e.store.ProblemWord(ctx, a.ReaderID, w)
	if errors.Is(err, store.ErrNotFound) {
		pw = store.ProblemWord{Word: w, LevelFirstSeen: storyLevel}
	} else if err != nil {
		return fmt.Errorf("attempt: record help: %w", err)
	}
	bump(&pw)
	pw.Mastery = 0
	pw.LastSeenAt = e.now()
	if err := e.store.SaveProblemWord(ctx, a.ReaderID, pw); err != nil {
		return fmt.Errorf("attempt: record help: %w", err)
	}
	return nil
}

// evaluateProgression runs one promote/hold/demote decision for a reader
// and persists the updated level state.
func (e *Engine) evaluateProgression(ctx context.Context, readerID string) (level.State, level.Decision, error) {
	st, err := e.store.LevelState(ctx, readerID)
	if errors.Is(err, store.ErrNotFound) {
		st = level.State{CurrentLevel: level.MinLevel}
	} else if err != nil {
		return level.State{}, level.Decision{}, err
	}

	recent, err := e.store.RecentScores(ctx, readerID, e.window)
	if err != nil {
		return st, level.Decision{}, err
	}

	st, decision := e.evaluator.Evaluate(st, recent, e.now())
	if err := e.store.SetLevelState(ctx, readerID, st); err != nil {
		return st, decision, err
	}
	return st, decision, nil
}

// updateProblemWords folds one attempt's event history into the reader's
// trouble-word aggregate:
//
//   - misread words are upserted with an extra miss and their mastery reset,
//   - tracked words read correctly gain one mastery step, once per attempt,
//   - words at full mastery are retired from the list.
func (e *Engine) updateProblemWords(ctx context.Context, readerID string, events []align.Event, storyLevel int) error {
	if storyLevel < 1 {
		storyLevel = 1
	}
	now := e.now()

	missed := make(map[string]int)
	correct := make(map[string]struct{})
	for _, ev := range events {
		w := cleanWord(ev.Expected)
		if w == "" {
			continue
		}
		switch ev.Match {
		case align.MatchMismatch:
			missed[w]++
		case align.MatchCorrect, align.MatchFuzzy:
			correct[w] = struct{}{}
		}
	}

	for w, misses := range missed {
		pw, err := e.store.ProblemWord(ctx, readerID, w)
		if errors.Is(err, store.ErrNotFound) {
			pw = store.ProblemWord{Word: w, LevelFirstSeen: storyLevel}
		} else if err != nil {
			return err
		}
		pw.TotalMisses += misses
		pw.Mastery = 0
		pw.LastSeenAt = now
		if err := e.store.SaveProblemWord(ctx, readerID, pw); err != nil {
			return err
		}
	}

	// Correct reads run after the miss pass, so a word both missed and read
	// correctly in one attempt ends at a single mastery step: the miss
	// resets it, the correct read starts rebuilding it.
	for w := range correct {
		pw, err := e.store.ProblemWord(ctx, readerID, w)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		pw.Mastery = round2(pw.Mastery + masteryStep)
		pw.LastSeenAt = now
		if err := e.store.SaveProblemWord(ctx, readerID, pw); err != nil {
			return err
		}
	}

	words, err := e.store.ProblemWords(ctx, readerID)
	if err != nil {
		return err
	}
	for _, pw := range words {
		if pw.Mastery >= 1.0 {
			e.log.Info("word mastered and retired",
				"reader", readerID, "word", pw.Word, "mastery", pw.Mastery)
			if err := e.store.DeleteProblemWord(ctx, readerID, pw.Word); err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanWord lowercases and strips everything but letters and digits so
// trouble-word keys stay consistent across punctuation variants.
func cleanWord(w string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(w) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func round2(x float64) float64 {
	return float64(int(x*100+0.5)) / 100
}
