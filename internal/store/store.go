// Package store defines the persistence boundary of the reading engine.
//
// The engine only ever talks to these interfaces; the postgres subpackage
// implements them against a real database and the memory subpackage holds
// everything in process for tests and single-node setups.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/readwell/readalong/internal/align"
	"github.com/readwell/readalong/internal/level"
	"github.com/readwell/readalong/internal/score"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("store: not found")

// Story is one readable text with its leveling metadata.
type Story struct {
	ID        string
	Title     string
	Text      string
	Level     int
	WordCount int
	CreatedAt time.Time
}

// Attempt is one reading session of one story by one reader.
type Attempt struct {
	ID       string
	ReaderID string
	StoryID  string

	StartedAt time.Time
	EndedAt   time.Time

	Interventions int
	Skips         int

	// Score is nil until the attempt has been finished and scored.
	Score *score.Result
}

// Finished reports whether the attempt has ended.
func (a Attempt) Finished() bool { return !a.EndedAt.IsZero() }

// ProblemWord is one entry in a reader's trouble-word aggregate.
type ProblemWord struct {
	Word           string
	LevelFirstSeen int
	TotalMisses    int
	TotalHints     int
	TotalLookups   int
	Mastery        float64
	LastSeenAt     time.Time
}

// StoryStore persists stories.
type StoryStore interface {
	Story(ctx context.Context, storyID string) (Story, error)
	SaveStory(ctx context.Context, s Story) (Story, error)
}

// AttemptStore persists attempts and their event history.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, readerID, storyID string) (Attempt, error)
	Attempt(ctx context.Context, attemptID string) (Attempt, error)

	// TargetSequence resolves the ordered word list of the attempt's story.
	TargetSequence(ctx context.Context, attemptID string) ([]string, error)

	// AppendEvents appends alignment events to the attempt's history.
	AppendEvents(ctx context.Context, attemptID string, events []align.Event) error

	// Events returns the attempt's full event history in append order.
	Events(ctx context.Context, attemptID string) ([]align.Event, error)

	// AddCounts increments the intervention and skip counters.
	AddCounts(ctx context.Context, attemptID string, interventions, skips int) error

	// FinishAttempt records the end time and the score breakdown.
	FinishAttempt(ctx context.Context, attemptID string, endedAt time.Time, res score.Result) error

	// RecentScores returns up to n scored attempt summaries for a reader,
	// newest first.
	RecentScores(ctx context.Context, readerID string, n int) ([]level.Attempt, error)
}

// LevelStore persists per-reader level state.
type LevelStore interface {
	// LevelState returns the reader's level state, or ErrNotFound for a
	// reader that has never been evaluated.
	LevelState(ctx context.Context, readerID string) (level.State, error)
	SetLevelState(ctx context.Context, readerID string, st level.State) error
}

// ProblemWordStore persists the trouble-word aggregate. The mastery and
// miss bookkeeping semantics live in the attempt engine; this layer only
// stores records.
type ProblemWordStore interface {
	ProblemWord(ctx context.Context, readerID, word string) (ProblemWord, error)
	SaveProblemWord(ctx context.Context, readerID string, w ProblemWord) error
	DeleteProblemWord(ctx context.Context, readerID, word string) error
	ProblemWords(ctx context.Context, readerID string) ([]ProblemWord, error)
}

// Store is the full persistence surface the application wires together.
type Store interface {
	StoryStore
	AttemptStore
	LevelStore
	ProblemWordStore

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
