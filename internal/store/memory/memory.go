// Package memory is an in-process store.Store. It backs tests and
// single-node setups where running Postgres is not worth the trouble.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/readwell/readalong/internal/align"
	"github.com/readwell/readalong/internal/level"
	"github.com/readwell/readalong/internal/score"
	"github.com/readwell/readalong/internal/store"
)

// Store keeps every record in maps behind one mutex. Safe for concurrent
// use.
type Store struct {
	mu       sync.Mutex
	stories  map[string]store.Story
	attempts map[string]store.Attempt
	events   map[string][]align.Event
	levels   map[string]level.State
	problems map[string]map[string]store.ProblemWord
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		stories:  make(map[string]store.Story),
		attempts: make(map[string]store.Attempt),
		events:   make(map[string][]align.Event),
		levels:   make(map[string]level.State),
		problems: make(map[string]map[string]store.ProblemWord),
	}
}

func (s *Store) Story(_ context.Context, storyID string) (store.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stories[storyID]
	if !ok {
		return store.Story{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) SaveStory(_ context.Context, st store.Story) (store.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.WordCount == 0 {
		st.WordCount = len(strings.Fields(st.Text))
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	s.stories[st.ID] = st
	return st, nil
}

func (s *Store) CreateAttempt(_ context.Context, readerID, storyID string) (store.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stories[storyID]; !ok {
		return store.Attempt{}, store.ErrNotFound
	}
	a := store.Attempt{
		ID:        uuid.NewString(),
		ReaderID:  readerID,
		StoryID:   storyID,
		StartedAt: time.Now(),
	}
	s.attempts[a.ID] = a
	return a, nil
}

func (s *Store) Attempt(_ context.Context, attemptID string) (store.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return store.Attempt{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) TargetSequence(_ context.Context, attemptID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, store.ErrNotFound
	}
	st, ok := s.stories[a.StoryID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return strings.Fields(st.Text), nil
}

func (s *Store) AppendEvents(_ context.Context, attemptID string, events []align.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return store.ErrNotFound
	}
	s.events[attemptID] = append(s.events[attemptID], events...)
	return nil
}

func (s *Store) Events(_ context.Context, attemptID string) ([]align.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(s.events[attemptID]), nil
}

func (s *Store) AddCounts(_ context.Context, attemptID string, interventions, skips int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	a.Interventions += interventions
	a.Skips += skips
	s.attempts[attemptID] = a
	return nil
}

func (s *Store) FinishAttempt(_ context.Context, attemptID string, endedAt time.Time, res score.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	a.EndedAt = endedAt
	a.Score = &res
	s.attempts[attemptID] = a
	return nil
}

func (s *Store) RecentScores(_ context.Context, readerID string, n int) ([]level.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scored []store.Attempt
	for _, a := range s.attempts {
		if a.ReaderID == readerID && a.Score != nil {
			scored = append(scored, a)
		}
	}
	slices.SortFunc(scored, func(a, b store.Attempt) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if len(scored) > n {
		scored = scored[:n]
	}

	out := make([]level.Attempt, 0, len(scored))
	for _, a := range scored {
		out = append(out, level.Attempt{Total: a.Score.Total, Accuracy: a.Score.Accuracy})
	}
	return out, nil
}

func (s *Store) LevelState(_ context.Context, readerID string) (level.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.levels[readerID]
	if !ok {
		return level.State{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) SetLevelState(_ context.Context, readerID string, st level.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[readerID] = st
	return nil
}

func (s *Store) ProblemWord(_ context.Context, readerID, word string) (store.ProblemWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.problems[readerID][word]
	if !ok {
		return store.ProblemWord{}, store.ErrNotFound
	}
	return w, nil
}

func (s *Store) SaveProblemWord(_ context.Context, readerID string, w store.ProblemWord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.problems[readerID]
	if !ok {
		m = make(map[string]store.ProblemWord)
		s.problems[readerID] = m
	}
	m[w.Word] = w
	return nil
}

func (s *Store) DeleteProblemWord(_ context.Context, readerID, word string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.problems[readerID], word)
	return nil
}

func (s *Store) ProblemWords(_ context.Context, readerID string) ([]store.ProblemWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ProblemWord, 0, len(s.problems[readerID]))
	for _, w := range s.problems[readerID] {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b store.ProblemWord) int {
		return strings.Compare(a.Word, b.Word)
	})
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
