package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readwell/readalong/internal/align"
	"github.com/readwell/readalong/internal/level"
	"github.com/readwell/readalong/internal/score"
	"github.com/readwell/readalong/internal/store"
)

// Store implements [store.Store] on PostgreSQL. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a Store, establishes a connection pool to the database at
// dsn, and runs [Migrate] so all required tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Story(ctx context.Context, storyID string) (store.Story, error) {
	const q = `
		SELECT id, title, text, level, word_count, created_at
		FROM   stories
		WHERE  id = $1`

	var st store.Story
	err := s.pool.QueryRow(ctx, q, storyID).Scan(
		&st.ID, &st.Title, &st.Text, &st.Level, &st.WordCount, &st.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Story{}, store.ErrNotFound
	}
	if err != nil {
		return store.Story{}, fmt.Errorf("postgres store: get story: %w", err)
	}
	return st, nil
}

func (s *Store) SaveStory(ctx context.Context, st store.Story) (store.Story, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.WordCount == 0 {
		st.WordCount = len(strings.Fields(st.Text))
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}

	const q = `
		INSERT INTO stories (id, title, text, level, word_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET title = $2, text = $3, level = $4, word_count = $5`

	if _, err := s.pool.Exec(ctx, q,
		st.ID, st.Title, st.Text, st.Level, st.WordCount, st.CreatedAt,
	); err != nil {
		return store.Story{}, fmt.Errorf("postgres store: save story: %w", err)
	}
	return st, nil
}

func (s *Store) CreateAttempt(ctx context.Context, readerID, storyID string) (store.Attempt, error) {
	if _, err := s.Story(ctx, storyID); err != nil {
		return store.Attempt{}, err
	}

	a := store.Attempt{
		ID:        uuid.NewString(),
		ReaderID:  readerID,
		StoryID:   storyID,
		StartedAt: time.Now(),
	}

	const q = `
		INSERT INTO attempts (id, reader_id, story_id, started_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, a.ID, a.ReaderID, a.StoryID, a.StartedAt); err != nil {
		return store.Attempt{}, fmt.Errorf("postgres store: create attempt: %w", err)
	}
	return a, nil
}

func (s *Store) Attempt(ctx context.Context, attemptID string) (store.Attempt, error) {
	const q = `
		SELECT id, reader_id, story_id, started_at, ended_at, interventions, skips, score
		FROM   attempts
		WHERE  id = $1`

	var (
		a        store.Attempt
		endedAt  *time.Time
		scoreRaw []byte
	)
	err := s.pool.QueryRow(ctx, q, attemptID).Scan(
		&a.ID, &a.ReaderID, &a.StoryID, &a.StartedAt, &endedAt,
		&a.Interventions, &a.Skips, &scoreRaw,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Attempt{}, store.ErrNotFound
	}
	if err != nil {
		return store.Attempt{}, fmt.Errorf("postgres store: get attempt: %w", err)
	}

	if endedAt != nil {
		a.EndedAt = *endedAt
	}
	if len(scoreRaw) > 0 {
		var res score.Result
		if err := json.Unmarshal(scoreRaw, &res); err != nil {
			return store.Attempt{}, fmt.Errorf("postgres store: decode score: %w", err)
		}
		a.Score = &res
	}
	return a, nil
}

func (s *Store) TargetSequence(ctx context.Context, attemptID string) ([]string, error) {
	const q = `
		SELECT st.text
		FROM   attempts a
		JOIN   stories st ON st.id = a.story_id
		WHERE  a.id = $1`

	var text string
	err := s.pool.QueryRow(ctx, q, attemptID).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: target sequence: %w", err)
	}
	return strings.Fields(text), nil
}

func (s *Store) AppendEvents(ctx context.Context, attemptID string, events []align.Event) error {
	if len(events) == 0 {
		return nil
	}

	const q = `
		INSERT INTO word_events (attempt_id, word_index, expected, recognized, match_kind)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(q, attemptID, e.WordIndex, e.Expected, e.Recognized, string(e.Match))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: append events: %w", err)
	}
	return nil
}

func (s *Store) Events(ctx context.Context, attemptID string) ([]align.Event, error) {
	const q = `
		SELECT word_index, expected, recognized, match_kind
		FROM   word_events
		WHERE  attempt_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, attemptID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (align.Event, error) {
		var (
			e    align.Event
			kind string
		)
		if err := row.Scan(&e.WordIndex, &e.Expected, &e.Recognized, &kind); err != nil {
			return align.Event{}, err
		}
		e.Match = align.MatchKind(kind)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan events: %w", err)
	}
	return events, nil
}

func (s *Store) AddCounts(ctx context.Context, attemptID string, interventions, skips int) error {
	const q = `
		UPDATE attempts
		SET    interventions = interventions + $2,
		       skips         = skips + $3
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, attemptID, interventions, skips)
	if err != nil {
		return fmt.Errorf("postgres store: add counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FinishAttempt(ctx context.Context, attemptID string, endedAt time.Time, res score.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("postgres store: encode score: %w", err)
	}

	const q = `
		UPDATE attempts
		SET    ended_at = $2, score = $3
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, attemptID, endedAt, raw)
	if err != nil {
		return fmt.Errorf("postgres store: finish attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecentScores(ctx context.Context, readerID string, n int) ([]level.Attempt, error) {
	const q = `
		SELECT score
		FROM   attempts
		WHERE  reader_id = $1
		  AND  score IS NOT NULL
		ORDER  BY started_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, readerID, n)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent scores: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (level.Attempt, error) {
		var raw []byte
		if err := row.Scan(&raw); err != nil {
			return level.Attempt{}, err
		}
		var res score.Result
		if err := json.Unmarshal(raw, &res); err != nil {
			return level.Attempt{}, err
		}
		return level.Attempt{Total: res.Total, Accuracy: res.Accuracy}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan recent scores: %w", err)
	}
	return out, nil
}

func (s *Store) LevelState(ctx context.Context, readerID string) (level.State, error) {
	const q = `
		SELECT current_level, confidence, reason, updated_at
		FROM   level_states
		WHERE  reader_id = $1`

	var st level.State
	err := s.pool.QueryRow(ctx, q, readerID).Scan(
		&st.CurrentLevel, &st.Confidence, &st.LastDecisionReason, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return level.State{}, store.ErrNotFound
	}
	if err != nil {
		return level.State{}, fmt.Errorf("postgres store: level state: %w", err)
	}
	return st, nil
}

func (s *Store) SetLevelState(ctx context.Context, readerID string, st level.State) error {
	const q = `
		INSERT INTO level_states (reader_id, current_level, confidence, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reader_id) DO UPDATE
		SET current_level = $2, confidence = $3, reason = $4, updated_at = $5`

	if _, err := s.pool.Exec(ctx, q,
		readerID, st.CurrentLevel, st.Confidence, st.LastDecisionReason, st.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres store: set level state: %w", err)
	}
	return nil
}

func (s *Store) ProblemWord(ctx context.Context, readerID, word string) (store.ProblemWord, error) {
	const q = `
		SELECT word, level_first_seen, total_misses, total_hints, total_lookups, mastery, last_seen_at
		FROM   problem_words
		WHERE  reader_id = $1 AND word = $2`

	var w store.ProblemWord
	err := s.pool.QueryRow(ctx, q, readerID, word).Scan(
		&w.Word, &w.LevelFirstSeen, &w.TotalMisses, &w.TotalHints,
		&w.TotalLookups, &w.Mastery, &w.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ProblemWord{}, store.ErrNotFound
	}
	if err != nil {
		return store.ProblemWord{}, fmt.Errorf("postgres store: problem word: %w", err)
	}
	return w, nil
}

func (s *Store) SaveProblemWord(ctx context.Context, readerID string, w store.ProblemWord) error {
	const q = `
		INSERT INTO problem_words
		    (reader_id, word, level_first_seen, total_misses, total_hints, total_lookups, mastery, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reader_id, word) DO UPDATE
		SET total_misses  = $4,
		    total_hints   = $5,
		    total_lookups = $6,
		    mastery       = $7,
		    last_seen_at  = $8`

	if _, err := s.pool.Exec(ctx, q,
		readerID, w.Word, w.LevelFirstSeen, w.TotalMisses, w.TotalHints,
		w.TotalLookups, w.Mastery, w.LastSeenAt,
	); err != nil {
		return fmt.Errorf("postgres store: save problem word: %w", err)
	}
	return nil
}

func (s *Store) DeleteProblemWord(ctx context.Context, readerID, word string) error {
	const q = `DELETE FROM problem_words WHERE reader_id = $1 AND word = $2`
	if _, err := s.pool.Exec(ctx, q, readerID, word); err != nil {
		return fmt.Errorf("postgres store: delete problem word: %w", err)
	}
	return nil
}

func (s *Store) ProblemWords(ctx context.Context, readerID string) ([]store.ProblemWord, error) {
	const q = `
		SELECT word, level_first_seen, total_misses, total_hints, total_lookups, mastery, last_seen_at
		FROM   problem_words
		WHERE  reader_id = $1
		ORDER  BY word`

	rows, err := s.pool.Query(ctx, q, readerID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: problem words: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ProblemWord, error) {
		var w store.ProblemWord
		err := row.Scan(
			&w.Word, &w.LevelFirstSeen, &w.TotalMisses, &w.TotalHints,
			&w.TotalLookups, &w.Mastery, &w.LastSeenAt,
		)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan problem words: %w", err)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
