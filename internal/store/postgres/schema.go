// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store].
//
// All tables share a single [pgxpool.Pool] connection pool. [Migrate] is
// idempotent and safe to run on every application start.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlStories = `
CREATE TABLE IF NOT EXISTS stories (
    id          TEXT         PRIMARY KEY,
    title       TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL,
    level       INT          NOT NULL DEFAULT 1,
    word_count  INT          NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_stories_level ON stories (level);
`

const ddlAttempts = `
CREATE TABLE IF NOT EXISTS attempts (
    id             TEXT         PRIMARY KEY,
    reader_id      TEXT         NOT NULL,
    story_id       TEXT         NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
    started_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at       TIMESTAMPTZ,
    interventions  INT          NOT NULL DEFAULT 0,
    skips          INT          NOT NULL DEFAULT 0,
    score          JSONB
);

CREATE INDEX IF NOT EXISTS idx_attempts_reader_id
    ON attempts (reader_id);

CREATE INDEX IF NOT EXISTS idx_attempts_reader_started
    ON attempts (reader_id, started_at DESC);
`

const ddlWordEvents = `
CREATE TABLE IF NOT EXISTS word_events (
    id          BIGSERIAL    PRIMARY KEY,
    attempt_id  TEXT         NOT NULL REFERENCES attempts (id) ON DELETE CASCADE,
    word_index  INT          NOT NULL,
    expected    TEXT         NOT NULL,
    recognized  TEXT,
    match_kind  TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_word_events_attempt_id
    ON word_events (attempt_id);
`

const ddlLevelStates = `
CREATE TABLE IF NOT EXISTS level_states (
    reader_id      TEXT              PRIMARY KEY,
    current_level  INT               NOT NULL DEFAULT 1,
    confidence     DOUBLE PRECISION  NOT NULL DEFAULT 0,
    reason         TEXT              NOT NULL DEFAULT '',
    updated_at     TIMESTAMPTZ       NOT NULL DEFAULT now()
);
`

const ddlProblemWords = `
CREATE TABLE IF NOT EXISTS problem_words (
    reader_id         TEXT              NOT NULL,
    word              TEXT              NOT NULL,
    level_first_seen  INT               NOT NULL DEFAULT 1,
    total_misses      INT               NOT NULL DEFAULT 0,
    total_hints       INT               NOT NULL DEFAULT 0,
    total_lookups     INT               NOT NULL DEFAULT 0,
    mastery           DOUBLE PRECISION  NOT NULL DEFAULT 0,
    last_seen_at      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    PRIMARY KEY (reader_id, word)
);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlStories,
		ddlAttempts,
		ddlWordEvents,
		ddlLevelStates,
		ddlProblemWords,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
