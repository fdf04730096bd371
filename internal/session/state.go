package session

import (
	"time"

	"github.com/readwell/readalong/internal/align"
)

// Phase is the orchestrator's lifecycle state.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseActive     Phase = "active"
	PhasePaused     Phase = "paused"
	PhaseCompleted  Phase = "completed"
	PhaseAborted    Phase = "aborted"
)

// state is the mutable per-session state. It has exactly one owner: the
// orchestrator's apply loop. No other goroutine reads or writes it; every
// mutation arrives as an intent and is applied serially.
type state struct {
	phase Phase

	// cursor is the reader's confirmed position in the target sequence.
	// Monotonically non-decreasing.
	cursor int

	paused         bool
	pauseStartedAt time.Time
	pausedTotal    time.Duration

	// stuckCount counts consecutive transcript chunks that produced no
	// forward evidence while mismatching the current word.
	stuckCount int

	reconnects int
	stopped    bool

	// events is the append-only buffer flushed to storage at teardown.
	events []align.Event
}

// elapsed returns active reading time: wall clock since start minus the
// total paused duration (including the currently open pause, if any).
func (s *state) elapsed(start, now time.Time) time.Duration {
	e := now.Sub(start) - s.pausedTotal
	if s.paused && !s.pauseStartedAt.IsZero() {
		e -= now.Sub(s.pauseStartedAt)
	}
	if e < 0 {
		return 0
	}
	return e
}

// Snapshot is a read-only copy of session state for observation and tests.
type Snapshot struct {
	Phase       Phase
	Cursor      int
	Paused      bool
	PausedTotal time.Duration
	StuckCount  int
	Reconnects  int
	EventCount  int
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		Phase:       s.phase,
		Cursor:      s.cursor,
		Paused:      s.paused,
		PausedTotal: s.pausedTotal,
		StuckCount:  s.stuckCount,
		Reconnects:  s.reconnects,
		EventCount:  len(s.events),
	}
}
