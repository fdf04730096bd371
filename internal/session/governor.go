package session

import (
	"math"
	"time"
)

// Governor defaults. A fluent young reader peaks around 150+ words per
// minute, roughly 2.5-3 words per second in bursts; the 3.5 wps cap stops
// hallucination-driven runaway without holding back a fast reader. The
// per-message delta cap bounds the damage of any single provider message
// independently of elapsed time.
const (
	DefaultMaxWordsPerSecond = 3.5
	DefaultMaxDeltaPerMsg    = 8
)

// Governor clamps proposed cursor positions so the displayed reading
// position can never outrun a plausible human reading rate. It is stateless
// and safe for concurrent use.
type Governor struct {
	maxWordsPerSecond float64
	maxDeltaPerMsg    int
}

// NewGovernor returns a Governor with the given rate cap and per-message
// advance cap. Non-positive arguments fall back to the defaults.
func NewGovernor(maxWordsPerSecond float64, maxDeltaPerMsg int) *Governor {
	if maxWordsPerSecond <= 0 {
		maxWordsPerSecond = DefaultMaxWordsPerSecond
	}
	if maxDeltaPerMsg <= 0 {
		maxDeltaPerMsg = DefaultMaxDeltaPerMsg
	}
	return &Governor{
		maxWordsPerSecond: maxWordsPerSecond,
		maxDeltaPerMsg:    maxDeltaPerMsg,
	}
}

// Clamp returns the governed cursor for a proposal made at elapsed reading
// time (wall clock minus paused time). The result is always:
//
//   - >= current (the cursor never moves backwards),
//   - <= proposed,
//   - <= current + the per-message delta cap,
//   - <= floor(elapsed * maxWordsPerSecond) + 1.
func (g *Governor) Clamp(elapsed time.Duration, current, proposed int) int {
	if proposed < current {
		return current
	}

	governed := proposed

	if maxDelta := current + g.maxDeltaPerMsg; governed > maxDelta {
		governed = maxDelta
	}

	maxAllowed := int(math.Floor(elapsed.Seconds()*g.maxWordsPerSecond)) + 1
	if governed > maxAllowed {
		governed = maxAllowed
	}

	if governed < current {
		return current
	}
	return governed
}
