package level_test

import (
	"strings"
	"testing"
	"time"

	"github.com/readwell/readalong/internal/level"
)

func attempts(totals ...float64) []level.Attempt {
	out := make([]level.Attempt, 0, len(totals))
	for _, t := range totals {
		out = append(out, level.Attempt{Total: t, Accuracy: t})
	}
	return out
}

func TestEvaluateHoldsBelowThreeAttempts(t *testing.T) {
	t.Parallel()

	e := level.NewEvaluator()
	now := time.Now()

	for _, recent := range [][]level.Attempt{nil, attempts(100), attempts(100, 100)} {
		st, d := e.Evaluate(level.State{CurrentLevel: 3}, recent, now)
		if d.Action != level.ActionHold {
			t.Errorf("%d attempts: action = %s, want hold", len(recent), d.Action)
		}
		if st.CurrentLevel != 3 {
			t.Errorf("%d attempts: level changed to %d", len(recent), st.CurrentLevel)
		}
		if !strings.Contains(d.Reason, "need at least 3") {
			t.Errorf("reason = %q, want the too-few-attempts explanation", d.Reason)
		}
	}
}

func TestEvaluateDecisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		current    int
		recent     []level.Attempt
		wantAction level.Action
		wantLevel  int
	}{
		{
			name:    "high scores promote",
			current: 2, recent: attempts(90, 85, 88),
			wantAction: level.ActionPromote, wantLevel: 3,
		},
		{
			name:    "low scores demote",
			current: 4, recent: attempts(30, 20, 40),
			wantAction: level.ActionDemote, wantLevel: 3,
		},
		{
			name:    "middling scores hold",
			current: 3, recent: attempts(60, 65, 70),
			wantAction: level.ActionHold, wantLevel: 3,
		},
		{
			name:    "promotion saturates at the top level",
			current: level.MaxLevel, recent: attempts(100, 100, 100),
			wantAction: level.ActionHold, wantLevel: level.MaxLevel,
		},
		{
			name:    "demotion saturates at the bottom level",
			current: level.MinLevel, recent: attempts(0, 0, 0),
			wantAction: level.ActionHold, wantLevel: level.MinLevel,
		},
		{
			// Weights are 3,2,1 newest first: (270+180+30)/6 = 80.
			name:    "recent strong reads outweigh an old weak one",
			current: 2, recent: attempts(90, 90, 30),
			wantAction: level.ActionPromote, wantLevel: 3,
		},
		{
			// Same scores reversed: (90+180+90)/6 = 60.
			name:    "recent weak read drags the average down",
			current: 2, recent: attempts(30, 90, 90),
			wantAction: level.ActionHold, wantLevel: 2,
		},
	}

	e := level.NewEvaluator()
	now := time.Now()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st, d := e.Evaluate(level.State{CurrentLevel: tt.current}, tt.recent, now)
			if d.Action != tt.wantAction {
				t.Errorf("action = %s, want %s (reason: %s)", d.Action, tt.wantAction, d.Reason)
			}
			if d.NewLevel != tt.wantLevel || st.CurrentLevel != tt.wantLevel {
				t.Errorf("level = %d/%d, want %d", d.NewLevel, st.CurrentLevel, tt.wantLevel)
			}
			if d.Reason == "" {
				t.Error("decision carries no reason")
			}
		})
	}
}

func TestEvaluateUpdatesConfidence(t *testing.T) {
	t.Parallel()

	e := level.NewEvaluator()
	st, _ := e.Evaluate(level.State{CurrentLevel: 3}, attempts(60, 60, 60), time.Now())
	if st.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", st.Confidence)
	}

	st, _ = e.Evaluate(level.State{CurrentLevel: 3}, attempts(100, 100, 100), time.Now())
	if st.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", st.Confidence)
	}
}

func TestEvaluateRespectsWindow(t *testing.T) {
	t.Parallel()

	// Only the two newest attempts fit the window, which is below the
	// three-attempt floor.
	e := level.NewEvaluator(level.WithWindow(2))
	_, d := e.Evaluate(level.State{CurrentLevel: 2}, attempts(90, 90, 90, 90), time.Now())
	if d.Action != level.ActionHold {
		t.Errorf("action = %s, want hold with a too-small window", d.Action)
	}
}

func TestEvaluateCustomThresholds(t *testing.T) {
	t.Parallel()

	e := level.NewEvaluator(level.WithThresholds(50, 20))
	_, d := e.Evaluate(level.State{CurrentLevel: 2}, attempts(60, 55, 58), time.Now())
	if d.Action != level.ActionPromote {
		t.Errorf("action = %s, want promote with a lowered threshold", d.Action)
	}
}

func TestEvaluateNormalisesMissingLevel(t *testing.T) {
	t.Parallel()

	e := level.NewEvaluator()
	st, _ := e.Evaluate(level.State{}, nil, time.Now())
	if st.CurrentLevel != level.MinLevel {
		t.Errorf("level = %d, want %d for a fresh reader", st.CurrentLevel, level.MinLevel)
	}
}

func TestWordRange(t *testing.T) {
	t.Parallel()

	low, high, ok := level.WordRange(1)
	if !ok || low != 100 || high != 200 {
		t.Errorf("WordRange(1) = %d, %d, %v, want 100, 200, true", low, high, ok)
	}
	if _, _, ok := level.WordRange(7); ok {
		t.Error("WordRange(7) reported ok for a level that does not exist")
	}
}
