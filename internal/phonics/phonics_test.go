package phonics_test

import (
	"strings"
	"testing"

	"github.com/readwell/readalong/internal/phonics"
)

func TestTricky(t *testing.T) {
	t.Parallel()

	tests := []struct {
		word string
		want bool
	}{
		{"night", true},   // silent gh
		{"phone", true},   // ph digraph
		{"knight", true},  // silent k and gh
		{"write", true},   // silent w
		{"station", true}, // tion ending
		{"though", true},  // ough
		{"make", true},    // silent e
		{"little", true},  // le ending
		{"rabbit", true},  // long word with double letter
		{"cat", false},
		{"the", false},    // simple word list
		{"see", false},    // simple despite the double letter
		{"it", false},     // too short
		{"Make!", true},   // punctuation and case stripped
	}

	for _, tt := range tests {
		if got := phonics.Tricky(tt.word); got != tt.want {
			t.Errorf("Tricky(%q) = %v, want %v", tt.word, got, tt.want)
		}
	}
}

func TestHint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		word string
		want string
	}{
		{"night", `"gh" is silent`},
		{"laugh", `sounds like "f"`},
		{"ghost", "special sound"},
		{"make", "silent - it makes the vowel say its name"},
		{"phone", `"ph" sounds like "f"`},
		{"knee", `just say the "n"`},
		{"wrong", `just say the "r"`},
		{"station", `sounds like "shun"`},
	}

	for _, tt := range tests {
		got := phonics.Hint(tt.word)
		if !strings.Contains(got, tt.want) {
			t.Errorf("Hint(%q) = %q, want it to mention %q", tt.word, got, tt.want)
		}
	}
}

func TestHintEmptyForSimpleWords(t *testing.T) {
	t.Parallel()

	for _, word := range []string{"cat", "the", "up"} {
		if got := phonics.Hint(word); got != "" {
			t.Errorf("Hint(%q) = %q, want empty", word, got)
		}
	}
}
