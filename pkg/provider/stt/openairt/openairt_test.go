package openairt

import (
	"testing"

	"github.com/readwell/readalong/pkg/provider/stt"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\"): want error, got nil")
	}
}

func TestParseServerEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want stt.Event
		ok   bool
	}{
		{
			name: "transcript completed",
			raw:  `{"type":"conversation.item.input_audio_transcription.completed","transcript":"the cat sat"}`,
			want: stt.Event{Kind: stt.EventTranscript, Text: "the cat sat"},
			ok:   true,
		},
		{
			name: "speech started",
			raw:  `{"type":"input_audio_buffer.speech_started"}`,
			want: stt.Event{Kind: stt.EventSpeechStarted},
			ok:   true,
		},
		{
			name: "benign empty-commit error",
			raw:  `{"type":"error","error":{"message":"input_audio_buffer.commit: buffer too small"}}`,
			want: stt.Event{Kind: stt.EventError, Message: "input_audio_buffer.commit: buffer too small", Benign: true},
			ok:   true,
		},
		{
			name: "real error",
			raw:  `{"type":"error","error":{"message":"invalid session configuration"}}`,
			want: stt.Event{Kind: stt.EventError, Message: "invalid session configuration"},
			ok:   true,
		},
		{
			name: "ignored event type",
			raw:  `{"type":"input_audio_buffer.committed"}`,
			ok:   false,
		},
		{
			name: "malformed json",
			raw:  `{"type":`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseServerEvent([]byte(tt.raw))
			if ok != tt.ok {
				t.Fatalf("parseServerEvent(%q): ok=%v, want %v", tt.raw, ok, tt.ok)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Errorf("parseServerEvent(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIsBenignError(t *testing.T) {
	t.Parallel()

	if !isBenignError("input_audio_buffer.commit: buffer too small to commit") {
		t.Error("buffer too small should be benign")
	}
	if isBenignError("rate limit exceeded") {
		t.Error("rate limit should not be benign")
	}
}
