package app

import (
	"strings"
	"testing"

	"github.com/readwell/readalong/internal/config"
)

func TestStreamConfigDefaults(t *testing.T) {
	t.Parallel()

	got := streamConfig(config.ProviderEntry{Language: "en"})

	if got.SampleRate != 24000 || got.Channels != 1 {
		t.Errorf("audio format = %d Hz x%d, want 24000 Hz mono", got.SampleRate, got.Channels)
	}
	if got.Language != "en" {
		t.Errorf("language = %q, want en", got.Language)
	}
	if got.Prompt != defaultStreamPrompt {
		t.Errorf("prompt = %q, want the built-in accent prompt", got.Prompt)
	}
	if got.NoiseReduction != "near_field" {
		t.Errorf("noise reduction = %q, want near_field", got.NoiseReduction)
	}
}

func TestStreamConfigOverrides(t *testing.T) {
	t.Parallel()

	got := streamConfig(config.ProviderEntry{
		Prompt:         "An adult reading poetry at a steady pace.",
		NoiseReduction: "far_field",
	})

	if !strings.Contains(got.Prompt, "poetry") {
		t.Errorf("prompt = %q, want the configured override", got.Prompt)
	}
	if got.NoiseReduction != "far_field" {
		t.Errorf("noise reduction = %q, want far_field", got.NoiseReduction)
	}
}
