// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is Stream: once
// opened, a stream accepts raw PCM audio frames and emits an ordered
// sequence of Events — committed transcripts, speech-activity signals, and
// provider errors.
//
// The reading session runs the provider in manual-segmentation mode: voice
// activity detection is disabled and the caller decides when the buffered
// audio is finalised by calling Commit. This trades a little latency for
// predictable, context-rich chunks, which matters when the speaker is a
// child reading one word at a time.
//
// Implementations must be safe for concurrent use. Audio input and the
// event channel are goroutine-safe by construction.
package stt

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned by Stream methods after Close has been called
// or the underlying connection has gone away.
var ErrStreamClosed = errors.New("stt: stream is closed")

// StreamConfig describes the audio format and recognition hints for a new
// transcription stream.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The reading client sends
	// 24000 Hz mono PCM16.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	Language string

	// Prompt is a free-text context hint describing the speaker and style
	// (e.g., accent, pacing). It must never contain the target text itself:
	// priming the model with the expected words makes it hallucinate them.
	Prompt string

	// NoiseReduction selects the provider's noise handling profile, when
	// supported (e.g., "near_field" for a laptop microphone).
	NoiseReduction string
}

// EventKind discriminates the values emitted on a Stream's event channel.
type EventKind string

const (
	// EventTranscript carries the text of a committed audio segment.
	EventTranscript EventKind = "transcript"

	// EventSpeechStarted signals that the provider detected the start of
	// speech. Informational only in manual-segmentation mode.
	EventSpeechStarted EventKind = "speech_started"

	// EventError carries a provider-reported error. Check Benign before
	// surfacing it: some errors are expected side effects of the manual
	// commit cycle (committing an empty buffer).
	EventError EventKind = "error"
)

// Event is a single provider-side occurrence. Events are delivered strictly
// in the order the provider produced them.
type Event struct {
	Kind EventKind

	// Text is the transcript for EventTranscript events.
	Text string

	// Message is the provider's error description for EventError events.
	Message string

	// Benign marks EventError events that are a known-harmless consequence
	// of normal operation and should not be surfaced or logged as errors.
	Benign bool
}

// Stream is an open transcription stream. Callers must call Close when the
// stream is no longer needed; failing to do so may leak goroutines and
// network connections inside the provider implementation.
//
// All methods must be safe for concurrent use.
type Stream interface {
	// SendAudio delivers a chunk of raw PCM audio to the provider's input
	// buffer. The chunk must match the SampleRate and Channels agreed in
	// StreamConfig. Returns ErrStreamClosed after Close.
	SendAudio(chunk []byte) error

	// Commit finalises the audio buffered since the previous commit and asks
	// the provider to transcribe it. The resulting text arrives later as an
	// EventTranscript on Events.
	Commit() error

	// Clear discards all audio buffered since the previous commit without
	// transcribing it. Used when the reader pauses mid-session.
	Clear() error

	// KeepAlive nudges the provider connection so it is not reaped as idle
	// during a long pause. Providers without an idle timeout may implement
	// this as a no-op.
	KeepAlive() error

	// Events returns the ordered stream of provider events. The channel is
	// closed when the stream ends, whether by Close or by connection loss.
	Events() <-chan Event

	// Close terminates the stream and releases all associated resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use; multiple streams may be
// open simultaneously (one per live reading session).
type Provider interface {
	// StartStream opens a new transcription stream with the given audio
	// format and recognition configuration. The returned Stream is ready to
	// accept audio immediately.
	//
	// Returns an error if the stream cannot be established (authentication
	// failure, unsupported configuration, or ctx already cancelled). The
	// caller owns the Stream and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}
