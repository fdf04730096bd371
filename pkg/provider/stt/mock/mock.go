// Package mock provides a scripted stt.Provider for tests.
//
// A mock stream records every audio chunk and control call it receives and
// lets the test push provider events by hand, so orchestrator behaviour can
// be exercised without a network connection.
package mock

import (
	"context"
	"sync"

	"github.com/readwell/readalong/pkg/provider/stt"
)

// Provider implements stt.Provider. Every StartStream call returns a fresh
// *Stream which is also appended to Streams for later inspection.
type Provider struct {
	// StartErr, when non-nil, is returned by StartStream instead of a stream.
	StartErr error

	mu      sync.Mutex
	streams []*Stream
}

var _ stt.Provider = (*Provider)(nil)

// StartStream returns a new scripted stream, or StartErr if set.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := NewStream()
	s.Config = cfg
	p.mu.Lock()
	p.streams = append(p.streams, s)
	p.mu.Unlock()
	return s, nil
}

// Streams returns all streams handed out so far, in order.
func (p *Provider) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Stream, len(p.streams))
	copy(out, p.streams)
	return out
}

// Stream implements stt.Stream with recorded calls and a test-driven event
// channel.
type Stream struct {
	// Config is the StreamConfig the stream was opened with.
	Config stt.StreamConfig

	// SendErr, CommitErr, ClearErr are returned by the corresponding methods
	// when non-nil, before any recording happens.
	SendErr   error
	CommitErr error
	ClearErr  error

	mu         sync.Mutex
	audio      [][]byte
	commits    int
	clears     int
	keepalives int
	closed     bool

	events chan stt.Event
}

var _ stt.Stream = (*Stream)(nil)

// NewStream returns an open mock stream.
func NewStream() *Stream {
	return &Stream{events: make(chan stt.Event, 64)}
}

// Emit pushes a provider event to the stream's consumers.
func (s *Stream) Emit(ev stt.Event) {
	s.events <- ev
}

// EmitTranscript pushes a transcript-completed event with the given text.
func (s *Stream) EmitTranscript(text string) {
	s.Emit(stt.Event{Kind: stt.EventTranscript, Text: text})
}

// Fail closes the event channel without Close being called, simulating a
// provider-side connection loss.
func (s *Stream) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *Stream) SendAudio(chunk []byte) error {
	if s.SendErr != nil {
		return s.SendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrStreamClosed
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.audio = append(s.audio, buf)
	return nil
}

func (s *Stream) Commit() error {
	if s.CommitErr != nil {
		return s.CommitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrStreamClosed
	}
	s.commits++
	return nil
}

func (s *Stream) Clear() error {
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrStreamClosed
	}
	s.clears++
	return nil
}

func (s *Stream) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrStreamClosed
	}
	s.keepalives++
	return nil
}

func (s *Stream) Events() <-chan stt.Event { return s.events }

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// Audio returns the chunks received so far.
func (s *Stream) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Commits returns the number of Commit calls.
func (s *Stream) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Clears returns the number of Clear calls.
func (s *Stream) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

// KeepAlives returns the number of KeepAlive calls.
func (s *Stream) KeepAlives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepalives
}

// Closed reports whether the stream has ended.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
