// Package openairt provides an OpenAI Realtime API backed STT provider using
// the transcription-intent WebSocket endpoint. It implements the stt.Provider
// interface.
//
// The stream is configured with server-side voice activity detection disabled
// (`turn_detection: null`); the caller segments audio explicitly through
// stt.Stream.Commit. Committed segments come back as
// `conversation.item.input_audio_transcription.completed` events.
package openairt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/readwell/readalong/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://api.openai.com/v1/realtime?intent=transcription"
	defaultModel    = "gpt-4o-mini-transcribe"
	defaultLanguage = "en"

	pingTimeout = 10 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the transcription model (e.g., "gpt-4o-mini-transcribe").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the realtime WebSocket endpoint. Useful for tests
// and proxies.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithLanguage sets the default recognition language when StreamConfig does
// not specify one.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// Provider implements stt.Provider backed by the OpenAI Realtime API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openairt: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a realtime transcription stream and configures it for
// manual segmentation.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.Dial(ctx, p.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("openairt: dial: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	update := sessionUpdate{Type: "transcription_session.update"}
	update.Session.InputAudioFormat = "pcm16"
	update.Session.InputAudioTranscription.Model = p.model
	update.Session.InputAudioTranscription.Language = lang
	update.Session.InputAudioTranscription.Prompt = cfg.Prompt
	// TurnDetection stays nil: VAD off, the session commits manually.
	if cfg.NoiseReduction != "" {
		update.Session.InputAudioNoiseReduction = &noiseReduction{Type: cfg.NoiseReduction}
	}

	payload, err := json.Marshal(update)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "config marshal failed")
		return nil, fmt.Errorf("openairt: marshal session config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusInternalError, "config write failed")
		return nil, fmt.Errorf("openairt: configure session: %w", err)
	}

	s := &stream{
		conn:     conn,
		events:   make(chan stt.Event, 64),
		outbound: make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)

	return s, nil
}

// ---- wire types ----

type sessionUpdate struct {
	Type    string `json:"type"`
	Session struct {
		InputAudioFormat        string `json:"input_audio_format"`
		InputAudioTranscription struct {
			Model    string `json:"model"`
			Language string `json:"language"`
			Prompt   string `json:"prompt,omitempty"`
		} `json:"input_audio_transcription"`
		TurnDetection            *struct{}       `json:"turn_detection"`
		InputAudioNoiseReduction *noiseReduction `json:"input_audio_noise_reduction,omitempty"`
	} `json:"session"`
}

type noiseReduction struct {
	Type string `json:"type"`
}

// serverEvent is the subset of realtime server events the stream cares about.
type serverEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Error      struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ---- stream ----

// stream is a live realtime transcription stream. It implements stt.Stream.
type stream struct {
	conn     *websocket.Conn
	events   chan stt.Event
	outbound chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.Stream = (*stream)(nil)

// SendAudio queues a PCM16 chunk for delivery. The realtime API takes audio
// as base64 inside a JSON append event.
func (s *stream) SendAudio(chunk []byte) error {
	msg, err := json.Marshal(map[string]string{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(chunk),
	})
	if err != nil {
		return fmt.Errorf("openairt: marshal audio: %w", err)
	}
	return s.enqueue(msg)
}

// Commit asks the API to transcribe everything appended since the last commit.
func (s *stream) Commit() error {
	return s.enqueue([]byte(`{"type":"input_audio_buffer.commit"}`))
}

// Clear discards the uncommitted audio buffer server-side.
func (s *stream) Clear() error {
	return s.enqueue([]byte(`{"type":"input_audio_buffer.clear"}`))
}

// KeepAlive sends a WebSocket-level ping. The realtime API drops idle
// connections; a transport ping keeps it open without touching the audio
// buffer or the transcript.
func (s *stream) KeepAlive() error {
	select {
	case <-s.done:
		return stt.ErrStreamClosed
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("openairt: keepalive ping: %w", err)
	}
	return nil
}

// Events returns the ordered provider event stream.
func (s *stream) Events() <-chan stt.Event { return s.events }

// Close terminates the stream. Pending queued audio is dropped; callers that
// want the tail transcribed should Commit before closing.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

func (s *stream) enqueue(msg []byte) error {
	select {
	case <-s.done:
		return stt.ErrStreamClosed
	default:
	}
	select {
	case s.outbound <- msg:
		return nil
	case <-s.done:
		return stt.ErrStreamClosed
	}
}

// writeLoop drains the outbound queue onto the WebSocket.
func (s *stream) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case msg := <-s.outbound:
			if err := s.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop receives server events and dispatches the relevant ones.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}

		ev, ok := parseServerEvent(msg)
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// parseServerEvent maps a raw realtime server message onto an stt.Event.
// Returns (zero, false) for event types the session does not consume.
func parseServerEvent(data []byte) (stt.Event, bool) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return stt.Event{}, false
	}

	switch ev.Type {
	case "conversation.item.input_audio_transcription.completed":
		return stt.Event{Kind: stt.EventTranscript, Text: ev.Transcript}, true
	case "input_audio_buffer.speech_started":
		return stt.Event{Kind: stt.EventSpeechStarted}, true
	case "error":
		return stt.Event{
			Kind:    stt.EventError,
			Message: ev.Error.Message,
			Benign:  isBenignError(ev.Error.Message),
		}, true
	}
	return stt.Event{}, false
}

// isBenignError reports whether a provider error message is an expected
// side effect of the manual commit cycle. Committing an empty buffer (the
// timer fired while the reader was silent) produces a "buffer too small"
// complaint that means nothing was there to transcribe.
func isBenignError(msg string) bool {
	return strings.Contains(msg, "buffer too small")
}
