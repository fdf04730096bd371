package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/readwell/readalong/pkg/provider/stt"
)

// Default reconnection parameters.
const (
	defaultMaxReconnects = 3
	defaultBackoff       = 500 * time.Millisecond
	defaultMaxBackoff    = 5 * time.Second
)

// ReconnectOption configures a ReconnectingStream.
type ReconnectOption func(*ReconnectingStream)

// WithMaxReconnects bounds reconnection attempts per outage. Default: 3.
func WithMaxReconnects(n int) ReconnectOption {
	return func(r *ReconnectingStream) {
		if n > 0 {
			r.maxReconnects = n
		}
	}
}

// WithBackoff sets the initial and maximum backoff between attempts. The
// delay doubles per attempt up to max.
func WithBackoff(initial, max time.Duration) ReconnectOption {
	return func(r *ReconnectingStream) {
		if initial > 0 {
			r.backoff = initial
		}
		if max > 0 {
			r.maxBackoff = max
		}
	}
}

// WithOnReconnect registers a callback invoked after each successful
// reconnection with the attempt number. May be nil.
func WithOnReconnect(fn func(attempt int)) ReconnectOption {
	return func(r *ReconnectingStream) {
		r.onReconnect = fn
	}
}

// ReconnectingStream wraps a provider stream and transparently re-dials it
// when the provider side drops mid-session. It exposes the same stt.Stream
// contract, so the orchestrator's control flow stays reconnect-oblivious:
// events from successive underlying streams arrive on one continuous
// channel, and the channel only closes when the stream is Closed by the
// caller or the reconnect budget is exhausted.
//
// Audio sent while an outage is being repaired is dropped, not buffered —
// by the time the connection is back the words are stale anyway.
type ReconnectingStream struct {
	provider stt.Provider
	cfg      stt.StreamConfig

	maxReconnects int
	backoff       time.Duration
	maxBackoff    time.Duration
	onReconnect   func(attempt int)

	mu     sync.Mutex
	cur    stt.Stream
	closed bool

	events chan stt.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var _ stt.Stream = (*ReconnectingStream)(nil)

// DialStream opens the initial provider stream and returns the reconnecting
// wrapper. An initial connection failure is returned as-is: per the session
// error taxonomy, failing to connect at all is fatal, only mid-session drops
// are retried.
func DialStream(ctx context.Context, provider stt.Provider, cfg stt.StreamConfig, opts ...ReconnectOption) (*ReconnectingStream, error) {
	r := &ReconnectingStream{
		provider:      provider,
		cfg:           cfg,
		maxReconnects: defaultMaxReconnects,
		backoff:       defaultBackoff,
		maxBackoff:    defaultMaxBackoff,
		events:        make(chan stt.Event, 64),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}

	initial, err := provider.StartStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("session: initial provider connect: %w", err)
	}
	r.cur = initial

	r.wg.Add(1)
	go r.pump(ctx)

	return r, nil
}

// pump forwards events from the current underlying stream and repairs it
// when it dies. Exits — closing the outward event channel — when the caller
// closes the wrapper, ctx is cancelled, or reconnection is exhausted.
func (r *ReconnectingStream) pump(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.events)

	for {
		r.mu.Lock()
		cur := r.cur
		r.mu.Unlock()

		for ev := range cur.Events() {
			select {
			case r.events <- ev:
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
		}

		// Underlying event channel closed. Deliberate close means we are done;
		// anything else is a provider-side drop worth repairing.
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !r.redial(ctx) {
			return
		}
	}
}

// redial attempts to replace the dead underlying stream, with exponential
// backoff, up to the configured budget. Reports whether a fresh stream is
// in place.
func (r *ReconnectingStream) redial(ctx context.Context) bool {
	backoff := r.backoff

	for attempt := 1; attempt <= r.maxReconnects; attempt++ {
		slog.Info("provider stream lost, reconnecting",
			"attempt", attempt,
			"max_attempts", r.maxReconnects,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return false
		case <-r.done:
			return false
		case <-time.After(backoff):
		}

		next, err := r.provider.StartStream(ctx, r.cfg)
		if err == nil {
			r.mu.Lock()
			old := r.cur
			r.cur = next
			closed := r.closed
			r.mu.Unlock()

			if closed {
				_ = next.Close()
				return false
			}
			_ = old.Close()

			slog.Info("provider stream reconnected", "attempt", attempt)
			if r.onReconnect != nil {
				r.onReconnect(attempt)
			}
			return true
		}

		slog.Warn("provider reconnect attempt failed", "attempt", attempt, "err", err)

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	slog.Error("provider reconnect budget exhausted", "max_attempts", r.maxReconnects)
	return false
}

// current returns the live underlying stream, or an error when the wrapper
// has been closed.
func (r *ReconnectingStream) current() (stt.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, stt.ErrStreamClosed
	}
	return r.cur, nil
}

// forward runs op against the current stream. An ErrStreamClosed from the
// underlying stream while the wrapper itself is still open means we are in
// a reconnect window; the operation is dropped silently.
func (r *ReconnectingStream) forward(op func(stt.Stream) error) error {
	cur, err := r.current()
	if err != nil {
		return err
	}
	if err := op(cur); err != nil {
		if errors.Is(err, stt.ErrStreamClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (r *ReconnectingStream) SendAudio(chunk []byte) error {
	return r.forward(func(s stt.Stream) error { return s.SendAudio(chunk) })
}

func (r *ReconnectingStream) Commit() error {
	return r.forward(func(s stt.Stream) error { return s.Commit() })
}

func (r *ReconnectingStream) Clear() error {
	return r.forward(func(s stt.Stream) error { return s.Clear() })
}

func (r *ReconnectingStream) KeepAlive() error {
	return r.forward(func(s stt.Stream) error { return s.KeepAlive() })
}

func (r *ReconnectingStream) Events() <-chan stt.Event { return r.events }

// Close tears down the wrapper and the underlying stream. Safe to call more
// than once.
func (r *ReconnectingStream) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		cur := r.cur
		r.mu.Unlock()

		close(r.done)
		if cur != nil {
			_ = cur.Close()
		}
		r.wg.Wait()
	})
	return nil
}
