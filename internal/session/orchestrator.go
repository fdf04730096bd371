// Package session owns one live reading session: the orchestrator relays
// client audio to a streaming transcription provider, aligns the resulting
// transcripts against the target text, polices cursor advancement with a
// rate governor, and streams alignment feedback back to the client.
//
// Concurrency model: one session is a small set of cooperating goroutines —
// a client reader, a provider reader, and periodic tickers — all of which
// funnel typed intents into a single apply loop. The apply loop is the sole
// owner of the mutable session state; nothing else reads or mutates it.
// Every task observes the shared stop signal within one poll interval.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/readwell/readalong/internal/align"
	"github.com/readwell/readalong/internal/observe"
	"github.com/readwell/readalong/pkg/provider/stt"
)

// Orchestration defaults.
const (
	// DefaultCommitInterval is how often buffered provider audio is
	// finalised. Two seconds keeps latency low while still giving the model
	// multi-word context per chunk.
	DefaultCommitInterval = 2 * time.Second

	// DefaultKeepAliveInterval is how often the provider connection is
	// nudged while the session is paused.
	DefaultKeepAliveInterval = 15 * time.Second

	// DefaultStuckLimit is the number of consecutive no-progress transcript
	// chunks, with mismatch evidence at the current word, after which the
	// cursor is force-advanced one word.
	DefaultStuckLimit = 6

	// defaultFlushTimeout bounds the teardown flush of buffered events.
	defaultFlushTimeout = 10 * time.Second
)

const completeText = "Great job! You finished the story!"

// EventSink receives the session's buffered alignment events at teardown.
// Implemented by the storage layer.
type EventSink interface {
	AppendEvents(ctx context.Context, attemptRef string, events []align.Event) error
}

// Config assembles everything one session needs.
type Config struct {
	// AttemptRef identifies the reading attempt in storage.
	AttemptRef string

	// Target is the ordered word sequence the reader is expected to speak.
	Target []string

	// Provider opens the transcription stream; Stream configures it.
	Provider stt.Provider
	Stream   stt.StreamConfig

	// AlignOptions tune the aligner (lookahead, thresholds, alias table).
	AlignOptions []align.Option

	// Governor clamps cursor advancement. Nil gets a default governor.
	Governor *Governor

	// Sink receives buffered events at teardown. Nil disables the flush.
	Sink EventSink

	// Metrics records session telemetry. Nil uses observe.DefaultMetrics().
	Metrics *observe.Metrics

	CommitInterval    time.Duration
	KeepAliveInterval time.Duration
	StuckLimit        int
	MaxReconnects     int
}

// intent is a typed mutation request applied serially by the apply loop.
type intent interface{ isIntent() }

type audioIntent struct{ data []byte }
type pauseIntent struct{}
type resumeIntent struct{}
type stopIntent struct{}
type clientGoneIntent struct{ err error }
type providerEventIntent struct{ ev stt.Event }
type providerDownIntent struct{}
type reconnectedIntent struct{ attempt int }
type commitTickIntent struct{}
type keepAliveTickIntent struct{}

func (audioIntent) isIntent()         {}
func (pauseIntent) isIntent()         {}
func (resumeIntent) isIntent()        {}
func (stopIntent) isIntent()          {}
func (clientGoneIntent) isIntent()    {}
func (providerEventIntent) isIntent() {}
func (providerDownIntent) isIntent()  {}
func (reconnectedIntent) isIntent()   {}
func (commitTickIntent) isIntent()    {}
func (keepAliveTickIntent) isIntent() {}

// Orchestrator drives one live reading session from connect to teardown.
// Create with New, run once with Run. Not reusable.
type Orchestrator struct {
	cfg      Config
	governor *Governor
	metrics  *observe.Metrics
	log      *slog.Logger

	// now is the clock; replaced in tests.
	now   func() time.Time
	start time.Time

	st      state
	intents chan intent
}

// New validates cfg, fills in defaults, and returns a ready Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Target) == 0 {
		return nil, fmt.Errorf("session: target sequence is empty")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: provider is required")
	}
	if cfg.CommitInterval <= 0 {
		cfg.CommitInterval = DefaultCommitInterval
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.StuckLimit <= 0 {
		cfg.StuckLimit = DefaultStuckLimit
	}

	governor := cfg.Governor
	if governor == nil {
		governor = NewGovernor(0, 0)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Orchestrator{
		cfg:      cfg,
		governor: governor,
		metrics:  metrics,
		log:      slog.Default().With("attempt", cfg.AttemptRef),
		now:      time.Now,
		st:       state{phase: PhaseConnecting},
		intents:  make(chan intent, 256),
	}, nil
}

// Snapshot returns a copy of the session state. Only safe to call before
// Run starts or after it returns; during a run the apply loop owns the
// state exclusively.
func (o *Orchestrator) Snapshot() Snapshot {
	return o.st.snapshot()
}

// Run executes the session until completion, abort, or ctx cancellation.
// It connects the provider, spawns the relay tasks, applies intents
// serially, and always tears down: concurrent tasks stopped, provider
// stream closed, and the accumulated event buffer flushed to the sink
// exactly once (with a single retry) even on error paths.
func (o *Orchestrator) Run(ctx context.Context, client ClientConn) error {
	o.start = o.now()
	o.metrics.ActiveSessions.Add(ctx, 1)
	defer func() {
		o.metrics.ActiveSessions.Add(ctx, -1)
		o.metrics.SessionDuration.Record(ctx, o.now().Sub(o.start).Seconds())
	}()

	// ── Connecting ────────────────────────────────────────────────────────
	reconnectOpts := []ReconnectOption{
		WithOnReconnect(func(attempt int) { o.post(reconnectedIntent{attempt: attempt}) }),
	}
	if o.cfg.MaxReconnects > 0 {
		reconnectOpts = append(reconnectOpts, WithMaxReconnects(o.cfg.MaxReconnects))
	}

	stream, err := DialStream(ctx, o.cfg.Provider, o.cfg.Stream, reconnectOpts...)
	if err != nil {
		o.st.phase = PhaseAborted
		_ = client.Send(ctx, ErrorMessage{Type: "error", Message: "Could not connect to the transcription service."})
		return fmt.Errorf("session %s: connect: %w", o.cfg.AttemptRef, err)
	}
	defer stream.Close()

	o.st.phase = PhaseActive
	o.log.Info("session started", "total_words", len(o.cfg.Target))

	// ── Active: relay tasks + apply loop ─────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return o.readClient(gctx, client) })
	g.Go(func() error { return o.readProvider(gctx, stream) })
	g.Go(func() error { return o.tick(gctx, o.cfg.CommitInterval, commitTickIntent{}) })
	g.Go(func() error { return o.tick(gctx, o.cfg.KeepAliveInterval, keepAliveTickIntent{}) })
	g.Go(func() error { return o.apply(gctx, cancel, client, stream) })

	runErr := g.Wait()

	// ── Teardown ─────────────────────────────────────────────────────────
	o.flush()

	o.log.Info("session ended",
		"phase", o.st.phase,
		"cursor", o.st.cursor,
		"total_words", len(o.cfg.Target),
		"events", len(o.st.events),
		"reconnects", o.st.reconnects,
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// post delivers a droppable intent to the apply loop without blocking:
// audio frames and ticks can be shed under backpressure, the next one
// carries equivalent information.
func (o *Orchestrator) post(in intent) {
	select {
	case o.intents <- in:
	default:
		// Apply loop has stopped draining; the session is over.
	}
}

// postControl delivers an intent that must not be lost — stop, pause,
// provider events — waiting for queue space until the session shuts down.
func (o *Orchestrator) postControl(ctx context.Context, in intent) {
	select {
	case o.intents <- in:
	case <-ctx.Done():
	}
}

// readClient pumps client frames into intents until the client goes away
// or the session stops.
func (o *Orchestrator) readClient(ctx context.Context, client ClientConn) error {
	for {
		frame, err := client.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				o.postControl(ctx, clientGoneIntent{err: err})
			}
			return nil
		}

		if frame.Binary {
			o.post(audioIntent{data: frame.Data})
			continue
		}

		var msg controlMessage
		if err := decodeControl(frame.Data, &msg); err != nil {
			o.log.Debug("unparsable control frame", "err", err)
			continue
		}
		switch msg.Type {
		case ControlPause:
			o.postControl(ctx, pauseIntent{})
		case ControlResume:
			o.postControl(ctx, resumeIntent{})
		case ControlStop:
			o.postControl(ctx, stopIntent{})
			return nil
		default:
			o.log.Debug("unknown control type", "type", msg.Type)
		}
	}
}

// readProvider pumps provider events into intents until the event channel
// closes — which, behind the reconnecting wrapper, only happens on caller
// close or reconnect exhaustion.
func (o *Orchestrator) readProvider(ctx context.Context, stream stt.Stream) error {
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				if ctx.Err() == nil {
					o.postControl(ctx, providerDownIntent{})
				}
				return nil
			}
			o.postControl(ctx, providerEventIntent{ev: ev})
		case <-ctx.Done():
			return nil
		}
	}
}

// tick posts in every interval until the session stops.
func (o *Orchestrator) tick(ctx context.Context, interval time.Duration, in intent) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			o.post(in)
		case <-ctx.Done():
			return nil
		}
	}
}

// apply is the single owner of session state. It consumes intents serially
// and cancels the run when a terminal state is reached.
func (o *Orchestrator) apply(ctx context.Context, cancel context.CancelFunc, client ClientConn, stream stt.Stream) error {
	for {
		select {
		case in := <-o.intents:
			o.applyOne(ctx, client, stream, in)
			if o.st.stopped {
				cancel()
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (o *Orchestrator) applyOne(ctx context.Context, client ClientConn, stream stt.Stream, in intent) {
	switch in := in.(type) {
	case audioIntent:
		// Audio while paused is dropped, not buffered: it would transcribe
		// into words the reader never meant as reading.
		if o.st.paused {
			return
		}
		if err := stream.SendAudio(in.data); err != nil {
			o.log.Warn("audio relay failed", "err", err)
		}

	case pauseIntent:
		if o.st.paused {
			return
		}
		o.st.paused = true
		o.st.phase = PhasePaused
		o.st.pauseStartedAt = o.now()
		if err := stream.Clear(); err != nil {
			o.log.Warn("provider buffer clear failed", "err", err)
		}
		o.log.Debug("paused")

	case resumeIntent:
		if !o.st.paused {
			return
		}
		o.st.paused = false
		o.st.phase = PhaseActive
		if !o.st.pauseStartedAt.IsZero() {
			o.st.pausedTotal += o.now().Sub(o.st.pauseStartedAt)
			o.st.pauseStartedAt = time.Time{}
		}
		o.log.Debug("resumed", "paused_total", o.st.pausedTotal)

	case stopIntent:
		// Final flush so the tail of the audio still gets transcribed by
		// the provider; any result arriving after shutdown is discarded.
		if err := stream.Commit(); err != nil {
			o.log.Debug("final commit failed", "err", err)
		}
		o.st.stopped = true
		if o.st.phase != PhaseCompleted {
			o.st.phase = PhaseCompleted
		}

	case clientGoneIntent:
		o.log.Info("client disconnected", "err", in.err)
		o.st.stopped = true
		if o.st.phase != PhaseCompleted {
			o.st.phase = PhaseAborted
		}

	case providerEventIntent:
		o.applyProviderEvent(ctx, client, in.ev)

	case providerDownIntent:
		o.log.Error("provider stream gone for good")
		_ = client.Send(ctx, ErrorMessage{Type: "error", Message: "Lost connection to the transcription service."})
		o.st.stopped = true
		if o.st.phase != PhaseCompleted {
			o.st.phase = PhaseAborted
		}

	case reconnectedIntent:
		o.st.reconnects++
		o.metrics.ProviderReconnects.Add(ctx, 1)

	case commitTickIntent:
		if o.st.paused {
			return
		}
		if err := stream.Commit(); err != nil {
			o.log.Warn("periodic commit failed", "err", err)
		}

	case keepAliveTickIntent:
		if !o.st.paused {
			return
		}
		if err := stream.KeepAlive(); err != nil {
			o.log.Debug("keepalive failed", "err", err)
		}
	}
}

// applyProviderEvent handles one provider event in receipt order.
func (o *Orchestrator) applyProviderEvent(ctx context.Context, client ClientConn, ev stt.Event) {
	o.metrics.ProviderEvents.Add(ctx, 1)

	switch ev.Kind {
	case stt.EventTranscript:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		o.applyTranscript(ctx, client, text)

	case stt.EventSpeechStarted:
		// Informational only: segmentation is timer-driven.

	case stt.EventError:
		if ev.Benign {
			return
		}
		o.log.Warn("provider error", "message", ev.Message)
		// Recoverable: tell the client something hiccuped but keep going.
		_ = client.Send(ctx, ErrorMessage{Type: "error", Message: "Transcription service error - keep reading!"})
	}
}

// applyTranscript runs the aligner over one completed transcript chunk,
// decides the new cursor, and reports back to the client.
func (o *Orchestrator) applyTranscript(ctx context.Context, client ClientConn, text string) {
	target := o.cfg.Target

	alignStart := o.now()
	events := align.Align(target, text, o.st.cursor, o.cfg.AlignOptions...)
	o.metrics.AlignLatency.Record(ctx, o.now().Sub(alignStart).Seconds())

	if len(events) == 0 {
		return
	}

	// Forward evidence is spoken words only: correct and fuzzy events. Skip
	// events are assumptions that can be wrong, so on their own they never
	// move the cursor.
	lastSpoken := -1
	hasMismatch := false
	for _, e := range events {
		switch e.Match {
		case align.MatchCorrect, align.MatchFuzzy:
			if e.WordIndex > lastSpoken {
				lastSpoken = e.WordIndex
			}
		case align.MatchMismatch:
			hasMismatch = true
		}
	}

	proposed := o.st.cursor
	switch {
	case lastSpoken >= 0:
		proposed = lastSpoken + 1
		o.st.stuckCount = 0
	case hasMismatch:
		o.st.stuckCount++
		if o.st.stuckCount >= o.cfg.StuckLimit {
			// The reader is wedged on one persistently misheard word; let
			// them past it rather than stalling the session forever.
			proposed = o.st.cursor + 1
			o.log.Info("stuck escape", "cursor", o.st.cursor, "chunks", o.st.stuckCount)
			o.st.stuckCount = 0
		}
	}

	elapsed := o.st.elapsed(o.start, o.now())
	governed := o.governor.Clamp(elapsed, o.st.cursor, proposed)
	if governed < proposed {
		o.metrics.GovernorClamps.Add(ctx, 1)
		o.log.Debug("governor clamped cursor",
			"proposed", proposed, "governed", governed, "elapsed", elapsed)
	}

	prev := o.st.cursor
	o.st.cursor = min(governed, len(target))
	o.st.events = append(o.st.events, events...)

	o.log.Debug("alignment applied",
		"events", len(events), "from", prev, "to", o.st.cursor)

	if err := client.Send(ctx, newAlignmentMessage(events, o.st.cursor, len(target))); err != nil {
		o.st.stopped = true
		if o.st.phase != PhaseCompleted {
			o.st.phase = PhaseAborted
		}
		return
	}

	if o.st.cursor >= len(target) {
		_ = client.Send(ctx, CompleteMessage{Type: "complete", Message: completeText})
		o.st.phase = PhaseCompleted
		o.st.stopped = true
	}
}

// flush writes the buffered events to the sink exactly once, retrying a
// failure a single time before logging and abandoning. Runs on a background
// context: the session context is usually already cancelled by now, and
// partial data must not be lost to that.
func (o *Orchestrator) flush() {
	if o.cfg.Sink == nil || len(o.st.events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
	defer cancel()

	err := o.cfg.Sink.AppendEvents(ctx, o.cfg.AttemptRef, o.st.events)
	if err != nil {
		o.log.Warn("event flush failed, retrying once", "err", err)
		err = o.cfg.Sink.AppendEvents(ctx, o.cfg.AttemptRef, o.st.events)
	}
	if err != nil {
		o.metrics.FlushFailures.Add(ctx, 1)
		o.log.Error("event flush abandoned", "err", err, "events", len(o.st.events))
	}
}
