// Package app wires all readalong subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/readwell/readalong/internal/align"
	"github.com/readwell/readalong/internal/attempt"
	"github.com/readwell/readalong/internal/config"
	"github.com/readwell/readalong/internal/level"
	"github.com/readwell/readalong/internal/observe"
	"github.com/readwell/readalong/internal/score"
	"github.com/readwell/readalong/internal/server"
	"github.com/readwell/readalong/internal/session"
	"github.com/readwell/readalong/internal/store"
	"github.com/readwell/readalong/internal/store/memory"
	"github.com/readwell/readalong/internal/store/postgres"
	"github.com/readwell/readalong/pkg/provider/stt"
)

// shutdownGrace bounds the HTTP server drain during Shutdown.
const shutdownGrace = 10 * time.Second

// Defaults for the provider stream hints. The prompt describes the speaker
// only, never the story text: priming the model with the expected words
// makes it hallucinate them.
const (
	defaultStreamPrompt = "A child with an Indian English accent is reading a simple " +
		"children's story aloud, slowly, one word at a time."
	defaultNoiseReduction = "near_field"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	provider stt.Provider

	store   store.Store
	engine  *attempt.Engine
	metrics *observe.Metrics
	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The provider comes
// from main (built via the config registry).
func New(ctx context.Context, cfg *config.Config, provider stt.Provider, opts ...Option) (*App, error) {
	if provider == nil {
		return nil, fmt.Errorf("app: stt provider is required")
	}

	a := &App{
		cfg:      cfg,
		provider: provider,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}

	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// initStore selects the persistence backend from config.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch a.cfg.Storage.Driver {
	case config.StoragePostgres:
		st, err := postgres.New(ctx, a.cfg.Storage.DSN)
		if err != nil {
			return err
		}
		a.store = st
		slog.Info("connected to postgres store")
	case config.StorageMemory, "":
		a.store = memory.New()
		slog.Info("using in-memory store")
	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}

	a.closers = append(a.closers, a.store.Close)
	return nil
}

// initEngine builds the scoring strategy, progression evaluator, and
// attempt engine.
func (a *App) initEngine() error {
	strategy, err := score.New(a.cfg.Scoring.Strategy)
	if err != nil {
		return err
	}

	var levelOpts []level.Option
	if a.cfg.Progression.Window > 0 {
		levelOpts = append(levelOpts, level.WithWindow(a.cfg.Progression.Window))
	}
	if a.cfg.Progression.PromoteThreshold > 0 || a.cfg.Progression.DemoteThreshold > 0 {
		promote := a.cfg.Progression.PromoteThreshold
		if promote == 0 {
			promote = level.DefaultPromoteThreshold
		}
		demote := a.cfg.Progression.DemoteThreshold
		if demote == 0 {
			demote = level.DefaultDemoteThreshold
		}
		levelOpts = append(levelOpts, level.WithThresholds(promote, demote))
	}

	engineOpts := []attempt.Option{attempt.WithMetrics(a.metrics)}
	if a.cfg.Progression.Window > 0 {
		engineOpts = append(engineOpts, attempt.WithWindow(a.cfg.Progression.Window))
	}

	a.engine = attempt.NewEngine(a.store, strategy, level.NewEvaluator(levelOpts...), engineOpts...)
	slog.Info("attempt engine ready", "strategy", strategy.Name())
	return nil
}

// initServer assembles the alignment options and the HTTP server.
func (a *App) initServer() error {
	alignOpts, err := a.alignOptions()
	if err != nil {
		return err
	}

	sessionCfg := a.cfg.Session
	srv, err := server.New(server.Config{
		Store:    a.store,
		Engine:   a.engine,
		Provider: a.provider,
		Stream:   streamConfig(a.cfg.Provider),
		AlignOptions: alignOpts,
		Governor: func() *session.Governor {
			return session.NewGovernor(sessionCfg.MaxWordsPerSecond, sessionCfg.MaxAdvancePerMessage)
		},
		Metrics:           a.metrics,
		CommitInterval:    sessionCfg.CommitInterval.Std(),
		KeepAliveInterval: sessionCfg.KeepAliveInterval.Std(),
		StuckLimit:        sessionCfg.StuckLimit,
		MaxReconnects:     sessionCfg.MaxReconnects,
	})
	if err != nil {
		return err
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// streamConfig translates the provider entry into the recognition config
// sent on every transcription stream. The reading client always speaks
// 24 kHz mono PCM16.
func streamConfig(p config.ProviderEntry) stt.StreamConfig {
	prompt := p.Prompt
	if prompt == "" {
		prompt = defaultStreamPrompt
	}
	noise := p.NoiseReduction
	if noise == "" {
		noise = defaultNoiseReduction
	}
	return stt.StreamConfig{
		SampleRate:     24000,
		Channels:       1,
		Language:       p.Language,
		Prompt:         prompt,
		NoiseReduction: noise,
	}
}

// alignOptions translates session config into aligner options.
func (a *App) alignOptions() ([]align.Option, error) {
	var opts []align.Option
	s := a.cfg.Session

	if s.Lookahead > 0 {
		opts = append(opts, align.WithLookahead(s.Lookahead))
	}
	if s.FuzzyThreshold > 0 {
		opts = append(opts, align.WithFuzzyThreshold(s.FuzzyThreshold))
	}
	if s.MaxAdvancePerMessage > 0 {
		opts = append(opts, align.WithMaxAdvance(s.MaxAdvancePerMessage))
	}
	if s.PhoneticFallback {
		opts = append(opts, align.WithPhoneticFallback(true))
	}
	if s.AliasFile != "" {
		table, err := align.LoadAliasFile(s.AliasFile)
		if err != nil {
			return nil, fmt.Errorf("load alias file %q: %w", s.AliasFile, err)
		}
		opts = append(opts, align.WithAliases(table))
		slog.Info("loaded alias table", "path", s.AliasFile)
	}
	return opts, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running", "addr", a.httpSrv.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown drains the HTTP server, then tears down subsystems in
// reverse-init order. If ctx expires first, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpSrv != nil {
			drainCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
			if err := a.httpSrv.Shutdown(drainCtx); err != nil {
				slog.Warn("http drain error", "err", err)
			}
			cancel()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
