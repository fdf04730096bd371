// Command readalongd is the readalong coaching server: it pairs young
// readers with a streaming transcription provider and coaches them through
// stories in real time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/readwell/readalong/internal/app"
	"github.com/readwell/readalong/internal/config"
	"github.com/readwell/readalong/internal/observe"
	"github.com/readwell/readalong/pkg/provider/stt"
	"github.com/readwell/readalong/pkg/provider/stt/mock"
	"github.com/readwell/readalong/pkg/provider/stt/openairt"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "readalongd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "readalongd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("readalongd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"provider", cfg.Provider.Name,
		"storage", cfg.Storage.Driver,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "readalong",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := reg.CreateSTT(cfg.Provider)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Provider.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Provider.Name)

	application, err := app.New(ctx, cfg, provider)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped by the build; "dev" for local builds.
var version = "dev"

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// readalongd into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("openai-realtime", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []openairt.Option
		if entry.Model != "" {
			opts = append(opts, openairt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openairt.WithEndpoint(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, openairt.WithLanguage(entry.Language))
		}
		return openairt.New(entry.APIKey, opts...)
	})

	// mock transcribes nothing; it exists so the server can run end-to-end
	// in development without an API key.
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &mock.Provider{}, nil
	})

	for _, name := range config.ValidProviderNames {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
