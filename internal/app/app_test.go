package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/readwell/readalong/internal/app"
	"github.com/readwell/readalong/internal/config"
	"github.com/readwell/readalong/internal/store/memory"
	"github.com/readwell/readalong/pkg/provider/stt/mock"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Provider: config.ProviderEntry{Name: "mock"},
		Storage:  config.StorageConfig{Driver: config.StorageMemory},
	}
}

func TestNewWiresSubsystems(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), baseConfig(), &mock.Provider{},
		app.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewRequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), baseConfig(), nil); err == nil {
		t.Error("New accepted a nil provider")
	}
}

func TestNewRejectsBadStrategy(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Scoring.Strategy = "vibes"
	if _, err := app.New(context.Background(), cfg, &mock.Provider{}); err == nil {
		t.Error("New accepted an unknown scoring strategy")
	}
}

func TestNewRejectsMissingAliasFile(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Session.AliasFile = "/does/not/exist.yaml"
	if _, err := app.New(context.Background(), cfg, &mock.Provider{}); err == nil {
		t.Error("New accepted a missing alias file")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), baseConfig(), &mock.Provider{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the listener a moment, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), baseConfig(), &mock.Provider{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
