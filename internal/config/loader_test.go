package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/readwell/readalong/internal/config"
	"github.com/readwell/readalong/pkg/provider/stt"
	"github.com/readwell/readalong/pkg/provider/stt/mock"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
provider:
  name: openai-realtime
  api_key: sk-test
  model: gpt-4o-transcribe
  language: en
session:
  max_words_per_second: 3.5
  stuck_limit: 6
  commit_interval: 2s
scoring:
  strategy: completion
progression:
  window: 10
  promote_threshold: 80
  demote_threshold: 45
storage:
  driver: memory
`

func TestLoadFromReaderValid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Provider.Name != "openai-realtime" || cfg.Provider.Language != "en" {
		t.Errorf("provider = %+v, want openai-realtime/en", cfg.Provider)
	}
	if cfg.Session.CommitInterval.Std() != 2*time.Second {
		t.Errorf("commit_interval = %s, want 2s", cfg.Session.CommitInterval)
	}
	if cfg.Storage.Driver != config.StorageMemory {
		t.Errorf("driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: ':8080'\n"))
	if err == nil {
		t.Fatal("LoadFromReader accepted a misspelled key")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		return &config.Config{
			Provider: config.ProviderEntry{Name: "openai-realtime"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "minimal valid",
			mutate: func(*config.Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "missing provider name",
			mutate:  func(c *config.Config) { c.Provider.Name = "" },
			wantErr: "provider.name",
		},
		{
			name:    "tls missing key file",
			mutate:  func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"} },
			wantErr: "server.tls",
		},
		{
			name:    "negative words per second",
			mutate:  func(c *config.Config) { c.Session.MaxWordsPerSecond = -1 },
			wantErr: "max_words_per_second",
		},
		{
			name:    "unknown scoring strategy",
			mutate:  func(c *config.Config) { c.Scoring.Strategy = "vibes" },
			wantErr: "scoring.strategy",
		},
		{
			name: "promote below demote",
			mutate: func(c *config.Config) {
				c.Progression.PromoteThreshold = 40
				c.Progression.DemoteThreshold = 45
			},
			wantErr: "promote_threshold",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *config.Config) { c.Storage.Driver = config.StoragePostgres },
			wantErr: "storage.dsn",
		},
		{
			name:    "bad storage driver",
			mutate:  func(c *config.Config) { c.Storage.Driver = "sqlite" },
			wantErr: "storage.driver",
		},
		{
			name:    "missing alias file",
			mutate:  func(c *config.Config) { c.Session.AliasFile = "/does/not/exist.yaml" },
			wantErr: "alias_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: "loud"},
		Scoring: config.ScoringConfig{Strategy: "vibes"},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate passed an invalid config")
	}
	for _, want := range []string{"log_level", "provider.name", "scoring.strategy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err %v does not mention %q", err, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	r.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &mock.Provider{}, nil
	})

	if _, err := r.CreateSTT(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSTT(mock): %v", err)
	}
	if _, err := r.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
