package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known speech-to-text provider names. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{"openai-realtime", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name — may be a typo or third-party provider",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}

	if cfg.Session.MaxWordsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("session.max_words_per_second %.2f must not be negative", cfg.Session.MaxWordsPerSecond))
	}
	if cfg.Session.MaxAdvancePerMessage < 0 {
		errs = append(errs, fmt.Errorf("session.max_advance_per_message %d must not be negative", cfg.Session.MaxAdvancePerMessage))
	}
	if cfg.Session.FuzzyThreshold < 0 {
		errs = append(errs, fmt.Errorf("session.fuzzy_threshold %d must not be negative", cfg.Session.FuzzyThreshold))
	}
	if cfg.Session.CommitInterval < 0 {
		errs = append(errs, fmt.Errorf("session.commit_interval %s must not be negative", cfg.Session.CommitInterval))
	}
	if cfg.Session.AliasFile != "" {
		if _, err := os.Stat(cfg.Session.AliasFile); err != nil {
			errs = append(errs, fmt.Errorf("session.alias_file %q is not readable: %w", cfg.Session.AliasFile, err))
		}
	}

	switch cfg.Scoring.Strategy {
	case "", "completion", "components":
	default:
		errs = append(errs, fmt.Errorf("scoring.strategy %q is invalid; valid values: completion, components", cfg.Scoring.Strategy))
	}

	if cfg.Progression.Window < 0 {
		errs = append(errs, fmt.Errorf("progression.window %d must not be negative", cfg.Progression.Window))
	}
	if cfg.Progression.PromoteThreshold != 0 && cfg.Progression.DemoteThreshold != 0 &&
		cfg.Progression.PromoteThreshold <= cfg.Progression.DemoteThreshold {
		errs = append(errs, fmt.Errorf("progression.promote_threshold %.1f must be above demote_threshold %.1f",
			cfg.Progression.PromoteThreshold, cfg.Progression.DemoteThreshold))
	}

	if cfg.Storage.Driver != "" && !cfg.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, postgres", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver == StoragePostgres && cfg.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required when storage.driver is postgres"))
	}
	if cfg.Storage.Driver == StorageMemory || cfg.Storage.Driver == "" {
		slog.Warn("memory storage keeps attempts only until restart; use postgres in production")
	}

	return errors.Join(errs...)
}
