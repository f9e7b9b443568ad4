// Package runtimeconfig loads and watches fiberisoctl's on-disk
// configuration: watchdog tuning, the serve subcommand's listen address,
// and logging options. Adapted from the teacher's
// cmd/vango/internal/config package — same Load/Save/DefaultConfig shape,
// JSON swapped for YAML (the rest of the pack's configs, e.g. opentofu's,
// are YAML-first) and the app-scaffolding fields replaced with this
// project's own.
package runtimeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file fiberisoctl looks for in the working
// directory when no --config flag overrides it.
const FileName = "fiberiso.yaml"

// Config is fiberisoctl's on-disk configuration.
type Config struct {
	// Log controls the logger every subcommand constructs via
	// internal/logging.
	Log LogConfig `yaml:"log"`

	// Watchdog tunes the debounce every fiber's watchdog starts with,
	// unless a call site overrides it explicitly.
	Watchdog WatchdogConfig `yaml:"watchdog"`

	// Serve configures the `fiberisoctl serve` subcommand's live graph
	// server.
	Serve ServeConfig `yaml:"serve"`
}

// LogConfig configures internal/logging.New.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// WatchdogConfig configures watchdog.Config.
type WatchdogConfig struct {
	// StallDebounceMillis is the coalescing window, in milliseconds,
	// watchdog.Config.StallDebounce uses. Zero means "use
	// watchdog.DefaultStallDebounce".
	StallDebounceMillis int `yaml:"stallDebounceMillis"`
}

// Debounce returns the configured stall debounce as a time.Duration, or
// zero if unset (callers should fall back to watchdog.DefaultStallDebounce
// in that case).
func (w WatchdogConfig) Debounce() time.Duration {
	if w.StallDebounceMillis <= 0 {
		return 0
	}
	return time.Duration(w.StallDebounceMillis) * time.Millisecond
}

// ServeConfig configures the live graph server.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// ResolvePath returns the config file Load would read for the given working
// directory and explicit --config override (path may be empty to mean
// "FileName in dir"). Exported so callers that need to watch the file —
// runtimeconfig.Watcher in particular — agree with Load on which file that
// is.
func ResolvePath(dir, path string) string {
	if path == "" {
		return filepath.Join(dir, FileName)
	}
	return path
}

// Load reads path, or FileName in dir if path is empty, applying defaults
// for anything left unset. A missing file is not an error: DefaultConfig
// is returned unchanged, matching the teacher's "no vango.json yet" case.
func Load(dir, path string) (*Config, error) {
	path = ResolvePath(dir, path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("runtimeconfig: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("runtimeconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("runtimeconfig: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultConfig returns fiberisoctl's baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Watchdog: WatchdogConfig{
			StallDebounceMillis: 0,
		},
		Serve: ServeConfig{
			Addr: "localhost:8090",
		},
	}
}
