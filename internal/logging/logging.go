// Package logging builds the hclog.Logger that cmd/fiberisoctl's
// subcommands log with and hand to livegraph.NewServer. Core packages
// (hook.New, fiber.NewRegistry, watchdog.Start, ...) take an hclog.Logger
// parameter directly rather than reaching into a shared global;
// fiberisoctl does not pass this logger to them. This package's only job
// is constructing that one logger at process start, the same
// role the teacher's pkg/debug.EnableLogging played for the scheduler and
// reactive packages' SetDebugLog hooks.
package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options configures New.
type Options struct {
	// Level is one of hclog's level names ("trace", "debug", "info",
	// "warn", "error"). Empty defaults to "info".
	Level string
	// JSON selects hclog's structured JSON output, for piping into log
	// aggregation; the default is hclog's human-readable colored format.
	JSON bool
	// Name prefixes every log line, e.g. "fiberisoctl".
	Name string
}

// New constructs a logger writing to stderr per opts.
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:            opts.Name,
		Level:           level,
		Output:          os.Stderr,
		JSONFormat:      opts.JSON,
		Color:           hclog.AutoColor,
		IncludeLocation: level <= hclog.Debug,
	})
}
