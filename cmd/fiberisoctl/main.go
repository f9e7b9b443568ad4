package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/recera/fiberiso/cmd/fiberisoctl/internal/runtimeconfig"
	"github.com/recera/fiberiso/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "dev"
	date    = "unknown"

	configPath string
	logLevel   string
	logJSON    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "fiberisoctl",
		Short:   "fiberisoctl drives and inspects fiberiso isolation primitives",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to fiberiso.yaml (defaults to ./fiberiso.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of the default human-readable format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newInspectCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads fiberisoctl's config, applying any --log-level/--log-json
// flag overrides, and returns it; newLogger builds a logger from it.
func loadConfig() (*runtimeconfig.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := runtimeconfig.Load(dir, configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

func newLogger(cfg *runtimeconfig.Config, name string) hclog.Logger {
	return logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Name: name})
}
