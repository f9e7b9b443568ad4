package main

import (
	"github.com/spf13/cobra"

	"github.com/recera/fiberiso/pkg/inspector"
)

func newInspectCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "connect to a running `fiberisoctl serve` instance and render its live fiber tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = "ws://" + cfg.Serve.Addr + "/live"
			}
			return inspector.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "WebSocket URL of the serve instance (defaults to the configured serve address)")
	return cmd
}
