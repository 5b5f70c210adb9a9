package main

import (
	"github.com/spf13/cobra"

	"github.com/pysugar/codex-status-fleet/internal/config"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "refresher",
		Short:        "Refresh usage and rate-limit state for a fleet of AI accounts",
		SilenceUsage: true,
	}

	cfg := config.Load()
	rootCmd.AddCommand(
		newServeCmd(cfg),
		newRefreshCmd(cfg),
		newPushRegistryCmd(cfg),
		newVersionCmd(),
	)
	return rootCmd
}
