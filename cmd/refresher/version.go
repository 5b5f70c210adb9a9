package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pysugar/codex-status-fleet/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (commit %s, built %s)\n",
				version.Version, version.Commit, version.BuildTime)
			return err
		},
	}
}
