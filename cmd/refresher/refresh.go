package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pysugar/codex-status-fleet/internal/config"
	"github.com/pysugar/codex-status-fleet/internal/refresh"
)

var errIncomplete = errors.New("refresh finished with errors")

func newRefreshCmd(cfg *config.Config) *cobra.Command {
	var req refresh.Request
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh and print the summary as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cfg)
			if err != nil {
				return err
			}
			summary, err := a.coordinator.Refresh(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			if !summary.OK {
				return errIncomplete
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Label, "label", "", "refresh only this account label")
	cmd.Flags().BoolVar(&req.IncludeDisabled, "include-disabled", false, "include disabled accounts")
	return cmd
}

func newPushRegistryCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "push-registry",
		Short: "Push the account inventory to the collector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cfg)
			if err != nil {
				return err
			}
			if err := a.coordinator.PushInventory(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "registry pushed")
			return err
		},
	}
}
