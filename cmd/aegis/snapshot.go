package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/remote"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var (
		fromRemote bool
		compact    bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print one snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var snap models.Snapshot
			if fromRemote {
				client, err := remote.Probe(ctx, a.cfg.Display.CollectorURL, a.logger,
					remote.WithRetries(a.cfg.Display.ProbeRetries))
				if err != nil {
					return err
				}
				defer client.Close()
				if snap, err = client.GetInfo(ctx); err != nil {
					return fmt.Errorf("fetching snapshot: %w", err)
				}
			} else {
				snap = a.newSampler().Snapshot(ctx)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(snap)
		},
	}
	cmd.Flags().BoolVar(&fromRemote, "remote", false, "fetch from the collector at display.collector_url")
	cmd.Flags().StringVar(&a.overrides.CollectorURL, "collector-url", "", "collector base URL (overrides display.collector_url)")
	cmd.Flags().BoolVar(&compact, "compact", false, "print compact JSON")
	return cmd
}
