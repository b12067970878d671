package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/display"
	"github.com/aegis-monitor/aegis/internal/remote"
)

func newWatchCmd(a *app) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a live terminal dashboard",
		Long: `Show a live terminal dashboard.

By default the dashboard connects to a running collector. With --local it
collects in-process. When no collector answers it shows synthetic data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var api bridge.API
			if local {
				sched, b, err := a.newPipeline()
				if err != nil {
					return err
				}
				defer sched.Destroy()
				defer b.Close()
				if policy, _ := bridge.ParseStartPolicy(a.cfg.Bridge.StartPolicy); policy == bridge.StartExplicit {
					if err := b.StartMonitoring(a.cfg.Collection.Interval.Duration); err != nil {
						return err
					}
				}
				api = b
			} else {
				client, err := remote.Probe(ctx, a.cfg.Display.CollectorURL, a.logger,
					remote.WithRetries(a.cfg.Display.ProbeRetries))
				if err != nil {
					a.logger.Info("Collector not reachable, showing synthetic data", zap.Error(err))
				} else {
					defer client.Close()
					api = client
				}
			}

			mode, err := display.ParseMode(a.cfg.Display.Mode)
			if err != nil {
				return err
			}
			hook := display.New(api, a.logger,
				display.WithInterval(a.cfg.Display.Interval.Duration),
				display.WithMode(mode),
				display.WithHistorySize(a.cfg.Display.HistorySize))

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			hook.OnChange(func(v display.View) {
				mu.Lock()
				defer mu.Unlock()
				clearScreen(out)
				render(out, v, hook.History())
			})

			hook.Mount()
			<-ctx.Done()
			hook.Unmount()
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "collect in-process instead of connecting to a collector")
	cmd.Flags().StringVar(&a.overrides.CollectorURL, "collector-url", "", "collector base URL (overrides display.collector_url)")
	cmd.Flags().StringVar(&a.overrides.Mode, "mode", "", "refresh mode: poll or push")
	cmd.Flags().DurationVar(&a.overrides.Interval, "interval", 0, "refresh interval")
	return cmd
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}
