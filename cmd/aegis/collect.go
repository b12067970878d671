package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/server"
	"github.com/aegis-monitor/aegis/internal/service"
)

func newCollectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the collector and serve telemetry over HTTP",
		Long: `Run the collector and serve telemetry over HTTP.

Endpoints:
  GET /api/health         liveness probe
  GET /api/system/info    one-shot snapshot
  GET /api/system/stream  websocket stream
  GET /api/system/events  server-sent events

When started by the Windows service manager the command runs as a service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if service.IsWindowsService() {
				a.logger.Info("Running as Windows service")
				var runErr error
				svc := service.New(a.logger, func(ctx context.Context) {
					runErr = a.runCollector(ctx)
				})
				if err := svc.Run(); err != nil {
					return fmt.Errorf("service failed: %w", err)
				}
				return runErr
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.runCollector(ctx)
		},
	}
	cmd.Flags().StringVar(&a.overrides.Listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().DurationVar(&a.overrides.Interval, "interval", 0, "polling interval (overrides collection.interval)")
	return cmd
}

// runCollector serves the bridge over HTTP until ctx is cancelled.
func (a *app) runCollector(ctx context.Context) error {
	sched, b, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer sched.Destroy()
	defer b.Close()

	policy, _ := bridge.ParseStartPolicy(a.cfg.Bridge.StartPolicy)
	if policy == bridge.StartExplicit {
		if err := b.StartMonitoring(a.cfg.Collection.Interval.Duration); err != nil {
			return err
		}
		defer b.StopMonitoring()
	}

	a.logger.Info("Starting Aegis collector",
		zap.String("version", version),
		zap.String("listen", a.cfg.Server.Listen),
		zap.Duration("interval", a.cfg.Collection.Interval.Duration),
		zap.String("start_policy", string(policy)))

	srv := server.New(b, server.Options{
		Listen:  a.cfg.Server.Listen,
		GinMode: a.cfg.Server.GinMode,
		Version: version,
	}, a.logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("collector API: %w", err)
	}

	a.logger.Info("Collector stopped")
	return nil
}
