package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/collector"
	"github.com/aegis-monitor/aegis/internal/config"
	"github.com/aegis-monitor/aegis/internal/platform"
	"github.com/aegis-monitor/aegis/internal/scheduler"
	"github.com/aegis-monitor/aegis/internal/util/safego"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

// app carries state shared by all subcommands once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	overrides  config.CLIOverrides

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "aegis",
		Short:         "System telemetry collector and dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to configuration file (default: auto-discover)")
	flags.StringVar(&a.overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newCollectCmd(a),
		newSnapshotCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// init loads layered configuration and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	var paths []string
	if cmd.Flags().Changed("config") {
		paths = append(paths, a.configPath)
	}

	cfg, err := config.LoadLayered(a.overrides, embeddedConfig, paths...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = initLogger(cfg)
	safego.InitPanicLogger(a.logger)

	if _, err := maxprocs.Set(maxprocs.Logger(a.logger.Sugar().Debugf)); err != nil {
		a.logger.Warn("Failed to set GOMAXPROCS", zap.Error(err))
	}
	return nil
}

// newPipeline wires the in-process collector: sampler, scheduler and bridge.
func (a *app) newPipeline() (*scheduler.Scheduler, *bridge.Bridge, error) {
	policy, err := bridge.ParseStartPolicy(a.cfg.Bridge.StartPolicy)
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(a.newSampler(), a.logger)
	b := bridge.New(sched, a.logger,
		bridge.WithPolicy(policy),
		bridge.WithInterval(a.cfg.Collection.Interval.Duration))
	return sched, b, nil
}

func (a *app) newSampler() *collector.Sampler {
	registry := collector.NewDefaultRegistry(collector.Options{
		TopProcesses: a.cfg.Collection.TopProcesses,
		Temperature:  a.cfg.Collection.Temperature,
		GPU:          a.cfg.Collection.GPU,
		Platform:     platform.New(),
	}, a.logger)
	return collector.NewSampler(registry, a.logger,
		collector.WithTimeout(a.cfg.Collection.Timeout.Duration))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip config loading; version must work with a broken config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", bold("aegis"), green(version))
		},
	}
}
