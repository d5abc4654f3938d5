package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowrun-dev/flowrun/internal/engine"
	"github.com/flowrun-dev/flowrun/internal/frontend"
	"github.com/flowrun-dev/flowrun/internal/logger"
	"github.com/flowrun-dev/flowrun/internal/persistence/filerun"
	"github.com/flowrun-dev/flowrun/internal/persistence/fileschedule"
	"github.com/flowrun-dev/flowrun/internal/scheduler"
	"github.com/flowrun-dev/flowrun/internal/trigger"
)

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the API server and the schedule runner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var logOpts []logger.Option
			if cfg.Debug {
				logOpts = append(logOpts, logger.WithDebug())
			}
			if cfg.Quiet {
				logOpts = append(logOpts, logger.WithQuiet())
			}
			logOpts = append(logOpts, logger.WithFormat(cfg.LogFormat))

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()
			ctx = logger.WithLogger(ctx, logger.NewLogger(logOpts...))

			eng := engine.New(filerun.New(cfg.RunsDir))

			sc, err := scheduler.New(ctx, fileschedule.New(cfg.SchedulesFile))
			if err != nil {
				return err
			}

			runner := scheduler.NewRunner(sc, func(ctx context.Context, dagID string) error {
				_, err := eng.RunDAG(ctx, dagID)
				return err
			}, cfg.SchedulerTick)
			go runner.Start(ctx)
			defer runner.Stop()

			return frontend.New(cfg, eng, sc, trigger.NewManager()).Start(ctx)
		},
	}
	return cmd
}
