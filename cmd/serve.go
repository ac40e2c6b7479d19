package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/gamejobs-crawler/internal/api"
	"github.com/JakeFAU/gamejobs-crawler/internal/pipeline"
	"github.com/JakeFAU/gamejobs-crawler/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the pipeline on a schedule and serves the operator API",
		Long: `Starts the HTTP API (health, metrics, run trigger, latest report, stats)
and runs the pipeline every schedule.interval until interrupted.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()
	tracker := appInstance.Tracker()

	server := api.NewServer(tracker, appInstance.Store(), logger.Named("api"))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		scheduler.Every(ctx, cfg.Schedule.Interval, cfg.Schedule.Immediate, "ingest", scheduledRun(tracker, logger), logger)
		return nil
	})
	g.Go(func() error {
		return server.Serve(ctx, cfg.Addr())
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// scheduledRun skips a tick while a triggered run is still going.
func scheduledRun(tracker *pipeline.Tracker, logger *zap.Logger) scheduler.Task {
	return func(ctx context.Context) error {
		_, err := tracker.RunNow(ctx)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			running, _ := tracker.Running()
			logger.Info("scheduled run skipped", zap.String("running", running))
			return nil
		}
		return err
	}
}
