// Package cmd defines and implements the CLI commands for the gamejobs executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gamejobs-crawler/internal/pipeline"
)

// newCrawlCmd creates and configures the 'crawl' subcommand, which runs the
// pipeline once and exits.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one ingestion pass over every enabled source",
		Long: `Crawls the enabled job boards, filters and normalizes the postings, and
synchronizes them into the configured store. With --dry-run the postings go to
an in-memory store and the run report is printed as JSON.`,

		RunE: runCrawlCommand,
	}
	cmd.Flags().Bool("dry-run", false, "use an in-memory store and print the run report")
	cmd.Flags().StringSlice("sources", nil, "limit the run to these sources (comma separated)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	report, runErr := appInstance.Tracker().RunNow(cmd.Context())

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun && report.RunID != "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run pipeline: %w", runErr)
	}

	if err := allSourcesFailed(report); err != nil {
		return err
	}
	logger.Info("crawl command finished",
		zap.String("run_id", report.RunID),
		zap.Int("accepted", report.Accepted()),
		zap.Int("upserted", report.Sync.Upserted),
	)
	return nil
}

// allSourcesFailed turns a run where no source produced anything into an error
// so schedulers see a non-zero exit.
func allSourcesFailed(report pipeline.RunReport) error {
	failed := report.FailedSources()
	if len(report.Sources) == 0 || len(failed) < len(report.Sources) {
		return nil
	}
	return fmt.Errorf("every source failed: %s", strings.Join(failed, ", "))
}
