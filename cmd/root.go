package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gamejobs-crawler/internal/app"
	"github.com/JakeFAU/gamejobs-crawler/internal/config"
	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
	"github.com/JakeFAU/gamejobs-crawler/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services commands use. Tests inject their own.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Store() ingest.Store
	Tracker() *pipeline.Tracker
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, opts app.Options) (App, error) {
	return app.New(ctx, cfg, opts)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	var envFile string

	cmd := &cobra.Command{
		Use:   "gamejobs",
		Short: "Collects entry-level game industry job postings from Korean job boards.",
		Long: `gamejobs crawls Korean job boards (Wanted, Saramin, Gamejob, JobKorea and a
university board), keeps entry-level game industry postings, normalizes their
deadlines and links, and synchronizes them into a posting store.`,
		SilenceUsage: true,

		// Build the services once flags are parsed, before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}

			var opts []config.Option
			if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil && dryRun {
				opts = append(opts, config.WithOverride("store.backend", config.BackendMemory))
			}
			cfg, err := config.Load(cfgFile, opts...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var sources []string
			if names, err := cmd.Flags().GetStringSlice("sources"); err == nil {
				sources = names
			}

			appInstance, err := newApp(cmd.Context(), cfg, app.Options{Sources: sources})
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables use the GAMEJOBS_ prefix")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
