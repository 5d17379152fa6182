// Package cmd defines and implements the CLI commands for the regscan executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/app"
	"github.com/regscan/crawler/internal/config"
	"github.com/regscan/crawler/internal/logging"
)

var cfgFile string

// appKeyType is the key for storing the runtime in the command context.
type appKeyType string

const appKey appKeyType = "app"

// runtime bundles the services the subcommands share.
type runtime struct {
	Cfg    config.Config
	Logger *zap.Logger
	App    *app.App
}

// newRuntime is the service factory. It is a variable so tests can replace
// it with one that wires in-memory providers.
var newRuntime = func(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize application services: %w", err)
	}
	return &runtime{Cfg: cfg, Logger: logger, App: a}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regscan",
		Short: "A resumable crawler for regulatory enforcement-order listings.",
		Long: `regscan walks a securities regulator's enforcement-order listings,
fetches each order document, extracts the named entities with their
identifiers, and records progress durably so an interrupted run picks
up where it left off instead of starting over.`,

		SilenceUsage: true,

		// Runs after flag parsing but before the subcommand's RunE; every
		// subcommand needs the backends, so they are built exactly here.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(appKey).(*runtime); ok && rt != nil {
				rt.App.Close(context.Background())
				_ = rt.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default reads REGSCAN_* environment only)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return rt, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so an in-flight run stops at the next unit boundary with its last
// committed checkpoint intact.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "regscan: %v\n", err)
		os.Exit(1)
	}
}
