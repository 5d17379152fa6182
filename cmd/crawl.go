package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/api"
	"github.com/regscan/crawler/internal/config"
	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/metrics"
)

type crawlFlags struct {
	reset     bool
	startPage int
	endPage   int
	resumeRef string
	noServer  bool
}

// newCrawlCmd creates and configures the 'crawl' subcommand, which runs one
// crawl to completion, cancellation, or the configured end bound.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl over the enforcement-order source",
		Long: `Resumes the crawl from the stored checkpoint (or the configured start
page, whichever is further along), processes every order document that has
not already completed, and commits the cursor page by page. Interrupting
the run is safe: the next invocation resumes from the last committed page.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.reset, "reset", false, "discard the stored checkpoint and start from the configured start page")
	cmd.Flags().IntVar(&flags.startPage, "start", 0, "override crawl.start_page for this run")
	cmd.Flags().IntVar(&flags.endPage, "end", 0, "override crawl.end_page for this run (0 walks to the natural end)")
	cmd.Flags().StringVar(&flags.resumeRef, "resume-ref", "", "fast-forward past this unit ref on the first resumed page")
	cmd.Flags().BoolVar(&flags.noServer, "no-server", false, "do not serve the status/metrics endpoints during the run")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, flags crawlFlags) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	metrics.Init()

	cfg := rt.Cfg
	if flags.startPage > 0 {
		cfg.Crawl.StartPage = flags.startPage
	}
	if flags.endPage > 0 {
		cfg.Crawl.EndPage = flags.endPage
	}

	var srv *http.Server
	if !flags.noServer {
		srv = startStatusServer(rt)
		defer stopStatusServer(srv, rt.Logger)
	}

	orch := buildOrchestrator(rt, cfg, flags)
	stats, err := orch.Run(cmd.Context())
	logRunStats(rt.Logger, stats)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}
	return nil
}

func buildOrchestrator(rt *runtime, cfg config.Config, flags crawlFlags) *crawl.Orchestrator {
	a := rt.App
	processor := crawl.NewProcessor(
		a.Store,
		a.Fetcher,
		a.Extractor,
		a.EntityStore(),
		a.Archive,
		a.Publisher,
		a.Hasher,
		a.Clock,
		crawl.ProcessorConfig{
			ArchivePrefix: cfg.Archive.Prefix,
			ContentType:   cfg.Archive.ContentType,
		},
		rt.Logger,
	)
	return crawl.NewOrchestrator(
		crawl.NewPlanner(a.Store, rt.Logger),
		a.Walker,
		processor,
		a.Store,
		a.Clock,
		crawl.OrchestratorConfig{
			Kind:          crawl.CrawlKind(cfg.Crawl.Kind),
			StartBound:    crawl.Cursor(cfg.Crawl.StartPage),
			EndBound:      crawl.Cursor(cfg.Crawl.EndPage),
			Reset:         flags.reset,
			ResumeUnitRef: flags.resumeRef,
		},
		rt.Logger,
	)
}

// startStatusServer exposes /healthz, /v1/status and /metrics while the run
// is in flight. It binds asynchronously; a port clash is logged, not fatal,
// because the crawl itself does not depend on the server.
func startStatusServer(rt *runtime) *http.Server {
	handler := api.NewServer(
		rt.App.Store,
		rt.App.Store,
		rt.App.EntityStore(),
		crawl.CrawlKind(rt.Cfg.Crawl.Kind),
		rt.Logger,
	).Handler()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", rt.Cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		rt.Logger.Info("status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Warn("status server stopped", zap.Error(err))
		}
	}()
	return srv
}

func stopStatusServer(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("status server shutdown", zap.Error(err))
	}
}

func logRunStats(logger *zap.Logger, stats crawl.RunStats) {
	logger.Info("run finished",
		zap.String("run_id", stats.RunID),
		zap.Int("pages", stats.PagesWalked),
		zap.Int("completed", stats.UnitsCompleted),
		zap.Int("failed", stats.UnitsFailed),
		zap.Int("skipped", stats.UnitsSkipped),
		zap.Duration("elapsed", stats.FinishedAt.Sub(stats.StartedAt)),
	)
}
