package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regscan/crawler/internal/crawl"
)

// newResetCmd creates the 'reset' subcommand, which rewrites the stored
// checkpoint without running a crawl. The unit ledger is left untouched so
// already-completed documents still short-circuit on the next run.
func newResetCmd() *cobra.Command {
	var toPage int
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Rewrites the stored checkpoint to a fresh starting page",

		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}

			to := crawl.Cursor(rt.Cfg.Crawl.StartPage)
			if toPage > 0 {
				to = crawl.Cursor(toPage)
			}
			kind := crawl.CrawlKind(rt.Cfg.Crawl.Kind)
			if err := rt.App.Store.ResetCursor(cmd.Context(), kind, to); err != nil {
				return fmt.Errorf("reset checkpoint: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint for %s reset to cursor %d\n", kind, to)
			return nil
		},
	}

	cmd.Flags().IntVar(&toPage, "to", 0, "cursor to reset to (defaults to crawl.start_page)")
	return cmd
}
