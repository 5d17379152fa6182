package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regscan/crawler/internal/crawl"
)

type reportOutput struct {
	Kind        crawl.CrawlKind      `json:"kind"`
	Cursor      *crawl.Cursor        `json:"cursor,omitempty"`
	LastUnitRef string               `json:"last_unit_ref,omitempty"`
	Ledger      map[string]int64     `json:"ledger"`
	Entities    *crawl.EntitySummary `json:"entities,omitempty"`
}

// newReportCmd creates the 'report' subcommand, which prints crawl progress
// and extraction coverage as JSON for scripting.
func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Prints checkpoint position, ledger counts and entity coverage",

		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			out := reportOutput{
				Kind:   crawl.CrawlKind(rt.Cfg.Crawl.Kind),
				Ledger: make(map[string]int64),
			}

			cp, ok, err := rt.App.Store.ReadCursor(ctx, out.Kind)
			if err != nil {
				return fmt.Errorf("read checkpoint: %w", err)
			}
			if ok {
				out.Cursor = &cp.Cursor
				out.LastUnitRef = cp.LastUnitRef
			}

			for _, status := range []crawl.UnitStatus{
				crawl.StatusProcessing,
				crawl.StatusCompleted,
				crawl.StatusFailed,
			} {
				n, err := rt.App.Store.CountByStatus(ctx, status)
				if err != nil {
					return fmt.Errorf("count %s units: %w", status, err)
				}
				out.Ledger[string(status)] = n
			}

			sum, err := rt.App.EntityStore().Summary(ctx)
			if err != nil {
				return fmt.Errorf("summarize entities: %w", err)
			}
			out.Entities = &sum

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
