package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/metrics"
)

// OrchestratorConfig holds the run-time controls for one crawl run.
type OrchestratorConfig struct {
	Kind          CrawlKind
	StartBound    Cursor
	EndBound      Cursor
	Reset         bool
	ResumeUnitRef string
}

// Orchestrator owns the top-level control loop: plan, walk pages, process
// units, commit the page cursor. One bad unit never blocks the rest of the
// page or subsequent pages; a page that cannot be fetched at all halts the
// run, preserving the last committed checkpoint.
type Orchestrator struct {
	planner     *Planner
	walker      Walker
	processor   *Processor
	checkpoints CheckpointStore
	clock       Clock
	cfg         OrchestratorConfig
	logger      *zap.Logger
}

// NewOrchestrator wires the run loop.
func NewOrchestrator(
	planner *Planner,
	walker Walker,
	processor *Processor,
	checkpoints CheckpointStore,
	clock Clock,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Orchestrator{
		planner:     planner,
		walker:      walker,
		processor:   processor,
		checkpoints: checkpoints,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run executes one crawl run to completion, natural end of source, the end
// bound, or cancellation. The returned stats are valid even on error.
func (o *Orchestrator) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{
		RunID:     uuid.NewString(),
		StartedAt: o.clock.Now(),
	}
	defer func() { stats.FinishedAt = o.clock.Now() }()

	plan, err := o.planner.Plan(ctx, PlanRequest{
		Kind:          o.cfg.Kind,
		Reset:         o.cfg.Reset,
		StartBound:    o.cfg.StartBound,
		ResumeUnitRef: o.cfg.ResumeUnitRef,
	})
	if err != nil {
		return stats, err
	}

	o.logger.Info("run starting",
		zap.String("run_id", stats.RunID),
		zap.Int("start_cursor", int(plan.StartCursor)),
		zap.Int("end_bound", int(o.cfg.EndBound)),
	)

	iter := o.walker.PagesFrom(plan.StartCursor)
	resumeHint := plan.ResumeUnitRef

	for {
		if err := ctx.Err(); err != nil {
			o.logger.Info("run canceled between pages", zap.String("run_id", stats.RunID))
			return stats, err
		}

		page, err := iter.Next(ctx)
		if errors.Is(err, ErrEndOfListing) {
			o.logger.Info("listing exhausted", zap.Int("pages", stats.PagesWalked))
			return stats, nil
		}
		if err != nil {
			// A page-level failure aborts the run: skipping it silently would
			// let the cursor advance past unseen work.
			metrics.ObservePage("failed")
			o.logger.Error("page fetch failed, halting run",
				zap.Int("cursor", int(page.Cursor)),
				zap.Error(err),
			)
			return stats, fmt.Errorf("fetch page %d: %w", page.Cursor, err)
		}
		if o.cfg.EndBound > 0 && page.Cursor > o.cfg.EndBound {
			o.logger.Info("end bound reached", zap.Int("end", int(o.cfg.EndBound)))
			return stats, nil
		}

		units := page.Units
		if resumeHint != "" {
			units = applyResumeHint(units, resumeHint)
			if skipped := len(page.Units) - len(units); skipped > 0 {
				o.logger.Info("fast-forwarded past resume unit",
					zap.String("resume_unit", resumeHint),
					zap.Int("units_skipped", skipped),
				)
			}
			resumeHint = ""
		}

		canceled, err := o.processPage(ctx, stats.RunID, page, units, &stats)
		if err != nil {
			return stats, err
		}
		if canceled {
			// The page never committed; counting it as walked would overstate
			// progress.
			return stats, ctx.Err()
		}
		stats.PagesWalked++
		metrics.ObservePage("walked")
	}
}

// processPage runs every unit of a page to a terminal state and then, and
// only then, commits the page cursor. A cancellation between units leaves
// the page uncommitted so the next run re-walks it.
func (o *Orchestrator) processPage(
	ctx context.Context,
	runID string,
	page Page,
	units []Unit,
	stats *RunStats,
) (bool, error) {
	for _, unit := range units {
		if ctx.Err() != nil {
			o.logger.Info("run canceled between units", zap.String("unit", unit.Ref))
			return true, nil
		}
		outcome, err := o.processor.Process(ctx, runID, unit)
		if err != nil {
			// Terminal-transition write failures risk losing the
			// completed/failed marker; surface loudly but keep the run alive.
			o.logger.Warn("ledger write failed on terminal transition",
				zap.String("unit", unit.Ref),
				zap.Error(err),
			)
		}
		metrics.ObserveUnit(outcome.String())
		switch outcome {
		case OutcomeCompleted:
			stats.UnitsCompleted++
		case OutcomeFailed:
			stats.UnitsFailed++
		case OutcomeSkipped:
			stats.UnitsSkipped++
		}
	}

	cp := Checkpoint{
		Kind:      o.cfg.Kind,
		Cursor:    page.Cursor,
		RunID:     runID,
		UpdatedAt: o.clock.Now(),
	}
	if n := len(page.Units); n > 0 {
		cp.LastUnitRef = page.Units[n-1].Ref
	}
	if err := o.checkpoints.WriteCursor(ctx, cp); err != nil {
		// The store guarantees the previous checkpoint survives a failed
		// write; the next run simply re-walks this page.
		o.logger.Error("checkpoint write failed",
			zap.Int("cursor", int(page.Cursor)),
			zap.Error(err),
		)
		metrics.ObserveCheckpoint("failed")
	} else {
		metrics.ObserveCheckpoint("committed")
	}
	return false, nil
}

// applyResumeHint discards units up to and including the hinted unit. A hint
// that never matches is stale: the page is processed unaltered.
func applyResumeHint(units []Unit, hint string) []Unit {
	for i, u := range units {
		if u.Ref == hint {
			return units[i+1:]
		}
	}
	return units
}
