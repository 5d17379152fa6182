package crawl

import (
	"context"

	"go.uber.org/zap"
)

// PlanRequest carries the run-time controls that shape a run's starting point.
type PlanRequest struct {
	Kind CrawlKind
	// Reset discards the stored cursor and starts from StartBound.
	Reset bool
	// StartBound is the configured lower edge of the crawl window. Config can
	// only move the window forward, never backward.
	StartBound Cursor
	// ResumeUnitRef optionally names a unit to fast-forward past on the first
	// resumed page.
	ResumeUnitRef string
}

// Planner computes the effective starting cursor and same-page resume hint
// for a run from the stored checkpoint and the request's controls.
type Planner struct {
	checkpoints CheckpointStore
	logger      *zap.Logger
}

// NewPlanner builds a Planner.
func NewPlanner(checkpoints CheckpointStore, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{checkpoints: checkpoints, logger: logger}
}

// Plan resolves where this run starts.
//
// With Reset set, the stored checkpoint is rewritten to the configured start
// bound and ignored; the ledger is deliberately left untouched so previously
// completed units still short-circuit.
//
// Otherwise the effective start is max(storedCursor, StartBound): resuming
// wins over a narrower configured window, while config can extend forward.
// The stored last-unit ref is carried as a same-page resume hint only when
// resuming at the stored cursor; an explicit ResumeUnitRef overrides it.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (Plan, error) {
	if req.Reset {
		if err := p.checkpoints.ResetCursor(ctx, req.Kind, req.StartBound); err != nil {
			return Plan{}, E(KindStore, "planner.reset", err)
		}
		p.logger.Info("checkpoint reset",
			zap.String("kind", string(req.Kind)),
			zap.Int("start", int(req.StartBound)),
		)
		return Plan{StartCursor: req.StartBound, Reset: true}, nil
	}

	cp, found, err := p.checkpoints.ReadCursor(ctx, req.Kind)
	if err != nil {
		return Plan{}, E(KindStore, "planner.read", err)
	}
	if !found {
		p.logger.Info("no stored checkpoint, starting at configured bound",
			zap.Int("start", int(req.StartBound)),
		)
		return Plan{StartCursor: req.StartBound, ResumeUnitRef: req.ResumeUnitRef}, nil
	}

	start := cp.Cursor
	if req.StartBound > start {
		start = req.StartBound
	}

	hint := req.ResumeUnitRef
	if hint == "" && start == cp.Cursor {
		hint = cp.LastUnitRef
	}

	p.logger.Info("resuming crawl",
		zap.String("kind", string(req.Kind)),
		zap.Int("stored_cursor", int(cp.Cursor)),
		zap.Int("effective_start", int(start)),
		zap.String("resume_unit", hint),
	)
	return Plan{StartCursor: start, ResumeUnitRef: hint}, nil
}
