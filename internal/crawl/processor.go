package crawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ProcessorConfig controls side-effect destinations for processed units.
type ProcessorConfig struct {
	ArchivePrefix string
	ContentType   string
}

// Processor drives one unit through the extraction pipeline and owns its
// ledger transitions. Checkpoint advancement is the orchestrator's concern:
// many units share one page cursor.
type Processor struct {
	ledger    UnitLedger
	fetcher   ContentFetcher
	extractor Extractor
	entities  EntityStore
	archive   BlobStore
	publisher Publisher
	hasher    Hasher
	clock     Clock
	cfg       ProcessorConfig
	logger    *zap.Logger
}

// NewProcessor constructs a Processor. Archive and publisher may be nil or
// no-op providers; ledger, fetcher, extractor and entities are required.
func NewProcessor(
	ledger UnitLedger,
	fetcher ContentFetcher,
	extractor Extractor,
	entities EntityStore,
	archive BlobStore,
	publisher Publisher,
	hasher Hasher,
	clock Clock,
	cfg ProcessorConfig,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/pdf"
	}
	return &Processor{
		ledger:    ledger,
		fetcher:   fetcher,
		extractor: extractor,
		entities:  entities,
		archive:   archive,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process runs one unit to a terminal state. Unit-scoped failures are fully
// absorbed here: they become a failed ledger entry plus a log line and never
// unwind into the orchestrator's control flow. The returned error is reserved
// for ledger write failures on the terminal transition, which the caller
// surfaces as a run-level warning.
func (p *Processor) Process(ctx context.Context, runID string, unit Unit) (Outcome, error) {
	outcome, err := p.ledger.Begin(ctx, unit.Ref)
	if err != nil {
		return OutcomeFailed, E(KindStore, "ledger.begin", err)
	}
	switch outcome {
	case BeginAlreadyCompleted:
		p.logger.Debug("unit already completed, skipping", zap.String("unit", unit.Ref))
		return OutcomeSkipped, nil
	case BeginInFlight:
		p.logger.Warn("unit claimed by a fresh processing record, skipping", zap.String("unit", unit.Ref))
		return OutcomeSkipped, nil
	case BeginRetrying:
		p.logger.Info("retrying previously failed unit", zap.String("unit", unit.Ref))
	}

	count, blobURI, hash, procErr := p.runPipeline(ctx, runID, unit)
	if procErr != nil {
		p.logger.Warn("unit processing failed",
			zap.String("unit", unit.Ref),
			zap.String("kind", string(KindOf(procErr))),
			zap.Error(procErr),
		)
		if err := p.ledger.Fail(ctx, unit.Ref, procErr.Error()); err != nil {
			return OutcomeFailed, E(KindStore, "ledger.fail", err)
		}
		p.publish(ctx, runID, unit.Ref, string(StatusFailed), 0, blobURI, hash)
		return OutcomeFailed, nil
	}

	if err := p.ledger.Complete(ctx, unit.Ref, count); err != nil {
		return OutcomeFailed, E(KindStore, "ledger.complete", err)
	}
	p.publish(ctx, runID, unit.Ref, string(StatusCompleted), count, blobURI, hash)
	p.logger.Info("unit completed",
		zap.String("unit", unit.Ref),
		zap.Int("entities", count),
	)
	return OutcomeCompleted, nil
}

// runPipeline performs fetch, archive, extraction and derived-record
// persistence. Any failure at or after content acquisition is returned for
// conversion into a failed ledger transition.
func (p *Processor) runPipeline(ctx context.Context, runID string, unit Unit) (int, string, string, error) {
	content, err := p.fetcher.FetchContent(ctx, unit.Ref)
	if err != nil {
		return 0, "", "", E(KindTransient, "fetch content", err)
	}

	var blobURI, hash string
	if p.archive != nil && p.hasher != nil {
		hash, err = p.hasher.Hash(content)
		if err != nil {
			return 0, "", "", E(KindExtraction, "hash content", err)
		}
		blobURI, err = p.archive.Put(ctx, p.blobPath(hash), p.cfg.ContentType, content)
		if err != nil {
			return 0, "", "", E(KindStore, "archive content", err)
		}
	}

	ents, err := p.extractor.Extract(ctx, unit, content)
	if err != nil {
		return 0, blobURI, hash, E(KindExtraction, "extract", err)
	}

	for i := range ents {
		ents[i].RunID = runID
		ents[i].ScrapedAt = p.clock.Now()
	}

	count := 0
	if len(ents) > 0 {
		count, err = p.entities.SaveEntities(ctx, ents)
		if err != nil {
			return 0, blobURI, hash, E(KindStore, "save entities", err)
		}
	}
	return count, blobURI, hash, nil
}

// publish is fire-and-forget: a lost notification never fails the unit.
func (p *Processor) publish(ctx context.Context, runID, ref, status string, count int, blobURI, hash string) {
	if p.publisher == nil {
		return
	}
	event := UnitEvent{
		RunID:       runID,
		UnitRef:     ref,
		Status:      status,
		ResultCount: count,
		BlobURI:     blobURI,
		ContentHash: hash,
		Timestamp:   p.clock.Now(),
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publish unit event failed", zap.String("unit", ref), zap.Error(err))
	}
}

func (p *Processor) blobPath(hash string) string {
	if p.cfg.ArchivePrefix == "" {
		return fmt.Sprintf("%s.pdf", hash)
	}
	return fmt.Sprintf("%s/%s.pdf", p.cfg.ArchivePrefix, hash)
}
