package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
)

// Pipeline turns a downloaded order into entity records.
type Pipeline struct {
	logger *zap.Logger
}

// NewPipeline constructs the extraction pipeline.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

// Extract derives entity records from the unit's document bytes. A document
// that yields no candidates is a valid empty result, not an error.
func (p *Pipeline) Extract(ctx context.Context, unit crawl.Unit, content []byte) ([]crawl.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := DocumentText(content)
	if err != nil {
		return nil, err
	}
	text = truncate(text)

	candidates := FindCandidates(text)
	if len(candidates) == 0 {
		p.logger.Debug("no entity candidates in document", zap.String("ref", unit.Ref))
		return nil, nil
	}

	pans := findPANs(text)
	cins := findCINs(text)
	addresses := FindAddresses(text)
	p.logger.Debug("mined document",
		zap.String("ref", unit.Ref),
		zap.Int("candidates", len(candidates)),
		zap.Int("pans", len(pans)),
		zap.Int("cins", len(cins)),
		zap.Int("addresses", len(addresses)),
	)

	entities := make([]crawl.Entity, 0, len(candidates))
	for _, cand := range candidates {
		window := Context(text, cand, contextWindow)
		entities = append(entities, crawl.Entity{
			Name:       cand.Name,
			Type:       cand.Type,
			Sentiment:  Sentiment(window),
			PAN:        nearestPAN(cand, pans),
			CIN:        nearestCIN(cand, window, cins),
			Address:    matchAddress(cand, window, addresses),
			SourceRef:  unit.Ref,
			SourceName: unit.Title,
			SourceDate: unit.Date,
		})
	}
	return entities, nil
}
