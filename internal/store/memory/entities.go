package memory

import (
	"context"
	"sync"

	"github.com/regscan/crawler/internal/crawl"
)

// EntityStore accumulates derived records in memory.
type EntityStore struct {
	mu       sync.Mutex
	Entities []crawl.Entity
	// FailSaves makes SaveEntities fail, for exercising the unit-failure path.
	FailSaves error
}

// NewEntityStore builds an empty store.
func NewEntityStore() *EntityStore {
	return &EntityStore{}
}

// SaveEntities appends entities and returns the number stored.
func (s *EntityStore) SaveEntities(_ context.Context, entities []crawl.Entity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return 0, s.FailSaves
	}
	s.Entities = append(s.Entities, entities...)
	return len(entities), nil
}

// Summary aggregates the stored entities.
func (s *EntityStore) Summary(_ context.Context) (crawl.EntitySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := crawl.EntitySummary{Total: int64(len(s.Entities))}
	for _, e := range s.Entities {
		if e.PAN != "" {
			sum.WithPAN++
		}
		if e.CIN != "" {
			sum.WithCIN++
		}
		if e.Address != "" {
			sum.WithAddress++
		}
		if e.Sentiment == "Negative" {
			sum.NegativeSentiment++
		}
	}
	if sum.Total > 0 {
		sum.PANCoverage = float64(sum.WithPAN) / float64(sum.Total) * 100
	}
	return sum, nil
}
