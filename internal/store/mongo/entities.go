package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/regscan/crawler/internal/crawl"
)

// SaveEntities inserts the derived records in one batch. An empty batch is a
// successful no-op.
func (s *Store) SaveEntities(ctx context.Context, entities []crawl.Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	docs := make([]interface{}, len(entities))
	for i := range entities {
		docs[i] = entities[i]
	}
	res, err := s.entities.InsertMany(opCtx, docs)
	if err != nil {
		return 0, crawl.E(crawl.KindStore, "entities.save", err)
	}
	return len(res.InsertedIDs), nil
}

// Summary aggregates coverage counts over the stored entities.
func (s *Store) Summary(ctx context.Context) (crawl.EntitySummary, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var sum crawl.EntitySummary
	counts := []struct {
		dst    *int64
		filter bson.M
	}{
		{&sum.Total, bson.M{}},
		{&sum.WithPAN, bson.M{"pan": bson.M{"$ne": ""}}},
		{&sum.WithCIN, bson.M{"cin": bson.M{"$ne": ""}}},
		{&sum.WithAddress, bson.M{"address": bson.M{"$ne": ""}}},
		{&sum.NegativeSentiment, bson.M{"sentiment": "Negative"}},
	}
	for _, c := range counts {
		n, err := s.entities.CountDocuments(opCtx, c.filter)
		if err != nil {
			return crawl.EntitySummary{}, crawl.E(crawl.KindStore, "entities.summary", err)
		}
		*c.dst = n
	}
	if sum.Total > 0 {
		sum.PANCoverage = float64(sum.WithPAN) / float64(sum.Total) * 100
	}
	return sum, nil
}
