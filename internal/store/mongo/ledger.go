package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/regscan/crawler/internal/crawl"
)

// Begin claims a unit for processing. All transitions are single filtered
// writes, so two concurrent claimants cannot both win.
func (s *Store) Begin(ctx context.Context, ref string) (crawl.BeginOutcome, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rec crawl.UnitRecord
	err := s.ledger.FindOne(opCtx, bson.M{"_id": ref}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		doc := crawl.UnitRecord{Ref: ref, Status: crawl.StatusProcessing, StartedAt: s.clock.Now()}
		_, err = s.ledger.InsertOne(opCtx, doc)
		if mongo.IsDuplicateKeyError(err) {
			// Lost the insert race; another claimant holds it.
			return crawl.BeginInFlight, nil
		}
		if err != nil {
			return crawl.BeginInFlight, crawl.E(crawl.KindStore, "ledger.begin", err)
		}
		return crawl.BeginStarted, nil
	}
	if err != nil {
		return crawl.BeginInFlight, crawl.E(crawl.KindStore, "ledger.begin", err)
	}

	switch rec.Status {
	case crawl.StatusCompleted:
		return crawl.BeginAlreadyCompleted, nil

	case crawl.StatusFailed:
		return s.reclaim(opCtx, ref, bson.M{"_id": ref, "status": crawl.StatusFailed})

	case crawl.StatusProcessing:
		if s.staleAfter > 0 && s.clock.Now().Sub(rec.StartedAt) >= s.staleAfter {
			// Claim abandoned by a crashed run; steal it, guarding on the
			// observed started_at so only one stealer wins.
			return s.reclaim(opCtx, ref, bson.M{
				"_id":        ref,
				"status":     crawl.StatusProcessing,
				"started_at": rec.StartedAt,
			})
		}
		return crawl.BeginInFlight, nil

	default:
		return crawl.BeginInFlight, crawl.E(crawl.KindStore, "ledger.begin",
			fmt.Errorf("unit %s: unknown status %q", ref, rec.Status))
	}
}

func (s *Store) reclaim(ctx context.Context, ref string, filter bson.M) (crawl.BeginOutcome, error) {
	update := bson.M{
		"$set":   bson.M{"status": crawl.StatusProcessing, "started_at": s.clock.Now()},
		"$unset": bson.M{"failed_at": "", "error": "", "completed_at": "", "result_count": ""},
	}
	res, err := s.ledger.UpdateOne(ctx, filter, update)
	if err != nil {
		return crawl.BeginInFlight, crawl.E(crawl.KindStore, "ledger.begin", err)
	}
	if res.ModifiedCount == 0 {
		// Someone else transitioned the record first.
		return crawl.BeginInFlight, nil
	}
	return crawl.BeginRetrying, nil
}

// Complete transitions processing -> completed.
func (s *Store) Complete(ctx context.Context, ref string, resultCount int) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := bson.M{
		"$set":   bson.M{"status": crawl.StatusCompleted, "completed_at": s.clock.Now(), "result_count": resultCount},
		"$unset": bson.M{"failed_at": "", "error": ""},
	}
	res, err := s.ledger.UpdateOne(opCtx, bson.M{"_id": ref, "status": crawl.StatusProcessing}, update)
	if err != nil {
		return crawl.E(crawl.KindStore, "ledger.complete", err)
	}
	if res.ModifiedCount == 0 {
		return crawl.E(crawl.KindStore, "ledger.complete", fmt.Errorf("unit %s not in processing", ref))
	}
	return nil
}

// Fail transitions processing -> failed, recording the cause for the report
// view. Failed units stay retry-eligible across runs.
func (s *Store) Fail(ctx context.Context, ref string, cause string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"status": crawl.StatusFailed, "failed_at": s.clock.Now(), "error": cause},
	}
	res, err := s.ledger.UpdateOne(opCtx, bson.M{"_id": ref, "status": crawl.StatusProcessing}, update)
	if err != nil {
		return crawl.E(crawl.KindStore, "ledger.fail", err)
	}
	if res.ModifiedCount == 0 {
		return crawl.E(crawl.KindStore, "ledger.fail", fmt.Errorf("unit %s not in processing", ref))
	}
	return nil
}

// Get returns the ledger record for ref.
func (s *Store) Get(ctx context.Context, ref string) (crawl.UnitRecord, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rec crawl.UnitRecord
	err := s.ledger.FindOne(opCtx, bson.M{"_id": ref}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return crawl.UnitRecord{}, false, nil
	}
	if err != nil {
		return crawl.UnitRecord{}, false, crawl.E(crawl.KindStore, "ledger.get", err)
	}
	return rec, true, nil
}

// CountByStatus reports how many units hold the given status.
func (s *Store) CountByStatus(ctx context.Context, status crawl.UnitStatus) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.ledger.CountDocuments(opCtx, bson.M{"status": status})
	if err != nil {
		return 0, crawl.E(crawl.KindStore, "ledger.count", err)
	}
	return n, nil
}
