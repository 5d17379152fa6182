package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/regscan/crawler/internal/crawl"
)

const opTimeout = 15 * time.Second

// ReadCursor returns the live checkpoint for kind, if one exists.
func (s *Store) ReadCursor(ctx context.Context, kind crawl.CrawlKind) (crawl.Checkpoint, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cp crawl.Checkpoint
	err := s.checkpoints.FindOne(opCtx, bson.M{"kind": kind}).Decode(&cp)
	if err == mongo.ErrNoDocuments {
		return crawl.Checkpoint{}, false, nil
	}
	if err != nil {
		return crawl.Checkpoint{}, false, crawl.E(crawl.KindStore, "checkpoint.read", err)
	}
	return cp, true, nil
}

// WriteCursor upserts the single checkpoint document for cp.Kind. There is
// exactly one live record per kind; a failed write leaves the previous
// document untouched.
func (s *Store) WriteCursor(ctx context.Context, cp crawl.Checkpoint) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.clock.Now()
	}
	update := bson.M{"$set": bson.M{
		"cursor":        cp.Cursor,
		"last_unit_ref": cp.LastUnitRef,
		"run_id":        cp.RunID,
		"updated_at":    cp.UpdatedAt,
	}}
	_, err := s.checkpoints.UpdateOne(opCtx, bson.M{"kind": cp.Kind}, update, options.Update().SetUpsert(true))
	if err != nil {
		return crawl.E(crawl.KindStore, "checkpoint.write", err)
	}
	return nil
}

// ResetCursor rewrites the checkpoint for kind to the given cursor and clears
// the resume hint.
func (s *Store) ResetCursor(ctx context.Context, kind crawl.CrawlKind, to crawl.Cursor) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"cursor":        to,
		"last_unit_ref": "",
		"run_id":        "",
		"updated_at":    s.clock.Now(),
	}}
	_, err := s.checkpoints.UpdateOne(opCtx, bson.M{"kind": kind}, update, options.Update().SetUpsert(true))
	if err != nil {
		return crawl.E(crawl.KindStore, "checkpoint.reset", fmt.Errorf("reset %s to %d: %w", kind, to, err))
	}
	return nil
}
