package crawl

import (
	"context"
	"time"
)

// CheckpointStore is the durable record of crawl progress. There is exactly
// one live checkpoint per crawl kind; WriteCursor is an atomic upsert with
// last-write-wins semantics. A failed write must leave the previous
// checkpoint intact.
type CheckpointStore interface {
	// ReadCursor returns the stored checkpoint for kind, or ok=false when no
	// checkpoint has ever been written.
	ReadCursor(ctx context.Context, kind CrawlKind) (Checkpoint, bool, error)
	// WriteCursor overwrites the live checkpoint for cp.Kind.
	WriteCursor(ctx context.Context, cp Checkpoint) error
	// ResetCursor rewrites the checkpoint to the given cursor with no
	// last-unit ref, for deliberate fresh starts.
	ResetCursor(ctx context.Context, kind CrawlKind, to Cursor) error
}

// UnitLedger is the durable per-unit status table preventing reprocessing.
type UnitLedger interface {
	// Begin idempotently claims a unit for processing. A completed unit
	// returns BeginAlreadyCompleted and must be skipped. A failed unit (or a
	// processing unit whose claim is older than the staleness threshold)
	// returns BeginRetrying and is reset to processing. A fresh processing
	// claim returns BeginInFlight.
	Begin(ctx context.Context, ref string) (BeginOutcome, error)
	// Complete transitions processing -> completed. Calling it on a unit not
	// in processing is a programmer error and fails loudly.
	Complete(ctx context.Context, ref string, resultCount int) error
	// Fail transitions processing -> failed, recording the cause verbatim.
	Fail(ctx context.Context, ref string, cause string) error
	// Get returns the ledger record for a unit, ok=false when never seen.
	Get(ctx context.Context, ref string) (UnitRecord, bool, error)
	// CountByStatus reports how many units hold the given status. Used for
	// reporting, never for control flow.
	CountByStatus(ctx context.Context, status UnitStatus) (int64, error)
}

// EntityStore persists derived records produced by the extraction pipeline.
type EntityStore interface {
	SaveEntities(ctx context.Context, entities []Entity) (int, error)
	Summary(ctx context.Context) (EntitySummary, error)
}

// PageIter yields listing pages one at a time. Next returns ErrEndOfListing
// when the source is exhausted or the configured end bound is reached.
type PageIter interface {
	Next(ctx context.Context) (Page, error)
}

// Walker iterates the remote source from a starting cursor. Page fetch
// failures surface through the iterator rather than being skipped: a silently
// dropped page would let the cursor advance past unseen work.
type Walker interface {
	PagesFrom(from Cursor) PageIter
}

// ContentFetcher retrieves the raw content behind a unit ref. Transient
// failures are retried internally a bounded number of times before the error
// escalates to the caller.
type ContentFetcher interface {
	FetchContent(ctx context.Context, ref string) ([]byte, error)
}

// Extractor is the extraction pipeline: a pure function from unit content to
// derived records. It holds no state the crawler core depends on.
type Extractor interface {
	Extract(ctx context.Context, unit Unit, content []byte) ([]Entity, error)
}

// BlobStore archives raw fetched documents and returns a URI.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes unit-completed events to a message topic.
type Publisher interface {
	Publish(ctx context.Context, event UnitEvent) error
	Close() error
}

// Hasher computes content digests for archive paths and dedupe.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time; injected so tests control timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
