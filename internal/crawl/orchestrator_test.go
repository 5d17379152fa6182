package crawl_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/hash/sha256"
	"github.com/regscan/crawler/internal/store/memory"
)

// scriptedWalker serves a fixed set of pages keyed by cursor. Cursors past
// the last scripted page report end of listing; cursors with a scripted
// error fail the way a dead listing endpoint would.
type scriptedWalker struct {
	pages map[crawl.Cursor][]crawl.Unit
	last  crawl.Cursor
	errAt map[crawl.Cursor]error
}

func (w *scriptedWalker) PagesFrom(from crawl.Cursor) crawl.PageIter {
	return &scriptedIter{w: w, next: from}
}

type scriptedIter struct {
	w    *scriptedWalker
	next crawl.Cursor
}

func (it *scriptedIter) Next(_ context.Context) (crawl.Page, error) {
	cur := it.next
	it.next++
	if err, ok := it.w.errAt[cur]; ok {
		return crawl.Page{Cursor: cur}, err
	}
	if cur > it.w.last {
		return crawl.Page{}, crawl.ErrEndOfListing
	}
	return crawl.Page{Cursor: cur, Units: it.w.pages[cur]}, nil
}

// refFetcher succeeds for every ref except the scripted failures.
type refFetcher struct {
	failRefs map[string]error
	calls    []string
}

func (f *refFetcher) FetchContent(_ context.Context, ref string) ([]byte, error) {
	f.calls = append(f.calls, ref)
	if err, ok := f.failRefs[ref]; ok {
		return nil, err
	}
	return []byte("%PDF-1.4 order body"), nil
}

type orchFixture struct {
	checkpoints *memory.CheckpointStore
	proc        *processorFixture
	fetcher     *refFetcher
	walker      *scriptedWalker
}

func newOrchFixture(walker *scriptedWalker) *orchFixture {
	return &orchFixture{
		checkpoints: memory.NewCheckpointStore(),
		proc:        newProcessorFixture(),
		fetcher:     &refFetcher{failRefs: map[string]error{}},
		walker:      walker,
	}
}

func (f *orchFixture) build(cfg crawl.OrchestratorConfig) *crawl.Orchestrator {
	processor := crawl.NewProcessor(
		f.proc.ledger,
		f.fetcher,
		f.proc.extractor,
		f.proc.entities,
		f.proc.archive,
		f.proc.publisher,
		sha256.New(),
		f.proc.clock,
		crawl.ProcessorConfig{ArchivePrefix: "orders"},
		zap.NewNop(),
	)
	return crawl.NewOrchestrator(
		crawl.NewPlanner(f.checkpoints, zap.NewNop()),
		f.walker,
		processor,
		f.checkpoints,
		f.proc.clock,
		cfg,
		zap.NewNop(),
	)
}

func twoPageWalker() *scriptedWalker {
	return &scriptedWalker{
		pages: map[crawl.Cursor][]crawl.Unit{
			1: {{Ref: "u1", PageCursor: 1}, {Ref: "u2", PageCursor: 1}},
			2: {{Ref: "u3", PageCursor: 2}},
		},
		last:  2,
		errAt: map[crawl.Cursor]error{},
	}
}

func TestRunCommitsCursorAfterEachPage(t *testing.T) {
	f := newOrchFixture(twoPageWalker())
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1})

	stats, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PagesWalked)
	assert.Equal(t, 3, stats.UnitsCompleted)

	cp, ok, err := f.checkpoints.ReadCursor(context.Background(), crawl.KindListing)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, crawl.Cursor(2), cp.Cursor)
	assert.Equal(t, "u3", cp.LastUnitRef)
	assert.Equal(t, stats.RunID, cp.RunID)
}

func TestRunUnitFailureNeverHaltsThePage(t *testing.T) {
	f := newOrchFixture(twoPageWalker())
	f.fetcher.failRefs["u1"] = errors.New("503 from upstream")
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1})

	stats, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnitsFailed)
	assert.Equal(t, 2, stats.UnitsCompleted)

	// The failed unit does not block the cursor; the ledger carries the retry.
	cp, ok, _ := f.checkpoints.ReadCursor(context.Background(), crawl.KindListing)
	require.True(t, ok)
	assert.Equal(t, crawl.Cursor(2), cp.Cursor)

	rec, ok, err := f.proc.ledger.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, crawl.StatusFailed, rec.Status)
}

func TestRunPageFetchFailureHaltsWithCheckpointIntact(t *testing.T) {
	w := twoPageWalker()
	w.errAt[2] = crawl.E(crawl.KindTransient, "fetch listing", errors.New("connection refused"))
	f := newOrchFixture(w)
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1})

	stats, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, stats.PagesWalked)

	cp, ok, _ := f.checkpoints.ReadCursor(context.Background(), crawl.KindListing)
	require.True(t, ok)
	assert.Equal(t, crawl.Cursor(1), cp.Cursor)
}

func TestRunResumeHintSkipsAlreadyVisitedUnits(t *testing.T) {
	ctx := context.Background()
	w := &scriptedWalker{
		pages: map[crawl.Cursor][]crawl.Unit{
			1: {{Ref: "u1"}, {Ref: "u2"}, {Ref: "u3"}},
		},
		last:  1,
		errAt: map[crawl.Cursor]error{},
	}
	f := newOrchFixture(w)
	require.NoError(t, f.checkpoints.WriteCursor(ctx, crawl.Checkpoint{
		Kind:        crawl.KindListing,
		Cursor:      1,
		LastUnitRef: "u2",
	}))
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1})

	stats, err := orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnitsCompleted)
	assert.Equal(t, []string{"u3"}, f.fetcher.calls)
}

func TestRunStaleResumeHintProcessesWholePage(t *testing.T) {
	ctx := context.Background()
	w := &scriptedWalker{
		pages: map[crawl.Cursor][]crawl.Unit{
			1: {{Ref: "u1"}, {Ref: "u2"}},
		},
		last:  1,
		errAt: map[crawl.Cursor]error{},
	}
	f := newOrchFixture(w)
	require.NoError(t, f.checkpoints.WriteCursor(ctx, crawl.Checkpoint{
		Kind:        crawl.KindListing,
		Cursor:      1,
		LastUnitRef: "no-longer-listed",
	}))
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1})

	stats, err := orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.UnitsCompleted)
}

func TestRunCancellationLeavesPageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newOrchFixture(twoPageWalker())
	f.proc.extractor.onExtract = cancel
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1})

	stats, err := orch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	// The interrupted page never committed, so it does not count as walked.
	assert.Zero(t, stats.PagesWalked)

	// The first unit reached a terminal state, the page did not commit.
	rec, ok, _ := f.proc.ledger.Get(context.Background(), "u1")
	require.True(t, ok)
	assert.Equal(t, crawl.StatusCompleted, rec.Status)
	_, ok, _ = f.proc.ledger.Get(context.Background(), "u2")
	assert.False(t, ok)

	_, ok, _ = f.checkpoints.ReadCursor(context.Background(), crawl.KindListing)
	assert.False(t, ok)
}

func TestRunStopsAtEndBound(t *testing.T) {
	w := &scriptedWalker{
		pages: map[crawl.Cursor][]crawl.Unit{
			1: {{Ref: "u1"}},
			2: {{Ref: "u2"}},
			3: {{Ref: "u3"}},
		},
		last:  3,
		errAt: map[crawl.Cursor]error{},
	}
	f := newOrchFixture(w)
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1, EndBound: 2})

	stats, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PagesWalked)
	assert.NotContains(t, f.fetcher.calls, "u3")
}

func TestRunResetRetriesFailedUnitsAndSkipsCompleted(t *testing.T) {
	ctx := context.Background()
	w := &scriptedWalker{
		pages: map[crawl.Cursor][]crawl.Unit{
			1: {{Ref: "u1"}, {Ref: "u2"}},
		},
		last:  1,
		errAt: map[crawl.Cursor]error{},
	}
	f := newOrchFixture(w)
	f.fetcher.failRefs["u1"] = errors.New("gateway timeout")

	_, err := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1}).Run(ctx)
	require.NoError(t, err)

	// Second run with a repaired source: reset re-walks the page, the ledger
	// short-circuits u2 and retries only u1.
	delete(f.fetcher.failRefs, "u1")
	f.fetcher.calls = nil
	stats, err := f.build(crawl.OrchestratorConfig{
		Kind:       crawl.KindListing,
		StartBound: 1,
		Reset:      true,
	}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnitsCompleted)
	assert.Equal(t, 1, stats.UnitsSkipped)
	assert.Equal(t, []string{"u1"}, f.fetcher.calls)

	rec, _, err := f.proc.ledger.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, crawl.StatusCompleted, rec.Status)
}

func TestRunCheckpointWriteFailureDoesNotAbortTheRun(t *testing.T) {
	f := newOrchFixture(twoPageWalker())
	f.checkpoints.FailWrites = errors.New("write concern timeout")
	orch := f.build(crawl.OrchestratorConfig{Kind: crawl.KindListing, StartBound: 1})

	stats, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.UnitsCompleted)

	_, ok, _ := f.checkpoints.ReadCursor(context.Background(), crawl.KindListing)
	assert.False(t, ok)
}
