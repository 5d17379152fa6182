package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/regscan/crawler/internal/crawl"
)

// Ledger is an in-memory UnitLedger with the same transition semantics as the
// Mongo implementation.
type Ledger struct {
	mu      sync.Mutex
	records map[string]crawl.UnitRecord
	clock   crawl.Clock
	stale   time.Duration
}

// NewLedger builds a Ledger. staleAfter controls when an abandoned
// processing claim becomes retry-eligible; zero disables stealing.
func NewLedger(clock crawl.Clock, staleAfter time.Duration) *Ledger {
	if clock == nil {
		clock = crawl.SystemClock{}
	}
	return &Ledger{
		records: make(map[string]crawl.UnitRecord),
		clock:   clock,
		stale:   staleAfter,
	}
}

// Begin claims a unit for processing.
func (l *Ledger) Begin(_ context.Context, ref string) (crawl.BeginOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	rec, ok := l.records[ref]
	if !ok {
		l.records[ref] = crawl.UnitRecord{Ref: ref, Status: crawl.StatusProcessing, StartedAt: now}
		return crawl.BeginStarted, nil
	}

	switch rec.Status {
	case crawl.StatusCompleted:
		return crawl.BeginAlreadyCompleted, nil
	case crawl.StatusFailed:
		l.records[ref] = crawl.UnitRecord{Ref: ref, Status: crawl.StatusProcessing, StartedAt: now}
		return crawl.BeginRetrying, nil
	case crawl.StatusProcessing:
		if l.stale > 0 && now.Sub(rec.StartedAt) >= l.stale {
			l.records[ref] = crawl.UnitRecord{Ref: ref, Status: crawl.StatusProcessing, StartedAt: now}
			return crawl.BeginRetrying, nil
		}
		return crawl.BeginInFlight, nil
	default:
		return crawl.BeginInFlight, fmt.Errorf("unit %s: unknown status %q", ref, rec.Status)
	}
}

// Complete transitions processing -> completed.
func (l *Ledger) Complete(_ context.Context, ref string, resultCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[ref]
	if !ok || rec.Status != crawl.StatusProcessing {
		return fmt.Errorf("complete %s: unit not in processing (status %q)", ref, rec.Status)
	}
	now := l.clock.Now()
	rec.Status = crawl.StatusCompleted
	rec.CompletedAt = &now
	rec.ResultCount = &resultCount
	rec.Error = ""
	rec.FailedAt = nil
	l.records[ref] = rec
	return nil
}

// Fail transitions processing -> failed.
func (l *Ledger) Fail(_ context.Context, ref string, cause string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[ref]
	if !ok || rec.Status != crawl.StatusProcessing {
		return fmt.Errorf("fail %s: unit not in processing (status %q)", ref, rec.Status)
	}
	now := l.clock.Now()
	rec.Status = crawl.StatusFailed
	rec.FailedAt = &now
	rec.Error = cause
	l.records[ref] = rec
	return nil
}

// Get returns the ledger record for ref.
func (l *Ledger) Get(_ context.Context, ref string) (crawl.UnitRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[ref]
	return rec, ok, nil
}

// CountByStatus reports how many units hold the given status.
func (l *Ledger) CountByStatus(_ context.Context, status crawl.UnitStatus) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, rec := range l.records {
		if rec.Status == status {
			n++
		}
	}
	return n, nil
}
