// Package memory provides in-memory store implementations for tests and
// for running the crawler without a database.
package memory

import (
	"context"
	"sync"

	"github.com/regscan/crawler/internal/crawl"
)

// CheckpointStore keeps one checkpoint per crawl kind in memory.
type CheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[crawl.CrawlKind]crawl.Checkpoint
	// FailWrites makes WriteCursor fail without touching stored state, for
	// exercising the retain-old-value contract.
	FailWrites error
}

// NewCheckpointStore builds an empty store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[crawl.CrawlKind]crawl.Checkpoint)}
}

// ReadCursor returns the stored checkpoint for kind, if any.
func (s *CheckpointStore) ReadCursor(_ context.Context, kind crawl.CrawlKind) (crawl.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[kind]
	return cp, ok, nil
}

// WriteCursor overwrites the checkpoint for cp.Kind.
func (s *CheckpointStore) WriteCursor(_ context.Context, cp crawl.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.checkpoints[cp.Kind] = cp
	return nil
}

// ResetCursor rewrites the checkpoint to the given cursor.
func (s *CheckpointStore) ResetCursor(_ context.Context, kind crawl.CrawlKind, to crawl.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.checkpoints[kind] = crawl.Checkpoint{Kind: kind, Cursor: to}
	return nil
}
