// Package memory provides an in-memory blob store for tests and for running
// without an archive backend.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore keeps archived documents in a map.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	// FailPuts makes Put fail, for exercising the archive failure path.
	FailPuts error
}

// New creates an empty in-memory blob store.
func New() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Put stores data under path and returns a mem:// URI.
func (s *BlobStore) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts != nil {
		return "", s.FailPuts
	}
	s.blobs[path] = append([]byte(nil), data...)
	return fmt.Sprintf("mem://%s", path), nil
}

// Get returns the stored bytes for path.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[path]
	return data, ok
}

// Len reports how many blobs are stored.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
