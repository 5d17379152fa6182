// Package memory provides an in-memory publisher for tests and for running
// without a message broker.
package memory

import (
	"context"
	"sync"

	"github.com/regscan/crawler/internal/crawl"
)

// Publisher records published events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []crawl.UnitEvent
	closed bool
}

// New creates an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish appends the event.
func (p *Publisher) Publish(_ context.Context, event crawl.UnitEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Events returns a copy of the published events.
func (p *Publisher) Events() []crawl.UnitEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]crawl.UnitEvent(nil), p.events...)
}

// Closed reports whether Close was called.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
