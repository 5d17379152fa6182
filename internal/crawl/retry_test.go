package crawl_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/regscan/crawler/internal/crawl"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net failure" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return e.timeout }

func TestShouldRetry(t *testing.T) {
	p := crawl.NewExponentialRetryPolicy(3, time.Millisecond, time.Second)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 0, false},
		{"plain transient", errors.New("boom"), 1, true},
		{"attempt budget exhausted", errors.New("boom"), 3, false},
		{"context canceled", context.Canceled, 0, false},
		{"deadline exceeded", context.DeadlineExceeded, 0, false},
		{"extraction never retries", crawl.E(crawl.KindExtraction, "parse", errors.New("bad")), 0, false},
		{"config never retries", crawl.E(crawl.KindConfig, "load", errors.New("bad")), 0, false},
		{"net timeout retries", timeoutErr{timeout: true}, 1, true},
		{"net non-timeout does not", timeoutErr{timeout: false}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestBackoffGrowsAndIsCapped(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second
	p := crawl.NewExponentialRetryPolicy(5, base, max)

	for attempt := 0; attempt < 8; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
	// The jittered delay always keeps at least half the deterministic value.
	assert.GreaterOrEqual(t, p.Backoff(0), base/2)
}

func TestPolicyDefaults(t *testing.T) {
	p := crawl.NewExponentialRetryPolicy(0, 0, 0)

	assert.True(t, p.ShouldRetry(errors.New("boom"), 2))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 3))
	assert.LessOrEqual(t, p.Backoff(10), 5*time.Second)
}
