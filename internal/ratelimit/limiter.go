// Package ratelimit provides a per-host politeness limiter for outbound
// requests.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/regscan/crawler/internal/metrics"
)

// Limiter throttles requests per host.
type Limiter struct {
	qps      float64
	burst    int
	limiters sync.Map
}

// New builds a Limiter. qps <= 0 disables throttling.
func New(qps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{qps: qps, burst: burst}
}

// Wait blocks until the host's budget allows another request.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.qps <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)

	val, _ := l.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(l.qps), l.burst))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	metrics.ObserveRateLimitDelay(host, time.Since(start))
	return nil
}
