// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal            *prometheus.CounterVec
	unitsTotal            *prometheus.CounterVec
	checkpointWritesTotal *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	fetchRetriesTotal     prometheus.Counter
	rateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times;
// the Observe helpers are no-ops until it runs.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscan_pages_total",
				Help: "Total listing pages walked, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscan_units_total",
				Help: "Total units processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		checkpointWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regscan_checkpoint_writes_total",
				Help: "Checkpoint cursor commits, labeled by result.",
			},
			[]string{"result"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regscan_fetch_duration_seconds",
				Help:    "Histogram of content fetch latencies, labeled by kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "regscan_fetch_retries_total",
				Help: "Total transient fetch retries.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regscan_rate_limit_delay_seconds",
				Help:    "Histogram of politeness delays per host.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for the given outcome.
func ObservePage(outcome string) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveUnit increments the unit counter for the given outcome.
func ObserveUnit(outcome string) {
	if unitsTotal == nil {
		return
	}
	unitsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCheckpoint increments the checkpoint write counter.
func ObserveCheckpoint(result string) {
	if checkpointWritesTotal == nil {
		return
	}
	checkpointWritesTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records a content or page fetch duration.
func ObserveFetch(kind string, duration time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveFetchRetry increments the transient retry counter.
func ObserveFetchRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}
