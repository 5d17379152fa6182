package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBeforeInitIsANoOp(t *testing.T) {
	// Init has not run in this subtest's view unless another test got there
	// first; either way the helpers must never panic.
	assert.NotPanics(t, func() {
		ObservePage("walked")
		ObserveUnit("completed")
		ObserveCheckpoint("committed")
		ObserveFetch("content", 120*time.Millisecond)
		ObserveFetchRetry()
		ObserveRateLimitDelay("regulator.test", 50*time.Millisecond)
	})
}

func TestInitIsIdempotent(t *testing.T) {
	// A second Init must not re-register collectors; promauto panics on
	// duplicate registration, so surviving this is the whole assertion.
	assert.NotPanics(t, func() {
		Init()
		Init()
	})

	ObservePage("walked")
	ObserveUnit("completed")
	ObserveCheckpoint("committed")
	ObserveFetch("content", 120*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "regscan_pages_total")
	assert.Contains(t, body, "regscan_units_total")
	assert.Contains(t, body, "regscan_checkpoint_writes_total")
}
