package crawl_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/regscan/crawler/internal/crawl"
)

func TestKindOf(t *testing.T) {
	tagged := crawl.E(crawl.KindExtraction, "parse pdf", errors.New("bad xref"))
	assert.Equal(t, crawl.KindExtraction, crawl.KindOf(tagged))

	wrapped := fmt.Errorf("process unit: %w", tagged)
	assert.Equal(t, crawl.KindExtraction, crawl.KindOf(wrapped))

	// Untagged errors come from the network boundary, so transient is assumed.
	assert.Equal(t, crawl.KindTransient, crawl.KindOf(errors.New("connection reset")))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind crawl.ErrKind
		want bool
	}{
		{crawl.KindTransient, true},
		{crawl.KindStore, true},
		{crawl.KindExtraction, false},
		{crawl.KindConfig, false},
	}
	for _, tt := range tests {
		err := crawl.E(tt.kind, "op", errors.New("boom"))
		assert.Equal(t, tt.want, crawl.Retryable(err), "kind %s", tt.kind)
	}
	assert.True(t, crawl.Retryable(errors.New("untagged")))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := crawl.E(crawl.KindTransient, "fetch page", cause)

	assert.Equal(t, "fetch page: dial tcp: timeout", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := crawl.E(crawl.KindStore, "save entities", nil)
	assert.Equal(t, "save entities: store error", bare.Error())
}
