package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regscan/crawler/internal/crawl"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	p := New()
	require.NoError(t, p.Publish(context.Background(), crawl.UnitEvent{UnitRef: "a", Status: "completed"}))
	require.NoError(t, p.Publish(context.Background(), crawl.UnitEvent{UnitRef: "b", Status: "failed"}))

	events := p.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].UnitRef)
	assert.Equal(t, "failed", events[1].Status)

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
}
