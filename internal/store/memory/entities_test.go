package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regscan/crawler/internal/crawl"
)

func TestEntityStoreSummary(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore()

	n, err := store.SaveEntities(ctx, []crawl.Entity{
		{Name: "Acme Ltd", Type: "Company", PAN: "ABCDE1234F", CIN: "U65990MH2010PLC123456", Sentiment: "Negative"},
		{Name: "Rakesh Kumar", Type: "Person", PAN: "AFZPK7190K", Address: "12 Marine Drive", Sentiment: "Negative"},
		{Name: "Beta Ltd", Type: "Company", Sentiment: "Neutral"},
		{Name: "Gamma LLP", Type: "Company", Sentiment: "Positive"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	sum, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.Total)
	assert.Equal(t, int64(2), sum.WithPAN)
	assert.Equal(t, int64(1), sum.WithCIN)
	assert.Equal(t, int64(1), sum.WithAddress)
	assert.Equal(t, int64(2), sum.NegativeSentiment)
	assert.InDelta(t, 50.0, sum.PANCoverage, 0.001)
}

func TestEntityStoreEmptySummary(t *testing.T) {
	sum, err := NewEntityStore().Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
	assert.Zero(t, sum.PANCoverage)
}
