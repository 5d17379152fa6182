package crawl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/store/memory"
)

func TestPlanNoStoredCheckpoint(t *testing.T) {
	planner := crawl.NewPlanner(memory.NewCheckpointStore(), zap.NewNop())

	plan, err := planner.Plan(context.Background(), crawl.PlanRequest{
		Kind:       crawl.KindListing,
		StartBound: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, crawl.Cursor(5), plan.StartCursor)
	assert.Empty(t, plan.ResumeUnitRef)
}

func TestPlanStoredCursorWinsOverNarrowerBound(t *testing.T) {
	checkpoints := memory.NewCheckpointStore()
	require.NoError(t, checkpoints.WriteCursor(context.Background(), crawl.Checkpoint{
		Kind:        crawl.KindListing,
		Cursor:      10,
		LastUnitRef: "https://regulator.test/orders/last.pdf",
		UpdatedAt:   time.Now(),
	}))
	planner := crawl.NewPlanner(checkpoints, zap.NewNop())

	plan, err := planner.Plan(context.Background(), crawl.PlanRequest{
		Kind:       crawl.KindListing,
		StartBound: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, crawl.Cursor(10), plan.StartCursor)
	// Resuming at the stored cursor carries the same-page hint.
	assert.Equal(t, "https://regulator.test/orders/last.pdf", plan.ResumeUnitRef)
}

func TestPlanConfigBoundExtendsForward(t *testing.T) {
	checkpoints := memory.NewCheckpointStore()
	require.NoError(t, checkpoints.WriteCursor(context.Background(), crawl.Checkpoint{
		Kind:        crawl.KindListing,
		Cursor:      10,
		LastUnitRef: "https://regulator.test/orders/last.pdf",
	}))
	planner := crawl.NewPlanner(checkpoints, zap.NewNop())

	plan, err := planner.Plan(context.Background(), crawl.PlanRequest{
		Kind:       crawl.KindListing,
		StartBound: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, crawl.Cursor(20), plan.StartCursor)
	// The hint belongs to page 10; starting elsewhere it would skip real work.
	assert.Empty(t, plan.ResumeUnitRef)
}

func TestPlanExplicitResumeRefOverridesStoredHint(t *testing.T) {
	checkpoints := memory.NewCheckpointStore()
	require.NoError(t, checkpoints.WriteCursor(context.Background(), crawl.Checkpoint{
		Kind:        crawl.KindListing,
		Cursor:      7,
		LastUnitRef: "stored-ref",
	}))
	planner := crawl.NewPlanner(checkpoints, zap.NewNop())

	plan, err := planner.Plan(context.Background(), crawl.PlanRequest{
		Kind:          crawl.KindListing,
		StartBound:    1,
		ResumeUnitRef: "explicit-ref",
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit-ref", plan.ResumeUnitRef)
}

func TestPlanResetRewritesCheckpoint(t *testing.T) {
	ctx := context.Background()
	checkpoints := memory.NewCheckpointStore()
	require.NoError(t, checkpoints.WriteCursor(ctx, crawl.Checkpoint{
		Kind:        crawl.KindListing,
		Cursor:      42,
		LastUnitRef: "stale-ref",
	}))
	planner := crawl.NewPlanner(checkpoints, zap.NewNop())

	plan, err := planner.Plan(ctx, crawl.PlanRequest{
		Kind:       crawl.KindListing,
		Reset:      true,
		StartBound: 1,
	})
	require.NoError(t, err)
	assert.True(t, plan.Reset)
	assert.Equal(t, crawl.Cursor(1), plan.StartCursor)
	assert.Empty(t, plan.ResumeUnitRef)

	cp, ok, err := checkpoints.ReadCursor(ctx, crawl.KindListing)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, crawl.Cursor(1), cp.Cursor)
	assert.Empty(t, cp.LastUnitRef)
}
