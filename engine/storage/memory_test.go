package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaldash/engine/types"
)

func memRun(id, project string, ts time.Time) *types.RunRecord {
	return &types.RunRecord{
		ID:          id,
		ProjectName: project,
		Timestamp:   ts,
		Stats:       types.RunStats{TotalTests: 10, PassedTests: 8},
	}
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	run := memRun("r1", "demo", time.Now())
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestMemoryStoreAssignsID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	run := memRun("", "demo", time.Now())
	require.NoError(t, store.SaveRun(ctx, run))
	assert.NotEmpty(t, run.ID)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.SaveRun(ctx, memRun("old", "demo", base)))
	require.NoError(t, store.SaveRun(ctx, memRun("new", "demo", base.Add(time.Hour))))
	require.NoError(t, store.SaveRun(ctx, memRun("mid", "demo", base.Add(time.Minute))))

	runs, err := store.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
	assert.Equal(t, "old", runs[2].ID)
}

func TestMemoryStoreListByProject(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.SaveRun(ctx, memRun("a1", "alpha", base)))
	require.NoError(t, store.SaveRun(ctx, memRun("b1", "beta", base)))

	runs, err := store.ListRuns(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a1", runs[0].ID)

	runs, err = store.ListRuns(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, memRun("r1", "demo", time.Now())))
	require.NoError(t, store.DeleteRun(ctx, "r1"))

	_, err := store.GetRun(ctx, "r1")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.ErrorIs(t, store.DeleteRun(ctx, "r1"), ErrRunNotFound)
}

func TestMemoryStoreClose(t *testing.T) {
	assert.NoError(t, NewMemoryStore().Close())
}
