package persistence

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flowgraph/flowgraph/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) *RedisHistoryStore {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := DefaultStoreConfig()
	cfg.Type = StoreTypeRedis
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port

	store, err := NewRedisHistoryStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// withStores runs the same suite against every backend.
func withStores(t *testing.T, fn func(t *testing.T, store HistoryStore)) {
	t.Run("memory", func(t *testing.T) {
		store := NewMemoryHistoryStore()
		t.Cleanup(func() { _ = store.Close() })
		fn(t, store)
	})
	t.Run("redis", func(t *testing.T) {
		fn(t, newRedisTestStore(t))
	})
}

func fixtureHistory(executionID, workflowID string, status workflow.ExecutionStatus, start time.Time) *workflow.ExecutionHistory {
	h := workflow.NewExecutionHistory(executionID, workflowID)
	h.StartTime = start
	h.Status = status
	return h
}

func TestHistoryStore_SaveAndGet(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		ctx := context.Background()
		require.NoError(t, store.Ping(ctx))

		h := workflow.NewExecutionHistory("exec-1", "wf-1")
		rec := h.RecordNodeStart("n1", "fetch")
		h.RecordNodeEnd(rec, nil)
		h.Complete(nil)

		require.NoError(t, store.SaveHistory(ctx, h))

		got, err := store.GetHistory(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, workflow.ExecutionStatusCompleted, got.Status)
		require.Len(t, got.Nodes, 1)
		assert.Equal(t, "fetch", got.Nodes[0].NodeName)
	})
}

func TestHistoryStore_InvalidInput(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		ctx := context.Background()
		assert.ErrorIs(t, store.SaveHistory(ctx, nil), ErrInvalidInput)
		assert.ErrorIs(t, store.SaveHistory(ctx, &workflow.ExecutionHistory{}), ErrInvalidInput)
	})
}

func TestHistoryStore_GetMissing(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		_, err := store.GetHistory(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestHistoryStore_SaveOverwritesAndReindexes(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		ctx := context.Background()
		start := time.Now().Add(-time.Minute)

		h := fixtureHistory("exec-1", "wf-1", workflow.ExecutionStatusRunning, start)
		require.NoError(t, store.SaveHistory(ctx, h))

		h.Complete(errors.New("boom"))
		require.NoError(t, store.SaveHistory(ctx, h))

		got, err := store.GetHistory(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, workflow.ExecutionStatusFailed, got.Status)

		// The old status index entry must be gone.
		running, err := store.ListHistories(ctx, HistoryFilter{
			Status: []workflow.ExecutionStatus{workflow.ExecutionStatusRunning},
		})
		require.NoError(t, err)
		assert.Empty(t, running)
	})
}

func TestHistoryStore_ListFilters(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)

		fixtures := []*workflow.ExecutionHistory{
			fixtureHistory("e1", "wf-a", workflow.ExecutionStatusCompleted, base),
			fixtureHistory("e2", "wf-a", workflow.ExecutionStatusFailed, base.Add(10*time.Minute)),
			fixtureHistory("e3", "wf-b", workflow.ExecutionStatusCompleted, base.Add(20*time.Minute)),
			fixtureHistory("e4", "wf-b", workflow.ExecutionStatusRunning, base.Add(30*time.Minute)),
		}
		for _, h := range fixtures {
			require.NoError(t, store.SaveHistory(ctx, h))
		}

		all, err := store.ListHistories(ctx, HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		// Default ordering is oldest first.
		assert.Equal(t, "e1", all[0].ExecutionID)
		assert.Equal(t, "e4", all[3].ExecutionID)

		byWorkflow, err := store.ListHistories(ctx, HistoryFilter{WorkflowID: "wf-a"})
		require.NoError(t, err)
		assert.Len(t, byWorkflow, 2)

		byStatus, err := store.ListHistories(ctx, HistoryFilter{
			Status: []workflow.ExecutionStatus{workflow.ExecutionStatusCompleted},
		})
		require.NoError(t, err)
		assert.Len(t, byStatus, 2)

		after := base.Add(15 * time.Minute)
		recent, err := store.ListHistories(ctx, HistoryFilter{StartedAfter: &after})
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		paged, err := store.ListHistories(ctx, HistoryFilter{OrderDesc: true, Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 2)
		assert.Equal(t, "e3", paged[0].ExecutionID)
		assert.Equal(t, "e2", paged[1].ExecutionID)
	})
}

func TestHistoryStore_Delete(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		ctx := context.Background()
		h := fixtureHistory("exec-1", "wf-1", workflow.ExecutionStatusCompleted, time.Now())
		require.NoError(t, store.SaveHistory(ctx, h))

		require.NoError(t, store.DeleteHistory(ctx, "exec-1"))
		_, err := store.GetHistory(ctx, "exec-1")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, store.DeleteHistory(ctx, "exec-1"), ErrNotFound)

		all, err := store.ListHistories(ctx, HistoryFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestHistoryStore_Cleanup(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		ctx := context.Background()

		old := fixtureHistory("old", "wf", workflow.ExecutionStatusCompleted, time.Now().Add(-48*time.Hour))
		fresh := fixtureHistory("fresh", "wf", workflow.ExecutionStatusCompleted, time.Now())
		running := fixtureHistory("running", "wf", workflow.ExecutionStatusRunning, time.Now().Add(-48*time.Hour))
		for _, h := range []*workflow.ExecutionHistory{old, fresh, running} {
			require.NoError(t, store.SaveHistory(ctx, h))
		}

		removed, err := store.Cleanup(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = store.GetHistory(ctx, "old")
		assert.ErrorIs(t, err, ErrNotFound)

		// Fresh and unfinished histories survive.
		_, err = store.GetHistory(ctx, "fresh")
		assert.NoError(t, err)
		_, err = store.GetHistory(ctx, "running")
		assert.NoError(t, err)
	})
}

func TestHistoryStore_Stats(t *testing.T) {
	withStores(t, func(t *testing.T, store HistoryStore) {
		ctx := context.Background()
		base := time.Now()

		require.NoError(t, store.SaveHistory(ctx, fixtureHistory("e1", "wf-a", workflow.ExecutionStatusCompleted, base)))
		require.NoError(t, store.SaveHistory(ctx, fixtureHistory("e2", "wf-a", workflow.ExecutionStatusFailed, base)))
		require.NoError(t, store.SaveHistory(ctx, fixtureHistory("e3", "wf-b", workflow.ExecutionStatusCompleted, base)))

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalHistories)
		assert.Equal(t, int64(2), stats.StatusCounts[workflow.ExecutionStatusCompleted])
		assert.Equal(t, int64(1), stats.StatusCounts[workflow.ExecutionStatusFailed])
		assert.Equal(t, int64(2), stats.WorkflowCounts["wf-a"])
		assert.Equal(t, int64(1), stats.WorkflowCounts["wf-b"])
	})
}

func TestMemoryHistoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHistoryStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
	assert.ErrorIs(t, store.SaveHistory(ctx, workflow.NewExecutionHistory("e", "w")), ErrStoreClosed)
	_, err := store.GetHistory(ctx, "e")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestNewHistoryStore_Factory(t *testing.T) {
	store, err := NewHistoryStore(StoreConfig{Type: StoreTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryHistoryStore{}, store)

	// Empty type defaults to memory.
	store, err = NewHistoryStore(StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryHistoryStore{}, store)

	_, err = NewHistoryStore(StoreConfig{Type: "etcd"})
	assert.Error(t, err)
}
