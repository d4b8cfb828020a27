package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/lifecycle"
	"github.com/BaSui01/queryflow/types"
)

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQL(SQLConfig{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(queryID string, ts int64, vector []float64) checkpoint.Record {
	return checkpoint.Record{
		Key:       checkpoint.Key(queryID, ts),
		QueryID:   queryID,
		Timestamp: ts,
		Phase:     lifecycle.PhasePaused,
		Vector:    vector,
		Data:      []byte(`{"query_id":"` + queryID + `"}`),
	}
}

// =============================================================================
// 🧪 SQLStore 测试
// =============================================================================

func TestOpenSQL_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQL(SQLConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestSQLStore_UpsertAndFetch(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	rec := sampleRecord("q1", 100, []float64{1, 0, 0})
	require.NoError(t, store.Upsert(ctx, rec))

	got, err := store.FetchByKey(ctx, rec.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	// 覆盖写入
	rec.Data = []byte(`{"query_id":"q1","v":2}`)
	require.NoError(t, store.Upsert(ctx, rec))
	got, err = store.FetchByKey(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, rec.Data, got.Data)
}

func TestSQLStore_FetchMissing(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	got, err := store.FetchByKey(ctx, "none:1")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.FetchLatestByQuery(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLStore_LatestAndList(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	for _, ts := range []int64{300, 100, 200} {
		require.NoError(t, store.Upsert(ctx, sampleRecord("q1", ts, []float64{1, 0})))
	}
	require.NoError(t, store.Upsert(ctx, sampleRecord("q2", 999, []float64{0, 1})))

	latest, err := store.FetchLatestByQuery(ctx, "q1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(300), latest.Timestamp)

	stamps, err := store.ListTimestamps(ctx, "q1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 200, 300}, stamps)
}

func TestSQLStore_Delete(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	rec := sampleRecord("q1", 1, []float64{1})
	require.NoError(t, store.Upsert(ctx, rec))

	existed, err := store.Delete(ctx, rec.Key)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, rec.Key)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSQLStore_Search(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleRecord("q1", 1, []float64{1, 0})))
	require.NoError(t, store.Upsert(ctx, sampleRecord("q1", 2, []float64{0.8, 0.6})))
	require.NoError(t, store.Upsert(ctx, sampleRecord("q2", 3, []float64{1, 0})))

	matches, err := store.Search(ctx, "q1", []float64{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, checkpoint.Key("q1", 1), matches[0].Key)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)

	all, err := store.Search(ctx, "", []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// 同分时新的在前
	assert.Equal(t, int64(3), all[0].Timestamp)

	none, err := store.Search(ctx, "q1", []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStore_RecreateCollection(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleRecord("q1", 1, []float64{1})))
	require.NoError(t, store.RecreateCollection(ctx))

	stamps, err := store.ListTimestamps(ctx, "q1")
	require.NoError(t, err)
	assert.Empty(t, stamps)
	assert.NoError(t, store.Health(ctx))
}

// 检查点经由 SQL 持久层写入后，新的存储实例可以从持久层恢复
func TestSQLStore_BacksCheckpointStore(t *testing.T) {
	durable := setupSQLStore(t)
	ctx := context.Background()

	writer := checkpoint.NewStore(checkpoint.WithDurable(durable), checkpoint.WithLogger(zap.NewNop()))
	cp, err := writer.Create(ctx, checkpoint.CreateRequest{
		QueryID: "q-sql",
		Execution: types.ExecutionContext{
			Variables: types.Map{"step": types.Int(3)},
		},
		Reason: "user",
	})
	require.NoError(t, err)
	require.NoError(t, writer.Close(ctx))

	reader := checkpoint.NewStore(checkpoint.WithDurable(durable), checkpoint.WithLogger(zap.NewNop()))
	defer reader.Close(ctx)

	got, err := reader.Latest(ctx, "q-sql")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp.Timestamp, got.Timestamp)
	assert.True(t, cp.Execution.Equal(got.Execution))

	matches := reader.FindSimilar(ctx, "q-sql", cp.Embedding, 3)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}
