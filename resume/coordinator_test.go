package resume

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/lifecycle"
	"github.com/BaSui01/queryflow/types"
)

// =============================================================================
// 🧪 Coordinator 测试
// =============================================================================

// 创建 q1，START、PAUSE，再写入 variables.v=1 的检查点，恢复后回到 RUNNING
func TestCoordinator_ResumeFromLatestCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	machine := runningQuery(t, env, "q1", lifecycle.QueryContext{})
	_, err := env.manager.Pause(ctx, "q1", "")
	require.NoError(t, err)

	cp, err := env.store.Create(ctx, checkpoint.CreateRequest{
		QueryID: "q1",
		Execution: types.ExecutionContext{
			Variables: types.Map{"v": types.Int(1)},
		},
		Model: types.ModelConfig{Model: "claude", MaxTokens: 4096},
	})
	require.NoError(t, err)

	result, err := env.manager.Resume(ctx, "q1", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, lifecycle.PhaseRunning, result.CurrentPhase)
	assert.Equal(t, lifecycle.PhaseRunning, machine.State())
	assert.Equal(t, cp.Timestamp, result.ResumedFrom)
	require.NotNil(t, result.Checkpoint)
	assert.True(t, types.Int(1).Equal(result.Checkpoint.Execution.Variables["v"]))

	// 执行现场与模型配置写回了状态机上下文
	qc := machine.Context()
	require.NotNil(t, qc.Execution)
	require.NotNil(t, qc.ModelConfig)
	assert.True(t, cp.Execution.Equal(*qc.Execution))
	assert.Equal(t, "claude", qc.ModelConfig.Model)

	rec, err := env.manager.Record(ctx, "q1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, lifecycle.PhaseRunning, rec.Phase)
	assert.Equal(t, cp.Timestamp, rec.ResumedFrom)
	assert.NotNil(t, rec.ResumedAt)

	assert.Equal(t, []string{"success"}, env.recorder.resumes)
	assert.Contains(t, env.sink.signals, "resume|q1:"+strconv.FormatInt(cp.Timestamp, 10))
}

func TestCoordinator_ResumeFromExplicitTimestamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	runningQuery(t, env, "q1", lifecycle.QueryContext{})
	paused, err := env.manager.Pause(ctx, "q1", "")
	require.NoError(t, err)

	_, err = env.store.Create(ctx, checkpoint.CreateRequest{QueryID: "q1"})
	require.NoError(t, err)

	ts := paused.CheckpointTS
	result, err := env.manager.Resume(ctx, "q1", &ts)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, ts, result.ResumedFrom)
}

func TestCoordinator_UnknownQuery(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.manager.Resume(context.Background(), "nonexistent-query", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, KindNotFound, result.Kind)
	assert.Contains(t, result.Error, "not found")
	assert.Equal(t, []string{"not_found"}, env.recorder.resumes)
}

func TestCoordinator_RequiresPaused(t *testing.T) {
	env := newTestEnv(t)
	machine := runningQuery(t, env, "q1", lifecycle.QueryContext{})
	history := machine.History()

	result, err := env.manager.Resume(context.Background(), "q1", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, KindInvalidState, result.Kind)
	assert.Equal(t, "Cannot resume from phase RUNNING; must be PAUSED", result.Error)
	assert.Contains(t, result.Error, "PAUSED")
	assert.Equal(t, lifecycle.PhaseRunning, result.CurrentPhase)

	// 无任何修改
	assert.Equal(t, lifecycle.PhaseRunning, machine.State())
	assert.Equal(t, history, machine.History())
}

func TestCoordinator_NoCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	machine := runningQuery(t, env, "q1", lifecycle.QueryContext{})
	_, err := env.manager.Pause(ctx, "q1", "")
	require.NoError(t, err)

	// 移除暂停时捕获的检查点
	latest, err := env.store.Latest(ctx, "q1")
	require.NoError(t, err)
	_, err = env.store.Delete(ctx, "q1", latest.Timestamp)
	require.NoError(t, err)

	result, err := env.manager.Resume(ctx, "q1", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, KindNoCheckpoint, result.Kind)
	assert.Equal(t, "no checkpoint found for query q1", result.Error)
	assert.Equal(t, lifecycle.PhasePaused, machine.State())

	missing := int64(42)
	result, err = env.manager.Resume(ctx, "q1", &missing)
	require.NoError(t, err)
	assert.Equal(t, KindNoCheckpoint, result.Kind)
}

func TestCoordinator_EffectFailureIsFatal(t *testing.T) {
	boom := errors.New("resume hook exploded")
	env := newTestEnv(t, WithMachineOptions(
		lifecycle.WithEffect(lifecycle.ActionResume, func(context.Context, lifecycle.Edge, lifecycle.QueryContext) error {
			return boom
		}),
	))
	ctx := context.Background()

	machine := runningQuery(t, env, "q1", lifecycle.QueryContext{})
	_, err := env.manager.Pause(ctx, "q1", "")
	require.NoError(t, err)

	result, err := env.manager.Resume(ctx, "q1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, lifecycle.IsEffectFailure(err))
	assert.False(t, result.Success)
	assert.Equal(t, KindEffectFailed, result.Kind)
	assert.Equal(t, lifecycle.PhaseError, machine.State())
	assert.Equal(t, lifecycle.PhaseError, result.CurrentPhase)

	rec, err := env.manager.Record(ctx, "q1")
	require.NoError(t, err)
	assert.Zero(t, rec.ResumedFrom)
}

func TestCoordinator_GuardRejected(t *testing.T) {
	env := newTestEnv(t, WithMachineOptions(
		lifecycle.WithGuard(lifecycle.ActionResume, func(lifecycle.QueryContext) bool { return false }),
	))
	ctx := context.Background()

	machine := runningQuery(t, env, "q1", lifecycle.QueryContext{})
	_, err := env.manager.Pause(ctx, "q1", "")
	require.NoError(t, err)

	original := machine.Context()
	_, err = env.store.Create(ctx, checkpoint.CreateRequest{
		QueryID:   "q1",
		Execution: types.ExecutionContext{Variables: types.Map{"v": types.Int(7)}},
		Model:     types.ModelConfig{Model: "claude"},
	})
	require.NoError(t, err)

	result, err := env.manager.Resume(ctx, "q1", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, KindRejected, result.Kind)
	assert.Equal(t, lifecycle.PhasePaused, machine.State())

	// 被拒绝的恢复不改写上下文
	after := machine.Context()
	assert.Equal(t, original.Execution, after.Execution)
	assert.Equal(t, original.ModelConfig, after.ModelConfig)
}

func TestCoordinator_ValidateCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	coordinator := env.manager.Coordinator()

	t.Run("missing checkpoint", func(t *testing.T) {
		report := coordinator.ValidateCheckpoint(ctx, "none")
		assert.False(t, report.Valid)
		assert.Equal(t, []string{"checkpoint"}, report.Missing)
	})

	t.Run("complete checkpoint", func(t *testing.T) {
		model := types.ModelConfig{Model: "gpt-4o", Provider: "openai"}
		runningQuery(t, env, "q1", lifecycle.QueryContext{ModelConfig: &model})
		paused, err := env.manager.Pause(ctx, "q1", "")
		require.NoError(t, err)

		report := coordinator.ValidateCheckpoint(ctx, "q1")
		assert.True(t, report.Valid)
		assert.Empty(t, report.Missing)
		assert.Equal(t, paused.CheckpointTS, report.Timestamp)
	})

	t.Run("missing model config", func(t *testing.T) {
		_, err := env.store.Create(ctx, checkpoint.CreateRequest{QueryID: "q2"})
		require.NoError(t, err)

		report := coordinator.ValidateCheckpoint(ctx, "q2")
		assert.False(t, report.Valid)
		assert.Equal(t, []string{"model_config"}, report.Missing)
	})
}

func TestCoordinator_WithRedisRegistry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	registry, err := cache.NewManager(cache.Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)
	defer registry.Close()

	env := newTestEnv(t, WithRegistry(registry), WithRecordTTL(10*time.Minute))
	ctx := context.Background()

	runningQuery(t, env, "q1", lifecycle.QueryContext{})
	paused, err := env.manager.Pause(ctx, "q1", "maintenance")
	require.NoError(t, err)
	require.True(t, paused.Success)

	assert.True(t, mr.Exists("test:query:q1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("test:query:q1"))

	result, err := env.manager.Resume(ctx, "q1", nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	rec, err := env.manager.Record(ctx, "q1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, lifecycle.PhaseRunning, rec.Phase)
	assert.Equal(t, "maintenance", rec.PauseReason)
	assert.Equal(t, paused.CheckpointTS, rec.ResumedFrom)

	// Redis 故障不影响恢复结果
	runningQueryPaused := func(id string) {
		runningQuery(t, env, id, lifecycle.QueryContext{})
		_, err := env.manager.Pause(ctx, id, "")
		require.NoError(t, err)
	}
	runningQueryPaused("q2")
	mr.SetError("ERR injected failure")
	result, err = env.manager.Resume(ctx, "q2", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	mr.SetError("")
}

func TestFailureKind_Code(t *testing.T) {
	assert.Equal(t, types.ErrQueryNotFound, KindNotFound.Code())
	assert.Equal(t, types.ErrInvalidState, KindInvalidState.Code())
	assert.Equal(t, types.ErrNoCheckpoint, KindNoCheckpoint.Code())
	assert.Equal(t, types.ErrEffectFailed, KindEffectFailed.Code())
	assert.Equal(t, types.ErrorCode(""), FailureKind("other").Code())
}
