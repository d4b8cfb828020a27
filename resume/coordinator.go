package resume

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/lifecycle"
)

// =============================================================================
// ▶️ 恢复协调器
// =============================================================================

// Coordinator 从检查点恢复已暂停的查询
type Coordinator struct {
	manager *Manager
	tracer  trace.Tracer
	logger  *zap.Logger
}

func newCoordinator(m *Manager) *Coordinator {
	return &Coordinator{
		manager: m,
		tracer:  otel.Tracer("queryflow/resume"),
		logger:  m.machineLogger.With(zap.String("component", "resume_coordinator")),
	}
}

// ResumeQuery 恢复查询。
//
// 步骤：定位状态机；要求当前阶段为 PAUSED；读取检查点（ts 为 nil 时取最新）；
// 执行 RESUME 转换，执行现场与模型配置只随转换提交写回状态机上下文；在注册表记录
// resumed_from/resumed_at。查询不存在、阶段不对或没有检查点时以 Success=false
// 的结果返回；RESUME 副作用失败时状态机进入 ERROR，错误被返回。
func (c *Coordinator) ResumeQuery(ctx context.Context, queryID string, ts *int64) (ResumeResult, error) {
	m := c.manager
	start := m.now()

	ctx, span := c.tracer.Start(ctx, "resume.query",
		trace.WithAttributes(attribute.String("query_id", queryID)),
	)
	defer span.End()

	result := ResumeResult{QueryID: queryID}
	finish := func(kind FailureKind, msg string) ResumeResult {
		result.Kind = kind
		result.Error = msg
		result.Success = kind == ""
		result.DurationMs = m.now().Sub(start).Milliseconds()
		m.recorder.RecordResume(outcome(kind), m.now().Sub(start))
		span.SetAttributes(attribute.String("outcome", outcome(kind)))
		return result
	}

	// 1. 定位状态机
	machine, ok := m.Machine(queryID)
	if !ok {
		return finish(KindNotFound, notFoundMessage(queryID)), nil
	}

	// 2. 只允许从 PAUSED 恢复
	phase := machine.State()
	result.CurrentPhase = phase
	if phase != lifecycle.PhasePaused {
		return finish(KindInvalidState, invalidStateMessage(phase)), nil
	}

	// 3. 读取检查点
	cp, err := c.locate(ctx, queryID, ts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return finish(KindNoCheckpoint, err.Error()), err
	}
	if cp == nil {
		return finish(KindNoCheckpoint, noCheckpointMessage(queryID)), nil
	}

	// 4-5. 执行现场与模型配置随 PAUSED → RUNNING 一起提交
	exec := cp.Execution.Clone()
	model := cp.Model.Clone()
	committed, err := machine.TransitionWith(ctx, lifecycle.ActionResume, &lifecycle.ContextPatch{
		Execution:   &exec,
		ModelConfig: &model,
	})
	result.CurrentPhase = machine.State()
	switch {
	case lifecycle.IsInvalidTransition(err):
		// 阶段在检查之后被并发改变
		return finish(KindInvalidState, invalidStateMessage(result.CurrentPhase)), nil
	case errors.Is(err, lifecycle.ErrTransitionInProgress):
		return finish(KindRejected, err.Error()), nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("resume effect failed",
			zap.String("query_id", queryID),
			zap.Int64("checkpoint_ts", cp.Timestamp),
			zap.Error(err),
		)
		return finish(KindEffectFailed, err.Error()), err
	case !committed:
		return finish(KindRejected, ErrGuardRejected.Error()), nil
	}

	result.ResumedFrom = cp.Timestamp
	result.Checkpoint = cp

	// 6. 注册表记录
	resumedAt := m.now()
	m.updateRecord(ctx, queryID, func(rec *QueryRecord) {
		rec.Phase = lifecycle.PhaseRunning
		rec.ResumedFrom = cp.Timestamp
		rec.ResumedAt = &resumedAt
	})
	m.sink.Notify(ctx, CategoryResume, queryID+":"+strconv.FormatInt(cp.Timestamp, 10), 1.0)

	span.SetAttributes(attribute.Int64("resumed_from", cp.Timestamp))
	c.logger.Info("query resumed",
		zap.String("query_id", queryID),
		zap.Int64("resumed_from", cp.Timestamp),
	)
	return finish("", ""), nil
}

func (c *Coordinator) locate(ctx context.Context, queryID string, ts *int64) (*checkpoint.Checkpoint, error) {
	store := c.manager.store
	if store == nil {
		return nil, errors.New("no checkpoint store configured")
	}
	if ts != nil {
		cp, err := store.Retrieve(ctx, queryID, *ts)
		if err != nil {
			return nil, fmt.Errorf("retrieve checkpoint %s: %w", checkpoint.Key(queryID, *ts), err)
		}
		return cp, nil
	}
	cp, err := store.Latest(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("retrieve latest checkpoint for %s: %w", queryID, err)
	}
	return cp, nil
}

// ValidateCheckpoint 检查查询最新检查点的必需字段是否齐全，不执行恢复
func (c *Coordinator) ValidateCheckpoint(ctx context.Context, queryID string) ValidationReport {
	report := ValidationReport{QueryID: queryID}

	cp, err := c.locate(ctx, queryID, nil)
	if err != nil || cp == nil {
		if err != nil {
			c.logger.Warn("checkpoint validation lookup failed",
				zap.String("query_id", queryID),
				zap.Error(err),
			)
		}
		report.Missing = []string{"checkpoint"}
		return report
	}

	report.Timestamp = cp.Timestamp
	report.Missing = missingFields(cp)
	report.Valid = len(report.Missing) == 0
	return report
}

func missingFields(cp *checkpoint.Checkpoint) []string {
	var missing []string
	if cp.QueryID == "" {
		missing = append(missing, "query_id")
	}
	if cp.Timestamp <= 0 {
		missing = append(missing, "timestamp")
	}
	if !cp.Phase.Valid() {
		missing = append(missing, "phase")
	}
	if err := cp.Execution.Validate(); err != nil {
		missing = append(missing, "execution")
	}
	if cp.Model.Model == "" && cp.Model.Provider == "" {
		missing = append(missing, "model_config")
	}
	if len(cp.Embedding) == 0 {
		missing = append(missing, "embedding")
	}
	return missing
}
