package resume

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/internal/ctxkeys"
	"github.com/BaSui01/queryflow/lifecycle"
)

// DefaultRecordTTL 注册表查询记录的默认过期时间
const DefaultRecordTTL = 7 * 24 * time.Hour

// defaultPauseReason 未指定暂停原因时写入检查点的原因
const defaultPauseReason = "manual"

// =============================================================================
// ⚙️ 选项
// =============================================================================

// Option 管理器选项
type Option func(*Manager)

// WithRegistry 设置外部注册表，默认使用进程内注册表
func WithRegistry(r Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithSink 设置训练信号接收方
func WithSink(s TrainingSink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecordTTL 设置注册表记录的过期时间
func WithRecordTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.recordTTL = ttl
		}
	}
}

// WithClock 设置时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMachineOptions 追加到每个被跟踪状态机的选项（额外的 Guard、Effect 等）
func WithMachineOptions(opts ...lifecycle.Option) Option {
	return func(m *Manager) {
		m.machineOpts = append(m.machineOpts, opts...)
	}
}

// =============================================================================
// 🎛️ 查询管理器
// =============================================================================

// Manager 跟踪查询的状态机，并提供暂停/恢复等面向调用方的操作
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*lifecycle.Machine

	store     Checkpointer
	registry  Registry
	sink      TrainingSink
	recorder  Recorder
	logger    *zap.Logger
	recordTTL time.Duration
	now       func() time.Time

	// machineLogger 未附加组件字段的日志，交给状态机
	machineLogger *zap.Logger
	machineOpts   []lifecycle.Option

	coordinator *Coordinator
}

// NewManager 创建查询管理器
func NewManager(store Checkpointer, opts ...Option) *Manager {
	m := &Manager{
		machines:  make(map[string]*lifecycle.Machine),
		store:     store,
		registry:  NewMemoryRegistry(),
		sink:      NopSink{},
		recorder:  nopRecorder{},
		logger:    zap.NewNop(),
		recordTTL: DefaultRecordTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.machineLogger = m.logger
	m.logger = m.logger.With(zap.String("component", "query_manager"))
	m.coordinator = newCoordinator(m)
	return m
}

// Coordinator 返回恢复协调器
func (m *Manager) Coordinator() *Coordinator {
	return m.coordinator
}

// Track 开始跟踪查询并返回其状态机
func (m *Manager) Track(queryID string, initial lifecycle.QueryContext) (*lifecycle.Machine, error) {
	if queryID == "" {
		return nil, checkpoint.ErrInvalidQueryID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.machines[queryID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrQueryExists, queryID)
	}

	opts := []lifecycle.Option{
		lifecycle.WithInitialContext(initial),
		lifecycle.WithLogger(m.machineLogger),
		lifecycle.WithClock(m.now),
		lifecycle.WithEffect(lifecycle.ActionPause, m.capturePause),
		lifecycle.WithObserver(m.observe),
	}
	opts = append(opts, m.machineOpts...)

	machine := lifecycle.New(queryID, opts...)
	m.machines[queryID] = machine

	m.logger.Info("query tracked", zap.String("query_id", queryID))
	return machine, nil
}

// Machine 返回查询的状态机
func (m *Manager) Machine(queryID string) (*lifecycle.Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[queryID]
	return machine, ok
}

// Queries 返回所有被跟踪的查询 ID，按字典序
func (m *Manager) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.machines))
	for id := range m.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget 停止跟踪查询，返回查询此前是否被跟踪
func (m *Manager) Forget(queryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.machines[queryID]; !ok {
		return false
	}
	delete(m.machines, queryID)
	return true
}

// Snapshot 查询状态快照
type Snapshot struct {
	QueryID      string                       `json:"query_id"`
	Phase        lifecycle.Phase              `json:"phase"`
	Context      lifecycle.QueryContext       `json:"context"`
	History      []lifecycle.StateChangeEvent `json:"history"`
	ValidActions []lifecycle.Action           `json:"valid_actions"`
}

// Snapshot 返回查询的只读快照
func (m *Manager) Snapshot(queryID string) (Snapshot, bool) {
	machine, ok := m.Machine(queryID)
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		QueryID:      queryID,
		Phase:        machine.State(),
		Context:      machine.Context(),
		History:      machine.History(),
		ValidActions: machine.ValidActions(),
	}, true
}

// =============================================================================
// 🔄 生命周期操作
// =============================================================================

// Start 启动查询（INIT → RUNNING）
func (m *Manager) Start(ctx context.Context, queryID string) error {
	return m.drive(ctx, queryID, lifecycle.ActionStart)
}

// Complete 完成查询（RUNNING → COMPLETED）
func (m *Manager) Complete(ctx context.Context, queryID string) error {
	return m.drive(ctx, queryID, lifecycle.ActionComplete)
}

// Terminate 终止查询（RUNNING/PAUSED → TERMINATED）
func (m *Manager) Terminate(ctx context.Context, queryID string) error {
	return m.drive(ctx, queryID, lifecycle.ActionTerminate)
}

func (m *Manager) drive(ctx context.Context, queryID string, action lifecycle.Action) error {
	machine, ok := m.Machine(queryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrQueryNotFound, queryID)
	}

	committed, err := machine.Transition(ctx, action)
	if err != nil {
		return err
	}
	if !committed {
		return fmt.Errorf("%w: %s on %s", ErrGuardRejected, action, queryID)
	}

	m.updateRecord(ctx, queryID, func(rec *QueryRecord) {
		rec.Phase = machine.State()
	})
	return nil
}

// pauseCapture 在一次 Pause 调用与其 PAUSE 副作用之间传递检查点
type pauseCapture struct {
	checkpoint *checkpoint.Checkpoint
}

type pauseCaptureKey struct{}

// Pause 暂停查询（RUNNING → PAUSED），PAUSE 副作用恰好捕获一个检查点。
//
// 查询不存在、当前阶段不允许暂停或被 Guard 拒绝时返回 Success=false 的结果；
// 副作用失败时状态机进入 ERROR，结果与错误同时返回。
func (m *Manager) Pause(ctx context.Context, queryID, reason string) (PauseResult, error) {
	start := m.now()
	result := PauseResult{QueryID: queryID}

	finish := func(kind FailureKind, msg string) PauseResult {
		result.Kind = kind
		result.Error = msg
		result.Success = kind == ""
		result.DurationMs = m.now().Sub(start).Milliseconds()
		m.recorder.RecordPause(outcome(kind))
		return result
	}

	machine, ok := m.Machine(queryID)
	if !ok {
		return finish(KindNotFound, notFoundMessage(queryID)), nil
	}

	if reason == "" {
		reason = defaultPauseReason
	}
	capture := &pauseCapture{}
	ctx = ctxkeys.WithPauseReason(ctx, reason)
	ctx = context.WithValue(ctx, pauseCaptureKey{}, capture)

	committed, err := machine.Transition(ctx, lifecycle.ActionPause)
	result.CurrentPhase = machine.State()
	switch {
	case lifecycle.IsInvalidTransition(err):
		return finish(KindInvalidTransition, err.Error()), nil
	case errors.Is(err, lifecycle.ErrTransitionInProgress):
		return finish(KindRejected, err.Error()), nil
	case err != nil:
		m.logger.Error("pause failed", zap.String("query_id", queryID), zap.Error(err))
		return finish(KindEffectFailed, err.Error()), err
	case !committed:
		return finish(KindRejected, ErrGuardRejected.Error()), nil
	}

	if capture.checkpoint != nil {
		result.CheckpointTS = capture.checkpoint.Timestamp
	}

	pausedAt := m.now()
	m.updateRecord(ctx, queryID, func(rec *QueryRecord) {
		rec.Phase = lifecycle.PhasePaused
		rec.PausedAt = &pausedAt
		rec.PauseReason = reason
		rec.CheckpointTS = result.CheckpointTS
	})
	m.sink.Notify(ctx, CategoryCheckpoint, queryID+":"+reason, 1.0)

	m.logger.Info("query paused",
		zap.String("query_id", queryID),
		zap.String("reason", reason),
		zap.Int64("checkpoint_ts", result.CheckpointTS),
	)
	return finish("", ""), nil
}

// Resume 恢复查询。ts 为 nil 时使用最新检查点。
func (m *Manager) Resume(ctx context.Context, queryID string, ts *int64) (ResumeResult, error) {
	return m.coordinator.ResumeQuery(ctx, queryID, ts)
}

// capturePause PAUSE 副作用：以状态机上下文创建检查点
func (m *Manager) capturePause(ctx context.Context, edge lifecycle.Edge, qc lifecycle.QueryContext) error {
	if m.store == nil {
		return errors.New("no checkpoint store configured")
	}

	reason, ok := ctxkeys.PauseReason(ctx)
	if !ok {
		reason = defaultPauseReason
	}
	req := checkpoint.CreateRequest{
		QueryID: qc.QueryID,
		Phase:   edge.To,
		Reason:  reason,
	}
	if actor, ok := ctxkeys.Actor(ctx); ok {
		req.CreatedBy = actor
	}
	if qc.Execution != nil {
		req.Execution = *qc.Execution
	}
	if qc.ModelConfig != nil {
		req.Model = *qc.ModelConfig
	}

	cp, err := m.store.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("capture checkpoint: %w", err)
	}
	if capture, ok := ctx.Value(pauseCaptureKey{}).(*pauseCapture); ok {
		capture.checkpoint = cp
	}
	return nil
}

func (m *Manager) observe(event lifecycle.StateChangeEvent) {
	m.recorder.RecordTransition(string(event.From), string(event.To), string(event.Action))
}

// updateRecord 读取-修改-写回注册表记录。注册表失败只记录日志。
func (m *Manager) updateRecord(ctx context.Context, queryID string, mutate func(rec *QueryRecord)) {
	key := RecordKey(queryID)

	var rec QueryRecord
	found, err := m.registry.Retrieve(ctx, key, &rec)
	if err != nil {
		m.logger.Warn("registry read failed",
			zap.String("query_id", queryID),
			zap.Error(err),
		)
	}
	if !found {
		rec = QueryRecord{QueryID: queryID}
	}

	mutate(&rec)
	rec.UpdatedAt = m.now()

	if err := m.registry.StoreWithTTL(ctx, key, rec, m.recordTTL); err != nil {
		m.logger.Warn("registry write failed",
			zap.String("query_id", queryID),
			zap.Error(err),
		)
	}
}

// Record 读取查询在注册表中的记录
func (m *Manager) Record(ctx context.Context, queryID string) (*QueryRecord, error) {
	var rec QueryRecord
	found, err := m.registry.Retrieve(ctx, RecordKey(queryID), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}
