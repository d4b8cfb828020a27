package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StateChangeEvent 一次已提交的状态转换。只追加，不修改。
type StateChangeEvent struct {
	QueryID   string    `json:"query_id"`
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Guard 转换前置条件，返回 false 时转换不发生
type Guard func(qc QueryContext) bool

// Effect 转换副作用，每次提交恰好执行一次。返回错误时状态机进入 ERROR。
type Effect func(ctx context.Context, edge Edge, qc QueryContext) error

// Observer 在每次提交后被调用（包括强制进入 ERROR）
type Observer func(event StateChangeEvent)

// Option 状态机选项
type Option func(*Machine)

// WithInitialContext 设置初始上下文。QueryID 始终以构造参数为准。
func WithInitialContext(qc QueryContext) Option {
	return func(m *Machine) {
		m.qctx = qc.Clone()
	}
}

// WithGuard 为动作添加前置条件，多个 Guard 需全部通过
func WithGuard(action Action, guard Guard) Option {
	return func(m *Machine) {
		m.guards[action] = append(m.guards[action], guard)
	}
}

// WithEffect 为动作添加副作用，多个 Effect 按注册顺序执行
func WithEffect(action Action, effect Effect) Option {
	return func(m *Machine) {
		m.effects[action] = append(m.effects[action], effect)
	}
}

// WithObserver 添加提交观察者
func WithObserver(observer Observer) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, observer)
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock 设置时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// Machine 单个查询的生命周期状态机。初始阶段总是 INIT。
type Machine struct {
	mu        sync.Mutex
	queryID   string
	phase     Phase
	qctx      QueryContext
	history   []StateChangeEvent
	inFlight  bool
	guards    map[Action][]Guard
	effects   map[Action][]Effect
	observers []Observer
	logger    *zap.Logger
	now       func() time.Time
}

// New 创建状态机
func New(queryID string, opts ...Option) *Machine {
	m := &Machine{
		queryID: queryID,
		phase:   PhaseInit,
		guards:  make(map[Action][]Guard),
		effects: make(map[Action][]Effect),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "lifecycle"), zap.String("query_id", queryID))
	m.qctx.QueryID = queryID
	if m.qctx.Timestamp.IsZero() {
		m.qctx.Timestamp = m.now()
	}
	return m
}

// QueryID 返回查询 ID
func (m *Machine) QueryID() string {
	return m.queryID
}

// Transition 执行动作。
//
// 未定义的 (phase, action) 返回 *InvalidTransitionError；Guard 拒绝返回 (false, nil)
// 且不产生任何变化；Effect 失败时阶段被强制置为 ERROR，错误写入上下文并以
// *EffectError 返回；成功时提交新阶段并追加历史。Guard 或 Effect panic
// 按副作用失败处理。
func (m *Machine) Transition(ctx context.Context, action Action) (bool, error) {
	return m.TransitionWith(ctx, action, nil)
}

// TransitionWith 与 Transition 相同，patch 非 nil 时随转换一起提交：
// Guard 与 Effect 看到已合并 patch 的上下文快照，Guard 拒绝或 Effect 失败时
// patch 不会写入状态机上下文。
func (m *Machine) TransitionWith(ctx context.Context, action Action, patch *ContextPatch) (bool, error) {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return false, ErrTransitionInProgress
	}
	from := m.phase
	to, ok := Lookup(from, action)
	if !ok {
		m.mu.Unlock()
		return false, &InvalidTransitionError{
			QueryID:      m.queryID,
			Phase:        from,
			Action:       action,
			ValidActions: ValidActions(from),
		}
	}
	snapshot := m.qctx.Clone()
	if patch != nil {
		snapshot.apply(*patch, m.now())
	}
	guards := m.guards[action]
	effects := m.effects[action]
	m.inFlight = true
	m.mu.Unlock()

	edge := Edge{From: from, Action: action, To: to}
	for _, guard := range guards {
		allowed, err := runGuard(guard, snapshot)
		if err != nil {
			return false, m.failEffect(edge, err)
		}
		if !allowed {
			m.mu.Lock()
			m.inFlight = false
			m.mu.Unlock()
			m.logger.Debug("transition rejected by guard",
				zap.String("action", string(action)),
				zap.String("phase", string(from)),
			)
			return false, nil
		}
	}

	for _, effect := range effects {
		if err := runEffect(ctx, effect, edge, snapshot); err != nil {
			return false, m.failEffect(edge, err)
		}
	}

	m.commit(edge, nil, patch)
	m.logger.Debug("transition committed",
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return true, nil
}

func runGuard(guard Guard, qc QueryContext) (allowed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: guard: %v", ErrCallbackPanic, r)
		}
	}()
	return guard(qc), nil
}

func runEffect(ctx context.Context, effect Effect, edge Edge, qc QueryContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: effect: %v", ErrCallbackPanic, r)
		}
	}()
	return effect(ctx, edge, qc)
}

func (m *Machine) failEffect(edge Edge, cause error) error {
	m.fail(edge, cause)
	return &EffectError{
		QueryID: m.queryID,
		Action:  edge.Action,
		From:    edge.From,
		Target:  edge.To,
		Err:     cause,
	}
}

// fail 副作用失败：以 ERROR 动作进入 ERROR 阶段
func (m *Machine) fail(edge Edge, cause error) {
	now := m.now()
	m.logger.Error("transition effect failed, forcing error phase",
		zap.String("action", string(edge.Action)),
		zap.String("from", string(edge.From)),
		zap.String("target", string(edge.To)),
		zap.Error(cause),
	)
	m.commit(Edge{From: edge.From, Action: ActionError, To: PhaseError}, &CapturedError{
		Message: cause.Error(),
		Action:  edge.Action,
		Phase:   edge.From,
		At:      now,
	}, nil)
}

func (m *Machine) commit(edge Edge, captured *CapturedError, patch *ContextPatch) {
	m.mu.Lock()
	now := m.now()
	m.phase = edge.To
	if patch != nil {
		m.qctx.apply(*patch, now)
	}
	m.qctx.Timestamp = now
	if captured != nil {
		m.qctx.Error = captured
	}
	event := StateChangeEvent{
		QueryID:   m.queryID,
		From:      edge.From,
		To:        edge.To,
		Action:    edge.Action,
		Timestamp: now,
	}
	m.history = append(m.history, event)
	m.inFlight = false
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, observer := range observers {
		observer(event)
	}
}

// State 返回当前阶段
func (m *Machine) State() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Context 返回上下文的深拷贝
func (m *Machine) Context() QueryContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qctx.Clone()
}

// History 返回转换历史的拷贝
func (m *Machine) History() []StateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StateChangeEvent, len(m.history))
	copy(out, m.history)
	return out
}

// ValidActions 返回当前阶段允许的动作
func (m *Machine) ValidActions() []Action {
	return ValidActions(m.State())
}

// CanTransition 判断当前阶段是否定义了该动作（不评估 Guard）
func (m *Machine) CanTransition(action Action) bool {
	_, ok := Lookup(m.State(), action)
	return ok
}

// UpdateContext 合并局部更新并刷新时间戳，不做模式校验
func (m *Machine) UpdateContext(patch ContextPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qctx.apply(patch, m.now())
}
