package lifecycle

import (
	"sort"
)

// Phase 查询生命周期阶段
type Phase string

const (
	PhaseInit       Phase = "INIT"
	PhaseRunning    Phase = "RUNNING"
	PhasePaused     Phase = "PAUSED"
	PhaseCompleted  Phase = "COMPLETED"
	PhaseTerminated Phase = "TERMINATED"
	PhaseError      Phase = "ERROR"
)

// Phases 返回全部阶段
func Phases() []Phase {
	return []Phase{PhaseInit, PhaseRunning, PhasePaused, PhaseCompleted, PhaseTerminated, PhaseError}
}

// IsTerminal 终态没有出边
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseTerminated || p == PhaseError
}

// Valid 判断阶段是否合法
func (p Phase) Valid() bool {
	switch p {
	case PhaseInit, PhaseRunning, PhasePaused, PhaseCompleted, PhaseTerminated, PhaseError:
		return true
	default:
		return false
	}
}

// Action 触发状态转换的动作
type Action string

const (
	ActionStart     Action = "START"
	ActionPause     Action = "PAUSE"
	ActionResume    Action = "RESUME"
	ActionComplete  Action = "COMPLETE"
	ActionTerminate Action = "TERMINATE"
	ActionError     Action = "ERROR"
)

// Edge 转换表中的一条边
type Edge struct {
	From   Phase  `json:"from"`
	Action Action `json:"action"`
	To     Phase  `json:"to"`
}

type edgeKey struct {
	from   Phase
	action Action
}

// transitions 是固定的转换表
var transitions = map[edgeKey]Phase{
	{PhaseInit, ActionStart}:        PhaseRunning,
	{PhaseInit, ActionError}:        PhaseError,
	{PhaseRunning, ActionPause}:     PhasePaused,
	{PhaseRunning, ActionComplete}:  PhaseCompleted,
	{PhaseRunning, ActionTerminate}: PhaseTerminated,
	{PhaseRunning, ActionError}:     PhaseError,
	{PhasePaused, ActionResume}:     PhaseRunning,
	{PhasePaused, ActionTerminate}:  PhaseTerminated,
	{PhasePaused, ActionError}:      PhaseError,
}

// Lookup 查找 (from, action) 的目标阶段
func Lookup(from Phase, action Action) (Phase, bool) {
	to, ok := transitions[edgeKey{from, action}]
	return to, ok
}

// ValidEdge 判断 (from, action, to) 是否是转换表中的边
func ValidEdge(from Phase, action Action, to Phase) bool {
	target, ok := Lookup(from, action)
	return ok && target == to
}

// ValidActions 返回某阶段允许的动作（按名称排序）
func ValidActions(from Phase) []Action {
	actions := make([]Action, 0, 3)
	for k := range transitions {
		if k.from == from {
			actions = append(actions, k.action)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Edges 返回完整转换表
func Edges() []Edge {
	edges := make([]Edge, 0, len(transitions))
	for k, to := range transitions {
		edges = append(edges, Edge{From: k.from, Action: k.action, To: to})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].Action < edges[j].Action
	})
	return edges
}
