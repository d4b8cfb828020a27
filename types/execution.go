package types

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Valid 判断任务状态是否合法
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// TaskEntry 任务队列中的一项
type TaskEntry struct {
	ID          string     `json:"id"`
	Status      TaskStatus `json:"status"`
	Description string     `json:"description"`
	Progress    float64    `json:"progress"` // 0-100
}

// AgentState 子 Agent 的运行状态
type AgentState struct {
	Status        string  `json:"status"`
	CurrentTaskID *string `json:"current_task_id"`
}

// ExecutionContext 查询执行现场：任务队列、Agent 状态、资源计量与自由变量
type ExecutionContext struct {
	Tasks     []TaskEntry           `json:"tasks"`
	Agents    map[string]AgentState `json:"agents"`
	Resources map[string]float64    `json:"resources"`
	Variables Map                   `json:"variables"`
	StartedAt time.Time             `json:"started_at,omitempty"`
}

// Normalize 把 nil 集合替换为空集合，便于序列化为 [] / {}
func (e *ExecutionContext) Normalize() {
	if e.Tasks == nil {
		e.Tasks = []TaskEntry{}
	}
	if e.Agents == nil {
		e.Agents = map[string]AgentState{}
	}
	if e.Resources == nil {
		e.Resources = map[string]float64{}
	}
	if e.Variables == nil {
		e.Variables = Map{}
	}
}

// Validate 校验任务状态、进度范围与资源计量，数值必须有限
func (e ExecutionContext) Validate() error {
	for i, task := range e.Tasks {
		if !task.Status.Valid() {
			return fmt.Errorf("task %d (%s): invalid status %q", i, task.ID, task.Status)
		}
		if !finite(task.Progress) || task.Progress < 0 || task.Progress > 100 {
			return fmt.Errorf("task %d (%s): progress %v out of range [0,100]", i, task.ID, task.Progress)
		}
	}

	keys := make([]string, 0, len(e.Resources))
	for k := range e.Resources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := e.Resources[k]; !finite(v) {
			return fmt.Errorf("resource %q: value %v is not finite", k, v)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Clone 深拷贝执行现场
func (e ExecutionContext) Clone() ExecutionContext {
	out := ExecutionContext{StartedAt: e.StartedAt}
	if e.Tasks != nil {
		out.Tasks = make([]TaskEntry, len(e.Tasks))
		copy(out.Tasks, e.Tasks)
	}
	if e.Agents != nil {
		out.Agents = make(map[string]AgentState, len(e.Agents))
		for id, st := range e.Agents {
			if st.CurrentTaskID != nil {
				taskID := *st.CurrentTaskID
				st.CurrentTaskID = &taskID
			}
			out.Agents[id] = st
		}
	}
	if e.Resources != nil {
		out.Resources = make(map[string]float64, len(e.Resources))
		for k, v := range e.Resources {
			out.Resources[k] = v
		}
	}
	out.Variables = e.Variables.Clone()
	return out
}

// Equal 深度比较。nil 集合与空集合视为相等。
func (e ExecutionContext) Equal(other ExecutionContext) bool {
	if !e.StartedAt.Equal(other.StartedAt) {
		return false
	}
	if len(e.Tasks) != len(other.Tasks) {
		return false
	}
	for i := range e.Tasks {
		if e.Tasks[i] != other.Tasks[i] {
			return false
		}
	}
	if len(e.Agents) != len(other.Agents) {
		return false
	}
	for id, st := range e.Agents {
		ost, ok := other.Agents[id]
		if !ok || st.Status != ost.Status {
			return false
		}
		if (st.CurrentTaskID == nil) != (ost.CurrentTaskID == nil) {
			return false
		}
		if st.CurrentTaskID != nil && *st.CurrentTaskID != *ost.CurrentTaskID {
			return false
		}
	}
	if len(e.Resources) != len(other.Resources) {
		return false
	}
	for k, v := range e.Resources {
		ov, ok := other.Resources[k]
		if !ok || v != ov {
			return false
		}
	}
	return e.Variables.Equal(other.Variables)
}

// ModelConfig 模型配置快照
type ModelConfig struct {
	Model          string  `json:"model"`
	Provider       string  `json:"provider,omitempty"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	PermissionMode string  `json:"permission_mode,omitempty"`
	Extra          Map     `json:"extra,omitempty"`
}

// Clone 深拷贝模型配置
func (m ModelConfig) Clone() ModelConfig {
	m.Extra = m.Extra.Clone()
	return m
}

// Equal 深度比较
func (m ModelConfig) Equal(other ModelConfig) bool {
	return m.Model == other.Model &&
		m.Provider == other.Provider &&
		m.Temperature == other.Temperature &&
		m.MaxTokens == other.MaxTokens &&
		m.PermissionMode == other.PermissionMode &&
		m.Extra.Equal(other.Extra)
}
