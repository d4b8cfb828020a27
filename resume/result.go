package resume

import (
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/lifecycle"
	"github.com/BaSui01/queryflow/types"
)

var (
	// ErrQueryNotFound 查询未被跟踪
	ErrQueryNotFound = errors.New("query not found")
	// ErrQueryExists 查询已被跟踪
	ErrQueryExists = errors.New("query already tracked")
	// ErrGuardRejected 转换被前置条件拒绝
	ErrGuardRejected = errors.New("transition rejected by guard")
)

// FailureKind 暂停/恢复失败的类别。这些都是预期的运行时情况，以数据形式返回。
type FailureKind string

const (
	KindNotFound          FailureKind = "NotFound"
	KindInvalidState      FailureKind = "InvalidState"
	KindNoCheckpoint      FailureKind = "NoCheckpoint"
	KindInvalidTransition FailureKind = "InvalidTransition"
	KindRejected          FailureKind = "Rejected"
	KindEffectFailed      FailureKind = "EffectFailed"
)

// Code 对应的结构化错误码
func (k FailureKind) Code() types.ErrorCode {
	switch k {
	case KindNotFound:
		return types.ErrQueryNotFound
	case KindInvalidState:
		return types.ErrInvalidState
	case KindNoCheckpoint:
		return types.ErrNoCheckpoint
	case KindInvalidTransition:
		return types.ErrInvalidTransition
	case KindRejected:
		return types.ErrGuardRejected
	case KindEffectFailed:
		return types.ErrEffectFailed
	default:
		return ""
	}
}

// outcome 指标标签
func outcome(k FailureKind) string {
	switch k {
	case "":
		return "success"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindNoCheckpoint:
		return "no_checkpoint"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindRejected:
		return "rejected"
	default:
		return "effect_failed"
	}
}

// PauseResult 暂停操作的结果记录
type PauseResult struct {
	Success      bool            `json:"success"`
	QueryID      string          `json:"query_id"`
	CheckpointTS int64           `json:"checkpoint_ts,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	Kind         FailureKind     `json:"kind,omitempty"`
	Error        string          `json:"error,omitempty"`
	CurrentPhase lifecycle.Phase `json:"current_phase"`
}

// ResumeResult 恢复操作的结果记录
type ResumeResult struct {
	Success      bool                   `json:"success"`
	QueryID      string                 `json:"query_id"`
	ResumedFrom  int64                  `json:"resumed_from,omitempty"`
	Checkpoint   *checkpoint.Checkpoint `json:"checkpoint,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
	Kind         FailureKind            `json:"kind,omitempty"`
	Error        string                 `json:"error,omitempty"`
	CurrentPhase lifecycle.Phase        `json:"current_phase"`
}

// QueryRecord 注册表中的查询元数据，键为 query:<id>
type QueryRecord struct {
	QueryID      string          `json:"query_id"`
	Phase        lifecycle.Phase `json:"phase"`
	PausedAt     *time.Time      `json:"paused_at,omitempty"`
	PauseReason  string          `json:"pause_reason,omitempty"`
	CheckpointTS int64           `json:"checkpoint_ts,omitempty"`
	ResumedFrom  int64           `json:"resumed_from,omitempty"`
	ResumedAt    *time.Time      `json:"resumed_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RecordKey 查询记录在注册表中的键
func RecordKey(queryID string) string {
	return "query:" + queryID
}

// ValidationReport 检查点校验结果
type ValidationReport struct {
	QueryID   string   `json:"query_id"`
	Valid     bool     `json:"valid"`
	Missing   []string `json:"missing,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

func notFoundMessage(queryID string) string {
	return fmt.Sprintf("query %s not found", queryID)
}

func invalidStateMessage(phase lifecycle.Phase) string {
	return fmt.Sprintf("Cannot resume from phase %s; must be PAUSED", phase)
}

func noCheckpointMessage(queryID string) string {
	return fmt.Sprintf("no checkpoint found for query %s", queryID)
}
