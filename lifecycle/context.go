package lifecycle

import (
	"time"

	"github.com/BaSui01/queryflow/types"
)

// CapturedError 副作用失败时记录在上下文中的错误
type CapturedError struct {
	Message string    `json:"message"`
	Action  Action    `json:"action"`
	Phase   Phase     `json:"phase"`
	At      time.Time `json:"at"`
}

// QueryContext 查询上下文
type QueryContext struct {
	QueryID     string                  `json:"query_id"`
	Metadata    types.Map               `json:"metadata"`
	Timestamp   time.Time               `json:"timestamp"`
	ModelConfig *types.ModelConfig      `json:"model_config,omitempty"`
	Execution   *types.ExecutionContext `json:"execution,omitempty"`
	Error       *CapturedError          `json:"error,omitempty"`
}

// Clone 深拷贝上下文
func (c QueryContext) Clone() QueryContext {
	out := QueryContext{
		QueryID:   c.QueryID,
		Metadata:  c.Metadata.Clone(),
		Timestamp: c.Timestamp,
	}
	if c.ModelConfig != nil {
		cfg := c.ModelConfig.Clone()
		out.ModelConfig = &cfg
	}
	if c.Execution != nil {
		exec := c.Execution.Clone()
		out.Execution = &exec
	}
	if c.Error != nil {
		captured := *c.Error
		out.Error = &captured
	}
	return out
}

// ContextPatch 局部更新。nil 字段不修改，Metadata 按键合并。
type ContextPatch struct {
	Metadata    types.Map
	ModelConfig *types.ModelConfig
	Execution   *types.ExecutionContext
	ClearError  bool
}

func (c *QueryContext) apply(patch ContextPatch, now time.Time) {
	if len(patch.Metadata) > 0 {
		if c.Metadata == nil {
			c.Metadata = make(types.Map, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			c.Metadata[k] = v.Clone()
		}
	}
	if patch.ModelConfig != nil {
		cfg := patch.ModelConfig.Clone()
		c.ModelConfig = &cfg
	}
	if patch.Execution != nil {
		exec := patch.Execution.Clone()
		c.Execution = &exec
	}
	if patch.ClearError {
		c.Error = nil
	}
	c.Timestamp = now
}
