package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/queryflow/lifecycle"
	"github.com/BaSui01/queryflow/types"
)

var (
	ErrInvalidQueryID = errors.New("checkpoint: query id is required")
	ErrInvalidKey     = errors.New("checkpoint: malformed key")
)

// Metadata 检查点元数据
type Metadata struct {
	Reason    string    `json:"reason"`
	SizeBytes int       `json:"size_bytes"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint 查询执行现场的时间点快照。(QueryID, Timestamp) 唯一。
type Checkpoint struct {
	QueryID   string                 `json:"query_id"`
	Timestamp int64                  `json:"timestamp"`
	Phase     lifecycle.Phase        `json:"phase"`
	Execution types.ExecutionContext `json:"execution"`
	Model     types.ModelConfig      `json:"model_config"`
	Metadata  Metadata               `json:"metadata"`
	Embedding []float64              `json:"embedding"`
}

// Key 返回 queryID:timestamp
func (c *Checkpoint) Key() string {
	return Key(c.QueryID, c.Timestamp)
}

// Clone 深拷贝
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Execution = c.Execution.Clone()
	out.Model = c.Model.Clone()
	if c.Embedding != nil {
		out.Embedding = make([]float64, len(c.Embedding))
		copy(out.Embedding, c.Embedding)
	}
	return &out
}

// Key 构造检查点键
func Key(queryID string, ts int64) string {
	return queryID + ":" + strconv.FormatInt(ts, 10)
}

// ParseKey 解析检查点键。查询 ID 本身可以包含冒号，以最后一个冒号为界。
func ParseKey(key string) (string, int64, error) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	ts, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key[:i], ts, nil
}

// Encode 序列化检查点
func Encode(c *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint %s: %w", c.Key(), err)
	}
	return data, nil
}

// Decode 反序列化检查点
func Decode(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if c.QueryID == "" {
		return nil, fmt.Errorf("decode checkpoint: %w", ErrInvalidQueryID)
	}
	c.Execution.Normalize()
	return &c, nil
}

// serializedSize 计算元数据中记录的序列化大小（size 字段本身记为 0）
func serializedSize(c *Checkpoint) (int, error) {
	probe := *c
	probe.Metadata.SizeBytes = 0
	data, err := json.Marshal(&probe)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
