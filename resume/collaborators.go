package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/checkpoint"
)

// =============================================================================
// 🤝 协作方接口
// =============================================================================

// Checkpointer 管理器依赖的检查点存储能力，*checkpoint.Store 实现了它
type Checkpointer interface {
	Create(ctx context.Context, req checkpoint.CreateRequest) (*checkpoint.Checkpoint, error)
	Retrieve(ctx context.Context, queryID string, ts int64) (*checkpoint.Checkpoint, error)
	Latest(ctx context.Context, queryID string) (*checkpoint.Checkpoint, error)
}

// Registry 外部查询注册表。值以 JSON 编码保存；Retrieve 在键不存在时返回 (false, nil)。
// cache.Manager 实现了它。
type Registry interface {
	StoreWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	Retrieve(ctx context.Context, key string, dest any) (bool, error)
}

// TrainingSink 模式训练信号接收方。纯观察性质，不影响控制流与返回结果。
type TrainingSink interface {
	Notify(ctx context.Context, category, descriptor string, weight float64)
}

// Recorder 生命周期指标记录接口，metrics.Collector 实现了它
type Recorder interface {
	RecordTransition(from, to, action string)
	RecordPause(outcome string)
	RecordResume(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string, string) {}
func (nopRecorder) RecordPause(string)                      {}
func (nopRecorder) RecordResume(string, time.Duration)      {}

// 训练信号类别
const (
	CategoryCheckpoint = "checkpoint"
	CategoryResume     = "resume"
)

// NopSink 丢弃所有训练信号
type NopSink struct{}

// Notify 实现 TrainingSink
func (NopSink) Notify(context.Context, string, string, float64) {}

// LogSink 把训练信号写入日志
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志训练信号接收方
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "training_sink"))}
}

// Notify 实现 TrainingSink
func (s *LogSink) Notify(_ context.Context, category, descriptor string, weight float64) {
	s.logger.Debug("training signal",
		zap.String("category", category),
		zap.String("descriptor", descriptor),
		zap.Float64("weight", weight),
	)
}

// =============================================================================
// 🗂️ 进程内注册表
// =============================================================================

type registryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryRegistry 进程内 Registry 实现，与 Redis 注册表一样按 JSON 保存并遵守 TTL
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]registryEntry
	now     func() time.Time
}

// NewMemoryRegistry 创建进程内注册表
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]registryEntry),
		now:     time.Now,
	}
}

// StoreWithTTL 写入值；ttl <= 0 表示永不过期
func (r *MemoryRegistry) StoreWithTTL(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal registry value: %w", err)
	}

	entry := registryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}

	r.mu.Lock()
	r.entries[key] = entry
	r.mu.Unlock()
	return nil
}

// Retrieve 读取并解码值
func (r *MemoryRegistry) Retrieve(_ context.Context, key string, dest any) (bool, error) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok && !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		delete(r.entries, key)
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal registry value: %w", err)
	}
	return true, nil
}
