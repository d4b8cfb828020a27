package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/queryflow/lifecycle"
)

// Record 持久层中的一条检查点记录。Data 是检查点的 JSON 编码，
// 持久层不解析它。
type Record struct {
	Key       string          `json:"key"`
	QueryID   string          `json:"query_id"`
	Timestamp int64           `json:"timestamp"`
	Phase     lifecycle.Phase `json:"phase"`
	Vector    []float64       `json:"vector,omitempty"`
	Data      []byte          `json:"data"`
}

// Match 相似检索结果
type Match struct {
	Key       string  `json:"key"`
	QueryID   string  `json:"query_id"`
	Timestamp int64   `json:"timestamp"`
	Score     float64 `json:"score"`
}

// DurableTier 持久化向量存储。
//
// Fetch 系列方法在记录不存在时返回 (nil, nil)。
type DurableTier interface {
	// EnsureCollection 确保集合存在
	EnsureCollection(ctx context.Context) error
	// RecreateCollection 删除并重建集合
	RecreateCollection(ctx context.Context) error
	Upsert(ctx context.Context, rec Record) error
	FetchByKey(ctx context.Context, key string) (*Record, error)
	FetchLatestByQuery(ctx context.Context, queryID string) (*Record, error)
	// ListTimestamps 返回查询在持久层中的全部时间戳，顺序不限
	ListTimestamps(ctx context.Context, queryID string) ([]int64, error)
	Delete(ctx context.Context, key string) (bool, error)
	// Search 在查询范围内按向量检索；queryID 为空时检索全部
	Search(ctx context.Context, queryID string, vector []float64, limit int) ([]Match, error)
	Health(ctx context.Context) error
}

// MemoryDurable 进程内的 DurableTier 实现，用于测试和 memory 后端
type MemoryDurable struct {
	mu      sync.RWMutex
	records map[string]Record
	// failWith 非 nil 时所有操作返回该错误
	failWith error
}

// NewMemoryDurable 创建进程内持久层
func NewMemoryDurable() *MemoryDurable {
	return &MemoryDurable{records: make(map[string]Record)}
}

// SetFailure 设置注入错误；nil 表示恢复正常
func (m *MemoryDurable) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Len 返回记录数
func (m *MemoryDurable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryDurable) EnsureCollection(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failWith
}

func (m *MemoryDurable) RecreateCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.records = make(map[string]Record)
	return nil
}

func (m *MemoryDurable) Upsert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.records[rec.Key] = copyRecord(rec)
	return nil
}

func (m *MemoryDurable) FetchByKey(ctx context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	out := copyRecord(rec)
	return &out, nil
}

func (m *MemoryDurable) FetchLatestByQuery(ctx context.Context, queryID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var latest *Record
	for _, rec := range m.records {
		if rec.QueryID != queryID {
			continue
		}
		if latest == nil || rec.Timestamp > latest.Timestamp {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := copyRecord(*latest)
	return &out, nil
}

func (m *MemoryDurable) ListTimestamps(ctx context.Context, queryID string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []int64
	for _, rec := range m.records {
		if rec.QueryID == queryID {
			out = append(out, rec.Timestamp)
		}
	}
	return out, nil
}

func (m *MemoryDurable) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	_, ok := m.records[key]
	delete(m.records, key)
	return ok, nil
}

func (m *MemoryDurable) Search(ctx context.Context, queryID string, vector []float64, limit int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Match
	for _, rec := range m.records {
		if queryID != "" && rec.QueryID != queryID {
			continue
		}
		out = append(out, Match{
			Key:       rec.Key,
			QueryID:   rec.QueryID,
			Timestamp: rec.Timestamp,
			Score:     CosineSimilarity(vector, rec.Vector),
		})
	}
	return TopMatches(out, limit), nil
}

func (m *MemoryDurable) Health(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failWith
}

func copyRecord(rec Record) Record {
	if rec.Vector != nil {
		v := make([]float64, len(rec.Vector))
		copy(v, rec.Vector)
		rec.Vector = v
	}
	if rec.Data != nil {
		d := make([]byte, len(rec.Data))
		copy(d, rec.Data)
		rec.Data = d
	}
	return rec
}

// TopMatches 按分数降序排列并截断；分数相同时较新的在前
func TopMatches(matches []Match, limit int) []Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Timestamp > matches[j].Timestamp
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
