package checkpoint

import (
	"sync"
	"time"
)

// LogicalClock 为每个查询分配严格递增的毫秒时间戳：max(now, last+1)
type LogicalClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last map[string]int64
}

// NewLogicalClock 创建逻辑时钟
func NewLogicalClock(now func() time.Time) *LogicalClock {
	if now == nil {
		now = time.Now
	}
	return &LogicalClock{now: now, last: make(map[string]int64)}
}

// Next 返回该查询的下一个时间戳
func (c *LogicalClock) Next(queryID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixMilli()
	if last, ok := c.last[queryID]; ok && ts <= last {
		ts = last + 1
	}
	c.last[queryID] = ts
	return ts
}

// Observe 记录外部已存在的时间戳（例如持久层提升回来的检查点），
// 之后分配的时间戳一定大于它
func (c *LogicalClock) Observe(queryID string, ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[queryID]; !ok || ts > last {
		c.last[queryID] = ts
	}
}
