package pool

import (
	"sync"
	"sync/atomic"
)

// =============================================================================
// ♻️ 缓冲区复用
// =============================================================================

// SlicePool 基于 sync.Pool 复用切片，Put 时保留容量并清空长度
type SlicePool[T any] struct {
	pool     sync.Pool
	initSize int

	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewSlicePool 创建切片池，initSize 为新切片的初始容量
func NewSlicePool[T any](initSize int) *SlicePool[T] {
	p := &SlicePool[T]{initSize: initSize}
	p.pool.New = func() any {
		p.news.Add(1)
		s := make([]T, 0, initSize)
		return &s
	}
	return p
}

// Get 取出一个长度为 0 的切片
func (p *SlicePool[T]) Get() []T {
	p.gets.Add(1)
	return (*p.pool.Get().(*[]T))[:0]
}

// Put 归还切片。容量超过初始容量 4 倍的切片直接丢弃，避免池中滞留大块内存。
func (p *SlicePool[T]) Put(s []T) {
	if s == nil || (p.initSize > 0 && cap(s) > 4*p.initSize) {
		return
	}
	p.puts.Add(1)
	s = s[:0]
	p.pool.Put(&s)
}

// Stats 返回统计
func (p *SlicePool[T]) Stats() PoolStats {
	return PoolStats{
		Gets: p.gets.Load(),
		Puts: p.puts.Load(),
		News: p.news.Load(),
	}
}

// PoolStats 池统计
type PoolStats struct {
	Gets int64 `json:"gets"`
	Puts int64 `json:"puts"`
	News int64 `json:"news"`
}

// HitRate 复用命中率
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}
