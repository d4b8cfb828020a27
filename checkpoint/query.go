package checkpoint

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/lifecycle"
)

// ListFilter 列表过滤条件。零值字段表示不过滤；From/To 为闭区间。
type ListFilter struct {
	QueryID string          `json:"query_id,omitempty"`
	Phase   lifecycle.Phase `json:"phase,omitempty"`
	From    int64           `json:"from,omitempty"`
	To      int64           `json:"to,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// ListResult 列表结果
type ListResult struct {
	Items   []*Checkpoint `json:"items"`
	Total   int           `json:"total"`
	HasMore bool          `json:"has_more"`
}

// List 列出快速层中的检查点，按时间戳从新到旧
func (s *Store) List(ctx context.Context, filter ListFilter) ListResult {
	limit := filter.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	var matched []*Checkpoint
	visit := func(entries map[int64]*Checkpoint) {
		for ts, cp := range entries {
			if filter.Phase != "" && cp.Phase != filter.Phase {
				continue
			}
			if filter.From != 0 && ts < filter.From {
				continue
			}
			if filter.To != 0 && ts > filter.To {
				continue
			}
			matched = append(matched, cp)
		}
	}
	if filter.QueryID != "" {
		visit(s.byQuery[filter.QueryID])
	} else {
		for _, entries := range s.byQuery {
			visit(entries)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp != matched[j].Timestamp {
			return matched[i].Timestamp > matched[j].Timestamp
		}
		return matched[i].QueryID < matched[j].QueryID
	})

	result := ListResult{Items: []*Checkpoint{}, Total: len(matched)}
	if offset >= len(matched) {
		return result
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, cp := range matched[offset:end] {
		result.Items = append(result.Items, cp.Clone())
	}
	result.HasMore = end < len(matched)
	return result
}

// Statistics 快速层统计
type Statistics struct {
	TotalCheckpoints int                     `json:"total_checkpoints"`
	Queries          int                     `json:"queries"`
	ByPhase          map[lifecycle.Phase]int `json:"by_phase"`
	AverageSizeBytes float64                 `json:"average_size_bytes"`
	OldestTimestamp  int64                   `json:"oldest_timestamp"`
	NewestTimestamp  int64                   `json:"newest_timestamp"`
	MemoryOnly       bool                    `json:"memory_only"`
}

// Statistics 返回当前驻留检查点的汇总
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Statistics{
		Queries:    len(s.byQuery),
		ByPhase:    make(map[lifecycle.Phase]int),
		MemoryOnly: s.durable == nil,
	}
	var totalSize int
	for _, entries := range s.byQuery {
		for ts, cp := range entries {
			st.TotalCheckpoints++
			st.ByPhase[cp.Phase]++
			totalSize += cp.Metadata.SizeBytes
			if st.OldestTimestamp == 0 || ts < st.OldestTimestamp {
				st.OldestTimestamp = ts
			}
			if ts > st.NewestTimestamp {
				st.NewestTimestamp = ts
			}
		}
	}
	if st.TotalCheckpoints > 0 {
		st.AverageSizeBytes = float64(totalSize) / float64(st.TotalCheckpoints)
	}
	return st
}

// FindSimilar 尽力而为的相似检查点检索。优先使用持久层，失败时退回快速层扫描。
// queryID 为空时在所有查询中检索。
func (s *Store) FindSimilar(ctx context.Context, queryID string, vector []float64, limit int) []Match {
	if limit <= 0 {
		limit = 5
	}
	if s.durable != nil {
		matches, err := s.durable.Search(ctx, queryID, vector, limit)
		if err == nil {
			return matches
		}
		s.recorder.RecordDurableFailure("search")
		s.warnDurable("durable search failed, scanning fast tier", queryID, err)
	}

	s.mu.RLock()
	var matches []Match
	for qid, entries := range s.byQuery {
		if queryID != "" && qid != queryID {
			continue
		}
		for _, cp := range entries {
			matches = append(matches, Match{
				Key:       cp.Key(),
				QueryID:   cp.QueryID,
				Timestamp: cp.Timestamp,
				Score:     CosineSimilarity(vector, cp.Embedding),
			})
		}
	}
	s.mu.RUnlock()

	s.logger.Debug("fast tier similarity scan", zap.Int("candidates", len(matches)))
	return TopMatches(matches, limit)
}
