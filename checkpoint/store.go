package checkpoint

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/BaSui01/queryflow/internal/pool"
	"github.com/BaSui01/queryflow/lifecycle"
	"github.com/BaSui01/queryflow/types"
)

const (
	DefaultMaxPerQuery = 10
	DefaultPerfTarget  = 150 * time.Millisecond
	DefaultPageSize    = 50
	DefaultCreator     = "queryflow"

	// durableFetchTimeout 单次持久层读取的超时
	durableFetchTimeout = 5 * time.Second
)

// 缓存层名称，用于指标标签
const (
	TierFast    = "fast"
	TierDurable = "durable"
)

const noProtect = math.MinInt64

// Recorder 检查点指标记录器
type Recorder interface {
	RecordCheckpointCreated(phase string, duration time.Duration, sizeBytes int)
	RecordTierLookup(tier string, hit bool)
	RecordPruned(count int)
	RecordDurableFailure(op string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCheckpointCreated(string, time.Duration, int) {}
func (nopRecorder) RecordTierLookup(string, bool)                      {}
func (nopRecorder) RecordPruned(int)                                   {}
func (nopRecorder) RecordDurableFailure(string)                        {}

// CreateRequest 创建检查点的输入。Phase 为空时记为 PAUSED。
type CreateRequest struct {
	QueryID   string
	Phase     lifecycle.Phase
	Execution types.ExecutionContext
	Model     types.ModelConfig
	Reason    string
	CreatedBy string
}

// Option 存储选项
type Option func(*Store)

// WithDurable 设置持久层。不设置时以纯内存模式运行。
func WithDurable(d DurableTier) Option {
	return func(s *Store) { s.durable = d }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMaxPerQuery 设置每个查询保留的检查点上限
func WithMaxPerQuery(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPerQuery = n
		}
	}
}

// WithPerfTarget 设置创建耗时告警阈值
func WithPerfTarget(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.perfTarget = d
		}
	}
}

// WithPageSize 设置 List 的默认页大小
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithWriteQueue 使用外部的写队列。外部队列由调用方关闭。
func WithWriteQueue(q *pool.Queue) Option {
	return func(s *Store) { s.queue = q }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEmbedding 设置嵌入生成器
func WithEmbedding(g *EmbeddingGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.embedder = g
		}
	}
}

// WithCreator 设置默认创建者
func WithCreator(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.creator = name
		}
	}
}

// Store 两级检查点存储。
//
// 快速层是进程内 map，是本进程生命周期内的权威数据；持久层写入通过有界队列
// 异步完成，失败只记录日志与指标，不影响调用方。
type Store struct {
	mu      sync.RWMutex
	byQuery map[string]map[int64]*Checkpoint

	// pending 已入队尚未完成的持久层写入；tombstones 写入完成前被删除的键
	pending    map[string]struct{}
	tombstones map[string]struct{}
	// synced 已与持久层核对过最新检查点的查询
	synced map[string]bool

	durable   DurableTier
	queue     *pool.Queue
	ownsQueue bool
	flights   singleflight.Group

	clock       *LogicalClock
	embedder    *EmbeddingGenerator
	recorder    Recorder
	logger      *zap.Logger
	warnLimiter *rate.Limiter
	tracer      trace.Tracer
	now         func() time.Time

	maxPerQuery int
	perfTarget  time.Duration
	pageSize    int
	creator     string
}

// NewStore 创建检查点存储
func NewStore(opts ...Option) *Store {
	s := &Store{
		byQuery:     make(map[string]map[int64]*Checkpoint),
		pending:     make(map[string]struct{}),
		tombstones:  make(map[string]struct{}),
		synced:      make(map[string]bool),
		embedder:    NewEmbeddingGenerator(),
		recorder:    nopRecorder{},
		logger:      zap.NewNop(),
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		tracer:      otel.Tracer("queryflow/checkpoint"),
		now:         time.Now,
		maxPerQuery: DefaultMaxPerQuery,
		perfTarget:  DefaultPerfTarget,
		pageSize:    DefaultPageSize,
		creator:     DefaultCreator,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "checkpoint_store"))
	s.clock = NewLogicalClock(s.now)

	if s.durable != nil {
		if s.queue == nil {
			s.queue = pool.NewQueue(pool.DefaultQueueConfig(), s.logger)
			s.ownsQueue = true
		}
		go s.supervise(s.queue.Failures())
	}
	return s
}

// MemoryOnly 是否以纯内存模式运行
func (s *Store) MemoryOnly() bool {
	return s.durable == nil
}

// Create 创建检查点。
//
// 执行现场被深拷贝；快速层写入在返回前同步完成，持久层写入异步进行。
// 写入后立即对该查询执行裁剪，裁剪不会删除本次写入的检查点。
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Checkpoint, error) {
	if req.QueryID == "" {
		return nil, ErrInvalidQueryID
	}
	phase := req.Phase
	if phase == "" {
		phase = lifecycle.PhasePaused
	}
	if !phase.Valid() {
		return nil, fmt.Errorf("checkpoint: invalid phase %q", phase)
	}
	exec := req.Execution.Clone()
	exec.Normalize()
	if err := exec.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint: invalid execution snapshot: %w", err)
	}

	_, span := s.tracer.Start(ctx, "checkpoint.create",
		trace.WithAttributes(attribute.String("query_id", req.QueryID)),
	)
	defer span.End()

	start := s.now()
	creator := req.CreatedBy
	if creator == "" {
		creator = s.creator
	}

	ts := s.clock.Next(req.QueryID)
	cp := &Checkpoint{
		QueryID:   req.QueryID,
		Timestamp: ts,
		Phase:     phase,
		Execution: exec,
		Model:     req.Model.Clone(),
		Metadata: Metadata{
			Reason:    req.Reason,
			CreatedBy: creator,
			CreatedAt: start,
		},
	}
	cp.Embedding = s.embedder.Generate(cp.QueryID, cp.Execution, time.UnixMilli(ts))

	size, err := serializedSize(cp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("checkpoint: measure size: %w", err)
	}
	cp.Metadata.SizeBytes = size

	s.mu.Lock()
	entries, ok := s.byQuery[cp.QueryID]
	if !ok {
		entries = make(map[int64]*Checkpoint)
		s.byQuery[cp.QueryID] = entries
	}
	entries[ts] = cp
	pruned := s.pruneLocked(cp.QueryID, ts)
	s.mu.Unlock()

	if len(pruned) > 0 {
		s.recorder.RecordPruned(len(pruned))
		s.logger.Debug("pruned old checkpoints",
			zap.String("query_id", cp.QueryID),
			zap.Int("count", len(pruned)),
		)
	}

	s.persist(cp.Clone())

	elapsed := s.now().Sub(start)
	s.recorder.RecordCheckpointCreated(string(phase), elapsed, size)
	if elapsed > s.perfTarget {
		s.logger.Warn("checkpoint creation exceeded performance target",
			zap.String("query_id", cp.QueryID),
			zap.Int64("timestamp", ts),
			zap.Duration("elapsed", elapsed),
			zap.Duration("target", s.perfTarget),
		)
	}
	span.SetAttributes(
		attribute.Int64("timestamp", ts),
		attribute.Int("size_bytes", size),
	)
	s.logger.Debug("checkpoint created",
		zap.String("query_id", cp.QueryID),
		zap.Int64("timestamp", ts),
		zap.String("phase", string(phase)),
		zap.Int("size_bytes", size),
	)
	return cp.Clone(), nil
}

// Retrieve 按 (queryID, ts) 读取检查点。先查快速层再查持久层，
// 持久层命中会被提升到快速层。不存在时返回 (nil, nil)。
func (s *Store) Retrieve(ctx context.Context, queryID string, ts int64) (*Checkpoint, error) {
	if queryID == "" {
		return nil, ErrInvalidQueryID
	}
	ctx, span := s.tracer.Start(ctx, "checkpoint.retrieve",
		trace.WithAttributes(
			attribute.String("query_id", queryID),
			attribute.Int64("timestamp", ts),
		),
	)
	defer span.End()

	s.mu.RLock()
	cp := s.byQuery[queryID][ts]
	s.mu.RUnlock()
	if cp != nil {
		s.recorder.RecordTierLookup(TierFast, true)
		span.SetAttributes(attribute.String("tier", TierFast))
		return cp.Clone(), nil
	}
	s.recorder.RecordTierLookup(TierFast, false)

	key := Key(queryID, ts)
	found, _ := s.fromDurable(ctx, span, "key:"+key, func(ctx context.Context) (*Record, error) {
		return s.durable.FetchByKey(ctx, key)
	})
	return found, nil
}

// Latest 返回查询最新的检查点，不存在时返回 (nil, nil)。
// 配置了持久层时，每个查询首次读取会与持久层的最新记录比较，
// 避免重启后被提升的旧检查点遮住更新的记录。
func (s *Store) Latest(ctx context.Context, queryID string) (*Checkpoint, error) {
	if queryID == "" {
		return nil, ErrInvalidQueryID
	}
	ctx, span := s.tracer.Start(ctx, "checkpoint.retrieve",
		trace.WithAttributes(
			attribute.String("query_id", queryID),
			attribute.Bool("latest", true),
		),
	)
	defer span.End()

	s.mu.RLock()
	var latest *Checkpoint
	for _, cp := range s.byQuery[queryID] {
		if latest == nil || cp.Timestamp > latest.Timestamp {
			latest = cp.Clone()
		}
	}
	synced := s.synced[queryID]
	s.mu.RUnlock()

	s.recorder.RecordTierLookup(TierFast, latest != nil)
	if latest != nil && (s.durable == nil || synced) {
		span.SetAttributes(attribute.String("tier", TierFast))
		return latest, nil
	}

	found, answered := s.fromDurable(ctx, span, "latest:"+queryID, func(ctx context.Context) (*Record, error) {
		return s.durable.FetchLatestByQuery(ctx, queryID)
	})
	if answered {
		s.mu.Lock()
		s.synced[queryID] = true
		s.mu.Unlock()
	}
	if found != nil && (latest == nil || found.Timestamp > latest.Timestamp) {
		return found, nil
	}
	if latest != nil {
		span.SetAttributes(attribute.String("tier", TierFast))
	}
	return latest, nil
}

// fromDurable 从持久层读取并提升。同一键的并发读取合并为一次。
// 持久层错误按未命中处理，answered 为 false；已删除的键不会被提升。
func (s *Store) fromDurable(ctx context.Context, span trace.Span, flightKey string, fetch func(context.Context) (*Record, error)) (found *Checkpoint, answered bool) {
	if s.durable == nil {
		return nil, false
	}

	// singleflight 复用首个调用者的 ctx，取消信号不向其他等待者传播
	v, err, _ := s.flights.Do(flightKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), durableFetchTimeout)
		defer cancel()
		rec, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		cp, err := Decode(rec.Data)
		if err != nil {
			return nil, err
		}
		if !s.promote(cp) {
			return nil, nil
		}
		return cp, nil
	})
	if err != nil {
		span.RecordError(err)
		s.recorder.RecordDurableFailure("fetch")
		s.warnDurable("durable fetch failed, serving from fast tier only", flightKey, err)
		return nil, false
	}

	cp, _ := v.(*Checkpoint)
	if cp == nil {
		s.recorder.RecordTierLookup(TierDurable, false)
		return nil, true
	}
	s.recorder.RecordTierLookup(TierDurable, true)
	span.SetAttributes(attribute.String("tier", TierDurable))
	return cp.Clone(), true
}

// promote 把持久层命中写入快速层。已存在时保留快速层版本；
// 键已被删除、写入尚未落定时返回 false。
func (s *Store) promote(cp *Checkpoint) bool {
	s.clock.Observe(cp.QueryID, cp.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, deleted := s.tombstones[cp.Key()]; deleted {
		return false
	}
	entries, ok := s.byQuery[cp.QueryID]
	if !ok {
		entries = make(map[int64]*Checkpoint)
		s.byQuery[cp.QueryID] = entries
	}
	if _, exists := entries[cp.Timestamp]; exists {
		return true
	}
	entries[cp.Timestamp] = cp
	// 提升只影响快速层容量，持久层保持不变
	s.pruneLocked(cp.QueryID, noProtect)
	s.logger.Debug("promoted checkpoint from durable tier",
		zap.String("query_id", cp.QueryID),
		zap.Int64("timestamp", cp.Timestamp),
	)
	return true
}

// Delete 从两级存储中删除检查点，任一层存在即返回 true。
// 若该键的持久层写入仍在队列中，写入完成后会被撤销。
func (s *Store) Delete(ctx context.Context, queryID string, ts int64) (bool, error) {
	if queryID == "" {
		return false, ErrInvalidQueryID
	}

	key := Key(queryID, ts)
	s.mu.Lock()
	entries := s.byQuery[queryID]
	_, inFast := entries[ts]
	delete(entries, ts)
	if entries != nil && len(entries) == 0 {
		delete(s.byQuery, queryID)
		delete(s.synced, queryID)
	}
	if _, queued := s.pending[key]; queued {
		s.tombstones[key] = struct{}{}
	}
	s.mu.Unlock()

	var inDurable bool
	if s.durable != nil {
		ok, err := s.durable.Delete(ctx, key)
		if err != nil {
			s.recorder.RecordDurableFailure("delete")
			s.warnDurable("durable delete failed", key, err)
		}
		inDurable = ok
	}
	return inFast || inDurable, nil
}

// Prune 把查询的检查点裁剪到上限，返回快速层删除的数量。
// 持久层裁剪失败只记录日志。
func (s *Store) Prune(ctx context.Context, queryID string) int {
	s.mu.Lock()
	pruned := s.pruneLocked(queryID, noProtect)
	s.mu.Unlock()

	if len(pruned) > 0 {
		s.recorder.RecordPruned(len(pruned))
	}
	if s.durable != nil {
		s.pruneDurable(ctx, queryID, noProtect)
	}
	return len(pruned)
}

// pruneLocked 删除最旧的检查点直到不超过上限，protect 指定的时间戳永不删除
func (s *Store) pruneLocked(queryID string, protect int64) []int64 {
	entries := s.byQuery[queryID]
	if len(entries) <= s.maxPerQuery {
		return nil
	}
	timestamps := make([]int64, 0, len(entries))
	for ts := range entries {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	excess := len(entries) - s.maxPerQuery
	var removed []int64
	for _, ts := range timestamps {
		if len(removed) == excess {
			break
		}
		if ts == protect {
			continue
		}
		delete(entries, ts)
		removed = append(removed, ts)
	}
	return removed
}

func (s *Store) pruneDurable(ctx context.Context, queryID string, protect int64) {
	timestamps, err := s.durable.ListTimestamps(ctx, queryID)
	if err != nil {
		s.recorder.RecordDurableFailure("prune")
		s.warnDurable("durable prune listing failed", queryID, err)
		return
	}
	if len(timestamps) <= s.maxPerQuery {
		return
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] > timestamps[j] })
	for _, ts := range timestamps[s.maxPerQuery:] {
		if ts == protect {
			continue
		}
		key := Key(queryID, ts)
		if _, err := s.durable.Delete(ctx, key); err != nil {
			s.recorder.RecordDurableFailure("prune")
			s.warnDurable("durable prune failed", key, err)
		}
	}
}

// persist 把检查点提交到写队列，随后在持久层对该查询做裁剪
func (s *Store) persist(cp *Checkpoint) {
	if s.durable == nil {
		return
	}
	key := cp.Key()
	s.mu.Lock()
	s.pending[key] = struct{}{}
	s.mu.Unlock()

	err := s.queue.Submit("upsert:"+key, func(ctx context.Context) error {
		defer s.settle(key)
		if s.deleted(key) {
			return nil
		}
		data, err := Encode(cp)
		if err != nil {
			return err
		}
		if err := s.durable.Upsert(ctx, Record{
			Key:       key,
			QueryID:   cp.QueryID,
			Timestamp: cp.Timestamp,
			Phase:     cp.Phase,
			Vector:    cp.Embedding,
			Data:      data,
		}); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
		// 写入期间被删除，撤销刚写入的记录
		if s.deleted(key) {
			if _, err := s.durable.Delete(ctx, key); err != nil {
				return fmt.Errorf("revoke deleted %s: %w", key, err)
			}
			return nil
		}
		s.pruneDurable(ctx, cp.QueryID, cp.Timestamp)
		return nil
	})
	if err != nil {
		s.settle(key)
		s.recorder.RecordDurableFailure("enqueue")
		s.warnDurable("durable write not queued", key, err)
	}
}

func (s *Store) deleted(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tombstones[key]
	return ok
}

// settle 写入任务结束，清除该键的排队与删除标记
func (s *Store) settle(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	delete(s.tombstones, key)
}

// supervise 消费写队列的失败通道，直到队列关闭
func (s *Store) supervise(failures <-chan pool.Failure) {
	for f := range failures {
		op, _, _ := strings.Cut(f.Name, ":")
		s.recorder.RecordDurableFailure(op)
		s.warnDurable("durable write failed, running in memory-only mode for this checkpoint", f.Name, f.Err)
	}
}

// warnDurable 持久层告警限流，超出速率的降为 Debug
func (s *Store) warnDurable(msg, subject string, err error) {
	fields := []zap.Field{zap.String("subject", subject), zap.Error(err)}
	if s.warnLimiter.Allow() {
		s.logger.Warn(msg, fields...)
		return
	}
	s.logger.Debug(msg, fields...)
}

// Count 返回查询在快速层中的检查点数量
func (s *Store) Count(queryID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byQuery[queryID])
}

// Flush 等待已提交的持久层写入完成
func (s *Store) Flush(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	return s.queue.Wait(ctx)
}

// Close 关闭存储自建的写队列
func (s *Store) Close(ctx context.Context) error {
	if !s.ownsQueue {
		return s.Flush(ctx)
	}
	return s.queue.Close(ctx)
}
