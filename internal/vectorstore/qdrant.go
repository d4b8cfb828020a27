package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/lifecycle"
)

// =============================================================================
// 🧭 Qdrant 持久层
// =============================================================================

// Payload 字段名
const (
	fieldKey        = "key"
	fieldQueryID    = "query_id"
	fieldTimestamp  = "timestamp"
	fieldPhase      = "phase"
	fieldCheckpoint = "checkpoint"
)

// healthTTL 健康检查结果缓存时间
const healthTTL = 5 * time.Second

// scrollLimit 单次滚动读取的最大点数；每个查询的保留数量远小于该值
const scrollLimit = 1024

// pointNamespace 由检查点键派生点 ID 的命名空间
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("queryflow:checkpoint"))

// QdrantConfig Qdrant 连接配置
type QdrantConfig struct {
	URL        string `yaml:"url" json:"url" env:"URL"` // 如 "http://localhost:6333"
	APIKey     string `yaml:"api_key" json:"api_key" env:"API_KEY"`
	Collection string `yaml:"collection" json:"collection" env:"COLLECTION"`
	Dims       uint64 `yaml:"dims" json:"dims" env:"DIMS"`
}

// DefaultQdrantConfig 返回默认配置
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "query_checkpoints",
		Dims:       checkpoint.EmbeddingDims,
	}
}

// QdrantStore 基于 Qdrant 的 checkpoint.DurableTier 实现
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *zap.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // *error
	healthAt    atomic.Int64 // 上次检查的 unix 纳秒
}

var _ checkpoint.DurableTier = (*QdrantStore)(nil)

// parseQdrantURL 解析主机、端口与 TLS 标志。REST 端口 6333 映射到 gRPC 端口 6334。
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("invalid qdrant url: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port in qdrant url: %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}

	return host, port, useTLS, nil
}

// NewQdrantStore 创建 Qdrant 持久层
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if cfg.Dims == 0 {
		cfg.Dims = checkpoint.EmbeddingDims
	}

	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger: logger.With(
			zap.String("component", "qdrant_store"),
			zap.String("collection", cfg.Collection),
		),
	}, nil
}

// PointID 由检查点键派生的确定性点 ID
func PointID(key string) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(key))
}

// EnsureCollection 确保集合与 payload 索引存在。CreateFieldIndex 是幂等的。
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}

	if !exists {
		m := uint64(16)
		efConstruct := uint64(128)

		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		}); err != nil {
			return fmt.Errorf("create collection %q: %w", q.collection, err)
		}
		q.logger.Info("created collection", zap.Uint64("dims", q.dims))
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{fieldQueryID, fieldPhase} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("ensure index on %q: %w", field, err)
		}
	}

	// 整数索引同时支撑按时间戳排序的滚动读取
	integerType := qdrant.FieldType_FieldTypeInteger
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      fieldTimestamp,
		FieldType:      &integerType,
	}); err != nil {
		return fmt.Errorf("ensure index on %q: %w", fieldTimestamp, err)
	}

	q.logger.Debug("payload indexes ensured")
	return nil
}

// RecreateCollection 删除并重建集合
func (q *QdrantStore) RecreateCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("delete collection %q: %w", q.collection, err)
		}
		q.logger.Warn("dropped collection")
	}
	return q.EnsureCollection(ctx)
}

// Upsert 写入或覆盖一条记录
func (q *QdrantStore) Upsert(ctx context.Context, rec checkpoint.Record) error {
	if uint64(len(rec.Vector)) != q.dims {
		return fmt.Errorf("vector has %d dims, collection expects %d", len(rec.Vector), q.dims)
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(PointID(rec.Key).String()),
			Vectors: qdrant.NewVectorsDense(toFloat32(rec.Vector)),
			Payload: qdrant.NewValueMap(recordPayload(rec)),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", rec.Key, err)
	}
	return nil
}

// FetchByKey 按键读取
func (q *QdrantStore) FetchByKey(ctx context.Context, key string) (*checkpoint.Record, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(key).String())},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get %s: %w", key, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return recordFromPayload(points[0].GetPayload())
}

// FetchLatestByQuery 读取查询时间戳最大的记录
func (q *QdrantStore) FetchLatestByQuery(ctx context.Context, queryID string) (*checkpoint.Record, error) {
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         queryFilter(queryID),
		Limit:          qdrant.PtrOf(uint32(1)),
		OrderBy: &qdrant.OrderBy{
			Key:       fieldTimestamp,
			Direction: qdrant.Direction_Desc.Enum(),
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll latest %s: %w", queryID, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return recordFromPayload(points[0].GetPayload())
}

// ListTimestamps 列出查询的全部时间戳
func (q *QdrantStore) ListTimestamps(ctx context.Context, queryID string) ([]int64, error) {
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         queryFilter(queryID),
		Limit:          qdrant.PtrOf(uint32(scrollLimit)),
		WithPayload:    qdrant.NewWithPayloadInclude(fieldTimestamp),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll %s: %w", queryID, err)
	}

	out := make([]int64, 0, len(points))
	for _, p := range points {
		if v, ok := p.GetPayload()[fieldTimestamp]; ok {
			out = append(out, v.GetIntegerValue())
		}
	}
	return out, nil
}

// Delete 删除一条记录，返回记录删除前是否存在
func (q *QdrantStore) Delete(ctx context.Context, key string) (bool, error) {
	id := qdrant.NewID(PointID(key).String())

	existing, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{id},
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant get %s: %w", key, err)
	}
	if len(existing) == 0 {
		return false, nil
	}

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{id}},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("qdrant delete %s: %w", key, err)
	}
	return true, nil
}

// Search 余弦相似检索；queryID 为空时不加过滤
func (q *QdrantStore) Search(ctx context.Context, queryID string, vector []float64, limit int) ([]checkpoint.Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(toFloat32(vector)),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayloadInclude(fieldKey, fieldQueryID, fieldTimestamp),
	}
	if queryID != "" {
		req.Filter = queryFilter(queryID)
	}

	scored, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	matches := make([]checkpoint.Match, 0, len(scored))
	for _, sp := range scored {
		payload := sp.GetPayload()
		matches = append(matches, checkpoint.Match{
			Key:       payload[fieldKey].GetStringValue(),
			QueryID:   payload[fieldQueryID].GetStringValue(),
			Timestamp: payload[fieldTimestamp].GetIntegerValue(),
			Score:     float64(sp.GetScore()),
		})
	}
	return checkpoint.TopMatches(matches, limit), nil
}

// Health 检查 Qdrant 是否可达。结果缓存 5 秒，并发调用经 singleflight 合并。
func (q *QdrantStore) Health(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < healthTTL {
		return q.loadHealthErr()
	}

	// singleflight 复用首个调用者的 ctx，这里使用独立的 ctx
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if _, err := q.client.HealthCheck(checkCtx); err != nil {
			q.storeHealthErr(fmt.Errorf("qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

func (q *QdrantStore) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantStore) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close 关闭 gRPC 连接
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func queryFilter(queryID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(fieldQueryID, queryID)},
	}
}

func recordPayload(rec checkpoint.Record) map[string]any {
	return map[string]any{
		fieldKey:        rec.Key,
		fieldQueryID:    rec.QueryID,
		fieldTimestamp:  rec.Timestamp,
		fieldPhase:      string(rec.Phase),
		fieldCheckpoint: string(rec.Data),
	}
}

func recordFromPayload(payload map[string]*qdrant.Value) (*checkpoint.Record, error) {
	key := payload[fieldKey].GetStringValue()
	if key == "" {
		return nil, fmt.Errorf("qdrant point has no %q payload", fieldKey)
	}
	data := payload[fieldCheckpoint].GetStringValue()
	if data == "" {
		return nil, fmt.Errorf("qdrant point %s has no %q payload", key, fieldCheckpoint)
	}
	return &checkpoint.Record{
		Key:       key,
		QueryID:   payload[fieldQueryID].GetStringValue(),
		Timestamp: payload[fieldTimestamp].GetIntegerValue(),
		Phase:     lifecycle.Phase(payload[fieldPhase].GetStringValue()),
		Data:      []byte(data),
	}, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
