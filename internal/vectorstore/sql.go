package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/internal/database"
	"github.com/BaSui01/queryflow/internal/pool"
	"github.com/BaSui01/queryflow/lifecycle"
)

// =============================================================================
// 🗄️ SQL 持久层
// =============================================================================

// SQLConfig SQL 持久层配置
type SQLConfig struct {
	// 驱动：sqlite 或 postgres
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`

	// 连接串；sqlite 为文件路径或 file::memory:
	DSN string `yaml:"dsn" json:"dsn" env:"DSN"`

	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DefaultSQLConfig 返回默认配置
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Driver:          "sqlite",
		DSN:             "queryflow.db",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// CheckpointRecord 持久层表模型
type CheckpointRecord struct {
	Key       string          `gorm:"column:checkpoint_key;primaryKey;size:512"`
	QueryID   string          `gorm:"column:query_id;index;size:255;not null"`
	Timestamp int64           `gorm:"column:ts;index;not null"`
	Phase     lifecycle.Phase `gorm:"column:phase;size:32"`
	Vector    []byte          `gorm:"column:vector"`
	Payload   []byte          `gorm:"column:payload;not null"`
	CreatedAt time.Time       `gorm:"column:created_at"`
}

// TableName 表名
func (CheckpointRecord) TableName() string {
	return "checkpoint_records"
}

// SQLStore 基于 GORM 的 checkpoint.DurableTier 实现。
// 相似检索在读出的向量上做暴力余弦计算。
type SQLStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

var _ checkpoint.DurableTier = (*SQLStore)(nil)

// writeRetries 写入事务遇到锁冲突时的最大尝试次数
const writeRetries = 3

// 检索时逐行解码向量的复用缓冲区
var vectorBuffers = pool.NewSlicePool[float64](checkpoint.EmbeddingDims)

// OpenSQL 按配置打开数据库
func OpenSQL(cfg SQLConfig, logger *zap.Logger) (*SQLStore, error) {
	pool, err := database.Open(database.PoolConfig{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(pool, logger), nil
}

// NewSQLStore 包装已打开的连接池
func NewSQLStore(pool *database.PoolManager, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "sql_store")),
	}
}

func (s *SQLStore) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

// EnsureCollection 自动迁移表结构
func (s *SQLStore) EnsureCollection(ctx context.Context) error {
	if err := s.db(ctx).AutoMigrate(&CheckpointRecord{}); err != nil {
		return fmt.Errorf("migrate checkpoint_records: %w", err)
	}
	return nil
}

// RecreateCollection 删除并重建表
func (s *SQLStore) RecreateCollection(ctx context.Context) error {
	if err := s.db(ctx).Migrator().DropTable(&CheckpointRecord{}); err != nil {
		return fmt.Errorf("drop checkpoint_records: %w", err)
	}
	s.logger.Warn("dropped checkpoint_records table")
	return s.EnsureCollection(ctx)
}

// Upsert 写入或覆盖一条记录
func (s *SQLStore) Upsert(ctx context.Context, rec checkpoint.Record) error {
	vector, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}

	row := CheckpointRecord{
		Key:       rec.Key,
		QueryID:   rec.QueryID,
		Timestamp: rec.Timestamp,
		Phase:     rec.Phase,
		Vector:    vector,
		Payload:   rec.Data,
		CreatedAt: time.Now(),
	}
	err = s.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("sql upsert %s: %w", rec.Key, err)
	}
	return nil
}

// FetchByKey 按键读取
func (s *SQLStore) FetchByKey(ctx context.Context, key string) (*checkpoint.Record, error) {
	var row CheckpointRecord
	err := s.db(ctx).Where("checkpoint_key = ?", key).First(&row).Error
	return rowToRecord(row, err)
}

// FetchLatestByQuery 读取查询时间戳最大的记录
func (s *SQLStore) FetchLatestByQuery(ctx context.Context, queryID string) (*checkpoint.Record, error) {
	var row CheckpointRecord
	err := s.db(ctx).
		Where("query_id = ?", queryID).
		Order("ts DESC").
		First(&row).Error
	return rowToRecord(row, err)
}

// ListTimestamps 列出查询的全部时间戳
func (s *SQLStore) ListTimestamps(ctx context.Context, queryID string) ([]int64, error) {
	var out []int64
	err := s.db(ctx).
		Model(&CheckpointRecord{}).
		Where("query_id = ?", queryID).
		Pluck("ts", &out).Error
	if err != nil {
		return nil, fmt.Errorf("sql list %s: %w", queryID, err)
	}
	return out, nil
}

// Delete 删除一条记录，返回记录删除前是否存在
func (s *SQLStore) Delete(ctx context.Context, key string) (bool, error) {
	var affected int64
	err := s.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		res := tx.Where("checkpoint_key = ?", key).Delete(&CheckpointRecord{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("sql delete %s: %w", key, err)
	}
	return affected > 0, nil
}

// Search 暴力余弦检索；queryID 为空时检索全部
func (s *SQLStore) Search(ctx context.Context, queryID string, vector []float64, limit int) ([]checkpoint.Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []CheckpointRecord
	tx := s.db(ctx).Select("checkpoint_key", "query_id", "ts", "vector")
	if queryID != "" {
		tx = tx.Where("query_id = ?", queryID)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sql search: %w", err)
	}

	matches := make([]checkpoint.Match, 0, len(rows))
	v := vectorBuffers.Get()
	defer func() { vectorBuffers.Put(v) }()
	for _, row := range rows {
		if err := json.Unmarshal(row.Vector, &v); err != nil || len(v) == 0 {
			continue
		}
		matches = append(matches, checkpoint.Match{
			Key:       row.Key,
			QueryID:   row.QueryID,
			Timestamp: row.Timestamp,
			Score:     checkpoint.CosineSimilarity(vector, v),
		})
	}
	return checkpoint.TopMatches(matches, limit), nil
}

// Health 检查数据库连接
func (s *SQLStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close 关闭数据库连接
func (s *SQLStore) Close() error {
	return s.pool.Close()
}

func rowToRecord(row CheckpointRecord, err error) (*checkpoint.Record, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sql fetch: %w", err)
	}

	rec := &checkpoint.Record{
		Key:       row.Key,
		QueryID:   row.QueryID,
		Timestamp: row.Timestamp,
		Phase:     row.Phase,
		Data:      row.Payload,
	}
	if len(row.Vector) > 0 {
		if err := json.Unmarshal(row.Vector, &rec.Vector); err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", row.Key, err)
		}
	}
	return rec, nil
}
