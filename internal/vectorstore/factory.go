package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/checkpoint"
)

// 持久层后端
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
	BackendSQL    = "sql"
)

// Options 打开持久层所需的配置
type Options struct {
	Backend string
	Qdrant  QdrantConfig
	SQL     SQLConfig
}

// Open 按后端创建持久层并确保集合存在。
// BackendNone 返回 nil 持久层，检查点存储将只使用快速层。
// 返回的 close 函数总是非 nil。
func Open(ctx context.Context, opts Options, logger *zap.Logger) (checkpoint.DurableTier, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }

	var (
		tier    checkpoint.DurableTier
		closeFn = noop
	)

	switch opts.Backend {
	case BackendNone, "":
		logger.Info("durable tier disabled, running memory-only")
		return nil, noop, nil
	case BackendMemory:
		tier = checkpoint.NewMemoryDurable()
	case BackendQdrant:
		q, err := NewQdrantStore(opts.Qdrant, logger)
		if err != nil {
			return nil, noop, err
		}
		tier, closeFn = q, q.Close
	case BackendSQL:
		s, err := OpenSQL(opts.SQL, logger)
		if err != nil {
			return nil, noop, err
		}
		tier, closeFn = s, s.Close
	default:
		return nil, noop, fmt.Errorf("unknown durable backend: %q", opts.Backend)
	}

	if err := tier.EnsureCollection(ctx); err != nil {
		_ = closeFn()
		return nil, noop, fmt.Errorf("prepare %s durable tier: %w", opts.Backend, err)
	}

	logger.Info("durable tier ready", zap.String("backend", opts.Backend))
	return tier, closeFn, nil
}
