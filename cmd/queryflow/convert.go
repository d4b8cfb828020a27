package main

import (
	"fmt"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/internal/pool"
	"github.com/BaSui01/queryflow/internal/server"
	"github.com/BaSui01/queryflow/internal/vectorstore"
)

// =============================================================================
// 🔁 配置转换
// =============================================================================

func cacheConfig(cfg *config.Config) cache.Config {
	return cache.Config{
		Addr:                cfg.Redis.Addr,
		Password:            cfg.Redis.Password,
		DB:                  cfg.Redis.DB,
		KeyPrefix:           cfg.Registry.KeyPrefix,
		DefaultTTL:          cfg.Registry.RecordTTL,
		MaxRetries:          cfg.Redis.MaxRetries,
		PoolSize:            cfg.Redis.PoolSize,
		MinIdleConns:        cfg.Redis.MinIdleConns,
		TLS:                 cfg.Redis.TLS,
		HealthCheckInterval: cfg.Registry.HealthCheckInterval,
	}
}

func vectorstoreOptions(cfg *config.Config) vectorstore.Options {
	return vectorstore.Options{
		Backend: cfg.Durable.Backend,
		Qdrant: vectorstore.QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dims:       cfg.Qdrant.Dims,
		},
		SQL: vectorstore.SQLConfig{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		},
	}
}

func queueConfig(cfg config.DurableConfig) pool.QueueConfig {
	return pool.QueueConfig{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		TaskTimeout:   cfg.WriteTimeout,
		FailureBuffer: cfg.FailureBuffer,
	}
}

func serverConfig(cfg config.ServerConfig) server.Config {
	sc := server.DefaultConfig()
	sc.Addr = fmt.Sprintf(":%d", cfg.HTTPPort)
	sc.ReadTimeout = cfg.ReadTimeout
	sc.WriteTimeout = cfg.WriteTimeout
	sc.ShutdownTimeout = cfg.ShutdownTimeout
	return sc
}

func storeOptions(cfg config.CheckpointConfig) []checkpoint.Option {
	return []checkpoint.Option{
		checkpoint.WithMaxPerQuery(cfg.MaxPerQuery),
		checkpoint.WithPerfTarget(cfg.PerfTarget),
		checkpoint.WithPageSize(cfg.PageSize),
		checkpoint.WithCreator(cfg.Creator),
	}
}
