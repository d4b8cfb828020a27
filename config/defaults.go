// =============================================================================
// 📦 queryflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// EmbeddingDims 检查点嵌入维度，需与 checkpoint.EmbeddingDims 一致
const EmbeddingDims = 384

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Redis:      DefaultRedisConfig(),
		Registry:   DefaultRegistryConfig(),
		Qdrant:     DefaultQdrantConfig(),
		Database:   DefaultDatabaseConfig(),
		Durable:    DefaultDurableConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:         9091,
		MetricsNamespace: "queryflow",
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  15 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// DefaultRegistryConfig 返回默认查询注册表配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Enabled:             false,
		KeyPrefix:           "queryflow:",
		RecordTTL:           7 * 24 * time.Hour,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultQdrantConfig 返回默认 Qdrant 配置
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		URL:        "http://localhost:6333",
		APIKey:     "",
		Collection: "query_checkpoints",
		Dims:       EmbeddingDims,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "queryflow",
		Password:        "",
		Name:            "queryflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultDurableConfig 返回默认持久层配置
func DefaultDurableConfig() DurableConfig {
	return DurableConfig{
		Backend:       BackendMemory,
		Workers:       4,
		QueueSize:     256,
		WriteTimeout:  10 * time.Second,
		FailureBuffer: 64,
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		MaxPerQuery: 10,
		PerfTarget:  150 * time.Millisecond,
		PageSize:    50,
		Creator:     "queryflow",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "queryflow",
		SampleRate:   0.1,
	}
}
