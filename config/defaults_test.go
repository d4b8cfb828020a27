package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// --- 默认配置测试 ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultRegistryConfig(), cfg.Registry)
	assert.Equal(t, DefaultQdrantConfig(), cfg.Qdrant)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
	assert.Equal(t, DefaultDurableConfig(), cfg.Durable)
	assert.Equal(t, DefaultCheckpointConfig(), cfg.Checkpoint)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 9091, cfg.HTTPPort)
	assert.Equal(t, "queryflow", cfg.MetricsNamespace)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultRegistryConfig(t *testing.T) {
	cfg := DefaultRegistryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "queryflow:", cfg.KeyPrefix)
	assert.Equal(t, 7*24*time.Hour, cfg.RecordTTL)
}

func TestDefaultQdrantConfig(t *testing.T) {
	cfg := DefaultQdrantConfig()
	assert.Equal(t, "http://localhost:6333", cfg.URL)
	assert.Equal(t, "query_checkpoints", cfg.Collection)
	assert.Equal(t, uint64(384), cfg.Dims)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "queryflow.db", cfg.Name)
	assert.Equal(t, "queryflow.db", cfg.DSN())
}

func TestDefaultDurableConfig(t *testing.T) {
	cfg := DefaultDurableConfig()
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 64, cfg.FailureBuffer)
}

func TestDefaultCheckpointConfig(t *testing.T) {
	cfg := DefaultCheckpointConfig()
	assert.Equal(t, 10, cfg.MaxPerQuery)
	assert.Equal(t, 150*time.Millisecond, cfg.PerfTarget)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "queryflow", cfg.Creator)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "queryflow", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
