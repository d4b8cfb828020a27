// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 检查点指标
	checkpointsCreated  *prometheus.CounterVec
	checkpointCreateDur prometheus.Histogram
	checkpointSize      prometheus.Histogram
	tierLookups         *prometheus.CounterVec
	checkpointsPruned   prometheus.Counter
	durableFailures     *prometheus.CounterVec

	// 生命周期指标
	stateTransitions *prometheus.CounterVec
	pausesTotal      *prometheus.CounterVec
	resumesTotal     *prometheus.CounterVec
	resumeDuration   prometheus.Histogram

	// 写队列指标
	queuePending prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册器。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 检查点指标
	c.checkpointsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_created_total",
			Help:      "Total number of checkpoints created",
		},
		[]string{"phase"},
	)

	c.checkpointCreateDur = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_create_duration_seconds",
			Help:      "Checkpoint creation duration in seconds, excluding the durable write",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.25, 0.5, 1},
		},
	)

	c.checkpointSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_size_bytes",
			Help:      "Serialized checkpoint size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
	)

	c.tierLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_tier_lookups_total",
			Help:      "Checkpoint lookups by tier and result",
		},
		[]string{"tier", "result"}, // result: hit, miss
	)

	c.checkpointsPruned = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_pruned_total",
			Help:      "Total number of checkpoints removed by retention pruning",
		},
	)

	c.durableFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "durable_failures_total",
			Help:      "Durable tier operations that failed and were degraded to memory-only",
		},
		[]string{"operation"},
	)

	// 生命周期指标
	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of committed lifecycle transitions",
		},
		[]string{"from", "to", "action"},
	)

	c.pausesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pauses_total",
			Help:      "Pause requests by outcome",
		},
		[]string{"outcome"},
	)

	c.resumesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resumes_total",
			Help:      "Resume requests by outcome",
		},
		[]string{"outcome"},
	)

	c.resumeDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resume_duration_seconds",
			Help:      "Resume duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.queuePending = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "write_queue_pending",
			Help:      "Durable writes accepted but not yet finished",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 💾 检查点指标记录
// =============================================================================

// RecordCheckpointCreated 记录检查点创建
func (c *Collector) RecordCheckpointCreated(phase string, duration time.Duration, sizeBytes int) {
	c.checkpointsCreated.WithLabelValues(phase).Inc()
	c.checkpointCreateDur.Observe(duration.Seconds())
	c.checkpointSize.Observe(float64(sizeBytes))
}

// RecordTierLookup 记录缓存层查找
func (c *Collector) RecordTierLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.tierLookups.WithLabelValues(tier, result).Inc()
}

// RecordPruned 记录裁剪数量
func (c *Collector) RecordPruned(count int) {
	c.checkpointsPruned.Add(float64(count))
}

// RecordDurableFailure 记录持久层失败
func (c *Collector) RecordDurableFailure(op string) {
	c.durableFailures.WithLabelValues(op).Inc()
}

// SetQueuePending 设置写队列积压
func (c *Collector) SetQueuePending(n int) {
	c.queuePending.Set(float64(n))
}

// =============================================================================
// 🔄 生命周期指标记录
// =============================================================================

// RecordTransition 记录状态转换
func (c *Collector) RecordTransition(from, to, action string) {
	c.stateTransitions.WithLabelValues(from, to, action).Inc()
}

// RecordPause 记录暂停结果
func (c *Collector) RecordPause(outcome string) {
	c.pausesTotal.WithLabelValues(outcome).Inc()
}

// RecordResume 记录恢复结果与耗时
func (c *Collector) RecordResume(outcome string, duration time.Duration) {
	c.resumesTotal.WithLabelValues(outcome).Inc()
	c.resumeDuration.Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
