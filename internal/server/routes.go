package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// 🧭 路由
// =============================================================================

// RequestRecorder 记录 HTTP 请求指标，由 metrics.Collector 实现
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// NewMux 注册 /health、/ready 与 /metrics。gatherer 为 nil 时使用默认注册器；
// rec 为 nil 时不记录请求指标。
func NewMux(health *HealthHandler, gatherer prometheus.Gatherer, rec RequestRecorder) *http.ServeMux {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/health", instrument("/health", rec, http.HandlerFunc(health.HandleHealth)))
	mux.Handle("/healthz", instrument("/healthz", rec, http.HandlerFunc(health.HandleHealth)))
	mux.Handle("/ready", instrument("/ready", rec, http.HandlerFunc(health.HandleReady)))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// statusWriter 捕获响应状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument 用固定的 path 标签记录请求，避免标签基数膨胀
func instrument(path string, rec RequestRecorder, next http.Handler) http.Handler {
	if rec == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		rec.RecordHTTPRequest(r.Method, path, sw.status, time.Since(start))
	})
}
