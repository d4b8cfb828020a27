package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type recordedRequest struct {
	method, path string
	status       int
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method, path, status})
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler("v1.2.3", zap.NewNop())
	handler.RegisterCheck(NewCheck("broken", func(context.Context) error { return errors.New("down") }))

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	// 存活探针不执行依赖检查
	assert.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "all pass",
			checks: []HealthCheck{
				NewCheck("durable", func(context.Context) error { return nil }),
				NewCheck("registry", func(context.Context) error { return nil }),
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "one fails",
			checks: []HealthCheck{
				NewCheck("durable", func(context.Context) error { return nil }),
				NewCheck("registry", func(context.Context) error { return errors.New("connection refused") }),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler("", zap.NewNop())
			for _, c := range tt.checks {
				handler.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "fail", status.Checks["registry"].Status)
				assert.Equal(t, "connection refused", status.Checks["registry"].Message)
				assert.Equal(t, "pass", status.Checks["durable"].Status)
			}
		})
	}
}

// =============================================================================
// 🧪 路由测试
// =============================================================================

func TestNewMux_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "queryflow_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	health := NewHealthHandler("dev", zap.NewNop())
	health.RegisterCheck(NewCheck("durable", func(context.Context) error { return errors.New("down") }))
	rec := &fakeRecorder{}
	srv := httptest.NewServer(NewMux(health, reg, rec))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "queryflow_test_total 1")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []recordedRequest{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable},
	}, rec.requests)
}
