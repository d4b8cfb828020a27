package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- 测试辅助 ---

func writeConfig(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

type levelCollector struct {
	mu     sync.Mutex
	levels []string
}

func (c *levelCollector) add(cfg *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels = append(c.levels, cfg.Log.Level)
}

func (c *levelCollector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.levels...)
}

// --- Watcher 测试 ---

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("", nil)
	assert.Error(t, err)
}

func TestNewWatcher_MissingFileIsAllowed(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "later.yaml"), nil, WithWatcherLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.False(t, w.IsRunning())
}

func TestWatcher_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: info\n", time.Now().Add(-time.Hour))

	w, err := NewWatcher(path, nil, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(context.Background()))

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "log:\n  level: info\n", base)

	w, err := NewWatcher(path, nil,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(0),
	)
	require.NoError(t, err)

	collector := &levelCollector{}
	w.OnReload(collector.add)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeConfig(t, path, "log:\n  level: debug\n", base.Add(time.Minute))

	require.Eventually(t, func() bool {
		levels := collector.snapshot()
		return len(levels) == 1 && levels[0] == "debug"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_InvalidConfigKeepsOld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "log:\n  level: info\n", base)

	w, err := NewWatcher(path, nil,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(0),
	)
	require.NoError(t, err)

	collector := &levelCollector{}
	w.OnReload(collector.add)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeConfig(t, path, "log:\n  level: shouting\n", base.Add(time.Minute))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, collector.snapshot())

	writeConfig(t, path, "log:\n  level: warn\n", base.Add(2*time.Minute))
	require.Eventually(t, func() bool {
		levels := collector.snapshot()
		return len(levels) == 1 && levels[0] == "warn"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: info\n", time.Now())

	w, err := NewWatcher(path, nil, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	// 循环已退出，Stop 不会阻塞
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancel")
	}
}
