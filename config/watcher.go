// 配置文件变更监听器实现。
//
// 轮询配置文件修改时间，变更稳定后重新加载并通知订阅者。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 监听器类型定义 ---

// Watcher 监听单个配置文件，文件变更后重新加载配置
type Watcher struct {
	mu sync.Mutex

	path     string
	loader   *Loader
	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger

	callbacks []func(*Config)
	lastMod   time.Time

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// --- 监听器选项 ---

// WatcherOption 配置 Watcher
type WatcherOption func(*Watcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounceDelay 设置防抖时长，文件在该时长内不再变化才会重载
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 监听器实现 ---

// NewWatcher 创建配置监听器。loader 为 nil 时使用 NewLoader()，
// 其配置路径被替换为 path。
func NewWatcher(path string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watcher: path is required")
	}
	if loader == nil {
		loader = NewLoader()
	}
	loader.WithConfigPath(path)

	w := &Watcher{
		path:     path,
		loader:   loader,
		interval: time.Second,
		debounce: 200 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
		}
		w.logger.Warn("config file does not exist, will watch for creation",
			zap.String("path", path))
	}
	return w, nil
}

// OnReload 注册重载回调，回调在监听 goroutine 中串行执行
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start 开始监听，ctx 取消或 Stop 后退出
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("config watcher already running")
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.lastMod = w.modTime()

	go w.loop(ctx, w.stop, w.done)

	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop 停止监听并等待 goroutine 退出
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("config watcher stopped")
}

// IsRunning 是否正在监听
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var dueAt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			mod := w.modTime()
			if !mod.Equal(w.lastMod) {
				w.lastMod = mod
				dueAt = now.Add(w.debounce)
				continue
			}
			if !dueAt.IsZero() && !now.Before(dueAt) {
				dueAt = time.Time{}
				w.reload()
			}
		}
	}
}

// modTime 文件不存在时返回零值
func (w *Watcher) modTime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		// 保留旧配置
		w.logger.Warn("config reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.String("path", w.path))
	for _, cb := range callbacks {
		cb(cfg)
	}
}
