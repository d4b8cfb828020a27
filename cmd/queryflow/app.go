package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/queryflow/checkpoint"
	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/internal/pool"
	"github.com/BaSui01/queryflow/internal/server"
	"github.com/BaSui01/queryflow/internal/telemetry"
	"github.com/BaSui01/queryflow/internal/vectorstore"
	"github.com/BaSui01/queryflow/resume"
)

// queueSampleInterval 写队列积压指标的采样间隔
const queueSampleInterval = 5 * time.Second

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 持有 serve 进程的全部组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector

	cache        *cache.Manager
	durable      checkpoint.DurableTier
	closeDurable func() error
	queue        *pool.Queue
	store        *checkpoint.Store
	manager      *resume.Manager

	health *server.HealthHandler
	http   *server.Manager
}

// newApp 按配置装配组件。失败时已打开的资源会被释放。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{
		cfg:          cfg,
		logger:       logger,
		registry:     prometheus.NewRegistry(),
		closeDurable: func() error { return nil },
	}
	defer func() {
		if err != nil {
			_ = a.shutdown(context.Background())
		}
	}()

	a.telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		// 遥测不可用不阻止启动
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.telemetry = nil
		err = nil
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(cfg.Server.MetricsNamespace, a.registry, logger)

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	managerOpts := []resume.Option{
		resume.WithLogger(logger),
		resume.WithRecorder(a.collector),
		resume.WithSink(resume.NewLogSink(logger)),
		resume.WithRecordTTL(cfg.Registry.RecordTTL),
	}
	if cfg.Registry.Enabled {
		a.cache, err = cache.NewManager(cacheConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		managerOpts = append(managerOpts, resume.WithRegistry(a.cache))
	}
	a.manager = resume.NewManager(a.store, managerOpts...)

	a.health = server.NewHealthHandler(Version, logger)
	if a.durable != nil {
		a.health.RegisterCheck(server.NewCheck("durable_"+cfg.Durable.Backend, a.durable.Health))
	}
	if a.cache != nil {
		a.health.RegisterCheck(server.NewCheck("registry", a.cache.Ping))
	}
	a.http = server.NewManager(server.NewMux(a.health, a.registry, a.collector), serverConfig(cfg.Server), logger)

	return a, nil
}

// openStorage 打开持久层、写队列与检查点存储
func (a *app) openStorage(ctx context.Context) error {
	tier, closeFn, err := vectorstore.Open(ctx, vectorstoreOptions(a.cfg), a.logger)
	if err != nil {
		return fmt.Errorf("durable tier: %w", err)
	}
	a.durable = tier
	a.closeDurable = closeFn

	opts := append(storeOptions(a.cfg.Checkpoint),
		checkpoint.WithLogger(a.logger),
	)
	if a.collector != nil {
		opts = append(opts, checkpoint.WithRecorder(a.collector))
	}
	if tier != nil {
		a.queue = pool.NewQueue(queueConfig(a.cfg.Durable), a.logger)
		opts = append(opts, checkpoint.WithDurable(tier), checkpoint.WithWriteQueue(a.queue))
	}
	a.store = checkpoint.NewStore(opts...)
	return nil
}

// run 启动 HTTP 服务并阻塞到 ctx 取消或服务出错，然后优雅关闭
func (a *app) run(ctx context.Context, watcher *config.Watcher) error {
	if err := a.http.Start(); err != nil {
		_ = a.shutdown(context.Background())
		return fmt.Errorf("http server: %w", err)
	}

	a.logger.Info("queryflow started",
		zap.String("addr", a.http.Addr()),
		zap.String("durable_backend", a.cfg.Durable.Backend),
		zap.Bool("registry", a.cache != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-a.http.Errors():
			return fmt.Errorf("http server: %w", err)
		}
	})
	g.Go(func() error {
		a.sampleQueue(gctx)
		return nil
	})
	if watcher != nil {
		if err := watcher.Start(gctx); err != nil {
			a.logger.Warn("config watcher not started", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

func (a *app) sampleQueue(ctx context.Context) {
	if a.queue == nil {
		return
	}
	ticker := time.NewTicker(queueSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.collector.SetQueuePending(a.queue.Stats().Pending)
		}
	}
}

// shutdown 按依赖逆序释放：HTTP → 存储与写队列 → 持久层 → 注册表 → 遥测
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint store: %w", err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("write queue: %w", err))
		}
	}
	if a.closeDurable != nil {
		if err := a.closeDurable(); err != nil {
			errs = append(errs, fmt.Errorf("durable tier: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("registry: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}
