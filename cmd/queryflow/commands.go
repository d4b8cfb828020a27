package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/internal/tlsutil"
	"github.com/BaSui01/queryflow/resume"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting queryflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return 1
	}

	var watcher *config.Watcher
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, nil, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			watcher.OnReload(func(next *config.Config) {
				applyLogLevel(level, next.Log.Level, logger)
			})
		}
	}

	if err := a.run(ctx, watcher); err != nil {
		logger.Error("queryflow stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("queryflow stopped")
	return 0
}

// =============================================================================
// 🔎 check 命令
// =============================================================================

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	queryID := fs.String("query", "", "Query ID to validate")
	_ = fs.Parse(args)

	if *queryID == "" {
		fmt.Fprintln(os.Stderr, "--query is required")
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := validateQuery(ctx, cfg, logger, *queryID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Valid {
		return 1
	}
	return 0
}

// validateQuery 只打开存储层，对持久层中的最新检查点执行校验
func validateQuery(ctx context.Context, cfg *config.Config, logger *zap.Logger, queryID string) (resume.ValidationReport, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.openStorage(ctx); err != nil {
		return resume.ValidationReport{}, err
	}
	defer func() { _ = a.shutdown(context.Background()) }()

	manager := resume.NewManager(a.store, resume.WithLogger(logger))
	return manager.Coordinator().ValidateCheckpoint(ctx, queryID), nil
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

func runHealthCheck(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9091", "Server address")
	_ = fs.Parse(args)

	client := tlsutil.HTTPClient(5 * time.Second)
	resp, err := client.Get(*addr + "/ready")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("OK")
	return 0
}
