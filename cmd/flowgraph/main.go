// =============================================================================
// flowgraph 命令行入口
// =============================================================================
// 图定义文件工具,包含校验、试运行、Prometheus 指标
//
// 使用方法:
//
//	flowgraph validate --definition flow.yaml        # 校验定义文件
//	flowgraph run --definition flow.yaml             # 试运行
//	flowgraph run --definition flow.yaml --config config.yaml
//	flowgraph run --definition flow.yaml --watch     # 文件变更时重跑
//	flowgraph version                                # 显示版本信息
//
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flowgraph/flowgraph/config"
	"github.com/flowgraph/flowgraph/internal/metrics"
	"github.com/flowgraph/flowgraph/persistence"
	"github.com/flowgraph/flowgraph/workflow"
	"github.com/google/uuid"
)

// =============================================================================
// 📦 版本信息(构建时注入)
// =============================================================================

var (
	Version   = "dev"
	GitCommit = "unknown"
)

// metricsAddr 是 /metrics 端点的监听地址
const metricsAddr = ":2112"

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "run":
		os.Exit(runDryRun(os.Args[2:]))
	case "version":
		fmt.Printf("flowgraph %s (commit %s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`flowgraph - workflow graph definition tool

Usage:
  flowgraph validate --definition <file>   Validate a graph definition
  flowgraph run      --definition <file>   Dry-run a graph definition
                     [--config <file>]     Optional YAML configuration
                     [--watch]             Re-run on definition changes
  flowgraph version                        Print version information`)
}

// =============================================================================
// 🔍 validate 子命令
// =============================================================================

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	defPath := fs.String("definition", "", "graph definition file (YAML or JSON)")
	_ = fs.Parse(args)

	if *defPath == "" {
		fmt.Fprintln(os.Stderr, "validate: --definition is required")
		return 1
	}

	def, err := workflow.LoadFromFile(*defPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		return 1
	}
	if err := def.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		return 1
	}

	fmt.Printf("definition %q is valid: %d nodes, %d edges\n",
		def.Name, len(def.Nodes), len(def.Edges))
	return 0
}

// =============================================================================
// 🚀 run 子命令(试运行)
// =============================================================================

func runDryRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	defPath := fs.String("definition", "", "graph definition file (YAML or JSON)")
	cfgPath := fs.String("config", "", "configuration file (YAML)")
	timeout := fs.Duration("timeout", 30*time.Second, "dry-run timeout")
	watch := fs.Bool("watch", false, "re-run whenever the definition file changes")
	_ = fs.Parse(args)

	if *defPath == "" {
		fmt.Fprintln(os.Stderr, "run: --definition is required")
		return 1
	}

	loader := config.NewLoader()
	if *cfgPath != "" {
		loader = loader.WithConfigPath(*cfgPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: failed to load config: %v\n", err)
		return 1
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: failed to build logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// 可选的 Prometheus 指标端口
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer, logger)
		go serveMetrics(logger)
	}

	runOnce := func() int {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		return dryRunOnce(ctx, cfg, logger, collector, *defPath)
	}

	code := runOnce()
	if !*watch {
		return code
	}
	return watchLoop(logger, *defPath, runOnce)
}

// dryRunOnce 加载定义、构建图并完整执行一次试运行
func dryRunOnce(ctx context.Context, cfg *config.Config, logger *zap.Logger, collector *metrics.Collector, defPath string) int {
	def, err := workflow.LoadFromFile(defPath)
	if err != nil {
		logger.Error("failed to load definition", zap.Error(err))
		return 1
	}

	// 试运行:每个节点都使用转发逻辑,把上下文沿所有出边传播。
	// 定义中引用的任何运行逻辑名都会解析到同一个转发函数。
	registry := workflow.RunRegistry{}
	for _, nd := range def.Nodes {
		if nd.Run != "" {
			registry[nd.Run] = forwardRun
		}
	}

	g, err := def.Build(ctx, workflow.GraphConfig{
		Name:               def.Name,
		Logger:             logger,
		Metrics:            collector,
		DefaultConcurrency: cfg.Engine.DefaultConcurrency,
		QueueWarnDepth:     cfg.Engine.QueueWarnDepth,
	}, registry)
	if err != nil {
		logger.Error("failed to build graph", zap.Error(err))
		return 1
	}

	history := workflow.NewExecutionHistory(uuid.New().String(), g.ID())
	runCtx := workflow.WithStreamEmitter(ctx, workflow.NewHistoryRecorder(history))

	runErr := g.Run(runCtx, map[string]any{"dry_run": true})
	if waitErr := waitForIdle(ctx, g); waitErr != nil {
		logger.Error("dry run did not drain in time", zap.Error(waitErr))
		return 1
	}
	history.Complete(runErr)

	if cfg.History.Enabled {
		if err := saveHistory(ctx, cfg, history); err != nil {
			logger.Warn("failed to persist history", zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Error("dry run failed", zap.Error(runErr))
		return 1
	}

	logger.Info("dry run completed",
		zap.String("graph", g.Name()),
		zap.Int("node_executions", history.NodeCount()),
		zap.Duration("duration", history.Duration))
	return 0
}

// newDefinitionWatcher 监听定义文件,变更时触发重新运行
func newDefinitionWatcher(logger *zap.Logger, path string, rerun func(), opts ...config.WatcherOption) (*config.FileWatcher, error) {
	watcherOpts := append([]config.WatcherOption{config.WithWatcherLogger(logger)}, opts...)
	w, err := config.NewFileWatcher([]string{path}, watcherOpts...)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(ev config.FileEvent) {
		if ev.Op == config.FileOpRemove {
			logger.Warn("definition file removed", zap.String("path", ev.Path))
			return
		}
		logger.Info("definition changed, re-running", zap.String("path", ev.Path), zap.String("op", ev.Op.String()))
		rerun()
	})
	return w, nil
}

// watchLoop 阻塞监听定义文件直到收到终止信号
func watchLoop(logger *zap.Logger, path string, rerun func() int) int {
	w, err := newDefinitionWatcher(logger, path, func() { _ = rerun() })
	if err != nil {
		logger.Error("failed to create definition watcher", zap.Error(err))
		return 1
	}
	if err := w.Start(context.Background()); err != nil {
		logger.Error("failed to start definition watcher", zap.Error(err))
		return 1
	}
	defer func() { _ = w.Stop() }()

	logger.Info("watching definition for changes", zap.String("path", path))
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return 0
}

// forwardRun 将上下文转发到节点的所有出边
func forwardRun(ctx context.Context, rc *workflow.RunContext) error {
	for _, e := range rc.Node.Outgoing() {
		if err := rc.Output.Queue(e); err != nil {
			return err
		}
	}
	return nil
}

// waitForIdle 轮询等待所有节点排空
func waitForIdle(ctx context.Context, g *workflow.Graph) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if g.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// saveHistory 按配置将执行历史写入持久化存储
func saveHistory(ctx context.Context, cfg *config.Config, h *workflow.ExecutionHistory) error {
	storeCfg := persistence.StoreConfig{
		Type: persistence.StoreType(cfg.History.Backend),
		Redis: persistence.RedisStoreConfig{
			Host:      cfg.History.Redis.Host,
			Port:      cfg.History.Redis.Port,
			Password:  cfg.History.Redis.Password,
			DB:        cfg.History.Redis.DB,
			PoolSize:  cfg.History.Redis.PoolSize,
			KeyPrefix: cfg.History.Redis.KeyPrefix,
		},
		Retention: cfg.History.Retention,
	}
	store, err := persistence.NewHistoryStore(storeCfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.SaveHistory(ctx, h)
}

// serveMetrics 在独立端口暴露 Prometheus 指标
func serveMetrics(logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics server listening", zap.String("addr", metricsAddr))
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
