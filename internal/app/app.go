package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sekisetsu/internal/artifact"
	"sekisetsu/internal/batch"
	"sekisetsu/internal/config"
	"sekisetsu/internal/market"
	"sekisetsu/internal/metrics"
	"sekisetsu/internal/monitor"
	"sekisetsu/internal/physics"
	"sekisetsu/internal/store"
)

const eventBuffer = 16

// App 聚合核心依赖并驱动批量模拟。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	recorder *metrics.Recorder
	events   chan Event

	run      artifact.CommandRunner
	newWorld physics.Factory
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		recorder: metrics.NewRecorder(cfg.Metrics),
		events:   make(chan Event, eventBuffer),
	}
}

// Post 向当前运行投递交互事件，队列已满时丢弃并返回 false。
func (a *App) Post(ev Event) bool {
	select {
	case a.events <- ev:
		return true
	default:
		a.logger.Warn("交互事件队列已满，丢弃事件", zap.Stringer("event", ev.Kind))
		return false
	}
}

// Run 发现数据集并顺序执行全部模拟，收到退出信号时在当前运行结束后返回。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("控制容积槽已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("code_name", a.cfg.App.CodeName),
		zap.String("version", a.cfg.App.Version),
	)

	monitorSvc, err := monitor.NewService(ctx, a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}
	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(ctx, monitorSvc, a.recorder, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	paths, err := market.Discover(a.cfg.Input.BasePath, a.cfg.Input.Pattern, a.cfg.Input.DatasetLimit)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		a.logger.Warn("未找到数据文件", zap.String("base_path", a.cfg.Input.BasePath), zap.String("pattern", a.cfg.Input.Pattern))
		return nil
	}

	jobs := batch.Schedule(paths, a.cfg.Batch)
	a.logger.Info("批量运行开始", zap.Strings("datasets", paths), zap.Int("jobs", len(jobs)))

	orch := newOrchestrator(orchestratorConfig{
		cfg:      a.cfg,
		monitor:  monitorSvc,
		metrics:  a.recorder,
		events:   a.events,
		run:      a.run,
		newWorld: a.newWorld,
	}, a.logger)

	engine, err := batch.NewEngine(batch.NewSliceJobProvider(jobs), orch, a.logger)
	if err != nil {
		return err
	}

	result, runErr := engine.Run(ctx)
	if err := a.recorder.WriteTextfile(); err != nil {
		a.logger.Warn("导出指标失败", zap.Error(err))
	}

	s := result.Summary
	a.logger.Info("批量运行结束",
		zap.Int("completed", s.Completed),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int("frames", s.Frames),
		zap.Int("up", s.Up),
		zap.Int("down", s.Down),
		zap.Float64("bias", s.Bias),
		zap.Duration("elapsed", s.Elapsed),
	)

	if runErr != nil {
		return fmt.Errorf("批量运行失败: %w", runErr)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	return nil
}
