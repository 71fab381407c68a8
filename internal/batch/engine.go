package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sekisetsu/internal/market"
)

// Outcome 为单次运行的结果摘要。
type Outcome struct {
	Job       Job
	RunID     string
	Seed      int64
	Frames    int
	Up        int
	Down      int
	Histogram string
	Elapsed   time.Duration
	Err       error
}

// Entries 返回入场信号总数。
func (o Outcome) Entries() int {
	return o.Up + o.Down
}

// Runner 执行一次模拟。
type Runner interface {
	Run(ctx context.Context, job Job) (Outcome, error)
}

// RunnerFunc 允许使用函数作为 Runner。
type RunnerFunc func(ctx context.Context, job Job) (Outcome, error)

func (f RunnerFunc) Run(ctx context.Context, job Job) (Outcome, error) {
	if f == nil {
		return Outcome{}, errors.New("batch: runner 未实现")
	}
	return f(ctx, job)
}

// Result 汇总整个批次。
type Result struct {
	Summary  Summary
	Outcomes []Outcome
}

// Engine 串联任务源与运行器，运行严格串行。
type Engine struct {
	provider JobProvider
	runner   Runner
	logger   *zap.Logger
}

// NewEngine 构建批次引擎。
func NewEngine(provider JobProvider, runner Runner, logger *zap.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("batch: provider 不能为空")
	}
	if runner == nil {
		return nil, fmt.Errorf("batch: runner 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{provider: provider, runner: runner, logger: logger}, nil
}

// Run 依次执行全部任务。
// 上下文取消时停止并返回已完成的结果；其他错误只终止当前任务，批次继续。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	var outcomes []Outcome
	for {
		job, ok, err := e.provider.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return e.result(outcomes), err
		}
		if !ok {
			break
		}

		started := time.Now()
		outcome, err := e.runner.Run(ctx, job)
		outcome.Job = job
		if outcome.Elapsed == 0 {
			outcome.Elapsed = time.Since(started)
		}

		if err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			switch {
			case market.IsInputFormat(err):
				e.logger.Warn("数据格式错误，跳过本次运行", zap.Stringer("job", job), zap.Error(err))
				continue
			case errors.Is(err, context.Canceled):
				e.logger.Info("运行被取消", zap.Stringer("job", job))
				return e.result(outcomes), nil
			default:
				e.logger.Warn("运行失败，继续下一任务", zap.Stringer("job", job), zap.Error(err))
				continue
			}
		}

		outcomes = append(outcomes, outcome)
		e.logger.Info("运行完成",
			zap.Stringer("job", job),
			zap.Int("frames", outcome.Frames),
			zap.Int("entries", outcome.Entries()),
			zap.Duration("elapsed", outcome.Elapsed),
		)
	}

	return e.result(outcomes), nil
}

func (e *Engine) result(outcomes []Outcome) Result {
	return Result{Summary: summarize(outcomes), Outcomes: outcomes}
}
