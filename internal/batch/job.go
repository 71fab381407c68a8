// Package batch 按数据集、偏移与轮次顺序驱动模拟运行。
package batch

import (
	"context"
	"fmt"

	"sekisetsu/internal/config"
	"sekisetsu/internal/market"
)

// Job 描述一次模拟运行的输入。
type Job struct {
	Path        string // CSV 文件路径
	Dataset     string // 文件名去掉扩展名
	Offset      int    // 从最新一端跳过的K线数量
	Permutation int    // 所在轮次
}

func (j Job) String() string {
	return fmt.Sprintf("%s@%d#%d", j.Dataset, j.Offset, j.Permutation)
}

// JobProvider 按顺序提供运行任务。
type JobProvider interface {
	Next(ctx context.Context) (Job, bool, error)
}

// SliceJobProvider 以固定序列提供任务。
type SliceJobProvider struct {
	jobs  []Job
	index int
}

func NewSliceJobProvider(jobs []Job) *SliceJobProvider {
	return &SliceJobProvider{jobs: jobs}
}

func (p *SliceJobProvider) Next(ctx context.Context) (Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, false, err
	}
	if p.index >= len(p.jobs) {
		return Job{}, false, nil
	}
	job := p.jobs[p.index]
	p.index++
	return job, true, nil
}

// Schedule 展开全部任务：run_limit 轮 × 数据集 × 偏移序列。
// sample_period_size 为 N 时每个数据集运行 N+1 次；offset_index_override 非零时偏移从该值向前递减。
func Schedule(paths []string, cfg config.BatchConfig) []Job {
	passes := max(cfg.RunLimit, 1)
	lookback := max(cfg.SamplePeriodSize, 0)

	jobs := make([]Job, 0, passes*len(paths)*(lookback+1))
	for pass := 0; pass < passes; pass++ {
		for _, path := range paths {
			for i := 0; i <= lookback; i++ {
				jobs = append(jobs, Job{
					Path:        path,
					Dataset:     market.DatasetName(path),
					Offset:      offsetFor(cfg, i),
					Permutation: pass,
				})
			}
		}
	}
	return jobs
}

func offsetFor(cfg config.BatchConfig, i int) int {
	offset := 0
	if cfg.SamplePeriodSize > 0 {
		offset = i
	}
	if cfg.OffsetIndexOverride != 0 {
		offset = cfg.OffsetIndexOverride - i
	}
	return offset
}
