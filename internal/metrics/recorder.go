// Package metrics 汇总模拟批次的 Prometheus 指标，并以 textfile 形式导出。
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sekisetsu/internal/config"
)

// Recorder 持有独立的 Registry，避免污染全局注册表。
type Recorder struct {
	registry *prometheus.Registry
	path     string

	runs        *prometheus.CounterVec
	frames      prometheus.Counter
	encodeFails prometheus.Counter
	entries     *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewRecorder 创建指标记录器。
func NewRecorder(cfg config.MetricsConfig) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &Recorder{
		registry: reg,
		path:     cfg.TextfilePath,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "runs_total",
			Help:      "Simulation runs grouped by final status",
		}, []string{"status"}),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frames_rendered_total",
			Help:      "Frames stepped and rasterised",
		}),
		encodeFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "encode_failures_total",
			Help:      "Failed ffmpeg encodings",
		}),
		entries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "entry_signals_total",
			Help:      "Entry signals emitted by direction",
		}, []string{"direction"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single simulation run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// ObserveRun 记录一次运行的最终状态与耗时。
func (r *Recorder) ObserveRun(status string, elapsed time.Duration) {
	r.runs.WithLabelValues(status).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// FrameRendered 累加已渲染帧数。
func (r *Recorder) FrameRendered() {
	r.frames.Inc()
}

// EncodeFailed 记录一次编码失败。
func (r *Recorder) EncodeFailed() {
	r.encodeFails.Inc()
}

// EntrySignal 按方向累加入场信号。
func (r *Recorder) EntrySignal(direction string) {
	r.entries.WithLabelValues(direction).Inc()
}

// Gatherer 暴露内部注册表。
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile 将当前指标写入 node_exporter textfile；未配置路径时跳过。
func (r *Recorder) WriteTextfile() error {
	if r.path == "" {
		return nil
	}
	if dir := filepath.Dir(r.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建指标目录失败: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(r.path, r.registry); err != nil {
		return fmt.Errorf("写入指标文件失败: %w", err)
	}
	return nil
}
