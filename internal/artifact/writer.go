// Package artifact 负责模拟产物的目录布局、清单文件与视频编码。
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sekisetsu/internal/config"
)

// RunKey 标识一次运行的产物。
type RunKey struct {
	Dataset     string
	Offset      int
	Permutation int
	SigmaPeriod int
}

// stem 返回 <dataset>_<offset3>_sig<P>。
func (k RunKey) stem() string {
	return fmt.Sprintf("%s_%03d_sig%d", k.Dataset, k.Offset, k.SigmaPeriod)
}

// Manifest 记录单次运行的参数与结果。
type Manifest struct {
	RunID       string          `yaml:"run_id"`
	Dataset     string          `yaml:"dataset"`
	Offset      int             `yaml:"offset"`
	Permutation int             `yaml:"permutation"`
	SigmaPeriod int             `yaml:"sigma_period"`
	Seed        int64           `yaml:"seed"`
	Frames      int             `yaml:"frames"`
	Particles   int             `yaml:"particles"`
	Lowest      float64         `yaml:"lowest"`
	Highest     float64         `yaml:"highest"`
	StartedAt   time.Time       `yaml:"started_at"`
	FinishedAt  time.Time       `yaml:"finished_at"`
	Histogram   string          `yaml:"histogram"`
	Entries     []ManifestEntry `yaml:"entries"`
}

// ManifestEntry 为清单中的一条入场信号。
type ManifestEntry struct {
	BarIndex  int     `yaml:"bar_index"`
	Column    int     `yaml:"column"`
	Label     string  `yaml:"label,omitempty"`
	Direction string  `yaml:"direction"`
	Depth     float64 `yaml:"depth"`
	Heavy     float64 `yaml:"heavy_ratio"`
	Light     float64 `yaml:"light_ratio"`
}

// Writer 计算产物路径，并在写入前按需创建目录。
type Writer struct {
	cfg    config.OutputConfig
	app    config.AppConfig
	logger *zap.Logger
}

// NewWriter 创建 Writer。
func NewWriter(cfg config.OutputConfig, app config.AppConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{cfg: cfg, app: app, logger: logger}
}

// FramesDir 返回数据集的帧序列目录。
func (w *Writer) FramesDir(dataset string) string {
	return filepath.Join(w.cfg.FramesDir, dataset)
}

// FramePath 返回第 frame 帧的 PNG 路径并确保目录存在。
func (w *Writer) FramePath(dataset string, frame int) (string, error) {
	dir := w.FramesDir(dataset)
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%03d.png", w.app.CodeName, frame)), nil
}

// SequenceVideoPath 返回帧序列编码后的 GIF 路径。
func (w *Writer) SequenceVideoPath(key RunKey) string {
	return filepath.Join(w.cfg.FramesDir, key.stem()+".gif")
}

// HistogramDir 返回 <histogram_dir>/<code>_<version>/<dataset>_<offset>_sig<P>。
func (w *Writer) HistogramDir(key RunKey) string {
	return filepath.Join(w.cfg.HistogramDir, w.app.CodeName+"_"+w.app.Version, key.stem())
}

// HistogramPath 返回直方图 PNG 路径并确保目录存在。
func (w *Writer) HistogramPath(key RunKey) (string, error) {
	dir := w.HistogramDir(key)
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%03d_%03d_sig%d.png", key.Dataset, key.Offset, key.Permutation, key.SigmaPeriod)
	return filepath.Join(dir, name), nil
}

// HistogramVideoPath 返回同一偏移所有直方图合成的 GIF 路径。
func (w *Writer) HistogramVideoPath(key RunKey) string {
	return filepath.Join(w.HistogramDir(key), key.stem()+".gif")
}

// WriteManifest 将清单写为 YAML，返回文件路径。
func (w *Writer) WriteManifest(key RunKey, manifest Manifest) (string, error) {
	dir := w.HistogramDir(key)
	if err := ensureDir(dir); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("序列化运行清单失败: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%03d_%03d_sig%d.yaml", key.Dataset, key.Offset, key.Permutation, key.SigmaPeriod))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("写入运行清单失败: %w", err)
	}
	w.logger.Debug("运行清单已写入", zap.String("path", path))
	return path, nil
}

// ReadManifest 读取 YAML 清单。
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("读取运行清单失败: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("解析运行清单失败: %w", err)
	}
	return m, nil
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
