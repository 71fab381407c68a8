package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
)

// Config 聚合了模拟运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Input      InputConfig      `mapstructure:"input"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Geometry   GeometryConfig   `mapstructure:"geometry"`
	Signal     SignalConfig     `mapstructure:"signal"`
	Output     OutputConfig     `mapstructure:"output"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment" validate:"required"`
	CodeName    string `mapstructure:"code_name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
}

// InputConfig 描述 CSV 数据源。
type InputConfig struct {
	BasePath     string `mapstructure:"base_path" validate:"required"`
	Pattern      string `mapstructure:"pattern" validate:"required"`
	DatasetLimit int    `mapstructure:"dataset_limit" validate:"gte=1"`
	WindowLength int    `mapstructure:"window_length" validate:"gte=1"`
	NewestFirst  bool   `mapstructure:"newest_first"`
}

// BatchConfig 控制批量运行的轮次与偏移。
type BatchConfig struct {
	RunLimit            int `mapstructure:"run_limit" validate:"gte=1"`
	OffsetIndexOverride int `mapstructure:"offset_index_override" validate:"gte=0"`
	SamplePeriodSize    int `mapstructure:"sample_period_size" validate:"gte=0"`
}

// SimulationConfig 描述控制容积槽的物理参数。
type SimulationConfig struct {
	WindowWidth        int     `mapstructure:"window_width" validate:"gt=0"`
	WindowHeight       int     `mapstructure:"window_height" validate:"gt=0"`
	FrameLimit         int     `mapstructure:"frame_limit" validate:"gt=0"`
	FrameRate          int     `mapstructure:"frame_rate" validate:"gte=0"`
	Substeps           int     `mapstructure:"substeps" validate:"gt=0"`
	TimeStep           float64 `mapstructure:"time_step" validate:"gt=0"`
	Iterations         int     `mapstructure:"iterations" validate:"gt=0"`
	WallWidth          float64 `mapstructure:"wall_width" validate:"gt=0"`
	ParticleBirthCount int     `mapstructure:"particle_birth_count" validate:"gte=0"`
	ParticleDiameter   float64 `mapstructure:"particle_diameter" validate:"gt=0"`
	ParticleShape      string  `mapstructure:"particle_shape" validate:"oneof=circle box"`
	Restitution        float64 `mapstructure:"restitution" validate:"gte=0"`
	Friction           float64 `mapstructure:"friction" validate:"gte=0"`
	CandleRestitution  float64 `mapstructure:"candle_restitution" validate:"gte=0"`
	CandleFriction     float64 `mapstructure:"candle_friction" validate:"gte=0"`
	Gravity            float64 `mapstructure:"gravity" validate:"gt=0"`
	RandomRotation     bool    `mapstructure:"random_rotation"`
	Seed               int64   `mapstructure:"seed"`
	SleepTime          float64 `mapstructure:"sleep_time" validate:"gte=0"`
	IdleSpeed          float64 `mapstructure:"idle_speed" validate:"gte=0"`
}

// FrameInterval 返回帧率对应的节流间隔，帧率为0时不节流。
func (s SimulationConfig) FrameInterval() time.Duration {
	if s.FrameRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(s.FrameRate)
}

// GeometryConfig 控制K线到碰撞几何体的映射。
type GeometryConfig struct {
	CandlestickWidth    float64 `mapstructure:"candlestick_width" validate:"gt=0"`
	CandleGutter        float64 `mapstructure:"candle_gutter" validate:"gte=0"`
	XOrigin             float64 `mapstructure:"x_origin"`
	PaintableLimit      float64 `mapstructure:"paintable_limit" validate:"gt=0"`
	HeightScalingFactor float64 `mapstructure:"height_scaling_factor"`
	SigmaPeriod         int     `mapstructure:"sigma_period" validate:"gte=1"`
	PriceSigmaStartY    float64 `mapstructure:"price_sigma_start_y"`
	VolumeSigmaStartY   float64 `mapstructure:"volume_sigma_start_y"`
	PriceSigmaExponent  float64 `mapstructure:"price_sigma_exponent"`
	VolumeSigmaExponent float64 `mapstructure:"volume_sigma_exponent"`
}

// SignalConfig 控制直方图采样与入场信号。
type SignalConfig struct {
	SampleSource                 string `mapstructure:"sample_source" validate:"oneof=raster bodies"`
	SampleMargin                 int    `mapstructure:"sample_margin" validate:"gte=0"`
	HighlightSigma               bool   `mapstructure:"highlight_sigma"`
	SigmaSortLow                 int    `mapstructure:"sigma_sort_low" validate:"gte=0"`
	ShowHistogramRatio           bool   `mapstructure:"show_histogram_ratio"`
	ShowHistogramStandardDev     bool   `mapstructure:"show_histogram_standard_dev"`
	HistogramStandardDevPeriod   int    `mapstructure:"histogram_standard_dev_period" validate:"gte=1"`
	ShowHistogramSimpleAverage   bool   `mapstructure:"show_histogram_simple_average"`
	HistogramSimpleAveragePeriod int    `mapstructure:"histogram_simple_average_period" validate:"gte=1"`
}

// OutputConfig 控制产物输出目录与视频编码。
type OutputConfig struct {
	FramesDir      string `mapstructure:"frames_dir" validate:"required"`
	HistogramDir   string `mapstructure:"histogram_dir" validate:"required"`
	SaveSequences  bool   `mapstructure:"save_sequences"`
	EncodeVideo    bool   `mapstructure:"encode_video"`
	FFmpegPath     string `mapstructure:"ffmpeg_path"`
	VideoFrameRate int    `mapstructure:"video_frame_rate" validate:"gt=0"`
	WriteManifest  bool   `mapstructure:"write_manifest"`
}

// DatabaseConfig 管理运行台账数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// MetricsConfig 控制 Prometheus 文本指标导出。
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
	Namespace    string `mapstructure:"namespace"`
}

// MonitorConfig 控制运行台账的 HTTP 查询接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	Verbose          bool     `mapstructure:"verbose"`
	Debug            bool     `mapstructure:"debug"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

var validate = validator.New()

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if verr := validate.Struct(c); verr != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(verr, &fieldErrs) {
			for _, fe := range fieldErrs {
				err = multierr.Append(err, fmt.Errorf("%s 不满足约束 %s(%s)", fieldKey(fe.Namespace()), fe.Tag(), fe.Param()))
			}
		} else {
			err = multierr.Append(err, verr)
		}
	}

	if c.Simulation.ParticleDiameter >= float64(c.Simulation.WindowHeight)/2 {
		err = multierr.Append(err, errors.New("simulation.particle_diameter 不应超过窗口高度的一半"))
	}
	if c.Geometry.PaintableLimit > float64(c.Simulation.WindowWidth) {
		err = multierr.Append(err, errors.New("geometry.paintable_limit 不能超过 simulation.window_width"))
	}
	if c.Geometry.HeightScalingFactor == 0 {
		err = multierr.Append(err, errors.New("geometry.height_scaling_factor 不能为0"))
	}
	if c.Signal.SampleMargin*2 >= c.Simulation.WindowHeight {
		err = multierr.Append(err, errors.New("signal.sample_margin 过大，采样区间为空"))
	}
	if c.Output.EncodeVideo && c.Output.FFmpegPath == "" {
		err = multierr.Append(err, errors.New("output.ffmpeg_path 在启用视频编码时不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Monitor.Enabled && c.Monitor.Port == 0 {
		err = multierr.Append(err, errors.New("monitor.port 在启用监控接口时不能为0"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// fieldKey 把 Config.Simulation.FrameLimit 形式的命名空间转换为配置键。
func fieldKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
