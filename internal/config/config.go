package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "cvt"
)

// flagKeys 将命令行参数映射到配置键。
var flagKeys = map[string]string{
	"sigma_period":                "geometry.sigma_period",
	"highlight_sigma":             "signal.highlight_sigma",
	"show_histo_ratio":            "signal.show_histogram_ratio",
	"show_histo_sd":               "signal.show_histogram_standard_dev",
	"histo_sd_period":             "signal.histogram_standard_dev_period",
	"show_histo_simple_average":   "signal.show_histogram_simple_average",
	"histo_simple_average_period": "signal.histogram_simple_average_period",
	"sigma_sort_low":              "signal.sigma_sort_low",
	"offset_index_override":       "batch.offset_index_override",
	"sample_period_size":          "batch.sample_period_size",
	"verbose":                     "logging.verbose",
	"debug":                       "logging.debug",
	"seed":                        "simulation.seed",
}

// NewFlagSet 声明可在命令行覆盖的配置项。
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "配置文件路径，默认使用 configs/config.yaml")
	fs.IntP("sigma_period", "p", 17, "计算标准差使用的K线周期")
	fs.BoolP("highlight_sigma", "s", true, "从低 sigma 区域向图表顶部绘制入场线")
	fs.Bool("show_histo_ratio", true, "绘制直方图比例线")
	fs.Bool("show_histo_sd", false, "绘制直方图的标准差线")
	fs.Int("histo_sd_period", 7, "直方图标准差周期")
	fs.Bool("show_histo_simple_average", false, "绘制直方图的简单均线")
	fs.Int("histo_simple_average_period", 9, "直方图简单均线周期")
	fs.Int("sigma_sort_low", 40, "用于高亮的最低 sigma 样本数量")
	fs.Int("offset_index_override", 0, "从数据集末尾回退的起始K线索引")
	fs.Int("sample_period_size", 0, "连续模拟的偏移数量，配合 offset_index_override 使用")
	fs.BoolP("verbose", "v", false, "输出运行过程说明")
	fs.BoolP("debug", "d", false, "输出调试信息")
	fs.Int64("seed", 0, "粒子初始旋转的随机种子，0 表示按时间生成")
	return fs
}

// Load 读取配置文件并结合环境变量、命令行参数返回 Config。
// fs 可以为 nil；配置文件不存在时使用默认值。
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 返回仅由默认值构成的配置，便于测试与嵌入。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		panic(fmt.Sprintf("默认配置无法解析: %v", err))
	}
	return &cfg
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("绑定命令行参数 %s 失败: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.code_name", "star_eyes")
	v.SetDefault("app.version", "14.0")

	v.SetDefault("input.base_path", "csv")
	v.SetDefault("input.pattern", "*.csv")
	v.SetDefault("input.dataset_limit", 1)
	v.SetDefault("input.window_length", 315)
	v.SetDefault("input.newest_first", true)

	v.SetDefault("batch.run_limit", 1)
	v.SetDefault("batch.offset_index_override", 0)
	v.SetDefault("batch.sample_period_size", 0)

	v.SetDefault("simulation.window_width", 1280)
	v.SetDefault("simulation.window_height", 720)
	v.SetDefault("simulation.frame_limit", 200)
	v.SetDefault("simulation.frame_rate", 24)
	v.SetDefault("simulation.substeps", 4)
	v.SetDefault("simulation.time_step", 0.25)
	v.SetDefault("simulation.iterations", 20)
	v.SetDefault("simulation.wall_width", 2.0)
	v.SetDefault("simulation.particle_birth_count", 1280)
	v.SetDefault("simulation.particle_diameter", 2.0)
	v.SetDefault("simulation.particle_shape", "circle")
	v.SetDefault("simulation.restitution", 0.1)
	v.SetDefault("simulation.friction", 0.1)
	v.SetDefault("simulation.candle_restitution", 2.0)
	v.SetDefault("simulation.candle_friction", 1.0)
	v.SetDefault("simulation.gravity", 1.0)
	v.SetDefault("simulation.random_rotation", true)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.sleep_time", 30.0)
	v.SetDefault("simulation.idle_speed", 0.002)

	v.SetDefault("geometry.candlestick_width", 3.0)
	v.SetDefault("geometry.candle_gutter", 1.0)
	v.SetDefault("geometry.x_origin", 10.0)
	v.SetDefault("geometry.paintable_limit", 1268.0)
	v.SetDefault("geometry.height_scaling_factor", 1.1)
	v.SetDefault("geometry.sigma_period", 17)
	v.SetDefault("geometry.price_sigma_start_y", 900.0)
	v.SetDefault("geometry.volume_sigma_start_y", 850.0)
	v.SetDefault("geometry.price_sigma_exponent", 4.0)
	v.SetDefault("geometry.volume_sigma_exponent", 2.5)

	v.SetDefault("signal.sample_source", "raster")
	v.SetDefault("signal.sample_margin", 12)
	v.SetDefault("signal.highlight_sigma", true)
	v.SetDefault("signal.sigma_sort_low", 40)
	v.SetDefault("signal.show_histogram_ratio", true)
	v.SetDefault("signal.show_histogram_standard_dev", false)
	v.SetDefault("signal.histogram_standard_dev_period", 7)
	v.SetDefault("signal.show_histogram_simple_average", false)
	v.SetDefault("signal.histogram_simple_average_period", 9)

	v.SetDefault("output.frames_dir", "simulations")
	v.SetDefault("output.histogram_dir", "histograms")
	v.SetDefault("output.save_sequences", true)
	v.SetDefault("output.encode_video", true)
	v.SetDefault("output.ffmpeg_path", "ffmpeg")
	v.SetDefault("output.video_frame_rate", 30)
	v.SetDefault("output.write_manifest", true)

	v.SetDefault("database.path", "data/cvt_runs.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("metrics.namespace", "cvt")

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 8089)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.verbose", false)
	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
