package signal

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"sekisetsu/internal/config"
	"sekisetsu/internal/geometry"
	"sekisetsu/internal/stats"
)

// histogramSigmaExponent 为失衡比标准差叠加线的放大指数。
const histogramSigmaExponent = 2

// Direction 为入场方向。
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "none"
	}
}

// Entry 为一个被标记的入场列。
type Entry struct {
	BarIndex   int
	Column     int
	X          float64
	Depth      float64 // 价格标准差折线在该K线的 Y 值
	StartY     float64 // 成交量折线在该K线的起点 Y 值
	HeavyRatio float64
	LightRatio float64
	Direction  Direction
}

// Overlays 为仅用于显示的失衡比统计线，按列对齐。
type Overlays struct {
	HeavyAverage   []float64
	LightAverage   []float64
	HeavyDeviation []float64
	LightDeviation []float64
}

// Result 汇总一次分析。
type Result struct {
	Samples  []ImbalanceSample
	Heavy    []float64 // 每列 heavy 比值
	Light    []float64 // 每列 light 比值
	Selected []int     // 深度最大的 K 根K线索引，按排名顺序
	Entries  []Entry
	Overlays Overlays
}

// Analyzer 将标准差折线与失衡采样合并为入场信号。
type Analyzer struct {
	cfg    config.SignalConfig
	logger *zap.Logger
}

// NewAnalyzer 创建 Analyzer。
func NewAnalyzer(cfg config.SignalConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

// Analyze 选出最平稳的 sigma_sort_low 根K线，并按该列的失衡方向标记入场。
// |heavy| 与 |light| 相等时不产生信号。
func (a *Analyzer) Analyze(terrain geometry.Terrain, samples []ImbalanceSample) Result {
	result := Result{
		Samples: samples,
		Heavy:   make([]float64, len(samples)),
		Light:   make([]float64, len(samples)),
	}
	for i, s := range samples {
		result.Heavy[i], result.Light[i] = s.Ratios()
	}

	depths := make([]float64, len(terrain.PriceSigma))
	for i, seg := range terrain.PriceSigma {
		depths[i] = seg.Depth()
	}
	result.Selected = TopK(depths, a.cfg.SigmaSortLow)

	for _, bar := range result.Selected {
		seg := terrain.PriceSigma[bar]
		column := int(terrain.CandleX(seg.BarIndex))
		if column < 0 || column >= len(samples) {
			a.logger.Debug("入场列超出采样范围", zap.Int("bar", bar), zap.Int("column", column))
			continue
		}

		heavy, light := result.Heavy[column], result.Light[column]
		entry := Entry{
			BarIndex:   seg.BarIndex,
			Column:     column,
			X:          seg.To.X,
			Depth:      seg.To.Y,
			StartY:     seg.To.Y,
			HeavyRatio: heavy,
			LightRatio: light,
			Direction:  Compare(heavy, light),
		}
		if bar < len(terrain.VolumeSigma) {
			entry.StartY = terrain.VolumeSigma[bar].From.Y
		}
		if entry.Direction == DirectionNone {
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	result.Overlays = Overlays{
		HeavyAverage:   stats.SimpleMovingAverage(result.Heavy, a.cfg.HistogramSimpleAveragePeriod),
		LightAverage:   stats.SimpleMovingAverage(result.Light, a.cfg.HistogramSimpleAveragePeriod),
		HeavyDeviation: deviationOverlay(result.Heavy, a.cfg.HistogramStandardDevPeriod),
		LightDeviation: deviationOverlay(result.Light, a.cfg.HistogramStandardDevPeriod),
	}

	a.logger.Debug("失衡分析完成",
		zap.Int("columns", len(samples)),
		zap.Int("selected", len(result.Selected)),
		zap.Int("entries", len(result.Entries)),
	)
	return result
}

// Compare 比较两侧比值的绝对值。
func Compare(heavy, light float64) Direction {
	h, l := math.Abs(heavy), math.Abs(light)
	switch {
	case h > l:
		return DirectionUp
	case l > h:
		return DirectionDown
	default:
		return DirectionNone
	}
}

// TopK 返回 values 中最大的 k 个元素的索引，按值从大到小；值相同时索引小者在前。
func TopK(values []float64, k int) []int {
	if k <= 0 || len(values) == 0 {
		return nil
	}
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return values[idx[i]] > values[idx[j]]
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

func deviationOverlay(values []float64, period int) []float64 {
	out := stats.RollingStandardDeviation(values, period)
	scale := -stats.Amplification(histogramSigmaExponent)
	for i := range out {
		out[i] *= scale
	}
	return out
}
