// Package geometry 将价格窗口转换为静态碰撞地形与标准差折线。
package geometry

import (
	"go.uber.org/zap"

	"sekisetsu/internal/config"
	"sekisetsu/internal/market"
	"sekisetsu/internal/stats"
)

// Point 为屏幕坐标点。
type Point struct {
	X float64
	Y float64
}

// CollisionBox 为一个静态矩形碰撞体，坐标为中心点。
type CollisionBox struct {
	Width    float64
	Height   float64
	CenterX  float64
	CenterY  float64
	Rotation float64
	BarIndex int // 对应窗口内的K线索引，墙体为 -1
}

// SigmaSegment 为标准差折线中从上一点到当前点的一段。
type SigmaSegment struct {
	From     Point
	To       Point
	BarIndex int
}

// Depth 返回当前点的 Y 值，越大表示波动越小。
func (s SigmaSegment) Depth() float64 {
	return s.To.Y
}

// Terrain 汇总一次运行的静态地形与标准差折线。
type Terrain struct {
	Boxes       []CollisionBox
	PriceSigma  []SigmaSegment
	VolumeSigma []SigmaSegment
	Scale       ScaleFunction
	XOrigin     float64 // 第一根K线的中心横坐标
	Advance     float64 // 相邻K线的横向间距 (宽度+间隔)
}

// CandleX 返回第 index 根K线的中心横坐标。
func (t Terrain) CandleX(index int) float64 {
	return t.XOrigin + float64(index)*t.Advance
}

// TallestBox 返回最高的K线碰撞体，地形为空时返回 false。
func (t Terrain) TallestBox() (CollisionBox, bool) {
	if len(t.Boxes) == 0 {
		return CollisionBox{}, false
	}
	best := t.Boxes[0]
	for _, b := range t.Boxes[1:] {
		if b.Height > best.Height {
			best = b
		}
	}
	return best, true
}

// Builder 根据几何配置构建地形。
type Builder struct {
	cfg          config.GeometryConfig
	windowHeight float64
	logger       *zap.Logger
}

// NewBuilder 创建 Builder。
func NewBuilder(cfg config.GeometryConfig, windowHeight float64, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, windowHeight: windowHeight, logger: logger}
}

// Build 依次为每根K线生成碰撞体与标准差折线段。
// 横坐标达到可绘制上限后的K线被跳过。
func (b *Builder) Build(window market.PriceWindow) Terrain {
	scale := NewScaleFunction(window.Lowest, window.Highest, b.windowHeight, b.cfg.HeightScalingFactor)
	advance := b.cfg.CandlestickWidth + b.cfg.CandleGutter

	terrain := Terrain{
		Boxes:       make([]CollisionBox, 0, window.Len()),
		PriceSigma:  make([]SigmaSegment, 0, window.Len()),
		VolumeSigma: make([]SigmaSegment, 0, window.Len()),
		Scale:       scale,
		XOrigin:     b.cfg.XOrigin,
		Advance:     advance,
	}

	series := window.Series()
	priceAmp := stats.Amplification(b.cfg.PriceSigmaExponent)
	volumeAmp := stats.Amplification(b.cfg.VolumeSigmaExponent)

	prevPrice := Point{X: 0, Y: b.cfg.PriceSigmaStartY}
	prevVolume := Point{X: 0, Y: b.cfg.VolumeSigmaStartY}

	x := b.cfg.XOrigin
	for i, bar := range window.Bars {
		if x >= b.cfg.PaintableLimit {
			b.logger.Debug("K线超出可绘制区域，已跳过", zap.Int("index", i), zap.Float64("x", x))
			break
		}

		high := scale.Apply(bar.High)
		low := scale.Apply(bar.Low)
		height := high - low
		centerY := height/2 + low
		if height < 0 {
			height = -height
		}

		terrain.Boxes = append(terrain.Boxes, CollisionBox{
			Width:    b.cfg.CandlestickWidth,
			Height:   height,
			CenterX:  x,
			CenterY:  centerY,
			BarIndex: i,
		})

		priceDev := stats.StandardDeviation(stats.Lookback(series.Close, i, b.cfg.SigmaPeriod)) * priceAmp
		current := Point{X: x, Y: b.cfg.PriceSigmaStartY - priceDev}
		terrain.PriceSigma = append(terrain.PriceSigma, SigmaSegment{From: prevPrice, To: current, BarIndex: i})
		prevPrice = current

		volumeDev := stats.StandardDeviation(stats.Lookback(series.Volume, i, b.cfg.SigmaPeriod)) * volumeAmp
		currentVol := Point{X: x, Y: b.cfg.VolumeSigmaStartY - volumeDev}
		terrain.VolumeSigma = append(terrain.VolumeSigma, SigmaSegment{From: prevVolume, To: currentVol, BarIndex: i})
		prevVolume = currentVol

		x += advance
	}

	b.logger.Debug("地形构建完成",
		zap.String("dataset", window.Dataset),
		zap.Int("boxes", len(terrain.Boxes)),
		zap.Float64("lowest", window.Lowest),
		zap.Float64("highest", window.Highest),
	)

	return terrain
}
