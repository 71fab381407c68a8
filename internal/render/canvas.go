// Package render 使用 fogleman/gg 绘制模拟帧与失衡直方图。
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"sekisetsu/internal/config"
	"sekisetsu/internal/geometry"
	"sekisetsu/internal/signal"
	"sekisetsu/internal/tank"
)

const (
	labelX = 10
	labelY = 695

	ratioBaseline     = 100
	averageBaseline   = 80
	deviationBaseline = 125
)

// Frame 为一帧需要绘制的全部内容。
type Frame struct {
	Statics     []geometry.CollisionBox
	Particles   []tank.ParticleState
	PriceSigma  []geometry.SigmaSegment
	VolumeSigma []geometry.SigmaSegment
	Label       string
}

// Canvas 为一块可重复使用的绘制表面。
type Canvas struct {
	dc      *gg.Context
	palette Palette
}

// NewCanvas 创建 width x height 的画布。
func NewCanvas(width, height int, palette Palette) *Canvas {
	return &Canvas{dc: gg.NewContext(width, height), palette: palette}
}

// Width 返回画布宽度。
func (c *Canvas) Width() int { return c.dc.Width() }

// Height 返回画布高度。
func (c *Canvas) Height() int { return c.dc.Height() }

// DrawFrame 清空画布并依次绘制静态体、粒子、标准差折线与标签。
// 粒子按像素方块绘制且不做抗锯齿，保证颜色可被精确匹配。
func (c *Canvas) DrawFrame(f Frame) {
	dc := c.dc
	dc.SetColor(c.palette.Background)
	dc.Clear()

	dc.SetLineWidth(1)
	dc.SetColor(c.palette.Static)
	for _, b := range f.Statics {
		c.strokeBox(b)
	}

	for _, p := range f.Particles {
		if p.Class == tank.Heavy {
			dc.SetColor(c.palette.Heavy)
		} else {
			dc.SetColor(c.palette.Light)
		}
		x0, y0, size := p.Footprint()
		for x := x0; x < x0+size; x++ {
			for y := y0; y < y0+size; y++ {
				dc.SetPixel(x, y)
			}
		}
	}

	c.strokeSegments(f.PriceSigma, c.palette.PriceSigma)
	c.strokeSegments(f.VolumeSigma, c.palette.VolumeSigma)

	if f.Label != "" {
		dc.SetColor(c.palette.Label)
		dc.DrawStringAnchored(f.Label, labelX, labelY, 0, 1)
	}
}

func (c *Canvas) strokeBox(b geometry.CollisionBox) {
	hw, hh := b.Width/2, b.Height/2
	sin, cos := math.Sincos(b.Rotation)
	corners := [4][2]float64{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
	for i, p := range corners {
		x := b.CenterX + p[0]*cos - p[1]*sin
		y := b.CenterY + p[0]*sin + p[1]*cos
		if i == 0 {
			c.dc.MoveTo(x, y)
		} else {
			c.dc.LineTo(x, y)
		}
	}
	c.dc.ClosePath()
	c.dc.Stroke()
}

func (c *Canvas) strokeSegments(segments []geometry.SigmaSegment, col color.Color) {
	if len(segments) == 0 {
		return
	}
	c.dc.SetColor(col)
	for _, s := range segments {
		c.dc.DrawLine(s.From.X, s.From.Y, s.To.X, s.To.Y)
		c.dc.Stroke()
	}
}

// DrawHistogram 在当前画面上叠加失衡比曲线、统计线与入场线。
func (c *Canvas) DrawHistogram(result signal.Result, opts config.SignalConfig) {
	c.dc.SetLineWidth(1)
	if opts.ShowHistogramRatio {
		c.polyline(result.Heavy, ratioBaseline, c.palette.HistogramUp)
		c.polyline(result.Light, ratioBaseline, c.palette.HistogramDown)
	}
	if opts.ShowHistogramSimpleAverage {
		c.polyline(result.Overlays.HeavyAverage, averageBaseline, c.palette.HistogramUp)
		c.polyline(result.Overlays.LightAverage, averageBaseline, c.palette.HistogramDown)
	}
	if opts.HighlightSigma {
		for _, e := range result.Entries {
			col := c.palette.EntryUp
			if e.Direction == signal.DirectionDown {
				col = c.palette.EntryDown
			}
			c.dc.SetColor(col)
			c.dc.DrawLine(e.X, e.StartY, e.X, e.Depth)
			c.dc.Stroke()
		}
	}
	if opts.ShowHistogramStandardDev {
		c.polyline(result.Overlays.HeavyDeviation, deviationBaseline, c.palette.HistogramUp)
		c.polyline(result.Overlays.LightDeviation, deviationBaseline, c.palette.HistogramDown)
	}
}

// polyline 以列号为横坐标绘制 baseline + v·π。
func (c *Canvas) polyline(values []float64, baseline float64, col color.Color) {
	if len(values) < 2 {
		return
	}
	c.dc.SetColor(col)
	for x := 1; x < len(values); x++ {
		c.dc.DrawLine(float64(x-1), baseline+values[x-1]*math.Pi, float64(x), baseline+values[x]*math.Pi)
		c.dc.Stroke()
	}
}

// Image 返回画布底层图像，后续绘制会修改它。
func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

// SavePNG 将画布写入 PNG 文件。
func (c *Canvas) SavePNG(path string) error {
	if err := c.dc.SavePNG(path); err != nil {
		return fmt.Errorf("保存图像 %s 失败: %w", path, err)
	}
	return nil
}
