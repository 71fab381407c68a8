// Package signal 从最终帧中恢复每列的轻重粒子失衡，并与低波动K线求交得到入场信号。
package signal

import (
	"image"
	"image/color"

	"sekisetsu/internal/tank"
)

// ImbalanceSample 为单列的重/轻粒子计数。
type ImbalanceSample struct {
	Column int
	Heavy  int
	Light  int
}

// Ratios 返回加一平滑后的失衡比对：
// heavy = -(重+1)/(轻+1)，light = (轻+1)/(重+1)。空列为 (-1, 1)。
func (s ImbalanceSample) Ratios() (heavy, light float64) {
	h := float64(s.Heavy) + 1
	l := float64(s.Light) + 1
	return -h / l, l / h
}

// Sampler 产出每列一个 ImbalanceSample。
type Sampler interface {
	Sample(frame image.Image, particles []tank.ParticleState) []ImbalanceSample
}

// RasterSampler 按像素颜色精确匹配计数，跳过上下 Margin 行。
type RasterSampler struct {
	Heavy  color.RGBA
	Light  color.RGBA
	Margin int
}

// Sample 扫描 frame 的每一列，particles 参数被忽略。
func (r RasterSampler) Sample(frame image.Image, _ []tank.ParticleState) []ImbalanceSample {
	if frame == nil {
		return nil
	}
	bounds := frame.Bounds()
	samples := make([]ImbalanceSample, bounds.Dx())

	rgba, fast := frame.(*image.RGBA)
	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		sample := ImbalanceSample{Column: x - bounds.Min.X}
		for y := bounds.Min.Y + r.Margin; y < bounds.Max.Y-r.Margin; y++ {
			var c color.RGBA
			if fast {
				c = rgba.RGBAAt(x, y)
			} else {
				c = color.RGBAModel.Convert(frame.At(x, y)).(color.RGBA)
			}
			switch {
			case sameRGB(c, r.Heavy):
				sample.Heavy++
			case sameRGB(c, r.Light):
				sample.Light++
			}
		}
		samples[x-bounds.Min.X] = sample
	}
	return samples
}

func sameRGB(a, b color.RGBA) bool {
	return a.R == b.R && a.G == b.G && a.B == b.B
}

// BodySampler 直接按粒子刚体位置计数，每个粒子贡献其像素方块在采样带内的面积。
type BodySampler struct {
	Width  int
	Height int
	Margin int
}

// Sample 统计 particles，frame 参数被忽略。
// 重叠粒子会重复计数，栅格采样中被覆盖的像素只计一次。
func (b BodySampler) Sample(_ image.Image, particles []tank.ParticleState) []ImbalanceSample {
	if b.Width <= 0 {
		return nil
	}
	samples := make([]ImbalanceSample, b.Width)
	for i := range samples {
		samples[i].Column = i
	}

	top, bottom := b.Margin, b.Height-b.Margin
	for _, p := range particles {
		x0, y0, size := p.Footprint()
		rows := overlap(y0, y0+size, top, bottom)
		if rows == 0 {
			continue
		}
		for x := x0; x < x0+size; x++ {
			if x < 0 || x >= b.Width {
				continue
			}
			if p.Class == tank.Heavy {
				samples[x].Heavy += rows
			} else {
				samples[x].Light += rows
			}
		}
	}
	return samples
}

func overlap(a0, a1, b0, b1 int) int {
	lo, hi := max(a0, b0), min(a1, b1)
	if hi <= lo {
		return 0
	}
	return hi - lo
}
