package render

import "image/color"

// Palette 定义帧与直方图使用的颜色。粒子颜色同时作为栅格采样的匹配色。
type Palette struct {
	Background    color.RGBA
	Static        color.RGBA
	Heavy         color.RGBA
	Light         color.RGBA
	PriceSigma    color.RGBA
	VolumeSigma   color.RGBA
	Label         color.RGBA
	HistogramUp   color.RGBA
	HistogramDown color.RGBA
	EntryUp       color.RGBA
	EntryDown     color.RGBA
}

// DefaultPalette 返回默认配色。
func DefaultPalette() Palette {
	return Palette{
		Background:    color.RGBA{A: 255},
		Static:        color.RGBA{R: 52, G: 30, B: 162, A: 255},
		Heavy:         color.RGBA{R: 0, G: 146, B: 255, A: 255},
		Light:         color.RGBA{R: 255, G: 0, B: 255, A: 255},
		PriceSigma:    color.RGBA{R: 255, G: 255, B: 0, A: 255},
		VolumeSigma:   color.RGBA{R: 0, G: 0, B: 255, A: 255},
		Label:         color.RGBA{R: 255, G: 255, B: 255, A: 255},
		HistogramUp:   color.RGBA{R: 0, G: 146, B: 255, A: 255},
		HistogramDown: color.RGBA{R: 255, G: 0, B: 255, A: 255},
		EntryUp:       color.RGBA{R: 0, G: 255, B: 100, A: 255},
		EntryDown:     color.RGBA{R: 255, G: 0, B: 0, A: 255},
	}
}
