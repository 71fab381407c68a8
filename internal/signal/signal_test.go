package signal

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sekisetsu/internal/config"
	"sekisetsu/internal/geometry"
	"sekisetsu/internal/physics"
	"sekisetsu/internal/tank"
)

var (
	heavyColor = color.RGBA{R: 0, G: 146, B: 255, A: 255}
	lightColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

func TestImbalanceSample_Ratios(t *testing.T) {
	heavy, light := ImbalanceSample{}.Ratios()
	assert.Equal(t, -1.0, heavy)
	assert.Equal(t, 1.0, light)

	heavy, light = ImbalanceSample{Heavy: 3, Light: 1}.Ratios()
	assert.Equal(t, -2.0, heavy)
	assert.Equal(t, 0.5, light)
}

func TestTopK(t *testing.T) {
	assert.Equal(t, []int{2, 4}, TopK([]float64{5, 1, 9, 3, 7}, 2))
	assert.Equal(t, []int{1, 2}, TopK([]float64{1, 3, 3, 2}, 2))
	assert.Equal(t, []int{1, 0}, TopK([]float64{1, 2}, 40))
	assert.Nil(t, TopK([]float64{1, 2}, 0))
	assert.Nil(t, TopK(nil, 3))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, DirectionUp, Compare(-2, 0.5))
	assert.Equal(t, DirectionDown, Compare(-0.5, 2))
	assert.Equal(t, DirectionNone, Compare(-1, 1))
	assert.Equal(t, "none", DirectionNone.String())
}

func TestRasterSampler_CountsExactColorsInsideBand(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 40))
	img.SetRGBA(1, 20, heavyColor)
	img.SetRGBA(1, 21, heavyColor)
	img.SetRGBA(1, 22, lightColor)
	img.SetRGBA(2, 5, heavyColor)                                 // 位于上边距内
	img.SetRGBA(2, 25, color.RGBA{R: 0, G: 146, B: 254, A: 255}) // 颜色不完全相同

	samples := RasterSampler{Heavy: heavyColor, Light: lightColor, Margin: 12}.Sample(img, nil)
	require.Len(t, samples, 4)
	assert.Equal(t, ImbalanceSample{Column: 1, Heavy: 2, Light: 1}, samples[1])
	assert.Equal(t, ImbalanceSample{Column: 2}, samples[2])

	heavy, light := samples[0].Ratios()
	assert.Equal(t, -1.0, heavy)
	assert.Equal(t, 1.0, light)
}

func TestRasterSampler_GenericImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 30))
	img.Set(0, 15, heavyColor)
	samples := RasterSampler{Heavy: heavyColor, Light: lightColor, Margin: 12}.Sample(img, nil)
	assert.Equal(t, 1, samples[0].Heavy)
}

func TestBodySampler_MatchesRaster(t *testing.T) {
	particles := []tank.ParticleState{
		{Class: tank.Heavy, Diameter: 2, Position: physics.Vec{X: 5, Y: 20}},
		{Class: tank.Light, Diameter: 2, Position: physics.Vec{X: 9, Y: 30}},
		{Class: tank.Light, Diameter: 2, Position: physics.Vec{X: 9, Y: 12}}, // 跨越上边距
		{Class: tank.Heavy, Diameter: 2, Position: physics.Vec{X: 0, Y: 25}}, // 左侧越界
	}

	img := image.NewRGBA(image.Rect(0, 0, 16, 48))
	for _, p := range particles {
		x0, y0, size := p.Footprint()
		c := heavyColor
		if p.Class == tank.Light {
			c = lightColor
		}
		for x := x0; x < x0+size; x++ {
			for y := y0; y < y0+size; y++ {
				img.SetRGBA(x, y, c)
			}
		}
	}

	raster := RasterSampler{Heavy: heavyColor, Light: lightColor, Margin: 12}.Sample(img, nil)
	bodies := BodySampler{Width: 16, Height: 48, Margin: 12}.Sample(nil, particles)
	assert.Equal(t, raster, bodies)
	assert.Equal(t, 2, bodies[4].Heavy)
	assert.Equal(t, 3, bodies[8].Light)
}

func TestAnalyzer_FlagsEntriesOnStagnantColumns(t *testing.T) {
	depths := []float64{5, 1, 9, 3, 7}
	terrain := geometry.Terrain{XOrigin: 10, Advance: 4}
	prev := geometry.Point{Y: 900}
	for i, d := range depths {
		x := terrain.CandleX(i)
		cur := geometry.Point{X: x, Y: d}
		terrain.PriceSigma = append(terrain.PriceSigma, geometry.SigmaSegment{From: prev, To: cur, BarIndex: i})
		terrain.VolumeSigma = append(terrain.VolumeSigma, geometry.SigmaSegment{
			From: geometry.Point{X: x - 4, Y: 850 - float64(i)}, To: geometry.Point{X: x, Y: 849 - float64(i)}, BarIndex: i,
		})
		prev = cur
	}

	samples := make([]ImbalanceSample, 40)
	for i := range samples {
		samples[i].Column = i
	}
	samples[18] = ImbalanceSample{Column: 18, Heavy: 9, Light: 1} // bar 2
	samples[26] = ImbalanceSample{Column: 26, Heavy: 0, Light: 4} // bar 4

	cfg := config.SignalConfig{SigmaSortLow: 2, HistogramSimpleAveragePeriod: 9, HistogramStandardDevPeriod: 7}
	result := NewAnalyzer(cfg, nil).Analyze(terrain, samples)

	assert.Equal(t, []int{2, 4}, result.Selected)
	require.Len(t, result.Entries, 2)

	up := result.Entries[0]
	assert.Equal(t, DirectionUp, up.Direction)
	assert.Equal(t, 2, up.BarIndex)
	assert.Equal(t, 18, up.Column)
	assert.Equal(t, 9.0, up.Depth)
	assert.Equal(t, 848.0, up.StartY)
	assert.Equal(t, -5.0, up.HeavyRatio)

	down := result.Entries[1]
	assert.Equal(t, DirectionDown, down.Direction)
	assert.Equal(t, 26, down.Column)

	assert.Len(t, result.Overlays.HeavyAverage, 40)
	assert.Len(t, result.Overlays.LightDeviation, 40)
	// 全部为 (-1, 1) 的区段标准差为0
	assert.Equal(t, 0.0, result.Overlays.HeavyDeviation[5])
	assert.InDelta(t, -1.0, result.Overlays.HeavyAverage[10], 1e-9)
}

func TestAnalyzer_TieProducesNoEntry(t *testing.T) {
	terrain := geometry.Terrain{
		XOrigin:    1,
		Advance:    1,
		PriceSigma: []geometry.SigmaSegment{{To: geometry.Point{X: 1, Y: 10}}},
	}
	samples := []ImbalanceSample{{Column: 0}, {Column: 1, Heavy: 2, Light: 2}}

	result := NewAnalyzer(config.SignalConfig{SigmaSortLow: 40, HistogramSimpleAveragePeriod: 9, HistogramStandardDevPeriod: 7}, nil).
		Analyze(terrain, samples)
	assert.Equal(t, []int{0}, result.Selected)
	assert.Empty(t, result.Entries)
}
