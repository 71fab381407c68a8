package geometry

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sekisetsu/internal/config"
	"sekisetsu/internal/market"
)

func testGeometryConfig() config.GeometryConfig {
	return config.GeometryConfig{
		CandlestickWidth:    3,
		CandleGutter:        1,
		XOrigin:             10,
		PaintableLimit:      1268,
		HeightScalingFactor: 1,
		SigmaPeriod:         17,
		PriceSigmaStartY:    900,
		VolumeSigmaStartY:   850,
		PriceSigmaExponent:  4,
		VolumeSigmaExponent: 2.5,
	}
}

func TestScaleFunction_Inverted(t *testing.T) {
	scale := NewScaleFunction(100, 110, 100, 1)

	if got := scale.Apply(100); got != 100 {
		t.Errorf("scale(100) expected 100, got %v", got)
	}
	if got := scale.Apply(110); got != 0 {
		t.Errorf("scale(110) expected 0, got %v", got)
	}
	if got := scale.Apply(105); math.Abs(got-50) > 1e-9 {
		t.Errorf("scale(105) expected 50, got %v", got)
	}
	if got := scale.Apply(102.5); math.Abs(got-75) > 1e-9 {
		t.Errorf("scale(102.5) expected 75, got %v", got)
	}
	if scale.Apply(90) != 100 || scale.Apply(120) != 0 {
		t.Errorf("out of range prices should clamp")
	}
}

func TestBuild_XAdvance(t *testing.T) {
	bars := make([]market.PriceBar, 20)
	for i := range bars {
		bars[i] = market.PriceBar{Open: 105, High: 106, Low: 104, Close: 105, Volume: 10}
	}
	window := market.PriceWindow{Bars: bars, Lowest: 100, Highest: 110}

	terrain := NewBuilder(testGeometryConfig(), 100, nil).Build(window)
	if len(terrain.Boxes) != 20 {
		t.Fatalf("expected 20 boxes, got %d", len(terrain.Boxes))
	}
	for n, box := range terrain.Boxes {
		want := 10 + float64(n)*(3+1)
		if box.CenterX != want {
			t.Errorf("box %d: expected x %v, got %v", n, want, box.CenterX)
		}
		if terrain.CandleX(n) != want {
			t.Errorf("CandleX(%d) mismatch", n)
		}
	}

	want := CollisionBox{Width: 3, Height: 20, CenterX: 10, CenterY: 50, BarIndex: 0}
	if diff := cmp.Diff(want, terrain.Boxes[0]); diff != "" {
		t.Errorf("first box mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_PaintableLimitSkipsBars(t *testing.T) {
	cfg := testGeometryConfig()
	cfg.PaintableLimit = 30
	bars := make([]market.PriceBar, 10)
	for i := range bars {
		bars[i] = market.PriceBar{High: 106, Low: 104, Close: 105, Volume: 1}
	}

	terrain := NewBuilder(cfg, 100, nil).Build(market.PriceWindow{Bars: bars, Lowest: 100, Highest: 110})
	// x = 10,14,18,22,26 < 30
	if len(terrain.Boxes) != 5 || len(terrain.PriceSigma) != 5 {
		t.Fatalf("expected 5 painted bars, got %d boxes %d segments", len(terrain.Boxes), len(terrain.PriceSigma))
	}
}

func TestBuild_SigmaChainIsContinuous(t *testing.T) {
	bars := make([]market.PriceBar, 30)
	for i := range bars {
		c := 105 + float64(i%3)
		bars[i] = market.PriceBar{High: c + 1, Low: c - 1, Close: c, Volume: float64(100 + i%4)}
	}
	terrain := NewBuilder(testGeometryConfig(), 720, nil).Build(market.PriceWindow{Bars: bars, Lowest: 100, Highest: 110})

	first := terrain.PriceSigma[0]
	if diff := cmp.Diff(Point{X: 0, Y: 900}, first.From); diff != "" {
		t.Errorf("price chain should start at (0,900): %s", diff)
	}
	// 单值窗口的标准差为0
	if first.To.Y != 900 {
		t.Errorf("first depth expected 900, got %v", first.To.Y)
	}
	if terrain.VolumeSigma[0].From.Y != 850 {
		t.Errorf("volume chain should start at 850")
	}
	for i := 1; i < len(terrain.PriceSigma); i++ {
		if terrain.PriceSigma[i].From != terrain.PriceSigma[i-1].To {
			t.Fatalf("segment %d does not continue the previous one", i)
		}
		if terrain.VolumeSigma[i].From != terrain.VolumeSigma[i-1].To {
			t.Fatalf("volume segment %d does not continue the previous one", i)
		}
	}
}

func TestBuild_DipScenario(t *testing.T) {
	const rows = 315
	const dipRow = 150

	var b strings.Builder
	for i := 0; i < rows; i++ {
		high, low, close := 105.2, 104.8, 105.0
		if i == dipRow {
			low, close = 100.4, 101.0
		}
		fmt.Fprintf(&b, "2018.08.17,12:00,105.0,%.1f,%.1f,%.1f,100\n", high, low, close)
	}
	path := filepath.Join(t.TempDir(), "dip.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	loader := market.NewLoader(config.InputConfig{WindowLength: rows, NewestFirst: true}, nil)
	window, err := loader.Load(path, 0)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cfg := testGeometryConfig()
	cfg.HeightScalingFactor = 1.1
	terrain := NewBuilder(cfg, 720, nil).Build(window)
	if len(terrain.Boxes) != rows {
		t.Fatalf("expected %d boxes, got %d", rows, len(terrain.Boxes))
	}

	tallest, ok := terrain.TallestBox()
	if !ok {
		t.Fatalf("expected a tallest box")
	}
	if row := window.Bars[tallest.BarIndex].Row; row != dipRow {
		t.Fatalf("tallest box should come from row %d, got row %d", dipRow, row)
	}

	dipIndex := tallest.BarIndex
	inDip := func(i int) bool { return i >= dipIndex && i < dipIndex+cfg.SigmaPeriod }

	mostStagnant, mostVolatile := 0, 0
	for i, seg := range terrain.PriceSigma {
		if seg.Depth() > terrain.PriceSigma[mostStagnant].Depth() {
			mostStagnant = i
		}
		if seg.Depth() < terrain.PriceSigma[mostVolatile].Depth() {
			mostVolatile = i
		}
	}
	if inDip(mostStagnant) {
		t.Errorf("most stagnant column %d should lie outside the dip region", mostStagnant)
	}
	if !inDip(mostVolatile) {
		t.Errorf("most volatile column %d should lie inside the dip region", mostVolatile)
	}
}
