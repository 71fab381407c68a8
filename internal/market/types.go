package market

import "time"

// DefaultWindowLength 为单次模拟使用的K线数量。
const DefaultWindowLength = 315

// PriceBar 代表单根K线，加载后不可变。
type PriceBar struct {
	Row       int       // 在原始文件中的行号（从0开始）
	Label     string    // 原始时间戳文本
	Timestamp time.Time // 可解析时的时间戳，否则为零值
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Range 返回K线的最高价与最低价之差的绝对值。
func (b PriceBar) Range() float64 {
	if b.High >= b.Low {
		return b.High - b.Low
	}
	return b.Low - b.High
}

// PriceWindow 为一次模拟使用的定长K线切片。
// Lowest/Highest 在加载时确定，整个运行期间保持不变，所有缩放都以其为基准。
type PriceWindow struct {
	Dataset string
	Offset  int
	Bars    []PriceBar
	Lowest  float64
	Highest float64
}

// Len 返回窗口长度。
func (w PriceWindow) Len() int {
	return len(w.Bars)
}

// Series 返回窗口的列式视图。
func (w PriceWindow) Series() Series {
	return NewSeries(w.Bars)
}
