package stats

import (
	talib "github.com/markcheno/go-talib"
)

// Lookback 返回以 index 为最新点、向前最多 period 个值的窗口，顺序为最新在前。
// 靠近序列起点时窗口静默截断为可用长度，不补齐也不报错。
func Lookback(values []float64, index, period int) []float64 {
	if index < 0 || index >= len(values) || period <= 0 {
		return nil
	}
	window := make([]float64, 0, period)
	for i := 0; i < period; i++ {
		pos := index - i
		if pos < 0 {
			break
		}
		window = append(window, values[pos])
	}
	return window
}

// RollingStandardDeviation 对每个位置计算截断回看窗口上的复数路径标准差。
func RollingStandardDeviation(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = StandardDeviation(Lookback(values, i, period))
	}
	return out
}

// SimpleMovingAverage 计算简单移动平均。
// 完整窗口部分由 talib.Sma 计算，预热区间使用截断窗口的均值。
func SimpleMovingAverage(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}

	out := make([]float64, len(values))
	warmup := period - 1
	if warmup > len(values) {
		warmup = len(values)
	}
	for i := 0; i < warmup; i++ {
		out[i] = Mean(values[:i+1])
	}
	if len(values) >= period {
		sma := talib.Sma(values, period)
		copy(out[warmup:], sma[warmup:])
	}
	return out
}
