package geometry

// ScaleFunction 把价格线性映射到屏幕纵坐标，价格越高 Y 越小。
// 区间外的价格按端点截断。
type ScaleFunction struct {
	Lowest  float64
	Highest float64
	Bottom  float64 // windowHeight * heightScalingFactor
}

// NewScaleFunction 创建缩放函数。
func NewScaleFunction(lowest, highest, windowHeight, heightScalingFactor float64) ScaleFunction {
	return ScaleFunction{
		Lowest:  lowest,
		Highest: highest,
		Bottom:  windowHeight * heightScalingFactor,
	}
}

// Apply 返回价格对应的 Y 坐标。
func (s ScaleFunction) Apply(price float64) float64 {
	if s.Highest <= s.Lowest {
		return s.Bottom
	}
	if price <= s.Lowest {
		return s.Bottom
	}
	if price >= s.Highest {
		return 0
	}
	t := (price - s.Lowest) / (s.Highest - s.Lowest)
	return s.Bottom + t*(0-s.Bottom)
}
