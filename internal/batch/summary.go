package batch

import (
	"time"

	"sekisetsu/internal/market"
)

// Summary 记录批次统计。
type Summary struct {
	Completed int
	Skipped   int
	Failed    int
	Frames    int
	Up        int
	Down      int
	Bias      float64 // (up-down)/(up+down)，无信号时为0
	Elapsed   time.Duration
}

func summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Elapsed += o.Elapsed
		switch {
		case o.Err == nil:
			s.Completed++
		case market.IsInputFormat(o.Err):
			s.Skipped++
			continue
		default:
			s.Failed++
			continue
		}
		s.Frames += o.Frames
		s.Up += o.Up
		s.Down += o.Down
	}
	if total := s.Up + s.Down; total > 0 {
		s.Bias = float64(s.Up-s.Down) / float64(total)
	}
	return s
}
