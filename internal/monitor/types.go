package monitor

import "time"

// EventType 表示监控事件类型。
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunFinished  EventType = "run_finished"
	EventRunFailed    EventType = "run_failed"
	EventRestart      EventType = "restart"
	EventEncodeFailed EventType = "encode_failed"
	EventError        EventType = "error"
)

// RunStatus 为运行在台账中的状态。
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusDone     RunStatus = "done"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Run 为一次模拟运行的台账记录。
type Run struct {
	ID          string
	Dataset     string
	Offset      int
	Permutation int
	SigmaPeriod int
	Seed        int64
	Status      RunStatus
	Frames      int
	Histogram   string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Signal 为一次运行产生的入场信号。
type Signal struct {
	RunID      string
	BarIndex   int
	Column     int
	Label      string
	Direction  string
	Depth      float64
	HeavyRatio float64
	LightRatio float64
}

// RunPayload 记录运行开始或结束。
type RunPayload struct {
	RunID       string    `json:"run_id"`
	Dataset     string    `json:"dataset"`
	Offset      int       `json:"offset"`
	Permutation int       `json:"permutation"`
	Status      RunStatus `json:"status,omitempty"`
	Frames      int       `json:"frames,omitempty"`
	Entries     int       `json:"entries,omitempty"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
