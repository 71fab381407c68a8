package app

import "sekisetsu/internal/physics"

// EventKind 为交互事件类型。
type EventKind int

const (
	EventQuit EventKind = iota
	EventRestart
	EventGrab
	EventDrag
	EventRelease
)

func (k EventKind) String() string {
	switch k {
	case EventQuit:
		return "quit"
	case EventRestart:
		return "restart"
	case EventGrab:
		return "grab"
	case EventDrag:
		return "drag"
	case EventRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Event 为投递给当前控制容积槽的交互事件，Point 仅对拖拽类事件有效。
type Event struct {
	Kind  EventKind
	Point physics.Vec
}
