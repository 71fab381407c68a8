package tank

import (
	"errors"
	"math"

	"sekisetsu/internal/physics"
)

// ErrInvalidState 表示当前状态不允许该操作。
var ErrInvalidState = errors.New("tank: 当前状态不允许该操作")

// State 为模拟器生命周期状态。
type State int

const (
	StateIdle State = iota
	StateInitialized
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Class 区分重粒子与轻粒子。
type Class int

const (
	Heavy Class = iota
	Light
)

func (c Class) String() string {
	if c == Heavy {
		return "heavy"
	}
	return "light"
}

// Particle 记录一个动态粒子的创建参数。
type Particle struct {
	Body        physics.BodyID
	Class       Class
	Shape       physics.Shape
	Diameter    float64
	Restitution float64
	Friction    float64
	Gravity     physics.Vec
}

// ParticleState 为某一帧粒子的位姿快照。
type ParticleState struct {
	Class    Class
	Shape    physics.Shape
	Diameter float64
	Position physics.Vec
	Rotation float64
}

// Footprint 返回粒子在栅格上占据的轴对齐像素方块（左上角与边长），忽略旋转。
// 绘制与按刚体采样共用该方块。
func (p ParticleState) Footprint() (x0, y0, size int) {
	size = int(math.Round(p.Diameter))
	if size < 1 {
		size = 1
	}
	half := float64(size) / 2
	x0 = int(math.Floor(p.Position.X - half + 0.5))
	y0 = int(math.Floor(p.Position.Y - half + 0.5))
	return x0, y0, size
}
