// Package physics 定义控制容积槽所需的刚体世界能力，并提供基于 Chipmunk2D 的实现。
package physics

// Vec 为世界坐标中的二维向量，Y 轴向下。
type Vec struct {
	X float64
	Y float64
}

// Sub 返回 v-o。
func (v Vec) Sub(o Vec) Vec {
	return Vec{X: v.X - o.X, Y: v.Y - o.Y}
}

// BodyID 标识世界中的一个刚体。
type BodyID int

// JointID 标识世界中的一个约束。
type JointID int

// Shape 表示碰撞形状。
type Shape int

const (
	ShapeCircle Shape = iota
	ShapeBox
)

func (s Shape) String() string {
	switch s {
	case ShapeCircle:
		return "circle"
	case ShapeBox:
		return "box"
	default:
		return "unknown"
	}
}

// ParseShape 解析配置中的形状名称，未知名称按方块处理。
func ParseShape(name string) Shape {
	if name == "circle" {
		return ShapeCircle
	}
	return ShapeBox
}

// Material 描述碰撞材质。
type Material struct {
	Restitution float64
	Friction    float64
}

// Settings 为世界级求解与休眠参数。
type Settings struct {
	Iterations int
	SleepTime  float64 // 静止多久后进入休眠
	IdleSpeed  float64 // 低于该速度视为静止
}

// BodyDef 描述一个动态刚体。
type BodyDef struct {
	Shape    Shape
	Position Vec
	Size     float64 // 圆为直径，方块为边长
	Rotation float64 // 弧度
	Gravity  Vec     // 覆盖世界重力
	Material Material
}

// World 是刚体引擎的能力边界，仅在单个 goroutine 内使用。
type World interface {
	CreateStaticBox(center Vec, width, height, rotation float64, material Material) BodyID
	CreateDynamic(def BodyDef) BodyID
	CreateKinematic(position Vec) BodyID

	SetPosition(id BodyID, position Vec)
	SetVelocity(id BodyID, velocity Vec)
	SetGravity(id BodyID, gravity Vec)

	Step(dt float64)

	Position(id BodyID) Vec
	Rotation(id BodyID) float64
	Mass(id BodyID) float64
	IsStatic(id BodyID) bool
	WorldToLocal(id BodyID, point Vec) Vec

	// QueryPoint 返回距 point 不超过 radius 的最近刚体。
	QueryPoint(point Vec, radius float64) (BodyID, bool)

	CreatePivot(body, anchor BodyID, localAnchor Vec, maxForce float64) JointID
	DestroyJoint(id JointID)

	Destroy()
}

// Factory 按世界参数创建新的 World。
type Factory func(settings Settings) World
