package physics

import (
	"math"

	"github.com/jakecoffman/cp"
)

const minExtent = 0.5

// Chipmunk 以 jakecoffman/cp 实现 World。
// 每个刚体可以拥有独立重力，世界重力保持为零。
type Chipmunk struct {
	space   *cp.Space
	bodies  []*cp.Body
	ids     map[*cp.Body]BodyID
	gravity map[BodyID]Vec
	joints  map[JointID]*cp.Constraint
	nextJID JointID
}

var _ World = (*Chipmunk)(nil)

// NewChipmunk 创建并配置一个空世界。
func NewChipmunk(settings Settings) *Chipmunk {
	space := cp.NewSpace()
	if settings.Iterations > 0 {
		space.Iterations = uint(settings.Iterations)
	}
	if settings.SleepTime > 0 {
		space.SleepTimeThreshold = settings.SleepTime
	}
	if settings.IdleSpeed > 0 {
		space.IdleSpeedThreshold = settings.IdleSpeed
	}

	return &Chipmunk{
		space:   space,
		ids:     make(map[*cp.Body]BodyID),
		gravity: make(map[BodyID]Vec),
		joints:  make(map[JointID]*cp.Constraint),
	}
}

// NewChipmunkWorld 适配 Factory 签名。
func NewChipmunkWorld(settings Settings) World {
	return NewChipmunk(settings)
}

func (c *Chipmunk) register(body *cp.Body) BodyID {
	id := BodyID(len(c.bodies))
	c.bodies = append(c.bodies, body)
	c.ids[body] = id
	return id
}

func (c *Chipmunk) body(id BodyID) *cp.Body {
	if c.space == nil || id < 0 || int(id) >= len(c.bodies) {
		return nil
	}
	return c.bodies[id]
}

// CreateStaticBox 创建静态矩形，尺寸过小时按最小尺寸处理。
func (c *Chipmunk) CreateStaticBox(center Vec, width, height, rotation float64, material Material) BodyID {
	body := cp.NewStaticBody()
	body.SetPosition(cp.Vector{X: center.X, Y: center.Y})
	body.SetAngle(rotation)
	c.space.AddBody(body)

	shape := cp.NewBox(body, math.Max(width, minExtent), math.Max(height, minExtent), 0)
	shape.SetElasticity(material.Restitution)
	shape.SetFriction(material.Friction)
	c.space.AddShape(shape)

	return c.register(body)
}

// CreateDynamic 创建密度为1的动态刚体。
func (c *Chipmunk) CreateDynamic(def BodyDef) BodyID {
	size := math.Max(def.Size, minExtent)

	var (
		body  *cp.Body
		shape *cp.Shape
	)
	switch def.Shape {
	case ShapeCircle:
		radius := size / 2
		mass := math.Pi * radius * radius
		body = cp.NewBody(mass, cp.MomentForCircle(mass, 0, radius, cp.Vector{}))
		shape = cp.NewCircle(body, radius, cp.Vector{})
	default:
		mass := size * size
		body = cp.NewBody(mass, cp.MomentForBox(mass, size, size))
		shape = cp.NewBox(body, size, size, 0)
	}

	body.SetPosition(cp.Vector{X: def.Position.X, Y: def.Position.Y})
	body.SetAngle(def.Rotation)
	c.space.AddBody(body)

	shape.SetElasticity(def.Material.Restitution)
	shape.SetFriction(def.Material.Friction)
	c.space.AddShape(shape)

	id := c.register(body)
	c.gravity[id] = def.Gravity
	body.SetVelocityUpdateFunc(func(b *cp.Body, _ cp.Vector, damping, dt float64) {
		g := c.gravity[id]
		cp.BodyUpdateVelocity(b, cp.Vector{X: g.X, Y: g.Y}, damping, dt)
	})
	return id
}

// CreateKinematic 创建运动学刚体，用于拖拽锚点。
func (c *Chipmunk) CreateKinematic(position Vec) BodyID {
	body := cp.NewKinematicBody()
	body.SetPosition(cp.Vector{X: position.X, Y: position.Y})
	c.space.AddBody(body)
	return c.register(body)
}

func (c *Chipmunk) SetPosition(id BodyID, position Vec) {
	if b := c.body(id); b != nil {
		b.SetPosition(cp.Vector{X: position.X, Y: position.Y})
	}
}

func (c *Chipmunk) SetVelocity(id BodyID, velocity Vec) {
	if b := c.body(id); b != nil {
		b.SetVelocityVector(cp.Vector{X: velocity.X, Y: velocity.Y})
	}
}

func (c *Chipmunk) SetGravity(id BodyID, gravity Vec) {
	if b := c.body(id); b != nil {
		c.gravity[id] = gravity
		b.Activate()
	}
}

// Step 推进一次接触求解与积分。
func (c *Chipmunk) Step(dt float64) {
	if c.space == nil || dt <= 0 {
		return
	}
	c.space.Step(dt)
}

func (c *Chipmunk) Position(id BodyID) Vec {
	b := c.body(id)
	if b == nil {
		return Vec{}
	}
	p := b.Position()
	return Vec{X: p.X, Y: p.Y}
}

func (c *Chipmunk) Rotation(id BodyID) float64 {
	if b := c.body(id); b != nil {
		return b.Angle()
	}
	return 0
}

func (c *Chipmunk) Mass(id BodyID) float64 {
	if b := c.body(id); b != nil {
		return b.Mass()
	}
	return 0
}

func (c *Chipmunk) IsStatic(id BodyID) bool {
	b := c.body(id)
	return b != nil && b.GetType() == cp.BODY_STATIC
}

func (c *Chipmunk) WorldToLocal(id BodyID, point Vec) Vec {
	b := c.body(id)
	if b == nil {
		return point
	}
	local := b.WorldToLocal(cp.Vector{X: point.X, Y: point.Y})
	return Vec{X: local.X, Y: local.Y}
}

func (c *Chipmunk) QueryPoint(point Vec, radius float64) (BodyID, bool) {
	if c.space == nil {
		return 0, false
	}
	info := c.space.PointQueryNearest(cp.Vector{X: point.X, Y: point.Y}, radius, cp.SHAPE_FILTER_ALL)
	if info == nil || info.Shape == nil {
		return 0, false
	}
	id, ok := c.ids[info.Shape.Body()]
	return id, ok
}

// CreatePivot 把 body 上的 localAnchor 与 anchor 的原点铰接。
func (c *Chipmunk) CreatePivot(body, anchor BodyID, localAnchor Vec, maxForce float64) JointID {
	a, b := c.body(body), c.body(anchor)
	if a == nil || b == nil {
		return -1
	}
	joint := cp.NewPivotJoint2(a, b, cp.Vector{X: localAnchor.X, Y: localAnchor.Y}, cp.Vector{})
	joint.SetMaxForce(maxForce)
	c.space.AddConstraint(joint)

	id := c.nextJID
	c.nextJID++
	c.joints[id] = joint
	return id
}

func (c *Chipmunk) DestroyJoint(id JointID) {
	joint, ok := c.joints[id]
	if !ok {
		return
	}
	delete(c.joints, id)
	if c.space != nil {
		c.space.RemoveConstraint(joint)
	}
}

// Destroy 释放世界，之后的查询返回零值。
func (c *Chipmunk) Destroy() {
	c.space = nil
	c.bodies = nil
	c.ids = make(map[*cp.Body]BodyID)
	c.gravity = make(map[BodyID]Vec)
	c.joints = make(map[JointID]*cp.Constraint)
}
