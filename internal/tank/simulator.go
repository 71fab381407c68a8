// Package tank 管理控制容积槽的物理世界：墙体、K线地形与轻重两类粒子。
package tank

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"sekisetsu/internal/config"
	"sekisetsu/internal/geometry"
	"sekisetsu/internal/physics"
)

const (
	spawnMargin     = 10.0
	rotationBuckets = 57
	mouseMaxForce   = 10000
	mouseMaxSpeed   = 10.0
	grabQueryRadius = 1.0
	noJoint         = physics.JointID(-1)
)

// Simulator 拥有单次运行的物理世界，不支持并发调用。
type Simulator struct {
	cfg      config.SimulationConfig
	terrain  geometry.Terrain
	newWorld physics.Factory
	logger   *zap.Logger

	state     State
	world     physics.World
	walls     []geometry.CollisionBox
	particles []Particle

	mouse       physics.BodyID
	mouseTarget physics.Vec
	joint       physics.JointID

	seed   int64
	frames int
}

// NewSimulator 创建模拟器，newWorld 为空时使用 Chipmunk。
func NewSimulator(cfg config.SimulationConfig, terrain geometry.Terrain, newWorld physics.Factory, logger *zap.Logger) *Simulator {
	if newWorld == nil {
		newWorld = physics.NewChipmunkWorld
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		cfg:      cfg,
		terrain:  terrain,
		newWorld: newWorld,
		logger:   logger,
		state:    StateIdle,
		joint:    noJoint,
	}
}

// State 返回当前状态。
func (s *Simulator) State() State {
	return s.state
}

// Seed 返回最近一次 Start 使用的随机种子。
func (s *Simulator) Seed() int64 {
	return s.seed
}

// Frames 返回自 Start 以来推进的帧数。
func (s *Simulator) Frames() int {
	return s.frames
}

// Start 创建世界、墙体、K线静态体以及粒子。
func (s *Simulator) Start() error {
	if s.state != StateIdle && s.state != StateTerminated {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s.state)
	}

	s.world = s.newWorld(physics.Settings{
		Iterations: s.cfg.Iterations,
		SleepTime:  s.cfg.SleepTime,
		IdleSpeed:  s.cfg.IdleSpeed,
	})
	s.frames = 0
	s.joint = noJoint

	s.seed = s.cfg.Seed
	if s.seed == 0 {
		s.seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s.seed))

	s.buildWalls()
	s.buildTerrain()
	s.spawnParticles(rng)

	s.mouse = s.world.CreateKinematic(physics.Vec{})
	s.mouseTarget = physics.Vec{}

	s.state = StateInitialized
	s.logger.Debug("控制容积槽已初始化",
		zap.Int("walls", len(s.walls)),
		zap.Int("candles", len(s.terrain.Boxes)),
		zap.Int("particles", len(s.particles)),
		zap.Int64("seed", s.seed),
	)
	return nil
}

func (s *Simulator) buildWalls() {
	w := float64(s.cfg.WindowWidth)
	h := float64(s.cfg.WindowHeight)
	t := s.cfg.WallWidth

	s.walls = []geometry.CollisionBox{
		{Width: w - t, Height: t, CenterX: w / 2, CenterY: h - t, BarIndex: -1}, // floor
		{Width: t, Height: h - t, CenterX: 0, CenterY: h / 2, BarIndex: -1},     // left
		{Width: t, Height: h - t, CenterX: w - t, CenterY: h / 2, BarIndex: -1}, // right
		{Width: w - t, Height: t, CenterX: w / 2, CenterY: t, BarIndex: -1},     // ceiling
	}

	material := physics.Material{Restitution: s.cfg.Restitution, Friction: s.cfg.Friction}
	for _, b := range s.walls {
		s.world.CreateStaticBox(physics.Vec{X: b.CenterX, Y: b.CenterY}, b.Width, b.Height, b.Rotation, material)
	}
}

func (s *Simulator) buildTerrain() {
	material := physics.Material{Restitution: s.cfg.CandleRestitution, Friction: s.cfg.CandleFriction}
	for _, b := range s.terrain.Boxes {
		s.world.CreateStaticBox(physics.Vec{X: b.CenterX, Y: b.CenterY}, b.Width, b.Height, b.Rotation, material)
	}
}

// spawnParticles 成对生成粒子：重粒子在顶部向下，轻粒子在底部向上。
// 横坐标从 x_origin 起每对前进 1 像素，到达窗口宽度后回到 0。
func (s *Simulator) spawnParticles(rng *rand.Rand) {
	width := float64(s.cfg.WindowWidth)
	height := float64(s.cfg.WindowHeight)
	shape := physics.ParseShape(s.cfg.ParticleShape)
	material := physics.Material{Restitution: s.cfg.Restitution, Friction: s.cfg.Friction}

	s.particles = make([]Particle, 0, 2*s.cfg.ParticleBirthCount)
	x := s.terrain.XOrigin
	for i := 0; i < s.cfg.ParticleBirthCount; i++ {
		if x >= width {
			x = 0
		} else {
			x++
		}

		for _, class := range []Class{Heavy, Light} {
			y, gravity := spawnMargin, physics.Vec{Y: s.cfg.Gravity}
			if class == Light {
				y, gravity = height-spawnMargin, physics.Vec{Y: -s.cfg.Gravity}
			}

			var rotation float64
			if s.cfg.RandomRotation {
				rotation = float64(rng.Intn(rotationBuckets)) * math.Pi / 180
			}

			id := s.world.CreateDynamic(physics.BodyDef{
				Shape:    shape,
				Position: physics.Vec{X: x, Y: y},
				Size:     s.cfg.ParticleDiameter,
				Rotation: rotation,
				Gravity:  gravity,
				Material: material,
			})
			s.particles = append(s.particles, Particle{
				Body:        id,
				Class:       class,
				Shape:       shape,
				Diameter:    s.cfg.ParticleDiameter,
				Restitution: material.Restitution,
				Friction:    material.Friction,
				Gravity:     gravity,
			})
		}
	}
}

// Step 推进一帧：先驱动拖拽锚点，再执行固定数量的子步。
func (s *Simulator) Step() error {
	if s.state != StateInitialized && s.state != StateRunning {
		return fmt.Errorf("%w: step in %s", ErrInvalidState, s.state)
	}

	velocity := s.mouseTarget.Sub(s.world.Position(s.mouse))
	if s.joint != noJoint {
		if d := math.Hypot(velocity.X, velocity.Y); d > mouseMaxSpeed {
			velocity.X *= mouseMaxSpeed / d
			velocity.Y *= mouseMaxSpeed / d
		}
	}
	s.world.SetVelocity(s.mouse, velocity)

	for i := 0; i < s.cfg.Substeps; i++ {
		s.world.Step(s.cfg.TimeStep)
	}

	s.frames++
	s.state = StateRunning
	return nil
}

// Terminate 销毁世界及其中所有刚体。
func (s *Simulator) Terminate() error {
	if s.state != StateInitialized && s.state != StateRunning {
		return fmt.Errorf("%w: terminate in %s", ErrInvalidState, s.state)
	}
	s.world.Destroy()
	s.world = nil
	s.particles = nil
	s.walls = nil
	s.joint = noJoint
	s.state = StateTerminated
	s.logger.Debug("控制容积槽已销毁", zap.Int("frames", s.frames))
	return nil
}

// Restart 销毁当前世界并重新生成。
func (s *Simulator) Restart() error {
	if err := s.Terminate(); err != nil {
		return err
	}
	return s.Start()
}

// Grab 在 point 处查找动态刚体并用铰链连接到拖拽锚点。
// 命中静态体或空白处时返回 false。
func (s *Simulator) Grab(point physics.Vec) (bool, error) {
	if s.state != StateInitialized && s.state != StateRunning {
		return false, fmt.Errorf("%w: grab in %s", ErrInvalidState, s.state)
	}
	s.mouseTarget = point

	body, ok := s.world.QueryPoint(point, grabQueryRadius)
	if !ok || body == s.mouse || s.world.IsStatic(body) {
		return false, nil
	}

	if s.joint != noJoint {
		s.world.DestroyJoint(s.joint)
	}
	s.world.SetPosition(s.mouse, point)
	local := s.world.WorldToLocal(body, point)
	s.joint = s.world.CreatePivot(body, s.mouse, local, mouseMaxForce)
	return true, nil
}

// Drag 更新拖拽目标点。
func (s *Simulator) Drag(point physics.Vec) {
	s.mouseTarget = point
}

// Release 释放拖拽铰链。
func (s *Simulator) Release() {
	if s.joint == noJoint || s.world == nil {
		return
	}
	s.world.DestroyJoint(s.joint)
	s.joint = noJoint
}

// Grabbing 报告是否存在拖拽铰链。
func (s *Simulator) Grabbing() bool {
	return s.joint != noJoint
}

// Particles 返回所有粒子的创建参数。
func (s *Simulator) Particles() []Particle {
	return append([]Particle(nil), s.particles...)
}

// ParticleStates 返回当前帧所有粒子的位姿。
func (s *Simulator) ParticleStates() []ParticleState {
	if s.world == nil {
		return nil
	}
	states := make([]ParticleState, len(s.particles))
	for i, p := range s.particles {
		states[i] = ParticleState{
			Class:    p.Class,
			Shape:    p.Shape,
			Diameter: p.Diameter,
			Position: s.world.Position(p.Body),
			Rotation: s.world.Rotation(p.Body),
		}
	}
	return states
}

// Statics 返回墙体与K线碰撞体，用于绘制。
func (s *Simulator) Statics() []geometry.CollisionBox {
	out := make([]geometry.CollisionBox, 0, len(s.walls)+len(s.terrain.Boxes))
	out = append(out, s.walls...)
	return append(out, s.terrain.Boxes...)
}

// Terrain 返回本次运行的地形。
func (s *Simulator) Terrain() geometry.Terrain {
	return s.terrain
}
