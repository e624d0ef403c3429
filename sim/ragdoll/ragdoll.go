// Package ragdoll is a small deterministic walker used as the reference
// simulation. It has twelve segments driven by the four virtual keys:
// Q and W swing the thighs in opposite directions, O and P do the same for
// the calves. Forward motion comes from pushing against the ground with a
// planted foot. The model falls when the torso tilts too far.
package ragdoll

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/smanolloff/qwop-gym/types"
)

// Segment lengths in meters.
const (
	torsoLen   = 0.6
	headRadius = 0.12
	upperArm   = 0.3
	foreArm    = 0.28
	thighLen   = 0.45
	calfLen    = 0.45
	footLen    = 0.2
)

// Model constants.
const (
	jointSpeed  = 6.0  // rad/s a driven joint rotates towards its target
	jointRange  = 1.1  // rad, thigh/calf target when a key is held
	gravity     = 9.81 // m/s^2
	pushGain    = 2.4  // forward speed gained per rad of stance-leg sweep
	groundDrag  = 0.8  // fraction of forward speed retained per second
	tiltGain    = 0.9  // torso tilt induced by forward acceleration
	recoverRate = 0.6  // rad/s the torso rights itself when balanced
	recoverBand = 0.6  // rad; within this tilt the torso rights itself
	fallAngle   = 1.25 // rad; beyond this the torso topples
	headClear   = 0.5  // m; the episode ends once the head is lower
	noiseScale  = 0.04 // rad/s random torso perturbation
	restHeight  = 0.15 // m; torso height once toppled
)

// joint indices into Model.joints.
const (
	jLeftThigh = iota
	jRightThigh
	jLeftCalf
	jRightCalf
	jLeftArm
	jRightArm
	numJoints
)

// Model is the walker. It implements sim.Simulation and sim.FrameSource.
type Model struct {
	seed uint64
	rng  *rand.Rand

	keys types.KeyState

	// torso pose
	x, y, angle   float64
	vx, vy, omega float64
	joints        [numJoints]float64

	elapsed float64
	fallen  bool

	prev    [types.NumBodyParts]point
	parts   [types.NumBodyParts]point
	partVel [types.NumBodyParts][2]float64
	partAng [types.NumBodyParts]float64

	mu       sync.Mutex
	rendered *snapshot
	frames   int
}

type point struct{ x, y float64 }

// New returns a model in its initial standing pose.
func New(seed uint64) *Model {
	m := &Model{seed: seed}
	m.reset()
	return m
}

// Seed returns the seed the model was created with.
func (m *Model) Seed() uint64 {
	return m.seed
}

// Reset restarts the episode. Random perturbations replay identically for
// the same seed.
func (m *Model) Reset() error {
	m.reset()
	return nil
}

func (m *Model) reset() {
	m.rng = rand.New(rand.NewPCG(m.seed, m.seed^0x9e3779b97f4a7c15))
	m.x, m.y, m.angle = 0, thighLen+calfLen, 0
	m.vx, m.vy, m.omega = 0, 0, 0
	m.joints = [numJoints]float64{}
	m.elapsed = 0
	m.fallen = false
	m.layout()
	m.prev = m.parts
	m.partVel = [types.NumBodyParts][2]float64{}
}

// PressKey holds down k.
func (m *Model) PressKey(k types.Key) error {
	if k < types.KeyQ || k > types.KeyP {
		return fmt.Errorf("unknown key %d", int(k))
	}
	m.keys[k] = true
	return nil
}

// ReleaseKey lets go of k.
func (m *Model) ReleaseKey(k types.Key) error {
	if k < types.KeyQ || k > types.KeyP {
		return fmt.Errorf("unknown key %d", int(k))
	}
	m.keys[k] = false
	return nil
}

// Keys returns the currently held keys.
func (m *Model) Keys() types.KeyState {
	return m.keys
}

// Step advances the model by dt seconds.
func (m *Model) Step(dt float64) error {
	if dt <= 0 || math.IsNaN(dt) {
		return fmt.Errorf("invalid timestep %v", dt)
	}

	targets := m.jointTargets()
	before := m.joints
	for i := range m.joints {
		delta := targets[i] - m.joints[i]
		limit := jointSpeed * dt
		m.joints[i] += math.Max(-limit, math.Min(limit, delta))
	}

	if !m.fallen {
		// The lower foot is planted; sweeping it backwards pushes the body forward.
		stance := jLeftThigh
		if m.footY(jRightThigh, jRightCalf) < m.footY(jLeftThigh, jLeftCalf) {
			stance = jRightThigh
		}
		sweep := before[stance] - m.joints[stance]
		accel := 0.0
		if sweep > 0 {
			accel = pushGain * sweep / dt
		}
		m.vx += accel * dt
		m.vx *= math.Pow(groundDrag, dt)

		// O and P shift the calves, leaning the body back or forward.
		lean := m.joints[jLeftCalf] - m.joints[jRightCalf]
		m.omega = tiltGain*accel*0.05 - 0.3*lean
		m.omega += (m.rng.Float64()*2 - 1) * noiseScale
		if accel == 0 && math.Abs(m.angle) < recoverBand {
			m.omega -= math.Copysign(recoverRate, m.angle) * math.Min(1, math.Abs(m.angle)/recoverBand)
		}
		m.angle += m.omega * dt
		if math.Abs(m.angle) > fallAngle {
			m.fallen = true
		}
	}

	if m.fallen {
		// Topple: rotate towards the ground and slide to a halt.
		dir := math.Copysign(1, m.angle)
		m.omega = dir * 2.5
		m.angle = math.Max(-math.Pi/2, math.Min(math.Pi/2, m.angle+m.omega*dt))
		m.vy -= gravity * dt
		m.y = math.Max(restHeight, m.y+m.vy*dt)
		if m.y <= restHeight {
			m.vy = 0
		}
		m.vx *= math.Pow(0.1, dt)
	} else {
		m.y = thighLen + calfLen - 0.1*math.Abs(m.joints[jLeftThigh]-m.joints[jRightThigh])
	}
	m.x += m.vx * dt
	m.elapsed += dt

	m.prev = m.parts
	m.layout()
	for i := range m.parts {
		m.partVel[i] = [2]float64{
			(m.parts[i].x - m.prev[i].x) / dt,
			(m.parts[i].y - m.prev[i].y) / dt,
		}
	}
	return nil
}

func (m *Model) jointTargets() [numJoints]float64 {
	var t [numJoints]float64
	if m.keys[types.KeyQ] {
		t[jLeftThigh], t[jRightThigh] = jointRange, -jointRange
	}
	if m.keys[types.KeyW] {
		t[jLeftThigh], t[jRightThigh] = t[jLeftThigh]-jointRange, t[jRightThigh]+jointRange
	}
	if m.keys[types.KeyO] {
		t[jLeftCalf], t[jRightCalf] = jointRange, -jointRange
	}
	if m.keys[types.KeyP] {
		t[jLeftCalf], t[jRightCalf] = t[jLeftCalf]-jointRange, t[jRightCalf]+jointRange
	}
	// Arms counter-swing the thighs.
	t[jLeftArm], t[jRightArm] = -0.5*t[jLeftThigh], -0.5*t[jRightThigh]
	return t
}

func (m *Model) hip() point {
	return point{
		x: m.x - math.Sin(m.angle)*torsoLen/2,
		y: m.y,
	}
}

func (m *Model) footY(thigh, calf int) float64 {
	hip := m.hip()
	a := m.angle + m.joints[thigh]
	knee := point{hip.x + math.Sin(a)*thighLen, hip.y - math.Cos(a)*thighLen}
	b := a - math.Abs(m.joints[calf])
	return knee.y - math.Cos(b)*calfLen
}

// layout recomputes segment centres and angles from the torso pose and joints.
func (m *Model) layout() {
	hip := m.hip()
	neck := point{hip.x + math.Sin(m.angle)*torsoLen, hip.y + math.Cos(m.angle)*torsoLen}
	set := func(p types.BodyPart, a, b point, angle float64) {
		m.parts[p] = point{(a.x + b.x) / 2, (a.y + b.y) / 2}
		m.partAng[p] = angle
	}
	end := func(from point, angle, length float64) point {
		return point{from.x + math.Sin(angle)*length, from.y - math.Cos(angle)*length}
	}

	set(types.PartTorso, hip, neck, m.angle)
	head := point{neck.x + math.Sin(m.angle)*headRadius, neck.y + math.Cos(m.angle)*headRadius}
	m.parts[types.PartHead] = head
	m.partAng[types.PartHead] = m.angle

	legs := []struct {
		thigh, calf, foot types.BodyPart
		jt, jc            int
	}{
		{types.PartLeftThigh, types.PartLeftCalf, types.PartLeftFoot, jLeftThigh, jLeftCalf},
		{types.PartRightThigh, types.PartRightCalf, types.PartRightFoot, jRightThigh, jRightCalf},
	}
	for _, l := range legs {
		a := m.angle + m.joints[l.jt]
		knee := end(hip, a, thighLen)
		set(l.thigh, hip, knee, a)
		b := a - math.Abs(m.joints[l.jc])
		ankle := end(knee, b, calfLen)
		set(l.calf, knee, ankle, b)
		toe := point{ankle.x + footLen, ankle.y}
		set(l.foot, ankle, toe, 0)
	}

	arms := []struct {
		arm, forearm types.BodyPart
		j            int
	}{
		{types.PartLeftArm, types.PartLeftForearm, jLeftArm},
		{types.PartRightArm, types.PartRightForearm, jRightArm},
	}
	for _, a := range arms {
		ang := m.angle + m.joints[a.j]
		elbow := end(neck, ang, upperArm)
		set(a.arm, neck, elbow, ang)
		fang := ang - 0.4
		set(a.forearm, elbow, end(elbow, fang, foreArm), fang)
	}
}

// BodyPart returns the kinematic state of one segment.
func (m *Model) BodyPart(p types.BodyPart) (types.BodyPartSample, error) {
	if p < 0 || int(p) >= types.NumBodyParts {
		return types.BodyPartSample{}, fmt.Errorf("unknown body part %d", int(p))
	}
	return types.BodyPartSample{
		X:     float32(m.parts[p].x),
		Y:     float32(m.parts[p].y),
		Angle: float32(m.partAng[p]),
		VX:    float32(m.partVel[p][0]),
		VY:    float32(m.partVel[p][1]),
	}, nil
}

// Progress returns the torso's horizontal distance from the start line.
func (m *Model) Progress() float64 {
	return m.x
}

// ElapsedTime returns simulated seconds since the last reset.
func (m *Model) ElapsedTime() float64 {
	return m.elapsed
}

// Ended reports whether the head has dropped to the ground.
func (m *Model) Ended() bool {
	return m.fallen && m.parts[types.PartHead].y < headClear
}
