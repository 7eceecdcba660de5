package core

import "math"

// CollisionState is the terminal-state flag of the simulation.
type CollisionState int

const (
	// Active means both bodies are moving and collisions are checked.
	Active CollisionState = iota
	// Collided freezes translation and decay until Reset.
	Collided
)

func (s CollisionState) String() string {
	switch s {
	case Active:
		return "active"
	case Collided:
		return "collided"
	default:
		return "unknown"
	}
}

// Tumble holds the debris body's cosmetic spin angles.
type Tumble struct {
	X, Y float64
}

// StepResult is what a single Step reports.
type StepResult struct {
	TimeStep     int
	Debris       Vec3
	Satellite    Vec3
	Facing       Vec3
	Distance     float64
	State        CollisionState
	JustCollided bool
}

// Snapshot is a read-only copy of the simulation state.
type Snapshot struct {
	Epoch    uint64
	TimeStep int
	Elapsed  uint64
	State    CollisionState

	DecayFactor float64
	DecayFloor  float64

	Debris         Vec3
	Satellite      Vec3
	SatelliteLocal Vec3
	Facing         Vec3
	Tumble         Tumble

	SatellitePlane OrbitPlane
	DebrisPlane    OrbitPlane

	Relative Vec3
	Distance float64
}

// Rings are the trajectory outlines of both orbits in the scene frame.
type Rings struct {
	Debris    []Vec3
	Satellite []Vec3
}

// OrbitalSimulation steps a decaying debris fragment and a satellite around a
// shared centre and detects when they come within the collision threshold.
//
// It is a single-threaded stepper: it never reads a clock and callers own the
// cadence at which Step is invoked.
type OrbitalSimulation struct {
	cfg SimulationConfig

	satellitePath *EllipticalPath
	debrisRing    *EllipticalPath
	satelliteRing *EllipticalPath

	satellitePlane OrbitPlane
	debrisPlane    OrbitPlane

	epoch       uint64
	timeStep    int
	elapsed     uint64
	decayFactor float64
	state       CollisionState

	debris         Vec3
	satellite      Vec3
	satelliteLocal Vec3
	facing         Vec3
	tumble         Tumble

	tickListeners []func(StepResult)
}

// NewOrbitalSimulation validates cfg, samples the satellite path and returns
// a simulation in its initial state.
func NewOrbitalSimulation(cfg SimulationConfig) (*OrbitalSimulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sim := &OrbitalSimulation{
		cfg:            cfg,
		satellitePath:  NewEllipticalPath(cfg.SatelliteRadiusX, cfg.SatelliteRadius, cfg.PathResolution),
		debrisRing:     NewEllipticalPath(cfg.RingRadiusX, cfg.DebrisStartRadius, cfg.DebrisSampleCount),
		satelliteRing:  NewEllipticalPath(cfg.RingRadiusX, cfg.SatelliteRadius, cfg.DebrisSampleCount),
		satellitePlane: cfg.SatellitePlane,
		debrisPlane:    cfg.DebrisPlane,
		decayFactor:    1.0,
		state:          Active,
	}
	return sim, nil
}

// Config returns the configuration the simulation was built with.
func (s *OrbitalSimulation) Config() SimulationConfig {
	return s.cfg
}

// SatellitePath returns the precomputed satellite path.
func (s *OrbitalSimulation) SatellitePath() *EllipticalPath {
	return s.satellitePath
}

// RegisterTickListener adds a callback invoked after every Step.
func (s *OrbitalSimulation) RegisterTickListener(fn func(StepResult)) {
	s.tickListeners = append(s.tickListeners, fn)
}

// Step advances the simulation by one tick.
func (s *OrbitalSimulation) Step() StepResult {
	justCollided := false

	if s.state == Active {
		n := s.satellitePath.Resolution()
		s.timeStep = (s.timeStep + 1) % n
		s.elapsed++

		s.satelliteLocal = s.satellitePath.Point(s.timeStep)
		s.satellite = s.satellitePlane.Apply(s.satelliteLocal)
		ahead := s.satellitePlane.Apply(s.satellitePath.Point(n - s.timeStep + LookAheadOffset))
		s.facing = ahead.Sub(s.satellite).Normalize()

		s.decay()
		s.debris = s.debrisPlane.Apply(s.debrisLocal())
	}

	s.tumble.X += TumbleRateX
	s.tumble.Y += TumbleRateY

	distance := s.debris.DistanceTo(s.satellite)
	if s.state == Active && collides(distance, s.cfg.CollisionThreshold) {
		s.state = Collided
		justCollided = true
	}

	s.satellitePlane.precess()
	s.debrisPlane.precess()

	res := StepResult{
		TimeStep:     s.timeStep,
		Debris:       s.debris,
		Satellite:    s.satellite,
		Facing:       s.facing,
		Distance:     distance,
		State:        s.state,
		JustCollided: justCollided,
	}
	for _, fn := range s.tickListeners {
		fn(res)
	}
	return res
}

// Reset returns the bodies to the origin and the state machine to Active.
// Tumble and plane spin are cosmetic and keep their values.
func (s *OrbitalSimulation) Reset() {
	s.epoch++
	s.timeStep = 0
	s.elapsed = 0
	s.decayFactor = 1.0
	s.state = Active
	s.debris = Vec3{}
	s.satellite = Vec3{}
	s.satelliteLocal = Vec3{}
	s.facing = Vec3{}
}

// Epoch counts Resets since construction.
func (s *OrbitalSimulation) Epoch() uint64 { return s.epoch }

// State returns the current collision state.
func (s *OrbitalSimulation) State() CollisionState { return s.state }

// DecayFactor returns the current debris decay factor.
func (s *OrbitalSimulation) DecayFactor() float64 { return s.decayFactor }

// TimeStep returns the wrapped clock value.
func (s *OrbitalSimulation) TimeStep() int { return s.timeStep }

// RelativeState returns debris minus satellite and its length.
func (s *OrbitalSimulation) RelativeState() (Vec3, float64) {
	rel := s.debris.Sub(s.satellite)
	return rel, rel.Norm()
}

// Snapshot copies the current state.
func (s *OrbitalSimulation) Snapshot() Snapshot {
	rel, dist := s.RelativeState()
	return Snapshot{
		Epoch:          s.epoch,
		TimeStep:       s.timeStep,
		Elapsed:        s.elapsed,
		State:          s.state,
		DecayFactor:    s.decayFactor,
		DecayFloor:     s.cfg.DecayFloor(),
		Debris:         s.debris,
		Satellite:      s.satellite,
		SatelliteLocal: s.satelliteLocal,
		Facing:         s.facing,
		Tumble:         s.tumble,
		SatellitePlane: s.satellitePlane,
		DebrisPlane:    s.debrisPlane,
		Relative:       rel,
		Distance:       dist,
	}
}

// Rings returns both trajectory outlines under the current plane orientation.
func (s *OrbitalSimulation) Rings() Rings {
	return Rings{
		Debris:    s.debrisRing.Outline(s.debrisPlane),
		Satellite: s.satelliteRing.Outline(s.satellitePlane),
	}
}

// decay shrinks the debris orbit by one step, clamped to [floor, 1].
func (s *OrbitalSimulation) decay() {
	if s.decayFactor > 1.0 {
		s.decayFactor = 1.0
	}
	floor := s.cfg.DecayFloor()
	if s.decayFactor > floor {
		s.decayFactor = math.Max(s.decayFactor-s.cfg.DecayStep, floor)
	}
}

// debrisLocal evaluates the wobbling, decaying debris ellipse in its own
// plane. The wobble follows the wrapped clock; the angle follows elapsed
// ticks and is never wrapped.
func (s *OrbitalSimulation) debrisLocal() Vec3 {
	base := DebrisBaseRadius * s.decayFactor
	t := float64(s.timeStep)
	radiusX := base + WobbleAmplitude*math.Sin(WobbleFrequencyX*t)
	radiusY := base + WobbleAmplitude*math.Cos(WobbleFrequencyY*t)
	return EllipsePoint(radiusX, radiusY, DebrisAngularRate*float64(s.elapsed))
}

// collides applies the strict distance threshold.
func collides(distance, threshold float64) bool {
	return distance < threshold
}
