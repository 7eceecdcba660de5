package core

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Tuned constants of the debris motion model. They were picked for the
// default radii and a 500-sample satellite path and are kept literally.
const (
	// DebrisBaseRadius is the debris orbit radius at decay factor 1.0.
	DebrisBaseRadius = 4.0
	// DecayFloorDivisor sets the decay floor to SatelliteRadius / 4.
	DecayFloorDivisor = 4.0

	WobbleAmplitude  = 0.05
	WobbleFrequencyX = 0.02
	WobbleFrequencyY = 0.03

	// DebrisAngularRate is the debris angle advance per elapsed tick.
	DebrisAngularRate = 0.012

	// LookAheadOffset is the satellite facing offset in path samples.
	LookAheadOffset = 5

	TumbleRateX = 0.01
	TumbleRateY = 0.02
)

// Defaults.
const (
	DefaultSatelliteRadius    = 2.8
	DefaultSatelliteRadiusX   = 2.5
	DefaultDebrisStartRadius  = 3.0
	DefaultRingRadiusX        = 2.5
	DefaultPathResolution     = 500
	DefaultDebrisSampleCount  = 128
	DefaultDecayStep          = 1e-4
	DefaultCollisionThreshold = 0.1
)

// SimulationConfig fixes the geometry of both orbits for the lifetime of an
// OrbitalSimulation.
type SimulationConfig struct {
	// SatelliteRadius is the satellite path's Y radius and the decay target.
	SatelliteRadius float64
	// SatelliteRadiusX is the satellite path's X radius.
	SatelliteRadiusX float64
	// DebrisStartRadius is the Y radius of the debris trajectory outline.
	DebrisStartRadius float64
	// RingRadiusX is the X radius of the debris trajectory outline.
	RingRadiusX float64

	PathResolution    int
	DebrisSampleCount int

	DecayStep          float64
	CollisionThreshold float64

	SatellitePlane OrbitPlane
	DebrisPlane    OrbitPlane
}

// DefaultSimulationConfig returns the two-body scene used by the front end:
// a satellite on a (2.5, 2.8) ellipse tilted π/6 and debris decaying from a
// radius of 4 on a plane tilted π/5 about X and 0.2 about Z.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		SatelliteRadius:    DefaultSatelliteRadius,
		SatelliteRadiusX:   DefaultSatelliteRadiusX,
		DebrisStartRadius:  DefaultDebrisStartRadius,
		RingRadiusX:        DefaultRingRadiusX,
		PathResolution:     DefaultPathResolution,
		DebrisSampleCount:  DefaultDebrisSampleCount,
		DecayStep:          DefaultDecayStep,
		CollisionThreshold: DefaultCollisionThreshold,
		SatellitePlane: OrbitPlane{
			TiltX:    math.Pi / 6,
			SpinRate: -0.0015,
		},
		DebrisPlane: OrbitPlane{
			TiltX:    math.Pi / 5,
			TiltZ:    0.2,
			SpinRate: 0.001,
		},
	}
}

// DecayFloor returns the lowest decay factor the debris can reach.
func (c SimulationConfig) DecayFloor() float64 {
	return c.SatelliteRadius / DecayFloorDivisor
}

// Validate reports the first misconfiguration found.
func (c SimulationConfig) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"satellite radius", c.SatelliteRadius},
		{"satellite radius x", c.SatelliteRadiusX},
		{"debris start radius", c.DebrisStartRadius},
		{"ring radius x", c.RingRadiusX},
		{"decay step", c.DecayStep},
		{"collision threshold", c.CollisionThreshold},
	} {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrInvalidConfig, f.name, f.value)
		}
	}
	if c.PathResolution <= LookAheadOffset {
		return fmt.Errorf("%w: path resolution must exceed %d samples, got %d", ErrInvalidConfig, LookAheadOffset, c.PathResolution)
	}
	if c.DebrisSampleCount < 2 {
		return fmt.Errorf("%w: debris sample count must be at least 2, got %d", ErrInvalidConfig, c.DebrisSampleCount)
	}
	return nil
}
