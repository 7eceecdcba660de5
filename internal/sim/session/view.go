package session

import (
	"time"

	"github.com/signalsfoundry/debris-collision-sim/core"
	"github.com/signalsfoundry/debris-collision-sim/internal/risk"
)

// Status texts shown alongside the scene.
const (
	StatusCollided    = "Collision Occurred!"
	StatusCalculating = "Calculating the risk..."
	StatusHighRisk    = "Model predicts high collision risk!"
	StatusLowRisk     = "ML predicts safe orbit."
	StatusUnavailable = "Risk model unavailable."
	StatusReset       = "Simulation reset. Run a prediction again."
)

// Metric outcome labels, kept in step with observability.Outcome*.
const (
	outcomeHigh        = "high"
	outcomeLow         = "low"
	outcomeUnavailable = "unavailable"
	outcomeStale       = "stale"
)

// Phase is the lifecycle stage of a risk assessment.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePending     Phase = "pending"
	PhaseHighRisk    Phase = "high_risk"
	PhaseLowRisk     Phase = "low_risk"
	PhaseUnavailable Phase = "unavailable"
)

// AssessmentStatus describes the latest assessment for the current epoch.
type AssessmentStatus struct {
	ID          string        `json:"id,omitempty"`
	Epoch       uint64        `json:"epoch"`
	Phase       Phase         `json:"phase"`
	Request     risk.Request  `json:"request"`
	Verdict     risk.Verdict  `json:"verdict,omitempty"`
	Echo        *risk.Request `json:"echo,omitempty"`
	Error       string        `json:"error,omitempty"`
	RequestedAt time.Time     `json:"requested_at,omitzero"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
}

// Done reports whether the assessment has reached a terminal phase.
func (a AssessmentStatus) Done() bool {
	switch a.Phase {
	case PhaseHighRisk, PhaseLowRisk, PhaseUnavailable:
		return true
	default:
		return false
	}
}

// Point is a JSON-friendly scene position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func pointOf(v core.Vec3) Point {
	return Point{X: v.X, Y: v.Y, Z: v.Z}
}

// View is the one-way presentation feed: everything a renderer needs to draw
// a frame, with no handles back into the simulation.
type View struct {
	Epoch       uint64  `json:"epoch"`
	TimeStep    int     `json:"time_step"`
	State       string  `json:"state"`
	DecayFactor float64 `json:"decay_factor"`

	Debris    Point `json:"debris"`
	Satellite Point `json:"satellite"`
	Facing    Point `json:"facing"`

	DebrisTumble   [2]float64 `json:"debris_tumble"`
	SatelliteSpin  float64    `json:"satellite_plane_spin"`
	DebrisSpin     float64    `json:"debris_plane_spin"`
	Distance       float64    `json:"distance"`
	HighlightRings bool       `json:"highlight_rings"`

	Status     string           `json:"status,omitempty"`
	Assessment AssessmentStatus `json:"assessment"`
}

// StepView is the view right after a Step, together with whether that tick
// was the one that collided.
type StepView struct {
	View
	JustCollided bool `json:"just_collided"`
}

func (s *Session) viewLocked() View {
	snap := s.sim.Snapshot()
	return View{
		Epoch:          snap.Epoch,
		TimeStep:       snap.TimeStep,
		State:          snap.State.String(),
		DecayFactor:    snap.DecayFactor,
		Debris:         pointOf(snap.Debris),
		Satellite:      pointOf(snap.Satellite),
		Facing:         pointOf(snap.Facing),
		DebrisTumble:   [2]float64{snap.Tumble.X, snap.Tumble.Y},
		SatelliteSpin:  snap.SatellitePlane.Spin,
		DebrisSpin:     snap.DebrisPlane.Spin,
		Distance:       snap.Distance,
		HighlightRings: s.assessment.Phase == PhaseHighRisk,
		Status:         s.status,
		Assessment:     s.assessment,
	}
}
