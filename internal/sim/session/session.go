// Package session owns one orbital simulation on behalf of concurrent
// callers: the tick loop, control RPCs and the snapshot feed. It also tracks
// the asynchronous collision-risk assessment and drops replies that arrive
// after a Reset.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/debris-collision-sim/core"
	"github.com/signalsfoundry/debris-collision-sim/internal/logging"
	"github.com/signalsfoundry/debris-collision-sim/internal/risk"
)

var (
	// ErrAssessmentDisabled indicates no classifier is configured.
	ErrAssessmentDisabled = errors.New("risk assessment is not configured")
	// ErrAssessmentPending indicates an assessment for the current epoch is
	// still in flight.
	ErrAssessmentPending = errors.New("risk assessment already in progress")
)

// Assessor classifies a relative position.
type Assessor interface {
	Assess(ctx context.Context, req risk.Request) (risk.Assessment, error)
}

// MetricsRecorder receives simulation events for export.
type MetricsRecorder interface {
	ObserveStep(res core.StepResult, decayFactor float64)
	ObserveReset()
	ObserveAssessment(outcome string, took time.Duration)
}

// Publisher receives a view after every change.
type Publisher interface {
	Publish(v View)
}

// Session serialises access to one OrbitalSimulation.
type Session struct {
	// mu guards sim, assessment and status.
	mu sync.Mutex

	sim        *core.OrbitalSimulation
	assessment AssessmentStatus
	status     string

	assessor          Assessor
	assessmentTimeout time.Duration
	// cancelInflight aborts the assessment started in the current epoch.
	cancelInflight context.CancelFunc

	log       logging.Logger
	metrics   MetricsRecorder
	publisher Publisher

	inflight sync.WaitGroup
}

// Option customises Session construction.
type Option func(*Session)

// WithAssessor enables risk assessments through a.
func WithAssessor(a Assessor) Option {
	return func(s *Session) {
		s.assessor = a
	}
}

// WithAssessmentTimeout bounds each assessment.
func WithAssessmentTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.assessmentTimeout = d
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsRecorder attaches a metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithPublisher attaches a view sink, such as the WebSocket feed.
func WithPublisher(p Publisher) Option {
	return func(s *Session) {
		s.publisher = p
	}
}

// New builds a simulation from cfg and wraps it.
func New(cfg core.SimulationConfig, opts ...Option) (*Session, error) {
	sim, err := core.NewOrbitalSimulation(cfg)
	if err != nil {
		return nil, err
	}
	s := &Session{
		sim:               sim,
		assessment:        AssessmentStatus{Phase: PhaseIdle},
		assessmentTimeout: risk.DefaultTimeout,
		log:               logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Step advances the simulation by one tick.
func (s *Session) Step(ctx context.Context) core.StepResult {
	res, _ := s.step(ctx)
	return res
}

// StepView advances the simulation by one tick and returns the view of that
// tick, captured under the same lock as the step.
func (s *Session) StepView(ctx context.Context) StepView {
	res, view := s.step(ctx)
	return StepView{View: view, JustCollided: res.JustCollided}
}

func (s *Session) step(ctx context.Context) (core.StepResult, View) {
	s.mu.Lock()
	res := s.sim.Step()
	decay := s.sim.DecayFactor()
	epoch := s.sim.Epoch()
	if res.JustCollided {
		s.status = StatusCollided
	}
	view := s.viewLocked()
	s.mu.Unlock()

	if res.JustCollided {
		s.log.Info(ctx, "collision detected",
			logging.Uint64("epoch", epoch),
			logging.Int("time_step", res.TimeStep),
			logging.Float64("distance", res.Distance),
			logging.Float64("decay_factor", decay),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveStep(res, decay)
	}
	if s.publisher != nil {
		s.publisher.Publish(view)
	}
	return res, view
}

// Reset returns the simulation to its initial state and starts a new epoch.
// An outstanding assessment is cancelled and whatever it returns is discarded.
func (s *Session) Reset(ctx context.Context) core.Snapshot {
	s.mu.Lock()
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.sim.Reset()
	s.assessment = AssessmentStatus{Phase: PhaseIdle, Epoch: s.sim.Epoch()}
	s.status = StatusReset
	snap := s.sim.Snapshot()
	view := s.viewLocked()
	s.mu.Unlock()

	s.log.Info(ctx, "simulation reset", logging.Uint64("epoch", snap.Epoch))
	if s.metrics != nil {
		s.metrics.ObserveReset()
	}
	if s.publisher != nil {
		s.publisher.Publish(view)
	}
	return snap
}

// Snapshot returns a copy of the simulation state.
func (s *Session) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Snapshot()
}

// View returns the presentation view of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Rings returns the trajectory outlines under the current plane orientation.
func (s *Session) Rings() core.Rings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Rings()
}

// Config returns the simulation configuration.
func (s *Session) Config() core.SimulationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Config()
}

// Assessment returns the latest assessment status.
func (s *Session) Assessment() AssessmentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assessment
}

// Wait blocks until every outstanding assessment has finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// RequestAssessment captures debris minus satellite now and classifies it in
// the background. The returned status is the pending record; poll
// Assessment for the outcome.
func (s *Session) RequestAssessment(ctx context.Context) (AssessmentStatus, error) {
	if s.assessor == nil {
		return AssessmentStatus{}, ErrAssessmentDisabled
	}

	s.mu.Lock()
	epoch := s.sim.Epoch()
	if s.assessment.Phase == PhasePending && s.assessment.Epoch == epoch {
		current := s.assessment
		s.mu.Unlock()
		return current, ErrAssessmentPending
	}
	rel, _ := s.sim.RelativeState()
	pending := AssessmentStatus{
		ID:          uuid.NewString(),
		Epoch:       epoch,
		Phase:       PhasePending,
		Request:     risk.NewRequest(rel),
		RequestedAt: time.Now(),
	}
	// The request context belongs to the caller; the assessment outlives it
	// and is bounded by the epoch instead.
	runCtx, cancel := context.WithTimeout(
		logging.ContextWithRequestID(context.Background(), logging.RequestIDFromContext(ctx)),
		s.assessmentTimeout,
	)
	s.assessment = pending
	s.status = StatusCalculating
	s.cancelInflight = cancel
	s.mu.Unlock()

	log := logging.FromContext(ctx, s.log).With(
		logging.String("assessment_id", pending.ID),
		logging.Uint64("epoch", epoch),
	)
	log.Info(ctx, "risk assessment requested", logging.Float64("distance_km", pending.Request.DistanceKm))

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		s.runAssessment(runCtx, pending, log)
	}()
	return pending, nil
}

func (s *Session) runAssessment(ctx context.Context, pending AssessmentStatus, log logging.Logger) {
	start := time.Now()
	out, err := s.assessor.Assess(ctx, pending.Request)
	took := time.Since(start)

	s.mu.Lock()
	if s.sim.Epoch() != pending.Epoch || s.assessment.ID != pending.ID {
		s.mu.Unlock()
		log.Info(ctx, "discarding stale risk assessment", logging.Bool("failed", err != nil))
		s.observeAssessment(outcomeStale, took)
		return
	}

	s.cancelInflight = nil
	done := pending
	done.CompletedAt = time.Now()
	var outcome string
	if err != nil {
		done.Phase = PhaseUnavailable
		done.Error = err.Error()
		outcome = outcomeUnavailable
		s.status = StatusUnavailable
	} else {
		done.Verdict = out.Verdict
		done.Echo = out.Input
		if out.Verdict == risk.VerdictHigh {
			done.Phase = PhaseHighRisk
			outcome = outcomeHigh
			s.status = StatusHighRisk
		} else {
			done.Phase = PhaseLowRisk
			outcome = outcomeLow
			s.status = StatusLowRisk
		}
	}
	s.assessment = done
	view := s.viewLocked()
	s.mu.Unlock()

	if err != nil {
		log.Warn(ctx, "risk assessment unavailable", logging.Err(err))
	} else {
		log.Info(ctx, "risk assessment completed", logging.String("verdict", string(done.Verdict)))
	}
	s.observeAssessment(outcome, took)
	if s.publisher != nil {
		s.publisher.Publish(view)
	}
}

func (s *Session) observeAssessment(outcome string, took time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveAssessment(outcome, took)
	}
}
