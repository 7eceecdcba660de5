package nbi

import (
	"context"

	"github.com/signalsfoundry/debris-collision-sim/core"
	"github.com/signalsfoundry/debris-collision-sim/internal/logging"
	"github.com/signalsfoundry/debris-collision-sim/internal/sim/session"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Simulation is the subset of session.Session the control service drives.
type Simulation interface {
	StepView(ctx context.Context) session.StepView
	Reset(ctx context.Context) core.Snapshot
	View() session.View
	Rings() core.Rings
	RequestAssessment(ctx context.Context) (session.AssessmentStatus, error)
	Assessment() session.AssessmentStatus
}

// ControlService implements SimulationControlServer on top of a session.
//
// Step answers with the view of the tick it ran plus just_collided. Reset
// answers with the view after the change. RequestAssessment
// answers with the pending record immediately; the verdict is read later
// with GetAssessment or from the feed.
type ControlService struct {
	sim Simulation
	log logging.Logger
}

// NewControlService binds a control service to sim.
func NewControlService(sim Simulation, log logging.Logger) *ControlService {
	if log == nil {
		log = logging.Noop()
	}
	return &ControlService{sim: sim, log: log}
}

func (s *ControlService) ensureReady() error {
	if s == nil || s.sim == nil {
		return status.Error(codes.FailedPrecondition, "simulation not initialised")
	}
	return nil
}

func (s *ControlService) Step(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.respond(ctx, s.sim.StepView(ctx))
}

func (s *ControlService) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	s.sim.Reset(ctx)
	return s.respond(ctx, s.sim.View())
}

func (s *ControlService) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.respond(ctx, s.sim.View())
}

// ringsResponse is the JSON shape of GetRings.
type ringsResponse struct {
	Debris    []session.Point `json:"debris"`
	Satellite []session.Point `json:"satellite"`
}

func (s *ControlService) GetRings(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rings := s.sim.Rings()
	resp := ringsResponse{
		Debris:    make([]session.Point, 0, len(rings.Debris)),
		Satellite: make([]session.Point, 0, len(rings.Satellite)),
	}
	for _, p := range rings.Debris {
		resp.Debris = append(resp.Debris, session.Point{X: p.X, Y: p.Y, Z: p.Z})
	}
	for _, p := range rings.Satellite {
		resp.Satellite = append(resp.Satellite, session.Point{X: p.X, Y: p.Y, Z: p.Z})
	}
	return s.respond(ctx, resp)
}

func (s *ControlService) RequestAssessment(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	spanCtx, span := StartChildSpan(ctx, "session.RequestAssessment", "assessment", "")
	pending, err := s.sim.RequestAssessment(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		span.End()
		return nil, ToStatusError(err)
	}
	span.SetAttributes(
		attribute.String("entity_id", pending.ID),
		attribute.Int64("epoch", int64(pending.Epoch)),
		attribute.Float64("distance_km", pending.Request.DistanceKm),
	)
	span.End()

	return s.respond(ctx, pending)
}

func (s *ControlService) GetAssessment(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.respond(ctx, s.sim.Assessment())
}

func (s *ControlService) respond(ctx context.Context, v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		logging.FromContext(ctx, s.log).Error(ctx, "encode control response", logging.Err(err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
