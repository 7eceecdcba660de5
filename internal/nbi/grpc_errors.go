package nbi

import (
	"context"
	"errors"

	"github.com/signalsfoundry/debris-collision-sim/core"
	"github.com/signalsfoundry/debris-collision-sim/internal/risk"
	"github.com/signalsfoundry/debris-collision-sim/internal/sim/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatusError maps simulator errors onto gRPC status codes for the control
// surface.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrInvalidConfig),
		errors.Is(err, risk.ErrInvalidEndpoint):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, session.ErrAssessmentDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, session.ErrAssessmentPending):
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, risk.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
