// Package nbi is the northbound control API of the simulator: a small gRPC
// service for stepping, resetting and querying a session and for starting
// risk assessments.
package nbi

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ControlServiceName is the fully-qualified gRPC service name.
const ControlServiceName = "orbitsim.v1.SimulationControl"

// Full method names, as seen by interceptors.
const (
	StepMethod              = "/" + ControlServiceName + "/Step"
	ResetMethod             = "/" + ControlServiceName + "/Reset"
	GetSnapshotMethod       = "/" + ControlServiceName + "/GetSnapshot"
	GetRingsMethod          = "/" + ControlServiceName + "/GetRings"
	RequestAssessmentMethod = "/" + ControlServiceName + "/RequestAssessment"
	GetAssessmentMethod     = "/" + ControlServiceName + "/GetAssessment"
)

// SimulationControlServer is the server API for the control service. Every
// method takes Empty and answers with a JSON-shaped Struct.
type SimulationControlServer interface {
	Step(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetRings(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RequestAssessment(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetAssessment(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type unaryMethod func(SimulationControlServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SimulationControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SimulationControlServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SimulationControlServiceDesc describes the control service for
// grpc.ServiceRegistrar.
var SimulationControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*SimulationControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Step", Handler: unaryHandler(StepMethod, SimulationControlServer.Step)},
		{MethodName: "Reset", Handler: unaryHandler(ResetMethod, SimulationControlServer.Reset)},
		{MethodName: "GetSnapshot", Handler: unaryHandler(GetSnapshotMethod, SimulationControlServer.GetSnapshot)},
		{MethodName: "GetRings", Handler: unaryHandler(GetRingsMethod, SimulationControlServer.GetRings)},
		{MethodName: "RequestAssessment", Handler: unaryHandler(RequestAssessmentMethod, SimulationControlServer.RequestAssessment)},
		{MethodName: "GetAssessment", Handler: unaryHandler(GetAssessmentMethod, SimulationControlServer.GetAssessment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orbitsim/v1/control.proto", // proto/orbitsim/v1/control.proto
}

// RegisterSimulationControlServer registers srv on s.
func RegisterSimulationControlServer(s grpc.ServiceRegistrar, srv SimulationControlServer) {
	s.RegisterService(&SimulationControlServiceDesc, srv)
}

// ControlClient calls the control service over a client connection.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient wraps cc.
func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) invoke(ctx context.Context, method string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) Step(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, StepMethod, opts...)
}

func (c *ControlClient) Reset(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ResetMethod, opts...)
}

func (c *ControlClient) GetSnapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetSnapshotMethod, opts...)
}

func (c *ControlClient) GetRings(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetRingsMethod, opts...)
}

func (c *ControlClient) RequestAssessment(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RequestAssessmentMethod, opts...)
}

func (c *ControlClient) GetAssessment(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetAssessmentMethod, opts...)
}

// ToStruct converts any JSON-encodable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}

// FromStruct decodes a Struct into dst, which must be a pointer.
func FromStruct(st *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}
