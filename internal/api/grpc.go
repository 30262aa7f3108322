package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/tripduration/internal/logging"
	"github.com/signalsfoundry/tripduration/internal/observability"
)

const (
	// PredictionServiceName is the fully-qualified gRPC service name.
	PredictionServiceName = "tripduration.v1.PredictionService"
	// PredictFullMethod is the unary method callers invoke.
	PredictFullMethod = "/" + PredictionServiceName + "/Predict"

	// FormatMetadataKey optionally selects the duration representation, with
	// the same values as the HTTP format query parameter.
	FormatMetadataKey = "x-duration-format"
)

// PredictionServer is implemented by the gRPC prediction endpoint. Requests
// and responses are google.protobuf.Struct values holding the same mappings
// as the HTTP JSON bodies.
type PredictionServer interface {
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var predictionServiceDesc = grpc.ServiceDesc{
	ServiceName: PredictionServiceName,
	HandlerType: (*PredictionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tripduration/v1/prediction.proto",
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PredictionServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PredictionServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterPredictionServer attaches srv to a gRPC server.
func RegisterPredictionServer(s grpc.ServiceRegistrar, srv PredictionServer) {
	s.RegisterService(&predictionServiceDesc, srv)
}

// Predict calls the prediction endpoint over cc.
func Predict(ctx context.Context, cc grpc.ClientConnInterface, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, PredictFullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type predictionServer struct {
	handler  *RequestHandler
	observer RequestObserver
}

// NewPredictionServer adapts a RequestHandler to the gRPC surface.
// ValidationFailure maps to InvalidArgument and InternalFailure to Internal;
// the status message is the envelope's error text.
func NewPredictionServer(h *RequestHandler, observer RequestObserver) PredictionServer {
	return &predictionServer{handler: h, observer: observer}
}

func (s *predictionServer) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	resp := s.handle(ctx, req)
	if s.observer != nil {
		s.observer.ObserveRequest(observability.TransportGRPC, resp.Outcome.String(), time.Since(start))
	}
	if resp.Outcome != Success {
		return nil, statusFor(resp)
	}

	out, err := structpb.NewStruct(resp.Envelope.Map())
	if err != nil {
		logging.FromContext(ctx, nil).Error(ctx, "encode response struct", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *predictionServer) handle(ctx context.Context, req *structpb.Struct) Response {
	format := FormatBoth
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if raw := firstHeader(md, FormatMetadataKey); raw != "" {
			f, err := ParseFormat(raw)
			if err != nil {
				return failure(ValidationFailure, err)
			}
			format = f
		}
	}

	var payload any
	if req != nil {
		payload = req.AsMap()
	}
	return s.handler.Handle(ctx, payload, format)
}
