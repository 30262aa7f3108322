package api

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStatusError maps a pipeline error onto a gRPC status. Errors that already
// carry a status pass through unchanged.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	resp := failure(Classify(err), err)
	return statusFor(resp)
}

// statusFor carries the failure envelope as a google.protobuf.Struct status
// detail, so gRPC callers see the same {"error": ...} shape as HTTP callers.
func statusFor(resp Response) error {
	var code codes.Code
	switch resp.Outcome {
	case Success:
		return nil
	case ValidationFailure:
		code = codes.InvalidArgument
	default:
		code = codes.Internal
	}

	st := status.New(code, resp.Envelope.Error)
	if detail, err := structpb.NewStruct(resp.Envelope.Map()); err == nil {
		if withDetail, err := st.WithDetails(detail); err == nil {
			st = withDetail
		}
	}
	return st.Err()
}

// FailureEnvelope recovers the error envelope attached to a status returned
// by the prediction service.
func FailureEnvelope(err error) (Envelope, bool) {
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return Envelope{}, false
	}
	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		if msg, ok := s.AsMap()["error"].(string); ok {
			return Envelope{Error: msg}, true
		}
	}
	return Envelope{}, false
}
