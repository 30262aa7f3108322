// Package api exposes the prediction service over HTTP and gRPC and maps
// every request onto one of three terminal outcomes.
package api

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/signalsfoundry/tripduration/core"
	"github.com/signalsfoundry/tripduration/geo"
	"github.com/signalsfoundry/tripduration/internal/logging"
	"github.com/signalsfoundry/tripduration/model"
)

// Predictor is the part of core.PredictionService the handler needs.
type Predictor interface {
	PredictTripDuration(ctx context.Context, raw map[string]float64) (model.PredictionResult, error)
	Features() []string
}

var _ Predictor = (*core.PredictionService)(nil)

// internalErrorMessage is shown for failures whose detail should not reach
// callers.
const internalErrorMessage = "internal error"

// Response is the transport-neutral result of one request.
type Response struct {
	Outcome  Outcome
	Envelope Envelope
	// Err is the underlying failure, nil on Success. It is for logging and
	// status mapping, never serialised as-is.
	Err error
}

// RequestHandler parses payloads, runs the prediction pipeline and shapes the
// response. Failures never escape Handle, panics included.
type RequestHandler struct {
	predictor Predictor
	log       logging.Logger
}

func NewRequestHandler(p Predictor, log logging.Logger) *RequestHandler {
	if log == nil {
		log = logging.Noop()
	}
	return &RequestHandler{predictor: p, log: log}
}

// Features returns the model schema served by this handler.
func (h *RequestHandler) Features() []string { return h.predictor.Features() }

// Handle processes one decoded payload.
func (h *RequestHandler) Handle(ctx context.Context, payload any, format Format) (resp Response) {
	log := logging.FromContext(ctx, h.log)

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "prediction pipeline panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			resp = failure(InternalFailure, fmt.Errorf("panic: %v", r))
		}
	}()

	raw, err := ParsePayload(payload)
	if err != nil {
		return h.fail(ctx, log, err)
	}

	res, err := h.predictor.PredictTripDuration(ctx, raw)
	if err != nil {
		return h.fail(ctx, log, err)
	}
	return Response{Outcome: Success, Envelope: successEnvelope(res.DurationSeconds, format)}
}

func (h *RequestHandler) fail(ctx context.Context, log logging.Logger, err error) Response {
	outcome := Classify(err)
	if outcome == ValidationFailure {
		log.Info(ctx, "prediction request rejected", logging.Err(err))
	} else {
		log.Error(ctx, "prediction request failed", logging.Err(err))
	}
	return failure(outcome, err)
}

func failure(outcome Outcome, err error) Response {
	msg := err.Error()
	if outcome == InternalFailure && !errors.Is(err, core.ErrInferenceAnomaly) {
		msg = internalErrorMessage
	}
	return Response{Outcome: outcome, Envelope: Envelope{Error: msg}, Err: err}
}

// Classify maps a pipeline error to its outcome. Unknown errors are internal.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrMalformedPayload),
		errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, model.ErrFeatureSchemaMismatch):
		return ValidationFailure
	default:
		return InternalFailure
	}
}
