// Package core turns raw trip attributes into a duration estimate.
package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/tripduration/geo"
	"github.com/signalsfoundry/tripduration/internal/logging"
	"github.com/signalsfoundry/tripduration/internal/observability"
	"github.com/signalsfoundry/tripduration/model"
)

// ErrInferenceAnomaly is returned when the inverted model output is not a
// physically meaningful duration (NaN, infinite or negative).
var ErrInferenceAnomaly = errors.New("inference anomaly")

// Model is the inference surface the service depends on. *artifact.Model
// satisfies it.
type Model interface {
	Features() []string
	Predict(fv model.FeatureVector) (float64, error)
}

// MetricsRecorder receives every successful prediction.
type MetricsRecorder interface {
	ObservePrediction(seconds float64)
}

// PredictionService runs the derive, vectorise, infer and invert pipeline for
// one request. It holds no per-request state and is safe for concurrent use.
type PredictionService struct {
	model     Model
	schema    []string
	inSchema  map[string]struct{}
	fields    FieldNames
	transform TargetTransform
	metrics   MetricsRecorder
	log       logging.Logger
}

// Option customises a PredictionService.
type Option func(*PredictionService)

// WithFieldNames overrides the coordinate and derived feature names. Empty
// entries keep their defaults.
func WithFieldNames(f FieldNames) Option {
	return func(s *PredictionService) { s.fields = f.withDefaults() }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *PredictionService) { s.metrics = m }
}

// NewPredictionService wraps m. The model's schema is read once here.
func NewPredictionService(m Model, log logging.Logger, opts ...Option) (*PredictionService, error) {
	if m == nil {
		return nil, errors.New("prediction service requires a model")
	}
	if log == nil {
		log = logging.Noop()
	}
	schema := m.Features()
	if len(schema) == 0 {
		return nil, errors.New("model has an empty feature schema")
	}

	s := &PredictionService{
		model:     m,
		schema:    schema,
		inSchema:  make(map[string]struct{}, len(schema)),
		fields:    DefaultFieldNames(),
		transform: LogDuration,
		log:       log,
	}
	for _, name := range schema {
		s.inSchema[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Features returns the ordered schema callers must satisfy.
func (s *PredictionService) Features() []string {
	return append([]string(nil), s.schema...)
}

// PredictTripDuration estimates the duration of one trip.
//
// When all four coordinate fields are present, distance and bearing are
// derived from them and override any caller-supplied values of the same
// names; coordinate fields that are not model features are then dropped.
// The remaining values must match the model schema exactly.
func (s *PredictionService) PredictTripDuration(ctx context.Context, raw map[string]float64) (model.PredictionResult, error) {
	log := logging.FromContext(ctx, s.log)

	features := make(map[string]float64, len(raw)+2)
	for k, v := range raw {
		features[k] = v
	}

	if err := s.deriveGeo(ctx, features); err != nil {
		return model.PredictionResult{}, err
	}

	fv, err := model.NewFeatureVector(s.schema, features)
	if err != nil {
		return model.PredictionResult{}, err
	}

	ctx, span := observability.StartSpan(ctx, "model.predict", attribute.Int("features", fv.Len()))
	defer span.End()

	out, err := s.model.Predict(fv)
	if err != nil {
		span.RecordError(err)
		return model.PredictionResult{}, fmt.Errorf("predict: %w", err)
	}

	seconds := s.transform.Inverse(out)
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		span.SetStatus(codes.Error, "inference anomaly")
		log.Error(ctx, "model produced a non-physical duration",
			logging.Float64("raw_output", out),
			logging.Float64("duration_seconds", seconds),
		)
		return model.PredictionResult{}, fmt.Errorf("%w: duration %v from raw output %v", ErrInferenceAnomaly, seconds, out)
	}

	if s.metrics != nil {
		s.metrics.ObservePrediction(seconds)
	}
	log.Debug(ctx, "trip duration predicted",
		logging.Any("features", fv.Names()),
		logging.Float64("raw_output", out),
		logging.Float64("duration_seconds", seconds),
	)
	return model.PredictionResult{RawOutput: out, DurationSeconds: seconds}, nil
}

func (s *PredictionService) deriveGeo(ctx context.Context, features map[string]float64) error {
	names := s.fields.coordinates()
	present := 0
	for _, name := range names {
		v, ok := features[name]
		if !ok {
			continue
		}
		present++
		if err := validateAxis(name, v, name == s.fields.PickupLatitude || name == s.fields.DropoffLatitude); err != nil {
			return err
		}
	}
	if present < len(names) {
		return nil
	}

	_, span := observability.StartSpan(ctx, "geo.derive")
	defer span.End()

	pickup := model.Coordinate{Lat: features[s.fields.PickupLatitude], Lon: features[s.fields.PickupLongitude]}
	dropoff := model.Coordinate{Lat: features[s.fields.DropoffLatitude], Lon: features[s.fields.DropoffLongitude]}
	gf, err := geo.Derive(pickup, dropoff)
	if err != nil {
		span.RecordError(err)
		return err
	}
	features[s.fields.Distance] = gf.DistanceMeters
	features[s.fields.Bearing] = gf.BearingDegrees
	span.SetAttributes(
		attribute.Float64("distance_m", gf.DistanceMeters),
		attribute.Float64("bearing_deg", gf.BearingDegrees),
	)

	for _, name := range names {
		if _, keep := s.inSchema[name]; !keep {
			delete(features, name)
		}
	}
	return nil
}

func validateAxis(field string, v float64, latitude bool) error {
	c := model.Coordinate{Lon: v}
	if latitude {
		c = model.Coordinate{Lat: v}
	}
	if err := geo.Validate(c); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
