package geo

import (
	"fmt"

	"github.com/signalsfoundry/tripduration/model"
)

// Pair is one pickup/dropoff coordinate pair.
type Pair struct {
	Pickup  model.Coordinate
	Dropoff model.Coordinate
}

// DistanceBatch applies Distance to every pair. Output order matches input
// order. The first invalid pair fails the whole batch and no results are
// returned.
func DistanceBatch(pairs []Pair) ([]float64, error) {
	if err := validateBatch(pairs); err != nil {
		return nil, err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = distance(p.Pickup, p.Dropoff)
	}
	return out, nil
}

// BearingBatch applies Bearing to every pair with the same fail-fast
// semantics as DistanceBatch.
func BearingBatch(pairs []Pair) ([]float64, error) {
	if err := validateBatch(pairs); err != nil {
		return nil, err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = bearing(p.Pickup, p.Dropoff)
	}
	return out, nil
}

// DeriveBatch applies Derive to every pair.
func DeriveBatch(pairs []Pair) ([]model.GeoFeatures, error) {
	if err := validateBatch(pairs); err != nil {
		return nil, err
	}
	out := make([]model.GeoFeatures, len(pairs))
	for i, p := range pairs {
		out[i] = model.GeoFeatures{
			DistanceMeters: distance(p.Pickup, p.Dropoff),
			BearingDegrees: bearing(p.Pickup, p.Dropoff),
		}
	}
	return out, nil
}

func validateBatch(pairs []Pair) error {
	for i, p := range pairs {
		if err := validatePair(p.Pickup, p.Dropoff); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
	}
	return nil
}
