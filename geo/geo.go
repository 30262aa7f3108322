// Package geo derives trip features from pickup and dropoff coordinates.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/geodesic"

	"github.com/signalsfoundry/tripduration/model"
)

// ErrInvalidCoordinate is returned for out-of-range or non-finite coordinates.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Validate checks that c is finite and within latitude [-90, 90] and
// longitude [-180, 180].
func Validate(c model.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

func validatePair(pickup, dropoff model.Coordinate) error {
	if err := Validate(pickup); err != nil {
		return fmt.Errorf("pickup: %w", err)
	}
	if err := Validate(dropoff); err != nil {
		return fmt.Errorf("dropoff: %w", err)
	}
	return nil
}

// Distance returns the WGS84 geodesic distance between two points in metres.
func Distance(pickup, dropoff model.Coordinate) (float64, error) {
	if err := validatePair(pickup, dropoff); err != nil {
		return 0, err
	}
	return distance(pickup, dropoff), nil
}

// Bearing returns the initial bearing from pickup to dropoff in degrees,
// normalised to [0, 360). Identical points yield 0.
func Bearing(pickup, dropoff model.Coordinate) (float64, error) {
	if err := validatePair(pickup, dropoff); err != nil {
		return 0, err
	}
	return bearing(pickup, dropoff), nil
}

// Derive computes both geo features for a single pair.
func Derive(pickup, dropoff model.Coordinate) (model.GeoFeatures, error) {
	if err := validatePair(pickup, dropoff); err != nil {
		return model.GeoFeatures{}, err
	}
	return model.GeoFeatures{
		DistanceMeters: distance(pickup, dropoff),
		BearingDegrees: bearing(pickup, dropoff),
	}, nil
}

func distance(a, b model.Coordinate) float64 {
	if a == b {
		return 0
	}
	var s12 float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &s12, nil, nil)
	return math.Abs(s12)
}

func bearing(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	x := math.Sin(dLon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	theta := math.Atan2(x, y) * 180 / math.Pi

	return math.Mod(theta+360, 360)
}
