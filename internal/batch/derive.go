package batch

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/tripduration/core"
	"github.com/signalsfoundry/tripduration/geo"
	"github.com/signalsfoundry/tripduration/model"
)

// DefaultChunkSize is the number of trips handed to geo.DeriveBatch at once.
const DefaultChunkSize = 4096

// ErrInvalidDuration marks a known trip_duration that is negative or not
// finite, for which no log target exists.
var ErrInvalidDuration = errors.New("invalid trip duration")

// DeriveOptions tunes Derive.
type DeriveOptions struct {
	ChunkSize int
	// Progress, when set, is called after each chunk with the number of
	// trips processed so far.
	Progress func(done int)
	// Transform maps known durations to the training target. Defaults to
	// core.LogDuration.
	Transform core.TargetTransform
}

// Derive computes distance, bearing and the log target for every trip. It
// fails on the first trip with an invalid coordinate or duration and returns
// no rows in that case.
func Derive(trips []TripRecord, opts DeriveOptions) ([]DerivedRecord, error) {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	transform := opts.Transform
	if transform == nil {
		transform = core.LogDuration
	}

	out := make([]DerivedRecord, 0, len(trips))
	pairs := make([]geo.Pair, 0, chunk)
	for start := 0; start < len(trips); start += chunk {
		end := min(start+chunk, len(trips))

		pairs = pairs[:0]
		for i, t := range trips[start:end] {
			if err := checkDuration(t.TripDuration); err != nil {
				return nil, fmt.Errorf("trip %d (%s): %w", start+i, t.ID, err)
			}
			pairs = append(pairs, geo.Pair{
				Pickup:  coordinate(t.PickupLatitude, t.PickupLongitude),
				Dropoff: coordinate(t.DropoffLatitude, t.DropoffLongitude),
			})
		}
		features, err := geo.DeriveBatch(pairs)
		if err != nil {
			return nil, fmt.Errorf("trips %d-%d: %w", start, end-1, err)
		}

		for i, t := range trips[start:end] {
			out = append(out, derived(t, features[i], transform))
		}
		if opts.Progress != nil {
			opts.Progress(end)
		}
	}
	return out, nil
}

func derived(t TripRecord, gf model.GeoFeatures, transform core.TargetTransform) DerivedRecord {
	d := DerivedRecord{
		ID:               t.ID,
		VendorID:         t.VendorID,
		PickupDatetime:   t.PickupDatetime,
		PassengerCount:   t.PassengerCount,
		PickupLongitude:  t.PickupLongitude,
		PickupLatitude:   t.PickupLatitude,
		DropoffLongitude: t.DropoffLongitude,
		DropoffLatitude:  t.DropoffLatitude,
		StoreAndFwdFlag:  t.StoreAndFwdFlag,
		Distance:         gf.DistanceMeters,
		Bearing:          gf.BearingDegrees,
	}
	if t.TripDuration != nil {
		seconds := *t.TripDuration
		target := transform.Forward(seconds)
		d.TripDuration = &seconds
		d.LogTripDuration = &target
	}
	return d
}

func checkDuration(d *float64) error {
	if d == nil {
		return nil
	}
	if math.IsNaN(*d) || math.IsInf(*d, 0) || *d < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, *d)
	}
	return nil
}

func coordinate(lat, lon float64) model.Coordinate {
	return model.Coordinate{Lat: lat, Lon: lon}
}
