package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/jaswdr/faker"

	"github.com/signalsfoundry/tripduration/model"
)

var (
	newYork      = model.Coordinate{Lat: 40.7128, Lon: -74.0060}
	williamsburg = model.Coordinate{Lat: 40.7306, Lon: -73.9352}
)

func TestDeriveNewYorkToWilliamsburg(t *testing.T) {
	feat, err := Derive(newYork, williamsburg)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	// Roughly 6 km east-north-east across the East River.
	if feat.DistanceMeters < 6000 || feat.DistanceMeters > 6600 {
		t.Fatalf("distance = %.1f m, want 6000..6600", feat.DistanceMeters)
	}
	if feat.BearingDegrees < 60 || feat.BearingDegrees > 80 {
		t.Fatalf("bearing = %.2f deg, want 60..80", feat.BearingDegrees)
	}
}

func TestDistanceAlongEquator(t *testing.T) {
	// One degree of longitude on the WGS84 equator is a*pi/180.
	want := 6378137 * math.Pi / 180
	got, err := Distance(model.Coordinate{Lat: 0, Lon: 0}, model.Coordinate{Lat: 0, Lon: 1})
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("distance = %.4f, want %.4f", got, want)
	}
}

func TestBearingCardinalDirections(t *testing.T) {
	t.Parallel()

	origin := model.Coordinate{}
	tests := []struct {
		name string
		to   model.Coordinate
		want float64
	}{
		{name: "north", to: model.Coordinate{Lat: 1}, want: 0},
		{name: "east", to: model.Coordinate{Lon: 1}, want: 90},
		{name: "south", to: model.Coordinate{Lat: -1}, want: 180},
		{name: "west", to: model.Coordinate{Lon: -1}, want: 270},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Bearing(origin, tc.to)
			if err != nil {
				t.Fatalf("Bearing: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Bearing = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIdenticalPoints(t *testing.T) {
	d, err := Distance(newYork, newYork)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if d != 0 {
		t.Fatalf("Distance(p, p) = %v, want 0", d)
	}

	b, err := Bearing(newYork, newYork)
	if err != nil {
		t.Fatalf("Bearing: %v", err)
	}
	if math.IsNaN(b) || b < 0 || b >= 360 {
		t.Fatalf("Bearing(p, p) = %v, want a value in [0, 360)", b)
	}
}

func TestInvalidCoordinates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pickup  model.Coordinate
		dropoff model.Coordinate
	}{
		{name: "latitude too high", pickup: model.Coordinate{Lat: 200}, dropoff: newYork},
		{name: "latitude too low", pickup: newYork, dropoff: model.Coordinate{Lat: -90.5}},
		{name: "longitude out of range", pickup: model.Coordinate{Lon: 181}, dropoff: newYork},
		{name: "nan latitude", pickup: model.Coordinate{Lat: math.NaN()}, dropoff: newYork},
		{name: "infinite longitude", pickup: newYork, dropoff: model.Coordinate{Lon: math.Inf(-1)}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Distance(tc.pickup, tc.dropoff); !errors.Is(err, ErrInvalidCoordinate) {
				t.Fatalf("Distance err = %v, want ErrInvalidCoordinate", err)
			}
			if _, err := Bearing(tc.pickup, tc.dropoff); !errors.Is(err, ErrInvalidCoordinate) {
				t.Fatalf("Bearing err = %v, want ErrInvalidCoordinate", err)
			}
			if _, err := Derive(tc.pickup, tc.dropoff); !errors.Is(err, ErrInvalidCoordinate) {
				t.Fatalf("Derive err = %v, want ErrInvalidCoordinate", err)
			}
		})
	}
}

func TestBoundaryCoordinatesAreValid(t *testing.T) {
	for _, c := range []model.Coordinate{
		{Lat: 90, Lon: 180},
		{Lat: -90, Lon: -180},
	} {
		if err := Validate(c); err != nil {
			t.Fatalf("Validate(%+v) = %v, want nil", c, err)
		}
	}
}

func TestRandomPairsStayInRange(t *testing.T) {
	fake := faker.New()
	for i := 0; i < 500; i++ {
		a := model.Coordinate{Lat: fake.Float64(6, -89, 89), Lon: fake.Float64(6, -179, 179)}
		b := model.Coordinate{Lat: fake.Float64(6, -89, 89), Lon: fake.Float64(6, -179, 179)}

		feat, err := Derive(a, b)
		if err != nil {
			t.Fatalf("Derive(%+v, %+v): %v", a, b, err)
		}
		if feat.DistanceMeters < 0 || math.IsNaN(feat.DistanceMeters) {
			t.Fatalf("distance(%+v, %+v) = %v, want >= 0", a, b, feat.DistanceMeters)
		}
		if feat.BearingDegrees < 0 || feat.BearingDegrees >= 360 {
			t.Fatalf("bearing(%+v, %+v) = %v, want [0, 360)", a, b, feat.BearingDegrees)
		}
	}
}
