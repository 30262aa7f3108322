package batch

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaswdr/faker"

	"github.com/signalsfoundry/tripduration/core"
	"github.com/signalsfoundry/tripduration/geo"
)

const tripsCSV = `id,vendor_id,pickup_datetime,dropoff_datetime,passenger_count,pickup_longitude,pickup_latitude,dropoff_longitude,dropoff_latitude,store_and_fwd_flag,trip_duration
id2875421,2,2016-03-14 17:24:55,2016-03-14 17:32:30,1,-73.982155,40.767937,-73.964630,40.765602,N,455
id2377394,1,2016-06-12 00:43:35,2016-06-12 00:54:38,1,-73.980415,40.738564,-73.999481,40.731152,N,663
id3858529,2,2016-01-19 11:35:24,2016-01-19 12:10:48,1,-73.979027,40.763939,-74.005333,40.710087,N,
`

func readFixtureTrips(t *testing.T) []TripRecord {
	t.Helper()
	trips, err := ReadTrips(strings.NewReader(tripsCSV))
	if err != nil {
		t.Fatalf("ReadTrips: %v", err)
	}
	return trips
}

func TestReadTrips(t *testing.T) {
	trips := readFixtureTrips(t)
	if len(trips) != 3 {
		t.Fatalf("len = %d, want 3", len(trips))
	}
	first := trips[0]
	if first.ID != "id2875421" || first.VendorID != 2 || first.PickupLatitude != 40.767937 {
		t.Fatalf("first trip = %+v", first)
	}
	if first.TripDuration == nil || *first.TripDuration != 455 {
		t.Fatalf("TripDuration = %v", first.TripDuration)
	}
	if trips[2].TripDuration != nil {
		t.Fatalf("blank trip_duration should decode to nil")
	}

	if _, err := ReadTrips(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestDerive(t *testing.T) {
	trips := readFixtureTrips(t)

	var progress []int
	recs, err := Derive(trips, DeriveOptions{ChunkSize: 2, Progress: func(done int) {
		progress = append(progress, done)
	}})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if len(recs) != len(trips) {
		t.Fatalf("len = %d, want %d", len(recs), len(trips))
	}
	if len(progress) != 2 || progress[0] != 2 || progress[1] != 3 {
		t.Fatalf("progress = %v", progress)
	}

	for i, rec := range recs {
		want, err := geo.Derive(
			geoPair(trips[i]).Pickup,
			geoPair(trips[i]).Dropoff,
		)
		if err != nil {
			t.Fatalf("geo.Derive: %v", err)
		}
		if rec.Distance != want.DistanceMeters || rec.Bearing != want.BearingDegrees {
			t.Fatalf("row %d: got (%v, %v), want %+v", i, rec.Distance, rec.Bearing, want)
		}
		if rec.ID != trips[i].ID {
			t.Fatalf("row %d: order not preserved", i)
		}
	}

	if recs[0].LogTripDuration == nil || math.Abs(*recs[0].LogTripDuration-core.LogDuration.Forward(455)) > 1e-12 {
		t.Fatalf("LogTripDuration = %v", recs[0].LogTripDuration)
	}
	if recs[2].TripDuration != nil || recs[2].LogTripDuration != nil {
		t.Fatalf("unknown duration must stay unset")
	}
}

func TestDeriveFailsFast(t *testing.T) {
	trips := readFixtureTrips(t)
	trips[1].PickupLatitude = 123

	calls := 0
	recs, err := Derive(trips, DeriveOptions{ChunkSize: 1, Progress: func(int) { calls++ }})
	if !errors.Is(err, geo.ErrInvalidCoordinate) {
		t.Fatalf("err = %v, want ErrInvalidCoordinate", err)
	}
	if recs != nil {
		t.Fatalf("partial results returned: %v", recs)
	}
	if !strings.Contains(err.Error(), "trips 1-1") {
		t.Fatalf("error does not locate the trip: %v", err)
	}
	if calls != 1 {
		t.Fatalf("progress calls = %d, want 1", calls)
	}
}

func TestReadTripsRequiresCoordinateColumns(t *testing.T) {
	_, err := ReadTrips(strings.NewReader("id,pickup_latitude,pickup_longitude\na,40.7,-74.0\n"))
	if err == nil {
		t.Fatalf("expected error for CSV without dropoff columns")
	}
	if !strings.Contains(err.Error(), "dropoff_latitude, dropoff_longitude") {
		t.Fatalf("error does not name the missing columns: %v", err)
	}

	trips, err := ReadTrips(strings.NewReader("pickup_latitude,pickup_longitude,dropoff_latitude,dropoff_longitude\n40.7,-74.0,40.73,-73.93\n"))
	if err != nil || len(trips) != 1 {
		t.Fatalf("coordinates-only CSV: %v, %v", trips, err)
	}
}

func TestDeriveRejectsInvalidDuration(t *testing.T) {
	for _, d := range []float64{-1, -0.5, math.NaN(), math.Inf(1)} {
		trips := readFixtureTrips(t)
		trips[1].TripDuration = &d

		recs, err := Derive(trips, DeriveOptions{})
		if !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("duration %v: err = %v, want ErrInvalidDuration", d, err)
		}
		if recs != nil {
			t.Fatalf("duration %v: partial results returned", d)
		}
		if !strings.Contains(err.Error(), "trip 1 (id2377394)") {
			t.Fatalf("error does not locate the trip: %v", err)
		}
	}
}

func TestDeriveRandomTrips(t *testing.T) {
	fake := faker.New()
	trips := make([]TripRecord, 500)
	for i := range trips {
		trips[i] = TripRecord{
			ID:               fake.UUID().V4(),
			PassengerCount:   int32(fake.IntBetween(1, 6)),
			PickupLatitude:   fake.Float64(6, 40, 41),
			PickupLongitude:  fake.Float64(6, -75, -73),
			DropoffLatitude:  fake.Float64(6, 40, 41),
			DropoffLongitude: fake.Float64(6, -75, -73),
		}
	}

	recs, err := Derive(trips, DeriveOptions{ChunkSize: 64})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	for i, rec := range recs {
		if rec.Distance < 0 || rec.Bearing < 0 || rec.Bearing >= 360 {
			t.Fatalf("row %d out of range: %+v", i, rec)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	recs, err := Derive(readFixtureTrips(t), DeriveOptions{})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, recs); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "distance,bearing") || !strings.Contains(lines[0], "log_trip_duration") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "id2875421,2,") {
		t.Fatalf("first row = %q", lines[1])
	}

	buf.Reset()
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV(nil): %v", err)
	}
	if !strings.HasPrefix(buf.String(), "id,vendor_id") {
		t.Fatalf("empty output should still carry a header: %q", buf.String())
	}
}

func TestParquetRoundTrip(t *testing.T) {
	recs, err := Derive(readFixtureTrips(t), DeriveOptions{})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	path := filepath.Join(t.TempDir(), "features.parquet")
	if err := WriteParquet(path, recs); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	got, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(got) != len(recs) {
		t.Fatalf("rows = %d, want %d", len(got), len(recs))
	}
	if got[1].ID != recs[1].ID || got[1].Distance != recs[1].Distance {
		t.Fatalf("row 1 = %+v, want %+v", got[1], recs[1])
	}
	if got[2].LogTripDuration != nil {
		t.Fatalf("optional column should round-trip as null")
	}
}

func geoPair(t TripRecord) geo.Pair {
	return geo.Pair{
		Pickup:  coordinate(t.PickupLatitude, t.PickupLongitude),
		Dropoff: coordinate(t.DropoffLatitude, t.DropoffLongitude),
	}
}
