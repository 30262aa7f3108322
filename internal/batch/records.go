// Package batch derives model features for whole trip datasets, the offline
// counterpart of the per-request derivation in core.
package batch

// TripRecord is one row of the raw NYC taxi trip export. Columns not listed
// here are ignored on read.
type TripRecord struct {
	ID               string   `csv:"id"`
	VendorID         int32    `csv:"vendor_id,omitempty"`
	PickupDatetime   string   `csv:"pickup_datetime,omitempty"`
	PassengerCount   int32    `csv:"passenger_count"`
	PickupLongitude  float64  `csv:"pickup_longitude"`
	PickupLatitude   float64  `csv:"pickup_latitude"`
	DropoffLongitude float64  `csv:"dropoff_longitude"`
	DropoffLatitude  float64  `csv:"dropoff_latitude"`
	StoreAndFwdFlag  string   `csv:"store_and_fwd_flag,omitempty"`
	TripDuration     *float64 `csv:"trip_duration,omitempty"`
}

// DerivedRecord is a TripRecord enriched with geo features and, when the
// duration is known, the log-domain training target.
type DerivedRecord struct {
	ID               string   `csv:"id" parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	VendorID         int32    `csv:"vendor_id" parquet:"name=vendor_id, type=INT32"`
	PickupDatetime   string   `csv:"pickup_datetime" parquet:"name=pickup_datetime, type=BYTE_ARRAY, convertedtype=UTF8"`
	PassengerCount   int32    `csv:"passenger_count" parquet:"name=passenger_count, type=INT32"`
	PickupLongitude  float64  `csv:"pickup_longitude" parquet:"name=pickup_longitude, type=DOUBLE"`
	PickupLatitude   float64  `csv:"pickup_latitude" parquet:"name=pickup_latitude, type=DOUBLE"`
	DropoffLongitude float64  `csv:"dropoff_longitude" parquet:"name=dropoff_longitude, type=DOUBLE"`
	DropoffLatitude  float64  `csv:"dropoff_latitude" parquet:"name=dropoff_latitude, type=DOUBLE"`
	StoreAndFwdFlag  string   `csv:"store_and_fwd_flag" parquet:"name=store_and_fwd_flag, type=BYTE_ARRAY, convertedtype=UTF8"`
	Distance         float64  `csv:"distance" parquet:"name=distance, type=DOUBLE"`
	Bearing          float64  `csv:"bearing" parquet:"name=bearing, type=DOUBLE"`
	TripDuration     *float64 `csv:"trip_duration,omitempty" parquet:"name=trip_duration, type=DOUBLE, repetitiontype=OPTIONAL"`
	LogTripDuration  *float64 `csv:"log_trip_duration,omitempty" parquet:"name=log_trip_duration, type=DOUBLE, repetitiontype=OPTIONAL"`
}
