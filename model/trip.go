package model

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// GeoFeatures are the attributes derived from a pickup/dropoff pair.
type GeoFeatures struct {
	DistanceMeters float64 // WGS84 geodesic, >= 0
	BearingDegrees float64 // initial bearing, [0, 360)
}

// PredictionResult carries one inference from the prediction service to the
// transport layer.
type PredictionResult struct {
	RawOutput       float64 // model output in the log domain
	DurationSeconds float64
}
