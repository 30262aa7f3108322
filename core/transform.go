package core

import "math"

// TargetTransform is the invertible mapping applied to trip durations before
// training. Inverse(Forward(x)) must return x for every valid duration.
type TargetTransform interface {
	Forward(seconds float64) float64
	Inverse(raw float64) float64
}

type logDuration struct{}

// LogDuration maps durations with log1p for training and back with expm1 at
// inference. Both the serving path and the batch feature pipeline use it.
var LogDuration TargetTransform = logDuration{}

func (logDuration) Forward(seconds float64) float64 { return math.Log1p(seconds) }
func (logDuration) Inverse(raw float64) float64 { return math.Expm1(raw) }
