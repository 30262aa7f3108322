package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrFeatureSchemaMismatch is returned when a feature set does not line up with
// the schema a model was trained on.
var ErrFeatureSchemaMismatch = errors.New("feature schema mismatch")

// FeatureVector is an ordered set of named feature values. The zero value is an
// empty vector.
type FeatureVector struct {
	names  []string
	values []float64
}

// NewFeatureVector orders values according to schema. Every schema name must be
// present in values and values must not carry names outside the schema.
func NewFeatureVector(schema []string, values map[string]float64) (FeatureVector, error) {
	var missing []string
	for _, name := range schema {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}

	var extra []string
	if len(values) != len(schema)-len(missing) {
		known := make(map[string]struct{}, len(schema))
		for _, name := range schema {
			known[name] = struct{}{}
		}
		for name := range values {
			if _, ok := known[name]; !ok {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
	}

	if len(missing) > 0 || len(extra) > 0 {
		return FeatureVector{}, schemaError(missing, extra)
	}

	fv := FeatureVector{
		names:  make([]string, len(schema)),
		values: make([]float64, len(schema)),
	}
	for i, name := range schema {
		fv.names[i] = name
		fv.values[i] = values[name]
	}
	return fv, nil
}

// Len returns the number of features.
func (fv FeatureVector) Len() int { return len(fv.names) }

// Name returns the i-th feature name.
func (fv FeatureVector) Name(i int) string { return fv.names[i] }

// Value returns the i-th feature value.
func (fv FeatureVector) Value(i int) float64 { return fv.values[i] }

// Names returns a copy of the ordered feature names.
func (fv FeatureVector) Names() []string {
	return append([]string(nil), fv.names...)
}

// Get looks a value up by name.
func (fv FeatureVector) Get(name string) (float64, bool) {
	for i, n := range fv.names {
		if n == name {
			return fv.values[i], true
		}
	}
	return 0, false
}

// MatchesSchema reports whether the vector carries exactly schema, in order.
func (fv FeatureVector) MatchesSchema(schema []string) error {
	if len(fv.names) != len(schema) {
		return fmt.Errorf("%w: got %d features, model expects %d", ErrFeatureSchemaMismatch, len(fv.names), len(schema))
	}
	for i, name := range schema {
		if fv.names[i] != name {
			return fmt.Errorf("%w: feature %d is %q, model expects %q", ErrFeatureSchemaMismatch, i, fv.names[i], name)
		}
	}
	return nil
}

func schemaError(missing, extra []string) error {
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(extra, ", "))
	}
	return fmt.Errorf("%w: %s", ErrFeatureSchemaMismatch, strings.Join(parts, "; "))
}
