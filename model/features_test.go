package model

import (
	"errors"
	"strings"
	"testing"
)

func TestNewFeatureVectorOrdersBySchema(t *testing.T) {
	schema := []string{"passenger_count", "distance", "bearing"}
	fv, err := NewFeatureVector(schema, map[string]float64{
		"bearing":         71.2,
		"distance":        9000,
		"passenger_count": 2,
	})
	if err != nil {
		t.Fatalf("NewFeatureVector: %v", err)
	}
	if fv.Len() != 3 {
		t.Fatalf("Len = %d, want 3", fv.Len())
	}
	want := []float64{2, 9000, 71.2}
	for i, name := range schema {
		if fv.Name(i) != name {
			t.Fatalf("Name(%d) = %q, want %q", i, fv.Name(i), name)
		}
		if fv.Value(i) != want[i] {
			t.Fatalf("Value(%d) = %v, want %v", i, fv.Value(i), want[i])
		}
	}
	if err := fv.MatchesSchema(schema); err != nil {
		t.Fatalf("MatchesSchema: %v", err)
	}
	if v, ok := fv.Get("distance"); !ok || v != 9000 {
		t.Fatalf("Get(distance) = %v, %v", v, ok)
	}
}

func TestNewFeatureVectorRejectsMismatch(t *testing.T) {
	t.Parallel()

	schema := []string{"a", "b"}
	tests := []struct {
		name   string
		values map[string]float64
		want   []string
	}{
		{name: "missing", values: map[string]float64{"a": 1}, want: []string{"missing b"}},
		{name: "extra", values: map[string]float64{"a": 1, "b": 2, "z": 3}, want: []string{"unexpected z"}},
		{name: "both", values: map[string]float64{"a": 1, "c": 3}, want: []string{"missing b", "unexpected c"}},
		{name: "empty", values: nil, want: []string{"missing a, b"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewFeatureVector(schema, tc.values)
			if !errors.Is(err, ErrFeatureSchemaMismatch) {
				t.Fatalf("err = %v, want ErrFeatureSchemaMismatch", err)
			}
			for _, fragment := range tc.want {
				if !strings.Contains(err.Error(), fragment) {
					t.Fatalf("error %q does not mention %q", err, fragment)
				}
			}
		})
	}
}

func TestMatchesSchemaDetectsOrder(t *testing.T) {
	fv, err := NewFeatureVector([]string{"a", "b"}, map[string]float64{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("NewFeatureVector: %v", err)
	}
	if err := fv.MatchesSchema([]string{"b", "a"}); !errors.Is(err, ErrFeatureSchemaMismatch) {
		t.Fatalf("reordered schema err = %v, want ErrFeatureSchemaMismatch", err)
	}
	if err := fv.MatchesSchema([]string{"a"}); !errors.Is(err, ErrFeatureSchemaMismatch) {
		t.Fatalf("short schema err = %v, want ErrFeatureSchemaMismatch", err)
	}
}
