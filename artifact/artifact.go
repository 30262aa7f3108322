// Package artifact loads the trained trip-duration model and evaluates it.
//
// The on-disk format is the XGBoost JSON model dump (Booster.save_model with a
// .json suffix). Only single-target gbtree boosters with an identity-link
// regression objective are accepted.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/signalsfoundry/tripduration/model"
)

// ErrModelLoad is returned when an artifact is missing, corrupt, or does not
// fit the serving schema. It is fatal at startup.
var ErrModelLoad = errors.New("model load failed")

// Model is an immutable tree ensemble plus its ordered feature schema. It is
// safe for concurrent use.
type Model struct {
	features  []string
	objective string
	version   string
	baseScore float64
	trees     []tree
}

type options struct {
	features []string
}

// Option customises Load.
type Option func(*options)

// WithFeatureNames supplies the ordered feature schema for artifacts that were
// trained on an unnamed matrix. If the artifact records names as well, both
// lists must be identical.
func WithFeatureNames(names []string) Option {
	return func(o *options) {
		o.features = append([]string(nil), names...)
	}
}

// LoadFile reads an artifact from the local filesystem.
func LoadFile(path string, opts ...Option) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	defer f.Close()
	return Load(f, opts...)
}

// Load decodes and validates an artifact.
func Load(r io.Reader, opts ...Option) (*Model, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := decodeDocument(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	features, err := resolveFeatures(doc.Learner.FeatureNames, o.features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	m, err := buildModel(doc, features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return m, nil
}

func resolveFeatures(recorded, configured []string) ([]string, error) {
	switch {
	case len(recorded) == 0 && len(configured) == 0:
		return nil, errors.New("artifact records no feature names and none were configured")
	case len(recorded) == 0:
		return checkNames(configured)
	case len(configured) == 0:
		return checkNames(recorded)
	case !slices.Equal(recorded, configured):
		return nil, fmt.Errorf("configured features %v differ from artifact features %v", configured, recorded)
	default:
		return checkNames(recorded)
	}
}

func checkNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate feature name %q", name)
		}
		seen[name] = struct{}{}
	}
	return append([]string(nil), names...), nil
}

// Features returns the ordered feature schema.
func (m *Model) Features() []string {
	return append([]string(nil), m.features...)
}

// Objective returns the training objective recorded in the artifact.
func (m *Model) Objective() string { return m.objective }

// Version returns the XGBoost version that wrote the artifact, if recorded.
func (m *Model) Version() string { return m.version }

// NumTrees returns the ensemble size.
func (m *Model) NumTrees() int { return len(m.trees) }

// Predict scores a single row. The vector must carry exactly the model's
// features in schema order.
func (m *Model) Predict(fv model.FeatureVector) (float64, error) {
	if err := fv.MatchesSchema(m.features); err != nil {
		return 0, err
	}

	row := make([]float32, fv.Len())
	for i := range row {
		row[i] = float32(fv.Value(i))
	}

	sum := m.baseScore
	for i := range m.trees {
		sum += float64(m.trees[i].score(row))
	}
	return sum, nil
}
