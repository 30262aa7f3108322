package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// JSON shapes of the XGBoost model dump. Only the fields needed for scoring
// are decoded.
type xgbDocument struct {
	Learner xgbLearner `json:"learner"`
	Version []int      `json:"version"`
}

type xgbLearner struct {
	FeatureNames    []string             `json:"feature_names"`
	GradientBooster xgbGradientBooster   `json:"gradient_booster"`
	ModelParam      xgbLearnerModelParam `json:"learner_model_param"`
	Objective       xgbObjective         `json:"objective"`
}

type xgbObjective struct {
	Name string `json:"name"`
}

type xgbGradientBooster struct {
	Name  string   `json:"name"`
	Model xgbModel `json:"model"`
}

type xgbModel struct {
	Param    xgbGBTreeParam `json:"gbtree_model_param"`
	Trees    []xgbTree      `json:"trees"`
	TreeInfo []int          `json:"tree_info"`
}

type xgbGBTreeParam struct {
	NumTrees string `json:"num_trees"`
}

type xgbLearnerModelParam struct {
	BaseScore  string `json:"base_score"`
	NumFeature string `json:"num_feature"`
	NumTarget  string `json:"num_target"`
}

type xgbTree struct {
	ID              int       `json:"id"`
	LeftChildren    []int32   `json:"left_children"`
	RightChildren   []int32   `json:"right_children"`
	SplitIndices    []int32   `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flexBools `json:"default_left"`
	SplitType       []int     `json:"split_type"`
}

// flexBools accepts both the boolean and the 0/1 integer encodings that
// different XGBoost releases use for default_left.
type flexBools []bool

func (b *flexBools) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, v := range raw {
		switch x := v.(type) {
		case bool:
			out[i] = x
		case float64:
			out[i] = x != 0
		default:
			return fmt.Errorf("default_left[%d]: unexpected %T", i, v)
		}
	}
	*b = out
	return nil
}

var supportedObjectives = map[string]struct{}{
	"reg:squarederror":     {},
	"reg:linear":           {},
	"reg:absoluteerror":    {},
	"reg:pseudohubererror": {},
}

func decodeDocument(r io.Reader) (*xgbDocument, error) {
	var doc xgbDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &doc, nil
}

func buildModel(doc *xgbDocument, features []string) (*Model, error) {
	l := doc.Learner

	if name := l.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}
	if _, ok := supportedObjectives[l.Objective.Name]; !ok {
		return nil, fmt.Errorf("unsupported objective %q", l.Objective.Name)
	}
	if nt := strings.TrimSpace(l.ModelParam.NumTarget); nt != "" && nt != "1" && nt != "0" {
		return nil, fmt.Errorf("multi-target models are not supported (num_target=%s)", nt)
	}

	if raw := strings.TrimSpace(l.ModelParam.NumFeature); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("num_feature: %w", err)
		}
		if n != len(features) {
			return nil, fmt.Errorf("artifact has %d features, schema lists %d", n, len(features))
		}
	}

	baseScore, err := parseBaseScore(l.ModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	gbt := l.GradientBooster.Model
	if len(gbt.Trees) == 0 {
		return nil, errors.New("artifact contains no trees")
	}
	if raw := strings.TrimSpace(gbt.Param.NumTrees); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n != len(gbt.Trees) {
			return nil, fmt.Errorf("num_trees=%q does not match %d trees", raw, len(gbt.Trees))
		}
	}
	for i, group := range gbt.TreeInfo {
		if group != 0 {
			return nil, fmt.Errorf("tree %d belongs to output group %d; only single-output models are supported", i, group)
		}
	}

	trees := make([]tree, len(gbt.Trees))
	for i := range gbt.Trees {
		t, err := newTree(&gbt.Trees[i], len(features))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = t
	}

	var version string
	if len(doc.Version) > 0 {
		parts := make([]string, len(doc.Version))
		for i, v := range doc.Version {
			parts[i] = strconv.Itoa(v)
		}
		version = strings.Join(parts, ".")
	}

	return &Model{
		features:  features,
		objective: l.Objective.Name,
		version:   version,
		baseScore: baseScore,
		trees:     trees,
	}, nil
}

// parseBaseScore handles both "5E-1" and the bracketed "[5E-1]" form written
// by newer XGBoost releases.
func parseBaseScore(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return 0, errors.New("base_score is missing")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("base_score %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("base_score %q is not finite", raw)
	}
	return v, nil
}

// tree is a flattened regression tree. Leaves have left == -1 and store their
// value in threshold.
type tree struct {
	left        []int32
	right       []int32
	feature     []int32
	threshold   []float32
	defaultLeft []bool
}

func newTree(t *xgbTree, numFeatures int) (tree, error) {
	n := len(t.LeftChildren)
	if n == 0 {
		return tree{}, errors.New("empty tree")
	}
	if len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n || len(t.DefaultLeft) != n {
		return tree{}, fmt.Errorf("inconsistent node arrays (left=%d right=%d split_indices=%d split_conditions=%d default_left=%d)",
			n, len(t.RightChildren), len(t.SplitIndices), len(t.SplitConditions), len(t.DefaultLeft))
	}

	for i, st := range t.SplitType {
		if st != 0 {
			return tree{}, fmt.Errorf("node %d uses a categorical split, which is not supported", i)
		}
	}

	out := tree{
		left:        t.LeftChildren,
		right:       t.RightChildren,
		feature:     t.SplitIndices,
		threshold:   make([]float32, n),
		defaultLeft: t.DefaultLeft,
	}
	for i := 0; i < n; i++ {
		out.threshold[i] = float32(t.SplitConditions[i])
		l, r := t.LeftChildren[i], t.RightChildren[i]
		if l == -1 {
			if r != -1 {
				return tree{}, fmt.Errorf("node %d has a right child but no left child", i)
			}
			continue
		}
		// Children always follow their parent in XGBoost's layout, which also
		// rules out cycles.
		if int(l) <= i || int(l) >= n || int(r) <= i || int(r) >= n {
			return tree{}, fmt.Errorf("node %d has out-of-range children %d/%d", i, l, r)
		}
		if f := t.SplitIndices[i]; f < 0 || int(f) >= numFeatures {
			return tree{}, fmt.Errorf("node %d splits on feature %d outside schema of %d", i, f, numFeatures)
		}
	}
	return out, nil
}

func (t *tree) score(row []float32) float32 {
	node := int32(0)
	for t.left[node] != -1 {
		x := row[t.feature[node]]
		switch {
		case x != x: // NaN: missing value
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case x < t.threshold[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return t.threshold[node]
}
