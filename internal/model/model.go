// Package model loads the pre-trained heart disease classifier and runs
// inference on single feature rows.
//
// The artifact is a JSON export of either a random forest or a logistic
// regression. It is read once at startup and never mutated afterwards, so a
// *Model is safe for concurrent use.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	KindRandomForest       = "random_forest"
	KindLogisticRegression = "logistic_regression"
)

var ErrIncompatible = errors.New("incompatible model artifact")

// Classifier is the inference contract the prediction handler depends on.
type Classifier interface {
	Predict(x []float64) (int, error)
	PredictProba(x []float64) ([]float64, error)
}

type Artifact struct {
	Kind      string    `json:"kind"`
	NFeatures int       `json:"n_features"`
	Classes   []int     `json:"classes"`
	Trees     []Tree    `json:"trees,omitempty"`
	Coef      []float64 `json:"coef,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split when Left and Right are set, a leaf when both are -1.
// Rows with x[Feature] <= Threshold go left.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n Node) leaf() bool {
	return n.Left == -1 && n.Right == -1
}

type Model struct {
	art Artifact
}

func (m *Model) Kind() string { return m.art.Kind }
func (m *Model) NFeatures() int { return m.art.NFeatures }
func (m *Model) Classes() []int { return append([]int(nil), m.art.Classes...) }
func (m *Model) String() string { return fmt.Sprintf("%s(%d features)", m.art.Kind, m.art.NFeatures) }

// Parse decodes and validates an artifact.
func Parse(data []byte) (*Model, error) {
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if err := validate(art); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	return &Model{art: art}, nil
}

// RequireFeatures fails unless the model consumes exactly n features.
func (m *Model) RequireFeatures(n int) error {
	if m.art.NFeatures != n {
		return fmt.Errorf("%w: model expects %d features, service provides %d", ErrIncompatible, m.art.NFeatures, n)
	}
	return nil
}

func (m *Model) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.art.NFeatures {
		return nil, fmt.Errorf("expected %d features, got %d", m.art.NFeatures, len(x))
	}

	switch m.art.Kind {
	case KindRandomForest:
		return m.forestProba(x), nil
	case KindLogisticRegression:
		return m.logisticProba(x), nil
	}
	return nil, fmt.Errorf("unsupported model kind %q", m.art.Kind)
}

func (m *Model) Predict(x []float64) (int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return m.art.Classes[best], nil
}

// forestProba averages the normalized leaf distributions of every tree.
func (m *Model) forestProba(x []float64) []float64 {
	out := make([]float64, len(m.art.Classes))
	for _, t := range m.art.Trees {
		leaf := t.leafFor(x)
		total := 0.0
		for _, v := range leaf.Value {
			total += v
		}
		for i, v := range leaf.Value {
			out[i] += v / total
		}
	}
	for i := range out {
		out[i] /= float64(len(m.art.Trees))
	}
	return out
}

func (t Tree) leafFor(x []float64) Node {
	n := t.Nodes[0]
	for !n.leaf() {
		if x[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n
}

func (m *Model) logisticProba(x []float64) []float64 {
	z := m.art.Intercept
	for i, c := range m.art.Coef {
		z += c * x[i]
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}
}

func validate(art Artifact) error {
	if art.NFeatures <= 0 {
		return fmt.Errorf("n_features must be positive, got %d", art.NFeatures)
	}
	if len(art.Classes) != 2 {
		return fmt.Errorf("binary classifier required, got %d classes", len(art.Classes))
	}

	switch art.Kind {
	case KindRandomForest:
		if len(art.Trees) == 0 {
			return errors.New("random forest has no trees")
		}
		for i, t := range art.Trees {
			if err := validateTree(t, art.NFeatures, len(art.Classes)); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	case KindLogisticRegression:
		if len(art.Coef) != art.NFeatures {
			return fmt.Errorf("coef has %d entries, want %d", len(art.Coef), art.NFeatures)
		}
	default:
		return fmt.Errorf("unknown model kind %q", art.Kind)
	}
	return nil
}

// validateTree checks every node so that inference never indexes out of
// range. Children must come after their parent, which rules out cycles.
func validateTree(t Tree, nFeatures, nClasses int) error {
	if len(t.Nodes) == 0 {
		return errors.New("no nodes")
	}
	for i, n := range t.Nodes {
		if n.leaf() {
			if len(n.Value) != nClasses {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(n.Value), nClasses)
			}
			total := 0.0
			for _, v := range n.Value {
				if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("leaf %d has invalid weight %v", i, v)
				}
				total += v
			}
			if total <= 0 {
				return fmt.Errorf("leaf %d has zero weight", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children out of range", i)
		}
	}
	return nil
}
