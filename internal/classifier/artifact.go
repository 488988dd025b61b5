// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/botwatch/internal/telemetry"
)

// Artifact kinds.
const (
	KindLogistic = "logistic"
	KindForest   = "forest"
)

const defaultThreshold = 0.5

// Artifact is the on-disk model format exported by the training pipeline.
type Artifact struct {
	Kind      string    `json:"kind"`
	Threshold float64   `json:"threshold,omitempty"`
	Logistic  *Logistic `json:"logistic,omitempty"`
	Forest    *Forest   `json:"forest,omitempty"`
}

// Scaler standardizes features as (x - mean) / scale before inference.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *Scaler) apply(v telemetry.FeatureVector) telemetry.FeatureVector {
	if s == nil {
		return v
	}
	for i := range v {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		v[i] = (v[i] - s.Mean[i]) / scale
	}
	return v
}

func (s *Scaler) validate() error {
	if s == nil {
		return nil
	}
	if len(s.Mean) != telemetry.FeatureCount || len(s.Scale) != telemetry.FeatureCount {
		return fmt.Errorf("scaler needs %d mean and scale values", telemetry.FeatureCount)
	}
	return nil
}

// Logistic is a logistic regression model.
type Logistic struct {
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Scaler    *Scaler   `json:"scaler,omitempty"`
	Threshold float64   `json:"-"`
}

// Predict implements Classifier.
func (m *Logistic) Predict(_ context.Context, v telemetry.FeatureVector) (Prediction, error) {
	x := m.Scaler.apply(v)
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return threshold(sigmoid(z), m.Threshold), nil
}

func (m *Logistic) validate() error {
	if len(m.Weights) != telemetry.FeatureCount {
		return fmt.Errorf("logistic model needs %d weights, got %d", telemetry.FeatureCount, len(m.Weights))
	}
	return m.Scaler.validate()
}

// TreeNode is one node of a decision tree. Nodes with Feature < 0 are leaves
// and carry the bot-class probability in Value.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a flat array of nodes rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t *Tree) eval(x telemetry.FeatureVector) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) validate() error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			if n.Value < 0 || n.Value > 1 {
				return fmt.Errorf("node %d: leaf value %v outside [0,1]", i, n.Value)
			}
			continue
		}
		if n.Feature >= telemetry.FeatureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		// Children must point forward so evaluation always terminates.
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid child index", i)
		}
	}
	return nil
}

// Forest averages the leaf probabilities of its trees.
type Forest struct {
	Trees     []Tree  `json:"trees"`
	Scaler    *Scaler `json:"scaler,omitempty"`
	Threshold float64 `json:"-"`
}

// Predict implements Classifier.
func (m *Forest) Predict(_ context.Context, v telemetry.FeatureVector) (Prediction, error) {
	x := m.Scaler.apply(v)
	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].eval(x)
	}
	return threshold(sum/float64(len(m.Trees)), m.Threshold), nil
}

func (m *Forest) validate() error {
	if len(m.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return m.Scaler.validate()
}

// LoadArtifact reads and validates a model artifact from path.
func LoadArtifact(path string) (Classifier, error) {
	if path == "" {
		return nil, errors.New("artifact path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes and validates a model artifact.
func ParseArtifact(data []byte) (Classifier, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}

	th := a.Threshold
	if th <= 0 || th >= 1 {
		th = defaultThreshold
	}

	switch a.Kind {
	case KindLogistic:
		if a.Logistic == nil {
			return nil, errors.New("logistic artifact has no model")
		}
		if err := a.Logistic.validate(); err != nil {
			return nil, err
		}
		a.Logistic.Threshold = th
		return a.Logistic, nil
	case KindForest:
		if a.Forest == nil {
			return nil, errors.New("forest artifact has no model")
		}
		if err := a.Forest.validate(); err != nil {
			return nil, err
		}
		a.Forest.Threshold = th
		return a.Forest, nil
	default:
		return nil, fmt.Errorf("unsupported artifact kind %q", a.Kind)
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func threshold(p, th float64) Prediction {
	if math.IsNaN(p) {
		p = 0
	}
	p = math.Max(0, math.Min(1, p))
	label := LabelHuman
	if p >= th {
		label = LabelBot
	}
	return Prediction{Label: label, Probability: p}
}
