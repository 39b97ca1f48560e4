package lightgbm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// Node is one entry of Tree.Nodes. Internal nodes send x <= Threshold to
// LeftChild; leaves have both children set to -1.
type Node struct {
	LeftChild    int
	RightChild   int
	SplitFeature int
	Threshold    float64
	DefaultLeft  bool // NaN の行き先
	Gain         float64
	Depth        int

	LeafValue float64
	LeafCount int
}

func newLeaf(depth int) Node {
	return Node{LeftChild: -1, RightChild: -1, Depth: depth}
}

func (n *Node) IsLeaf() bool { return n.LeftChild < 0 && n.RightChild < 0 }

// Tree is a single boosted tree; its output is already scaled by the
// learning rate through ShrinkageRate.
type Tree struct {
	NumLeaves     int
	MaxDepth      int
	ShrinkageRate float64
	Nodes         []Node
}

// Predict walks from the root to a leaf for one row.
func (t *Tree) Predict(row []float64) float64 {
	for i := 0; i >= 0 && i < len(t.Nodes); {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.LeafValue * t.ShrinkageRate
		}
		v := row[n.SplitFeature]
		if (math.IsNaN(v) && n.DefaultLeft) || v <= n.Threshold {
			i = n.LeftChild
		} else {
			i = n.RightChild
		}
	}
	return 0
}

type ObjectiveType string

const BinaryLogistic ObjectiveType = "binary"

// Model はブースティング済みの木の集合
type Model struct {
	Objective    ObjectiveType
	NumIteration int
	LearningRate float64
	NumLeaves    int
	MaxDepth     int
	NumFeatures  int

	Trees     []Tree
	InitScore float64
}

// PredictRaw sums InitScore and every tree's output (the log-odds).
func (m *Model) PredictRaw(row []float64) float64 {
	raw := m.InitScore
	for i := range m.Trees {
		raw += m.Trees[i].Predict(row)
	}
	return raw
}

// PredictSingle returns the positive-class probability for one row.
func (m *Model) PredictSingle(row []float64) float64 {
	return sigmoid(m.PredictRaw(row))
}

// Predict returns an n×1 matrix of positive-class probabilities.
func (m *Model) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("Model.Predict", m.NumFeatures, cols, 1)
	}
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, m.PredictSingle(row))
	}
	return out, nil
}

// FeatureImportance counts splits ("split") or sums gains ("gain") per
// feature, normalized to sum to one.
func (m *Model) FeatureImportance(kind string) []float64 {
	imp := make([]float64, m.NumFeatures)
	var total float64
	for _, tree := range m.Trees {
		for _, n := range tree.Nodes {
			if n.IsLeaf() {
				continue
			}
			w := 1.0
			if kind == "gain" {
				w = n.Gain
			}
			imp[n.SplitFeature] += w
			total += w
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-x))
}
