package lightgbm

import (
	"math"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// Objective supplies first and second order derivatives of the loss with
// respect to the raw (pre-sigmoid) score.
type Objective interface {
	Gradient(raw, label float64) float64
	Hessian(raw, label float64) float64
	Loss(raw, label float64) float64
	// InitScore is the constant raw score the ensemble starts from.
	InitScore(labels []float64) float64
	Name() string
}

// minHessian keeps leaf outputs finite when the sigmoid saturates.
const minHessian = 1e-16

const probEpsilon = 1e-15

// LogisticLoss は 0/1 ラベルに対する二値交差エントロピー
type LogisticLoss struct{}

func (LogisticLoss) Gradient(raw, label float64) float64 { return sigmoid(raw) - label }

func (LogisticLoss) Hessian(raw, _ float64) float64 {
	p := sigmoid(raw)
	return math.Max(p*(1-p), minHessian)
}

func (LogisticLoss) Loss(raw, label float64) float64 {
	p := errors.ClipValue(sigmoid(raw), probEpsilon, 1-probEpsilon)
	if label == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

// InitScore は陽性率の log-odds (boost_from_average)
func (LogisticLoss) InitScore(labels []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	var pos float64
	for _, l := range labels {
		pos += l
	}
	p := errors.ClipValue(pos/float64(len(labels)), probEpsilon, 1-probEpsilon)
	return math.Log(p / (1 - p))
}

func (LogisticLoss) Name() string { return string(BinaryLogistic) }

// objectiveFor resolves LightGBM's aliases of the binary objective.
func objectiveFor(name string) (Objective, error) {
	switch name {
	case "", "binary", "binary_logloss", "logistic", "cross_entropy":
		return LogisticLoss{}, nil
	}
	return nil, errors.NewValueError("objective", "unsupported objective "+name+"; only binary classification is implemented")
}
