package model_selection

import (
	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/metrics"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// Scorer evaluates a fitted estimator on held-out data; higher is better.
type Scorer func(est model.Estimator, X, y mat.Matrix) (float64, error)

// Scoring names accepted by GetScorer.
const (
	ScoringAccuracy  = "accuracy"
	ScoringPrecision = "precision"
	ScoringRecall    = "recall"
	ScoringF1        = "f1"
	ScoringROCAUC    = "roc_auc"
	ScoringLogLoss   = "neg_log_loss"
)

// positiveLabel is the label treated as positive by precision, recall and f1.
const positiveLabel = 1.0

// GetScorer returns the scorer registered under name. An empty name means accuracy.
func GetScorer(name string) (Scorer, error) {
	switch name {
	case "", ScoringAccuracy:
		return labelScorer(func(t, p *mat.VecDense) (float64, error) { return metrics.Accuracy(t, p) }), nil
	case ScoringPrecision:
		return labelScorer(func(t, p *mat.VecDense) (float64, error) { return metrics.Precision(t, p, positiveLabel) }), nil
	case ScoringRecall:
		return labelScorer(func(t, p *mat.VecDense) (float64, error) { return metrics.Recall(t, p, positiveLabel) }), nil
	case ScoringF1:
		return labelScorer(func(t, p *mat.VecDense) (float64, error) { return metrics.F1Score(t, p, positiveLabel) }), nil
	case ScoringROCAUC:
		return probaScorer(func(t, p *mat.VecDense) (float64, error) { return metrics.AUC(t, p) }), nil
	case ScoringLogLoss:
		return probaScorer(func(t, p *mat.VecDense) (float64, error) {
			loss, err := metrics.BinaryLogLoss(t, p)
			return -loss, err
		}), nil
	default:
		return nil, errors.NewValidationError("scoring", "unknown scoring metric", name)
	}
}

func labelScorer(metric func(yTrue, yPred *mat.VecDense) (float64, error)) Scorer {
	return func(est model.Estimator, X, y mat.Matrix) (float64, error) {
		pred, err := est.Predict(X)
		if err != nil {
			return 0, err
		}
		return metric(column(y, 0), column(pred, 0))
	}
}

// probaScorer feeds the probability of the larger class label to metric,
// with y binarised against that label.
func probaScorer(metric func(yBin, proba *mat.VecDense) (float64, error)) Scorer {
	return func(est model.Estimator, X, y mat.Matrix) (float64, error) {
		clf, ok := est.(model.Classifier)
		if !ok {
			return 0, errors.NewValueError("scoring", "estimator does not provide PredictProba")
		}
		proba, err := clf.PredictProba(X)
		if err != nil {
			return 0, err
		}
		classes := clf.Classes()
		if len(classes) != 2 {
			return 0, errors.NewValueError("scoring", "only binary classification is supported")
		}
		pos := float64(classes[1])
		rows, _ := y.Dims()
		yBin := mat.NewVecDense(rows, nil)
		for i := 0; i < rows; i++ {
			if y.At(i, 0) == pos {
				yBin.SetVec(i, 1)
			}
		}
		return metric(yBin, column(proba, 1))
	}
}

func column(m mat.Matrix, j int) *mat.VecDense {
	rows, _ := m.Dims()
	v := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		v.SetVec(i, m.At(i, j))
	}
	return v
}
