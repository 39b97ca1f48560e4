// Package model holds the contracts shared by the classifier, the
// hyperparameter search and the inference service, plus gob persistence.
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// Fitter learns from a feature matrix and an n×1 label column.
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor returns one predicted label per row of X as an n×1 matrix.
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter exposes hyperparameters under scikit-learn names
// ("n_estimators", "learning_rate", ...).
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter applies a candidate drawn by the search. Unknown names
// must be rejected.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Estimator は探索と推論の両方が扱う学習器
type Estimator interface {
	Fitter
	Predictor
	ParameterGetter
	ParameterSetter
}

// Classifier adds class probabilities; column j of PredictProba matches
// Classes()[j].
type Classifier interface {
	Estimator
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	Classes() []int
}

// Cloner は同じハイパーパラメータを持つ未学習のコピーを返す。
// 探索では候補×フォールドごとに Clone される。
type Cloner interface {
	Clone() Estimator
}

// BaseEstimator is embedded by estimators to track whether Fit has
// completed.
type BaseEstimator struct {
	fitted bool
}

func (e *BaseEstimator) IsFitted() bool { return e.fitted }

// SetFitted is called at the end of a successful Fit or after decoding a
// fitted artifact.
func (e *BaseEstimator) SetFitted() { e.fitted = true }

// Reset marks the estimator as unfitted again.
func (e *BaseEstimator) Reset() { e.fitted = false }

// CheckFitted guards inference methods.
func (e *BaseEstimator) CheckFitted(name, method string) error {
	if !e.fitted {
		return errors.NewNotFittedError(name, method)
	}
	return nil
}
