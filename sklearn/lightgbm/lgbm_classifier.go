package lightgbm

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/core/parallel"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
)

// Params holds the scikit-learn style hyperparameters of LGBMClassifier.
type Params struct {
	NumLeaves       int     // Number of leaves in one tree
	MaxDepth        int     // Maximum tree depth, <= 0 for no limit
	LearningRate    float64 // Boosting learning rate
	NumIterations   int     // Number of boosting iterations (n_estimators)
	MinChildSamples int     // Minimum number of data in one leaf
	MinChildWeight  float64 // Minimum sum of hessians in one leaf
	MinSplitGain    float64 // Minimum gain to make a split
	Subsample       float64 // Row subsample ratio
	SubsampleFreq   int     // Frequency of subsample, 0 disables bagging
	ColsampleBytree float64 // Column subsample ratio per tree
	RegAlpha        float64 // L1 regularization
	RegLambda       float64 // L2 regularization
	MaxBin          int     // Maximum number of histogram bins
	RandomState     int     // Random seed
	NumThreads      int     // Threads for prediction, <= 0 for all cores
	Verbosity       int     // Verbosity level
}

// LGBMClassifier implements a binary gradient boosting classifier with a
// scikit-learn compatible API.
type LGBMClassifier struct {
	model.BaseEstimator
	Params

	Model *Model

	classes_   []int
	nFeatures_ int
}

// NewLGBMClassifier creates a classifier with LightGBM's default parameters.
func NewLGBMClassifier() *LGBMClassifier {
	return &LGBMClassifier{Params: DefaultParams()}
}

// DefaultParams returns LightGBM's defaults.
func DefaultParams() Params {
	return Params{
		NumLeaves:       31,
		MaxDepth:        -1,
		LearningRate:    0.1,
		NumIterations:   100,
		MinChildSamples: 20,
		MinChildWeight:  1e-3,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		MaxBin:          255,
		RandomState:     42,
		NumThreads:      -1,
		Verbosity:       -1,
	}
}

// WithNumIterations sets the number of boosting iterations.
func (c *LGBMClassifier) WithNumIterations(n int) *LGBMClassifier {
	c.NumIterations = n
	return c
}

// WithRandomState sets the random seed.
func (c *LGBMClassifier) WithRandomState(seed int) *LGBMClassifier {
	c.RandomState = seed
	return c
}

func (c *LGBMClassifier) trainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:       c.NumIterations,
		LearningRate:        c.LearningRate,
		NumLeaves:           c.NumLeaves,
		MaxDepth:            c.MaxDepth,
		MinDataInLeaf:       c.MinChildSamples,
		MinSumHessianInLeaf: c.MinChildWeight,
		Lambda:              c.RegLambda,
		Alpha:               c.RegAlpha,
		MinGainToSplit:      c.MinSplitGain,
		BaggingFraction:     c.Subsample,
		BaggingFreq:         c.SubsampleFreq,
		FeatureFraction:     c.ColsampleBytree,
		MaxBin:              c.MaxBin,
		Objective:           string(BinaryLogistic),
		Seed:                c.RandomState,
		Verbosity:           c.Verbosity,
	}
}

// Fit trains the classifier. y holds integer class labels in one column and
// must contain exactly two classes; the larger label is the positive class.
func (c *LGBMClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LGBMClassifier.Fit")
	if err := c.Params.validate(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError("Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Fit", 1, yCols, 1)
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LGBMClassifier.Fit")
	}

	classes, err := uniqueClasses(y)
	if err != nil {
		return err
	}
	switch {
	case len(classes) < 2:
		return errors.NewValueError("LGBMClassifier.Fit",
			fmt.Sprintf("needs samples of at least 2 classes, got %d", len(classes)))
	case len(classes) > 2:
		return errors.NewValueError("LGBMClassifier.Fit",
			fmt.Sprintf("only binary classification is supported, got %d classes", len(classes)))
	}

	encoded := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		if int(y.At(i, 0)) == classes[1] {
			encoded.Set(i, 0, 1)
		}
	}

	logger := log.GetLoggerWithName("lightgbm.classifier")
	if c.Verbosity > 0 {
		logger.Info("Training LGBMClassifier",
			log.SamplesKey, rows,
			log.FeaturesKey, cols,
			log.HyperParamsKey, c.GetParams())
	}

	trainer := NewTrainer(c.trainingParams())
	if err := trainer.Fit(X, encoded); err != nil {
		return errors.Wrap(err, "training failed")
	}

	c.Model = trainer.GetModel()
	c.classes_ = classes
	c.nFeatures_ = cols
	c.SetFitted()

	if c.Verbosity > 0 {
		logger.Info("Training completed", "trees", c.Model.NumIteration)
	}
	return nil
}

func uniqueClasses(y mat.Matrix) ([]int, error) {
	rows, _ := y.Dims()
	seen := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if math.IsNaN(v) || v != math.Trunc(v) {
			return nil, errors.NewValidationError("y", "class labels must be integers", v)
		}
		seen[int(v)] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for k := range seen {
		classes = append(classes, k)
	}
	sort.Ints(classes)
	return classes, nil
}

func (c *LGBMClassifier) checkInput(X mat.Matrix, method string) error {
	if err := c.CheckFitted("LGBMClassifier", method); err != nil {
		return err
	}
	if _, cols := X.Dims(); cols != c.nFeatures_ {
		return errors.NewDimensionError(method, c.nFeatures_, cols, 1)
	}
	return nil
}

// PredictProba returns an n×2 matrix of class probabilities ordered as Classes().
func (c *LGBMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := c.checkInput(X, "PredictProba"); err != nil {
		return nil, err
	}

	rows, cols := X.Dims()
	proba := mat.NewDense(rows, 2, nil)
	predictRange := func(start, end int) {
		features := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(features, i, X)
			p := c.Model.PredictSingle(features)
			proba.Set(i, 0, 1-p)
			proba.Set(i, 1, p)
		}
	}

	if c.NumThreads == 1 {
		predictRange(0, rows)
	} else {
		parallel.ParallelizeWithThreshold(rows, 1000, predictRange)
	}
	return proba, nil
}

// Predict returns the predicted class label of every row as an n×1 matrix.
func (c *LGBMClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}

	rows, _ := proba.Dims()
	labels := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		label := c.classes_[0]
		if proba.At(i, 1) > 0.5 {
			label = c.classes_[1]
		}
		labels.Set(i, 0, float64(label))
	}
	return labels, nil
}

// Score returns the mean accuracy on the given data.
func (c *LGBMClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := y.Dims()
	if pr, _ := pred.Dims(); pr != rows {
		return 0, errors.NewDimensionError("Score", pr, rows, 0)
	}
	if rows == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "LGBMClassifier.Score")
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows), nil
}

// Classes returns the class labels seen during Fit.
func (c *LGBMClassifier) Classes() []int {
	out := make([]int, len(c.classes_))
	copy(out, c.classes_)
	return out
}

// NFeatures returns the number of features seen during Fit.
func (c *LGBMClassifier) NFeatures() int {
	return c.nFeatures_
}

// FeatureImportances returns split-count importances normalized to sum to 1.
func (c *LGBMClassifier) FeatureImportances() ([]float64, error) {
	if err := c.CheckFitted("LGBMClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return c.Model.FeatureImportance("split"), nil
}

// Clone returns an unfitted classifier with the same parameters.
func (c *LGBMClassifier) Clone() model.Estimator {
	return &LGBMClassifier{Params: c.Params}
}

// GetParams returns the parameters keyed by their scikit-learn names.
func (c *LGBMClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"num_leaves":        c.NumLeaves,
		"max_depth":         c.MaxDepth,
		"learning_rate":     c.LearningRate,
		"n_estimators":      c.NumIterations,
		"min_child_samples": c.MinChildSamples,
		"min_child_weight":  c.MinChildWeight,
		"min_split_gain":    c.MinSplitGain,
		"subsample":         c.Subsample,
		"subsample_freq":    c.SubsampleFreq,
		"colsample_bytree":  c.ColsampleBytree,
		"reg_alpha":         c.RegAlpha,
		"reg_lambda":        c.RegLambda,
		"max_bin":           c.MaxBin,
		"random_state":      c.RandomState,
		"n_jobs":            c.NumThreads,
		"verbosity":         c.Verbosity,
		"objective":         string(BinaryLogistic),
		"boosting_type":     "gbdt",
	}
}

// SetParams sets parameters by their scikit-learn names. Integer parameters
// accept any integral numeric value, so draws from a uniform distribution
// over whole numbers are accepted as well.
func (c *LGBMClassifier) SetParams(params map[string]interface{}) error {
	p := c.Params
	for key, value := range params {
		var err error
		switch key {
		case "num_leaves":
			p.NumLeaves, err = toInt(key, value)
		case "max_depth":
			p.MaxDepth, err = toInt(key, value)
		case "learning_rate":
			p.LearningRate, err = toFloat(key, value)
		case "n_estimators", "num_iterations":
			p.NumIterations, err = toInt(key, value)
		case "min_child_samples", "min_data_in_leaf":
			p.MinChildSamples, err = toInt(key, value)
		case "min_child_weight":
			p.MinChildWeight, err = toFloat(key, value)
		case "min_split_gain":
			p.MinSplitGain, err = toFloat(key, value)
		case "subsample", "bagging_fraction":
			p.Subsample, err = toFloat(key, value)
		case "subsample_freq", "bagging_freq":
			p.SubsampleFreq, err = toInt(key, value)
		case "colsample_bytree", "feature_fraction":
			p.ColsampleBytree, err = toFloat(key, value)
		case "reg_alpha", "lambda_l1":
			p.RegAlpha, err = toFloat(key, value)
		case "reg_lambda", "lambda_l2":
			p.RegLambda, err = toFloat(key, value)
		case "max_bin":
			p.MaxBin, err = toInt(key, value)
		case "random_state", "seed":
			p.RandomState, err = toInt(key, value)
		case "n_jobs":
			p.NumThreads, err = toInt(key, value)
		case "verbosity", "verbose":
			p.Verbosity, err = toInt(key, value)
		case "boosting_type", "boosting":
			if s, ok := value.(string); !ok || s != "gbdt" {
				err = errors.NewValidationError(key, "only gbdt boosting is supported", value)
			}
		case "objective":
			if s, ok := value.(string); !ok || (s != "binary" && s != "binary_logloss") {
				err = errors.NewValidationError(key, "only the binary objective is supported", value)
			}
		default:
			err = errors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}

	if err := p.validate(); err != nil {
		return err
	}
	c.Params = p
	return nil
}

func (p Params) validate() error {
	switch {
	case p.NumLeaves < 2:
		return errors.NewValidationError("num_leaves", "must be >= 2", p.NumLeaves)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be > 0", p.LearningRate)
	case p.NumIterations < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", p.NumIterations)
	case p.MinChildSamples < 1:
		// 0 は TrainingParams の未設定値と区別できないため受け付けない
		return errors.NewValidationError("min_child_samples", "must be >= 1", p.MinChildSamples)
	case p.Subsample <= 0 || p.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColsampleBytree <= 0 || p.ColsampleBytree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", p.ColsampleBytree)
	case p.MaxBin < 2 || p.MaxBin > math.MaxUint16:
		return errors.NewValidationError("max_bin", "must be in [2, 65535]", p.MaxBin)
	}
	return nil
}

func toInt(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float32:
		return toInt(key, float64(v))
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, errors.NewValidationError(key, "expected an integral value", value)
		}
		return int(v), nil
	default:
		return 0, errors.NewValidationError(key, "expected a number", value)
	}
}

func toFloat(key string, value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errors.NewValidationError(key, "expected a number", value)
	}
}

// classifierSnapshot is the gob form of a classifier.
type classifierSnapshot struct {
	Params    Params
	Model     *Model
	Classes   []int
	NFeatures int
	Fitted    bool
}

// GobEncode implements gob.GobEncoder so that core/model.SaveModel persists
// the fitted state as well as the parameters.
func (c *LGBMClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(classifierSnapshot{
		Params:    c.Params,
		Model:     c.Model,
		Classes:   c.classes_,
		NFeatures: c.nFeatures_,
		Fitted:    c.IsFitted(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode LGBMClassifier")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (c *LGBMClassifier) GobDecode(data []byte) error {
	var snap classifierSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decode LGBMClassifier")
	}
	c.Params = snap.Params
	c.Model = snap.Model
	c.classes_ = snap.Classes
	c.nFeatures_ = snap.NFeatures
	c.Reset()
	if snap.Fitted {
		if snap.Model == nil || len(snap.Classes) != 2 {
			return errors.NewValueError("LGBMClassifier.GobDecode", "fitted snapshot without model or classes")
		}
		c.SetFitted()
	}
	return nil
}
