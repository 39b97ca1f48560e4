package lightgbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"pgregory.net/rapid"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

func TestFindBinUpperBounds_DistinctValues(t *testing.T) {
	upper := findBinUpperBounds([]float64{3, 1, 2, 2, 1}, 255)
	require.Len(t, upper, 3)
	assert.Equal(t, 1.5, upper[0])
	assert.Equal(t, 2.5, upper[1])
	assert.True(t, math.IsInf(upper[2], 1))
}

func TestFindBinUpperBounds_RespectsMaxBin(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	upper := findBinUpperBounds(values, 16)
	assert.LessOrEqual(t, len(upper), 16)
	assert.GreaterOrEqual(t, len(upper), 8)
}

// 学習時のビン割り当てと推論時のしきい値判定が一致すること
func TestBinOfMatchesThresholdRule(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(-1e3, 1e3), 1, 300).Draw(t, "values")
		maxBin := rapid.IntRange(2, 64).Draw(t, "maxBin")

		upper := findBinUpperBounds(values, maxBin)
		if len(upper) > maxBin {
			t.Fatalf("got %d bins, max %d", len(upper), maxBin)
		}
		for _, v := range values {
			bin := binOf(upper, v)
			for b := 0; b < len(upper)-1; b++ {
				if (bin <= b) != (v <= upper[b]) {
					t.Fatalf("value %v in bin %d disagrees with threshold %v of bin %d", v, bin, upper[b], b)
				}
			}
		}
	})
}

func TestTrainer_LossDecreasesAndRespectsLimits(t *testing.T) {
	X, y := separableData(400, 0, 1)

	params := TrainingParams{
		NumIterations: 20,
		NumLeaves:     6,
		MaxDepth:      3,
		MinDataInLeaf: 5,
		Objective:     "binary",
	}
	trainer := NewTrainer(params)
	require.NoError(t, trainer.Fit(X, y))

	var obj LogisticLoss
	initialLoss := obj.Loss(trainer.initScore, 1)*0.5 + obj.Loss(trainer.initScore, 0)*0.5
	assert.Less(t, trainer.calculateLoss(), initialLoss)

	m := trainer.GetModel()
	require.NotEmpty(t, m.Trees)
	for _, tree := range m.Trees {
		assert.LessOrEqual(t, tree.NumLeaves, 6)
		assert.LessOrEqual(t, tree.MaxDepth, 3)
		leaves := 0
		for _, n := range tree.Nodes {
			if n.IsLeaf() {
				leaves++
				assert.GreaterOrEqual(t, n.LeafCount, 5)
			}
		}
		assert.Equal(t, tree.NumLeaves, leaves)
	}
}

func TestTrainer_CachedScoresMatchModel(t *testing.T) {
	X, y := separableData(150, 0, 1)
	trainer := NewTrainer(TrainingParams{NumIterations: 10, MinDataInLeaf: 5})
	require.NoError(t, trainer.Fit(X, y))

	m := trainer.GetModel()
	row := make([]float64, 3)
	for i := 0; i < 150; i++ {
		mat.Row(row, i, X)
		assert.InDelta(t, m.PredictRaw(row), trainer.scores[i], 1e-9)
	}
}

func TestTrainer_ConstantFeatureWarnsAndStops(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(func(w error) { warnings = append(warnings, w) })
	defer errors.SetZerologWarnFunc(nil)

	X := mat.NewDense(50, 1, nil)
	y := mat.NewDense(50, 1, nil)
	for i := 0; i < 50; i++ {
		X.Set(i, 0, 1)
		y.Set(i, 0, float64(i%2))
	}

	trainer := NewTrainer(TrainingParams{NumIterations: 10})
	require.NoError(t, trainer.Fit(X, y))

	m := trainer.GetModel()
	assert.Empty(t, m.Trees)
	assert.InDelta(t, 0.5, m.PredictSingle([]float64{1}), 1e-9)

	require.Len(t, warnings, 1)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &cw))
}

func TestTrainer_EmptyInput(t *testing.T) {
	err := NewTrainer(TrainingParams{}).Fit(mat.NewDense(1, 1, nil), mat.NewDense(2, 1, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestSampler(t *testing.T) {
	s := NewSampler(TrainingParams{
		FeatureFraction: 0.5,
		BaggingFraction: 0.5,
		BaggingFreq:     2,
		Seed:            1,
	})

	features := s.SampleFeatures(10)
	assert.Len(t, features, 5)
	assert.IsIncreasing(t, features)

	bag0 := s.SampleInstances(100, 0)
	assert.Len(t, bag0, 50)
	assert.Equal(t, bag0, s.SampleInstances(100, 1), "bag is reused between redraws")
}

func TestRegularizer(t *testing.T) {
	r := NewRegularizer(TrainingParams{Lambda: 1, Alpha: 0.5})
	assert.InDelta(t, -(2.0-0.5)/(3.0+1.0), r.LeafOutput(2, 3), 1e-9)
	assert.Equal(t, 0.0, r.LeafOutput(0.3, 3))

	plain := NewRegularizer(TrainingParams{})
	gain := plain.SplitGain(-4, 2, 4, 2, 0, 4)
	assert.InDelta(t, 0.5*(16.0/2+16.0/2), gain, 1e-6)
}
