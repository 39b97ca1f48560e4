package lightgbm

import (
	"math/rand/v2"
	"sort"
)

// TrainingParams contains the booster hyperparameters, named after their
// LightGBM counterparts.
type TrainingParams struct {
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	MaxDepth      int     `json:"max_depth"` // <= 0 means no limit
	MinDataInLeaf int     `json:"min_data_in_leaf"`

	MinSumHessianInLeaf float64 `json:"min_sum_hessian_in_leaf"`
	Lambda              float64 `json:"lambda_l2"`
	Alpha               float64 `json:"lambda_l1"`
	MinGainToSplit      float64 `json:"min_gain_to_split"`

	BaggingFraction float64 `json:"bagging_fraction"`
	BaggingFreq     int     `json:"bagging_freq"`
	FeatureFraction float64 `json:"feature_fraction"`

	MaxBin int `json:"max_bin"`

	Objective string `json:"objective"`
	Seed      int    `json:"seed"`
	Verbosity int    `json:"verbosity"`
}

// withDefaults は0値を LightGBM の既定値で埋める
func (p TrainingParams) withDefaults() TrainingParams {
	if p.NumIterations == 0 {
		p.NumIterations = 100
	}
	if p.LearningRate == 0 {
		p.LearningRate = 0.1
	}
	if p.NumLeaves == 0 {
		p.NumLeaves = 31
	}
	if p.MinDataInLeaf == 0 {
		p.MinDataInLeaf = 20
	}
	if p.MaxBin == 0 {
		p.MaxBin = 255
	}
	if p.BaggingFraction == 0 {
		p.BaggingFraction = 1.0
	}
	if p.FeatureFraction == 0 {
		p.FeatureFraction = 1.0
	}
	if p.Objective == "" {
		p.Objective = string(BinaryLogistic)
	}
	return p
}

// Sampler draws the row bag and the feature subset of each tree from one
// PCG stream seeded with TrainingParams.Seed. Same seed and data, same trees.
type Sampler struct {
	rng             *rand.Rand
	featureFraction float64
	baggingFraction float64
	baggingFreq     int
	bag             []int
}

func NewSampler(params TrainingParams) *Sampler {
	seed := uint64(params.Seed)
	return &Sampler{
		rng:             rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		featureFraction: params.FeatureFraction,
		baggingFraction: params.BaggingFraction,
		baggingFreq:     params.BaggingFreq,
	}
}

// SampleFeatures returns the sorted feature indices available to one tree.
func (s *Sampler) SampleFeatures(numFeatures int) []int {
	if s.featureFraction >= 1.0 || s.featureFraction <= 0 {
		return identity(numFeatures)
	}

	numSample := int(float64(numFeatures)*s.featureFraction + 0.5)
	if numSample < 1 {
		numSample = 1
	}
	if numSample > numFeatures {
		numSample = numFeatures
	}
	return s.partialShuffle(numFeatures, numSample)
}

// SampleInstances returns the bagged row indices for an iteration. A bag is
// redrawn every baggingFreq iterations and reused in between.
func (s *Sampler) SampleInstances(numInstances int, iteration int) []int {
	if s.baggingFreq <= 0 || s.baggingFraction >= 1.0 || s.baggingFraction <= 0 {
		if len(s.bag) != numInstances {
			s.bag = identity(numInstances)
		}
		return s.bag
	}
	if s.bag != nil && iteration%s.baggingFreq != 0 {
		return s.bag
	}

	numSample := int(float64(numInstances) * s.baggingFraction)
	if numSample < 1 {
		numSample = 1
	}
	s.bag = s.partialShuffle(numInstances, numSample)
	return s.bag
}

// partialShuffle draws k of n indices without replacement (Fisher-Yates) and
// returns them sorted.
func (s *Sampler) partialShuffle(n, k int) []int {
	perm := identity(n)
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := perm[:k]
	sort.Ints(out)
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Regularizer applies lambda_l1 (soft thresholding of G) and lambda_l2
// (added to H) to leaf outputs and split gains.
type Regularizer struct {
	lambdaL1 float64
	lambdaL2 float64
}

func NewRegularizer(params TrainingParams) *Regularizer {
	return &Regularizer{
		lambdaL1: params.Alpha,
		lambdaL2: params.Lambda,
	}
}

// thresholdL1 は T(G)
func (r *Regularizer) thresholdL1(sumGrad float64) float64 {
	if r.lambdaL1 <= 0 {
		return sumGrad
	}
	switch {
	case sumGrad > r.lambdaL1:
		return sumGrad - r.lambdaL1
	case sumGrad < -r.lambdaL1:
		return sumGrad + r.lambdaL1
	default:
		return 0
	}
}

// LeafOutput returns the optimal leaf value -T(G)/(H+λ).
func (r *Regularizer) LeafOutput(sumGrad, sumHess float64) float64 {
	const epsilon = 1e-10
	return -r.thresholdL1(sumGrad) / (sumHess + r.lambdaL2 + epsilon)
}

// SplitGain returns 0.5*(T(GL)²/(HL+λ) + T(GR)²/(HR+λ) - T(G)²/(H+λ)).
func (r *Regularizer) SplitGain(leftGrad, leftHess, rightGrad, rightHess, parentGrad, parentHess float64) float64 {
	return r.score(leftGrad, leftHess) + r.score(rightGrad, rightHess) - r.score(parentGrad, parentHess)
}

func (r *Regularizer) score(sumGrad, sumHess float64) float64 {
	const epsilon = 1e-10
	g := r.thresholdL1(sumGrad)
	return 0.5 * g * g / (sumHess + r.lambdaL2 + epsilon)
}
