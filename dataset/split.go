package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// DefaultSeed is the split seed used when none is configured.
const DefaultSeed = 42

// TrainTestSplit partitions f into train and test frames.
//
// The test size is ceil(n * (1 - trainRatio)), as in scikit-learn's
// train_test_split. Rows are permuted with a PCG stream seeded by seed; the
// first nTest permuted rows form the test partition and the rest the train
// partition. Every row lands in exactly one partition and the result is
// reproducible for the same seed and ratio.
func TrainTestSplit(f *Frame, trainRatio float64, seed int) (train, test *Frame, err error) {
	if trainRatio <= 0 || trainRatio >= 1 || math.IsNaN(trainRatio) {
		return nil, nil, errors.NewValidationError("train_ratio", "must be in (0, 1)", trainRatio)
	}
	n := f.Len()
	nTest := int(math.Ceil(float64(n)*(1-trainRatio) - 1e-9))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"the resulting train or test partition would be empty")
	}

	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	perm := r.Perm(n)
	return f.Take(perm[nTest:]), f.Take(perm[:nTest]), nil
}
