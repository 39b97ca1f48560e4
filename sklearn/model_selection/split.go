package model_selection

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// Splitter generates cross-validation folds.
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold holds the row indices of one cross-validation split.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewKFold creates a k-fold splitter. nSplits < 2 falls back to 5.
func NewKFold(nSplits int, shuffle bool, randomSeed int) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int { return kf.NSplits }

// Split generates train/test indices for each fold.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if nSamples < kf.NSplits {
		return nil, errors.NewValueError("KFold.Split",
			"cannot have number of splits greater than the number of samples")
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := newRand(kf.RandomSeed)
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.NSplits)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits

	current := 0
	for i := 0; i < kf.NSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		test := append([]int(nil), indices[current:current+testSize]...)
		train := make([]int, 0, nSamples-testSize)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+testSize:]...)
		sort.Ints(test)
		sort.Ints(train)
		folds[i] = Fold{TrainIndices: train, TestIndices: test}
		current += testSize
	}
	return folds, nil
}

// StratifiedKFold は各フォールドのクラス比率を保つ k-fold 分割です。
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewStratifiedKFold creates a stratified splitter. nSplits < 2 falls back to 5.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (skf *StratifiedKFold) GetNSplits() int { return skf.NSplits }

// Split generates stratified train/test indices for each fold.
// Classes are processed in ascending label order so that a fixed seed always
// yields the same folds.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if yRows, _ := y.Dims(); yRows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yRows, 0)
	}
	if nSamples < skf.NSplits {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			"cannot have number of splits greater than the number of samples")
	}

	byClass := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]float64, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	var r *rand.Rand
	if skf.Shuffle {
		r = newRand(skf.RandomSeed)
	}

	tests := make([][]int, skf.NSplits)
	for _, label := range labels {
		indices := byClass[label]
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		foldSize := len(indices) / skf.NSplits
		remainder := len(indices) % skf.NSplits
		current := 0
		for i := 0; i < skf.NSplits; i++ {
			n := foldSize
			if i < remainder {
				n++
			}
			tests[i] = append(tests[i], indices[current:current+n]...)
			current += n
		}
	}

	folds := make([]Fold, skf.NSplits)
	for i := range folds {
		isTest := make([]bool, nSamples)
		for _, idx := range tests[i] {
			isTest[idx] = true
		}
		train := make([]int, 0, nSamples-len(tests[i]))
		for j := 0; j < nSamples; j++ {
			if !isTest[j] {
				train = append(train, j)
			}
		}
		sort.Ints(tests[i])
		folds[i] = Fold{TrainIndices: train, TestIndices: tests[i]}
	}
	return folds, nil
}

// Subset extracts the rows of X and y selected by indices, in the given order.
func Subset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, xCols := X.Dims()
	_, yCols := y.Dims()

	xs := mat.NewDense(len(indices), xCols, nil)
	ys := mat.NewDense(len(indices), yCols, nil)
	for i, idx := range indices {
		for j := 0; j < xCols; j++ {
			xs.Set(i, j, X.At(idx, j))
		}
		for j := 0; j < yCols; j++ {
			ys.Set(i, j, y.At(idx, j))
		}
	}
	return xs, ys
}

func newRand(seed int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
