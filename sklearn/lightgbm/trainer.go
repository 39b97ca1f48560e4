package lightgbm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
)

// Trainer implements leaf-wise gradient boosting over histogram-binned
// features. Raw scores are cached per row so each iteration only evaluates
// the newest tree.
type Trainer struct {
	params TrainingParams

	X *mat.Dense
	y []float64

	// binUpper[f][b] is the inclusive upper bound of bin b; the last bound is +Inf.
	binUpper [][]float64
	bins     [][]uint16

	gradients []float64
	hessians  []float64
	scores    []float64

	trees     []Tree
	initScore float64

	objective Objective
	sampler   *Sampler
	reg       *Regularizer
	logger    log.Logger
}

// Histogram accumulates gradient statistics of one bin.
type Histogram struct {
	Count   int
	SumGrad float64
	SumHess float64
}

// SplitInfo contains information about a candidate split.
type SplitInfo struct {
	Feature    int
	Bin        int
	Threshold  float64
	Gain       float64
	LeftCount  int
	RightCount int
	LeftGrad   float64
	RightGrad  float64
	LeftHess   float64
	RightHess  float64
}

func (s SplitInfo) valid() bool { return s.Feature >= 0 }

var noSplit = SplitInfo{Feature: -1}

// leafEntry is a leaf of the tree under construction.
type leafEntry struct {
	node    int
	indices []int
	depth   int
	sumGrad float64
	sumHess float64
	split   SplitInfo
}

// NewTrainer creates a new trainer. Zero-valued params take LightGBM defaults.
func NewTrainer(params TrainingParams) *Trainer {
	params = params.withDefaults()
	return &Trainer{
		params: params,
		reg:    NewRegularizer(params),
		logger: log.GetLoggerWithName("lightgbm.trainer"),
	}
}

// Fit trains the ensemble. y must be a single column of targets; for the binary
// objective the targets are 0/1.
func (t *Trainer) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, _ := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.Wrap(errors.ErrEmptyData, "Trainer.Fit")
	}
	if rows != yRows {
		return errors.NewDimensionError("Trainer.Fit", rows, yRows, 0)
	}

	t.X = mat.DenseCopyOf(X)
	t.y = make([]float64, rows)
	for i := 0; i < rows; i++ {
		t.y[i] = y.At(i, 0)
	}

	objective, err := objectiveFor(t.params.Objective)
	if err != nil {
		return err
	}
	t.objective = objective

	t.initScore = objective.InitScore(t.y)
	if err := errors.CheckScalar("init_score", t.initScore, 0); err != nil {
		return err
	}
	t.scores = make([]float64, rows)
	for i := range t.scores {
		t.scores[i] = t.initScore
	}
	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.trees = nil

	t.buildBins()
	t.sampler = NewSampler(t.params)

	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.calculateGradients()

		bag := t.sampler.SampleInstances(rows, iter)
		features := t.sampler.SampleFeatures(cols)
		tree := t.buildTree(bag, features)
		if tree.NumLeaves <= 1 {
			errors.Warn(errors.NewConvergenceWarning("gbdt", iter, "no leaf meets the split requirements"))
			break
		}

		t.trees = append(t.trees, tree)
		t.updateScores(&t.trees[len(t.trees)-1])

		if t.params.Verbosity > 0 && iter%10 == 0 {
			loss := t.calculateLoss()
			if err := errors.CheckScalar("training_loss", loss, iter); err != nil {
				return err
			}
			t.logger.Debug("Training progress", log.IterationKey, iter, log.LossKey, loss)
		}
	}
	return nil
}

// buildBins discretizes every feature once before boosting starts.
func (t *Trainer) buildBins() {
	rows, cols := t.X.Dims()
	t.binUpper = make([][]float64, cols)
	t.bins = make([][]uint16, cols)

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, t.X)
		upper := findBinUpperBounds(col, t.params.MaxBin)
		binned := make([]uint16, rows)
		for i, v := range col {
			binned[i] = uint16(binOf(upper, v))
		}
		t.binUpper[j] = upper
		t.bins[j] = binned
	}
}

// findBinUpperBounds returns ascending bin upper bounds. Distinct values get
// their own bin when they fit in maxBin; otherwise bins hold roughly equal
// sample counts.
func findBinUpperBounds(values []float64, maxBin int) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return []float64{math.Inf(1)}
	}
	sort.Float64s(sorted)

	var distinct []float64
	var counts []int
	for _, v := range sorted {
		if n := len(distinct); n > 0 && distinct[n-1] == v {
			counts[n-1]++
			continue
		}
		distinct = append(distinct, v)
		counts = append(counts, 1)
	}

	upper := make([]float64, 0, maxBin)
	if len(distinct) <= maxBin {
		for i := 0; i+1 < len(distinct); i++ {
			upper = append(upper, (distinct[i]+distinct[i+1])/2)
		}
		return append(upper, math.Inf(1))
	}

	perBin := float64(len(sorted)) / float64(maxBin)
	acc := 0
	for i := 0; i+1 < len(distinct) && len(upper) < maxBin-1; i++ {
		acc += counts[i]
		if float64(acc) >= perBin*float64(len(upper)+1) {
			upper = append(upper, (distinct[i]+distinct[i+1])/2)
		}
	}
	return append(upper, math.Inf(1))
}

func binOf(upper []float64, v float64) int {
	if math.IsNaN(v) {
		return len(upper) - 1
	}
	return sort.SearchFloat64s(upper, v)
}

func (t *Trainer) calculateGradients() {
	for i, score := range t.scores {
		t.gradients[i] = t.objective.Gradient(score, t.y[i])
		t.hessians[i] = t.objective.Hessian(score, t.y[i])
	}
}

// buildTree grows one tree leaf-wise: the leaf with the largest gain is split
// until NumLeaves is reached or no leaf can be split.
func (t *Trainer) buildTree(bag, features []int) Tree {
	tree := Tree{
		ShrinkageRate: t.params.LearningRate,
		Nodes:         []Node{newLeaf(0)},
	}

	root := &leafEntry{node: 0, indices: bag}
	for _, i := range bag {
		root.sumGrad += t.gradients[i]
		root.sumHess += t.hessians[i]
	}
	root.split = t.findBestSplit(root, features)
	leaves := []*leafEntry{root}

	for len(leaves) < t.params.NumLeaves {
		best := -1
		for i, l := range leaves {
			if !l.split.valid() {
				continue
			}
			if best < 0 || l.split.Gain > leaves[best].split.Gain {
				best = i
			}
		}
		if best < 0 {
			break
		}

		parent := leaves[best]
		s := parent.split
		leftIdx, rightIdx := t.partition(parent.indices, s)

		leftNode, rightNode := len(tree.Nodes), len(tree.Nodes)+1
		pn := &tree.Nodes[parent.node]
		pn.SplitFeature = s.Feature
		pn.Threshold = s.Threshold
		pn.Gain = s.Gain
		pn.LeftChild = leftNode
		pn.RightChild = rightNode

		depth := parent.depth + 1
		tree.Nodes = append(tree.Nodes, newLeaf(depth), newLeaf(depth))

		left := &leafEntry{node: leftNode, indices: leftIdx, depth: depth, sumGrad: s.LeftGrad, sumHess: s.LeftHess}
		right := &leafEntry{node: rightNode, indices: rightIdx, depth: depth, sumGrad: s.RightGrad, sumHess: s.RightHess}
		left.split = t.findBestSplit(left, features)
		right.split = t.findBestSplit(right, features)

		leaves[best] = left
		leaves = append(leaves, right)
	}

	for _, l := range leaves {
		n := &tree.Nodes[l.node]
		n.LeafValue = t.reg.LeafOutput(l.sumGrad, l.sumHess)
		n.LeafCount = len(l.indices)
		if l.depth > tree.MaxDepth {
			tree.MaxDepth = l.depth
		}
	}
	tree.NumLeaves = len(leaves)
	return tree
}

// findBestSplit scans the histogram of every sampled feature. Ties keep the
// first candidate in feature then bin order.
func (t *Trainer) findBestSplit(leaf *leafEntry, features []int) SplitInfo {
	if t.params.MaxDepth > 0 && leaf.depth >= t.params.MaxDepth {
		return noSplit
	}
	n := len(leaf.indices)
	if n < 2*t.params.MinDataInLeaf || n < 2 {
		return noSplit
	}

	best := noSplit
	for _, f := range features {
		numBins := len(t.binUpper[f])
		if numBins < 2 {
			continue
		}
		hist := t.buildHistogram(leaf.indices, f, numBins)

		var leftGrad, leftHess float64
		leftCount := 0
		for b := 0; b < numBins-1; b++ {
			leftGrad += hist[b].SumGrad
			leftHess += hist[b].SumHess
			leftCount += hist[b].Count

			rightCount := n - leftCount
			if leftCount < t.params.MinDataInLeaf || leftCount == 0 {
				continue
			}
			if rightCount < t.params.MinDataInLeaf || rightCount == 0 {
				break
			}
			rightGrad := leaf.sumGrad - leftGrad
			rightHess := leaf.sumHess - leftHess
			if leftHess < t.params.MinSumHessianInLeaf || rightHess < t.params.MinSumHessianInLeaf {
				continue
			}

			gain := t.reg.SplitGain(leftGrad, leftHess, rightGrad, rightHess, leaf.sumGrad, leaf.sumHess)
			if gain <= t.params.MinGainToSplit {
				continue
			}
			if !best.valid() || gain > best.Gain {
				best = SplitInfo{
					Feature:    f,
					Bin:        b,
					Threshold:  t.binUpper[f][b],
					Gain:       gain,
					LeftCount:  leftCount,
					RightCount: rightCount,
					LeftGrad:   leftGrad,
					RightGrad:  rightGrad,
					LeftHess:   leftHess,
					RightHess:  rightHess,
				}
			}
		}
	}
	return best
}

func (t *Trainer) buildHistogram(indices []int, feature, numBins int) []Histogram {
	hist := make([]Histogram, numBins)
	binned := t.bins[feature]
	for _, i := range indices {
		h := &hist[binned[i]]
		h.Count++
		h.SumGrad += t.gradients[i]
		h.SumHess += t.hessians[i]
	}
	return hist
}

func (t *Trainer) partition(indices []int, s SplitInfo) ([]int, []int) {
	left := make([]int, 0, s.LeftCount)
	right := make([]int, 0, s.RightCount)
	binned := t.bins[s.Feature]
	for _, i := range indices {
		if int(binned[i]) <= s.Bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// updateScores adds the new tree's output to every cached row score, bagged
// or not.
func (t *Trainer) updateScores(tree *Tree) {
	rows, cols := t.X.Dims()
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, t.X)
		t.scores[i] += tree.Predict(row)
	}
}

func (t *Trainer) calculateLoss() float64 {
	loss := 0.0
	for i, score := range t.scores {
		loss += t.objective.Loss(score, t.y[i])
	}
	return loss / float64(len(t.scores))
}

// GetModel returns the trained model
func (t *Trainer) GetModel() *Model {
	_, nFeatures := t.X.Dims()
	return &Model{
		Objective:    ObjectiveType(t.objective.Name()),
		NumIteration: len(t.trees),
		LearningRate: t.params.LearningRate,
		NumLeaves:    t.params.NumLeaves,
		MaxDepth:     t.params.MaxDepth,
		NumFeatures:  nFeatures,
		Trees:        t.trees,
		InitScore:    t.initScore,
	}
}
