package model_selection

import (
	"context"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/core/parallel"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
)

// CVResults は候補ごとの交差検証結果です。インデックスは候補のサンプリング順に対応します。
type CVResults struct {
	Params        []map[string]interface{}
	SplitScores   [][]float64
	MeanTestScore []float64
	StdTestScore  []float64
	RankTestScore []int
	MeanFitTime   []float64 // seconds
}

// RandomizedSearchCV はパラメータ分布から NIter 個の候補をサンプリングし、
// 層化 k-fold 交差検証で評価して最良の推定器を選択します。
//
// 候補とフォールドの組は NJobs 個のワーカーで並列に評価されますが、
// 結果はインデックス順に格納されるため、選択結果はスケジューリングに依存しません。
// 同点の場合は先にサンプリングされた候補が選ばれます。
type RandomizedSearchCV struct {
	Estimator          model.Estimator
	ParamDistributions ParamDistributions
	NIter              int
	CV                 int
	NJobs              int
	Scoring            string
	RandomState        int
	Verbose            int
	Logger             log.Logger

	BestParams    map[string]interface{}
	BestScore     float64
	BestIndex     int
	BestEstimator model.Estimator
	CVResults     CVResults
}

// NewRandomizedSearchCV creates a search with scikit-learn's defaults
// (n_iter=10, cv=5, accuracy).
func NewRandomizedSearchCV(estimator model.Estimator, dists ParamDistributions) *RandomizedSearchCV {
	return &RandomizedSearchCV{
		Estimator:          estimator,
		ParamDistributions: dists,
		NIter:              10,
		CV:                 5,
		NJobs:              -1,
		Scoring:            ScoringAccuracy,
		RandomState:        42,
	}
}

// Fit runs the search without a deadline.
func (s *RandomizedSearchCV) Fit(X, y mat.Matrix) error {
	return s.FitContext(context.Background(), X, y)
}

// FitContext runs the search. Every failure is returned as a TrainingError and
// leaves the Best* fields unset.
func (s *RandomizedSearchCV) FitContext(ctx context.Context, X, y mat.Matrix) error {
	s.reset()
	logger := s.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("model_selection")
	}

	cloner, ok := s.Estimator.(model.Cloner)
	if !ok {
		return errors.NewTrainingError("search", errors.Newf("estimator %T cannot be cloned", s.Estimator))
	}
	scorer, err := GetScorer(s.Scoring)
	if err != nil {
		return errors.NewTrainingError("search", err)
	}
	candidates, err := ParameterSampler{
		Distributions: s.ParamDistributions,
		NIter:         s.NIter,
		RandomState:   s.RandomState,
	}.Samples()
	if err != nil {
		return errors.NewTrainingError("sample", err)
	}
	folds, err := NewStratifiedKFold(s.CV, true, s.RandomState).Split(X, y)
	if err != nil {
		return errors.NewTrainingError("split", err)
	}

	nFolds := len(folds)
	workers := parallel.Workers(s.NJobs)
	logger.Info("Starting randomized search",
		log.CandidateKey, len(candidates),
		log.FoldKey, nFolds,
		log.WorkersKey, workers,
		log.RandomSeedKey, s.RandomState,
		"scoring", scorerName(s.Scoring),
	)

	scores := make([][]float64, len(candidates))
	fitTimes := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, nFolds)
		fitTimes[i] = make([]float64, nFolds)
	}

	err = parallel.ForEach(ctx, len(candidates)*nFolds, workers, func(ctx context.Context, job int) error {
		c, f := job/nFolds, job%nFolds
		start := time.Now()
		score, err := fitAndScore(cloner, candidates[c], scorer, X, y, folds[f])
		if err != nil {
			return errors.Wrapf(err, "candidate %d fold %d", c, f)
		}
		scores[c][f] = score
		fitTimes[c][f] = time.Since(start).Seconds()
		if s.Verbose > 1 {
			logger.Debug("Fold scored",
				log.CandidateKey, c,
				log.FoldKey, f,
				log.ScoreKey, score,
				log.HyperParamsKey, candidates[c],
			)
		}
		return nil
	})
	if err != nil {
		return errors.NewTrainingError("cross_validate", err)
	}

	s.CVResults = summarize(candidates, scores, fitTimes)
	best := 0
	for i, m := range s.CVResults.MeanTestScore {
		if m > s.CVResults.MeanTestScore[best] {
			best = i
		}
	}

	refit := cloner.Clone()
	if err := refit.SetParams(candidates[best]); err != nil {
		return errors.NewTrainingError("refit", err)
	}
	if err := refit.Fit(X, y); err != nil {
		return errors.NewTrainingError("refit", err)
	}

	s.BestIndex = best
	s.BestParams = candidates[best]
	s.BestScore = s.CVResults.MeanTestScore[best]
	s.BestEstimator = refit

	if s.Verbose > 0 {
		for i := range candidates {
			logger.Info("Candidate evaluated",
				log.CandidateKey, i,
				log.ScoreKey, s.CVResults.MeanTestScore[i],
				"rank", s.CVResults.RankTestScore[i],
				log.HyperParamsKey, candidates[i],
			)
		}
	}
	logger.Info("Randomized search completed",
		log.ScoreKey, s.BestScore,
		log.HyperParamsKey, s.BestParams,
	)
	return nil
}

func (s *RandomizedSearchCV) reset() {
	s.BestParams = nil
	s.BestScore = 0
	s.BestIndex = -1
	s.BestEstimator = nil
	s.CVResults = CVResults{}
}

func fitAndScore(cloner model.Cloner, params map[string]interface{}, scorer Scorer, X, y mat.Matrix, fold Fold) (score float64, err error) {
	defer errors.Recover(&err, "fitAndScore")

	est := cloner.Clone()
	if err := est.SetParams(params); err != nil {
		return 0, err
	}
	trainX, trainY := Subset(X, y, fold.TrainIndices)
	testX, testY := Subset(X, y, fold.TestIndices)
	if err := est.Fit(trainX, trainY); err != nil {
		return 0, err
	}
	score, err = scorer(est, testX, testY)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(score) {
		return 0, errors.NewValueError("score", "scorer returned NaN")
	}
	return score, nil
}

func summarize(candidates []map[string]interface{}, scores, fitTimes [][]float64) CVResults {
	n := len(candidates)
	res := CVResults{
		Params:        candidates,
		SplitScores:   scores,
		MeanTestScore: make([]float64, n),
		StdTestScore:  make([]float64, n),
		RankTestScore: make([]int, n),
		MeanFitTime:   make([]float64, n),
	}
	for i := range candidates {
		res.MeanTestScore[i] = mean(scores[i])
		res.StdTestScore[i] = std(scores[i], res.MeanTestScore[i])
		res.MeanFitTime[i] = mean(fitTimes[i])
	}

	// scikit-learn の rank_test_score と同じく、同点は同順位（min 方式）
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return res.MeanTestScore[order[a]] > res.MeanTestScore[order[b]]
	})
	for pos, idx := range order {
		if pos > 0 && res.MeanTestScore[idx] == res.MeanTestScore[order[pos-1]] {
			res.RankTestScore[idx] = res.RankTestScore[order[pos-1]]
			continue
		}
		res.RankTestScore[idx] = pos + 1
	}
	return res
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// std is the population standard deviation, as in cv_results_.
func std(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func scorerName(name string) string {
	if name == "" {
		return ScoringAccuracy
	}
	return name
}
