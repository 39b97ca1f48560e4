package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/config"
	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/dataset"
	"github.com/gumutzkn/MLOPS-PROJECT-1/metrics"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/lightgbm"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/model_selection"
	"github.com/gumutzkn/MLOPS-PROJECT-1/tracking"
)

// PositiveLabel is the encoded Not_Canceled class.
const PositiveLabel = 1.0

// TrainingConfig configures ModelTraining.
type TrainingConfig struct {
	TrainPath     string
	TestPath      string
	ModelOutput   string
	ChartPath     string // empty disables the search chart
	Bucket        string
	ModelBlobKey  string
	RunName       string
	Search        config.SearchConfig
	Distributions model_selection.ParamDistributions
}

// TrainingConfigFrom extracts the training settings from cfg.
func TrainingConfigFrom(cfg *config.Config) (TrainingConfig, error) {
	dists, err := cfg.Distributions()
	if err != nil {
		return TrainingConfig{}, err
	}
	return TrainingConfig{
		TrainPath:     cfg.Paths.ProcessedTrain,
		TestPath:      cfg.Paths.ProcessedTest,
		ModelOutput:   cfg.Paths.ModelOutput,
		ChartPath:     cfg.Paths.SearchChart,
		Bucket:        cfg.DataIngestion.BucketName,
		ModelBlobKey:  cfg.Server.ModelBlobKey,
		RunName:       "model-training",
		Search:        cfg.Search,
		Distributions: dists,
	}, nil
}

// TrainingResult summarizes a successful run.
type TrainingResult struct {
	RunID      string
	BestParams map[string]interface{}
	BestScore  float64
	Metrics    metrics.ClassificationReport
	Model      model.Estimator
	ModelPath  string
}

// ModelTraining runs search, evaluation and persistence inside one
// experiment run.
type ModelTraining struct {
	cfg       TrainingConfig
	fs        afero.Fs
	artifacts *ArtifactStore
	recorder  tracking.Recorder
	logger    log.Logger

	// NewEstimator returns the estimator under search. Defaults to LGBMClassifier.
	NewEstimator func() model.Estimator
}

func NewModelTraining(cfg TrainingConfig, fs afero.Fs, artifacts *ArtifactStore, recorder tracking.Recorder, logger log.Logger) (*ModelTraining, error) {
	if err := ValidateBucket(cfg.Bucket); err != nil {
		return nil, err
	}
	if len(cfg.Distributions) == 0 {
		return nil, errors.NewConfigurationError("param_distributions", "must not be empty", nil)
	}
	if logger == nil {
		logger = log.GetLoggerWithName("training")
	}
	if recorder == nil {
		recorder = tracking.NopRecorder{}
	}
	return &ModelTraining{
		cfg:       cfg,
		fs:        fs,
		artifacts: artifacts,
		recorder:  recorder,
		logger:    logger,
		NewEstimator: func() model.Estimator {
			return lightgbm.NewLGBMClassifier().WithRandomState(cfg.Search.RandomState)
		},
	}, nil
}

// Run executes load, search, evaluation and persistence in order.
//
// The run is ended with FINISHED or FAILED on every path. Parameters are
// recorded right after the search and metrics right after the evaluation, so
// they survive a later persistence failure. A failed recorder call does not
// stop the stages; if every stage succeeded it is returned as a tracking
// PipelineError together with the result.
func (m *ModelTraining) Run(ctx context.Context) (result *TrainingResult, err error) {
	start := time.Now()
	run, err := m.recorder.StartRun(ctx, m.cfg.RunName)
	if err != nil {
		return nil, errors.NewPipelineError(errors.StageTracking, err)
	}
	logger := m.logger.With(log.RunIDKey, run.ID())
	logger.Info("Starting model training")

	var trackingErr error
	track := func(call string, terr error) {
		if terr == nil {
			return
		}
		logger.Warn("Experiment tracking call failed", terr, "call", call)
		if trackingErr == nil {
			trackingErr = terr
		}
	}

	defer func() {
		status := tracking.RunStatusFinished
		if err != nil {
			status = tracking.RunStatusFailed
		}
		track("end", run.End(context.WithoutCancel(ctx), status))
		if err == nil && trackingErr != nil {
			err = errors.NewPipelineError(errors.StageTracking, trackingErr)
		}
		if err != nil {
			stage, _ := errors.FailedStage(err)
			logger.Error("Model training failed", err, log.StageKey, stage, log.RunStatusKey, string(status))
			return
		}
		logger.Info("Model training completed",
			log.RunStatusKey, string(status),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}()

	Xtr, ytr, err := m.load(m.cfg.TrainPath)
	if err != nil {
		return nil, err
	}
	Xte, yte, err := m.load(m.cfg.TestPath)
	if err != nil {
		return nil, err
	}

	search := m.newSearch()
	if err := search.FitContext(ctx, Xtr, ytr); err != nil {
		return nil, errors.NewPipelineError(errors.StageTraining, err)
	}
	result = &TrainingResult{
		RunID:      run.ID(),
		BestParams: search.BestParams,
		BestScore:  search.BestScore,
		Model:      search.BestEstimator,
		ModelPath:  m.cfg.ModelOutput,
	}
	track("log_params", run.LogParams(ctx, m.runParams(search)))
	track("log_metrics", run.LogMetrics(ctx, map[string]float64{"cv_best_score": search.BestScore}))
	if imp := featureImportances(search.BestEstimator); len(imp) > 0 {
		track("log_metrics", run.LogMetrics(ctx, imp))
	}

	report, err := metrics.Evaluate(search.BestEstimator, Xte, mat.VecDenseCopyOf(yte.ColView(0)), PositiveLabel)
	if err != nil {
		return nil, errors.NewPipelineError(errors.StageEvaluation, err)
	}
	result.Metrics = report
	logger.Info("Model evaluated",
		log.AccuracyKey, report.Accuracy,
		log.PrecisionKey, report.Precision,
		log.RecallKey, report.Recall,
		log.F1Key, report.F1,
	)
	track("log_metrics", run.LogMetrics(ctx, report.AsMap()))

	if err := m.artifacts.Save(ctx, search.BestEstimator, m.cfg.ModelOutput, m.cfg.Bucket, m.cfg.ModelBlobKey); err != nil {
		return nil, errors.NewPipelineError(errors.StagePersistence, err)
	}
	track("log_artifact", m.logFile(ctx, run, "model", m.cfg.ModelOutput))
	m.logSearchChart(ctx, run, search.CVResults, track)

	return result, nil
}

func (m *ModelTraining) load(path string) (*mat.Dense, *mat.Dense, error) {
	records, err := dataset.ReadRecordsFile(m.fs, path)
	if err != nil {
		return nil, nil, errors.NewPipelineError(errors.StageLoad, errors.NewIngestionError("load", path, err))
	}
	X, y, err := dataset.ToMatrix(records)
	if err != nil {
		return nil, nil, errors.NewPipelineError(errors.StageLoad, errors.NewIngestionError("load", path, err))
	}
	m.logger.Info("Data loaded", log.PathKey, path, log.SamplesKey, len(records), log.FeaturesKey, len(dataset.FeatureNames))
	return X, y, nil
}

func (m *ModelTraining) newSearch() *model_selection.RandomizedSearchCV {
	s := model_selection.NewRandomizedSearchCV(m.NewEstimator(), m.cfg.Distributions)
	s.NIter = m.cfg.Search.NIter
	s.CV = m.cfg.Search.CV
	s.NJobs = m.cfg.Search.NJobs
	s.Scoring = m.cfg.Search.Scoring
	s.RandomState = m.cfg.Search.RandomState
	s.Verbose = m.cfg.Search.Verbose
	s.Logger = m.logger
	return s
}

// runParams are the refit estimator's parameters plus the search settings.
func (m *ModelTraining) runParams(s *model_selection.RandomizedSearchCV) map[string]string {
	params := tracking.FormatParams(s.BestEstimator.GetParams())
	search := tracking.FormatParams(map[string]interface{}{
		"n_iter":       s.NIter,
		"cv":           s.CV,
		"scoring":      s.Scoring,
		"random_state": s.RandomState,
	})
	for k, v := range search {
		params["search."+k] = v
	}
	return params
}

func (m *ModelTraining) logFile(ctx context.Context, run tracking.Run, dir, path string) error {
	f, err := m.fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return run.LogArtifact(ctx, dir+"/"+filepath.Base(path), f)
}

// logSearchChart writes the chart next to the other artifacts. Rendering
// problems are logged and do not fail the run.
func (m *ModelTraining) logSearchChart(ctx context.Context, run tracking.Run, res model_selection.CVResults, track func(string, error)) {
	if m.cfg.ChartPath == "" {
		return
	}
	var buf bytes.Buffer
	if err := WriteSearchChart(&buf, res, m.cfg.Search.Scoring); err != nil {
		m.logger.Warn("Search chart not rendered", err)
		return
	}
	if err := m.fs.MkdirAll(filepath.Dir(m.cfg.ChartPath), 0o755); err != nil {
		m.logger.Warn("Search chart not written", err, log.PathKey, m.cfg.ChartPath)
		return
	}
	if err := afero.WriteFile(m.fs, m.cfg.ChartPath, buf.Bytes(), 0o644); err != nil {
		m.logger.Warn("Search chart not written", err, log.PathKey, m.cfg.ChartPath)
		return
	}
	track("log_artifact", run.LogArtifact(ctx, "reports/"+filepath.Base(m.cfg.ChartPath), bytes.NewReader(buf.Bytes())))
}

// featureImportances は分割回数ベースの重要度を "importance.<特徴量名>" で返す
func featureImportances(est model.Estimator) map[string]float64 {
	fi, ok := est.(interface{ FeatureImportances() ([]float64, error) })
	if !ok {
		return nil
	}
	imp, err := fi.FeatureImportances()
	if err != nil || len(imp) != len(dataset.FeatureNames) {
		return nil
	}
	out := make(map[string]float64, len(imp))
	for i, v := range imp {
		out["importance."+dataset.FeatureNames[i]] = v
	}
	return out
}
