// Package serving はモデル成果物を読み込み、フォーム入力から予約キャンセルを予測する
// 推論サービスと、その HTTP フロントエンドを提供します。
package serving

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/schema"
	"github.com/spf13/afero"
	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/dataset"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/lightgbm"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
)

// Messages returned instead of a label.
const (
	MsgModelNotLoaded   = "Error: Model not loaded"
	msgPredictionPrefix = "Error in prediction: "
)

// ErrModelNotLoaded is reported while the model handle is empty.
var ErrModelNotLoaded = errors.New("model not loaded")

// Config locates the model artifact.
type Config struct {
	ModelPath string
	Bucket    string
	BlobKey   string
}

// Result is the outcome of one prediction request.
type Result struct {
	Label int
	OK    bool
	Error string
	err   error
}

// Text is the label on success and the error message otherwise.
func (r Result) Text() string {
	if r.OK {
		return fmt.Sprint(r.Label)
	}
	return r.Error
}

// Description is a human readable form of the label.
func (r Result) Description() string {
	if !r.OK {
		return r.Error
	}
	if r.Label == 0 {
		return "The customer is likely to cancel the reservation"
	}
	return "The customer is not likely to cancel the reservation"
}

// Service holds the model handle. Predictions only read the handle; Load and
// Reload replace it under the write lock.
type Service struct {
	cfg    Config
	store  storage.BlobStore
	fs     afero.Fs
	logger log.Logger

	decoder *schema.Decoder

	mu    sync.RWMutex
	model model.Predictor

	// ensureMu serializes artifact downloads.
	ensureMu sync.Mutex
}

// NewService creates a service without a model. Call Load before serving.
func NewService(cfg Config, store storage.BlobStore, fs afero.Fs, logger log.Logger) *Service {
	if logger == nil {
		logger = log.GetLoggerWithName("serving")
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Service{cfg: cfg, store: store, fs: fs, logger: logger, decoder: decoder}
}

// NewServiceWithModel creates a service around an already loaded model.
func NewServiceWithModel(m model.Predictor, logger log.Logger) *Service {
	s := NewService(Config{}, nil, afero.NewMemMapFs(), logger)
	s.SetModel(m)
	return s
}

// SetModel replaces the model handle. A nil model unloads it.
func (s *Service) SetModel(m model.Predictor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

// Loaded reports whether a model is available.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// EnsureArtifact downloads the artifact only when the local file is missing.
// It reports whether a download happened.
func (s *Service) EnsureArtifact(ctx context.Context) (bool, error) {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	exists, err := afero.Exists(s.fs, s.cfg.ModelPath)
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", s.cfg.ModelPath)
	}
	if exists {
		s.logger.Debug("Model artifact present locally", log.PathKey, s.cfg.ModelPath)
		return false, nil
	}
	if err := s.download(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) download(ctx context.Context) error {
	if s.store == nil {
		return errors.Newf("model artifact %s is missing and no object store is configured", s.cfg.ModelPath)
	}
	s.logger.Info("Downloading model artifact",
		log.BucketKey, s.cfg.Bucket,
		log.BlobKeyKey, s.cfg.BlobKey,
		log.PathKey, s.cfg.ModelPath,
	)
	err := storage.DownloadFile(ctx, s.store, s.fs, s.cfg.Bucket, s.cfg.BlobKey, s.cfg.ModelPath)
	return errors.Wrapf(err, "download %s/%s", s.cfg.Bucket, s.cfg.BlobKey)
}

// Load ensures the artifact and decodes it. On failure the current handle is
// left unchanged and the error is returned; the service keeps answering with
// MsgModelNotLoaded until a load succeeds.
func (s *Service) Load(ctx context.Context) error {
	if _, err := s.EnsureArtifact(ctx); err != nil {
		s.logger.Error("Model artifact unavailable", err)
		return err
	}
	return s.decode()
}

// Reload fetches the artifact again from the object store and swaps the
// handle once the new model decoded successfully.
func (s *Service) Reload(ctx context.Context) error {
	s.ensureMu.Lock()
	err := s.download(ctx)
	s.ensureMu.Unlock()
	if err != nil {
		s.logger.Error("Model reload failed", err)
		return err
	}
	return s.decode()
}

func (s *Service) decode() error {
	clf := lightgbm.NewLGBMClassifier()
	if err := model.LoadModel(s.fs, clf, s.cfg.ModelPath); err != nil {
		s.logger.Error("Model artifact could not be decoded", err, log.PathKey, s.cfg.ModelPath)
		return err
	}
	if !clf.IsFitted() {
		err := errors.NewNotFittedError("LGBMClassifier", "Load")
		s.logger.Error("Model artifact is not fitted", err, log.PathKey, s.cfg.ModelPath)
		return err
	}
	s.SetModel(clf)
	s.logger.Info("Model loaded", log.PathKey, s.cfg.ModelPath, log.FeaturesKey, clf.NFeatures())
	return nil
}

// Predict decodes the ten form fields, predicts one row and returns its
// label. It never panics.
func (s *Service) Predict(form url.Values) Result {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()
	if m == nil {
		return Result{Error: MsgModelNotLoaded, err: ErrModelNotLoaded}
	}

	label, err := s.predict(m, form)
	if err != nil {
		s.logger.Warn("Prediction failed", err, log.PhaseKey, log.PhaseInference)
		return Result{Error: msgPredictionPrefix + err.Error(), err: err}
	}
	s.logger.Debug("Prediction served", log.PredictionKey, label, log.PhaseKey, log.PhaseInference)
	return Result{Label: label, OK: true}
}

func (s *Service) predict(m model.Predictor, form url.Values) (label int, err error) {
	defer errors.Recover(&err, "Predict")

	var rec dataset.BookingRecord
	if err := s.decoder.Decode(&rec, form); err != nil {
		return 0, err
	}
	X := mat.NewDense(1, len(dataset.FeatureNames), rec.Features())
	out, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	if r, c := out.Dims(); r != 1 || c < 1 {
		return 0, errors.NewDimensionError("Predict", 1, r, 0)
	}
	return int(out.At(0, 0)), nil
}

// IsNotLoaded reports whether r failed because no model was loaded.
func (r Result) IsNotLoaded() bool {
	return errors.Is(r.err, ErrModelNotLoaded)
}
