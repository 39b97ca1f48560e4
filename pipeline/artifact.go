package pipeline

import (
	"context"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/lightgbm"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
)

// ArtifactStore writes model artifacts to the local filesystem and then
// uploads the written file to the object store.
type ArtifactStore struct {
	fs     afero.Fs
	store  storage.BlobStore
	logger log.Logger
}

func NewArtifactStore(fs afero.Fs, store storage.BlobStore, logger log.Logger) *ArtifactStore {
	if logger == nil {
		logger = log.GetLoggerWithName("artifacts")
	}
	return &ArtifactStore{fs: fs, store: store, logger: logger}
}

// Save encodes m to localPath and uploads that file to bucket/key.
//
// The upload starts only after the local file is closed and non-empty, so the
// remote object is always a copy of a complete local artifact. A failed upload
// returns a remote PersistenceError and leaves the local file in place.
func (a *ArtifactStore) Save(ctx context.Context, m interface{}, localPath, bucket, key string) error {
	if err := a.fs.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.NewPersistenceError(errors.TargetLocal, localPath, err)
	}
	if err := model.SaveModel(a.fs, m, localPath); err != nil {
		return errors.NewPersistenceError(errors.TargetLocal, localPath, err)
	}
	info, err := a.fs.Stat(localPath)
	if err != nil {
		return errors.NewPersistenceError(errors.TargetLocal, localPath, err)
	}
	if info.Size() == 0 {
		return errors.NewPersistenceError(errors.TargetLocal, localPath, errors.New("artifact is empty"))
	}
	a.logger.Info("Model saved locally", log.PathKey, localPath, log.BytesKey, info.Size())

	if a.store == nil {
		return errors.NewPersistenceError(errors.TargetRemote, key, errors.New("no object store configured"))
	}
	if err := storage.UploadFile(ctx, a.store, a.fs, localPath, bucket, key); err != nil {
		err = errors.NewPersistenceError(errors.TargetRemote, key, err)
		a.logger.Error("Model upload failed", err, log.BucketKey, bucket, log.BlobKeyKey, key)
		return err
	}
	a.logger.Info("Model uploaded", log.BucketKey, bucket, log.BlobKeyKey, key)
	return nil
}

// Load decodes the artifact at path into m.
func (a *ArtifactStore) Load(path string, m interface{}) error {
	return errors.Wrapf(model.LoadModel(a.fs, m, path), "load artifact %s", path)
}

// LoadClassifier decodes a fitted classifier from path.
func (a *ArtifactStore) LoadClassifier(path string) (*lightgbm.LGBMClassifier, error) {
	clf := lightgbm.NewLGBMClassifier()
	if err := a.Load(path, clf); err != nil {
		return nil, err
	}
	if !clf.IsFitted() {
		return nil, errors.NewNotFittedError("LGBMClassifier", "LoadClassifier")
	}
	return clf, nil
}
