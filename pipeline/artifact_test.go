package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/lightgbm"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
)

func fittedClassifier(t *testing.T) *lightgbm.LGBMClassifier {
	t.Helper()
	X := mat.NewDense(40, 2, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%5))
		if i >= 20 {
			y.Set(i, 0, 1)
		}
	}
	clf := lightgbm.NewLGBMClassifier().WithNumIterations(5)
	require.NoError(t, clf.Fit(X, y))
	return clf
}

func TestArtifactStoreSaveWritesLocalThenRemote(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := storage.NewFsStore(fs, "/blobs")
	a := NewArtifactStore(fs, store, testLogger())
	clf := fittedClassifier(t)

	require.NoError(t, a.Save(context.Background(), clf, "artifacts/models/lgbm_model.gob", testBucket, "models/lgbm_model.gob"))

	local, err := afero.ReadFile(fs, "artifacts/models/lgbm_model.gob")
	require.NoError(t, err)
	require.NotEmpty(t, local)
	var remote bytes.Buffer
	require.NoError(t, store.Download(context.Background(), testBucket, "models/lgbm_model.gob", &remote))
	assert.Equal(t, local, remote.Bytes())

	loaded, err := a.LoadClassifier("artifacts/models/lgbm_model.gob")
	require.NoError(t, err)
	assert.Equal(t, clf.Classes(), loaded.Classes())

	// リモート側の成果物も同じ予測を返す
	fromRemote := lightgbm.NewLGBMClassifier()
	require.NoError(t, model.Decode(&remote, fromRemote))
	X := mat.NewDense(3, 2, []float64{2, 1, 19, 4, 35, 0})
	want, err := loaded.Predict(X)
	require.NoError(t, err)
	got, err := fromRemote.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestArtifactStoreRemoteFailureKeepsLocalFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := &countingStore{uploadErr: errInjected}
	a := NewArtifactStore(fs, store, testLogger())

	err := a.Save(context.Background(), fittedClassifier(t), "m/model.gob", testBucket, "models/lgbm_model.gob")
	var pe *errors.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.IsRemote())
	assert.True(t, errors.Is(err, errInjected))

	exists, _ := afero.Exists(fs, "m/model.gob")
	assert.True(t, exists)
}

func TestArtifactStoreLocalFailureSkipsUpload(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	store := &countingStore{}
	a := NewArtifactStore(fs, store, testLogger())

	err := a.Save(context.Background(), fittedClassifier(t), "m/model.gob", testBucket, "models/lgbm_model.gob")
	var pe *errors.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, errors.TargetLocal, pe.Target)
	assert.Zero(t, store.uploads)
}

func TestLoadClassifierRejectsUnfittedArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewArtifactStore(fs, &countingStore{}, testLogger())
	require.NoError(t, a.Save(context.Background(), lightgbm.NewLGBMClassifier(), "m.gob", testBucket, "k"))

	_, err := a.LoadClassifier("m.gob")
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = a.LoadClassifier("absent.gob")
	assert.Error(t, err)
}
