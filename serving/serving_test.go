package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/gumutzkn/MLOPS-PROJECT-1/core/model"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/lightgbm"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
)

const (
	modelPath = "artifacts/models/lgbm_model.gob"
	bucket    = "hotel-data"
	blobKey   = "models/lgbm_model.gob"
)

func testLogger() log.Logger {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return logger
}

func validForm() url.Values {
	return url.Values{
		"lead_time":              {"30"},
		"special_requests_count": {"1"},
		"avg_price_per_room":     {"99.5"},
		"arrival_month":          {"7"},
		"arrival_date":           {"14"},
		"market_segment_type":    {"4"},
		"week_nights":            {"3"},
		"weekend_nights":         {"2"},
		"meal_plan_type":         {"0"},
		"room_type":              {"0"},
	}
}

// recordingModel returns a fixed label and remembers the last input row.
type recordingModel struct {
	mu    sync.Mutex
	label float64
	last  []float64
	err   error
	panic bool
}

func (m *recordingModel) Predict(X mat.Matrix) (mat.Matrix, error) {
	if m.panic {
		panic("broken model")
	}
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.last = mat.Row(nil, 0, X)
	m.mu.Unlock()
	return mat.NewDense(1, 1, []float64{m.label}), nil
}

// leadTimeClassifier is fitted so that short lead times predict 1.
func leadTimeClassifier(t *testing.T) *lightgbm.LGBMClassifier {
	t.Helper()
	n := 120
	X := mat.NewDense(n, 10, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		lead := float64((i * 37) % 300)
		X.Set(i, 0, lead)
		X.Set(i, 2, 80+float64(i%20))
		X.Set(i, 3, float64(1+i%12))
		if lead < 150 {
			y.Set(i, 0, 1)
		}
	}
	clf := lightgbm.NewLGBMClassifier().WithNumIterations(20)
	require.NoError(t, clf.Fit(X, y))
	return clf
}

func storeWithArtifact(t *testing.T, fs afero.Fs) *countingStore {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, model.Encode(&buf, leadTimeClassifier(t)))
	inner := storage.NewFsStore(fs, "/blobs")
	require.NoError(t, inner.Upload(context.Background(), &buf, bucket, blobKey))
	return &countingStore{BlobStore: inner}
}

type countingStore struct {
	storage.BlobStore
	mu        sync.Mutex
	downloads int
}

func (s *countingStore) Download(ctx context.Context, b, k string, w io.Writer) error {
	s.mu.Lock()
	s.downloads++
	s.mu.Unlock()
	return s.BlobStore.Download(ctx, b, k, w)
}

func newService(fs afero.Fs, store storage.BlobStore) *Service {
	return NewService(Config{ModelPath: modelPath, Bucket: bucket, BlobKey: blobKey}, store, fs, testLogger())
}

func TestPredictWithoutModel(t *testing.T) {
	svc := NewService(Config{}, nil, afero.NewMemMapFs(), testLogger())
	res := svc.Predict(validForm())
	assert.False(t, res.OK)
	assert.Equal(t, "Error: Model not loaded", res.Text())
	assert.True(t, res.IsNotLoaded())
}

func TestPredictAssemblesFeaturesInContractOrder(t *testing.T) {
	m := &recordingModel{label: 1}
	svc := NewServiceWithModel(m, testLogger())

	res := svc.Predict(validForm())
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "1", res.Text())
	assert.Equal(t, []float64{30, 1, 99.5, 7, 14, 4, 3, 2, 0, 0}, m.last)
}

func TestPredictErrors(t *testing.T) {
	t.Run("missing field", func(t *testing.T) {
		svc := NewServiceWithModel(&recordingModel{}, testLogger())
		form := validForm()
		form.Del("room_type")
		res := svc.Predict(form)
		assert.True(t, strings.HasPrefix(res.Text(), "Error in prediction: "), res.Text())
	})
	t.Run("non numeric", func(t *testing.T) {
		svc := NewServiceWithModel(&recordingModel{}, testLogger())
		form := validForm()
		form.Set("lead_time", "soon")
		res := svc.Predict(form)
		assert.True(t, strings.HasPrefix(res.Text(), "Error in prediction: "))
	})
	t.Run("model error", func(t *testing.T) {
		svc := NewServiceWithModel(&recordingModel{err: errors.New("boom")}, testLogger())
		assert.Equal(t, "Error in prediction: boom", svc.Predict(validForm()).Text())
	})
	t.Run("model panic", func(t *testing.T) {
		svc := NewServiceWithModel(&recordingModel{panic: true}, testLogger())
		res := svc.Predict(validForm())
		assert.False(t, res.OK)
		assert.Contains(t, res.Text(), "Error in prediction: ")
	})
}

func TestEnsureArtifactIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := storeWithArtifact(t, fs)
	svc := newService(fs, store)

	downloaded, err := svc.EnsureArtifact(context.Background())
	require.NoError(t, err)
	assert.True(t, downloaded)

	for i := 0; i < 3; i++ {
		downloaded, err = svc.EnsureArtifact(context.Background())
		require.NoError(t, err)
		assert.False(t, downloaded)
	}
	assert.Equal(t, 1, store.downloads)
}

func TestEnsureArtifactLocalHitSkipsStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, modelPath, []byte("x"), 0o644))
	store := &countingStore{BlobStore: storage.NewFsStore(fs, "/blobs")}

	downloaded, err := newService(fs, store).EnsureArtifact(context.Background())
	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Zero(t, store.downloads)
}

func TestLoadAndPredict(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newService(fs, storeWithArtifact(t, fs))
	require.NoError(t, svc.Load(context.Background()))
	require.True(t, svc.Loaded())

	res := svc.Predict(validForm())
	require.True(t, res.OK, res.Error)
	assert.Equal(t, 1, res.Label)

	late := validForm()
	late.Set("lead_time", "280")
	assert.Equal(t, 0, svc.Predict(late).Label)
}

func TestPredictWithLocallySavedModel(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, model.SaveModel(fs, leadTimeClassifier(t), modelPath))
	store := &countingStore{BlobStore: storage.NewFsStore(fs, "/blobs")}
	svc := newService(fs, store)
	require.NoError(t, svc.Load(context.Background()))

	res := svc.Predict(url.Values{
		"lead_time":              {"10"},
		"special_requests_count": {"2"},
		"avg_price_per_room":     {"95.5"},
		"arrival_month":          {"7"},
		"arrival_date":           {"15"},
		"market_segment_type":    {"1"},
		"week_nights":            {"2"},
		"weekend_nights":         {"1"},
		"meal_plan_type":         {"0"},
		"room_type":              {"0"},
	})
	require.True(t, res.OK, res.Error)
	assert.Contains(t, []int{0, 1}, res.Label)
	assert.Equal(t, 1, res.Label)
	assert.Zero(t, store.downloads)
}

func TestLoadFailureKeepsServiceRunning(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newService(fs, storage.NewFsStore(fs, "/blobs"))

	err := svc.Load(context.Background())
	assert.True(t, errors.Is(err, storage.ErrBlobNotFound))
	assert.False(t, svc.Loaded())
	assert.Equal(t, MsgModelNotLoaded, svc.Predict(validForm()).Text())

	require.NoError(t, afero.WriteFile(fs, modelPath, []byte("not a model"), 0o644))
	assert.Error(t, svc.Load(context.Background()))
	assert.False(t, svc.Loaded())
}

func TestReloadReplacesModelOnlyOnSuccess(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := storeWithArtifact(t, fs)
	svc := newService(fs, store)
	require.NoError(t, svc.Load(context.Background()))

	require.NoError(t, svc.Reload(context.Background()))
	assert.Equal(t, 2, store.downloads)

	require.NoError(t, fs.Remove("/blobs/"+bucket+"/"+blobKey))
	assert.Error(t, svc.Reload(context.Background()))
	assert.True(t, svc.Loaded())
}

func TestConcurrentPredictAndReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newService(fs, storeWithArtifact(t, fs))
	require.NoError(t, svc.Load(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.True(t, svc.Predict(validForm()).OK)
			}
		}()
	}
	require.NoError(t, svc.Reload(context.Background()))
	wg.Wait()
}

func TestServerRoutes(t *testing.T) {
	svc := NewServiceWithModel(&recordingModel{label: 0}, testLogger())
	srv := httptest.NewServer(NewServer(svc, testLogger()).Handler())
	defer srv.Close()

	t.Run("index", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `name="special_requests_count"`)
	})

	t.Run("form post", func(t *testing.T) {
		resp, err := http.PostForm(srv.URL+"/", validForm())
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "likely to cancel")
	})

	t.Run("json predict", func(t *testing.T) {
		payload := `{"lead_time": 30, "special_requests_count": 1, "avg_price_per_room": 99.5,
			"arrival_month": 7, "arrival_date": 14, "market_segment_type": 4,
			"week_nights": 3, "weekend_nights": 2, "meal_plan_type": 0, "room_type": 0}`
		resp, err := http.Post(srv.URL+"/api/predict", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out PredictionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotNil(t, out.Prediction)
		assert.Equal(t, 0, *out.Prediction)
	})

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		var out HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, out.ModelLoaded)
	})

	t.Run("reload without store", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/admin/reload", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestServerWithoutModel(t *testing.T) {
	svc := NewService(Config{}, nil, afero.NewMemMapFs(), testLogger())
	e := NewServer(svc, testLogger()).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(validForm().Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error: Model not loaded")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validForm().Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error: Model not loaded")
}
