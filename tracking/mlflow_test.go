package tracking

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// fakeMLflow records the calls made against the REST API.
type fakeMLflow struct {
	mu          sync.Mutex
	experiments map[string]string
	batches     []map[string]interface{}
	updates     []map[string]interface{}
	artifacts   map[string]string
	failNext    int
}

func newFakeMLflow() *fakeMLflow {
	return &fakeMLflow{experiments: map[string]string{}, artifacts: map[string]string{}}
}

func (f *fakeMLflow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	decode := func() map[string]interface{} {
		var m map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&m)
		return m
	}
	reply := func(v interface{}) { _ = json.NewEncoder(w).Encode(v) }

	switch {
	case r.URL.Path == "/api/2.0/mlflow/experiments/get-by-name":
		id, ok := f.experiments[r.URL.Query().Get("experiment_name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			reply(map[string]string{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "no experiment"})
			return
		}
		reply(map[string]interface{}{"experiment": map[string]string{"experiment_id": id}})
	case r.URL.Path == "/api/2.0/mlflow/experiments/create":
		body := decode()
		f.experiments[body["name"].(string)] = "7"
		reply(map[string]string{"experiment_id": "7"})
	case r.URL.Path == "/api/2.0/mlflow/runs/create":
		body := decode()
		if body["experiment_id"] != "7" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reply(map[string]interface{}{"run": map[string]interface{}{"info": map[string]string{
			"run_id": "run123", "artifact_uri": "mlflow-artifacts:/7/run123/artifacts",
		}}})
	case r.URL.Path == "/api/2.0/mlflow/runs/log-batch":
		f.batches = append(f.batches, decode())
		reply(map[string]string{})
	case r.URL.Path == "/api/2.0/mlflow/runs/update":
		f.updates = append(f.updates, decode())
		reply(map[string]string{})
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/"):
		body, _ := io.ReadAll(r.Body)
		f.artifacts[strings.TrimPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/")] = string(body)
		reply(map[string]string{})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestMLflowRecorderRun(t *testing.T) {
	fake := newFakeMLflow()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	ctx := context.Background()

	rec := NewMLflowRecorder(srv.URL+"/", "hotel", 3)
	run, err := rec.StartRun(ctx, "training")
	require.NoError(t, err)
	assert.Equal(t, "run123", run.ID())
	assert.Equal(t, "7", fake.experiments["hotel"])

	require.NoError(t, run.LogParams(ctx, map[string]string{"num_leaves": "31", "max_depth": strings.Repeat("x", 600)}))
	require.NoError(t, run.LogMetrics(ctx, map[string]float64{"accuracy": 0.8}))
	require.NoError(t, run.LogArtifact(ctx, "model/lgbm_model.gob", strings.NewReader("gob")))
	require.NoError(t, run.End(ctx, RunStatusFinished))

	require.Len(t, fake.batches, 2)
	params := fake.batches[0]["params"].([]interface{})
	require.Len(t, params, 2)
	first := params[0].(map[string]interface{})
	assert.Equal(t, "max_depth", first["key"])
	assert.Len(t, first["value"], maxParamValueLength)
	metrics := fake.batches[1]["metrics"].([]interface{})
	assert.Equal(t, 0.8, metrics[0].(map[string]interface{})["value"])

	assert.Equal(t, "gob", fake.artifacts["7/run123/artifacts/model/lgbm_model.gob"])
	require.Len(t, fake.updates, 1)
	assert.Equal(t, "FINISHED", fake.updates[0]["status"])
}

func TestMLflowRecorderRetriesServerErrors(t *testing.T) {
	fake := newFakeMLflow()
	fake.experiments["hotel"] = "7"
	fake.failNext = 2
	srv := httptest.NewServer(fake)
	defer srv.Close()

	run, err := NewMLflowRecorder(srv.URL, "hotel", 3).StartRun(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, "run123", run.ID())
}

func TestMLflowRecorderClientErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error_code":"PERMISSION_DENIED","message":"nope"}`)
	}))
	defer srv.Close()

	_, err := NewMLflowRecorder(srv.URL, "hotel", 5).StartRun(context.Background(), "r")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "PERMISSION_DENIED", apiErr.ErrorCode)
}

func TestMLflowArtifactRequiresProxyScheme(t *testing.T) {
	run := &mlflowRun{rec: NewMLflowRecorder("http://unused", "x", 1), id: "r", artifactURI: "s3://bucket/path"}
	assert.Error(t, run.LogArtifact(context.Background(), "a.txt", strings.NewReader("x")))
}

func TestNew(t *testing.T) {
	_, err := New(Options{Backend: BackendMLflow})
	var ce *errors.ConfigurationError
	assert.True(t, errors.As(err, &ce))

	_, err = New(Options{Backend: "wandb"})
	assert.True(t, errors.As(err, &ce))

	rec, err := New(Options{Backend: BackendNone})
	require.NoError(t, err)
	run, err := rec.StartRun(context.Background(), "x")
	require.NoError(t, err)
	assert.NoError(t, run.LogArtifact(context.Background(), "a", strings.NewReader("b")))
}

func TestFormatParams(t *testing.T) {
	got := FormatParams(map[string]interface{}{"learning_rate": 0.1, "n_estimators": 200, "boosting_type": "gbdt"})
	assert.Equal(t, map[string]string{"learning_rate": "0.1", "n_estimators": "200", "boosting_type": "gbdt"}, got)
}
