package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
)

// MLflow limits parameter values to this many characters.
const maxParamValueLength = 500

// MLflowRecorder talks to an MLflow tracking server over its REST API.
type MLflowRecorder struct {
	baseURL    string
	experiment string
	client     *http.Client
	attempts   uint
	logger     log.Logger

	mu           sync.Mutex
	experimentID string
}

// NewMLflowRecorder creates a recorder for the experiment named experiment.
// The experiment is looked up, or created, on the first StartRun.
func NewMLflowRecorder(baseURL, experiment string, attempts uint) *MLflowRecorder {
	if experiment == "" {
		experiment = "Default"
	}
	if attempts == 0 {
		attempts = 1
	}
	return &MLflowRecorder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		experiment: experiment,
		client:     &http.Client{Timeout: 30 * time.Second},
		attempts:   attempts,
		logger:     log.GetLoggerWithName("tracking"),
	}
}

// apiError is an MLflow error response.
type apiError struct {
	Status    int
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("mlflow: %d %s: %s", e.Status, e.ErrorCode, e.Message)
}

// requestError marks a request that could not be built; it is never retried.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// retryableRequest retries transport failures and 5xx responses.
func retryableRequest(err error) bool {
	var reqErr *requestError
	if errors.As(err, &reqErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

func (e *apiError) notFound() bool {
	return e.Status == http.StatusNotFound || e.ErrorCode == "RESOURCE_DOES_NOT_EXIST"
}

// do sends one request with retries on transport errors and 5xx responses.
func (m *MLflowRecorder) do(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	var respBody []byte
	err := retry.Do(func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, rd)
		if err != nil {
			return &requestError{err}
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			apiErr := &apiError{Status: resp.StatusCode}
			_ = json.Unmarshal(respBody, apiErr)
			return apiErr
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(m.attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableRequest),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("Retrying tracking request", err, "path", path, "attempt", n+1)
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "decode %s response", path)
		}
	}
	return nil
}

func (m *MLflowRecorder) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "encode %s request", path)
	}
	return m.do(ctx, http.MethodPost, path, body, "application/json", out)
}

func (m *MLflowRecorder) ensureExperiment(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.experimentID != "" {
		return m.experimentID, nil
	}

	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	path := "/api/2.0/mlflow/experiments/get-by-name?experiment_name=" + url.QueryEscape(m.experiment)
	err := m.do(ctx, http.MethodGet, path, nil, "", &got)
	var apiErr *apiError
	switch {
	case err == nil:
		m.experimentID = got.Experiment.ExperimentID
		return m.experimentID, nil
	case !errors.As(err, &apiErr) || !apiErr.notFound():
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := m.postJSON(ctx, "/api/2.0/mlflow/experiments/create", map[string]string{"name": m.experiment}, &created); err != nil {
		return "", err
	}
	m.logger.Info("Created experiment", "experiment", m.experiment, "experiment_id", created.ExperimentID)
	m.experimentID = created.ExperimentID
	return m.experimentID, nil
}

// StartRun implements Recorder.
func (m *MLflowRecorder) StartRun(ctx context.Context, name string) (Run, error) {
	expID, err := m.ensureExperiment(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve experiment")
	}
	var created struct {
		Run struct {
			Info struct {
				RunID       string `json:"run_id"`
				ArtifactURI string `json:"artifact_uri"`
			} `json:"info"`
		} `json:"run"`
	}
	req := map[string]interface{}{
		"experiment_id": expID,
		"run_name":      name,
		"start_time":    time.Now().UnixMilli(),
	}
	if err := m.postJSON(ctx, "/api/2.0/mlflow/runs/create", req, &created); err != nil {
		return nil, errors.Wrap(err, "create run")
	}
	return &mlflowRun{
		rec:         m,
		id:          created.Run.Info.RunID,
		artifactURI: created.Run.Info.ArtifactURI,
	}, nil
}

type mlflowRun struct {
	rec         *MLflowRecorder
	id          string
	artifactURI string
}

func (r *mlflowRun) ID() string { return r.id }

type mlflowParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type mlflowMetric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int     `json:"step"`
}

func (r *mlflowRun) LogParams(ctx context.Context, params map[string]string) error {
	batch := make([]mlflowParam, 0, len(params))
	for _, k := range sortedKeys(params) {
		v := params[k]
		if len(v) > maxParamValueLength {
			v = v[:maxParamValueLength]
		}
		batch = append(batch, mlflowParam{Key: k, Value: v})
	}
	return r.rec.postJSON(ctx, "/api/2.0/mlflow/runs/log-batch", map[string]interface{}{
		"run_id": r.id,
		"params": batch,
	}, nil)
}

func (r *mlflowRun) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	now := time.Now().UnixMilli()
	batch := make([]mlflowMetric, 0, len(metrics))
	for _, k := range sortedKeys(metrics) {
		batch = append(batch, mlflowMetric{Key: k, Value: metrics[k], Timestamp: now})
	}
	return r.rec.postJSON(ctx, "/api/2.0/mlflow/runs/log-batch", map[string]interface{}{
		"run_id":  r.id,
		"metrics": batch,
	}, nil)
}

// LogArtifact uploads through the tracking server's artifact proxy, which
// serves runs whose artifact URI uses the mlflow-artifacts scheme.
func (r *mlflowRun) LogArtifact(ctx context.Context, path string, content io.Reader) error {
	const scheme = "mlflow-artifacts:"
	if !strings.HasPrefix(r.artifactURI, scheme) {
		return errors.Newf("artifact uri %q is not served by the tracking server", r.artifactURI)
	}
	root := strings.TrimLeft(strings.TrimPrefix(r.artifactURI, scheme), "/")
	body, err := io.ReadAll(content)
	if err != nil {
		return errors.Wrapf(err, "read artifact %s", path)
	}
	target := "/api/2.0/mlflow-artifacts/artifacts/" + root + "/" + strings.TrimLeft(path, "/")
	return r.rec.do(ctx, http.MethodPut, target, body, "application/octet-stream", nil)
}

func (r *mlflowRun) End(ctx context.Context, status RunStatus) error {
	return r.rec.postJSON(ctx, "/api/2.0/mlflow/runs/update", map[string]interface{}{
		"run_id":   r.id,
		"status":   string(status),
		"end_time": time.Now().UnixMilli(),
	}, nil)
}
