// Package tracking records experiment runs: parameters, metrics and artifacts
// of one pipeline execution. Backends are an MLflow tracking server (REST)
// and a local SQLite database.
package tracking

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// RunStatus is the terminal or current state of a run, as named by MLflow.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

// Recorder opens experiment runs.
type Recorder interface {
	StartRun(ctx context.Context, name string) (Run, error)
}

// Run is one open experiment run. End must be called exactly once.
type Run interface {
	ID() string
	LogParams(ctx context.Context, params map[string]string) error
	LogMetrics(ctx context.Context, metrics map[string]float64) error
	// LogArtifact stores the content of r under path inside the run.
	LogArtifact(ctx context.Context, path string, r io.Reader) error
	End(ctx context.Context, status RunStatus) error
}

// Backend names accepted by New.
const (
	BackendMLflow = "mlflow"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Options configures New.
type Options struct {
	Backend        string
	URI            string // mlflow tracking server
	ExperimentName string
	SQLitePath     string
	RetryAttempts  uint
}

// New creates the configured recorder.
func New(opts Options) (Recorder, error) {
	switch opts.Backend {
	case BackendMLflow, "":
		if opts.URI == "" {
			return nil, errors.NewConfigurationError("tracking.uri", "required for the mlflow backend", opts.URI)
		}
		return NewMLflowRecorder(opts.URI, opts.ExperimentName, opts.RetryAttempts), nil
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, errors.NewConfigurationError("tracking.sqlite_path", "required for the sqlite backend", opts.SQLitePath)
		}
		return OpenSQLiteRecorder(opts.SQLitePath, opts.ExperimentName)
	case BackendNone:
		return NopRecorder{}, nil
	default:
		return nil, errors.NewConfigurationError("tracking.backend", "unknown backend", opts.Backend)
	}
}

// FormatParams renders hyperparameters as strings in sorted key order.
func FormatParams(params map[string]interface{}) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch x := v.(type) {
		case float64:
			out[k] = fmt.Sprintf("%g", x)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NopRecorder discards everything. It backs the "none" backend.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, string) (Run, error) { return nopRun{}, nil }

type nopRun struct{}

func (nopRun) ID() string                                           { return "" }
func (nopRun) LogParams(context.Context, map[string]string) error   { return nil }
func (nopRun) LogMetrics(context.Context, map[string]float64) error { return nil }
func (nopRun) End(context.Context, RunStatus) error                 { return nil }
func (nopRun) LogArtifact(_ context.Context, _ string, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}
