package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/model_selection"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
	"github.com/gumutzkn/MLOPS-PROJECT-1/tracking"
)

const testYaml = `
data_ingestion:
  bucket_name: "hotel-data"
  bucket_file_name: "Hotel_Reservations.csv"
  train_ratio: 0.7
search:
  n_iter: 6
  scoring: f1
param_distributions:
  n_estimators:
    type: randint
    low: 10
    high: 20
  boosting_type:
    type: choice
    values: [gbdt]
storage:
  backend: s3
  region: eu-west-1
server:
  port: 9000
`

func clearOverrides(t *testing.T) {
	for _, k := range []string{"GCS_BUCKET_NAME", "MLFLOW_TRACKING_URI", "PORT", "HOTEL_CONFIG_PATH"} {
		t.Setenv(k, "")
	}
}

func TestLoadFromProvider(t *testing.T) {
	clearOverrides(t)
	cfg, err := LoadFromProvider(rawbytes.Provider([]byte(testYaml)))
	require.NoError(t, err)

	assert.Equal(t, "hotel-data", cfg.DataIngestion.BucketName)
	assert.Equal(t, 0.7, cfg.DataIngestion.TrainRatio)
	assert.Equal(t, 42, cfg.DataIngestion.Seed)
	assert.Equal(t, 6, cfg.Search.NIter)
	assert.Equal(t, 2, cfg.Search.CV)
	assert.Equal(t, model_selection.ScoringF1, cfg.Search.Scoring)
	assert.Equal(t, storage.BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "eu-west-1", cfg.StorageOptions().Region)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "artifacts/models/lgbm_model.gob", cfg.Paths.ModelOutput)

	dists, err := cfg.Distributions()
	require.NoError(t, err)
	assert.Equal(t, []string{"boosting_type", "n_estimators"}, dists.Names())
	assert.Equal(t, model_selection.RandInt{Low: 10, High: 20}, dists["n_estimators"])
}

func TestDefaultsWithoutFile(t *testing.T) {
	clearOverrides(t)
	cfg, err := LoadFromProvider(nil)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.DataIngestion.TrainRatio)
	assert.Equal(t, 4, cfg.Search.NIter)
	assert.Equal(t, -1, cfg.Search.NJobs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, tracking.BackendSQLite, cfg.TrackingOptions().Backend)

	dists, err := cfg.Distributions()
	require.NoError(t, err)
	assert.Len(t, dists, 5)
	assert.Equal(t, model_selection.Uniform{Low: 0.01, High: 0.21}, dists["learning_rate"])
}

func TestEnvironmentOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv("HOTEL_SEARCH__N_ITER", "12")
	t.Setenv("HOTEL_DATA_INGESTION__TRAIN_RATIO", "0.75")
	t.Setenv("GCS_BUCKET_NAME", "from-env")
	t.Setenv("MLFLOW_TRACKING_URI", "http://mlflow:5000")
	t.Setenv("PORT", "5001")

	cfg, err := LoadFromProvider(rawbytes.Provider([]byte(testYaml)))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Search.NIter)
	assert.Equal(t, 0.75, cfg.DataIngestion.TrainRatio)
	assert.Equal(t, "from-env", cfg.DataIngestion.BucketName)
	assert.Equal(t, tracking.BackendMLflow, cfg.Tracking.Backend)
	assert.Equal(t, "http://mlflow:5000", cfg.Tracking.URI)
	assert.Equal(t, 5001, cfg.Server.Port)
}

func TestInvalidConfiguration(t *testing.T) {
	cases := map[string]string{
		"ratio above one":   "data_ingestion:\n  train_ratio: 1.5\n",
		"ratio zero":        "data_ingestion:\n  train_ratio: 0\n",
		"single fold":       "search:\n  cv: 1\n",
		"unknown scoring":   "search:\n  scoring: balanced_accuracy\n",
		"bad distribution":  "param_distributions:\n  max_depth:\n    type: normal\n",
		"inverted interval": "param_distributions:\n  learning_rate:\n    type: uniform\n    low: 0.3\n    high: 0.1\n",
		"malformed yaml":    "search: [unclosed\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			clearOverrides(t)
			_, err := LoadFromProvider(rawbytes.Provider([]byte(doc)))
			require.Error(t, err)
			var ce *errors.ConfigurationError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}

	t.Run("non numeric PORT", func(t *testing.T) {
		clearOverrides(t)
		t.Setenv("PORT", "http")
		_, err := LoadFromProvider(nil)
		var ce *errors.ConfigurationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "PORT", ce.Field)
	})
}

func TestLoadFile(t *testing.T) {
	clearOverrides(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hotel-data", cfg.DataIngestion.BucketName)

	t.Setenv("HOTEL_CONFIG_PATH", path)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	var ce *errors.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestShippedConfig(t *testing.T) {
	clearOverrides(t)
	cfg, err := Load("config.yaml")
	require.NoError(t, err)
	assert.Contains(t, cfg.DataIngestion.BucketName, "PLACEHOLDER")
	assert.Equal(t, 4, cfg.Search.NIter)
	dists, err := cfg.Distributions()
	require.NoError(t, err)
	assert.Equal(t, model_selection.RandInt{Low: 100, High: 500}, dists["n_estimators"])
}
