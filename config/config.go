// Package config loads the pipeline configuration.
//
// Sources are layered, later ones winning: built-in defaults, the YAML file,
// HOTEL_ prefixed environment variables (double underscore separates nested
// keys, e.g. HOTEL_SEARCH__N_ITER=8), and finally the GCS_BUCKET_NAME,
// MLFLOW_TRACKING_URI and PORT variables used by the deployment.
package config

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/sklearn/model_selection"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
	"github.com/gumutzkn/MLOPS-PROJECT-1/tracking"
)

// DefaultPath is read when no path is given and HOTEL_CONFIG_PATH is unset.
const DefaultPath = "config/config.yaml"

const envPrefix = "HOTEL_"

type Config struct {
	DataIngestion      DataIngestionConfig           `koanf:"data_ingestion"`
	Paths              PathsConfig                   `koanf:"paths"`
	Search             SearchConfig                  `koanf:"search"`
	ParamDistributions map[string]DistributionConfig `koanf:"param_distributions"`
	Storage            StorageConfig                 `koanf:"storage"`
	Tracking           TrackingConfig                `koanf:"tracking"`
	Server             ServerConfig                  `koanf:"server"`
	Log                LogConfig                     `koanf:"log"`
}

type DataIngestionConfig struct {
	BucketName     string  `koanf:"bucket_name"`
	BucketFileName string  `koanf:"bucket_file_name"`
	TrainRatio     float64 `koanf:"train_ratio"`
	Seed           int     `koanf:"seed"`
}

type PathsConfig struct {
	RawFile        string `koanf:"raw_file"`
	TrainFile      string `koanf:"train_file"`
	TestFile       string `koanf:"test_file"`
	ProcessedTrain string `koanf:"processed_train"`
	ProcessedTest  string `koanf:"processed_test"`
	ModelOutput    string `koanf:"model_output"`
	SearchChart    string `koanf:"search_chart"`
}

type SearchConfig struct {
	NIter       int    `koanf:"n_iter"`
	CV          int    `koanf:"cv"`
	NJobs       int    `koanf:"n_jobs"`
	Scoring     string `koanf:"scoring"`
	RandomState int    `koanf:"random_state"`
	Verbose     int    `koanf:"verbose"`
}

// DistributionConfig describes one hyperparameter distribution:
// randint and uniform use [Low, High), choice uses Values.
type DistributionConfig struct {
	Type   string        `koanf:"type"`
	Low    float64       `koanf:"low"`
	High   float64       `koanf:"high"`
	Values []interface{} `koanf:"values"`
}

type StorageConfig struct {
	Backend         string `koanf:"backend"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	CredentialsFile string `koanf:"credentials_file"`
	LocalRoot       string `koanf:"local_root"`
	RetryAttempts   uint   `koanf:"retry_attempts"`
}

type TrackingConfig struct {
	Backend        string `koanf:"backend"`
	URI            string `koanf:"uri"`
	ExperimentName string `koanf:"experiment_name"`
	SQLitePath     string `koanf:"sqlite_path"`
	RetryAttempts  uint   `koanf:"retry_attempts"`
}

type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	ModelBlobKey string `koanf:"model_blob_key"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataIngestion: DataIngestionConfig{
			BucketFileName: "Hotel_Reservations.csv",
			TrainRatio:     0.8,
			Seed:           42,
		},
		Paths: PathsConfig{
			RawFile:        "artifacts/raw/raw.csv",
			TrainFile:      "artifacts/raw/train.csv",
			TestFile:       "artifacts/raw/test.csv",
			ProcessedTrain: "artifacts/processed/processed_train.csv",
			ProcessedTest:  "artifacts/processed/processed_test.csv",
			ModelOutput:    "artifacts/models/lgbm_model.gob",
			SearchChart:    "artifacts/reports/search_scores.png",
		},
		Search: SearchConfig{
			NIter:       4,
			CV:          2,
			NJobs:       -1,
			Scoring:     model_selection.ScoringAccuracy,
			RandomState: 42,
			Verbose:     2,
		},
		Storage: StorageConfig{
			Backend:       storage.BackendGCS,
			LocalRoot:     "blobs",
			RetryAttempts: 3,
		},
		Tracking: TrackingConfig{
			Backend:        tracking.BackendSQLite,
			ExperimentName: "hotel-reservations",
			SQLitePath:     "artifacts/mlruns.db",
			RetryAttempts:  3,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ModelBlobKey: "models/lgbm_model.gob",
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultParamDistributions is the search space used when the file defines none.
func DefaultParamDistributions() map[string]DistributionConfig {
	return map[string]DistributionConfig{
		"n_estimators":  {Type: model_selection.KindRandInt, Low: 100, High: 500},
		"max_depth":     {Type: model_selection.KindRandInt, Low: 5, High: 50},
		"learning_rate": {Type: model_selection.KindUniform, Low: 0.01, High: 0.21},
		"num_leaves":    {Type: model_selection.KindRandInt, Low: 20, High: 100},
		"boosting_type": {Type: model_selection.KindChoice, Values: []interface{}{"gbdt"}},
	}
}

// Load reads the configuration from path. An empty path falls back to
// HOTEL_CONFIG_PATH and then DefaultPath; only an explicitly named file must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("HOTEL_CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	var provider koanf.Provider
	if _, err := os.Stat(path); err == nil {
		provider = file.Provider(path)
	} else if explicit {
		return nil, errors.NewConfigurationError("config", "file not found", path)
	}
	return LoadFromProvider(provider)
}

// LoadFromProvider layers defaults, the YAML document from provider (may be
// nil), and the environment.
func LoadFromProvider(provider koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}
	if provider != nil {
		if err := k.Load(provider, yaml.Parser()); err != nil {
			return nil, errors.NewConfigurationError("config", "cannot parse yaml: "+err.Error(), nil)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.NewConfigurationError("config", "cannot decode: "+err.Error(), nil)
	}
	if len(cfg.ParamDistributions) == 0 {
		cfg.ParamDistributions = DefaultParamDistributions()
	}
	if err := cfg.applyOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyOverrides() error {
	if v, ok := os.LookupEnv("GCS_BUCKET_NAME"); ok && v != "" {
		c.DataIngestion.BucketName = v
	}
	if v, ok := os.LookupEnv("MLFLOW_TRACKING_URI"); ok && v != "" {
		c.Tracking.Backend = tracking.BackendMLflow
		c.Tracking.URI = v
	}
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewConfigurationError("PORT", "must be an integer", v)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks values that do not depend on external state. The bucket
// name is checked by the stages that use it.
func (c *Config) Validate() error {
	r := c.DataIngestion.TrainRatio
	switch {
	case math.IsNaN(r) || r <= 0 || r >= 1:
		return errors.NewConfigurationError("data_ingestion.train_ratio", "must be in (0, 1)", r)
	case c.Search.NIter < 1:
		return errors.NewConfigurationError("search.n_iter", "must be >= 1", c.Search.NIter)
	case c.Search.CV < 2:
		return errors.NewConfigurationError("search.cv", "must be >= 2", c.Search.CV)
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return errors.NewConfigurationError("server.port", "out of range", c.Server.Port)
	}
	if _, err := model_selection.GetScorer(c.Search.Scoring); err != nil {
		return errors.NewConfigurationError("search.scoring", "unknown scoring metric", c.Search.Scoring)
	}
	if _, err := c.Distributions(); err != nil {
		return err
	}
	return nil
}

// Distributions builds the search space.
func (c *Config) Distributions() (model_selection.ParamDistributions, error) {
	out := make(model_selection.ParamDistributions, len(c.ParamDistributions))
	for name, d := range c.ParamDistributions {
		dist, err := model_selection.NewDistribution(d.Type, d.Low, d.High, d.Values)
		if err != nil {
			return nil, errors.NewConfigurationError("param_distributions."+name, err.Error(), d)
		}
		out[name] = dist
	}
	return out, nil
}

// StorageOptions maps the storage section onto storage.Options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:         c.Storage.Backend,
		Region:          c.Storage.Region,
		Endpoint:        c.Storage.Endpoint,
		CredentialsFile: c.Storage.CredentialsFile,
		LocalRoot:       c.Storage.LocalRoot,
		RetryAttempts:   c.Storage.RetryAttempts,
	}
}

// TrackingOptions maps the tracking section onto tracking.Options.
func (c *Config) TrackingOptions() tracking.Options {
	return tracking.Options{
		Backend:        c.Tracking.Backend,
		URI:            c.Tracking.URI,
		ExperimentName: c.Tracking.ExperimentName,
		SQLitePath:     c.Tracking.SQLitePath,
		RetryAttempts:  c.Tracking.RetryAttempts,
	}
}
