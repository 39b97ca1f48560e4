// Package pipeline はデータ取得から学習・評価・成果物保存までの各ステージと、
// それらを1つの実験ランの中で実行するオーケストレータを提供します。
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/gumutzkn/MLOPS-PROJECT-1/config"
	"github.com/gumutzkn/MLOPS-PROJECT-1/dataset"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
)

// IngestionConfig configures DataIngestion.
type IngestionConfig struct {
	BucketName string
	BlobKey    string
	RawPath    string
	TrainPath  string
	TestPath   string
	TrainRatio float64
	Seed       int
}

// IngestionConfigFrom extracts the ingestion settings from cfg.
func IngestionConfigFrom(cfg *config.Config) IngestionConfig {
	return IngestionConfig{
		BucketName: cfg.DataIngestion.BucketName,
		BlobKey:    cfg.DataIngestion.BucketFileName,
		RawPath:    cfg.Paths.RawFile,
		TrainPath:  cfg.Paths.TrainFile,
		TestPath:   cfg.Paths.TestFile,
		TrainRatio: cfg.DataIngestion.TrainRatio,
		Seed:       cfg.DataIngestion.Seed,
	}
}

// ValidateBucket rejects an empty bucket name or an unreplaced placeholder.
func ValidateBucket(bucket string) error {
	if strings.TrimSpace(bucket) == "" {
		return errors.NewConfigurationError("data_ingestion.bucket_name",
			"bucket name is not set (set GCS_BUCKET_NAME)", bucket)
	}
	if strings.Contains(strings.ToUpper(bucket), "PLACEHOLDER") {
		return errors.NewConfigurationError("data_ingestion.bucket_name",
			"bucket name is a placeholder (set GCS_BUCKET_NAME)", bucket)
	}
	return nil
}

// DataIngestion downloads the raw dataset and splits it into train and test
// partitions.
type DataIngestion struct {
	cfg    IngestionConfig
	store  storage.BlobStore
	fs     afero.Fs
	logger log.Logger
}

// NewDataIngestion validates cfg before any I/O happens.
func NewDataIngestion(cfg IngestionConfig, store storage.BlobStore, fs afero.Fs, logger log.Logger) (*DataIngestion, error) {
	if err := ValidateBucket(cfg.BucketName); err != nil {
		return nil, err
	}
	if cfg.BlobKey == "" {
		return nil, errors.NewConfigurationError("data_ingestion.bucket_file_name", "must not be empty", cfg.BlobKey)
	}
	if !(cfg.TrainRatio > 0 && cfg.TrainRatio < 1) {
		return nil, errors.NewConfigurationError("data_ingestion.train_ratio", "must be in (0, 1)", cfg.TrainRatio)
	}
	if store == nil {
		return nil, errors.NewConfigurationError("storage.backend", "blob store is required", nil)
	}
	if logger == nil {
		logger = log.GetLoggerWithName("ingestion")
	}
	return &DataIngestion{cfg: cfg, store: store, fs: fs, logger: logger}, nil
}

// Download fetches blobKey from the configured bucket into destinationPath.
// A missing blob is reported as an IngestionError wrapping storage.ErrBlobNotFound.
func (d *DataIngestion) Download(ctx context.Context, blobKey, destinationPath string) error {
	start := time.Now()
	logger := d.logger.With(log.BucketKey, d.cfg.BucketName, log.BlobKeyKey, blobKey)
	logger.Info("Downloading dataset", log.PathKey, destinationPath)

	if err := storage.DownloadFile(ctx, d.store, d.fs, d.cfg.BucketName, blobKey, destinationPath); err != nil {
		err = errors.NewIngestionError("download", destinationPath, err)
		logger.Error("Dataset download failed", err)
		return err
	}

	logger.Info("Dataset downloaded",
		log.PathKey, destinationPath,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Split reads sourcePath and writes the train and test partitions. Both
// files keep the original row index as their first column.
func (d *DataIngestion) Split(sourcePath, trainPath, testPath string, trainRatio float64, seed int) error {
	raw, err := dataset.ReadCSVFile(d.fs, sourcePath)
	if err != nil {
		return errors.NewIngestionError("read", sourcePath, err)
	}
	train, test, err := dataset.TrainTestSplit(raw, trainRatio, seed)
	if err != nil {
		return errors.NewIngestionError("split", sourcePath, err)
	}
	if err := dataset.WriteCSVFile(d.fs, trainPath, train); err != nil {
		return errors.NewIngestionError("write", trainPath, err)
	}
	if err := dataset.WriteCSVFile(d.fs, testPath, test); err != nil {
		return errors.NewIngestionError("write", testPath, err)
	}

	d.logger.Info("Dataset split",
		log.SamplesKey, raw.Len(),
		log.TrainRowsKey, train.Len(),
		log.TestRowsKey, test.Len(),
		log.RandomSeedKey, seed,
	)
	return nil
}

// Run downloads the configured blob and splits it.
func (d *DataIngestion) Run(ctx context.Context) error {
	d.logger.Info("Starting data ingestion", log.StageKey, errors.StageIngestion)
	if err := d.Download(ctx, d.cfg.BlobKey, d.cfg.RawPath); err != nil {
		return err
	}
	if err := d.Split(d.cfg.RawPath, d.cfg.TrainPath, d.cfg.TestPath, d.cfg.TrainRatio, d.cfg.Seed); err != nil {
		d.logger.Error("Dataset split failed", err)
		return err
	}
	d.logger.Info("Data ingestion completed", log.StageKey, errors.StageIngestion)
	return nil
}
