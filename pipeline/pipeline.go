package pipeline

import (
	"context"

	"github.com/spf13/afero"

	"github.com/gumutzkn/MLOPS-PROJECT-1/config"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/storage"
	"github.com/gumutzkn/MLOPS-PROJECT-1/tracking"
)

// Pipeline chains ingestion, processing and training.
type Pipeline struct {
	Ingestion *DataIngestion
	Processor *DataProcessor
	Training  *ModelTraining
}

// New builds every stage from cfg. All configuration checks run here, before
// any stage touches the store or the filesystem.
func New(cfg *config.Config, store storage.BlobStore, fs afero.Fs, recorder tracking.Recorder, logger log.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = log.GetLoggerWithName("pipeline")
	}
	ingestion, err := NewDataIngestion(IngestionConfigFrom(cfg), store, fs, logger.With(log.StageKey, errors.StageIngestion))
	if err != nil {
		return nil, err
	}
	trainingCfg, err := TrainingConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	artifacts := NewArtifactStore(fs, store, logger.With(log.StageKey, errors.StagePersistence))
	training, err := NewModelTraining(trainingCfg, fs, artifacts, recorder, logger.With(log.StageKey, errors.StageTraining))
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Ingestion: ingestion,
		Processor: NewDataProcessor(ProcessingConfigFrom(cfg), fs, logger.With(log.StageKey, errors.StageProcessing)),
		Training:  training,
	}, nil
}

// Run executes all stages in order and stops at the first failure, which is
// returned as a PipelineError naming the stage.
func (p *Pipeline) Run(ctx context.Context) (*TrainingResult, error) {
	if err := p.Ingestion.Run(ctx); err != nil {
		return nil, errors.NewPipelineError(errors.StageIngestion, err)
	}
	if err := p.Processor.Run(); err != nil {
		return nil, errors.NewPipelineError(errors.StageProcessing, err)
	}
	return p.Training.Run(ctx)
}
