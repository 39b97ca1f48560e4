package main

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pipeline"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
	"github.com/gumutzkn/MLOPS-PROJECT-1/serving"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "download the raw dataset and split it into train and test partitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		// バケット名の検証はストア作成より先に行う
		if err := pipeline.ValidateBucket(e.cfg.DataIngestion.BucketName); err != nil {
			return err
		}
		store, err := e.blobStore(cmd.Context())
		if err != nil {
			return err
		}
		ing, err := pipeline.NewDataIngestion(pipeline.IngestionConfigFrom(e.cfg), store, e.fs, e.logger)
		if err != nil {
			return err
		}
		return ing.Run(cmd.Context())
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "label-encode the split partitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		return pipeline.NewDataProcessor(pipeline.ProcessingConfigFrom(e.cfg), e.fs, e.logger).Run()
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "search hyperparameters, evaluate and persist the model inside one tracked run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		trainingCfg, err := pipeline.TrainingConfigFrom(e.cfg)
		if err != nil {
			return err
		}
		if err := pipeline.ValidateBucket(trainingCfg.Bucket); err != nil {
			return err
		}
		store, err := e.blobStore(cmd.Context())
		if err != nil {
			return err
		}
		rec, closeRec, err := e.recorder()
		if err != nil {
			return err
		}
		defer closeRec()

		mt, err := pipeline.NewModelTraining(trainingCfg, e.fs, pipeline.NewArtifactStore(e.fs, store, e.logger), rec, e.logger)
		if err != nil {
			return err
		}
		res, err := mt.Run(cmd.Context())
		report(e.logger, res)
		return err
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "run ingestion, processing and training in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if err := pipeline.ValidateBucket(e.cfg.DataIngestion.BucketName); err != nil {
			return err
		}
		store, err := e.blobStore(cmd.Context())
		if err != nil {
			return err
		}
		rec, closeRec, err := e.recorder()
		if err != nil {
			return err
		}
		defer closeRec()

		p, err := pipeline.New(e.cfg, store, e.fs, rec, e.logger)
		if err != nil {
			return err
		}
		res, err := p.Run(cmd.Context())
		report(e.logger, res)
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve predictions over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := e.blobStore(ctx)
		if err != nil {
			// ローカルの成果物だけで起動できるようにする
			e.logger.Warn("Object store unavailable; serving local artifact only", err)
			store = nil
		}
		svc := serving.NewService(serving.Config{
			ModelPath: e.cfg.Paths.ModelOutput,
			Bucket:    e.cfg.DataIngestion.BucketName,
			BlobKey:   e.cfg.Server.ModelBlobKey,
		}, store, e.fs, e.logger)
		if err := svc.Load(ctx); err != nil {
			e.logger.Warn("Starting without a model", err)
		}

		srv := serving.NewServer(svc, e.logger)
		addr := net.JoinHostPort(e.cfg.Server.Host, strconv.Itoa(e.cfg.Server.Port))
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(addr) }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

func report(logger log.Logger, res *pipeline.TrainingResult) {
	if res == nil {
		return
	}
	logger.Info("Training result",
		log.RunIDKey, res.RunID,
		log.ScoreKey, res.BestScore,
		log.HyperParamsKey, res.BestParams,
		log.AccuracyKey, res.Metrics.Accuracy,
		log.PrecisionKey, res.Metrics.Precision,
		log.RecallKey, res.Metrics.Recall,
		log.F1Key, res.Metrics.F1,
		log.PathKey, res.ModelPath,
	)
}
