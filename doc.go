// Package hotelml is a batch machine-learning pipeline that predicts hotel
// reservation cancellations, together with a small prediction server.
//
// The pipeline downloads the reservation dataset from an object store, splits
// it deterministically into train and test partitions, label-encodes the
// categorical columns, tunes a gradient-boosted classifier with randomized
// search and stratified cross-validation, evaluates it, and stores the model
// both on local disk and in the object store. Search, evaluation and
// persistence run inside one experiment-tracking run.
//
// # Quick Start
//
//	export GCS_BUCKET_NAME=my-bucket
//	hotelml pipeline --config config/config.yaml
//	hotelml serve
//
// The prediction form is served on PORT (8080 by default); POST /api/predict
// accepts the same ten fields as JSON.
//
// # Packages
//
//   - config: layered configuration (defaults, YAML file, environment)
//   - storage: object store backends (GCS, S3, local directory) with retries
//   - dataset: CSV frames, the deterministic split and typed booking records
//   - preprocessing: LabelEncoder
//   - sklearn/lightgbm: gradient-boosted decision tree classifier
//   - sklearn/model_selection: KFold, StratifiedKFold, RandomizedSearchCV
//   - metrics: accuracy, precision, recall, f1, AUC
//   - tracking: experiment runs on MLflow or SQLite
//   - pipeline: ingestion, processing, training stages and the orchestrator
//   - serving: inference service and HTTP server
//   - core/model, core/parallel: estimator interfaces, persistence, workers
//   - pkg/errors, pkg/log: typed errors and structured logging
//   - cmd/hotelml: command line entry point
//
// # Configuration
//
// Every setting can be overridden from the environment with the HOTEL_
// prefix, using a double underscore for nesting:
//
//	HOTEL_SEARCH__N_ITER=8 HOTEL_STORAGE__BACKEND=s3 hotelml train
//
// GCS_BUCKET_NAME, MLFLOW_TRACKING_URI and PORT are honoured as well.
package hotelml
