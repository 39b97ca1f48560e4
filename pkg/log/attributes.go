package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "LGBMClassifier".
	ModelNameKey = "model.name"

	// OperationKey is the estimator operation: "fit", "predict", "score".
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or stage emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Pipeline context.
const (
	StageKey     = "pipeline.stage"
	RunIDKey     = "tracking.run_id"
	RunStatusKey = "tracking.status"
	BucketKey    = "storage.bucket"
	BlobKeyKey   = "storage.key"
	PathKey      = "fs.path"
	BytesKey     = "fs.bytes"
)

// Data shape.
const (
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	TrainRowsKey = "data.train_rows"
	TestRowsKey  = "data.test_rows"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	PrecisionKey  = "metrics.precision"
	RecallKey     = "metrics.recall"
	F1Key         = "metrics.f1"
	LossKey       = "metrics.loss"
	ScoreKey      = "metrics.score"
	IterationKey  = "training.iteration"
)

// Search and hyperparameters.
const (
	HyperParamsKey = "model.hyperparams"
	CandidateKey   = "search.candidate"
	FoldKey        = "search.fold"
	RandomSeedKey  = "config.random_seed"
	WorkersKey     = "search.workers"
)

// Prediction context.
const (
	PredsKey      = "preds.count"
	PredictionKey = "preds.label"
)

// Error context.
const (
	ErrorCodeKey = "error.code"
	ErrorTypeKey = "error.type"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
	PhaseInference  = "inference"
)
