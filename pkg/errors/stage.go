package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Stage names used by PipelineError.
const (
	StageConfiguration = "configuration"
	StageIngestion     = "ingestion"
	StageProcessing    = "processing"
	StageLoad          = "load"
	StageTraining      = "training"
	StageEvaluation    = "evaluation"
	StagePersistence   = "persistence"
	StageTracking      = "tracking"
)

// ConfigurationError は設定値が欠落・不正な場合のエラーです。
// I/O を伴う処理の前に返されます。
type ConfigurationError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s (got: %v)", e.Field, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigurationError")
}

// NewConfigurationError は新しいConfigurationErrorを作成し、スタックトレースを付与します。
func NewConfigurationError(field, reason string, value interface{}) error {
	return errors.WithStack(&ConfigurationError{Field: field, Reason: reason, Value: value})
}

// IngestionError はデータ取得・分割・前処理の失敗を表します。
type IngestionError struct {
	Op   string
	Path string
	Err  error
}

func (e *IngestionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("ingestion: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("ingestion: %s: %v", e.Op, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *IngestionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("path", e.Path).
		Str("type", "IngestionError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewIngestionError は新しいIngestionErrorを作成し、スタックトレースを付与します。
func NewIngestionError(op, path string, err error) error {
	return errors.WithStack(&IngestionError{Op: op, Path: path, Err: err})
}

// TrainingError はハイパーパラメータ探索または学習の失敗を表します。
type TrainingError struct {
	Op  string
	Err error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training: %s: %v", e.Op, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TrainingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).Str("type", "TrainingError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewTrainingError は新しいTrainingErrorを作成し、スタックトレースを付与します。
func NewTrainingError(op string, err error) error {
	return errors.WithStack(&TrainingError{Op: op, Err: err})
}

// EvaluationError は評価（予測・指標計算）の失敗を表します。
type EvaluationError struct {
	Op  string
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation: %s: %v", e.Op, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *EvaluationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).Str("type", "EvaluationError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewEvaluationError は新しいEvaluationErrorを作成し、スタックトレースを付与します。
func NewEvaluationError(op string, err error) error {
	return errors.WithStack(&EvaluationError{Op: op, Err: err})
}

// PersistenceTarget identifies which side of the dual write failed.
type PersistenceTarget string

const (
	TargetLocal  PersistenceTarget = "local"
	TargetRemote PersistenceTarget = "remote"
)

// PersistenceError はモデル成果物の保存失敗を表します。
// Target が remote の場合、ローカルの成果物は残っています。
type PersistenceError struct {
	Target PersistenceTarget
	Path   string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s write %s: %v", e.Target, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRemote reports whether the failure happened during the upload.
func (e *PersistenceError) IsRemote() bool { return e.Target == TargetRemote }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PersistenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("target", string(e.Target)).
		Str("path", e.Path).
		Str("type", "PersistenceError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewPersistenceError は新しいPersistenceErrorを作成し、スタックトレースを付与します。
func NewPersistenceError(target PersistenceTarget, path string, err error) error {
	return errors.WithStack(&PersistenceError{Target: target, Path: path, Err: err})
}

// PipelineError はオーケストレータが返すエラーで、失敗したステージ名を保持します。
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: stage %q failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PipelineError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage).Str("type", "PipelineError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewPipelineError wraps err with the stage that produced it.
func NewPipelineError(stage string, err error) error {
	return errors.WithStack(&PipelineError{Stage: stage, Err: err})
}

// FailedStage returns the stage name carried by a PipelineError in err's chain.
func FailedStage(err error) (string, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage, true
	}
	return "", false
}
