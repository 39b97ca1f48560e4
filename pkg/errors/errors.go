// Package errors defines the typed errors of the pipeline on top of
// cockroachdb/errors.
//
// Stage errors (ConfigurationError, IngestionError, TrainingError,
// EvaluationError, PersistenceError, PipelineError) live in stage.go;
// estimator errors (NotFittedError, DimensionError, ValidationError,
// ValueError) in estimator.go. Every constructor attaches a stack trace and
// every type implements zerolog.LogObjectMarshaler. Callers discriminate
// with As and Is, which are re-exported here so that packages import a
// single errors package.
package errors

import (
	"github.com/cockroachdb/errors"
)

// ErrEmptyData は空のデータが渡された場合のエラーです。
var ErrEmptyData = errors.New("empty data")

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func Wrap(err error, message string) error { return errors.Wrap(err, message) }

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

func New(message string) error { return errors.New(message) }

func Newf(format string, args ...interface{}) error { return errors.Newf(format, args...) }

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error { return errors.WithStack(err) }
