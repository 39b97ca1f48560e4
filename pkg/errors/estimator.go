package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// NotFittedError: 未学習のモデルで Predict などを呼んだ、または
// 未学習の成果物を読み込んだ
type NotFittedError struct {
	ModelName string
	Method    string
}

func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("hotelml: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "NotFittedError").
		Str("model_name", e.ModelName).
		Str("method", e.Method)
}

// DimensionError は行数 (Axis 0) または特徴量数 (Axis 1) の不一致です。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("hotelml: %s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "DimensionError").
		Str("operation", e.Op).
		Int("axis", e.Axis).
		Int("expected", e.Expected).
		Int("got", e.Got)
}

// ValidationError rejects a hyperparameter or argument value.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hotelml: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "ValidationError").
		Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value)
}

// ValueError is raised for data that cannot be processed, e.g. a single
// class label or a partition that would be empty.
type ValueError struct {
	Op      string
	Message string
}

func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

func (e *ValueError) Error() string { return fmt.Sprintf("hotelml: %s: %s", e.Op, e.Message) }
