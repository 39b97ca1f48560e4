package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/rs/zerolog"
)

// 警告は処理を止めずに Warn へ送られる。pkg/log が zerolog の出力先を登録するまでは
// 標準の log パッケージに書き出す。
var (
	warnMu      sync.Mutex
	warnHandler = func(w error) { log.Printf("hotelml-warning: %v\n", w) }
	zerologWarn func(error)
)

// SetWarningHandler replaces the fallback handler used when no zerolog
// function is registered.
func SetWarningHandler(handler func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	warnHandler = handler
}

// SetZerologWarnFunc registers the structured warning sink. nil restores
// the fallback handler.
func SetZerologWarnFunc(fn func(warning error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	zerologWarn = fn
}

// Warn reports w to the registered sink.
func Warn(w error) {
	warnMu.Lock()
	defer warnMu.Unlock()
	switch {
	case zerologWarn != nil:
		zerologWarn(w)
	case warnHandler != nil:
		warnHandler(w)
	}
}

// ConvergenceWarning: ブースティングが途中で分割不能になった
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

func (w *ConvergenceWarning) Error() string {
	msg := fmt.Sprintf("%s stopped after %d iterations", w.Algorithm, w.Iterations)
	if w.Message != "" {
		msg += ": " + w.Message
	}
	return msg
}

func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "ConvergenceWarning").
		Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message)
}

// UndefinedMetricWarning は分母が0の指標（陽性予測のない precision など）を
// Result で置き換えたことを示す。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "UndefinedMetricWarning").
		Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result)
}
