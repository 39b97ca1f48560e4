package errors

import (
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// NumericalInstabilityError reports a NaN or Inf produced during training.
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Values: values, Iteration: iteration})
}

func (e *NumericalInstabilityError) Error() string {
	shown := e.Values
	if len(shown) > 5 {
		shown = shown[:5]
	}
	parts := make([]string, len(shown))
	for i, v := range shown {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	if len(e.Values) > len(shown) {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("hotelml: numerical instability in %s at iteration %d: [%s]",
		e.Operation, e.Iteration, strings.Join(parts, ", "))
}

// CheckScalar returns a NumericalInstabilityError for NaN or Inf.
func CheckScalar(operation string, value float64, iteration int) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}

// ClipValue clamps value to [lo, hi].
func ClipValue(value, lo, hi float64) float64 {
	return math.Min(math.Max(value, lo), hi)
}

// StabilizeExp is math.Exp with the argument clamped to ±700.
func StabilizeExp(value float64) float64 {
	const limit = 700.0
	if value < -limit {
		return 0
	}
	return math.Exp(math.Min(value, limit))
}
