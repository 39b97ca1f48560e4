package model_selection

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// Distribution samples one hyperparameter value. Sample may only be called
// after Validate has returned nil.
type Distribution interface {
	Sample(r *rand.Rand) interface{}
	Validate() error
	String() string
}

// ParamDistributions maps a parameter name to its distribution.
type ParamDistributions map[string]Distribution

// Names returns the parameter names in sorted order.
func (d ParamDistributions) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RandInt は [Low, High) の一様整数分布です（scipy.stats.randint と同じ区間）。
type RandInt struct {
	Low, High int
}

func (d RandInt) Validate() error {
	if d.High <= d.Low {
		return errors.NewValidationError("randint", "high must be greater than low", []int{d.Low, d.High})
	}
	return nil
}

func (d RandInt) Sample(r *rand.Rand) interface{} {
	return d.Low + r.IntN(d.High-d.Low)
}

func (d RandInt) String() string { return fmt.Sprintf("randint(%d, %d)", d.Low, d.High) }

// Uniform は [Low, High) の連続一様分布です。
type Uniform struct {
	Low, High float64
}

func (d Uniform) Validate() error {
	if !(d.High > d.Low) {
		return errors.NewValidationError("uniform", "high must be greater than low", []float64{d.Low, d.High})
	}
	return nil
}

func (d Uniform) Sample(r *rand.Rand) interface{} {
	return d.Low + r.Float64()*(d.High-d.Low)
}

func (d Uniform) String() string { return fmt.Sprintf("uniform(%g, %g)", d.Low, d.High) }

// Choice picks one of Values with equal probability.
type Choice struct {
	Values []interface{}
}

func (d Choice) Validate() error {
	if len(d.Values) == 0 {
		return errors.NewValidationError("choice", "at least one value is required", d.Values)
	}
	return nil
}

func (d Choice) Sample(r *rand.Rand) interface{} {
	return d.Values[r.IntN(len(d.Values))]
}

func (d Choice) String() string { return fmt.Sprintf("choice(%v)", d.Values) }

// Distribution kinds accepted by NewDistribution.
const (
	KindRandInt = "randint"
	KindUniform = "uniform"
	KindChoice  = "choice"
)

// NewDistribution builds a distribution from its configuration form.
func NewDistribution(kind string, low, high float64, values []interface{}) (Distribution, error) {
	switch kind {
	case KindRandInt:
		lo, hi := int(low), int(high)
		if float64(lo) != low || float64(hi) != high {
			return nil, errors.NewValidationError("randint", "bounds must be integers", []float64{low, high})
		}
		return validated(RandInt{Low: lo, High: hi})
	case KindUniform:
		return validated(Uniform{Low: low, High: high})
	case KindChoice:
		return validated(Choice{Values: append([]interface{}(nil), values...)})
	default:
		return nil, errors.NewValidationError("type", "unknown distribution", kind)
	}
}

func validated(d Distribution) (Distribution, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
