package model_selection

import (
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

// ParameterSampler draws NIter parameter assignments from Distributions.
// Parameters are visited in sorted name order from a single PCG stream, so
// the same seed always yields the same candidates.
type ParameterSampler struct {
	Distributions ParamDistributions
	NIter         int
	RandomState   int
}

// Samples returns NIter candidate assignments.
func (s ParameterSampler) Samples() ([]map[string]interface{}, error) {
	if s.NIter <= 0 {
		return nil, errors.NewValidationError("n_iter", "must be positive", s.NIter)
	}
	if len(s.Distributions) == 0 {
		return nil, errors.NewValidationError("param_distributions", "must not be empty", s.Distributions)
	}

	names := s.Distributions.Names()
	for _, name := range names {
		d := s.Distributions[name]
		if d == nil {
			return nil, errors.NewValidationError(name, "distribution is nil", nil)
		}
		if err := d.Validate(); err != nil {
			return nil, errors.Wrapf(err, "param_distributions[%s]", name)
		}
	}

	r := newRand(s.RandomState)
	out := make([]map[string]interface{}, s.NIter)
	for i := range out {
		params := make(map[string]interface{}, len(names))
		for _, name := range names {
			params[name] = s.Distributions[name].Sample(r)
		}
		out[i] = params
	}
	return out, nil
}
