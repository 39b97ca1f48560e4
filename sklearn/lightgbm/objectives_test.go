package lightgbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

func TestLogisticLoss(t *testing.T) {
	var obj LogisticLoss

	assert.InDelta(t, -0.5, obj.Gradient(0, 1), 1e-12)
	assert.InDelta(t, 0.5, obj.Gradient(0, 0), 1e-12)
	assert.InDelta(t, 0.25, obj.Hessian(0, 1), 1e-12)
	assert.InDelta(t, math.Log(2), obj.Loss(0, 1), 1e-12)

	// 極端なスコアでもヘシアンは正、損失は有限
	assert.Greater(t, obj.Hessian(1e4, 1), 0.0)
	assert.False(t, math.IsInf(obj.Loss(-1e4, 1), 0))

	// 1 件の陽性と 3 件の陰性 → log(1/3)
	assert.InDelta(t, math.Log(1.0/3.0), obj.InitScore([]float64{1, 0, 0, 0}), 1e-12)
	assert.Equal(t, "binary", obj.Name())
}

func TestObjectiveFor(t *testing.T) {
	for _, name := range []string{"", "binary", "binary_logloss", "logistic"} {
		obj, err := objectiveFor(name)
		require.NoError(t, err)
		assert.IsType(t, LogisticLoss{}, obj)
	}

	for _, name := range []string{"regression", "lambdarank"} {
		_, err := objectiveFor(name)
		var ve *errors.ValueError
		assert.True(t, errors.As(err, &ve), name)
	}
}
