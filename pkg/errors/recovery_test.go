package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fitWithPanic(existing error) (err error) {
	defer Recover(&err, "Predict")
	err = existing
	var rows []float64
	_ = rows[3]
	return nil
}

func TestRecoverConvertsPanic(t *testing.T) {
	err := fitWithPanic(nil)

	var pe *PanicError
	require.True(t, As(err, &pe), "got %T", err)
	assert.Equal(t, "Predict", pe.Operation)
	assert.NotEmpty(t, pe.StackTrace)
	assert.Contains(t, pe.String(), "Stack trace:")
	assert.Contains(t, err.Error(), "index out of range")
}

func TestRecoverKeepsExistingError(t *testing.T) {
	orig := fmt.Errorf("bad feature row")
	err := fitWithPanic(orig)

	assert.Contains(t, err.Error(), "panic in Predict")
	assert.True(t, Is(err, orig))
}

func TestRecoverWithoutPanic(t *testing.T) {
	f := func() (err error) {
		defer Recover(&err, "noop")
		return nil
	}
	assert.NoError(t, f())
}
