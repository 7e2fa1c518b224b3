package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liberrors "liebert/internal/errors"
)

func TestJoinNormalExit(t *testing.T) {
	ran := false
	h := Spawn("ok", func() { ran = true })
	assert.NoError(t, h.Join())
	assert.True(t, ran)
	assert.True(t, h.Finished())
	assert.Equal(t, "ok", h.Name())
}

func TestJoinReportsPanic(t *testing.T) {
	h := Spawn("boom", func() { panic("bad state") })
	err := h.Join()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")
	assert.Equal(t, liberrors.ErrTypeInternal, liberrors.GetErrorType(err))
	assert.NotEmpty(t, liberrors.Stack(err))

	// joining twice returns the same result
	assert.Equal(t, err, h.Join())
}

func TestJoinAll(t *testing.T) {
	a := Spawn("a", func() {})
	b := Spawn("b", func() { panic("b failed") })
	err := JoinAll(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
}
