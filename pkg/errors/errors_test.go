package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderProducesAddressableFields(t *testing.T) {
	err := New("tpgroup.GroupNode", KindInvariant, "partial node unused").
		WithNode(2).
		WithDevice(17).
		Err()

	pe, ok := err.(*PlannerError)
	assert.True(t, ok)
	assert.Equal(t, KindInvariant, pe.Kind)
	assert.Equal(t, 2, pe.NodeIdx)
	assert.Equal(t, 17, pe.DeviceID)
	assert.Contains(t, err.Error(), "partial node unused")
}

func TestIsInfeasibleAndIsFatal(t *testing.T) {
	infeasible := New("ilp.SolveLayerSplit", KindInfeasible, "no solution").Err()
	exhausted := New("placer.Fill", KindExhausted, "can't find a normal tp group to place here").Err()
	invariant := New("tpgroup.GroupNode", KindInvariant, "bad input").Err()

	assert.True(t, IsInfeasible(infeasible))
	assert.False(t, IsFatal(infeasible))

	assert.True(t, IsFatal(exhausted))
	assert.True(t, IsFatal(invariant))
	assert.False(t, IsInfeasible(exhausted))
}

func TestWrappedCauseUnwraps(t *testing.T) {
	cause := assert.AnError
	err := New("ilp.SolveLayerSplit", KindInfeasible, "solver failed").WithCause(cause).Err()
	pe := err.(*PlannerError)
	assert.Equal(t, cause, pe.Unwrap())
}
