package ilp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveRelaxationSimpleEquality(t *testing.T) {
	// minimize x0 + x1 s.t. x0 + x1 = 4, x0,x1 >= 0.
	p := Problem{
		NumVars: 2,
		C:       []float64{1, 1},
		AEq:     [][]float64{{1, 1}},
		BEq:     []float64{4},
		Bounds:  [][2]float64{{0, 1e9}, {0, 1e9}},
	}
	sol, err := solveRelaxation(p)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 4.0, sol.Objective, 1e-6)
}

func TestBranchAndBoundEnforcesIntegrality(t *testing.T) {
	// minimize -x s.t. 2x <= 5, x integer >= 0 -> x=2.
	p := Problem{
		NumVars: 1,
		C:       []float64{-1},
		AUb:     [][]float64{{2}},
		BUb:     []float64{5},
		Integer: []bool{true},
		Bounds:  [][2]float64{{0, 1e9}},
	}
	solver := NewBranchAndBoundSolver(2 * time.Second)
	sol, err := solver.Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 2.0, sol.X[0], 1e-6)
	assert.InDelta(t, -2.0, sol.Objective, 1e-6)
}

func TestSolveLayerSplitUniformDistributesRemainderToLastActiveStage(t *testing.T) {
	in := Q1Input{
		Stages: 3,
		Layers: 10,
		Y:      []float64{1.0, 1.0, 1.0},
	}
	res := SolveLayerSplitUniform(in)
	assert.Equal(t, []int{3, 3, 4}, res.L)
}

func TestSolveLayerSplitUniformSkipsUnusedSlots(t *testing.T) {
	in := Q1Input{
		Stages:     3,
		Layers:     9,
		Y:          []float64{1.0, 1.0, 1.0},
		SlotUnused: []bool{false, true, false},
	}
	res := SolveLayerSplitUniform(in)
	assert.Equal(t, 0, res.L[1])
	assert.Equal(t, 9, res.L[0]+res.L[2])
}

func TestSolveLayerSplitBalancesStragglerStage(t *testing.T) {
	solver := NewBranchAndBoundSolver(5 * time.Second)
	in := Q1Input{
		Stages:          2,
		Layers:          12,
		Y:               []float64{2.0, 1.0},
		H:               []float64{1.0, 1.0},
		MemoryK:         []float64{1.0, 1.0},
		MemoryEmbedding: 0,
		MemoryExtra:     0,
		MemoryBoundC:    1000,
	}
	res, err := SolveLayerSplit(context.Background(), solver, in)
	require.NoError(t, err)
	assert.Less(t, res.L[0], res.L[1])
}

func TestSolveMicroBatchSplitRespectsStageFloor(t *testing.T) {
	solver := NewBranchAndBoundSolver(5 * time.Second)
	res, err := SolveMicroBatchSplit(context.Background(), solver, []float64{1.0, 1.0}, []int{2, 2}, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.M[0], 2)
	assert.GreaterOrEqual(t, res.M[1], 2)
	assert.Equal(t, 10, res.M[0]+res.M[1])
}
