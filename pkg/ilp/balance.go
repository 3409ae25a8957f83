package ilp

import (
	"context"
	"math"
)

// Q1Input is one pipeline's layer-split problem (spec §4.3, "Q1, per
// pipeline i").
type Q1Input struct {
	Stages          int
	Layers          int       // L, total layers to distribute
	Y               []float64 // effective sr per stage slot (1.0 if slot is a hole)
	H               []float64 // hetero ratio per stage slot (1.0 if slot is a hole)
	MemoryK         []float64 // per-stage memory coefficient, already tail-indexed
	MemoryEmbedding float64
	MemoryExtra     float64
	MemoryBoundC    float64 // memory_bound - memory_safe_gap
	SlotUnused      []bool  // true forces l[j] = 0
}

// Q1Result is the solved layer assignment for one pipeline.
type Q1Result struct {
	L []int
	T float64
}

// SolveLayerSplit solves Q1 exactly via the supplied Solver, returning
// ErrInfeasible when the solver can't reach StatusOptimal.
func SolveLayerSplit(ctx context.Context, solver Solver, in Q1Input) (Q1Result, error) {
	stages := in.Stages
	numVars := stages + 1 // l[0..stages-1], T
	tIdx := stages

	c := make([]float64, numVars)
	c[tIdx] = 1.0

	aEq := [][]float64{make([]float64, numVars)}
	for j := 0; j < stages; j++ {
		aEq[0][j] = 1.0
	}
	bEq := []float64{float64(in.Layers)}

	var aUb [][]float64
	var bUb []float64

	for j := 0; j < stages; j++ {
		row := make([]float64, numVars)
		row[j] = in.Y[j]
		row[tIdx] = -1.0
		aUb = append(aUb, row)
		bUb = append(bUb, 0.0)
	}

	for j := 0; j < stages; j++ {
		row := make([]float64, numVars)
		row[j] = in.MemoryK[j] * in.H[j]
		edge := 0.0
		if j == 0 || j == stages-1 {
			edge = in.MemoryEmbedding
		}
		aUb = append(aUb, row)
		bUb = append(bUb, in.MemoryBoundC-in.MemoryExtra-edge*in.H[j])
	}

	bounds := make([][2]float64, numVars)
	integer := make([]bool, numVars)
	for j := 0; j < stages; j++ {
		integer[j] = true
		if in.SlotUnused != nil && in.SlotUnused[j] {
			bounds[j] = [2]float64{0, 0}
		} else {
			bounds[j] = [2]float64{0, math.Inf(1)}
		}
	}
	bounds[tIdx] = [2]float64{0, math.Inf(1)}

	problem := Problem{
		NumVars: numVars,
		C:       c,
		AUb:     aUb,
		BUb:     bUb,
		AEq:     aEq,
		BEq:     bEq,
		Integer: integer,
		Bounds:  bounds,
	}

	sol, err := solver.Solve(ctx, problem)
	if err != nil {
		return Q1Result{}, err
	}
	if sol.Status != StatusOptimal {
		return Q1Result{}, ErrInfeasible
	}

	l := make([]int, stages)
	for j := 0; j < stages; j++ {
		l[j] = int(math.Round(sol.X[j]))
	}
	return Q1Result{L: l, T: sol.X[tIdx]}, nil
}

// SolveLayerSplitUniform is the only_adjust_batch=true fast path of spec
// §4.3: skip Q1 entirely and assign layers uniformly, with any remainder
// on the last stage. Unused slots still get zero layers.
func SolveLayerSplitUniform(in Q1Input) Q1Result {
	stages := in.Stages
	activeSlots := 0
	for j := 0; j < stages; j++ {
		if in.SlotUnused == nil || !in.SlotUnused[j] {
			activeSlots++
		}
	}
	if activeSlots == 0 {
		return Q1Result{L: make([]int, stages)}
	}

	base := in.Layers / activeSlots
	remainder := in.Layers - base*activeSlots

	l := make([]int, stages)
	lastActive := -1
	for j := 0; j < stages; j++ {
		if in.SlotUnused != nil && in.SlotUnused[j] {
			continue
		}
		l[j] = base
		lastActive = j
	}
	if lastActive >= 0 {
		l[lastActive] += remainder
	}

	maxT := 0.0
	for j := 0; j < stages; j++ {
		t := in.Y[j] * float64(l[j])
		if t > maxT {
			maxT = t
		}
	}
	return Q1Result{L: l, T: maxT}
}

// Q2Result is the solved micro-batch assignment across pipelines.
type Q2Result struct {
	M []int
	U float64
}

// SolveMicroBatchSplit solves Q2 (spec §4.3, "Q2, across pipelines"):
// distribute microBatches micro-batches across dp pipelines whose
// per-pipeline bottleneck time is pipelineT[i], keeping each pipeline at
// least stagesPerPipeline[i] micro-batches deep to hide bubbles.
func SolveMicroBatchSplit(ctx context.Context, solver Solver, pipelineT []float64, stagesPerPipeline []int, microBatches int) (Q2Result, error) {
	dp := len(pipelineT)
	numVars := dp + 1
	uIdx := dp

	c := make([]float64, numVars)
	c[uIdx] = 1.0

	aEq := [][]float64{make([]float64, numVars)}
	for i := 0; i < dp; i++ {
		aEq[0][i] = 1.0
	}
	bEq := []float64{float64(microBatches)}

	var aUb [][]float64
	var bUb []float64
	for i := 0; i < dp; i++ {
		row := make([]float64, numVars)
		row[i] = pipelineT[i]
		row[uIdx] = -1.0
		aUb = append(aUb, row)
		bUb = append(bUb, 0.0)
	}

	bounds := make([][2]float64, numVars)
	integer := make([]bool, numVars)
	for i := 0; i < dp; i++ {
		integer[i] = true
		bounds[i] = [2]float64{float64(stagesPerPipeline[i]), math.Inf(1)}
	}
	bounds[uIdx] = [2]float64{0, math.Inf(1)}

	problem := Problem{
		NumVars: numVars,
		C:       c,
		AUb:     aUb,
		BUb:     bUb,
		AEq:     aEq,
		BEq:     bEq,
		Integer: integer,
		Bounds:  bounds,
	}

	sol, err := solver.Solve(ctx, problem)
	if err != nil {
		return Q2Result{}, err
	}
	if sol.Status != StatusOptimal {
		return Q2Result{}, ErrInfeasible
	}

	m := make([]int, dp)
	for i := 0; i < dp; i++ {
		m[i] = int(math.Round(sol.X[i]))
	}
	return Q2Result{M: m, U: sol.X[uIdx]}, nil
}
