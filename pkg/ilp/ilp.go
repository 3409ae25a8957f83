// Package ilp implements the Q1/Q2 integer linear programs of spec §4.3
// on top of a branch-and-bound integer layer around gonum's dense-simplex
// LP relaxation solver, the closest thing the repository's dependency
// pack carries to the external MILP collaborator the reference design
// assumes (see DESIGN.md).
package ilp

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	perrors "github.com/khryptorgraphics/elasticplan/pkg/errors"
)

// Status is the outcome of a Solve call.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
)

// Problem is a mixed-integer linear program in the planner's own shape:
// minimize C·x subject to AUb·x <= BUb, AEq·x = BEq, Bounds[i] = [lo, hi]
// (hi may be +Inf), Integer[i] marks variables restricted to whole
// numbers.
type Problem struct {
	NumVars int
	C       []float64
	AUb     [][]float64
	BUb     []float64
	AEq     [][]float64
	BEq     []float64
	Integer []bool
	Bounds  [][2]float64
}

// Solution is the result of solving a Problem.
type Solution struct {
	Status    Status
	Objective float64
	X         []float64
}

// Solver is the planner's abstraction over an ILP backend; package
// planner drives Q1/Q2 entirely through this interface so an alternate
// implementation (a CGO MILP binding, a remote solver service) can be
// substituted without touching the caller.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Solution, error)
}

// ErrInfeasible is returned by the Q1/Q2 convenience wrappers when the
// underlying solve does not reach StatusOptimal; the caller discards the
// owning template (spec §7).
var ErrInfeasible = perrors.New("ilp", perrors.KindInfeasible, "no optimal solution found").Err()

type branchAndBoundSolver struct {
	timeLimit time.Duration
}

// NewBranchAndBoundSolver returns the default Solver: LP relaxation via
// gonum's simplex implementation, wrapped in depth-first branch-and-bound
// for the integer variables, bounded by timeLimit.
func NewBranchAndBoundSolver(timeLimit time.Duration) Solver {
	return &branchAndBoundSolver{timeLimit: timeLimit}
}

const fracTol = 1e-6

func (s *branchAndBoundSolver) Solve(ctx context.Context, p Problem) (Solution, error) {
	deadline := time.Now().Add(s.timeLimit)

	best := Solution{Status: StatusInfeasible}
	bestObj := math.Inf(1)

	stack := [][][2]float64{append([][2]float64(nil), p.Bounds...)}

	for len(stack) > 0 {
		if ctx.Err() != nil || time.Now().After(deadline) {
			break
		}

		bounds := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		relaxed := p
		relaxed.Bounds = bounds
		sol, err := solveRelaxation(relaxed)
		if err != nil || sol.Status != StatusOptimal {
			continue
		}
		if sol.Objective >= bestObj {
			continue // bound: this branch can't beat the incumbent
		}

		fracIdx := -1
		for i, isInt := range p.Integer {
			if !isInt {
				continue
			}
			frac := sol.X[i] - math.Floor(sol.X[i])
			if frac > fracTol && frac < 1-fracTol {
				fracIdx = i
				break
			}
		}

		if fracIdx == -1 {
			bestObj = sol.Objective
			best = sol
			best.Status = StatusOptimal
			continue
		}

		floorVal := math.Floor(sol.X[fracIdx])

		lower := append([][2]float64(nil), bounds...)
		lower[fracIdx] = [2]float64{lower[fracIdx][0], floorVal}
		if lower[fracIdx][0] <= lower[fracIdx][1] {
			stack = append(stack, lower)
		}

		upper := append([][2]float64(nil), bounds...)
		upper[fracIdx] = [2]float64{floorVal + 1, upper[fracIdx][1]}
		if upper[fracIdx][0] <= upper[fracIdx][1] {
			stack = append(stack, upper)
		}
	}

	if best.Status != StatusOptimal {
		return Solution{Status: StatusInfeasible}, nil
	}
	return best, nil
}

// solveRelaxation solves the LP relaxation of p (ignoring Integer) by
// shifting every variable to a zero lower bound, turning <= rows and
// finite upper bounds into equalities via slack variables, and handing
// the result to gonum's dense simplex, which requires A·x = b, x >= 0.
func solveRelaxation(p Problem) (Solution, error) {
	n := p.NumVars
	numUb := len(p.BUb)

	finiteUB := make([]bool, n)
	numBoundSlacks := 0
	for i, b := range p.Bounds {
		if !math.IsInf(b[1], 1) {
			finiteUB[i] = true
			numBoundSlacks++
		}
	}

	totalCols := n + numUb + numBoundSlacks
	numRows := len(p.AEq) + numUb + numBoundSlacks

	a := mat.NewDense(numRows, totalCols, nil)
	b := make([]float64, numRows)
	c := make([]float64, totalCols)

	constant := 0.0
	for i := 0; i < n; i++ {
		c[i] = p.C[i]
		constant += p.C[i] * p.Bounds[i][0]
	}

	row := 0
	for eqIdx, eqRow := range p.AEq {
		shift := 0.0
		for i := 0; i < n; i++ {
			a.Set(row, i, eqRow[i])
			shift += eqRow[i] * p.Bounds[i][0]
		}
		b[row] = p.BEq[eqIdx] - shift
		row++
	}

	for r, ubRow := range p.AUb {
		shift := 0.0
		for i := 0; i < n; i++ {
			a.Set(row, i, ubRow[i])
			shift += ubRow[i] * p.Bounds[i][0]
		}
		slackCol := n + r
		a.Set(row, slackCol, 1.0)
		b[row] = p.BUb[r] - shift
		row++
	}

	slackOffset := n + numUb
	slackIdx := 0
	for i := 0; i < n; i++ {
		if !finiteUB[i] {
			continue
		}
		a.Set(row, i, 1.0)
		a.Set(row, slackOffset+slackIdx, 1.0)
		b[row] = p.Bounds[i][1] - p.Bounds[i][0]
		slackIdx++
		row++
	}

	optF, optX, err := lp.Simplex(c, a, b, 0, nil)
	if err != nil {
		return Solution{Status: StatusInfeasible}, nil
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = p.Bounds[i][0] + optX[i]
	}

	return Solution{Status: StatusOptimal, Objective: optF + constant, X: x}, nil
}
