package minlp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func twoVarKnapsack() *DualModel {
	// min -x1 - 2*x2 + 10 subject to x1 + x2 <= 3, both integer in [0,2]
	return &DualModel{
		Vars: []ModelVariable{
			{Name: "x1", Integer: true, LB: 0, UB: 2},
			{Name: "x2", Integer: true, LB: 0, UB: 2},
		},
		Objective:   []float64{-1, -2},
		ObjConstant: 10,
		Rows: []LinearRow{
			{Name: "cap", Coeffs: map[int]float64{0: 1, 1: 1}, LB: math.Inf(-1), UB: 3},
		},
	}
}

func singleIntVar(ub float64) *DualModel {
	return &DualModel{
		Vars:      []ModelVariable{{Name: "x", Integer: true, LB: 0, UB: ub}},
		Objective: []float64{-1},
	}
}

func TestBranchAndCutRootIntegral(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(twoVarKnapsack()))

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusOptimal, out.Status)
	assert.InDelta(t, 5, out.Objective, 1e-9)
	assert.InDelta(t, 5, out.BestBound, 1e-9)
	assert.True(t, out.HasSolution())
	assert.InDelta(t, 1, out.Pool[0].Point[0], 1e-9)
	assert.InDelta(t, 2, out.Pool[0].Point[1], 1e-9)
}

func TestBranchAndCutBranches(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(singleIntVar(2.5)))

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusOptimal, out.Status)
	// the root relaxation sits at 2.5; the up child has crossing bounds
	assert.InDelta(t, -2, out.Objective, 1e-9)
	assert.InDelta(t, 2, out.Pool[0].Point[0], 1e-9)
	assert.GreaterOrEqual(t, out.ExploredNodes, 2)
}

func TestBranchAndCutInfeasible(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x", LB: 0, UB: 1}},
		Objective: []float64{1},
		Rows: []LinearRow{
			{Name: "impossible", Coeffs: map[int]float64{0: 1}, LB: 2, UB: math.Inf(1)},
		},
	}))

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusInfeasible, out.Status)
	assert.True(t, math.IsInf(out.BestBound, 1))
	assert.False(t, out.HasSolution())
}

func TestBranchAndCutUnbounded(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x", LB: math.Inf(-1), UB: math.Inf(1)}},
		Objective: []float64{-1},
	}))

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusUnbounded, out.Status)
	assert.True(t, math.IsInf(out.BestBound, -1))
}

func TestCutoffDiscardsMatchingObjective(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(singleIntVar(2)))

	// the optimum is exactly -2; a cutoff at -2 must discard it
	s.SetCutoff(-2)
	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusInfeasible, out.Status)
	assert.False(t, out.HasSolution())

	s.SetCutoff(math.NaN())
	out, err = s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusOptimal, out.Status)
	assert.InDelta(t, -2, out.Objective, 1e-9)
}

func TestSolutionLimitStopsEarly(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(singleIntVar(2.5)))
	s.SetSolutionLimit(1)

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusFeasible, out.Status)
	assert.Len(t, out.Pool, 1)
	// the search stopped before proving anything beyond the root bound
	assert.InDelta(t, -2.5, out.BestBound, 1e-9)
}

func TestEarlyStopBoundCappedByIncumbent(t *testing.T) {
	// min x + 10y with x + y >= 1.5: branching puts an integral node at
	// objective 2 and leaves an open relaxation at 6. A bound above the
	// solution already in the pool would be unsound.
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(&DualModel{
		Vars: []ModelVariable{
			{Name: "x", Integer: true, LB: 0, UB: 2},
			{Name: "y", LB: 0, UB: 1},
		},
		Objective: []float64{1, 10},
		Rows: []LinearRow{
			{Name: "cover", Coeffs: map[int]float64{0: 1, 1: 1}, LB: 1.5, UB: math.Inf(1)},
		},
	}))
	s.SetSolutionLimit(1)

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusFeasible, out.Status)
	assert.InDelta(t, 2, out.Objective, 1e-9)
	assert.Greater(t, out.OpenNodes, 0)
	assert.LessOrEqual(t, out.BestBound, out.Objective+1e-9)
}

func TestAddAndRemoveRows(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x", LB: 0, UB: 3}},
		Objective: []float64{-1},
	}))

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, -3, out.Objective, 1e-9)

	id, err := s.AddRow(LinearRow{Name: "cut", Coeffs: map[int]float64{0: 1}, LB: math.Inf(-1), UB: 1})
	assert.NoError(t, err)

	out, err = s.Solve(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, -1, out.Objective, 1e-9)

	assert.NoError(t, s.RemoveRows([]int{id}))
	out, err = s.Solve(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, -3, out.Objective, 1e-9)

	assert.Error(t, s.RemoveRows([]int{99}))
	_, err = s.AddRow(LinearRow{Name: "bad", Coeffs: map[int]float64{7: 1}})
	assert.Error(t, err)
}

func TestZeroCoefficientRowIsInfeasibilityCertificate(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x", LB: 0, UB: 3}},
		Objective: []float64{-1},
	}))

	// a repaired-away cut can degenerate to 0 <= -1
	_, err := s.AddRow(LinearRow{Name: "bogus", Coeffs: map[int]float64{0: 0}, LB: math.Inf(-1), UB: -1})
	assert.NoError(t, err)

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusInfeasible, out.Status)
}

func TestLazyCallbackRejectAndAccept(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.True(t, s.SupportsLazyConstraints())
	assert.NoError(t, s.Load(singleIntVar(2)))

	var seen []float64
	handler := func(point []float64, objective float64) CallbackDecision {
		seen = append(seen, point[0])
		if point[0] > 1 {
			return CallbackDecision{LazyRows: []LinearRow{
				{Name: "lazy", Coeffs: map[int]float64{0: 1}, LB: math.Inf(-1), UB: 1},
			}}
		}
		return CallbackDecision{Accept: true}
	}

	out, err := s.SolveWithCallback(context.Background(), handler)
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusOptimal, out.Status)
	assert.Equal(t, []float64{2, 1}, seen)
	assert.InDelta(t, -1, out.Objective, 1e-9)
	assert.InDelta(t, -1, out.BestBound, 1e-9)
}

func TestLazyCallbackAbort(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(singleIntVar(2)))

	out, err := s.SolveWithCallback(context.Background(), func([]float64, float64) CallbackDecision {
		return CallbackDecision{Abort: true}
	})
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusLimit, out.Status)
	assert.False(t, out.HasSolution())

	_, err = s.SolveWithCallback(context.Background(), nil)
	assert.Error(t, err)
}

func TestRelaxedSolveReturnsRootRelaxation(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(singleIntVar(2.5)))
	s.SetRelaxed(true)

	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, MIPStatusOptimal, out.Status)
	assert.InDelta(t, -2.5, out.Objective, 1e-9)
	assert.InDelta(t, 2.5, out.Pool[0].Point[0], 1e-9)
	assert.Equal(t, 1, out.ExploredNodes)
}

func TestFixVariables(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x", LB: 0, UB: 3}},
		Objective: []float64{-1},
	}))

	assert.NoError(t, s.FixVariables(map[int]float64{0: 1}))
	out, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, -1, out.Objective, 1e-9)
	assert.InDelta(t, 1, out.Pool[0].Point[0], 1e-9)

	s.UnfixVariables()
	out, err = s.Solve(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, -3, out.Objective, 1e-9)

	assert.Error(t, s.FixVariables(map[int]float64{5: 1}))
}

func TestPresolveBoundsTightensSingletonRows(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.NoError(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x", Integer: true, LB: 0, UB: 10}},
		Objective: []float64{1},
		Rows: []LinearRow{
			{Name: "upper", Coeffs: map[int]float64{0: 2}, LB: math.Inf(-1), UB: 7},
			{Name: "lower", Coeffs: map[int]float64{0: -1}, LB: math.Inf(-1), UB: -2},
		},
	}))

	vars := s.PresolveBounds()
	assert.Len(t, vars, 1)
	// 2x <= 7 rounds down to 3, -x <= -2 rounds up to 2
	assert.Equal(t, 2.0, vars[0].LB)
	assert.Equal(t, 3.0, vars[0].UB)
}

func TestLoadValidation(t *testing.T) {
	s := newBranchAndCutSolver()
	assert.Error(t, s.Load(nil))
	assert.Error(t, s.Load(&DualModel{}))
	assert.Error(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x"}},
		Objective: []float64{1, 2},
	}))
	_, err := s.Solve(context.Background())
	assert.Error(t, err)

	assert.NoError(t, s.Load(&DualModel{
		Vars:      []ModelVariable{{Name: "x", LB: 0, UB: 1}},
		Objective: []float64{1},
	}))
	assert.Error(t, s.SetVariableBounds(0, 2, 1))
	assert.Error(t, s.SetVariableBounds(3, 0, 1))
	assert.NoError(t, s.SetVariableBounds(0, 0, 0.5))
}
