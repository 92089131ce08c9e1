package minlp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSLSQPSolveFixedUnconstrained(t *testing.T) {
	p := NewProblem("quad")
	p.AddVariable("x", Continuous, 0, 5)
	assert.NoError(t, p.SetObjective(Minimize, nil, 0, sumSquares(2)))

	s := newSLSQPSolver()
	assert.NoError(t, s.Load(Reformulate(p)))

	out, err := s.SolveFixed(context.Background(), nil, []float64{0}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusOptimal, out.Status)
	assert.InDelta(t, 2, out.Point[0], 1e-4)
	assert.InDelta(t, 0, out.Objective, 1e-6)
	assert.Greater(t, out.Iterations, 0)
}

func TestSLSQPSolveFixedPinsVariables(t *testing.T) {
	p := NewProblem("pinned")
	p.AddVariable("x", Continuous, -5, 5)
	p.AddVariable("y", Binary, 0, 1)
	// min (x-2)^2 + (y-0)^2 with y pinned to 1
	assert.NoError(t, p.SetObjective(Minimize, nil, 0, sumSquares(2, 0)))

	s := newSLSQPSolver()
	assert.NoError(t, s.Load(Reformulate(p)))

	out, err := s.SolveFixed(context.Background(), map[int]float64{1: 1}, []float64{0, 0}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusOptimal, out.Status)
	assert.InDelta(t, 2, out.Point[0], 1e-4)
	assert.InDelta(t, 1, out.Point[1], 1e-9)
	assert.InDelta(t, 1, out.Objective, 1e-6)
}

func TestSLSQPSolveFixedHonorsConstraints(t *testing.T) {
	p := NewProblem("constrained")
	p.AddVariable("x", Continuous, -5, 5)
	p.AddVariable("y", Continuous, -5, 5)
	// min x + y inside the ball of radius 2: optimum at (-sqrt2, -sqrt2)
	assert.NoError(t, p.AddNonlinearConstraint("ball", sumSquares(0, 0), 4))
	assert.NoError(t, p.SetObjective(Minimize, map[int]float64{0: 1, 1: 1}, 0, nil))

	s := newSLSQPSolver()
	assert.NoError(t, s.Load(Reformulate(p)))

	out, err := s.SolveFixed(context.Background(), nil, []float64{0, 0}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusOptimal, out.Status)
	assert.InDelta(t, -1.41421356, out.Point[0], 1e-3)
	assert.InDelta(t, -1.41421356, out.Point[1], 1e-3)
	assert.InDelta(t, -2.82842712, out.Objective, 1e-3)
	assert.LessOrEqual(t, out.MaxViolation, 1e-6)
}

func TestSLSQPSolveFixedMaximization(t *testing.T) {
	p := NewProblem("max")
	p.AddVariable("x", Continuous, 0, 5)
	// maximize -(x-3)^2: internally min (x-3)^2, reported min-sense
	neg := ExprFunc{
		F: func(x []float64) float64 { d := x[0] - 3; return -d * d },
		G: func(x, g []float64) { g[0] = -2 * (x[0] - 3) },
	}
	assert.NoError(t, p.SetObjective(Maximize, nil, 0, neg))

	s := newSLSQPSolver()
	assert.NoError(t, s.Load(Reformulate(p)))

	out, err := s.SolveFixed(context.Background(), nil, []float64{0}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusOptimal, out.Status)
	assert.InDelta(t, 3, out.Point[0], 1e-4)
	assert.InDelta(t, 0, out.Objective, 1e-6)
}

func TestSLSQPSolveFixedClampsStart(t *testing.T) {
	p := NewProblem("clamp")
	p.AddVariable("x", Continuous, 0, 5)
	assert.NoError(t, p.SetObjective(Minimize, nil, 0, sumSquares(2)))

	s := newSLSQPSolver()
	assert.NoError(t, s.Load(Reformulate(p)))

	// a wildly out-of-box start must not derail the solve
	out, err := s.SolveFixed(context.Background(), nil, []float64{-1e9}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusOptimal, out.Status)
	assert.InDelta(t, 2, out.Point[0], 1e-4)
}

func TestSLSQPSolveSlackMax(t *testing.T) {
	p := NewProblem("interior")
	p.AddVariable("x", Continuous, -3, 3)
	p.AddVariable("y", Continuous, -3, 3)
	assert.NoError(t, p.AddNonlinearConstraint("ball", sumSquares(0, 0), 4))
	assert.NoError(t, p.SetObjective(Minimize, map[int]float64{0: 1}, 0, nil))

	s := newSLSQPSolver()
	assert.NoError(t, s.Load(Reformulate(p)))

	out, err := s.SolveSlackMax(context.Background(), []float64{1, 1}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusOptimal, out.Status)

	// the deepest interior point of the ball is its center with slack 4
	assert.Len(t, out.Point, 2)
	assert.InDelta(t, 0, out.Point[0], 1e-3)
	assert.InDelta(t, 0, out.Point[1], 1e-3)
	assert.InDelta(t, 4, out.Objective, 1e-3)
}

func TestSLSQPCancelledContext(t *testing.T) {
	p := NewProblem("cancelled")
	p.AddVariable("x", Continuous, 0, 1)
	assert.NoError(t, p.SetObjective(Minimize, map[int]float64{0: 1}, 0, nil))

	s := newSLSQPSolver()
	assert.NoError(t, s.Load(Reformulate(p)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := s.SolveFixed(ctx, nil, []float64{0}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusLimit, out.Status)

	out, err = s.SolveSlackMax(ctx, []float64{0}, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, NLPStatusLimit, out.Status)
}

func TestSLSQPRequiresLoad(t *testing.T) {
	s := newSLSQPSolver()
	_, err := s.SolveFixed(context.Background(), nil, []float64{0}, time.Minute)
	assert.Error(t, err)
	_, err = s.SolveSlackMax(context.Background(), []float64{0}, time.Minute)
	assert.Error(t, err)
	assert.Error(t, s.Load(nil))
}
