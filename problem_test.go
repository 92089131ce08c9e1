package minlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// sumSquares builds sum_i (x[i]-c[i])^2 as an Expression over len(c) leading
// variables. Shared by most tests in the package.
func sumSquares(c ...float64) Expression {
	return ExprFunc{
		F: func(x []float64) float64 {
			v := 0.0
			for i, ci := range c {
				d := x[i] - ci
				v += d * d
			}
			return v
		},
		G: func(x, g []float64) {
			for i := range g {
				g[i] = 0
			}
			for i, ci := range c {
				g[i] = 2 * (x[i] - ci)
			}
		},
	}
}

func TestProblemBuilders(t *testing.T) {
	p := NewProblem("builders")
	x := p.AddVariable("x", Continuous, -1, 1)
	y := p.AddVariable("y", Binary, -5, 5)
	assert.Equal(t, 0, x)
	assert.Equal(t, 1, y)

	// binary declarations get clipped to the unit box
	assert.Equal(t, 0.0, p.Variables[y].LB)
	assert.Equal(t, 1.0, p.Variables[y].UB)

	assert.NoError(t, p.AddLinearConstraint("r", map[int]float64{x: 1, y: 2}, 0, 3))
	assert.Error(t, p.AddLinearConstraint("empty", nil, 0, 3))
	assert.Error(t, p.AddLinearConstraint("bad index", map[int]float64{7: 1}, 0, 3))

	assert.NoError(t, p.AddNonlinearConstraint("q", sumSquares(0, 0), 4))
	assert.Error(t, p.AddNonlinearConstraint("nil", nil, 4))

	assert.NoError(t, p.SetObjective(Minimize, map[int]float64{x: 1}, 0, nil))
	assert.Error(t, p.SetObjective(Minimize, map[int]float64{9: 1}, 0, nil))

	assert.Equal(t, 1, p.NumDiscrete())
	assert.False(t, p.HasNonlinearObjective())
	assert.True(t, p.allDiscreteBinary())
}

func TestObjectiveValueIsMinSense(t *testing.T) {
	p := NewProblem("max")
	x := p.AddVariable("x", Continuous, 0, 10)
	assert.NoError(t, p.SetObjective(Maximize, map[int]float64{x: 2}, 1, nil))

	// maximize 2x+1 at x=3 is internally min -(2x+1) = -7
	assert.InDelta(t, -7, p.objectiveValue([]float64{3}), 1e-12)
	assert.Equal(t, -1.0, p.signFactor())
}

func TestMaxViolation(t *testing.T) {
	p := NewProblem("viol")
	p.AddVariable("x", Continuous, 0, 1)
	p.AddVariable("y", Continuous, -1, 1)
	assert.NoError(t, p.AddLinearConstraint("sum", map[int]float64{0: 1, 1: 1}, math.Inf(-1), 1))
	assert.NoError(t, p.AddNonlinearConstraint("ball", sumSquares(0, 0), 1))

	tests := []struct {
		name    string
		x       []float64
		worst   float64
		worstAt int
	}{
		{name: "feasible interior", x: []float64{0.1, 0.1}, worst: 0, worstAt: -1},
		{name: "linear row violated", x: []float64{0.9, 0.9}, worst: 0.8, worstAt: 0},
		{name: "bound violated", x: []float64{-0.5, 0}, worst: 0.5, worstAt: -1},
		{name: "nonlinear dominates", x: []float64{1.2, 1}, worst: 1.44, worstAt: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worst, idx := p.maxViolation(tt.x)
			assert.InDelta(t, tt.worst, worst, 1e-12)
			assert.Equal(t, tt.worstAt, idx)
		})
	}
}

func TestRoundDiscreteReturnsACopy(t *testing.T) {
	p := NewProblem("round")
	p.AddVariable("n", Integer, 0, 10)
	p.AddVariable("x", Continuous, 0, 10)

	in := []float64{2.4, 2.4}
	out := p.roundDiscrete(in)
	assert.Equal(t, []float64{2, 2.4}, out)
	assert.Equal(t, []float64{2.4, 2.4}, in)
}

func TestIsIntegerFeasible(t *testing.T) {
	p := NewProblem("int")
	p.AddVariable("n", Integer, 0, 10)
	p.AddVariable("x", Continuous, 0, 10)

	assert.True(t, p.isIntegerFeasible([]float64{3, 3.7}, 1e-6))
	assert.True(t, p.isIntegerFeasible([]float64{3 + 1e-9, 3.7}, 1e-6))
	assert.False(t, p.isIntegerFeasible([]float64{3.4, 3.7}, 1e-6))
}

func TestAllDiscreteBinary(t *testing.T) {
	p := NewProblem("mixed")
	p.AddVariable("b", Binary, 0, 1)
	assert.True(t, p.allDiscreteBinary())
	p.AddVariable("n", Integer, 0, 10)
	assert.False(t, p.allDiscreteBinary())
}
