package minlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelaxationControllerBudget(t *testing.T) {
	o := DefaultOptions()
	o.Relaxation.LPPhaseIterBudget = 2
	c := newRelaxationController(&o)

	assert.True(t, c.shouldRelax())
	assert.True(t, c.shouldRelax())
	assert.False(t, c.shouldRelax())
	assert.False(t, c.shouldRelax())
}

func TestRelaxationControllerStopsOnFeasibleLPPoint(t *testing.T) {
	o := DefaultOptions()
	o.Relaxation.LPPhaseIterBudget = 100
	c := newRelaxationController(&o)

	assert.True(t, c.shouldRelax())
	c.noteOutcome(-10, 1e-9, 1e-6) // the LP optimum is nonlinearly feasible
	assert.False(t, c.shouldRelax())
}

func TestRelaxationControllerStopsOnStagnation(t *testing.T) {
	o := DefaultOptions()
	o.Relaxation.LPPhaseIterBudget = 100
	o.Relaxation.StagnationWindow = 3
	o.Relaxation.StagnationTol = 1e-6
	c := newRelaxationController(&o)

	// the bound keeps moving: the phase stays on
	c.noteOutcome(-10, 1, 1e-6)
	c.noteOutcome(-8, 1, 1e-6)
	c.noteOutcome(-6, 1, 1e-6)
	assert.True(t, c.shouldRelax())

	// three equal bounds in a row end it
	c.noteOutcome(-6, 1, 1e-6)
	c.noteOutcome(-6, 1, 1e-6)
	assert.False(t, c.shouldRelax())
}

func TestPoolLimitUnlimited(t *testing.T) {
	c := newPoolLimitController(PoolLimitUnlimited)
	assert.Equal(t, 0, c.next(nil, math.Inf(1)))
	assert.Equal(t, 0, c.next(&Iteration{WasOptimal: true}, -3))
}

func TestPoolLimitIncrease(t *testing.T) {
	c := newPoolLimitController(PoolLimitIncrease)
	assert.Equal(t, 1, c.next(nil, math.Inf(1)))
	assert.Equal(t, 2, c.next(&Iteration{WasOptimal: true, DualStatus: MIPStatusOptimal}, math.Inf(1)))
	// stopping at the solution limit means the pool was too small: grow
	assert.Equal(t, 3, c.next(&Iteration{DualStatus: MIPStatusFeasible}, math.Inf(1)))
	// a time-limited solve earns nothing
	assert.Equal(t, 3, c.next(&Iteration{DualStatus: MIPStatusLimit}, math.Inf(1)))
}

func TestPoolLimitAdaptive(t *testing.T) {
	c := newPoolLimitController(PoolLimitAdaptive)

	// first call: no history, keep the initial limit
	assert.Equal(t, 1, c.next(nil, math.Inf(1)))

	// no incumbent progress: widen
	assert.Equal(t, 2, c.next(&Iteration{}, math.Inf(1)))
	assert.Equal(t, 3, c.next(&Iteration{}, math.Inf(1)))

	// the incumbent improved: narrow again
	assert.Equal(t, 2, c.next(&Iteration{}, -5))
}
