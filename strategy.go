package minlp

import "math"

// relaxationController implements the LP-phase relaxation strategy: discrete
// variables are relaxed for the first iterations to bootstrap the outer
// approximation cheaply, and integrality is enforced as soon as the LP dual
// stalls, an LP point turns out nonlinearly feasible, or the budget runs out.
type relaxationController struct {
	budget        int
	window        int
	stagnationTol float64

	used    int
	history []float64
	done    bool
}

func newRelaxationController(opts *Options) *relaxationController {
	return &relaxationController{
		budget:        opts.Relaxation.LPPhaseIterBudget,
		window:        opts.Relaxation.StagnationWindow,
		stagnationTol: opts.Relaxation.StagnationTol,
	}
}

// shouldRelax decides the mode for the next dual solve.
func (c *relaxationController) shouldRelax() bool {
	if c.done || c.used >= c.budget {
		return false
	}
	c.used++
	return true
}

// noteOutcome feeds back the LP-phase result; feasible LP points or a stalled
// bound end the phase early.
func (c *relaxationController) noteOutcome(dualBound, maxViolation, feasTol float64) {
	if c.done {
		return
	}
	if maxViolation <= feasTol {
		c.done = true
		return
	}
	c.history = append(c.history, dualBound)
	if len(c.history) >= c.window {
		first := c.history[len(c.history)-c.window]
		last := c.history[len(c.history)-1]
		if math.Abs(last-first) <= c.stagnationTol*math.Max(1, math.Abs(last)) {
			c.done = true
		}
	}
}

// poolLimitController implements the solution-pool-limit strategy of the dual
// engine: how many solutions the MILP is asked for, adapted to progress.
type poolLimitController struct {
	strategy PoolLimitStrategy
	limit    int

	lastPrimal float64
}

func newPoolLimitController(strategy PoolLimitStrategy) *poolLimitController {
	c := &poolLimitController{strategy: strategy, limit: 1, lastPrimal: math.Inf(1)}
	if strategy == PoolLimitUnlimited {
		c.limit = 0 // backend interprets 0 as "all it can"
	}
	return c
}

// next updates and returns the solution limit to use for the coming solve,
// based on the previous iteration.
func (c *poolLimitController) next(prev *Iteration, primalBound float64) int {
	switch c.strategy {
	case PoolLimitUnlimited:
		return 0

	case PoolLimitIncrease:
		// grow once the previous solve either proved optimality or was cut
		// short by the limit itself; either way a wider pool is affordable.
		if prev != nil && (prev.WasOptimal || prev.DualStatus == MIPStatusFeasible) {
			c.limit++
		}

	case PoolLimitAdaptive:
		if primalBound < c.lastPrimal-1e-12 {
			// aggressive incumbent progress: fewer, better candidates.
			if c.limit > 1 {
				c.limit--
			}
		} else if prev != nil {
			// non-improving iteration: widen the pool.
			c.limit++
		}
		c.lastPrimal = primalBound
	}
	return c.limit
}
