package minlp

import (
	"context"
	"math"

	"github.com/pkg/errors"
)

// dualEngine drives the lower bound. It owns the single MILP model built
// from P̂: linear rows go in directly, nonlinear rows are represented only by
// the accumulated outer approximation.
type dualEngine struct {
	backend MIPSolver
	opts    *Options
	logger  Logger
	pool    *hyperplanePool
	results *Results

	ref   *Reformulation
	model *DualModel

	// backend row ids of injected cuts, oldest first; repair drops from the
	// tail.
	cutRowIDs []int

	cutoffRowID    int     // -1 when the cutoff is a hard solver cutoff
	hardCutoff     float64 // NaN when no hard cutoff is set
	reductionCuts  int
	repairAttempts int
}

func newDualEngine(backend MIPSolver, opts *Options, logger Logger, pool *hyperplanePool, results *Results) *dualEngine {
	return &dualEngine{
		backend:     backend,
		opts:        opts,
		logger:      logger,
		pool:        pool,
		results:     results,
		cutoffRowID: -1,
		hardCutoff:  math.NaN(),
	}
}

// initialize pushes the variables, the linear rows and the linear objective
// of P̂ into the backend and pulls presolve-tightened bounds back.
func (d *dualEngine) initialize(ref *Reformulation) error {
	d.ref = ref

	model := &DualModel{
		Objective:   append([]float64(nil), ref.ObjCoeffs...),
		ObjConstant: ref.ObjConstant,
	}
	for _, v := range ref.Vars {
		model.Vars = append(model.Vars, ModelVariable{
			Name:    v.Name,
			Integer: v.Kind.IsDiscrete(),
			LB:      v.LB,
			UB:      v.UB,
		})
	}
	for _, lc := range ref.Original.Linear {
		model.Rows = append(model.Rows, LinearRow{
			Name:   lc.Name,
			Coeffs: copyCoeffs(lc.Coeffs),
			LB:     lc.LB,
			UB:     lc.UB,
		})
	}
	d.model = model

	if err := d.backend.Load(model); err != nil {
		return errors.Wrap(err, "loading dual model")
	}

	for i, mv := range d.backend.PresolveBounds() {
		if mv.LB > model.Vars[i].LB || mv.UB < model.Vars[i].UB {
			if err := d.backend.SetVariableBounds(i, mv.LB, mv.UB); err != nil {
				return errors.Wrap(err, "applying presolved bounds")
			}
			model.Vars[i].LB, model.Vars[i].UB = mv.LB, mv.UB
		}
	}
	return nil
}

// problemClass reports what the next dual solve will be.
func (d *dualEngine) problemClass(relaxed bool) DualProblemClass {
	if relaxed || d.ref.Original.NumDiscrete() == 0 {
		return DualClassLP
	}
	return DualClassMILP
}

// injectWaitingCuts moves hyperplanes (FIFO, capped per iteration) and all
// waiting integer cuts from the pool into the backend.
func (d *dualEngine) injectWaitingCuts(iter *Iteration) (int, error) {
	added := 0
	for _, h := range d.pool.flush(d.opts.Cuts.MaxPerIteration) {
		id, err := d.backend.AddRow(h.Row)
		if err != nil {
			return added, errors.Wrapf(err, "adding hyperplane %q", h.Row.Name)
		}
		d.cutRowIDs = append(d.cutRowIDs, id)
		added++
	}
	for _, c := range d.pool.flushIntegerCuts() {
		id, err := d.backend.AddRow(c.Row(len(d.ref.Vars)))
		if err != nil {
			return added, errors.Wrap(err, "adding integer cut")
		}
		d.cutRowIDs = append(d.cutRowIDs, id)
		added++
	}
	if iter != nil {
		iter.CutsAdded += added
		iter.CutsTotal = d.pool.generatedCount()
		iter.IntegerCutsTotal = d.pool.integerCutCount()
	}
	return added, nil
}

// applyCutoff installs or refreshes the primal bound on the dual problem,
// either as a hard solver cutoff or, when configured, as an objective
// reduction row that participates in infeasibility repair.
func (d *dualEngine) applyCutoff(primalBound float64) error {
	if math.IsInf(primalBound, 1) {
		return nil
	}
	if !d.opts.Cuts.ObjectiveReductionCut {
		d.backend.SetCutoff(primalBound)
		d.hardCutoff = primalBound
		return nil
	}
	if d.reductionCuts >= d.opts.Cuts.MaxPrimalReductionCuts {
		return nil
	}
	if d.cutoffRowID >= 0 {
		if err := d.backend.RemoveRows([]int{d.cutoffRowID}); err != nil {
			return errors.Wrap(err, "replacing objective reduction cut")
		}
		d.cutoffRowID = -1
	}
	delta := math.Max(d.opts.Primal.ObjImprovementAbsTol,
		d.opts.Primal.ObjImprovementRelTol*math.Abs(primalBound))
	coeffs := make(map[int]float64)
	for i, c := range d.model.Objective {
		if c != 0 {
			coeffs[i] = c
		}
	}
	id, err := d.backend.AddRow(LinearRow{
		Name:   "objective_reduction_cut",
		Coeffs: coeffs,
		LB:     math.Inf(-1),
		UB:     primalBound - d.model.ObjConstant - delta,
	})
	if err != nil {
		return errors.Wrap(err, "adding objective reduction cut")
	}
	d.cutoffRowID = id
	d.reductionCuts++
	return nil
}

// cutoffActive reports whether the dual problem currently excludes solutions
// at or above the incumbent, in either cutoff form.
func (d *dualEngine) cutoffActive() bool {
	return d.cutoffRowID >= 0 || !math.IsNaN(d.hardCutoff)
}

// solve runs one dual solve with the iteration's relaxation mode, solution
// limit and per-iteration time budget. Backend errors are retried once.
func (d *dualEngine) solve(ctx context.Context, relaxed bool, solutionLimit int) (MIPOutcome, error) {
	d.backend.SetRelaxed(relaxed)
	d.backend.SetSolutionLimit(solutionLimit)
	d.backend.SetTimeLimit(d.opts.Limits.TimeDualPerIter)

	out, err := d.backend.Solve(ctx)
	if err != nil || out.Status == MIPStatusError {
		d.logger.Print("dual solve failed, retrying once: ", err)
		out, err = d.backend.Solve(ctx)
		if err != nil {
			return out, errors.Wrap(err, "dual solve failed twice")
		}
		if out.Status == MIPStatusError {
			return out, errors.New("dual solve failed twice")
		}
	}
	return out, nil
}

// solveWithCallback runs the single branch-and-cut tree.
func (d *dualEngine) solveWithCallback(ctx context.Context, handler CandidateHandler) (MIPOutcome, error) {
	d.backend.SetRelaxed(false)
	d.backend.SetSolutionLimit(0)
	d.backend.SetTimeLimit(d.opts.Limits.TimeMax)
	return d.backend.SolveWithCallback(ctx, handler)
}

// promoteBound feeds the outcome's proved lower envelope into the results
// store. Only BestBound is safe when the solve stopped early; the incumbent
// objective is merely a candidate generation point.
func (d *dualEngine) promoteBound(out MIPOutcome) {
	if math.IsNaN(out.BestBound) || math.IsInf(out.BestBound, 0) {
		return
	}
	d.results.setDualBound(out.BestBound)
}

// repair reacts to an infeasible dual problem: relax the objective reduction
// cut if one is installed, then drop the most recently added hyperplanes.
// Returns false once the attempt budget is exhausted.
func (d *dualEngine) repair(iter *Iteration) (bool, error) {
	if d.repairAttempts >= d.opts.Repair.MaxAttempts {
		return false, nil
	}
	d.repairAttempts++
	if iter != nil {
		iter.RepairDone = true
	}

	if d.cutoffRowID >= 0 {
		if err := d.backend.RemoveRows([]int{d.cutoffRowID}); err != nil {
			return false, errors.Wrap(err, "relaxing objective reduction cut")
		}
		d.logger.Print("repair: relaxed the objective reduction cut")
		d.cutoffRowID = -1
		return true, nil
	}

	n := len(d.cutRowIDs)
	if n == 0 {
		return false, nil
	}
	k := int(math.Ceil(d.opts.Repair.DropRecentFraction * float64(n)))
	if k < 1 {
		k = 1
	}
	drop := append([]int(nil), d.cutRowIDs[n-k:]...)
	if err := d.backend.RemoveRows(drop); err != nil {
		return false, errors.Wrap(err, "dropping recent hyperplanes")
	}
	d.cutRowIDs = d.cutRowIDs[:n-k]
	d.logger.Print("repair: dropped ", k, " most recent cuts")
	return true, nil
}

// repairSucceeded resets the attempt counter after a feasible re-solve.
func (d *dualEngine) repairSucceeded(iter *Iteration) {
	d.repairAttempts = 0
	if iter != nil {
		iter.RepairWorked = true
	}
}

// harvest converts a dual outcome's solution pool into solution points with
// their nonlinear violations against P̂.
func (d *dualEngine) harvest(out MIPOutcome, iterIdx int) []SolutionPoint {
	points := make([]SolutionPoint, 0, len(out.Pool))
	for i, ps := range out.Pool {
		viol, idx := d.ref.MaxViolation(ps.Point)
		src := PrimalSourceMIPSolutionPool
		if i == 0 {
			src = PrimalSourceMIPIncumbent
		}
		points = append(points, SolutionPoint{
			Point:         ps.Point,
			Objective:     ps.Objective,
			MaxViolation:  viol,
			ViolatedNLRow: idx,
			Source:        src,
			Iteration:     iterIdx,
		})
	}
	return points
}

// warmStart feeds the incumbent back as a MIP start for the next solve.
func (d *dualEngine) warmStart() {
	if best, ok := d.results.BestPrimalSolution(); ok {
		d.backend.SetStartingPoint(d.ref.Extend(best.Point))
	}
}
