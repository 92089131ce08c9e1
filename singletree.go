package minlp

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// fixedNLPThrottle runs the fixed-integer NLP only on every n-th rejected
// candidate in single-tree mode, where candidates arrive far more often than
// in the multi-tree loop.
const fixedNLPThrottle = 5

// runSingleTree keeps one branch-and-cut tree alive and grows the outer
// approximation through lazy constraints: every integer-feasible candidate the
// tree produces is either accepted (nonlinearly feasible) or answered with
// freshly generated hyperplanes that stay in the tree.
func (e *environment) runSingleTree(ctx context.Context, userCheck func()) error {
	if err := e.dual.initialize(e.ref); err != nil {
		return err
	}
	if err := e.nlp.Load(e.ref); err != nil {
		return errors.Wrap(err, "loading NLP")
	}
	if _, err := e.taskUpdateInteriorPoint(ctx); err != nil {
		return err
	}
	rejected := 0
	handler := func(point []float64, objective float64) CallbackDecision {
		e.cbMu.Lock()
		defer e.cbMu.Unlock()

		if userCheck != nil {
			userCheck()
		}
		if e.userStop.Load() {
			e.results.terminate(TerminationUserStop, "terminated on user request")
			return CallbackDecision{Abort: true}
		}
		if time.Since(e.startTime) >= e.opts.Limits.TimeMax {
			e.results.terminate(TerminationTimeLimit, "time limit reached")
			return CallbackDecision{Abort: true}
		}

		iter := e.results.newIteration()
		iter.IsDiscrete = true
		iter.DualClass = DualClassMILP
		iter.DualStatus = MIPStatusFeasible
		defer iter.seal()

		viol, violIdx := e.ref.MaxViolation(point)
		sp := SolutionPoint{
			Point:         append([]float64(nil), point...),
			Objective:     objective,
			MaxViolation:  viol,
			ViolatedNLRow: violIdx,
			Source:        PrimalSourceMIPIncumbent,
			Iteration:     iter.Index,
		}
		iter.SolutionPoints = []SolutionPoint{sp}
		iter.MaxViolation = viol
		iter.MaxViolationNLRow = violIdx

		if viol <= e.opts.Dual.FeasTol {
			e.primal.enqueue([]SolutionPoint{sp})
			e.primal.checkCandidates(iter.Index)
			iter.PrimalBound = e.results.PrimalBound()
			return CallbackDecision{Accept: true}
		}

		e.selectHyperplanes([]SolutionPoint{sp}, iter.Index)
		e.selectObjectiveLinearizations([]SolutionPoint{sp}, iter.Index)

		rejected++
		if rejected%fixedNLPThrottle == 0 {
			if cands := e.primal.selectFixedNLPCandidates([]SolutionPoint{sp}); len(cands) > 0 {
				if err := e.primal.runFixedNLPs(ctx, cands, iter.Index); err != nil {
					e.logger.Print("fixed NLP during callback failed: ", err)
				}
			}
		}
		iter.PrimalBound = e.results.PrimalBound()

		var rows []LinearRow
		for _, h := range e.pool.flush(0) {
			rows = append(rows, h.Row)
		}
		for _, c := range e.pool.flushIntegerCuts() {
			rows = append(rows, c.Row(len(e.ref.Vars)))
		}
		iter.CutsAdded = len(rows)
		iter.CutsTotal = e.pool.generatedCount()
		iter.IntegerCutsTotal = e.pool.integerCutCount()
		if len(rows) == 0 {
			// could not cut the candidate off; accepting it is the only way
			// to keep the tree sound
			e.logger.Print("no cut separated the candidate, accepting it")
			return CallbackDecision{Accept: true}
		}
		return CallbackDecision{Accept: false, LazyRows: rows}
	}

	out, err := e.dual.solveWithCallback(ctx, handler)
	if err != nil {
		return err
	}
	e.dual.promoteBound(out)

	finalIter := e.results.newIteration()
	finalIter.IsDiscrete = true
	finalIter.DualClass = DualClassMILP
	finalIter.DualStatus = out.Status
	finalIter.WasOptimal = out.Status == MIPStatusOptimal
	finalIter.ExploredNodes = out.ExploredNodes
	finalIter.OpenNodes = out.OpenNodes
	defer finalIter.seal()

	e.primal.enqueue(e.dual.harvest(out, finalIter.Index))
	e.primal.checkCandidates(finalIter.Index)
	finalIter.PrimalBound = e.results.PrimalBound()
	finalIter.DualBound = e.results.DualBound()

	if e.results.terminated() {
		return nil
	}
	switch out.Status {
	case MIPStatusOptimal:
		if e.results.HasPrimalSolution() {
			e.results.setDualBound(e.results.PrimalBound())
			e.results.terminate(TerminationOptimal, "single tree exhausted")
		} else {
			e.results.terminate(TerminationInfeasible, "single tree exhausted without a feasible point")
		}
	case MIPStatusInfeasible:
		if e.results.HasPrimalSolution() {
			e.results.setDualBound(e.results.PrimalBound())
			e.results.terminate(TerminationOptimal, "dual infeasible under the incumbent cutoff")
		} else {
			e.results.terminate(TerminationInfeasible, "linear relaxation is infeasible")
		}
	case MIPStatusUnbounded:
		e.results.terminate(TerminationUnbounded, "dual problem is unbounded")
	default:
		e.results.terminate(TerminationTimeLimit, "single tree stopped at a limit")
	}
	return nil
}
