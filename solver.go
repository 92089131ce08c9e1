package minlp

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// CreationStatus reports the outcome of handing a problem to the solver.
type CreationStatus int

const (
	CreationOK CreationStatus = iota
	CreationFileMissing
	CreationParseError
	CreationVariablesError
	CreationConstraintsError
	CreationObjectiveError
	CreationCapabilityError
)

func (s CreationStatus) String() string {
	switch s {
	case CreationOK:
		return "ok"
	case CreationFileMissing:
		return "file-missing"
	case CreationParseError:
		return "parse-error"
	case CreationVariablesError:
		return "variables-error"
	case CreationConstraintsError:
		return "constraints-error"
	case CreationObjectiveError:
		return "objective-error"
	case CreationCapabilityError:
		return "capability-error"
	default:
		return fmt.Sprintf("CreationStatus(%d)", int(s))
	}
}

// ProblemReader parses a problem from a stream. Implementations live outside
// this package; the solver only cares that one produces a *Problem.
type ProblemReader interface {
	ReadProblem(r io.Reader) (*Problem, error)
}

// EventType selects which solver event a callback subscribes to.
type EventType int

const (
	// EventNewPrimalSolution fires after every accepted incumbent.
	EventNewPrimalSolution EventType = iota
	// EventIterationFinished fires at the end of every multi-tree iteration.
	EventIterationFinished
	// EventUserTerminationCheck fires before every termination decision; a
	// handler may call Terminate to stop the solve.
	EventUserTerminationCheck
)

// EventHandler is a solver callback. Handlers run synchronously on the solve
// goroutine; keep them cheap.
type EventHandler func(s *Solver)

// environment bundles the state shared by the engines during one solve.
type environment struct {
	opts     *Options
	logger   Logger
	problem  *Problem
	ref      *Reformulation
	results  *Results
	dual     *dualEngine
	primal   *primalManager
	nlp      NLPSolver
	interior *interiorService
	pool     *hyperplanePool

	relax     *relaxationController
	poolLimit *poolLimitController

	startTime time.Time
	userStop  atomic.Bool

	// serializes candidate callbacks in single-tree mode
	cbMu sync.Mutex

	// iteration-scoped state shuttled between tasks
	relaxed       bool
	solutionLimit int
	points        []SolutionPoint
	lastOutcome   MIPOutcome
}

// Solver is the public entry point: configure it, hand it a Problem, call
// Solve.
type Solver struct {
	opts   *Options
	logger Logger
	mip    MIPSolver
	nlp    NLPSolver

	problem *Problem
	env     *environment
	results *Results

	handlers map[EventType][]EventHandler
}

// Option configures a Solver at construction.
type Option func(*Solver)

// WithLogger routes solver logging to the given logger.
func WithLogger(l Logger) Option {
	return func(s *Solver) { s.logger = l }
}

// WithMIPSolver swaps the dual (MILP) backend.
func WithMIPSolver(m MIPSolver) Option {
	return func(s *Solver) { s.mip = m }
}

// WithNLPSolver swaps the NLP backend.
func WithNLPSolver(n NLPSolver) Option {
	return func(s *Solver) { s.nlp = n }
}

// WithOptions replaces the full option set.
func WithOptions(o *Options) Option {
	return func(s *Solver) { s.opts = o }
}

// New builds a solver with the bundled branch-and-cut MILP backend and the
// SLSQP NLP backend unless overridden.
func New(options ...Option) *Solver {
	defaults := DefaultOptions()
	s := &Solver{
		opts:     &defaults,
		logger:   noopLogger{},
		handlers: make(map[EventType][]EventHandler),
	}
	for _, o := range options {
		o(s)
	}
	if s.mip == nil {
		s.mip = newBranchAndCutSolver()
	}
	if s.nlp == nil {
		s.nlp = newSLSQPSolver()
	}
	return s
}

// SetOption sets a single option by its dotted name, e.g.
// ("dual.strategy", "single-tree"). Must be called before Solve.
func (s *Solver) SetOption(name string, value interface{}) error {
	return s.opts.Set(name, value)
}

// RegisterCallback subscribes a handler to a solver event.
func (s *Solver) RegisterCallback(t EventType, h EventHandler) {
	s.handlers[t] = append(s.handlers[t], h)
}

func (s *Solver) fire(t EventType) {
	for _, h := range s.handlers[t] {
		h(s)
	}
}

// SetProblem validates and installs the problem to solve.
func (s *Solver) SetProblem(p *Problem) CreationStatus {
	if p == nil || len(p.Variables) == 0 {
		return CreationVariablesError
	}
	for _, v := range p.Variables {
		if v.LB > v.UB || math.IsNaN(v.LB) || math.IsNaN(v.UB) {
			return CreationVariablesError
		}
		if v.Kind == SemiContinuous {
			// neither bundled backend handles semicontinuous domains
			return CreationCapabilityError
		}
	}
	for _, lc := range p.Linear {
		if lc.LB > lc.UB || len(lc.Coeffs) == 0 {
			return CreationConstraintsError
		}
	}
	for _, nc := range p.Nonlinear {
		if nc.Expr == nil || math.IsNaN(nc.RHS) {
			return CreationConstraintsError
		}
	}
	if len(p.Objective.Linear) == 0 && p.Objective.Expr == nil {
		return CreationObjectiveError
	}
	s.problem = p
	return CreationOK
}

// SetProblemFromFile reads, parses and installs a problem from disk.
func (s *Solver) SetProblemFromFile(path string, reader ProblemReader) CreationStatus {
	f, err := os.Open(path)
	if err != nil {
		return CreationFileMissing
	}
	defer f.Close()
	p, err := reader.ReadProblem(f)
	if err != nil {
		s.logger.Print("parsing ", path, ": ", err)
		return CreationParseError
	}
	return s.SetProblem(p)
}

// Terminate requests a stop. Safe to call from event handlers and from other
// goroutines; the solve finishes its current step and returns.
func (s *Solver) Terminate() {
	if s.env != nil {
		s.env.userStop.Store(true)
	}
}

// Results exposes the results store of the last (or running) solve.
func (s *Solver) Results() *Results { return s.results }

// PrimalBound returns the best objective in the problem's own sense.
func (s *Solver) PrimalBound() float64 {
	if s.results == nil {
		return math.Inf(1)
	}
	return s.orient(s.results.PrimalBound())
}

// DualBound returns the proven bound on the objective in the problem's own
// sense: a lower bound when minimizing, an upper bound when maximizing.
func (s *Solver) DualBound() float64 {
	if s.results == nil {
		return math.Inf(-1)
	}
	return s.orient(s.results.DualBound())
}

func (s *Solver) AbsoluteGap() float64 {
	if s.results == nil {
		return math.Inf(1)
	}
	return s.results.AbsoluteGap()
}

func (s *Solver) RelativeGap() float64 {
	if s.results == nil {
		return math.Inf(1)
	}
	return s.results.RelativeGap()
}

// PrimalSolution returns the incumbent point and its objective in the
// problem's own sense.
func (s *Solver) PrimalSolution() ([]float64, float64, bool) {
	if s.results == nil {
		return nil, 0, false
	}
	sol, ok := s.results.BestPrimalSolution()
	if !ok {
		return nil, 0, false
	}
	return sol.Point, s.orient(sol.Objective), true
}

func (s *Solver) TerminationReason() TerminationReason {
	if s.results == nil {
		return TerminationNone
	}
	return s.results.TerminationReason()
}

func (s *Solver) orient(v float64) float64 {
	if s.env != nil && s.env.ref != nil && s.env.ref.Flipped {
		return -v
	}
	return v
}

// Solve runs the configured strategy to completion and returns the model
// status. The context cancels the solve; the best incumbent found so far
// stays available.
func (s *Solver) Solve(ctx context.Context) (ModelStatus, error) {
	if s.problem == nil {
		return ModelStatusError, errors.New("no problem was set")
	}
	if err := s.opts.Validate(); err != nil {
		return ModelStatusError, errors.Wrap(err, "invalid options")
	}

	ref := Reformulate(s.problem)
	results := newResults()
	if ref.ObjVar >= 0 {
		results.countAuxVariable(AuxEpigraph)
	}

	env := &environment{
		opts:      s.opts,
		logger:    s.logger,
		problem:   s.problem,
		ref:       ref,
		results:   results,
		nlp:       s.nlp,
		interior:  newInteriorService(s.opts.Interior.MinSlack),
		pool:      newHyperplanePool(s.opts.Cuts.DedupCoefPrecision),
		relax:     newRelaxationController(s.opts),
		poolLimit: newPoolLimitController(s.opts.Dual.PoolLimitStrategy),
		startTime: time.Now(),
	}
	env.dual = newDualEngine(s.mip, s.opts, s.logger, env.pool, results)
	env.primal = newPrimalManager(s.opts, s.logger, ref, results, s.nlp, env.interior, env.pool)
	env.primal.onNewIncumbent = func(PrimalSolution) { s.fire(EventNewPrimalSolution) }
	s.env = env
	s.results = results

	strategy := s.resolveStrategy(env)
	s.logger.Print("solving with strategy ", strategy)

	var err error
	switch strategy {
	case StrategyPureNLP:
		err = env.runPureNLP(ctx)
	case StrategySingleTree:
		err = env.runSingleTree(ctx, func() { s.fire(EventUserTerminationCheck) })
	case StrategyDirectMIQCQP:
		err = env.runDirect(ctx)
	default:
		err = env.runMultiTree(ctx,
			func() { s.fire(EventUserTerminationCheck) },
			func() { s.fire(EventIterationFinished) })
	}
	if err != nil {
		if results.TerminationReason() == TerminationNone {
			results.terminate(TerminationNumericalFailure, err.Error())
		}
		return results.ModelReturnStatus(), err
	}
	return results.ModelReturnStatus(), nil
}

// resolveStrategy applies the automatic strategy selection and the backend
// capability fallbacks.
func (s *Solver) resolveStrategy(env *environment) Strategy {
	st := s.opts.Dual.Strategy
	if env.problem.NumDiscrete() == 0 {
		if st != StrategyPureNLP {
			s.logger.Print("no discrete variables, switching to the pure NLP strategy")
		}
		return StrategyPureNLP
	}
	if st == StrategySingleTree && !s.mip.SupportsLazyConstraints() {
		s.logger.Print("MILP backend has no lazy constraints, falling back to multi-tree")
		return StrategyMultiTree
	}
	if st == StrategyDirectMIQCQP &&
		!(s.mip.SupportsQuadraticObjective() && s.mip.SupportsQuadraticConstraints()) {
		s.logger.Print("MILP backend cannot take the problem directly, falling back to multi-tree")
		return StrategyMultiTree
	}
	return st
}

// runPureNLP handles the degenerate continuous case: one NLP solve is both
// the primal and the dual side, convexity making the local optimum global.
func (e *environment) runPureNLP(ctx context.Context) error {
	if err := e.nlp.Load(e.ref); err != nil {
		return errors.Wrap(err, "loading NLP")
	}
	out, err := e.nlp.SolveFixed(ctx, nil, e.ref.interiorStart(), e.opts.Limits.TimeMax)
	if err != nil {
		return errors.Wrap(err, "continuous solve")
	}
	switch out.Status {
	case NLPStatusOptimal, NLPStatusFeasible:
		e.primal.tryAccept(out.Point, PrimalSourceNLPFixed, 0)
		if out.Status == NLPStatusOptimal {
			e.results.setDualBound(e.results.PrimalBound())
			e.results.terminate(TerminationOptimal, "continuous problem solved to optimality")
		} else {
			e.results.terminate(TerminationIterationLimit, "continuous solve stopped early")
		}
	case NLPStatusInfeasibleLocal:
		e.results.terminate(TerminationInfeasible, "continuous problem is infeasible")
	case NLPStatusUnbounded:
		e.results.terminate(TerminationUnbounded, "continuous problem is unbounded")
	default:
		e.results.terminate(TerminationNumericalFailure, "continuous solve failed")
	}
	return nil
}

// runDirect hands the whole problem to a backend that understands it
// natively. Only reachable when the backend advertises quadratic support.
func (e *environment) runDirect(ctx context.Context) error {
	if err := e.dual.initialize(e.ref); err != nil {
		return err
	}
	out, err := e.dual.solve(ctx, false, 0)
	if err != nil {
		return err
	}
	iter := e.results.newIteration()
	iter.DualClass = DualClassMIQCQP
	iter.DualStatus = out.Status
	defer iter.seal()

	e.dual.promoteBound(out)
	e.primal.enqueue(e.dual.harvest(out, iter.Index))
	e.primal.checkCandidates(iter.Index)
	switch out.Status {
	case MIPStatusOptimal:
		e.results.setDualBound(e.results.PrimalBound())
		e.results.terminate(TerminationOptimal, "direct solve reached optimality")
	case MIPStatusInfeasible:
		e.results.terminate(TerminationInfeasible, "direct solve proved infeasibility")
	case MIPStatusUnbounded:
		e.results.terminate(TerminationUnbounded, "direct solve proved unboundedness")
	default:
		e.results.terminate(TerminationTimeLimit, "direct solve hit a limit")
	}
	return nil
}

// runMultiTree is the classic outer approximation loop, expressed as a task
// graph so the per-iteration strategies stay separable and testable.
func (e *environment) runMultiTree(ctx context.Context, userCheck, iterDone func()) error {
	if err := e.dual.initialize(e.ref); err != nil {
		return err
	}
	if err := e.nlp.Load(e.ref); err != nil {
		return errors.Wrap(err, "loading NLP")
	}

	g := newTaskGraph()

	g.add("update_interior_point", e.taskUpdateInteriorPoint)
	g.add("initialize_iteration", e.taskInitializeIteration)
	g.add("execute_relaxation_strategy", e.taskRelaxationStrategy)
	g.add("execute_solution_limit_strategy", e.taskSolutionLimitStrategy)
	g.add("add_hyperplanes", e.taskAddHyperplanes)
	g.add("solve_iteration", e.taskSolveIteration)
	g.add("select_primal_candidates_from_pool", e.taskSelectPrimalCandidates)
	g.add("select_fixed_nlp", e.taskSelectFixedNLP)
	g.add("select_hyperplane_points", e.taskSelectHyperplanePoints)
	g.add("select_objective_linearization", e.taskSelectObjectiveLinearization)
	g.add("refresh_interior_point", e.taskRefreshInteriorPoint)
	g.add("check_termination", e.makeTaskCheckTermination(userCheck))
	g.add("print_iteration_report", e.makeTaskIterationReport(iterDone))

	// only reachable by redirect from solve_iteration
	g.add("repair_infeasible_dual", e.taskRepairInfeasibleDual)

	return g.run(ctx)
}

func (e *environment) taskUpdateInteriorPoint(ctx context.Context) (string, error) {
	if e.opts.Cuts.Source != CutSourceESH || len(e.ref.NL) == 0 {
		return "", nil
	}
	if _, ok := e.interior.get(); ok {
		return "", nil
	}

	var point []float64
	var slack float64
	switch e.opts.Interior.Strategy {
	case InteriorFeasibilityNLP:
		// solve the continuous relaxation and take its optimum when it has a
		// slack certificate of its own
		out, err := e.nlp.SolveFixed(ctx, nil, e.ref.interiorStart(), e.opts.Limits.TimeNLPPerIter)
		if err != nil {
			e.logger.Print("interior search failed, ESH degrades to ECP: ", err)
			return "", nil
		}
		if out.Status != NLPStatusOptimal && out.Status != NLPStatusFeasible {
			e.logger.Print("feasibility NLP found no point, ESH degrades to ECP")
			return "", nil
		}
		point = out.Point
		slack = e.ref.minConstraintSlack(out.Point)
	default:
		out, err := e.nlp.SolveSlackMax(ctx, e.ref.interiorStart(), e.opts.Limits.TimeNLPPerIter)
		if err != nil {
			e.logger.Print("interior search failed, ESH degrades to ECP: ", err)
			return "", nil
		}
		point = out.Point
		slack = out.Objective
	}

	if !math.IsInf(slack, 0) && slack >= e.opts.Interior.MinSlack {
		e.interior.offer(point, slack)
		e.logger.Print("interior point found with slack ", slack)
	} else {
		e.logger.Print("no interior point with sufficient slack, ESH degrades to ECP")
	}
	return "", nil
}

func (e *environment) taskInitializeIteration(ctx context.Context) (string, error) {
	if prev := e.results.currentIteration(); prev != nil {
		prev.seal()
	}
	if e.results.NumIterations() >= e.opts.Limits.IterMax {
		e.results.terminate(TerminationIterationLimit, "iteration limit reached")
		return taskTerminate, nil
	}
	if time.Since(e.startTime) >= e.opts.Limits.TimeMax {
		e.results.terminate(TerminationTimeLimit, "time limit reached")
		return taskTerminate, nil
	}
	iter := e.results.newIteration()
	iter.IsDiscrete = e.problem.NumDiscrete() > 0
	e.points = nil
	return "", nil
}

func (e *environment) taskRelaxationStrategy(ctx context.Context) (string, error) {
	e.relaxed = e.relax.shouldRelax()
	iter := e.results.currentIteration()
	iter.RelaxedLP = e.relaxed
	iter.DualClass = e.dual.problemClass(e.relaxed)
	return "", nil
}

func (e *environment) taskSolutionLimitStrategy(ctx context.Context) (string, error) {
	e.solutionLimit = e.poolLimit.next(e.results.previousIteration(), e.results.PrimalBound())
	e.results.currentIteration().PoolLimit = e.solutionLimit
	return "", nil
}

func (e *environment) taskAddHyperplanes(ctx context.Context) (string, error) {
	iter := e.results.currentIteration()
	if _, err := e.dual.injectWaitingCuts(iter); err != nil {
		return "", err
	}
	if err := e.dual.applyCutoff(e.results.PrimalBound()); err != nil {
		return "", err
	}
	e.dual.warmStart()
	return "", nil
}

func (e *environment) taskSolveIteration(ctx context.Context) (string, error) {
	iter := e.results.currentIteration()
	t0 := time.Now()
	out, err := e.dual.solve(ctx, e.relaxed, e.solutionLimit)
	iter.SolveTime = time.Since(t0)
	if err != nil {
		return "", err
	}
	e.lastOutcome = out
	iter.DualStatus = out.Status
	iter.WasOptimal = out.Status == MIPStatusOptimal
	iter.ExploredNodes = out.ExploredNodes
	iter.OpenNodes = out.OpenNodes

	switch out.Status {
	case MIPStatusInfeasible:
		return "repair_infeasible_dual", nil
	case MIPStatusUnbounded:
		e.results.terminate(TerminationUnbounded, "dual problem is unbounded")
		return taskTerminate, nil
	}

	if iter.RepairDone {
		e.dual.repairSucceeded(iter)
	}
	e.dual.promoteBound(out)
	iter.DualBound = e.results.DualBound()

	e.points = e.dual.harvest(out, iter.Index)
	iter.SolutionPoints = e.points
	if sp, ok := iter.SolutionPointWithSmallestViolation(); ok {
		iter.MaxViolation = sp.MaxViolation
		iter.MaxViolationNLRow = sp.ViolatedNLRow
	}
	if e.relaxed {
		e.relax.noteOutcome(e.results.DualBound(), iter.MaxViolation, e.opts.Dual.FeasTol)
	}
	return "", nil
}

func (e *environment) taskRepairInfeasibleDual(ctx context.Context) (string, error) {
	iter := e.results.currentIteration()

	// an infeasible dual under an active cutoff proves the incumbent optimal:
	// the outer approximation never excludes feasible points, so nothing
	// better than the incumbent can exist.
	if e.dual.cutoffActive() && e.results.HasPrimalSolution() {
		e.results.setDualBound(e.results.PrimalBound())
		e.results.terminate(TerminationOptimal, "dual infeasible under the incumbent cutoff")
		return taskTerminate, nil
	}

	if e.pool.generatedCount() == 0 && e.pool.integerCutCount() == 0 {
		// nothing to repair: the linear relaxation itself is infeasible
		e.results.terminate(TerminationInfeasible, "linear relaxation is infeasible")
		return taskTerminate, nil
	}

	ok, err := e.dual.repair(iter)
	if err != nil {
		return "", err
	}
	if !ok {
		e.results.terminate(TerminationDualInfeasibilityBeyondRepair, "repair attempts exhausted")
		return taskTerminate, nil
	}
	return "solve_iteration", nil
}

func (e *environment) taskSelectPrimalCandidates(ctx context.Context) (string, error) {
	iter := e.results.currentIteration()
	e.primal.enqueue(e.points)
	e.primal.checkCandidates(iter.Index)
	iter.PrimalBound = e.results.PrimalBound()
	return "", nil
}

func (e *environment) taskSelectFixedNLP(ctx context.Context) (string, error) {
	if e.relaxed {
		// fractional assignments are useless to fix
		return "", nil
	}
	iter := e.results.currentIteration()
	candidates := e.primal.selectFixedNLPCandidates(e.points)
	if len(candidates) == 0 {
		return "", nil
	}
	if err := e.primal.runFixedNLPs(ctx, candidates, iter.Index); err != nil {
		return "", err
	}
	e.primal.excludeTested(candidates, iter.Index)
	iter.PrimalBound = e.results.PrimalBound()
	return "", nil
}

func (e *environment) taskSelectHyperplanePoints(ctx context.Context) (string, error) {
	e.selectHyperplanes(e.points, e.results.currentIteration().Index)
	return "", nil
}

func (e *environment) taskSelectObjectiveLinearization(ctx context.Context) (string, error) {
	e.selectObjectiveLinearizations(e.points, e.results.currentIteration().Index)
	return "", nil
}

func (e *environment) taskRefreshInteriorPoint(ctx context.Context) (string, error) {
	e.interior.revalidate(e.ref)
	return e.taskUpdateInteriorPoint(ctx)
}

func (e *environment) makeTaskCheckTermination(userCheck func()) taskFunc {
	return func(ctx context.Context) (string, error) {
		if userCheck != nil {
			userCheck()
		}
		if e.userStop.Load() {
			e.results.terminate(TerminationUserStop, "terminated on user request")
			return taskTerminate, nil
		}

		iter := e.results.currentIteration()

		// an optimal, integral, nonlinearly feasible dual solution closes the
		// problem regardless of the gap arithmetic. The incumbent check matters
		// when dual.feas_tol is looser than primal.feas_tol: the dual point can
		// pass here yet fail primal acceptance.
		if iter.WasOptimal && !e.relaxed && iter.MaxViolation <= e.opts.Dual.FeasTol &&
			len(iter.SolutionPoints) > 0 && e.results.HasPrimalSolution() {
			e.results.setDualBound(e.results.PrimalBound())
			e.results.terminate(TerminationOptimal, "dual optimum is feasible for the original problem")
			return taskTerminate, nil
		}
		if e.results.isAbsoluteGapMet(e.opts.Gap.AbsoluteTol) {
			e.results.terminate(TerminationGapAbsoluteMet, "absolute gap tolerance met")
			return taskTerminate, nil
		}
		if e.results.isRelativeGapMet(e.opts.Gap.RelativeTol) {
			e.results.terminate(TerminationGapRelativeMet, "relative gap tolerance met")
			return taskTerminate, nil
		}
		if e.stagnated() {
			e.results.terminate(TerminationObjectiveStagnation, "no progress over the stagnation window")
			return taskTerminate, nil
		}
		return "", nil
	}
}

// stagnated detects a dead loop: a full window of non-relaxed iterations with
// no new cuts waiting, no dual bound movement and no incumbent improvement.
func (e *environment) stagnated() bool {
	w := e.opts.Relaxation.StagnationWindow
	iters := e.results.Iterations()
	if len(iters) < w {
		return false
	}
	if e.pool.waitingCount() > 0 {
		return false
	}
	recent := iters[len(iters)-w:]
	for _, it := range recent {
		if it.RelaxedLP || it.CutsAdded > 0 {
			return false
		}
	}
	first, last := recent[0], recent[len(recent)-1]
	tol := e.opts.Relaxation.StagnationTol
	if math.Abs(last.DualBound-first.DualBound) > tol*math.Max(1, math.Abs(last.DualBound)) {
		return false
	}
	if last.PrimalBound < first.PrimalBound-tol {
		return false
	}
	return true
}

func (e *environment) makeTaskIterationReport(iterDone func()) taskFunc {
	return func(ctx context.Context) (string, error) {
		iter := e.results.currentIteration()
		e.logger.Print(fmt.Sprintf("iter %3d  %s/%s  dual %.6g  primal %.6g  gap %.3g  cuts +%d/%d  viol %.3g",
			iter.Index, iter.DualClass, iter.DualStatus,
			e.results.DualBound(), e.results.PrimalBound(), e.results.RelativeGap(),
			iter.CutsAdded, iter.CutsTotal, iter.MaxViolation))
		if iterDone != nil {
			iterDone()
		}
		return "initialize_iteration", nil
	}
}
