package minlp

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TerminationReason is the closed set of reasons a solve can end with.
type TerminationReason int

const (
	TerminationNone TerminationReason = iota
	TerminationOptimal
	TerminationGapAbsoluteMet
	TerminationGapRelativeMet
	TerminationTimeLimit
	TerminationIterationLimit
	TerminationInfeasible
	TerminationUnbounded
	TerminationDualInfeasibilityBeyondRepair
	TerminationUserStop
	TerminationNumericalFailure
	TerminationObjectiveStagnation
)

func (r TerminationReason) String() string {
	switch r {
	case TerminationNone:
		return "none"
	case TerminationOptimal:
		return "optimal"
	case TerminationGapAbsoluteMet:
		return "gap-absolute-met"
	case TerminationGapRelativeMet:
		return "gap-relative-met"
	case TerminationTimeLimit:
		return "time-limit"
	case TerminationIterationLimit:
		return "iteration-limit"
	case TerminationInfeasible:
		return "infeasible"
	case TerminationUnbounded:
		return "unbounded"
	case TerminationDualInfeasibilityBeyondRepair:
		return "dual-infeasibility-beyond-repair"
	case TerminationUserStop:
		return "user-stop"
	case TerminationNumericalFailure:
		return "numerical-failure"
	case TerminationObjectiveStagnation:
		return "objective-stagnation"
	default:
		return fmt.Sprintf("TerminationReason(%d)", int(r))
	}
}

// ModelStatus is the model-level return status exposed to embedders.
type ModelStatus int

const (
	ModelStatusNoSolution ModelStatus = iota
	ModelStatusOptimal
	ModelStatusFeasible
	ModelStatusInfeasibleProven
	ModelStatusUnbounded
	ModelStatusLimitReached
	ModelStatusError
)

func (s ModelStatus) String() string {
	switch s {
	case ModelStatusOptimal:
		return "optimal"
	case ModelStatusFeasible:
		return "feasible"
	case ModelStatusInfeasibleProven:
		return "infeasible-proven"
	case ModelStatusUnbounded:
		return "unbounded"
	case ModelStatusLimitReached:
		return "limit-reached"
	case ModelStatusNoSolution:
		return "no-solution"
	case ModelStatusError:
		return "error"
	default:
		return fmt.Sprintf("ModelStatus(%d)", int(s))
	}
}

// DualProblemClass describes what kind of problem the dual solve was.
type DualProblemClass int

const (
	DualClassLP DualProblemClass = iota
	DualClassQP
	DualClassMILP
	DualClassMIQP
	DualClassMIQCQP
)

func (c DualProblemClass) String() string {
	switch c {
	case DualClassLP:
		return "LP"
	case DualClassQP:
		return "QP"
	case DualClassMILP:
		return "MILP"
	case DualClassMIQP:
		return "MIQP"
	case DualClassMIQCQP:
		return "MIQCQP"
	default:
		return fmt.Sprintf("DualProblemClass(%d)", int(c))
	}
}

// PrimalSource tags where a primal candidate came from.
type PrimalSource int

const (
	PrimalSourceMIPIncumbent PrimalSource = iota
	PrimalSourceMIPSolutionPool
	PrimalSourceNLPFixed
	PrimalSourceRootsearch
	PrimalSourceInteriorSearch
	PrimalSourceLPRelaxation
)

func (s PrimalSource) String() string {
	switch s {
	case PrimalSourceMIPIncumbent:
		return "MIP-incumbent"
	case PrimalSourceMIPSolutionPool:
		return "MIP-solution-pool"
	case PrimalSourceNLPFixed:
		return "NLP-fixed"
	case PrimalSourceRootsearch:
		return "rootsearch"
	case PrimalSourceInteriorSearch:
		return "interior-search"
	case PrimalSourceLPRelaxation:
		return "LP-relaxation"
	default:
		return fmt.Sprintf("PrimalSource(%d)", int(s))
	}
}

// SolutionPoint is a candidate point in the extended space, as produced by
// the MILP pool, an NLP subproblem, or rootsearch.
type SolutionPoint struct {
	Point         []float64
	Objective     float64
	MaxViolation  float64
	ViolatedNLRow int
	Source        PrimalSource
	Iteration     int
}

// PrimalSolution is an accepted incumbent, in the original variable space,
// min-sense objective.
type PrimalSolution struct {
	Point        []float64
	Objective    float64
	Source       PrimalSource
	Iteration    int
	MaxViolation float64
}

// Iteration is the sealed per-cycle snapshot. It is a plain value holding
// indices and copied summaries only; it never points back into the engine.
type Iteration struct {
	Index      int
	DualClass  DualProblemClass
	IsDiscrete bool
	DualStatus MIPStatus

	SolutionPoints []SolutionPoint

	DualBound   float64
	PrimalBound float64

	CutsAdded        int
	CutsTotal        int
	IntegerCutsTotal int

	ExploredNodes int
	OpenNodes     int

	MaxViolation      float64
	MaxViolationNLRow int

	SolveTime    time.Duration
	WasOptimal   bool
	RelaxedLP    bool
	PoolLimit    int
	RepairDone   bool
	RepairWorked bool

	sealed bool
}

// SolutionPointWithSmallestViolation picks the pool point closest to
// nonlinear feasibility.
func (it *Iteration) SolutionPointWithSmallestViolation() (SolutionPoint, bool) {
	if len(it.SolutionPoints) == 0 {
		return SolutionPoint{}, false
	}
	best := it.SolutionPoints[0]
	for _, sp := range it.SolutionPoints[1:] {
		if sp.MaxViolation < best.MaxViolation {
			best = sp
		}
	}
	return best, true
}

// seal freezes the snapshot; sealed iterations are never mutated again.
func (it *Iteration) seal() {
	if it.sealed {
		panic("iteration sealed twice")
	}
	it.sealed = true
}

// relGapEpsilon guards the relative gap against division by zero.
const relGapEpsilon = 1e-10

// Results is the store for bounds, iteration snapshots, accepted primal
// solutions and the termination state. All values are min-sense internally.
type Results struct {
	mu sync.Mutex

	RunID string

	dualBound   float64
	primalBound float64

	primalSolutions []PrimalSolution
	sourceStats     map[PrimalSource]int
	candidateStats  map[PrimalSource]int
	auxCounters     map[AuxVariableType]int

	iterations []*Iteration

	terminationReason      TerminationReason
	terminationDescription string
}

func newResults() *Results {
	return &Results{
		RunID:          uuid.NewString(),
		dualBound:      math.Inf(-1),
		primalBound:    math.Inf(1),
		sourceStats:    make(map[PrimalSource]int),
		candidateStats: make(map[PrimalSource]int),
		auxCounters:    make(map[AuxVariableType]int),
	}
}

// setDualBound promotes a candidate dual bound. The global dual bound is
// monotone non-decreasing; weaker candidates are ignored.
func (r *Results) setDualBound(v float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if math.IsNaN(v) || v <= r.dualBound {
		return false
	}
	r.dualBound = v
	return true
}

// addPrimalSolution installs a validated incumbent. The primal bound is
// monotone non-increasing; the caller is responsible for the improvement
// check, this only enforces the invariant.
func (r *Results) addPrimalSolution(sol PrimalSolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sol.Objective > r.primalBound {
		panic("primal bound regression: incumbent worse than current bound")
	}
	r.primalBound = sol.Objective
	r.primalSolutions = append(r.primalSolutions, sol)
	r.sourceStats[sol.Source]++
}

func (r *Results) DualBound() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dualBound
}

func (r *Results) PrimalBound() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primalBound
}

// AbsoluteGap is primal − dual.
func (r *Results) AbsoluteGap() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primalBound - r.dualBound
}

// RelativeGap is (primal − dual) / max(|primal|, ε).
func (r *Results) RelativeGap() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.primalBound - r.dualBound) / math.Max(math.Abs(r.primalBound), relGapEpsilon)
}

func (r *Results) isAbsoluteGapMet(tol float64) bool {
	g := r.AbsoluteGap()
	return !math.IsNaN(g) && !math.IsInf(g, 0) && g <= tol
}

func (r *Results) isRelativeGapMet(tol float64) bool {
	g := r.RelativeGap()
	return !math.IsNaN(g) && !math.IsInf(g, 0) && g <= tol
}

// HasPrimalSolution reports whether any incumbent was accepted.
func (r *Results) HasPrimalSolution() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.primalSolutions) > 0
}

// BestPrimalSolution returns the current incumbent.
func (r *Results) BestPrimalSolution() (PrimalSolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.primalSolutions) == 0 {
		return PrimalSolution{}, false
	}
	return r.primalSolutions[len(r.primalSolutions)-1], true
}

// PrimalSolutions returns the acceptance history, oldest first.
func (r *Results) PrimalSolutions() []PrimalSolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PrimalSolution(nil), r.primalSolutions...)
}

// countCandidate records that a candidate from the given source was checked,
// accepted or not.
func (r *Results) countCandidate(src PrimalSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidateStats[src]++
}

// CandidateStatistics counts checked primal candidates per source.
func (r *Results) CandidateStatistics() map[PrimalSource]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[PrimalSource]int, len(r.candidateStats))
	for k, v := range r.candidateStats {
		out[k] = v
	}
	return out
}

// SourceStatistics counts accepted primal solutions per source.
func (r *Results) SourceStatistics() map[PrimalSource]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[PrimalSource]int, len(r.sourceStats))
	for k, v := range r.sourceStats {
		out[k] = v
	}
	return out
}

func (r *Results) countAuxVariable(t AuxVariableType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auxCounters[t]++
}

// AuxVariableCount reports how many auxiliaries of the given type the
// reformulation introduced.
func (r *Results) AuxVariableCount(t AuxVariableType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auxCounters[t]
}

// newIteration opens the next snapshot.
func (r *Results) newIteration() *Iteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := &Iteration{
		Index:             len(r.iterations),
		MaxViolationNLRow: -1,
	}
	r.iterations = append(r.iterations, it)
	return it
}

func (r *Results) currentIteration() *Iteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.iterations) == 0 {
		return nil
	}
	return r.iterations[len(r.iterations)-1]
}

func (r *Results) previousIteration() *Iteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.iterations) < 2 {
		return nil
	}
	return r.iterations[len(r.iterations)-2]
}

// lastFeasibleIteration returns the most recent iteration whose dual solve
// produced at least one solution point.
func (r *Results) lastFeasibleIteration() (*Iteration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.iterations) - 1; i >= 0; i-- {
		if len(r.iterations[i].SolutionPoints) > 0 {
			return r.iterations[i], true
		}
	}
	return nil, false
}

// Iterations returns the ordered snapshots.
func (r *Results) Iterations() []*Iteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Iteration(nil), r.iterations...)
}

func (r *Results) NumIterations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.iterations)
}

func (r *Results) terminate(reason TerminationReason, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminationReason != TerminationNone {
		return
	}
	r.terminationReason = reason
	r.terminationDescription = description
}

func (r *Results) TerminationReason() TerminationReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminationReason
}

func (r *Results) TerminationDescription() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminationDescription
}

func (r *Results) terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminationReason != TerminationNone
}

// ModelReturnStatus maps the termination state to the model-level status.
func (r *Results) ModelReturnStatus() ModelStatus {
	r.mu.Lock()
	reason := r.terminationReason
	hasPrimal := len(r.primalSolutions) > 0
	r.mu.Unlock()

	switch reason {
	case TerminationOptimal, TerminationGapAbsoluteMet, TerminationGapRelativeMet:
		return ModelStatusOptimal
	case TerminationInfeasible:
		return ModelStatusInfeasibleProven
	case TerminationUnbounded:
		return ModelStatusUnbounded
	case TerminationTimeLimit, TerminationIterationLimit, TerminationUserStop, TerminationObjectiveStagnation:
		if hasPrimal {
			return ModelStatusFeasible
		}
		return ModelStatusLimitReached
	case TerminationNumericalFailure, TerminationDualInfeasibilityBeyondRepair:
		if hasPrimal {
			return ModelStatusFeasible
		}
		return ModelStatusError
	default:
		if hasPrimal {
			return ModelStatusFeasible
		}
		return ModelStatusNoSolution
	}
}
