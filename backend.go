package minlp

import (
	"context"
	"fmt"
	"time"
)

// ModelVariable is a column of the dual (MILP) model.
type ModelVariable struct {
	Name    string
	Integer bool
	LB      float64
	UB      float64
}

// LinearRow is a two-sided sparse linear row: LB ≤ Coeffs·x ≤ UB.
type LinearRow struct {
	Name   string
	Coeffs map[int]float64
	LB     float64
	UB     float64
}

// DualModel is what an MILP backend consumes: the linear and integral parts
// of P̂, with nonlinear parts represented exclusively by the hyperplane rows
// added incrementally afterwards.
type DualModel struct {
	Vars        []ModelVariable
	Objective   []float64
	ObjConstant float64
	Rows        []LinearRow
}

// MIPStatus is the outcome class of one dual solve.
type MIPStatus int

const (
	MIPStatusOptimal MIPStatus = iota
	MIPStatusFeasible
	MIPStatusInfeasible
	MIPStatusUnbounded
	MIPStatusLimit
	MIPStatusError
)

func (s MIPStatus) String() string {
	switch s {
	case MIPStatusOptimal:
		return "optimal"
	case MIPStatusFeasible:
		return "feasible"
	case MIPStatusInfeasible:
		return "infeasible"
	case MIPStatusUnbounded:
		return "unbounded"
	case MIPStatusLimit:
		return "limit"
	case MIPStatusError:
		return "error"
	default:
		return fmt.Sprintf("MIPStatus(%d)", int(s))
	}
}

// PoolSolution is one entry of the solution pool returned by a dual solve.
type PoolSolution struct {
	Point     []float64
	Objective float64
}

// MIPOutcome is the result of one dual solve. BestBound is the proved lower
// envelope of the branch-and-bound search and is the only value that may be
// promoted to the dual bound when the solve did not reach optimality.
type MIPOutcome struct {
	Status        MIPStatus
	Objective     float64
	BestBound     float64
	Pool          []PoolSolution
	ExploredNodes int
	OpenNodes     int
}

// HasSolution reports whether the outcome carries at least one feasible point.
func (o MIPOutcome) HasSolution() bool { return len(o.Pool) > 0 }

// CallbackDecision is returned by the single-tree candidate handler.
// When LazyRows is non-empty the candidate is rejected and the rows become
// part of the model for the remainder of the tree.
type CallbackDecision struct {
	Accept   bool
	LazyRows []LinearRow
	Abort    bool
}

// CandidateHandler is invoked by a lazy-capable MILP backend at every
// integer-feasible candidate. The backend must not invoke it concurrently.
type CandidateHandler func(point []float64, objective float64) CallbackDecision

// MIPSolver is the narrow contract the dual engine assumes of any MILP
// backend.
type MIPSolver interface {
	// Load replaces the model. Rows added later via AddRow come on top.
	Load(m *DualModel) error

	// AddRow appends a row and returns an identifier usable with RemoveRows.
	AddRow(r LinearRow) (int, error)

	// RemoveRows drops previously added rows (infeasibility repair).
	RemoveRows(ids []int) error

	SetVariableBounds(i int, lb, ub float64) error

	// PresolveBounds runs a cheap bound-tightening pass over the loaded model
	// and returns the tightened variable set, or nil when the backend does
	// not presolve.
	PresolveBounds() []ModelVariable

	// FixVariables pins variables to values for subsequent solves;
	// UnfixVariables restores the loaded bounds.
	FixVariables(fixed map[int]float64) error
	UnfixVariables()

	// SetCutoff discards solutions with objective ≥ value. NaN clears it.
	SetCutoff(value float64)

	// SetSolutionLimit stops a solve once n solutions were found; 0 means
	// no limit.
	SetSolutionLimit(n int)

	// SetRelaxed toggles the continuous relaxation of the integrality
	// constraints.
	SetRelaxed(relaxed bool)

	// SetStartingPoint feeds a MIP start; backends may ignore it.
	SetStartingPoint(x []float64)

	SetTimeLimit(d time.Duration)

	Solve(ctx context.Context) (MIPOutcome, error)

	// SolveWithCallback runs a single branch-and-cut tree, invoking handler
	// at integer-feasible candidates. Only valid when
	// SupportsLazyConstraints reports true.
	SolveWithCallback(ctx context.Context, handler CandidateHandler) (MIPOutcome, error)

	SupportsLazyConstraints() bool
	SupportsQuadraticObjective() bool
	SupportsQuadraticConstraints() bool
}

// NLPStatus is the outcome class of one NLP solve.
type NLPStatus int

const (
	NLPStatusOptimal NLPStatus = iota
	NLPStatusFeasible
	NLPStatusInfeasibleLocal
	NLPStatusUnbounded
	NLPStatusLimit
	NLPStatusError
)

func (s NLPStatus) String() string {
	switch s {
	case NLPStatusOptimal:
		return "optimal"
	case NLPStatusFeasible:
		return "feasible"
	case NLPStatusInfeasibleLocal:
		return "infeasible-local"
	case NLPStatusUnbounded:
		return "unbounded"
	case NLPStatusLimit:
		return "limit"
	case NLPStatusError:
		return "error"
	default:
		return fmt.Sprintf("NLPStatus(%d)", int(s))
	}
}

// NLPOutcome is the result of one NLP solve. Point is in the original
// variable space; Objective is min-sense.
type NLPOutcome struct {
	Status       NLPStatus
	Point        []float64
	Objective    float64
	MaxViolation float64
	Iterations   int
}

// NLPSolver is the contract the primal engine and the interior-point service
// assume of any NLP backend.
type NLPSolver interface {
	// Load installs the problem view all subsequent solves refer to.
	Load(ref *Reformulation) error

	// SolveFixed minimizes the original objective over the continuous
	// variables with the given variables pinned to values.
	SolveFixed(ctx context.Context, fixed map[int]float64, start []float64, timeLimit time.Duration) (NLPOutcome, error)

	// SolveSlackMax solves the continuous relaxation with a
	// slack-maximization objective: the outcome's Objective is the achieved
	// minimum slack min_i(−g_i(x)) and Point the interior candidate.
	SolveSlackMax(ctx context.Context, start []float64, timeLimit time.Duration) (NLPOutcome, error)
}
