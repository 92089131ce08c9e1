// Package highsmip adapts the HiGHS solver (via cgo) as a dual backend.
// HiGHS is considerably faster than the bundled simplex search on larger
// models but offers no lazy-constraint callback, so it serves the multi-tree
// strategy only.
package highsmip

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/lanl/highs"
	"github.com/pkg/errors"

	"github.com/jjhbw/minlp"
)

// cutoffSlack is subtracted from the cutoff when it is emulated as a row.
const cutoffSlack = 1e-9

// Solver implements minlp.MIPSolver on top of github.com/lanl/highs. The
// HiGHS model is rebuilt from scratch on every Solve; the C-side handle holds
// no incremental state worth preserving.
type Solver struct {
	model *minlp.DualModel

	extraIDs  []int
	extraRows map[int]minlp.LinearRow
	nextRowID int

	fixed     map[int]float64
	cutoff    float64
	relaxed   bool
	timeLimit time.Duration
}

func New() *Solver {
	return &Solver{
		extraRows: make(map[int]minlp.LinearRow),
		fixed:     make(map[int]float64),
		cutoff:    math.NaN(),
		timeLimit: time.Hour,
	}
}

func (s *Solver) Load(m *minlp.DualModel) error {
	if m == nil || len(m.Vars) == 0 {
		return errors.New("empty model")
	}
	s.model = m
	s.extraIDs = nil
	s.extraRows = make(map[int]minlp.LinearRow)
	s.nextRowID = 0
	s.fixed = make(map[int]float64)
	s.cutoff = math.NaN()
	return nil
}

func (s *Solver) AddRow(r minlp.LinearRow) (int, error) {
	if s.model == nil {
		return 0, errors.New("no model loaded")
	}
	for i := range r.Coeffs {
		if i < 0 || i >= len(s.model.Vars) {
			return 0, errors.Errorf("row %q references unknown variable %d", r.Name, i)
		}
	}
	id := s.nextRowID
	s.nextRowID++
	s.extraIDs = append(s.extraIDs, id)
	s.extraRows[id] = r
	return id, nil
}

func (s *Solver) RemoveRows(ids []int) error {
	for _, id := range ids {
		if _, ok := s.extraRows[id]; !ok {
			return errors.Errorf("unknown row id %d", id)
		}
		delete(s.extraRows, id)
	}
	keep := s.extraIDs[:0]
	for _, id := range s.extraIDs {
		if _, ok := s.extraRows[id]; ok {
			keep = append(keep, id)
		}
	}
	s.extraIDs = keep
	return nil
}

func (s *Solver) SetVariableBounds(i int, lb, ub float64) error {
	if s.model == nil || i < 0 || i >= len(s.model.Vars) {
		return errors.Errorf("unknown variable %d", i)
	}
	if lb > ub {
		return errors.Errorf("crossing bounds for variable %d", i)
	}
	s.model.Vars[i].LB = lb
	s.model.Vars[i].UB = ub
	return nil
}

// PresolveBounds defers to the HiGHS internal presolve; nothing is pulled
// back out.
func (s *Solver) PresolveBounds() []minlp.ModelVariable { return nil }

func (s *Solver) FixVariables(fixed map[int]float64) error {
	for i := range fixed {
		if i < 0 || i >= len(s.model.Vars) {
			return errors.Errorf("unknown variable %d", i)
		}
	}
	s.fixed = make(map[int]float64, len(fixed))
	for i, v := range fixed {
		s.fixed[i] = v
	}
	return nil
}

func (s *Solver) UnfixVariables() { s.fixed = make(map[int]float64) }

func (s *Solver) SetCutoff(value float64)         { s.cutoff = value }
func (s *Solver) SetSolutionLimit(n int)          {} // HiGHS keeps one incumbent
func (s *Solver) SetRelaxed(relaxed bool)         { s.relaxed = relaxed }
func (s *Solver) SetStartingPoint(x []float64)    {} // no MIP start through this binding
func (s *Solver) SetTimeLimit(d time.Duration)    { s.timeLimit = d }

func (s *Solver) SupportsLazyConstraints() bool      { return false }
func (s *Solver) SupportsQuadraticObjective() bool   { return false }
func (s *Solver) SupportsQuadraticConstraints() bool { return false }

func (s *Solver) SolveWithCallback(ctx context.Context, handler minlp.CandidateHandler) (minlp.MIPOutcome, error) {
	return minlp.MIPOutcome{Status: minlp.MIPStatusError},
		errors.New("the HiGHS binding exposes no lazy-constraint callback")
}

func (s *Solver) Solve(ctx context.Context) (minlp.MIPOutcome, error) {
	if s.model == nil {
		return minlp.MIPOutcome{Status: minlp.MIPStatusError}, errors.New("no model loaded")
	}
	if err := ctx.Err(); err != nil {
		return minlp.MIPOutcome{Status: minlp.MIPStatusLimit}, nil
	}

	lp := s.build()
	solution, err := lp.Solve()
	if err != nil {
		return minlp.MIPOutcome{Status: minlp.MIPStatusError}, errors.Wrap(err, "HiGHS solve")
	}

	// the binding exports only the Optimal constant; the remaining statuses
	// go by name
	status := minlp.MIPStatusError
	if solution.Status == highs.Optimal {
		status = minlp.MIPStatusOptimal
	} else {
		name := strings.ToLower(solution.Status.String())
		switch {
		case strings.Contains(name, "infeasible"):
			status = minlp.MIPStatusInfeasible
		case strings.Contains(name, "unbounded"):
			status = minlp.MIPStatusUnbounded
		case strings.Contains(name, "limit"), strings.Contains(name, "interrupt"):
			status = minlp.MIPStatusLimit
		}
	}
	out := minlp.MIPOutcome{Status: status}
	switch status {
	case minlp.MIPStatusOptimal:
		point := append([]float64(nil), solution.ColumnPrimal[:len(s.model.Vars)]...)
		obj := solution.Objective + s.model.ObjConstant
		out.Objective = obj
		out.BestBound = obj
		out.Pool = []minlp.PoolSolution{{Point: point, Objective: obj}}
	case minlp.MIPStatusInfeasible:
		out.BestBound = math.Inf(1)
	default:
		out.BestBound = math.Inf(-1)
	}
	return out, nil
}

// build assembles a fresh HiGHS model from the loaded state: columns, the
// loaded rows, the surviving cut rows and, when set, the cutoff row.
func (s *Solver) build() *highs.Model {
	n := len(s.model.Vars)
	lp := new(highs.Model)
	lp.VarTypes = make([]highs.VariableType, n)
	lp.ColLower = make([]float64, n)
	lp.ColUpper = make([]float64, n)
	lp.ColCosts = append([]float64(nil), s.model.Objective...)

	for i, v := range s.model.Vars {
		if v.Integer && !s.relaxed {
			lp.VarTypes[i] = highs.IntegerType
		}
		lp.ColLower[i] = v.LB
		lp.ColUpper[i] = v.UB
	}
	for i, v := range s.fixed {
		lp.ColLower[i] = v
		lp.ColUpper[i] = v
	}

	addRow := func(r minlp.LinearRow) {
		dense := make([]float64, n)
		for i, a := range r.Coeffs {
			dense[i] = a
		}
		lp.AddDenseRow(r.LB, dense, r.UB)
	}
	for _, r := range s.model.Rows {
		addRow(r)
	}
	for _, id := range s.extraIDs {
		addRow(s.extraRows[id])
	}
	if !math.IsNaN(s.cutoff) {
		dense := append([]float64(nil), s.model.Objective...)
		lp.AddDenseRow(math.Inf(-1), dense, s.cutoff-s.model.ObjConstant-cutoffSlack)
	}
	return lp
}
