package minlp

import (
	"container/heap"
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// integrality tolerance of the bundled backend
const intTol = 1e-7

// pruneTol keeps nodes whose relaxation ties the incumbent alive, so the
// solution pool can pick up alternative optima.
const pruneTol = 1e-9

// BranchHeuristic selects the variable to branch on.
type BranchHeuristic int

const (
	// BranchMostInfeasible picks the variable with the fractional part
	// closest to 1/2.
	BranchMostInfeasible BranchHeuristic = iota

	// BranchNaive picks the first fractional integer variable.
	BranchNaive
)

// bnbDecision documents what the search did with a subproblem solution.
type bnbDecision string

const (
	subproblemIsDegenerate       bnbDecision = "subproblem contains a degenerate (singular) matrix"
	subproblemNotFeasible        bnbDecision = "subproblem has no feasible solution"
	worseThanIncumbent           bnbDecision = "worse than incumbent"
	betterThanIncumbentBranching bnbDecision = "better than incumbent but not integer feasible, so branching"
	betterThanIncumbentFeasible  bnbDecision = "better than incumbent and integer feasible, so replacing incumbent"
	candidateRejectedByCallback  bnbDecision = "integer feasible but rejected by the callback, resolving with lazy rows"
)

// searchMiddleware receives every subproblem solution and the decision taken
// on it. Used by tests and diagnostics; must not mutate its arguments.
type searchMiddleware interface {
	ProcessDecision(solution, bnbDecision)
}

type dummyMiddleware struct{}

func (dummyMiddleware) ProcessDecision(solution, bnbDecision) {}

// branchAndCutSolver is the bundled MILP backend: best-first branch-and-bound
// over gonum's simplex, with removable cut rows and an emulated lazy
// constraint callback. It is not safe for concurrent use.
type branchAndCutSolver struct {
	model *DualModel

	// removable rows on top of the loaded model, in insertion order
	extraIDs  []int
	extraRows map[int]LinearRow
	nextRowID int

	fixed         map[int]float64
	cutoff        float64
	solutionLimit int
	relaxed       bool
	start         []float64
	timeLimit     time.Duration

	heuristic  BranchHeuristic
	middleware searchMiddleware
}

func newBranchAndCutSolver() *branchAndCutSolver {
	return &branchAndCutSolver{
		extraRows:  make(map[int]LinearRow),
		fixed:      make(map[int]float64),
		cutoff:     math.NaN(),
		timeLimit:  time.Hour,
		heuristic:  BranchMostInfeasible,
		middleware: dummyMiddleware{},
	}
}

func (s *branchAndCutSolver) Load(m *DualModel) error {
	if m == nil || len(m.Vars) == 0 {
		return errors.New("empty model")
	}
	if len(m.Objective) != len(m.Vars) {
		return errors.New("objective length does not match variable count")
	}
	s.model = m
	s.extraIDs = nil
	s.extraRows = make(map[int]LinearRow)
	s.nextRowID = 0
	s.fixed = make(map[int]float64)
	s.cutoff = math.NaN()
	return nil
}

func (s *branchAndCutSolver) AddRow(r LinearRow) (int, error) {
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

func (s *branchAndCutSolver) RemoveRows(ids []int) error {
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

func (s *branchAndCutSolver) SetVariableBounds(i int, lb, ub float64) error {
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

// PresolveBounds runs one pass of singleton-row bound tightening plus integer
// bound rounding.
func (s *branchAndCutSolver) PresolveBounds() []ModelVariable {
	if s.model == nil {
		return nil
	}
	vars := append([]ModelVariable(nil), s.model.Vars...)
	for _, row := range s.model.Rows {
		if len(row.Coeffs) != 1 {
			continue
		}
		for i, a := range row.Coeffs {
			if a == 0 {
				continue
			}
			lo, hi := row.LB/a, row.UB/a
			if a < 0 {
				lo, hi = hi, lo
			}
			if lo > vars[i].LB {
				vars[i].LB = lo
			}
			if hi < vars[i].UB {
				vars[i].UB = hi
			}
		}
	}
	for i := range vars {
		if vars[i].Integer {
			vars[i].LB = math.Ceil(vars[i].LB - intTol)
			vars[i].UB = math.Floor(vars[i].UB + intTol)
		}
	}
	return vars
}

func (s *branchAndCutSolver) FixVariables(fixed map[int]float64) error {
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

func (s *branchAndCutSolver) UnfixVariables() {
	s.fixed = make(map[int]float64)
}

func (s *branchAndCutSolver) SetCutoff(value float64) { s.cutoff = value }
func (s *branchAndCutSolver) SetSolutionLimit(n int)  { s.solutionLimit = n }
func (s *branchAndCutSolver) SetRelaxed(relaxed bool) { s.relaxed = relaxed }
func (s *branchAndCutSolver) SetStartingPoint(x []float64) {
	// the simplex backend has no warm start; kept for interface symmetry
	s.start = append([]float64(nil), x...)
}
func (s *branchAndCutSolver) SetTimeLimit(d time.Duration) { s.timeLimit = d }

func (s *branchAndCutSolver) SupportsLazyConstraints() bool      { return true }
func (s *branchAndCutSolver) SupportsQuadraticObjective() bool   { return false }
func (s *branchAndCutSolver) SupportsQuadraticConstraints() bool { return false }

func (s *branchAndCutSolver) Solve(ctx context.Context) (MIPOutcome, error) {
	return s.search(ctx, nil)
}

func (s *branchAndCutSolver) SolveWithCallback(ctx context.Context, handler CandidateHandler) (MIPOutcome, error) {
	if handler == nil {
		return MIPOutcome{Status: MIPStatusError}, errors.New("nil candidate handler")
	}
	return s.search(ctx, handler)
}

// subProblem is one node of the enumeration tree: the loaded model plus the
// bound tightenings accumulated by branching. The slices are copied on branch
// so sibling nodes never alias.
type subProblem struct {
	id     int64
	parent int64
	lb, ub []float64
	depth  int
}

// solution pairs a subproblem with its relaxation result.
type solution struct {
	problem *subProblem
	x       []float64
	z       float64
	err     error
}

// branch splits the solution on the given variable at its fractional value.
func (sol solution) branch(branchOn int, nextID *int64) (down, up subProblem) {
	v := sol.x[branchOn]
	down = sol.problem.childWithBounds(branchOn, sol.problem.lb[branchOn], math.Floor(v), nextID)
	up = sol.problem.childWithBounds(branchOn, math.Floor(v)+1, sol.problem.ub[branchOn], nextID)
	return
}

func (p *subProblem) childWithBounds(i int, lb, ub float64, nextID *int64) subProblem {
	*nextID++
	child := subProblem{
		id:     *nextID,
		parent: p.id,
		lb:     append([]float64(nil), p.lb...),
		ub:     append([]float64(nil), p.ub...),
		depth:  p.depth + 1,
	}
	child.lb[i] = lb
	child.ub[i] = ub
	return child
}

// nodeHeap orders the open nodes by their relaxation bound, best (smallest)
// first.
type nodeHeap []solution

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].z < h[j].z }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(solution)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// search runs the best-first branch-and-bound loop. With a handler it behaves
// like a lazy-constraint tree: rejected candidates get their node re-solved
// under the returned rows, and stale candidates that violate rows added in the
// meantime are re-solved without bothering the handler again.
func (s *branchAndCutSolver) search(ctx context.Context, handler CandidateHandler) (MIPOutcome, error) {
	if s.model == nil {
		return MIPOutcome{Status: MIPStatusError}, errors.New("no model loaded")
	}
	deadline := time.Now().Add(s.timeLimit)

	// rows the callback added during this search
	var lazyRows []LinearRow

	lb, ub := s.rootBounds()
	var nextID int64
	root := subProblem{lb: lb, ub: ub}

	rootSol := s.solveRelaxation(&root, lazyRows)
	if rootSol.err != nil {
		return s.outcomeForRootError(rootSol.err)
	}
	rootBound := rootSol.z

	if s.relaxed {
		return MIPOutcome{
			Status:        MIPStatusOptimal,
			Objective:     rootSol.z + s.model.ObjConstant,
			BestBound:     rootSol.z + s.model.ObjConstant,
			Pool:          []PoolSolution{{Point: rootSol.x, Objective: rootSol.z + s.model.ObjConstant}},
			ExploredNodes: 1,
		}, nil
	}

	integral := s.integralityMask()

	open := nodeHeap{rootSol}

	incumbentZ := math.Inf(1)
	var pool []PoolSolution
	seen := make(map[uint64]struct{})
	explored := 0
	status := MIPStatusOptimal
	aborted := false

search:
	for len(open) > 0 {
		if ctx.Err() != nil || time.Now().After(deadline) {
			status = MIPStatusLimit
			break
		}

		cand := heap.Pop(&open).(solution)
		explored++

		if cand.z > incumbentZ+pruneTol {
			s.middleware.ProcessDecision(cand, worseThanIncumbent)
			continue
		}
		if !math.IsNaN(s.cutoff) && cand.z+s.model.ObjConstant >= s.cutoff {
			s.middleware.ProcessDecision(cand, worseThanIncumbent)
			continue
		}

		if allIntegral(integral, cand.x) {
			point := s.roundIntegral(cand.x)

			if handler != nil {
				// a node solved before the latest lazy rows arrived may
				// produce a point those rows already exclude
				if violatesRows(point, lazyRows) {
					resolved := s.solveRelaxation(cand.problem, lazyRows)
					if resolved.err == nil {
						heap.Push(&open, resolved)
					} else {
						s.middleware.ProcessDecision(resolved, translateSolverFailure(resolved.err))
					}
					continue
				}
				decision := handler(point, cand.z+s.model.ObjConstant)
				if decision.Abort {
					status = MIPStatusLimit
					aborted = true
					break search
				}
				if len(decision.LazyRows) > 0 {
					s.middleware.ProcessDecision(cand, candidateRejectedByCallback)
					lazyRows = append(lazyRows, decision.LazyRows...)
					resolved := s.solveRelaxation(cand.problem, lazyRows)
					if resolved.err == nil {
						heap.Push(&open, resolved)
					} else {
						s.middleware.ProcessDecision(resolved, translateSolverFailure(resolved.err))
					}
					continue
				}
				if !decision.Accept {
					continue
				}
			}

			s.middleware.ProcessDecision(cand, betterThanIncumbentFeasible)
			h := hashPoint(point, integral)
			if _, dup := seen[h]; !dup {
				seen[h] = struct{}{}
				pool = append(pool, PoolSolution{Point: point, Objective: cand.z})
				if cand.z < incumbentZ {
					incumbentZ = cand.z
				}
				if s.solutionLimit > 0 && len(pool) >= s.solutionLimit {
					status = MIPStatusFeasible
					break search
				}
			}
			continue
		}

		// fractional: branch
		s.middleware.ProcessDecision(cand, betterThanIncumbentBranching)
		branchOn := s.pickBranchVariable(cand, integral)
		down, up := cand.branch(branchOn, &nextID)
		for _, child := range []subProblem{down, up} {
			if child.lb[branchOn] > child.ub[branchOn] {
				continue
			}
			c := child
			childSol := s.solveRelaxation(&c, lazyRows)
			if childSol.err != nil {
				s.middleware.ProcessDecision(childSol, translateSolverFailure(childSol.err))
				continue
			}
			if childSol.z > incumbentZ+pruneTol {
				s.middleware.ProcessDecision(childSol, worseThanIncumbent)
				continue
			}
			heap.Push(&open, childSol)
		}
	}

	out := MIPOutcome{
		Status:        status,
		ExploredNodes: explored,
		OpenNodes:     len(open),
	}

	// the proved lower envelope: the incumbent when the tree was exhausted,
	// otherwise the best open relaxation capped by the incumbent (in
	// best-first order every open node can sit above a solution already in
	// the pool), the root bound as a last resort
	switch {
	case len(open) == 0 && len(pool) > 0 && !aborted && status == MIPStatusOptimal:
		out.BestBound = incumbentZ + s.model.ObjConstant
	case len(open) > 0:
		out.BestBound = math.Min(open[0].z, incumbentZ) + s.model.ObjConstant
	default:
		out.BestBound = rootBound + s.model.ObjConstant
	}

	if len(pool) == 0 {
		if out.Status == MIPStatusOptimal {
			// tree exhausted without a single integer-feasible point
			out.Status = MIPStatusInfeasible
			out.BestBound = math.Inf(1)
		}
		return out, nil
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Objective < pool[j].Objective })
	for i := range pool {
		pool[i].Objective += s.model.ObjConstant
	}
	out.Pool = pool
	out.Objective = pool[0].Objective
	return out, nil
}

func (s *branchAndCutSolver) outcomeForRootError(err error) (MIPOutcome, error) {
	switch errors.Cause(err) {
	case lp.ErrInfeasible:
		return MIPOutcome{Status: MIPStatusInfeasible, BestBound: math.Inf(1)}, nil
	case lp.ErrUnbounded:
		return MIPOutcome{Status: MIPStatusUnbounded, BestBound: math.Inf(-1)}, nil
	default:
		return MIPOutcome{Status: MIPStatusError}, err
	}
}

// rootBounds merges the loaded bounds with the fixed variables.
func (s *branchAndCutSolver) rootBounds() (lb, ub []float64) {
	n := len(s.model.Vars)
	lb = make([]float64, n)
	ub = make([]float64, n)
	for i, v := range s.model.Vars {
		lb[i], ub[i] = v.LB, v.UB
	}
	for i, v := range s.fixed {
		lb[i], ub[i] = v, v
	}
	return
}

func (s *branchAndCutSolver) integralityMask() []bool {
	mask := make([]bool, len(s.model.Vars))
	for i, v := range s.model.Vars {
		mask[i] = v.Integer
	}
	return mask
}

func allIntegral(mask []bool, x []float64) bool {
	for i := range x {
		if mask[i] && math.Abs(x[i]-math.Round(x[i])) > intTol {
			return false
		}
	}
	return true
}

func (s *branchAndCutSolver) roundIntegral(x []float64) []float64 {
	out := append([]float64(nil), x...)
	for i, v := range s.model.Vars {
		if v.Integer {
			out[i] = math.Round(out[i])
		}
	}
	return out
}

func violatesRows(x []float64, rows []LinearRow) bool {
	for _, r := range rows {
		ax := 0.0
		for i, a := range r.Coeffs {
			ax += a * x[i]
		}
		if ax > r.UB+pruneTol || ax < r.LB-pruneTol {
			return true
		}
	}
	return false
}

func hashPoint(x []float64, mask []bool) uint64 {
	// FNV-1a over the integral coordinates
	h := uint64(14695981039346656037)
	for i, v := range x {
		if !mask[i] {
			continue
		}
		r := uint64(int64(math.Round(v)))
		for b := uint(0); b < 8; b++ {
			h ^= (r >> (8 * b)) & 0xff
			h *= 1099511628211
		}
	}
	return h
}

// pickBranchVariable applies the configured heuristic to a fractional
// solution.
func (s *branchAndCutSolver) pickBranchVariable(sol solution, mask []bool) int {
	switch s.heuristic {
	case BranchNaive:
		for i, v := range sol.x {
			if mask[i] && math.Abs(v-math.Round(v)) > intTol {
				return i
			}
		}
	default:
		// most infeasible: fractional part closest to 1/2
		best, bestDist := -1, math.Inf(1)
		for i, v := range sol.x {
			if !mask[i] {
				continue
			}
			f := v - math.Floor(v)
			if f < intTol || f > 1-intTol {
				continue
			}
			if d := math.Abs(f - 0.5); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			return best
		}
	}
	panic("no fractional variable to branch on")
}

// takes a solver failure and determines whether it warrants a panic or
// whether it is expected.
func translateSolverFailure(err error) bnbDecision {
	switch errors.Cause(err) {
	case lp.ErrInfeasible:
		return subproblemNotFeasible
	case lp.ErrSingular:
		return subproblemIsDegenerate
	case lp.ErrUnbounded:
		// an unbounded child under finite branching bounds means bad numerics
		return subproblemIsDegenerate
	}
	panic(err)
}

// solveRelaxation builds the standard-form LP of one node and runs the
// simplex on it.
func (s *branchAndCutSolver) solveRelaxation(p *subProblem, lazyRows []LinearRow) solution {
	form := s.buildStandardForm(p, lazyRows)
	if form.err != nil {
		return solution{problem: p, err: form.err}
	}

	var z float64
	var t []float64
	var err error
	if form.G != nil {
		c, A, b := convertToEqualities(form.c, form.A, form.b, form.G, form.h)
		z, t, err = lp.Simplex(c, A, b, 0, nil)
		if err == nil {
			t = t[:len(form.c)]
		}
	} else {
		z, t, err = lp.Simplex(form.c, form.A, form.b, 0, nil)
	}
	if err != nil {
		return solution{problem: p, err: err}
	}
	return solution{
		problem: p,
		x:       form.recover(t),
		z:       z + form.constant,
	}
}

// standardForm is min c·t, A·t = b, G·t ≤ h, t ≥ 0 plus the mapping back to
// the model's variable space.
type standardForm struct {
	c        []float64
	A        *mat.Dense
	b        []float64
	G        *mat.Dense
	h        []float64
	constant float64

	// per model variable: x_i = shift + sign·t[pos] (− t[neg] for free
	// variables); pos < 0 marks a substituted constant
	shift []float64
	sign  []float64
	pos   []int
	neg   []int

	err error
}

func (f *standardForm) recover(t []float64) []float64 {
	x := make([]float64, len(f.shift))
	for i := range x {
		x[i] = f.shift[i]
		if f.pos[i] >= 0 {
			x[i] += f.sign[i] * t[f.pos[i]]
		}
		if f.neg[i] >= 0 {
			x[i] -= t[f.neg[i]]
		}
	}
	return x
}

// buildStandardForm shifts every variable onto the nonnegative orthant,
// splits free variables, turns finite upper bounds and two-sided rows into
// inequalities and substitutes fixed variables away.
func (s *branchAndCutSolver) buildStandardForm(p *subProblem, lazyRows []LinearRow) *standardForm {
	n := len(s.model.Vars)
	f := &standardForm{
		shift: make([]float64, n),
		sign:  make([]float64, n),
		pos:   make([]int, n),
		neg:   make([]int, n),
	}

	type ineq struct {
		coeffs map[int]float64
		rhs    float64
	}
	var nt int // number of standard variables

	for i := 0; i < n; i++ {
		lb, ub := p.lb[i], p.ub[i]
		f.pos[i], f.neg[i] = -1, -1
		switch {
		case lb > ub:
			f.err = lp.ErrInfeasible
			return f
		case lb == ub:
			f.shift[i] = lb // substituted constant
		case !math.IsInf(lb, -1):
			f.shift[i], f.sign[i] = lb, 1
			f.pos[i] = nt
			nt++
		case !math.IsInf(ub, 1):
			f.shift[i], f.sign[i] = ub, -1
			f.pos[i] = nt
			nt++
		default:
			f.sign[i] = 1
			f.pos[i] = nt
			f.neg[i] = nt + 1
			nt += 2
		}
	}

	// objective over t
	f.c = make([]float64, nt)
	for i := 0; i < n; i++ {
		coef := s.model.Objective[i]
		f.constant += coef * f.shift[i]
		if f.pos[i] >= 0 {
			f.c[f.pos[i]] += coef * f.sign[i]
		}
		if f.neg[i] >= 0 {
			f.c[f.neg[i]] -= coef
		}
	}

	var eqRows []ineq // a·t = rhs
	var leRows []ineq // a·t ≤ rhs

	// upper bound rows for doubly-bounded variables: t ≤ ub − lb
	for i := 0; i < n; i++ {
		if f.pos[i] >= 0 && f.neg[i] < 0 &&
			!math.IsInf(p.lb[i], -1) && !math.IsInf(p.ub[i], 1) {
			leRows = append(leRows, ineq{
				coeffs: map[int]float64{f.pos[i]: 1},
				rhs:    p.ub[i] - p.lb[i],
			})
		}
	}

	addRow := func(r LinearRow) {
		// transform a·x into a'·t plus a constant folded into the rhs
		coeffs := make(map[int]float64)
		shiftSum := 0.0
		for i, a := range r.Coeffs {
			if a == 0 {
				continue
			}
			shiftSum += a * f.shift[i]
			if f.pos[i] >= 0 {
				coeffs[f.pos[i]] += a * f.sign[i]
			}
			if f.neg[i] >= 0 {
				coeffs[f.neg[i]] -= a
			}
		}
		lo, hi := r.LB-shiftSum, r.UB-shiftSum
		if len(coeffs) == 0 {
			// every referenced variable was substituted away (or the row is
			// all zeros, as a broken cut can be): the row is either vacuous
			// or an infeasibility certificate
			if hi < -pruneTol || lo > pruneTol {
				f.err = lp.ErrInfeasible
			}
			return
		}
		switch {
		case r.LB == r.UB:
			eqRows = append(eqRows, ineq{coeffs: coeffs, rhs: lo})
		default:
			if !math.IsInf(hi, 1) {
				leRows = append(leRows, ineq{coeffs: coeffs, rhs: hi})
			}
			if !math.IsInf(lo, -1) {
				neg := make(map[int]float64, len(coeffs))
				for j, a := range coeffs {
					neg[j] = -a
				}
				leRows = append(leRows, ineq{coeffs: neg, rhs: -lo})
			}
		}
	}

	for _, r := range s.model.Rows {
		addRow(r)
	}
	for _, id := range s.extraIDs {
		addRow(s.extraRows[id])
	}
	for _, r := range lazyRows {
		addRow(r)
	}
	if f.err != nil {
		return f
	}
	if nt == 0 {
		// every variable is fixed; feasibility was already decided row by row
		f.c = []float64{0}
		f.G = mat.NewDense(1, 1, []float64{1})
		f.h = []float64{0}
		f.shiftOnlyRecovery()
		return f
	}

	if len(eqRows) > 0 {
		f.A = mat.NewDense(len(eqRows), nt, nil)
		f.b = make([]float64, len(eqRows))
		for r, row := range eqRows {
			for j, a := range row.coeffs {
				f.A.Set(r, j, a)
			}
			f.b[r] = row.rhs
		}
	}
	if len(leRows) > 0 {
		f.G = mat.NewDense(len(leRows), nt, nil)
		f.h = make([]float64, len(leRows))
		for r, row := range leRows {
			for j, a := range row.coeffs {
				f.G.Set(r, j, a)
			}
			f.h[r] = row.rhs
		}
	}
	if f.A == nil && f.G == nil {
		// box-only problem; the simplex needs at least one row
		f.G = mat.NewDense(1, nt, nil)
		f.h = []float64{0}
	}
	return f
}

// shiftOnlyRecovery marks every variable as substituted so recover ignores
// the dummy standard variable.
func (f *standardForm) shiftOnlyRecovery() {
	for i := range f.pos {
		f.pos[i] = -1
		f.neg[i] = -1
	}
}

// convertToEqualities rewrites min c·t, A·t = b, G·t ≤ h into pure standard
// form by giving every inequality a slack variable.
func convertToEqualities(c []float64, A *mat.Dense, b []float64, G *mat.Dense, h []float64) (cNew []float64, aNew *mat.Dense, bNew []float64) {
	if G == nil {
		panic("provided pointer to G matrix is nil")
	}
	nVar := len(c)
	nCons := len(b)
	nIneq := len(h)
	nNewVar := nVar + nIneq
	nNewCons := nCons + nIneq

	cNew = make([]float64, nNewVar)
	copy(cNew, c)

	bNew = make([]float64, nNewCons)
	copy(bNew, b)
	copy(bNew[nCons:], h)

	aNew = mat.NewDense(nNewCons, nNewVar, nil)
	if A != nil {
		aNew.Slice(0, nCons, 0, nVar).(*mat.Dense).Copy(A)
	}
	aNew.Slice(nCons, nNewCons, 0, nVar).(*mat.Dense).Copy(G)

	// diagonally fill the bottom-right block with the slack indicators
	bottomRight := aNew.Slice(nCons, nNewCons, nVar, nNewVar).(*mat.Dense)
	for i := 0; i < nIneq; i++ {
		bottomRight.Set(i, i, 1)
	}
	return
}
