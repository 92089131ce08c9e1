package minlp

import (
	"math"
)

// objVarBound is the initial box on the epigraph variable. It keeps the first
// dual solves bounded before any objective linearization has been generated.
const objVarBound = 1e12

// AuxVariableType tags auxiliary variables introduced by reformulation.
type AuxVariableType int

const (
	AuxEpigraph AuxVariableType = iota
)

func (t AuxVariableType) String() string {
	switch t {
	case AuxEpigraph:
		return "epigraph"
	default:
		return "unknown"
	}
}

// NLRow is one nonlinear inequality of the reformulated problem, normalized
// to G(x) ≤ 0 over the extended variable space. ConstraintRef indexes the
// originating constraint in Problem.Nonlinear, or is -1 when the row is the
// epigraph of the objective.
type NLRow struct {
	ConstraintRef int
	Name          string
	G             Expression
}

// Reformulation is P̂: the problem the dual engine sees. The objective is
// linear (min-sense), a nonlinear objective having been moved behind an
// epigraph variable μ with f(x) − μ ≤ 0.
type Reformulation struct {
	Original *Problem

	// Vars is the extended variable set: the original variables followed by
	// any auxiliaries.
	Vars []Variable

	// ObjCoeffs is the dense linear objective over Vars, minimization sense.
	ObjCoeffs   []float64
	ObjConstant float64

	// ObjVar is the index of the epigraph variable, or -1 when the original
	// objective was already linear.
	ObjVar int

	// Flipped records that the original problem was a maximization.
	Flipped bool

	NL []NLRow
}

// Reformulate builds P̂ from P. Maximization is normalized to minimization;
// a nonlinear objective term is replaced by an epigraph variable.
func Reformulate(p *Problem) *Reformulation {
	sign := p.signFactor()
	n := len(p.Variables)

	ref := &Reformulation{
		Original: p,
		Vars:     append([]Variable(nil), p.Variables...),
		ObjVar:   -1,
		Flipped:  sign < 0,
	}

	ref.ObjCoeffs = make([]float64, n)
	for i, c := range p.Objective.Linear {
		ref.ObjCoeffs[i] = sign * c
	}
	ref.ObjConstant = sign * p.Objective.Constant

	for i := range p.Nonlinear {
		ref.NL = append(ref.NL, NLRow{
			ConstraintRef: i,
			Name:          p.Nonlinear[i].Name,
			G:             constraintG{nc: p.Nonlinear[i], n: n},
		})
	}

	if p.Objective.Expr != nil {
		ref.ObjVar = len(ref.Vars)
		ref.Vars = append(ref.Vars, Variable{
			Name: "mu_obj",
			Kind: Continuous,
			LB:   -objVarBound,
			UB:   objVarBound,
		})
		ref.ObjCoeffs = append(ref.ObjCoeffs, 1)
		ref.NL = append(ref.NL, NLRow{
			ConstraintRef: -1,
			Name:          "objective_epigraph",
			G:             epigraphG{expr: p.Objective.Expr, sign: sign, n: n, mu: ref.ObjVar},
		})
	}

	return ref
}

// NumOriginalVars is the dimension of P's variable space.
func (r *Reformulation) NumOriginalVars() int { return len(r.Original.Variables) }

// Objective evaluates the linear P̂ objective at an extended point.
func (r *Reformulation) Objective(x []float64) float64 {
	v := r.ObjConstant
	for i, c := range r.ObjCoeffs {
		v += c * x[i]
	}
	return v
}

// MaxViolation computes the worst nonlinear violation of x against P̂ and the
// index into NL of the most violated row. Returns (0, -1) when feasible.
func (r *Reformulation) MaxViolation(x []float64) (float64, int) {
	worst, worstIdx := 0.0, -1
	for i := range r.NL {
		if v := r.NL[i].G.Value(x); v > worst {
			worst, worstIdx = v, i
		}
	}
	return worst, worstIdx
}

// Extend lifts a point in the original space to the extended space, setting
// the epigraph variable to the objective's nonlinear value at the point.
func (r *Reformulation) Extend(x []float64) []float64 {
	if len(x) == len(r.Vars) {
		return x
	}
	out := make([]float64, len(r.Vars))
	copy(out, x)
	if r.ObjVar >= 0 {
		sign := r.Original.signFactor()
		out[r.ObjVar] = sign * r.Original.Objective.Expr.Value(x[:r.NumOriginalVars()])
	}
	return out
}

// Shrink projects an extended point back onto the original variable space.
func (r *Reformulation) Shrink(x []float64) []float64 {
	n := r.NumOriginalVars()
	out := make([]float64, n)
	copy(out, x[:n])
	return out
}

// minConstraintSlack is the interior certificate min_i(−g_i(x)) over the
// nonlinear constraint rows, +Inf when there are none. The epigraph row is
// excluded: interior points certify the constraints only.
func (r *Reformulation) minConstraintSlack(x []float64) float64 {
	ext := r.Extend(x)
	slack := math.Inf(1)
	for i := range r.NL {
		if r.NL[i].ConstraintRef < 0 {
			continue
		}
		if s := -r.NL[i].G.Value(ext); s < slack {
			slack = s
		}
	}
	return slack
}

// interiorStart proposes a starting point for interior-point searches: the
// midpoint of each original variable's box, clamped to ±1e3 for free sides.
func (r *Reformulation) interiorStart() []float64 {
	n := r.NumOriginalVars()
	x := make([]float64, n)
	for i, v := range r.Original.Variables {
		lb, ub := v.LB, v.UB
		if math.IsInf(lb, -1) {
			lb = -1e3
		}
		if math.IsInf(ub, 1) {
			ub = 1e3
		}
		x[i] = 0.5 * (lb + ub)
	}
	return x
}

// constraintG wraps an original nonlinear constraint as G(x) ≤ 0 over the
// extended space: G(x) = Expr(x[:n]) − RHS.
type constraintG struct {
	nc NonlinearConstraint
	n  int
}

func (g constraintG) Value(x []float64) float64 {
	return g.nc.Expr.Value(x[:g.n]) - g.nc.RHS
}

func (g constraintG) Gradient(x []float64, grad []float64) {
	for i := range grad {
		grad[i] = 0
	}
	g.nc.Expr.Gradient(x[:g.n], grad[:g.n])
}

// epigraphG is the epigraph row of a nonlinear objective:
// G(x, μ) = sign·f(x[:n]) − μ ≤ 0.
type epigraphG struct {
	expr Expression
	sign float64
	n    int
	mu   int
}

func (g epigraphG) Value(x []float64) float64 {
	return g.sign*g.expr.Value(x[:g.n]) - x[g.mu]
}

func (g epigraphG) Gradient(x []float64, grad []float64) {
	for i := range grad {
		grad[i] = 0
	}
	g.expr.Gradient(x[:g.n], grad[:g.n])
	if g.sign < 0 {
		for i := 0; i < g.n; i++ {
			grad[i] = -grad[i]
		}
	}
	grad[g.mu] = -1
}
