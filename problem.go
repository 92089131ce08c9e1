package minlp

import (
	"fmt"
	"math"
)

// VarKind is the domain of a decision variable.
type VarKind int

const (
	Continuous VarKind = iota
	Integer
	Binary
	SemiContinuous
)

func (k VarKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	case SemiContinuous:
		return "semi-continuous"
	default:
		return fmt.Sprintf("VarKind(%d)", int(k))
	}
}

// IsDiscrete reports whether the variable carries an integrality constraint.
func (k VarKind) IsDiscrete() bool {
	return k == Integer || k == Binary
}

// Sense is the optimization direction of the objective.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

type Variable struct {
	Name string
	Kind VarKind
	LB   float64
	UB   float64
}

// Expression is the contract the core assumes of the nonlinear evaluator:
// value and gradient at a point. The expressions handed to the solver must be
// smooth and convex; the core never verifies convexity, it relies on it.
type Expression interface {
	Value(x []float64) float64

	// Gradient writes the partial derivatives at x into grad.
	// len(grad) equals the dimension the expression was declared over.
	Gradient(x []float64, grad []float64)
}

// ExprFunc adapts a pair of plain functions to the Expression interface.
type ExprFunc struct {
	F func(x []float64) float64
	G func(x []float64, grad []float64)
}

func (e ExprFunc) Value(x []float64) float64 { return e.F(x) }

func (e ExprFunc) Gradient(x []float64, grad []float64) { e.G(x, grad) }

// LinearConstraint is a two-sided linear row: LB ≤ sum(Coeffs[i]*x[i]) ≤ UB.
// One-sided rows use ±Inf for the free side.
type LinearConstraint struct {
	Name   string
	Coeffs map[int]float64
	LB     float64
	UB     float64
}

// NonlinearConstraint is a convex inequality Expr(x) ≤ RHS.
type NonlinearConstraint struct {
	Name string
	Expr Expression
	RHS  float64
}

// Objective is Sense over Constant + sum(Linear[i]*x[i]) + Expr(x).
// Expr may be nil, in which case the objective is purely linear.
type Objective struct {
	Sense    Sense
	Linear   map[int]float64
	Constant float64
	Expr     Expression
}

// Problem is the original problem P. The core treats it as read-only after
// SetProblem; primal feasibility is always checked against P, never against
// the reformulated problem the dual engine works on.
type Problem struct {
	Name      string
	Variables []Variable
	Linear    []LinearConstraint
	Nonlinear []NonlinearConstraint
	Objective Objective
}

func NewProblem(name string) *Problem {
	return &Problem{Name: name}
}

// AddVariable declares a variable and returns its index.
func (p *Problem) AddVariable(name string, kind VarKind, lb, ub float64) int {
	if kind == Binary {
		lb, ub = math.Max(lb, 0), math.Min(ub, 1)
	}
	p.Variables = append(p.Variables, Variable{Name: name, Kind: kind, LB: lb, UB: ub})
	return len(p.Variables) - 1
}

// AddLinearConstraint adds lb ≤ coeffs·x ≤ ub. All referenced variables must
// have been declared first.
func (p *Problem) AddLinearConstraint(name string, coeffs map[int]float64, lb, ub float64) error {
	if len(coeffs) == 0 {
		return fmt.Errorf("constraint %q has no coefficients", name)
	}
	if err := p.checkIndices(coeffs); err != nil {
		return err
	}
	p.Linear = append(p.Linear, LinearConstraint{Name: name, Coeffs: copyCoeffs(coeffs), LB: lb, UB: ub})
	return nil
}

// AddNonlinearConstraint adds the convex inequality expr(x) ≤ rhs.
func (p *Problem) AddNonlinearConstraint(name string, expr Expression, rhs float64) error {
	if expr == nil {
		return fmt.Errorf("constraint %q has a nil expression", name)
	}
	p.Nonlinear = append(p.Nonlinear, NonlinearConstraint{Name: name, Expr: expr, RHS: rhs})
	return nil
}

// SetObjective installs the objective. expr may be nil for a linear objective.
func (p *Problem) SetObjective(sense Sense, linear map[int]float64, constant float64, expr Expression) error {
	if err := p.checkIndices(linear); err != nil {
		return err
	}
	p.Objective = Objective{Sense: sense, Linear: copyCoeffs(linear), Constant: constant, Expr: expr}
	return nil
}

// checkIndices verifies that every referenced variable has been declared.
func (p *Problem) checkIndices(coeffs map[int]float64) error {
	for i := range coeffs {
		if i < 0 || i >= len(p.Variables) {
			return fmt.Errorf("coefficient references undeclared variable index %d", i)
		}
	}
	return nil
}

func copyCoeffs(in map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// NumDiscrete counts integer and binary variables.
func (p *Problem) NumDiscrete() int {
	n := 0
	for _, v := range p.Variables {
		if v.Kind.IsDiscrete() {
			n++
		}
	}
	return n
}

// HasNonlinearObjective reports whether the objective carries a nonlinear term.
func (p *Problem) HasNonlinearObjective() bool {
	return p.Objective.Expr != nil
}

// signFactor is +1 for minimization and -1 for maximization; the core works
// internally on min-sense values throughout.
func (p *Problem) signFactor() float64 {
	if p.Objective.Sense == Maximize {
		return -1
	}
	return 1
}

// objectiveValue evaluates the objective at x in internal (minimization) sense.
func (p *Problem) objectiveValue(x []float64) float64 {
	v := p.Objective.Constant
	for i, c := range p.Objective.Linear {
		v += c * x[i]
	}
	if p.Objective.Expr != nil {
		v += p.Objective.Expr.Value(x)
	}
	return p.signFactor() * v
}

// maxViolation computes the worst constraint violation of x against P,
// covering linear rows, nonlinear rows and variable bounds. Integrality is
// checked separately by isIntegerFeasible.
func (p *Problem) maxViolation(x []float64) (float64, int) {
	worst, worstIdx := 0.0, -1
	update := func(v float64, idx int) {
		if v > worst {
			worst, worstIdx = v, idx
		}
	}
	for i, v := range p.Variables {
		if !math.IsInf(v.LB, -1) {
			update(v.LB-x[i], -1)
		}
		if !math.IsInf(v.UB, 1) {
			update(x[i]-v.UB, -1)
		}
	}
	for i, lc := range p.Linear {
		sum := 0.0
		for j, c := range lc.Coeffs {
			sum += c * x[j]
		}
		if !math.IsInf(lc.UB, 1) {
			update(sum-lc.UB, i)
		}
		if !math.IsInf(lc.LB, -1) {
			update(lc.LB-sum, i)
		}
	}
	for i, nc := range p.Nonlinear {
		update(nc.Expr.Value(x)-nc.RHS, len(p.Linear)+i)
	}
	return worst, worstIdx
}

// isIntegerFeasible checks the integrality constraints of P at x within tol.
func (p *Problem) isIntegerFeasible(x []float64, tol float64) bool {
	for i, v := range p.Variables {
		if v.Kind.IsDiscrete() && math.Abs(x[i]-math.Round(x[i])) > tol {
			return false
		}
	}
	return true
}

// roundDiscrete returns a copy of x with the discrete coordinates snapped to
// the nearest integer.
func (p *Problem) roundDiscrete(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	for i, v := range p.Variables {
		if v.Kind.IsDiscrete() {
			out[i] = math.Round(out[i])
		}
	}
	return out
}

// allDiscreteBinary reports whether every discrete variable is binary. The
// no-good integer cut is only valid over binary assignments.
func (p *Problem) allDiscreteBinary() bool {
	for _, v := range p.Variables {
		if v.Kind == Integer {
			return false
		}
	}
	return true
}
