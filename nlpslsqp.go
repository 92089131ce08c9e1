package minlp

import (
	"context"
	"math"
	"time"

	"github.com/curioloop/optimizer/slsqp"
	"github.com/pkg/errors"
)

// slack variable box for the interior search; wide enough to never bind
const slackBox = 1e6

// slsqpSolver is the bundled NLP backend. It solves the continuous
// subproblems in the original variable space with sequential least squares
// programming.
type slsqpSolver struct {
	ref *Reformulation

	accuracy float64
	maxIter  int
	feasTol  float64
}

func newSLSQPSolver() *slsqpSolver {
	return &slsqpSolver{
		accuracy: 1e-8,
		maxIter:  200,
		feasTol:  1e-6,
	}
}

func (s *slsqpSolver) Load(ref *Reformulation) error {
	if ref == nil {
		return errors.New("nil reformulation")
	}
	s.ref = ref
	return nil
}

// SolveFixed minimizes the original objective over the continuous variables
// with the given variables pinned. SLSQP has no internal clock; the iteration
// cap plays the role of the time limit.
func (s *slsqpSolver) SolveFixed(ctx context.Context, fixed map[int]float64, start []float64, timeLimit time.Duration) (NLPOutcome, error) {
	if s.ref == nil {
		return NLPOutcome{Status: NLPStatusError}, errors.New("no problem loaded")
	}
	if err := ctx.Err(); err != nil {
		return NLPOutcome{Status: NLPStatusLimit}, nil
	}
	p := s.ref.Original
	n := len(p.Variables)
	sign := p.signFactor()

	obj := func(x, g []float64) float64 {
		v := p.Objective.Constant
		for i, c := range p.Objective.Linear {
			v += c * x[i]
		}
		if p.Objective.Expr != nil {
			v += p.Objective.Expr.Value(x)
		}
		if g != nil {
			for i := range g {
				g[i] = 0
			}
			if p.Objective.Expr != nil {
				p.Objective.Expr.Gradient(x, g)
			}
			for i, c := range p.Objective.Linear {
				g[i] += c
			}
			for i := range g {
				g[i] *= sign
			}
		}
		return sign * v
	}

	eq, neq := s.constraintEvaluations(n, 0)

	bounds := make([]slsqp.Bound, n)
	for i, v := range p.Variables {
		bounds[i] = slsqp.Bound{Lower: v.LB, Upper: v.UB}
	}
	for i, v := range fixed {
		bounds[i] = slsqp.Bound{Lower: v, Upper: v}
	}

	x0 := s.clampedStart(start, bounds, n)
	for i, v := range fixed {
		x0[i] = v
	}

	return s.run(slsqp.Problem{
		N:       n,
		Stop:    s.stop(),
		Object:  obj,
		EqCons:  eq,
		NeqCons: neq,
		Bounds:  bounds,
	}, x0, func(x []float64) (float64, float64) {
		viol, _ := p.maxViolation(x)
		return p.objectiveValue(x), viol
	})
}

// SolveSlackMax looks for a point strictly inside the nonlinear feasible set
// by maximizing the common slack s with g_i(x) + s ≤ 0. Discrete variables
// are relaxed to their boxes. The outcome's Objective is the achieved slack.
func (s *slsqpSolver) SolveSlackMax(ctx context.Context, start []float64, timeLimit time.Duration) (NLPOutcome, error) {
	if s.ref == nil {
		return NLPOutcome{Status: NLPStatusError}, errors.New("no problem loaded")
	}
	if err := ctx.Err(); err != nil {
		return NLPOutcome{Status: NLPStatusLimit}, nil
	}
	p := s.ref.Original
	n := len(p.Variables)
	dim := n + 1 // trailing slack variable

	obj := func(x, g []float64) float64 {
		if g != nil {
			for i := range g {
				g[i] = 0
			}
			g[n] = -1
		}
		return -x[n]
	}

	eq, neq := s.constraintEvaluations(n, 1)

	bounds := make([]slsqp.Bound, dim)
	for i, v := range p.Variables {
		bounds[i] = slsqp.Bound{Lower: v.LB, Upper: v.UB}
	}
	bounds[n] = slsqp.Bound{Lower: -slackBox, Upper: slackBox}

	x0 := make([]float64, dim)
	copy(x0, s.clampedStart(start, bounds[:n], n))

	out, err := s.run(slsqp.Problem{
		N:       dim,
		Stop:    s.stop(),
		Object:  obj,
		EqCons:  eq,
		NeqCons: neq,
		Bounds:  bounds,
	}, x0, func(x []float64) (float64, float64) {
		return x[n], 0
	})
	if err != nil {
		return out, err
	}
	out.Point = out.Point[:n]
	return out, nil
}

// constraintEvaluations builds the SLSQP constraint set of P over n original
// variables plus extra trailing auxiliaries. Nonlinear rows get the slack
// variable subtracted when extra > 0.
func (s *slsqpSolver) constraintEvaluations(n, extra int) (eq, neq []slsqp.Evaluation) {
	p := s.ref.Original

	for k := range p.Nonlinear {
		nc := p.Nonlinear[k]
		neq = append(neq, func(x, g []float64) float64 {
			v := nc.RHS - nc.Expr.Value(x[:n])
			if extra > 0 {
				v -= x[n]
			}
			if g != nil {
				for i := range g {
					g[i] = 0
				}
				nc.Expr.Gradient(x[:n], g[:n])
				for i := 0; i < n; i++ {
					g[i] = -g[i]
				}
				if extra > 0 {
					g[n] = -1
				}
			}
			return v
		})
	}

	for k := range p.Linear {
		lc := p.Linear[k]
		dot := func(x []float64) float64 {
			v := 0.0
			for i, c := range lc.Coeffs {
				v += c * x[i]
			}
			return v
		}
		fill := func(g []float64, sgn float64) {
			for i := range g {
				g[i] = 0
			}
			for i, c := range lc.Coeffs {
				g[i] = sgn * c
			}
		}
		switch {
		case lc.LB == lc.UB:
			rhs := lc.LB
			eq = append(eq, func(x, g []float64) float64 {
				if g != nil {
					fill(g, 1)
				}
				return dot(x) - rhs
			})
		default:
			if !math.IsInf(lc.UB, 1) {
				ub := lc.UB
				neq = append(neq, func(x, g []float64) float64 {
					if g != nil {
						fill(g, -1)
					}
					return ub - dot(x)
				})
			}
			if !math.IsInf(lc.LB, -1) {
				lb := lc.LB
				neq = append(neq, func(x, g []float64) float64 {
					if g != nil {
						fill(g, 1)
					}
					return dot(x) - lb
				})
			}
		}
	}
	return eq, neq
}

func (s *slsqpSolver) stop() slsqp.Termination {
	return slsqp.Termination{
		Accuracy:       s.accuracy,
		MaxIterations:  s.maxIter,
		FEvalTolerance: math.NaN(),
		FDiffTolerance: math.NaN(),
		XDiffTolerance: math.NaN(),
	}
}

func (s *slsqpSolver) clampedStart(start []float64, bounds []slsqp.Bound, n int) []float64 {
	x0 := make([]float64, n)
	copy(x0, start)
	for i := range x0 {
		if !math.IsInf(bounds[i].Lower, -1) && x0[i] < bounds[i].Lower {
			x0[i] = bounds[i].Lower
		}
		if !math.IsInf(bounds[i].Upper, 1) && x0[i] > bounds[i].Upper {
			x0[i] = bounds[i].Upper
		}
	}
	return x0
}

// run executes one SLSQP fit and classifies the result. evaluate returns the
// outcome objective and the violation to report for the final point.
func (s *slsqpSolver) run(p slsqp.Problem, x0 []float64, evaluate func([]float64) (float64, float64)) (NLPOutcome, error) {
	opt, err := p.New()
	if err != nil {
		return NLPOutcome{Status: NLPStatusError}, errors.Wrap(err, "building SLSQP problem")
	}
	res := opt.Fit(x0, opt.Init())

	point := append([]float64(nil), res.X...)
	obj, viol := evaluate(point)

	out := NLPOutcome{
		Point:        point,
		Objective:    obj,
		MaxViolation: viol,
		Iterations:   res.NumIter,
	}
	switch {
	case res.OK && viol <= s.feasTol:
		out.Status = NLPStatusOptimal
	case res.OK:
		out.Status = NLPStatusInfeasibleLocal
	case res.Status == slsqp.ConsIncompatible:
		out.Status = NLPStatusInfeasibleLocal
	case res.Status == slsqp.SQPExceedMaxIter || res.Status == slsqp.NNLSExceedMaxIter:
		if viol <= s.feasTol {
			out.Status = NLPStatusFeasible
		} else {
			out.Status = NLPStatusLimit
		}
	default:
		if viol <= s.feasTol {
			out.Status = NLPStatusFeasible
		} else {
			out.Status = NLPStatusError
		}
	}
	return out, nil
}
