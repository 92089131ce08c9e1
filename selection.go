package minlp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// gradientFloor below which a gradient is considered degenerate and the cut
// is skipped rather than risking a numerically useless row.
const gradientFloor = 1e-12

// hyperplaneFromGradient linearizes NL row nlIdx at point:
// g(p) + ∇g(p)·(x − p) ≤ 0, i.e. ∇g(p)·x ≤ ∇g(p)·p − g(p).
// Returns false for degenerate or non-finite data (the point is skipped, per
// the numerical-error recovery policy).
func hyperplaneFromGradient(ref *Reformulation, logger Logger, source HyperplaneSource, nlIdx int, point []float64, iter int) (Hyperplane, bool) {
	row := ref.NL[nlIdx]
	val := row.G.Value(point)
	grad := make([]float64, len(ref.Vars))
	row.G.Gradient(point, grad)

	if math.IsNaN(val) || math.IsInf(val, 0) {
		logger.Print("skipping cut for ", row.Name, ": non-finite value at generation point")
		return Hyperplane{}, false
	}
	norm := floats.Norm(grad, 2)
	if math.IsNaN(norm) || math.IsInf(norm, 0) || norm < gradientFloor {
		logger.Print("skipping cut for ", row.Name, ": degenerate gradient")
		return Hyperplane{}, false
	}

	coeffs := make(map[int]float64)
	for i, g := range grad {
		if g != 0 {
			coeffs[i] = g
		}
	}
	rhs := floats.Dot(grad, point) - val

	pt := make([]float64, len(point))
	copy(pt, point)

	return Hyperplane{
		Source:        source,
		ConstraintRef: row.ConstraintRef,
		Point:         pt,
		Row: LinearRow{
			Name:   fmt.Sprintf("%s_cut_it%d", row.Name, iter),
			Coeffs: coeffs,
			LB:     math.Inf(-1),
			UB:     rhs,
		},
		Iteration: iter,
	}, true
}

// selectHyperplanes generates cuts for the given candidate points and puts
// them on the waiting list. ESH is used when the interior-point service has a
// point; otherwise, and whenever rootsearch fails to bracket, it degrades to
// ECP at the candidate.
func (e *environment) selectHyperplanes(points []SolutionPoint, iter int) int {
	added := 0
	for _, sp := range points {
		if sp.MaxViolation <= e.opts.Dual.FeasTol {
			continue
		}
		useESH := e.opts.Cuts.Source == CutSourceESH
		var ip InteriorPoint
		var haveIP bool
		if useESH {
			ip, haveIP = e.interior.get()
		}
		if useESH && haveIP {
			added += e.selectESH(sp, ip, iter)
		} else {
			added += e.selectECP(sp, iter)
		}
	}
	return added
}

// selectECP emits one linearization per violated nonlinear constraint at the
// candidate itself, most violated first.
func (e *environment) selectECP(sp SolutionPoint, iter int) int {
	type viol struct {
		idx int
		v   float64
	}
	var violated []viol
	for i := range e.ref.NL {
		if e.ref.NL[i].ConstraintRef < 0 {
			continue // the epigraph row is linearized separately
		}
		if v := e.ref.NL[i].G.Value(sp.Point); v > e.opts.Dual.FeasTol {
			violated = append(violated, viol{i, v})
		}
	}
	// rank by violation, largest first
	for i := 1; i < len(violated); i++ {
		for j := i; j > 0 && violated[j].v > violated[j-1].v; j-- {
			violated[j], violated[j-1] = violated[j-1], violated[j]
		}
	}

	added := 0
	for _, vc := range violated {
		if h, ok := hyperplaneFromGradient(e.ref, e.logger, SourceECPCandidate, vc.idx, sp.Point, iter); ok {
			if e.pool.add(h) {
				added++
			}
		}
	}
	return added
}

// selectESH walks the segment from the interior point to the candidate,
// rootsearches the boundary of the nonlinear feasible set, and emits
// supporting hyperplanes for every constraint active at the boundary point.
func (e *environment) selectESH(sp SolutionPoint, ip InteriorPoint, iter int) int {
	inner := e.ref.Extend(ip.Point)
	if e.ref.ObjVar >= 0 {
		// keep the epigraph row strictly slack at the inner endpoint; it is
		// excluded from ψ anyway but the boundary point inherits μ by
		// interpolation.
		inner[e.ref.ObjVar] += 1
	}
	outer := sp.Point

	line := func(lambda float64) []float64 {
		x := make([]float64, len(outer))
		for i := range x {
			x[i] = lambda*inner[i] + (1-lambda)*outer[i]
		}
		return x
	}
	// ψ over the constraint rows only; the objective epigraph has no
	// geometric boundary worth searching.
	psi := func(lambda float64) float64 {
		x := line(lambda)
		worst := math.Inf(-1)
		for i := range e.ref.NL {
			if e.ref.NL[i].ConstraintRef < 0 {
				continue
			}
			if v := e.ref.NL[i].G.Value(x); v > worst {
				worst = v
			}
		}
		return worst
	}

	lambda, err := rootsearch(psi, 0, 1, rootsearchOptions{
		lambdaTol:   e.opts.Rootsearch.LambdaTol,
		residualTol: e.opts.Rootsearch.ResidualTol,
		maxIter:     e.opts.Rootsearch.MaxIter,
	})
	if err != nil {
		e.logger.Print("ESH rootsearch degraded to ECP: ", err)
		return e.selectECP(sp, iter)
	}

	boundary := line(lambda)
	activeTol := math.Max(e.opts.Rootsearch.ResidualTol, e.opts.Dual.FeasTol)

	added := 0
	for i := range e.ref.NL {
		if e.ref.NL[i].ConstraintRef < 0 {
			continue
		}
		if math.Abs(e.ref.NL[i].G.Value(boundary)) > activeTol {
			continue
		}
		if h, ok := hyperplaneFromGradient(e.ref, e.logger, SourceESHBoundary, i, boundary, iter); ok {
			if e.pool.add(h) {
				added++
			}
		}
	}
	if added == 0 {
		// nothing active at the boundary estimate; fall back rather than
		// losing the candidate entirely.
		return e.selectECP(sp, iter)
	}

	// the boundary point is almost feasible; offer it to the primal engine.
	e.primal.ingest(boundary, PrimalSourceRootsearch, iter)
	return added
}

// selectObjectiveLinearizations linearizes the objective epigraph at each
// candidate, even at points where all constraints hold, so the dual is forced
// to track the objective's curvature.
func (e *environment) selectObjectiveLinearizations(points []SolutionPoint, iter int) int {
	if e.ref.ObjVar < 0 {
		return 0
	}
	epiIdx := -1
	for i := range e.ref.NL {
		if e.ref.NL[i].ConstraintRef == -1 {
			epiIdx = i
			break
		}
	}
	if epiIdx < 0 {
		return 0
	}

	added := 0
	for _, sp := range points {
		if e.ref.NL[epiIdx].G.Value(sp.Point) <= e.opts.Dual.FeasTol {
			continue
		}
		if h, ok := hyperplaneFromGradient(e.ref, e.logger, SourceObjectiveLinearization, epiIdx, sp.Point, iter); ok {
			if e.pool.add(h) {
				added++
			}
		}
	}
	return added
}
