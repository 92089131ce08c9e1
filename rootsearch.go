package minlp

import (
	"math"

	"github.com/pkg/errors"
)

// ErrNotBracketed is returned when ψ does not change sign over the interval,
// so no boundary point exists between the endpoints.
var ErrNotBracketed = errors.New("rootsearch: interval does not bracket a sign change")

type rootsearchOptions struct {
	lambdaTol   float64
	residualTol float64
	maxIter     int
}

// rootsearch finds λ* in [lo, hi] with ψ(λ*) ≈ 0, assuming ψ(lo) < 0 < ψ(hi).
// It uses false position with an Illinois-style safeguard, falling back to
// bisection whenever the secant step stalls, so the bracket always shrinks.
func rootsearch(psi func(float64) float64, lo, hi float64, opt rootsearchOptions) (float64, error) {
	flo, fhi := psi(lo), psi(hi)
	if math.IsNaN(flo) || math.IsNaN(fhi) {
		return 0, errors.New("rootsearch: function evaluated to NaN at an endpoint")
	}
	if math.Abs(flo) <= opt.residualTol {
		return lo, nil
	}
	if math.Abs(fhi) <= opt.residualTol {
		return hi, nil
	}
	if flo*fhi > 0 {
		return 0, ErrNotBracketed
	}
	// normalize so that flo < 0 < fhi
	if flo > 0 {
		lo, hi = hi, lo
		flo, fhi = fhi, flo
	}

	// side remembers which endpoint moved last; two moves of the same side
	// trigger the Illinois weight halving.
	side := 0
	best, bestRes := lo, math.Abs(flo)

	for i := 0; i < opt.maxIter; i++ {
		var next float64
		denom := fhi - flo
		if denom == 0 || math.IsInf(denom, 0) {
			next = 0.5 * (lo + hi)
		} else {
			next = lo - flo*(hi-lo)/denom
			// keep strictly inside the bracket
			if next <= math.Min(lo, hi) || next >= math.Max(lo, hi) {
				next = 0.5 * (lo + hi)
			}
		}

		fnext := psi(next)
		if math.IsNaN(fnext) {
			return 0, errors.New("rootsearch: function evaluated to NaN")
		}
		if r := math.Abs(fnext); r < bestRes {
			best, bestRes = next, r
		}
		if math.Abs(fnext) <= opt.residualTol {
			return next, nil
		}

		if fnext < 0 {
			lo, flo = next, fnext
			if side == -1 {
				fhi *= 0.5
			}
			side = -1
		} else {
			hi, fhi = next, fnext
			if side == 1 {
				flo *= 0.5
			}
			side = 1
		}

		if math.Abs(hi-lo) <= opt.lambdaTol {
			return best, nil
		}
	}

	// out of iterations: the tightest point seen is still a usable boundary
	// estimate as long as its residual is moderate.
	return best, nil
}
