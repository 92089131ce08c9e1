package minlp

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
)

// primalManager drives the upper bound: it validates candidate points against
// the original problem P, runs fixed-integer NLPs on promising integer
// assignments, and feeds the byproducts (objective linearizations, integer
// cuts, interior candidates) back to the other engines.
type primalManager struct {
	opts     *Options
	logger   Logger
	ref      *Reformulation
	results  *Results
	nlp      NLPSolver
	interior *interiorService
	pool     *hyperplanePool

	// extended-space candidates waiting for validation
	queue []SolutionPoint

	// integer assignments already handed to the fixed NLP, so we never pay
	// for the same subproblem twice
	tested map[uint64]struct{}

	// invoked after every accepted incumbent, outside of any lock
	onNewIncumbent func(PrimalSolution)
}

func newPrimalManager(opts *Options, logger Logger, ref *Reformulation, results *Results, nlp NLPSolver, interior *interiorService, pool *hyperplanePool) *primalManager {
	return &primalManager{
		opts:     opts,
		logger:   logger,
		ref:      ref,
		results:  results,
		nlp:      nlp,
		interior: interior,
		pool:     pool,
		tested:   make(map[uint64]struct{}),
	}
}

// ingest queues a single extended-space point as a primal candidate.
func (m *primalManager) ingest(point []float64, src PrimalSource, iter int) {
	viol, idx := m.ref.MaxViolation(point)
	cp := make([]float64, len(point))
	copy(cp, point)
	m.queue = append(m.queue, SolutionPoint{
		Point:         cp,
		Objective:     m.ref.Objective(point),
		MaxViolation:  viol,
		ViolatedNLRow: idx,
		Source:        src,
		Iteration:     iter,
	})
}

// enqueue queues already-classified candidates (the dual solution pool).
func (m *primalManager) enqueue(points []SolutionPoint) {
	m.queue = append(m.queue, points...)
}

// checkCandidates validates every queued candidate against the original
// problem and promotes the feasible improving ones to incumbents. Returns the
// number of accepted incumbents.
func (m *primalManager) checkCandidates(iter int) int {
	accepted := 0
	for _, sp := range m.queue {
		x := m.ref.Shrink(sp.Point)
		m.clampToBounds(x)
		x = m.ref.Original.roundDiscrete(x)
		if m.tryAccept(x, sp.Source, iter) {
			accepted++
		}
	}
	m.queue = m.queue[:0]
	return accepted
}

// tryAccept validates an original-space point and installs it as the new
// incumbent when feasible and strictly improving.
func (m *primalManager) tryAccept(x []float64, src PrimalSource, iter int) bool {
	viol, _ := m.ref.Original.maxViolation(x)
	m.results.countCandidate(src)
	if viol > m.opts.Primal.FeasTol {
		return false
	}
	obj := m.ref.Original.objectiveValue(x)
	if math.IsNaN(obj) || math.IsInf(obj, 0) {
		return false
	}
	// the incumbent must improve by at least the configured margin
	bound := m.results.PrimalBound()
	if !math.IsInf(bound, 1) {
		bound -= math.Max(m.opts.Primal.ObjImprovementAbsTol,
			m.opts.Primal.ObjImprovementRelTol*math.Abs(bound))
	}
	if obj > bound {
		return false
	}
	sol := PrimalSolution{
		Point:        append([]float64(nil), x...),
		Objective:    obj,
		Source:       src,
		Iteration:    iter,
		MaxViolation: viol,
	}
	m.results.addPrimalSolution(sol)
	m.logger.Print("new incumbent ", obj, " from ", src)
	if m.onNewIncumbent != nil {
		m.onNewIncumbent(sol)
	}
	return true
}

// clampToBounds pulls tiny bound violations (within BoundTol) back onto the
// box, so near-feasible MILP output is not rejected for roundoff.
func (m *primalManager) clampToBounds(x []float64) {
	for i, v := range m.ref.Original.Variables {
		if x[i] < v.LB && x[i] >= v.LB-m.opts.Primal.BoundTol {
			x[i] = v.LB
		}
		if x[i] > v.UB && x[i] <= v.UB+m.opts.Primal.BoundTol {
			x[i] = v.UB
		}
	}
}

// assignmentHash identifies the discrete part of an extended-space point.
func (m *primalManager) assignmentHash(point []float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for i, v := range m.ref.Original.Variables {
		if !v.Kind.IsDiscrete() {
			continue
		}
		r := int64(math.Round(point[i]))
		for b := 0; b < 8; b++ {
			buf[b] = byte(r >> (8 * b))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

// satisfiedNLRows counts the nonlinear constraint rows an extended-space
// point already satisfies within the primal tolerance.
func (m *primalManager) satisfiedNLRows(point []float64) int {
	n := 0
	for i := range m.ref.NL {
		if m.ref.NL[i].ConstraintRef < 0 {
			continue
		}
		if m.ref.NL[i].G.Value(point) <= m.opts.Primal.FeasTol {
			n++
		}
	}
	return n
}

// selectFixedNLPCandidates picks assignments for the fixed-integer NLP: the
// incumbent candidate of the dual solve always goes, then the pool candidates
// ranked by satisfied nonlinear rows first and objective second, up to the
// configured cap, skipping assignments tested before.
func (m *primalManager) selectFixedNLPCandidates(points []SolutionPoint) []SolutionPoint {
	if len(points) == 0 || m.ref.Original.NumDiscrete() == 0 {
		return nil
	}
	type rankedCandidate struct {
		sp        SolutionPoint
		satisfied int
	}
	rest := make([]rankedCandidate, 0, len(points)-1)
	for _, sp := range points[1:] {
		rest = append(rest, rankedCandidate{sp: sp, satisfied: m.satisfiedNLRows(sp.Point)})
	}
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].satisfied != rest[j].satisfied {
			return rest[i].satisfied > rest[j].satisfied
		}
		return rest[i].sp.Objective < rest[j].sp.Objective
	})

	var picked []SolutionPoint
	seen := make(map[uint64]struct{})
	consider := func(sp SolutionPoint) {
		if len(picked) >= m.opts.Primal.MaxFixedNLPCandidates {
			return
		}
		h := m.assignmentHash(sp.Point)
		if _, dup := seen[h]; dup {
			return
		}
		if _, done := m.tested[h]; done {
			return
		}
		seen[h] = struct{}{}
		picked = append(picked, sp)
	}
	consider(points[0])
	for _, rc := range rest {
		consider(rc.sp)
	}
	return picked
}

// runFixedNLPs solves the fixed-integer NLP for each selected assignment and
// distributes the results: feasible optima become incumbents plus objective
// linearizations, infeasible assignments become integer cuts, and strictly
// feasible points refresh the interior-point service.
func (m *primalManager) runFixedNLPs(ctx context.Context, candidates []SolutionPoint, iter int) error {
	for _, sp := range candidates {
		h := m.assignmentHash(sp.Point)
		m.tested[h] = struct{}{}

		fixed := make(map[int]float64)
		for i, v := range m.ref.Original.Variables {
			if v.Kind.IsDiscrete() {
				fixed[i] = math.Round(sp.Point[i])
			}
		}
		start := m.ref.Shrink(sp.Point)

		out, err := m.nlp.SolveFixed(ctx, fixed, start, m.opts.Limits.TimeNLPPerIter)
		if err != nil {
			m.logger.Print("fixed NLP failed, skipping assignment: ", err)
			continue
		}

		switch out.Status {
		case NLPStatusOptimal, NLPStatusFeasible:
			m.tryAccept(out.Point, PrimalSourceNLPFixed, iter)
			m.afterFeasibleNLP(out.Point, iter)

		case NLPStatusInfeasibleLocal:
			m.maybeIntegerCut(fixed, iter)

		case NLPStatusLimit:
			// assignment stays marked tested; retrying next iteration would
			// just burn the same budget again
			m.logger.Print("fixed NLP hit its limit for assignment at iteration ", iter)
		}
	}
	return nil
}

// afterFeasibleNLP emits an objective linearization at the NLP optimum (it is
// the strongest supporting point available) and offers the point to the
// interior-point service when it is strictly inside the nonlinear feasible
// set.
func (m *primalManager) afterFeasibleNLP(x []float64, iter int) {
	ext := m.ref.Extend(x)

	if m.ref.ObjVar >= 0 {
		for i := range m.ref.NL {
			if m.ref.NL[i].ConstraintRef != -1 {
				continue
			}
			if h, ok := hyperplaneFromGradient(m.ref, m.logger, SourceObjectiveLinearization, i, ext, iter); ok {
				m.pool.add(h)
			}
			break
		}
	}

	slack := m.ref.minConstraintSlack(ext)
	if !math.IsInf(slack, 0) && slack >= m.opts.Interior.MinSlack {
		m.interior.offer(x, slack)
	}
}

// maybeIntegerCut excludes an infeasible assignment from the dual problem.
// Only sound when every discrete variable is binary.
func (m *primalManager) maybeIntegerCut(fixed map[int]float64, iter int) {
	if m.opts.IntegerCut.Policy == IntegerCutOff {
		return
	}
	if !m.ref.Original.allDiscreteBinary() {
		m.logger.Print("skipping integer cut: not all discrete variables are binary")
		return
	}
	var ones, zeros []int
	for i, v := range fixed {
		if v > 0.5 {
			ones = append(ones, i)
		} else {
			zeros = append(zeros, i)
		}
	}
	sort.Ints(ones)
	sort.Ints(zeros)
	if m.pool.addIntegerCut(IntegerCut{Ones: ones, Zeros: zeros, Iteration: iter}) {
		m.logger.Print("added integer cut excluding an infeasible assignment")
	}
}

// excludeTested adds integer cuts for every tested assignment, used under the
// on-every-tested policy after the fixed NLP round.
func (m *primalManager) excludeTested(points []SolutionPoint, iter int) {
	if m.opts.IntegerCut.Policy != IntegerCutOnEveryTested {
		return
	}
	if !m.ref.Original.allDiscreteBinary() {
		return
	}
	for _, sp := range points {
		var ones, zeros []int
		for i, v := range m.ref.Original.Variables {
			if !v.Kind.IsDiscrete() {
				continue
			}
			if math.Round(sp.Point[i]) > 0.5 {
				ones = append(ones, i)
			} else {
				zeros = append(zeros, i)
			}
		}
		m.pool.addIntegerCut(IntegerCut{Ones: ones, Zeros: zeros, Iteration: iter})
	}
}
