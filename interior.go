package minlp

import (
	"math"
	"sync"
)

// InteriorPoint is a strictly feasible point w.r.t. the nonlinear constraints
// of P̂, with its certificate slack min_i(−g_i(point)) > 0.
type InteriorPoint struct {
	Point []float64
	Slack float64
}

// interiorService maintains the best known interior point. Points are
// replaced monotonically by points with larger certificate slack; when the
// maintained point loses strict feasibility the service is invalidated and
// ESH yields to ECP until a fresh point arrives.
type interiorService struct {
	mu       sync.Mutex
	minSlack float64
	current  *InteriorPoint
}

func newInteriorService(minSlack float64) *interiorService {
	return &interiorService{minSlack: minSlack}
}

// offer proposes a candidate interior point. It is adopted when its slack
// clears the minimum and improves on the current certificate.
func (s *interiorService) offer(point []float64, slack float64) bool {
	if slack < s.minSlack {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && slack <= s.current.Slack {
		return false
	}
	cp := make([]float64, len(point))
	copy(cp, point)
	s.current = &InteriorPoint{Point: cp, Slack: slack}
	return true
}

// get returns a copy of the current interior point.
func (s *interiorService) get() (InteriorPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return InteriorPoint{}, false
	}
	cp := make([]float64, len(s.current.Point))
	copy(cp, s.current.Point)
	return InteriorPoint{Point: cp, Slack: s.current.Slack}, true
}

// invalidate drops the maintained point, e.g. after bound tightening made it
// lose strict feasibility.
func (s *interiorService) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// revalidate re-checks the maintained point against the reformulation and
// drops it when it is no longer strictly feasible.
func (s *interiorService) revalidate(ref *Reformulation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	// The epigraph row is excluded: interior points certify the nonlinear
	// constraints only, the objective is handled by direct linearization.
	ext := ref.Extend(s.current.Point)
	worst := math.Inf(-1)
	for i := range ref.NL {
		if ref.NL[i].ConstraintRef < 0 {
			continue
		}
		if v := ref.NL[i].G.Value(ext); v > worst {
			worst = v
		}
	}
	if !math.IsInf(worst, -1) && worst > -s.minSlack {
		s.current = nil
	}
}
