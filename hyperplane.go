package minlp

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
)

// HyperplaneSource tags where a cut was generated.
type HyperplaneSource int

const (
	SourceESHBoundary HyperplaneSource = iota
	SourceECPCandidate
	SourceObjectiveLinearization
	SourceIntegerCut
	SourceRootRelaxation
	SourceInteriorUpdate
	SourceRepair
)

func (s HyperplaneSource) String() string {
	switch s {
	case SourceESHBoundary:
		return "ESH-boundary"
	case SourceECPCandidate:
		return "ECP-candidate"
	case SourceObjectiveLinearization:
		return "objective-linearization"
	case SourceIntegerCut:
		return "integer-cut"
	case SourceRootRelaxation:
		return "root-relaxation"
	case SourceInteriorUpdate:
		return "interior-update"
	case SourceRepair:
		return "repair"
	default:
		return fmt.Sprintf("HyperplaneSource(%d)", int(s))
	}
}

// Hyperplane is one supporting linearization row. ConstraintRef indexes the
// originating nonlinear constraint of P, or is -1 when the cut linearizes the
// objective epigraph. Row holds the inequality Coeffs·x ≤ UB.
type Hyperplane struct {
	Source        HyperplaneSource
	ConstraintRef int
	Point         []float64
	Row           LinearRow
	Iteration     int

	hash uint64
}

// IntegerCut excludes one binary assignment via the no-good inequality
// sum(1−y_j : j in Ones) + sum(y_j : j in Zeros) ≥ 1.
type IntegerCut struct {
	Ones      []int
	Zeros     []int
	Iteration int

	hash uint64
}

// Row renders the no-good inequality as a linear row over nvars variables.
func (c IntegerCut) Row(nvars int) LinearRow {
	coeffs := make(map[int]float64, len(c.Ones)+len(c.Zeros))
	for _, j := range c.Ones {
		coeffs[j] = -1
	}
	for _, j := range c.Zeros {
		coeffs[j] = 1
	}
	return LinearRow{
		Name:   fmt.Sprintf("integer_cut_%d", c.Iteration),
		Coeffs: coeffs,
		LB:     1 - float64(len(c.Ones)),
		UB:     math.Inf(1),
	}
}

// hyperplanePool owns every generated linearization and integer-exclusion
// row. It guarantees hash-based de-duplication and FIFO injection order.
// Not safe for concurrent use; the single-tree driver serializes access.
type hyperplanePool struct {
	precision int

	waiting   []Hyperplane
	generated []Hyperplane
	seen      map[uint64]struct{}

	intWaiting   []IntegerCut
	intGenerated []IntegerCut
	intSeen      map[uint64]struct{}
}

func newHyperplanePool(precision int) *hyperplanePool {
	return &hyperplanePool{
		precision: precision,
		seen:      make(map[uint64]struct{}),
		intSeen:   make(map[uint64]struct{}),
	}
}

// add puts a candidate hyperplane on the waiting list unless an identical
// cut (same constraint, same rounded coefficient signature) was seen before.
func (p *hyperplanePool) add(h Hyperplane) bool {
	h.hash = hashRow(h.ConstraintRef, h.Row.Coeffs, h.Row.UB, p.precision)
	if _, dup := p.seen[h.hash]; dup {
		return false
	}
	p.seen[h.hash] = struct{}{}
	p.waiting = append(p.waiting, h)
	return true
}

// flush pops up to max hyperplanes from the waiting list in FIFO order and
// moves them to the generated list. max ≤ 0 means all.
func (p *hyperplanePool) flush(max int) []Hyperplane {
	n := len(p.waiting)
	if max > 0 && max < n {
		n = max
	}
	out := p.waiting[:n:n]
	p.waiting = p.waiting[n:]
	p.generated = append(p.generated, out...)
	return out
}

func (p *hyperplanePool) waitingCount() int   { return len(p.waiting) }
func (p *hyperplanePool) generatedCount() int { return len(p.generated) }

// addIntegerCut enqueues a no-good cut, de-duplicated over the assignment.
func (p *hyperplanePool) addIntegerCut(c IntegerCut) bool {
	c.hash = hashAssignment(c.Ones, c.Zeros)
	if _, dup := p.intSeen[c.hash]; dup {
		return false
	}
	p.intSeen[c.hash] = struct{}{}
	p.intWaiting = append(p.intWaiting, c)
	return true
}

func (p *hyperplanePool) flushIntegerCuts() []IntegerCut {
	out := p.intWaiting
	p.intWaiting = nil
	p.intGenerated = append(p.intGenerated, out...)
	return out
}

func (p *hyperplanePool) integerCutCount() int { return len(p.intGenerated) }

// hashRow computes the stable identity of a cut: FNV-1a over the constraint
// reference and the coefficients rounded to the configured precision, visited
// in ascending variable order.
func hashRow(constraintRef int, coeffs map[int]float64, rhs float64, precision int) uint64 {
	scale := math.Pow(10, float64(precision))
	idx := make([]int, 0, len(coeffs))
	for i := range coeffs {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	h := fnv.New64a()
	writeInt64 := func(v int64) {
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	writeInt64(int64(constraintRef))
	for _, i := range idx {
		q := math.Round(coeffs[i] * scale)
		if q == 0 {
			continue
		}
		writeInt64(int64(i))
		writeInt64(int64(q))
	}
	writeInt64(int64(math.Round(rhs * scale)))
	return h.Sum64()
}

// hashAssignment identifies a binary assignment by its one/zero index sets.
func hashAssignment(ones, zeros []int) uint64 {
	o := append([]int(nil), ones...)
	z := append([]int(nil), zeros...)
	sort.Ints(o)
	sort.Ints(z)

	h := fnv.New64a()
	write := func(tag byte, vals []int) {
		for _, v := range vals {
			var buf [9]byte
			buf[0] = tag
			for i := 0; i < 8; i++ {
				buf[i+1] = byte(v >> (8 * i))
			}
			h.Write(buf[:])
		}
	}
	write(1, o)
	write(0, z)
	return h.Sum64()
}
