package minlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInteriorServiceOffer(t *testing.T) {
	s := newInteriorService(1e-6)

	_, ok := s.get()
	assert.False(t, ok)

	// below the minimum slack there is no certificate
	assert.False(t, s.offer([]float64{0}, 1e-9))

	assert.True(t, s.offer([]float64{0}, 1.0))
	ip, ok := s.get()
	assert.True(t, ok)
	assert.Equal(t, 1.0, ip.Slack)

	// only strictly better certificates replace the current point
	assert.False(t, s.offer([]float64{1}, 0.5))
	assert.False(t, s.offer([]float64{1}, 1.0))
	assert.True(t, s.offer([]float64{1}, 2.0))

	ip, _ = s.get()
	assert.Equal(t, []float64{1}, ip.Point)
	assert.Equal(t, 2.0, ip.Slack)
}

func TestInteriorServiceCopiesPoints(t *testing.T) {
	s := newInteriorService(1e-6)
	point := []float64{1, 2}
	s.offer(point, 1)
	point[0] = 99

	ip, _ := s.get()
	assert.Equal(t, []float64{1, 2}, ip.Point)

	// mutating the returned copy must not corrupt the stored point
	ip.Point[0] = -5
	again, _ := s.get()
	assert.Equal(t, []float64{1, 2}, again.Point)
}

func TestInteriorServiceInvalidate(t *testing.T) {
	s := newInteriorService(1e-6)
	s.offer([]float64{0}, 1)
	s.invalidate()
	_, ok := s.get()
	assert.False(t, ok)
}

func TestInteriorServiceRevalidate(t *testing.T) {
	p := NewProblem("revalidate")
	p.AddVariable("x", Continuous, -5, 5)
	assert.NoError(t, p.AddNonlinearConstraint("ball", sumSquares(0), 4))
	assert.NoError(t, p.SetObjective(Minimize, map[int]float64{0: 1}, 0, nil))
	ref := Reformulate(p)

	s := newInteriorService(1e-6)
	s.offer([]float64{0}, 4)
	s.revalidate(ref)
	_, ok := s.get()
	assert.True(t, ok)

	// a point on the boundary is no longer an interior certificate
	s.invalidate()
	s.offer([]float64{2}, 4)
	s.revalidate(ref)
	_, ok = s.get()
	assert.False(t, ok)
}
