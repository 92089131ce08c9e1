package minlp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultRootsearchOptions() rootsearchOptions {
	return rootsearchOptions{lambdaTol: 1e-10, residualTol: 1e-8, maxIter: 100}
}

func TestRootsearch(t *testing.T) {
	tests := []struct {
		name   string
		psi    func(float64) float64
		lo, hi float64
		root   float64
	}{
		{
			name: "linear",
			psi:  func(l float64) float64 { return 2*l - 1 },
			lo:   0, hi: 1,
			root: 0.5,
		},
		{
			name: "quadratic",
			psi:  func(l float64) float64 { return l*l - 2 },
			lo:   0, hi: 2,
			root: math.Sqrt2,
		},
		{
			name: "reversed bracket",
			psi:  func(l float64) float64 { return 1 - 2*l },
			lo:   0, hi: 1,
			root: 0.5,
		},
		{
			name: "steep boundary",
			psi:  func(l float64) float64 { return math.Exp(10*l) - 100 },
			lo:   0, hi: 1,
			root: math.Log(100) / 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rootsearch(tt.psi, tt.lo, tt.hi, defaultRootsearchOptions())
			assert.NoError(t, err)
			assert.InDelta(t, tt.root, got, 1e-6)
		})
	}
}

func TestRootsearchNotBracketed(t *testing.T) {
	psi := func(l float64) float64 { return l + 1 }
	_, err := rootsearch(psi, 0, 1, defaultRootsearchOptions())
	assert.Equal(t, ErrNotBracketed, err)
}

func TestRootsearchEndpointIsRoot(t *testing.T) {
	psi := func(l float64) float64 { return l }
	got, err := rootsearch(psi, 0, 1, defaultRootsearchOptions())
	assert.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestRootsearchNaN(t *testing.T) {
	psi := func(l float64) float64 { return math.NaN() }
	_, err := rootsearch(psi, 0, 1, defaultRootsearchOptions())
	assert.Error(t, err)
}
