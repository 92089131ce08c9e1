package minlp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptionsValidate(t *testing.T) {
	o := DefaultOptions()
	assert.NoError(t, o.Validate())
}

func TestOptionsValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"negative max cuts", func(o *Options) { o.Cuts.MaxPerIteration = -1 }},
		{"precision out of range", func(o *Options) { o.Cuts.DedupCoefPrecision = 16 }},
		{"zero feasibility tolerance", func(o *Options) { o.Primal.FeasTol = 0 }},
		{"negative gap tolerance", func(o *Options) { o.Gap.AbsoluteTol = -1 }},
		{"zero rootsearch iterations", func(o *Options) { o.Rootsearch.MaxIter = 0 }},
		{"zero min slack", func(o *Options) { o.Interior.MinSlack = 0 }},
		{"zero iteration limit", func(o *Options) { o.Limits.IterMax = 0 }},
		{"zero stagnation window", func(o *Options) { o.Relaxation.StagnationWindow = 0 }},
		{"drop fraction above one", func(o *Options) { o.Repair.DropRecentFraction = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			assert.Error(t, o.Validate())
		})
	}
}

func TestOptionsSet(t *testing.T) {
	o := DefaultOptions()

	assert.NoError(t, o.Set("dual.strategy", "single-tree"))
	assert.Equal(t, StrategySingleTree, o.Dual.Strategy)

	assert.NoError(t, o.Set("dual.pool_limit_strategy", "adaptive"))
	assert.Equal(t, PoolLimitAdaptive, o.Dual.PoolLimitStrategy)

	assert.NoError(t, o.Set("cuts.hyperplane_source", "ECP"))
	assert.Equal(t, CutSourceECP, o.Cuts.Source)

	assert.NoError(t, o.Set("cuts.max_per_iteration", 7))
	assert.Equal(t, 7, o.Cuts.MaxPerIteration)

	assert.NoError(t, o.Set("cuts.objective_reduction_cut", true))
	assert.True(t, o.Cuts.ObjectiveReductionCut)

	assert.NoError(t, o.Set("gap.relative_tol", 1e-4))
	assert.Equal(t, 1e-4, o.Gap.RelativeTol)

	// ints are accepted where floats are expected
	assert.NoError(t, o.Set("gap.absolute_tol", 2))
	assert.Equal(t, 2.0, o.Gap.AbsoluteTol)

	assert.NoError(t, o.Set("limits.time_max", 30*time.Second))
	assert.Equal(t, 30*time.Second, o.Limits.TimeMax)

	// bare numbers mean seconds for duration options
	assert.NoError(t, o.Set("limits.time_dual_per_iter", 2))
	assert.Equal(t, 2*time.Second, o.Limits.TimeDualPerIter)

	assert.NoError(t, o.Set("integercut.policy", "off"))
	assert.Equal(t, IntegerCutOff, o.IntegerCut.Policy)
}

func TestOptionsSetErrors(t *testing.T) {
	o := DefaultOptions()
	assert.Error(t, o.Set("no.such.option", 1))
	assert.Error(t, o.Set("dual.strategy", "teleport"))
	assert.Error(t, o.Set("cuts.max_per_iteration", "seven"))
	assert.Error(t, o.Set("gap.absolute_tol", true))
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "multi-tree", StrategyMultiTree.String())
	assert.Equal(t, "single-tree", StrategySingleTree.String())
	assert.Equal(t, "ESH", CutSourceESH.String())
	assert.Equal(t, "ECP", CutSourceECP.String())
	assert.Equal(t, "unlimited", PoolLimitUnlimited.String())
	assert.Equal(t, "on-infeasible-only", IntegerCutOnInfeasibleOnly.String())
	assert.Equal(t, "slack-max", InteriorSlackMax.String())
}
