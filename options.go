package minlp

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Strategy selects the solution strategy graph.
type Strategy int

const (
	StrategyMultiTree Strategy = iota
	StrategySingleTree
	StrategyDirectMIQCQP
	StrategyPureNLP
)

func (s Strategy) String() string {
	switch s {
	case StrategyMultiTree:
		return "multi-tree"
	case StrategySingleTree:
		return "single-tree"
	case StrategyDirectMIQCQP:
		return "direct-MIQCQP"
	case StrategyPureNLP:
		return "pure-NLP"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

func parseStrategy(s string) (Strategy, error) {
	switch s {
	case "multi-tree":
		return StrategyMultiTree, nil
	case "single-tree":
		return StrategySingleTree, nil
	case "direct-MIQCQP":
		return StrategyDirectMIQCQP, nil
	case "pure-NLP":
		return StrategyPureNLP, nil
	}
	return 0, errors.Errorf("unknown strategy %q", s)
}

// PoolLimitStrategy controls how many solutions the dual asks for per solve.
type PoolLimitStrategy int

const (
	PoolLimitUnlimited PoolLimitStrategy = iota
	PoolLimitIncrease
	PoolLimitAdaptive
)

func (s PoolLimitStrategy) String() string {
	switch s {
	case PoolLimitUnlimited:
		return "unlimited"
	case PoolLimitIncrease:
		return "increase"
	case PoolLimitAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("PoolLimitStrategy(%d)", int(s))
	}
}

func parsePoolLimitStrategy(s string) (PoolLimitStrategy, error) {
	switch s {
	case "unlimited":
		return PoolLimitUnlimited, nil
	case "increase":
		return PoolLimitIncrease, nil
	case "adaptive":
		return PoolLimitAdaptive, nil
	}
	return 0, errors.Errorf("unknown pool limit strategy %q", s)
}

// CutSource selects the preferred hyperplane generator.
type CutSource int

const (
	CutSourceESH CutSource = iota
	CutSourceECP
)

func (s CutSource) String() string {
	if s == CutSourceECP {
		return "ECP"
	}
	return "ESH"
}

func parseCutSource(s string) (CutSource, error) {
	switch s {
	case "ESH":
		return CutSourceESH, nil
	case "ECP":
		return CutSourceECP, nil
	}
	return 0, errors.Errorf("unknown hyperplane source %q", s)
}

// IntegerCutPolicy controls when no-good cuts are emitted.
type IntegerCutPolicy int

const (
	IntegerCutOnInfeasibleOnly IntegerCutPolicy = iota
	IntegerCutOnEveryTested
	IntegerCutOff
)

func (p IntegerCutPolicy) String() string {
	switch p {
	case IntegerCutOnInfeasibleOnly:
		return "on-infeasible-only"
	case IntegerCutOnEveryTested:
		return "on-every-tested"
	case IntegerCutOff:
		return "off"
	default:
		return fmt.Sprintf("IntegerCutPolicy(%d)", int(p))
	}
}

func parseIntegerCutPolicy(s string) (IntegerCutPolicy, error) {
	switch s {
	case "on-infeasible-only":
		return IntegerCutOnInfeasibleOnly, nil
	case "on-every-tested":
		return IntegerCutOnEveryTested, nil
	case "off":
		return IntegerCutOff, nil
	}
	return 0, errors.Errorf("unknown integer cut policy %q", s)
}

// InteriorStrategy selects how the initial interior point is constructed.
type InteriorStrategy int

const (
	InteriorSlackMax InteriorStrategy = iota
	InteriorFeasibilityNLP
)

func (s InteriorStrategy) String() string {
	if s == InteriorFeasibilityNLP {
		return "feasibility-NLP"
	}
	return "slack-max"
}

func parseInteriorStrategy(s string) (InteriorStrategy, error) {
	switch s {
	case "slack-max":
		return InteriorSlackMax, nil
	case "feasibility-NLP":
		return InteriorFeasibilityNLP, nil
	}
	return 0, errors.Errorf("unknown interior strategy %q", s)
}

// Options is the closed configuration set of the solver. Name-based
// configuration uses dotted lower_snake names, e.g. "cuts.max_per_iteration".
type Options struct {
	Dual struct {
		Strategy          Strategy
		PoolLimitStrategy PoolLimitStrategy
		FeasTol           float64
	}
	Cuts struct {
		Source                 CutSource
		MaxPerIteration        int
		DedupCoefPrecision     int
		ObjectiveReductionCut  bool
		MaxPrimalReductionCuts int
	}
	Primal struct {
		FeasTol               float64
		BoundTol              float64
		ObjImprovementAbsTol  float64
		ObjImprovementRelTol  float64
		MaxFixedNLPCandidates int
	}
	Gap struct {
		AbsoluteTol float64
		RelativeTol float64
	}
	Rootsearch struct {
		LambdaTol   float64
		ResidualTol float64
		MaxIter     int
	}
	Interior struct {
		MinSlack float64
		Strategy InteriorStrategy
	}
	Limits struct {
		IterMax         int
		TimeMax         time.Duration
		TimeDualPerIter time.Duration
		TimeNLPPerIter  time.Duration
	}
	Relaxation struct {
		LPPhaseIterBudget int
		StagnationWindow  int
		StagnationTol     float64
	}
	IntegerCut struct {
		Policy IntegerCutPolicy
	}
	Repair struct {
		MaxAttempts        int
		DropRecentFraction float64
	}
}

// DefaultOptions returns the baseline configuration.
func DefaultOptions() Options {
	var o Options
	o.Dual.Strategy = StrategyMultiTree
	o.Dual.PoolLimitStrategy = PoolLimitIncrease
	o.Dual.FeasTol = 1e-6

	o.Cuts.Source = CutSourceESH
	o.Cuts.MaxPerIteration = 20
	o.Cuts.DedupCoefPrecision = 8
	o.Cuts.ObjectiveReductionCut = false
	o.Cuts.MaxPrimalReductionCuts = 20

	o.Primal.FeasTol = 1e-6
	o.Primal.BoundTol = 1e-8
	o.Primal.ObjImprovementAbsTol = 1e-9
	o.Primal.ObjImprovementRelTol = 1e-9
	o.Primal.MaxFixedNLPCandidates = 5

	o.Gap.AbsoluteTol = 1e-6
	o.Gap.RelativeTol = 1e-6

	o.Rootsearch.LambdaTol = 1e-10
	o.Rootsearch.ResidualTol = 1e-8
	o.Rootsearch.MaxIter = 100

	o.Interior.MinSlack = 1e-6
	o.Interior.Strategy = InteriorSlackMax

	o.Limits.IterMax = 200
	o.Limits.TimeMax = 10 * time.Minute
	o.Limits.TimeDualPerIter = time.Minute
	o.Limits.TimeNLPPerIter = time.Minute

	o.Relaxation.LPPhaseIterBudget = 0
	o.Relaxation.StagnationWindow = 5
	o.Relaxation.StagnationTol = 1e-6

	o.IntegerCut.Policy = IntegerCutOnInfeasibleOnly

	o.Repair.MaxAttempts = 3
	o.Repair.DropRecentFraction = 0.25
	return o
}

// Validate reports configuration errors. It is called at Solve entry so that
// invalid combinations abort before any backend work starts.
func (o *Options) Validate() error {
	switch {
	case o.Cuts.MaxPerIteration < 0:
		return errors.New("cuts.max_per_iteration must be >= 0")
	case o.Cuts.DedupCoefPrecision < 0 || o.Cuts.DedupCoefPrecision > 15:
		return errors.New("cuts.dedup_coef_precision must be in [0, 15]")
	case o.Cuts.MaxPrimalReductionCuts < 0:
		return errors.New("cuts.max_primal_reduction_cuts must be >= 0")
	case o.Primal.FeasTol <= 0 || o.Dual.FeasTol <= 0:
		return errors.New("feasibility tolerances must be > 0")
	case o.Gap.AbsoluteTol < 0 || o.Gap.RelativeTol < 0:
		return errors.New("gap tolerances must be >= 0")
	case o.Rootsearch.LambdaTol <= 0 || o.Rootsearch.ResidualTol <= 0:
		return errors.New("rootsearch tolerances must be > 0")
	case o.Rootsearch.MaxIter <= 0:
		return errors.New("rootsearch.max_iter must be > 0")
	case o.Interior.MinSlack <= 0:
		return errors.New("interior.min_slack must be > 0")
	case o.Limits.IterMax <= 0:
		return errors.New("limits.iter_max must be > 0")
	case o.Limits.TimeMax <= 0:
		return errors.New("limits.time_max must be > 0")
	case o.Relaxation.LPPhaseIterBudget < 0:
		return errors.New("relaxation.lp_phase_iter_budget must be >= 0")
	case o.Relaxation.StagnationWindow <= 0:
		return errors.New("relaxation.stagnation_window must be > 0")
	case o.Repair.MaxAttempts < 0:
		return errors.New("repair.max_attempts must be >= 0")
	case o.Repair.DropRecentFraction <= 0 || o.Repair.DropRecentFraction > 1:
		return errors.New("repair.drop_recent_fraction must be in (0, 1]")
	}
	return nil
}

// Set applies one option by its dotted name. Accepted value types follow the
// option: float64, int, bool or string (enums take their string form).
func (o *Options) Set(name string, value interface{}) error {
	var err error
	switch name {
	case "dual.strategy":
		err = withString(value, func(s string) error {
			v, perr := parseStrategy(s)
			o.Dual.Strategy = v
			return perr
		})
	case "dual.pool_limit_strategy":
		err = withString(value, func(s string) error {
			v, perr := parsePoolLimitStrategy(s)
			o.Dual.PoolLimitStrategy = v
			return perr
		})
	case "dual.feas_tol":
		err = withFloat(value, &o.Dual.FeasTol)
	case "cuts.hyperplane_source":
		err = withString(value, func(s string) error {
			v, perr := parseCutSource(s)
			o.Cuts.Source = v
			return perr
		})
	case "cuts.max_per_iteration":
		err = withInt(value, &o.Cuts.MaxPerIteration)
	case "cuts.dedup_coef_precision":
		err = withInt(value, &o.Cuts.DedupCoefPrecision)
	case "cuts.objective_reduction_cut":
		err = withBool(value, &o.Cuts.ObjectiveReductionCut)
	case "cuts.max_primal_reduction_cuts":
		err = withInt(value, &o.Cuts.MaxPrimalReductionCuts)
	case "primal.feas_tol":
		err = withFloat(value, &o.Primal.FeasTol)
	case "gap.absolute_tol":
		err = withFloat(value, &o.Gap.AbsoluteTol)
	case "gap.relative_tol":
		err = withFloat(value, &o.Gap.RelativeTol)
	case "rootsearch.lambda_tol":
		err = withFloat(value, &o.Rootsearch.LambdaTol)
	case "rootsearch.residual_tol":
		err = withFloat(value, &o.Rootsearch.ResidualTol)
	case "rootsearch.max_iter":
		err = withInt(value, &o.Rootsearch.MaxIter)
	case "interior.min_slack":
		err = withFloat(value, &o.Interior.MinSlack)
	case "interior.strategy":
		err = withString(value, func(s string) error {
			v, perr := parseInteriorStrategy(s)
			o.Interior.Strategy = v
			return perr
		})
	case "limits.iter_max":
		err = withInt(value, &o.Limits.IterMax)
	case "limits.time_max":
		err = withDuration(value, &o.Limits.TimeMax)
	case "limits.time_dual_per_iter":
		err = withDuration(value, &o.Limits.TimeDualPerIter)
	case "limits.time_nlp_per_iter":
		err = withDuration(value, &o.Limits.TimeNLPPerIter)
	case "relaxation.lp_phase_iter_budget":
		err = withInt(value, &o.Relaxation.LPPhaseIterBudget)
	case "relaxation.stagnation_window":
		err = withInt(value, &o.Relaxation.StagnationWindow)
	case "integercut.policy":
		err = withString(value, func(s string) error {
			v, perr := parseIntegerCutPolicy(s)
			o.IntegerCut.Policy = v
			return perr
		})
	case "repair.max_attempts":
		err = withInt(value, &o.Repair.MaxAttempts)
	case "repair.drop_recent_fraction":
		err = withFloat(value, &o.Repair.DropRecentFraction)
	default:
		return errors.Errorf("unknown option %q", name)
	}
	return errors.Wrapf(err, "option %q", name)
}

func withFloat(value interface{}, dst *float64) error {
	switch v := value.(type) {
	case float64:
		*dst = v
	case int:
		*dst = float64(v)
	default:
		return errors.Errorf("expected float64, got %T", value)
	}
	return nil
}

func withInt(value interface{}, dst *int) error {
	v, ok := value.(int)
	if !ok {
		return errors.Errorf("expected int, got %T", value)
	}
	*dst = v
	return nil
}

func withBool(value interface{}, dst *bool) error {
	v, ok := value.(bool)
	if !ok {
		return errors.Errorf("expected bool, got %T", value)
	}
	*dst = v
	return nil
}

func withDuration(value interface{}, dst *time.Duration) error {
	switch v := value.(type) {
	case time.Duration:
		*dst = v
	case float64:
		*dst = time.Duration(v * float64(time.Second))
	case int:
		*dst = time.Duration(v) * time.Second
	default:
		return errors.Errorf("expected duration or seconds, got %T", value)
	}
	return nil
}

func withString(value interface{}, apply func(string) error) error {
	v, ok := value.(string)
	if !ok {
		return errors.Errorf("expected string, got %T", value)
	}
	return apply(v)
}
