package gates

import (
	"fmt"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Thresholds parameterise the built-in gates.
type Thresholds struct {
	// MaxCriticalDebt is the number of critical debt items tolerated when
	// leaving Remediation.
	MaxCriticalDebt int
	// MinTestRatio is the minimum test-file ratio required to graduate. Zero
	// disables the check.
	MinTestRatio float64
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxCriticalDebt: 0, MinTestRatio: 0}
}

// DefaultCatalog builds the built-in gate catalog.
func DefaultCatalog(th Thresholds) (*Catalog, error) {
	return NewCatalog(ReadinessGates(th))
}

// ReadinessGates returns the built-in gates in declaration order.
func ReadinessGates(th Thresholds) []ReadinessGate {
	return []ReadinessGate{
		{
			Name: "assessment-complete", From: types.PhaseAssessment, To: types.PhasePlan,
			Predicate: tasksComplete(types.PhaseAssessment),
		},
		{
			Name: "baseline-metrics", From: types.PhaseAssessment, To: types.PhasePlan,
			Predicate: func(s *types.BrownfieldState, _ Inputs) Result {
				if s.Baseline == nil {
					return Fail("baseline metrics missing")
				}
				return Pass()
			},
		},
		{
			Name: "tech-debt-analyzed", From: types.PhaseAssessment, To: types.PhasePlan,
			Predicate: func(s *types.BrownfieldState, _ Inputs) Result {
				if s.TechDebt == nil {
					return Fail("tech debt analysis missing")
				}
				return Pass()
			},
		},
		{
			Name: "plan-complete", From: types.PhasePlan, To: types.PhaseRemediation,
			Predicate: tasksComplete(types.PhasePlan),
		},
		{
			Name: "plan-artifacts", From: types.PhasePlan, To: types.PhaseRemediation,
			Predicate: func(s *types.BrownfieldState, _ Inputs) Result {
				if s.Plan == nil {
					return Fail("remediation plan not recorded")
				}
				return Pass()
			},
		},
		{
			Name: "remediation-complete", From: types.PhaseRemediation, To: types.PhaseValidation,
			Predicate: tasksComplete(types.PhaseRemediation),
		},
		{
			Name: "critical-debt", From: types.PhaseRemediation, To: types.PhaseValidation,
			Predicate: func(s *types.BrownfieldState, in Inputs) Result {
				debt := in.Debt
				if debt == nil {
					debt = s.TechDebt
				}
				if debt == nil {
					return Fail("tech debt analysis missing")
				}
				if n := debt.Count(types.DebtCritical); n > th.MaxCriticalDebt {
					return Fail(fmt.Sprintf("critical tech debt items: %d (max %d)", n, th.MaxCriticalDebt))
				}
				return Pass()
			},
		},
		{
			Name: "validation-complete", From: types.PhaseValidation, To: types.PhaseGraduation,
			Predicate: tasksComplete(types.PhaseValidation),
		},
		{
			Name: "validation-passed", From: types.PhaseValidation, To: types.PhaseGraduation,
			Predicate: func(s *types.BrownfieldState, in Inputs) Result {
				v := in.Validation
				if v == nil {
					v = s.Validation
				}
				if v == nil {
					return Fail("validation results missing")
				}
				var reasons []string
				for _, r := range v.Results {
					if !r.Passed {
						reasons = append(reasons, "validation failed: "+r.Name)
					}
				}
				if len(reasons) > 0 {
					return Fail(reasons...)
				}
				return Pass()
			},
		},
		{
			Name: "test-ratio", From: types.PhaseValidation, To: types.PhaseGraduation,
			Predicate: func(s *types.BrownfieldState, in Inputs) Result {
				if th.MinTestRatio <= 0 {
					return Pass()
				}
				m := in.Metrics
				if m == nil {
					return Fail("current metrics missing")
				}
				if m.TestRatio < th.MinTestRatio {
					return Fail(fmt.Sprintf("test ratio %.2f below minimum %.2f", m.TestRatio, th.MinTestRatio))
				}
				return Pass()
			},
		},
	}
}

// tasksComplete passes when every task of the phase's checkpoint is complete.
func tasksComplete(p types.Phase) Predicate {
	return func(s *types.BrownfieldState, _ Inputs) Result {
		cp := s.Checkpoint(p)
		if cp == nil {
			return Fail(fmt.Sprintf("%s tasks not started", p))
		}
		if pct := cp.ProgressPercentage(); pct < 100 {
			return Fail(fmt.Sprintf("%s tasks incomplete (%.0f%% complete)", p, pct))
		}
		return Pass()
	}
}
