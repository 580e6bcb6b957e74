package gates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func stateWithCheckpoint(t *testing.T, phase types.Phase, completeAll bool) *types.BrownfieldState {
	t.Helper()
	s := types.NewBrownfieldState(types.ProjectInfo{Name: "demo"}, "", testNow)
	s.CurrentPhase = phase
	cp, err := types.NewPhaseCheckpoint(phase, []types.TaskSpec{{ID: "one"}, {ID: "two"}}, testNow)
	require.NoError(t, err)
	require.NoError(t, cp.MarkTaskComplete("one", testNow))
	if completeAll {
		require.NoError(t, cp.MarkTaskComplete("two", testNow))
	}
	s.Checkpoints[phase] = cp
	return s
}

func alwaysPass(name string, from, to types.Phase) ReadinessGate {
	return ReadinessGate{Name: name, From: from, To: to, Predicate: func(*types.BrownfieldState, Inputs) Result { return Pass() }}
}

func fullCoverage() []ReadinessGate {
	return []ReadinessGate{
		alwaysPass("a", types.PhaseAssessment, types.PhasePlan),
		alwaysPass("b", types.PhasePlan, types.PhaseRemediation),
		alwaysPass("c", types.PhaseRemediation, types.PhaseValidation),
		alwaysPass("d", types.PhaseValidation, types.PhaseGraduation),
	}
}

func TestNewCatalogRequiresCoverage(t *testing.T) {
	_, err := NewCatalog(fullCoverage())
	require.NoError(t, err)

	_, err = NewCatalog(fullCoverage()[:3])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation -> graduation")
}

func TestNewCatalogRejectsInvalidGates(t *testing.T) {
	tests := []struct {
		name  string
		extra ReadinessGate
	}{
		{"non-adjacent", alwaysPass("skip", types.PhaseAssessment, types.PhaseRemediation)},
		{"backwards", alwaysPass("back", types.PhasePlan, types.PhaseAssessment)},
		{"duplicate name", alwaysPass("a", types.PhaseAssessment, types.PhasePlan)},
		{"no name", alwaysPass("", types.PhaseAssessment, types.PhasePlan)},
		{"no predicate", ReadinessGate{Name: "nil", From: types.PhasePlan, To: types.PhaseRemediation}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(append(fullCoverage(), tt.extra))
			assert.Error(t, err)
		})
	}
}

func TestEvaluateConcatenatesReasonsInOrder(t *testing.T) {
	gates := fullCoverage()
	gates = append(gates,
		ReadinessGate{Name: "first", From: types.PhasePlan, To: types.PhaseRemediation,
			Predicate: func(*types.BrownfieldState, Inputs) Result { return Fail("r1", "r2") }},
		alwaysPass("middle", types.PhasePlan, types.PhaseRemediation),
		ReadinessGate{Name: "other-transition", From: types.PhaseAssessment, To: types.PhasePlan,
			Predicate: func(*types.BrownfieldState, Inputs) Result { return Fail("not mine") }},
		ReadinessGate{Name: "last", From: types.PhasePlan, To: types.PhaseRemediation,
			Predicate: func(*types.BrownfieldState, Inputs) Result { return Fail("r3") }},
	)
	c, err := NewCatalog(gates)
	require.NoError(t, err)

	s := types.NewBrownfieldState(types.ProjectInfo{Name: "demo"}, "", testNow)
	eval, err := c.Evaluate(types.PhasePlan, types.PhaseRemediation, s, Inputs{})
	require.NoError(t, err)

	assert.False(t, eval.Passed)
	assert.Equal(t, []string{"r1", "r2", "r3"}, eval.UnmetReasons)
	require.Len(t, eval.Gates, 4)
	assert.Equal(t, "b", eval.Gates[0].Name)
	assert.Equal(t, "first", eval.Gates[1].Name)
	assert.Equal(t, "last", eval.Gates[3].Name)
}

func TestEvaluateRejectsNonAdjacent(t *testing.T) {
	c, err := NewCatalog(fullCoverage())
	require.NoError(t, err)
	s := types.NewBrownfieldState(types.ProjectInfo{Name: "demo"}, "", testNow)

	_, err = c.Evaluate(types.PhaseAssessment, types.PhaseValidation, s, Inputs{})
	require.Error(t, err)
	assert.True(t, types.IsInvalidState(err))
}

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := DefaultCatalog(DefaultThresholds())
	require.NoError(t, err)

	var names []string
	for _, g := range c.Gates() {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{
		"assessment-complete", "baseline-metrics", "tech-debt-analyzed",
		"plan-complete", "plan-artifacts",
		"remediation-complete", "critical-debt",
		"validation-complete", "validation-passed", "test-ratio",
	}, names)
}

func TestAssessmentGateReportsMissingBaseline(t *testing.T) {
	c, err := DefaultCatalog(DefaultThresholds())
	require.NoError(t, err)

	s := stateWithCheckpoint(t, types.PhaseAssessment, true)
	s.TechDebt = &types.DebtSummary{}

	eval, err := c.EvaluateNext(s, Inputs{})
	require.NoError(t, err)
	assert.False(t, eval.Passed)
	assert.Equal(t, []string{"baseline metrics missing"}, eval.UnmetReasons)

	s.Baseline = &types.Metrics{Files: 3}
	eval, err = c.EvaluateNext(s, Inputs{})
	require.NoError(t, err)
	assert.True(t, eval.Passed)
	assert.Empty(t, eval.UnmetReasons)
}

func TestAssessmentGateIncompleteTasks(t *testing.T) {
	c, err := DefaultCatalog(DefaultThresholds())
	require.NoError(t, err)

	s := stateWithCheckpoint(t, types.PhaseAssessment, false)
	eval, err := c.EvaluateNext(s, Inputs{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"assessment tasks incomplete (50% complete)",
		"baseline metrics missing",
		"tech debt analysis missing",
	}, eval.UnmetReasons)
}

func TestEvaluationIsDeterministic(t *testing.T) {
	c, err := DefaultCatalog(Thresholds{MaxCriticalDebt: 0, MinTestRatio: 0.5})
	require.NoError(t, err)

	s := stateWithCheckpoint(t, types.PhaseValidation, false)
	in := Inputs{
		Metrics: &types.Metrics{TestRatio: 0.1},
		Validation: &types.ValidationSummary{Results: []types.ValidationResult{
			{Name: "test", Passed: false},
			{Name: "build", Passed: true},
			{Name: "lint", Passed: false},
		}},
	}

	first, err := c.EvaluateNext(s, in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := c.EvaluateNext(s, in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{
		"validation tasks incomplete (50% complete)",
		"validation failed: test",
		"validation failed: lint",
		"test ratio 0.10 below minimum 0.50",
	}, first.UnmetReasons)
}

func TestCriticalDebtGate(t *testing.T) {
	c, err := DefaultCatalog(Thresholds{MaxCriticalDebt: 1})
	require.NoError(t, err)
	s := stateWithCheckpoint(t, types.PhaseRemediation, true)

	eval, err := c.EvaluateNext(s, Inputs{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech debt analysis missing"}, eval.UnmetReasons)

	debt := &types.DebtSummary{Items: []types.DebtItem{
		{Severity: types.DebtCritical}, {Severity: types.DebtCritical}, {Severity: types.DebtLow},
	}}
	eval, err = c.EvaluateNext(s, Inputs{Debt: debt})
	require.NoError(t, err)
	assert.Equal(t, []string{"critical tech debt items: 2 (max 1)"}, eval.UnmetReasons)

	debt.Items = debt.Items[1:]
	eval, err = c.EvaluateNext(s, Inputs{Debt: debt})
	require.NoError(t, err)
	assert.True(t, eval.Passed)
}

func TestEvaluateNextAtGraduation(t *testing.T) {
	c, err := DefaultCatalog(DefaultThresholds())
	require.NoError(t, err)
	s := types.NewBrownfieldState(types.ProjectInfo{Name: "demo"}, "", testNow)
	s.CurrentPhase = types.PhaseGraduation

	eval, err := c.EvaluateNext(s, Inputs{})
	require.NoError(t, err)
	assert.Nil(t, eval)
}
