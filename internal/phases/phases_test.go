package phases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacopone/brownkit-sub001/internal/analysis"
	"github.com/jacopone/brownkit-sub001/internal/plugins"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func goProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"go.mod":   "module example.com/legacy\n\ngo 1.21\n",
		"main.go":  "package main\n\n// FIXME: handle signals\nfunc main() {}\n",
		"store.go": "package main\n\n// XXX security: plaintext passwords\n// TODO: pool\nvar db = 1\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0644))
	}
	return root
}

func newEnv(root string) *Env {
	return &Env{
		Root:     root,
		State:    types.NewBrownfieldState(types.ProjectInfo{Name: "legacy", Path: root}, "base", now),
		Registry: plugins.DefaultRegistry(),
		Metrics:  analysis.NewFileMetrics(),
		Debt:     analysis.NewMarkerAnalyzer(),
		Now:      func() time.Time { return now },
	}
}

func runAll(t *testing.T, def *Definition, env *Env) []*Result {
	t.Helper()
	var out []*Result
	for _, task := range def.Tasks {
		res, err := task.Run(context.Background(), env)
		require.NoError(t, err, task.ID)
		out = append(out, res)
	}
	return out
}

func TestDefaultSetCoversEveryPhase(t *testing.T) {
	set := Default()
	for _, p := range types.AllPhases() {
		def, err := set.For(p)
		require.NoError(t, err, p)
		assert.NotEmpty(t, def.Specs())
	}
	assert.Len(t, Assessment().Tasks, 3)
}

func TestDefinitionValidate(t *testing.T) {
	noop := func(context.Context, *Env) (*Result, error) { return &Result{}, nil }

	_, err := NewSet(&Definition{Phase: types.PhasePlan})
	assert.ErrorContains(t, err, "has no tasks")

	_, err = NewSet(&Definition{Phase: types.PhasePlan, Tasks: []Task{{ID: "a", Run: noop}, {ID: "a", Run: noop}}})
	assert.ErrorContains(t, err, "duplicate task")

	_, err = NewSet(&Definition{Phase: types.PhasePlan, Tasks: []Task{{ID: "a"}}})
	assert.Error(t, err)

	set, err := NewSet(&Definition{Phase: types.PhasePlan, Tasks: []Task{{ID: "a", Run: noop}}})
	require.NoError(t, err)
	_, err = set.For(types.PhaseGraduation)
	assert.True(t, types.IsInvalidState(err))
}

func TestAssessmentTasks(t *testing.T) {
	root := goProject(t)
	env := newEnv(root)

	results := runAll(t, Assessment(), env)

	assert.Equal(t, "go", env.State.Project.Language)
	require.Len(t, results[0].Decisions, 1)
	assert.Equal(t, "Use the go language handler", results[0].Decisions[0].Decision)
	assert.Equal(t, "Use the python language handler", results[0].Decisions[0].Alternatives[0].Description)

	require.NotNil(t, env.State.Baseline)
	assert.Equal(t, 2, env.State.Baseline.SourceFiles)
	require.NotNil(t, env.State.TechDebt)
	assert.Equal(t, 1, env.State.TechDebt.Count(types.DebtCritical))
	assert.Equal(t, []string{"debt:items=3,critical=1"}, results[2].Artifacts)
}

func TestDetectLanguageUnsupportedIsPermanent(t *testing.T) {
	env := newEnv(t.TempDir())
	_, err := Assessment().Tasks[0].Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestPrioritizeDebt(t *testing.T) {
	items := PrioritizeDebt(&types.DebtSummary{Items: []types.DebtItem{
		{File: "b.go", Severity: types.DebtMedium},
		{File: "a.go", Severity: types.DebtHigh},
		{File: "c.go", Severity: types.DebtLow},
		{File: "b.go", Severity: types.DebtCritical},
		{File: "a.go", Severity: types.DebtMedium},
	}})
	require.Len(t, items, 2)
	assert.Equal(t, types.PlanItem{ID: "debt-01", Title: "Resolve 2 debt markers in b.go", Severity: types.DebtCritical, Files: []string{"b.go"}}, items[0])
	assert.Equal(t, types.PlanItem{ID: "debt-02", Title: "Resolve 2 debt markers in a.go", Severity: types.DebtHigh, Files: []string{"a.go"}}, items[1])
}

func TestPlanTasks(t *testing.T) {
	env := newEnv(goProject(t))
	runAll(t, Assessment(), env)

	results := runAll(t, Plan(), env)
	require.NotNil(t, env.State.Plan)
	assert.Equal(t, now, env.State.Plan.RecordedAt)
	ids := make([]string, 0, len(env.State.Plan.Items))
	for _, item := range env.State.Plan.Items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"setup-structure", "setup-tests", "setup-quality", "debt-01", "debt-02"}, ids)
	assert.Equal(t, types.RiskMedium, results[1].Decisions[0].ChosenRisk)

	// re-running the last task does not duplicate setup items
	_, err := Plan().Tasks[1].Run(context.Background(), env)
	require.NoError(t, err)
	assert.Len(t, env.State.Plan.Items, 5)
}

func TestPlanWithoutDebtIsPermanent(t *testing.T) {
	env := newEnv(goProject(t))
	_, err := Plan().Tasks[0].Run(context.Background(), env)
	assert.True(t, IsPermanent(err))
}

func TestRemediationTasks(t *testing.T) {
	root := goProject(t)
	env := newEnv(root)
	env.State.Project.Language = "go"

	results := runAll(t, Remediation(), env)

	assert.Equal(t, []string{"internal/doc.go"}, results[0].Files)
	assert.Equal(t, []string{"smoke_test.go"}, results[1].Files)
	assert.Equal(t, []string{"file:smoke_test.go"}, results[1].Artifacts)
	assert.Equal(t, []string{".golangci.yml"}, results[2].Files)
	require.Len(t, results[2].Decisions, 1)
	assert.Equal(t, "configured golangci-lint", results[2].Decisions[0].Decision)
	assert.NotNil(t, env.State.TechDebt)

	again := runAll(t, Remediation(), env)
	for _, r := range again[:3] {
		assert.Empty(t, r.Files)
		assert.Empty(t, r.Decisions)
	}
}

type fakeValidator struct {
	got     []analysis.Command
	summary *types.ValidationSummary
	err     error
}

func (f *fakeValidator) Validate(_ context.Context, _ string, cmds []analysis.Command) (*types.ValidationSummary, error) {
	f.got = cmds
	return f.summary, f.err
}

func TestValidationUsesHandlerCommandsByDefault(t *testing.T) {
	env := newEnv(goProject(t))
	env.State.Project.Language = "go"
	v := &fakeValidator{summary: &types.ValidationSummary{Results: []types.ValidationResult{
		{Name: "build", Passed: true}, {Name: "test", Passed: false},
	}}}
	env.Validator = v

	results := runAll(t, Validation(), env)
	assert.Equal(t, plugins.NewGoHandler().ValidationCommands(), v.got)
	assert.Equal(t, []string{"validation:passed=1/2"}, results[0].Artifacts)
	assert.False(t, env.State.Validation.Passed())

	env.Commands = []analysis.Command{{Name: "lint", Args: []string{"make", "lint"}}}
	runAll(t, Validation(), env)
	assert.Equal(t, env.Commands, v.got)
}

func TestValidationErrorPropagates(t *testing.T) {
	env := newEnv(goProject(t))
	env.Commands = []analysis.Command{{Name: "x", Args: []string{"true"}}}
	env.Validator = &fakeValidator{err: context.Canceled}
	_, err := Validation().Tasks[0].Run(context.Background(), env)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsPermanent(err))
}

func TestGraduationTasks(t *testing.T) {
	env := newEnv(goProject(t))
	env.State.Baseline = &types.Metrics{TestRatio: 0}
	results := runAll(t, Graduation(), env)
	assert.Equal(t, []string{"metrics:files=3,tests=0,lines=9,ratio=0.00->0.00"}, results[1].Artifacts)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("boom")
	err := fmt.Errorf("task: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(&plugins.UnsupportedLanguageError{Language: "cobol"}))
}
