package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

var collected = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

func sampleState(t *testing.T) *types.BrownfieldState {
	t.Helper()
	state := types.NewBrownfieldState(types.ProjectInfo{Name: "legacy-api", Path: "/src/legacy", Language: "go"}, "abc123", collected)
	state.Baseline = &types.Metrics{Files: 10, SourceFiles: 8, TestFiles: 1, Lines: 900, TestRatio: 1.0 / 9, CollectedAt: collected}
	state.TechDebt = &types.DebtSummary{
		Items: []types.DebtItem{
			{File: "db.go", Line: 12, Marker: "FIXME", Severity: types.DebtHigh, Text: "leaks connections"},
			{File: "auth.go", Line: 3, Marker: "XXX", Severity: types.DebtCritical, Text: "security | token check"},
			{File: "main.go", Line: 1, Marker: "TODO", Severity: types.DebtLow, Text: "flags"},
		},
		AnalyzedAt: collected,
	}
	_, err := state.StartCheckpoint(types.PhaseAssessment, []types.TaskSpec{{ID: "a", Description: "collect"}, {ID: "b", Description: "analyze"}}, "abc123", collected)
	require.NoError(t, err)
	require.NoError(t, state.Checkpoint(types.PhaseAssessment).MarkTaskComplete("a", collected))
	return state
}

func TestAssessmentMarkdown(t *testing.T) {
	r, err := Build(types.PhaseAssessment, sampleState(t), nil)
	require.NoError(t, err)
	md := r.ToMarkdown()

	assert.True(t, strings.HasPrefix(md, "# Assessment Report: legacy-api\n\nLanguage: go\n\n"))
	assert.Contains(t, md, "| Test ratio | 0.11 |")
	assert.Contains(t, md, "| Collected | 2026-03-02T10:30:00Z |")
	assert.Contains(t, md, "| critical | 1 |\n| high | 1 |\n| medium | 0 |\n| low | 1 |")
	critical := strings.Index(md, "`auth.go:3`")
	high := strings.Index(md, "`db.go:12`")
	require.Positive(t, critical)
	assert.Less(t, critical, high, "critical items are listed before high ones")
	assert.NotContains(t, md, "main.go", "low items are only counted")
}

func TestMarkdownIsByteStable(t *testing.T) {
	state := sampleState(t)
	for _, p := range types.AllPhases() {
		a, err := Build(p, state, state.Baseline)
		require.NoError(t, err)
		b, err := Build(p, state, state.Baseline)
		require.NoError(t, err)
		assert.Equal(t, a.ToMarkdown(), b.ToMarkdown(), p)
		assert.Equal(t, p, a.Phase())
	}
}

func TestMissingDataRendersPlaceholders(t *testing.T) {
	state := types.NewBrownfieldState(types.ProjectInfo{Name: "empty"}, "", collected)

	r, err := Build(types.PhaseAssessment, state, nil)
	require.NoError(t, err)
	assert.Contains(t, r.ToMarkdown(), "_Metrics not collected._")
	assert.Contains(t, r.ToMarkdown(), "_Tech debt not analyzed._")

	r, err = Build(types.PhasePlan, state, nil)
	require.NoError(t, err)
	assert.Contains(t, r.ToMarkdown(), "_No plan recorded._")

	r, err = Build(types.PhaseValidation, state, nil)
	require.NoError(t, err)
	assert.Contains(t, r.ToMarkdown(), "_Validation has not run._")

	_, err = Build("bogus", state, nil)
	assert.True(t, types.IsInvalidState(err))
}

func TestPlanMarkdown(t *testing.T) {
	r := &Plan{
		Project: types.ProjectInfo{Name: "svc"},
		Plan: &types.RemediationPlan{
			Items:      []types.PlanItem{{ID: "p1", Title: "Fix a|b", Severity: types.DebtHigh, Files: []string{"a.go", "b.go"}}},
			RecordedAt: collected,
		},
	}
	md := r.ToMarkdown()
	assert.Contains(t, md, "| 1 | Fix a\\|b | high | a.go, b.go |")
	assert.Contains(t, md, "Recorded: 2026-03-02T10:30:00Z")
}

func TestValidationAndGraduationMarkdown(t *testing.T) {
	state := sampleState(t)
	state.Validation = &types.ValidationSummary{
		Results: []types.ValidationResult{
			{Name: "build", Command: "go build ./...", Passed: true, Duration: 1500 * time.Millisecond},
			{Name: "test", Command: "go test ./...", Passed: false, Duration: 2 * time.Second},
		},
		RanAt: collected,
	}
	state.RecordReEntry(types.PhaseAssessment, "2 of 3 tasks incomplete", types.ReEntryResumed, collected)
	final := &types.Metrics{Files: 12, SourceFiles: 8, TestFiles: 3, Lines: 1000, TestRatio: 3.0 / 11}

	v, err := Build(types.PhaseValidation, state, final)
	require.NoError(t, err)
	assert.Contains(t, v.ToMarkdown(), "| build | `go build ./...` | pass | 1.5s |")
	assert.Contains(t, v.ToMarkdown(), "| test | `go test ./...` | FAIL | 2s |")

	g, err := Build(types.PhaseGraduation, state, final)
	require.NoError(t, err)
	md := g.ToMarkdown()
	assert.Contains(t, md, "| Test files | 1 | 3 |")
	assert.Contains(t, md, "| Assessment | 2 | 1 | 0 | 50% |")
	assert.Contains(t, md, "- 2026-03-02T10:30:00Z Assessment: 2 of 3 tasks incomplete (resumed)")
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs", "brownfield")
	r, err := Build(types.PhaseAssessment, sampleState(t), nil)
	require.NoError(t, err)

	path, err := Write(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "assessment-report.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.ToMarkdown(), string(data))
}
