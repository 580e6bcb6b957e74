// Package report renders the per-phase reports. Rendering is deterministic:
// the same model always yields the same bytes.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jacopone/brownkit-sub001/internal/storage"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Report is a rendered phase report.
type Report interface {
	Phase() types.Phase
	ToMarkdown() string
}

// FileName returns the report file name for a phase.
func FileName(p types.Phase) string {
	return string(p) + "-report.md"
}

// Write renders r into dir and returns the written path.
func Write(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(dir, FileName(r.Phase()))
	if err := storage.WriteFileAtomic(path, []byte(r.ToMarkdown()), 0644); err != nil {
		return "", fmt.Errorf("writing %s report: %w", r.Phase(), err)
	}
	return path, nil
}

// Build assembles the report model of phase p from the state. current is the
// latest metrics snapshot, used by the validation and graduation reports.
func Build(p types.Phase, state *types.BrownfieldState, current *types.Metrics) (Report, error) {
	if state == nil {
		return nil, types.NewInvalidState("build report", "state is required")
	}
	switch p {
	case types.PhaseAssessment:
		return &Assessment{Project: state.Project, Baseline: state.Baseline, Debt: state.TechDebt}, nil
	case types.PhasePlan:
		return &Plan{Project: state.Project, Plan: state.Plan}, nil
	case types.PhaseRemediation:
		return &Remediation{Project: state.Project, Checkpoint: state.Checkpoint(types.PhaseRemediation), Debt: state.TechDebt}, nil
	case types.PhaseValidation:
		return &Validation{Project: state.Project, Validation: state.Validation, Metrics: current}, nil
	case types.PhaseGraduation:
		g := &Graduation{
			Project:    state.Project,
			Baseline:   state.Baseline,
			Final:      current,
			Debt:       state.TechDebt,
			Validation: state.Validation,
			ReEntries:  state.ReEntryEvents,
		}
		for _, phase := range state.SortedPhases() {
			g.Phases = append(g.Phases, summarize(state.Checkpoint(phase)))
		}
		return g, nil
	}
	return nil, types.NewInvalidState("build report", "unknown phase %q", p)
}

// Assessment reports the baseline of the project.
type Assessment struct {
	Project  types.ProjectInfo
	Baseline *types.Metrics
	Debt     *types.DebtSummary
}

func (r *Assessment) Phase() types.Phase { return types.PhaseAssessment }

func (r *Assessment) ToMarkdown() string {
	var b strings.Builder
	header(&b, "Assessment Report", r.Project)

	b.WriteString("## Baseline Metrics\n\n")
	writeMetrics(&b, r.Baseline)

	b.WriteString("## Tech Debt\n\n")
	writeDebt(&b, r.Debt)
	return b.String()
}

// Plan reports the recorded remediation plan.
type Plan struct {
	Project types.ProjectInfo
	Plan    *types.RemediationPlan
}

func (r *Plan) Phase() types.Phase { return types.PhasePlan }

func (r *Plan) ToMarkdown() string {
	var b strings.Builder
	header(&b, "Remediation Plan", r.Project)

	if r.Plan == nil {
		b.WriteString("_No plan recorded._\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Recorded: %s\n\n", stamp(r.Plan.RecordedAt))
	if len(r.Plan.Items) == 0 {
		b.WriteString("No remediation items.\n")
		return b.String()
	}
	b.WriteString("| # | Item | Severity | Files |\n|---|---|---|---|\n")
	for i, item := range r.Plan.Items {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", i+1, cell(item.Title), item.Severity, cell(strings.Join(item.Files, ", ")))
	}
	return b.String()
}

// Remediation reports the tasks run during remediation.
type Remediation struct {
	Project    types.ProjectInfo
	Checkpoint *types.PhaseCheckpoint
	Debt       *types.DebtSummary
}

func (r *Remediation) Phase() types.Phase { return types.PhaseRemediation }

func (r *Remediation) ToMarkdown() string {
	var b strings.Builder
	header(&b, "Remediation Report", r.Project)

	b.WriteString("## Tasks\n\n")
	if r.Checkpoint == nil {
		b.WriteString("_Remediation has not started._\n\n")
	} else {
		writeTasks(&b, r.Checkpoint)
	}
	b.WriteString("## Remaining Tech Debt\n\n")
	writeDebt(&b, r.Debt)
	return b.String()
}

// Validation reports the validation command results.
type Validation struct {
	Project    types.ProjectInfo
	Validation *types.ValidationSummary
	Metrics    *types.Metrics
}

func (r *Validation) Phase() types.Phase { return types.PhaseValidation }

func (r *Validation) ToMarkdown() string {
	var b strings.Builder
	header(&b, "Validation Report", r.Project)

	b.WriteString("## Commands\n\n")
	writeValidation(&b, r.Validation)

	b.WriteString("## Metrics\n\n")
	writeMetrics(&b, r.Metrics)
	return b.String()
}

// PhaseSummary is the task progress of one phase.
type PhaseSummary struct {
	Phase    types.Phase
	Tasks    int
	Complete int
	Failed   int
	Progress float64
}

func summarize(cp *types.PhaseCheckpoint) PhaseSummary {
	s := PhaseSummary{Phase: cp.Phase, Tasks: len(cp.Tasks), Progress: cp.ProgressPercentage()}
	for _, t := range cp.Tasks {
		switch t.Status {
		case types.TaskComplete:
			s.Complete++
		case types.TaskFailed:
			s.Failed++
		}
	}
	return s
}

// Graduation compares the project against its baseline.
type Graduation struct {
	Project    types.ProjectInfo
	Baseline   *types.Metrics
	Final      *types.Metrics
	Debt       *types.DebtSummary
	Validation *types.ValidationSummary
	Phases     []PhaseSummary
	ReEntries  []types.ReEntryEvent
}

func (r *Graduation) Phase() types.Phase { return types.PhaseGraduation }

func (r *Graduation) ToMarkdown() string {
	var b strings.Builder
	header(&b, "Graduation Report", r.Project)

	b.WriteString("## Before and After\n\n")
	if r.Baseline == nil || r.Final == nil {
		b.WriteString("_Metrics unavailable._\n\n")
	} else {
		b.WriteString("| Metric | Baseline | Final |\n|---|---|---|\n")
		fmt.Fprintf(&b, "| Files | %d | %d |\n", r.Baseline.Files, r.Final.Files)
		fmt.Fprintf(&b, "| Source files | %d | %d |\n", r.Baseline.SourceFiles, r.Final.SourceFiles)
		fmt.Fprintf(&b, "| Test files | %d | %d |\n", r.Baseline.TestFiles, r.Final.TestFiles)
		fmt.Fprintf(&b, "| Lines | %d | %d |\n", r.Baseline.Lines, r.Final.Lines)
		fmt.Fprintf(&b, "| Test ratio | %.2f | %.2f |\n\n", r.Baseline.TestRatio, r.Final.TestRatio)
	}

	b.WriteString("## Phases\n\n")
	if len(r.Phases) == 0 {
		b.WriteString("_No phases recorded._\n\n")
	} else {
		b.WriteString("| Phase | Tasks | Complete | Failed | Progress |\n|---|---|---|---|---|\n")
		for _, p := range r.Phases {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %.0f%% |\n", p.Phase.Title(), p.Tasks, p.Complete, p.Failed, p.Progress)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Interruptions\n\n")
	if len(r.ReEntries) == 0 {
		b.WriteString("None.\n\n")
	} else {
		for _, ev := range r.ReEntries {
			fmt.Fprintf(&b, "- %s %s: %s (%s)\n", stamp(ev.Timestamp), ev.Phase.Title(), ev.Reason, ev.Action)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Validation\n\n")
	writeValidation(&b, r.Validation)

	b.WriteString("## Remaining Tech Debt\n\n")
	writeDebt(&b, r.Debt)
	return b.String()
}

func header(b *strings.Builder, title string, p types.ProjectInfo) {
	fmt.Fprintf(b, "# %s: %s\n\n", title, p.Name)
	if p.Language != "" {
		fmt.Fprintf(b, "Language: %s\n\n", p.Language)
	}
}

func writeMetrics(b *strings.Builder, m *types.Metrics) {
	if m == nil {
		b.WriteString("_Metrics not collected._\n\n")
		return
	}
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Files | %d |\n", m.Files)
	fmt.Fprintf(b, "| Source files | %d |\n", m.SourceFiles)
	fmt.Fprintf(b, "| Test files | %d |\n", m.TestFiles)
	fmt.Fprintf(b, "| Lines | %d |\n", m.Lines)
	fmt.Fprintf(b, "| Test ratio | %.2f |\n", m.TestRatio)
	fmt.Fprintf(b, "| Collected | %s |\n\n", stamp(m.CollectedAt))
}

var severityOrder = []types.DebtSeverity{types.DebtCritical, types.DebtHigh, types.DebtMedium, types.DebtLow}

func writeDebt(b *strings.Builder, d *types.DebtSummary) {
	if d == nil {
		b.WriteString("_Tech debt not analyzed._\n\n")
		return
	}
	b.WriteString("| Severity | Items |\n|---|---|\n")
	for _, sev := range severityOrder {
		fmt.Fprintf(b, "| %s | %d |\n", sev, d.Count(sev))
	}
	b.WriteString("\n")
	for _, sev := range severityOrder[:2] {
		for _, item := range d.Items {
			if item.Severity == sev {
				fmt.Fprintf(b, "- **%s** `%s:%d` %s: %s\n", sev, item.File, item.Line, item.Marker, item.Text)
			}
		}
	}
	if d.Count(types.DebtCritical)+d.Count(types.DebtHigh) > 0 {
		b.WriteString("\n")
	}
}

func writeValidation(b *strings.Builder, v *types.ValidationSummary) {
	if v == nil {
		b.WriteString("_Validation has not run._\n\n")
		return
	}
	if len(v.Results) == 0 {
		b.WriteString("No validation commands configured.\n\n")
		return
	}
	b.WriteString("| Check | Command | Result | Duration |\n|---|---|---|---|\n")
	for _, r := range v.Results {
		result := "pass"
		if !r.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(b, "| %s | `%s` | %s | %s |\n", cell(r.Name), cell(r.Command), result, r.Duration.Round(time.Millisecond))
	}
	b.WriteString("\n")
}

func writeTasks(b *strings.Builder, cp *types.PhaseCheckpoint) {
	b.WriteString("| Task | Status | Artifacts |\n|---|---|---|\n")
	for _, t := range cp.Tasks {
		fmt.Fprintf(b, "| %s | %s | %s |\n", cell(t.Description), t.Status, cell(strings.Join(t.ArtifactRefs, ", ")))
	}
	fmt.Fprintf(b, "\nProgress: %.0f%%\n\n", cp.ProgressPercentage())
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
