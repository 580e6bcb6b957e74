package phases

import (
	"context"
	"fmt"
	"sort"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Plan turns the assessment into a remediation plan.
func Plan() *Definition {
	return &Definition{
		Phase: types.PhasePlan,
		Tasks: []Task{
			{ID: "prioritize-debt", Description: "Prioritize tech debt", Run: prioritizeDebt},
			{ID: "record-plan", Description: "Record remediation plan", Run: recordPlan},
		},
	}
}

var severityRank = map[types.DebtSeverity]int{
	types.DebtCritical: 0,
	types.DebtHigh:     1,
	types.DebtMedium:   2,
	types.DebtLow:      3,
}

// setupItemIDs are the plan items backed by language handler capabilities.
var setupItemIDs = []string{"setup-structure", "setup-tests", "setup-quality"}

// PrioritizeDebt groups debt of medium severity or worse by file, worst
// first. Low-severity markers are not planned.
func PrioritizeDebt(d *types.DebtSummary) []types.PlanItem {
	type group struct {
		file     string
		severity types.DebtSeverity
		count    int
	}
	byFile := make(map[string]*group)
	for _, item := range d.Items {
		if severityRank[item.Severity] > severityRank[types.DebtMedium] {
			continue
		}
		g, ok := byFile[item.File]
		if !ok {
			g = &group{file: item.File, severity: item.Severity}
			byFile[item.File] = g
		}
		g.count++
		if severityRank[item.Severity] < severityRank[g.severity] {
			g.severity = item.Severity
		}
	}

	groups := make([]*group, 0, len(byFile))
	for _, g := range byFile {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].severity != groups[j].severity {
			return severityRank[groups[i].severity] < severityRank[groups[j].severity]
		}
		return groups[i].file < groups[j].file
	})

	items := make([]types.PlanItem, 0, len(groups))
	for i, g := range groups {
		noun := "marker"
		if g.count > 1 {
			noun = "markers"
		}
		items = append(items, types.PlanItem{
			ID:       fmt.Sprintf("debt-%02d", i+1),
			Title:    fmt.Sprintf("Resolve %d debt %s in %s", g.count, noun, g.file),
			Severity: g.severity,
			Files:    []string{g.file},
		})
	}
	return items
}

func prioritizeDebt(ctx context.Context, env *Env) (*Result, error) {
	if env.State.TechDebt == nil {
		return nil, Permanent(fmt.Errorf("tech debt analysis missing"))
	}
	items := PrioritizeDebt(env.State.TechDebt)
	env.State.Plan = &types.RemediationPlan{Items: items}
	return &Result{Artifacts: []string{fmt.Sprintf("plan:debt-items=%d", len(items))}}, nil
}

func recordPlan(ctx context.Context, env *Env) (*Result, error) {
	if env.State.Plan == nil {
		return nil, Permanent(fmt.Errorf("debt has not been prioritized"))
	}
	h, err := env.Handler()
	if err != nil {
		return nil, err
	}

	items := []types.PlanItem{
		{ID: setupItemIDs[0], Title: fmt.Sprintf("Set up %s project structure", h.Name()), Severity: types.DebtMedium},
		{ID: setupItemIDs[1], Title: fmt.Sprintf("Set up %s test harness", h.Name()), Severity: types.DebtMedium},
		{ID: setupItemIDs[2], Title: fmt.Sprintf("Set up %s quality tooling", h.Name()), Severity: types.DebtLow},
	}
	for _, item := range env.State.Plan.Items {
		if !isSetupItem(item.ID) {
			items = append(items, item)
		}
	}
	env.State.Plan = &types.RemediationPlan{Items: items, RecordedAt: env.now()}

	risk := types.RiskLow
	if n := env.State.TechDebt.Count(types.DebtCritical); n > 0 {
		risk = types.RiskMedium
	}
	decision := types.DecisionEntry{
		Phase:      types.PhasePlan,
		Decision:   fmt.Sprintf("Adopt remediation plan with %d items", len(items)),
		Rationale:  "tooling setup first, then debt ordered by severity",
		ChosenRisk: risk,
		Alternatives: []types.Alternative{{
			Description:    "Plan every debt marker including low severity",
			RejectedReason: "low-severity markers are tracked in reports but do not block graduation",
		}},
	}
	return &Result{
		Artifacts: []string{fmt.Sprintf("plan:items=%d", len(items))},
		Decisions: []types.DecisionEntry{decision},
	}, nil
}

func isSetupItem(id string) bool {
	for _, s := range setupItemIDs {
		if s == id {
			return true
		}
	}
	return false
}
