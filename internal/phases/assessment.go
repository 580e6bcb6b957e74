package phases

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/plugins"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Assessment detects the language and records the baseline.
func Assessment() *Definition {
	return &Definition{
		Phase: types.PhaseAssessment,
		Tasks: []Task{
			{ID: "detect-language", Description: "Detect project language", Run: detectLanguage},
			{ID: "collect-baseline", Description: "Collect baseline metrics", Run: collectBaseline},
			{ID: "analyze-debt", Description: "Analyze tech debt", Run: analyzeDebt},
		},
	}
}

func detectLanguage(ctx context.Context, env *Env) (*Result, error) {
	h, err := env.Handler()
	if err != nil {
		return nil, err
	}
	configured := env.State.Project.Language != "" || env.Language != ""
	env.State.Project.Language = h.Name()

	decision := types.DecisionEntry{
		Phase:      types.PhaseAssessment,
		Decision:   fmt.Sprintf("Use the %s language handler", h.Name()),
		Rationale:  "detected from project files",
		ChosenRisk: types.RiskLow,
	}
	if configured {
		decision.Rationale = "configured for this project"
	}
	registry := env.Registry
	if registry == nil {
		registry = plugins.DefaultRegistry()
	}
	for _, name := range registry.Names() {
		if name != h.Name() {
			decision.Alternatives = append(decision.Alternatives, types.Alternative{
				Description:    fmt.Sprintf("Use the %s language handler", name),
				RejectedReason: "project does not match",
			})
		}
	}
	env.logger().Info("language resolved", zap.String("language", h.Name()))
	return &Result{
		Artifacts: []string{"language:" + h.Name()},
		Decisions: []types.DecisionEntry{decision},
	}, nil
}

func collectBaseline(ctx context.Context, env *Env) (*Result, error) {
	if env.Metrics == nil {
		return nil, Permanent(fmt.Errorf("no metrics collector configured"))
	}
	m, err := env.Metrics.Collect(ctx, env.Root)
	if err != nil {
		return nil, err
	}
	env.State.Baseline = m
	return &Result{
		Artifacts: []string{fmt.Sprintf("metrics:files=%d,tests=%d,lines=%d", m.Files, m.TestFiles, m.Lines)},
	}, nil
}

func analyzeDebt(ctx context.Context, env *Env) (*Result, error) {
	if env.Debt == nil {
		return nil, Permanent(fmt.Errorf("no tech debt analyzer configured"))
	}
	d, err := env.Debt.Analyze(ctx, env.Root)
	if err != nil {
		return nil, err
	}
	env.State.TechDebt = d
	return &Result{
		Artifacts: []string{fmt.Sprintf("debt:items=%d,critical=%d", len(d.Items), d.Count(types.DebtCritical))},
	}, nil
}
