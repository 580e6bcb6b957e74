package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/jacopone/brownkit-sub001/internal/plugins"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Remediation applies the handler's setup capabilities and re-measures debt.
func Remediation() *Definition {
	return &Definition{
		Phase: types.PhaseRemediation,
		Tasks: []Task{
			{ID: "setup-structure", Description: "Set up project structure", Run: setupTask(plugins.LanguageHandler.SetupStructure)},
			{ID: "setup-tests", Description: "Set up test harness", Run: setupTask(plugins.LanguageHandler.SetupTests)},
			{ID: "setup-quality", Description: "Set up quality tooling", Run: setupTask(plugins.LanguageHandler.SetupQuality)},
			{ID: "reanalyze-debt", Description: "Re-analyze tech debt", Run: analyzeDebt},
		},
	}
}

type setupFunc func(h plugins.LanguageHandler, ctx context.Context, root string) (*plugins.SetupResult, error)

// setupTask folds a handler capability into a task result.
func setupTask(setup setupFunc) TaskFunc {
	return func(ctx context.Context, env *Env) (*Result, error) {
		h, err := env.Handler()
		if err != nil {
			return nil, err
		}
		res, err := setup(h, ctx, env.Root)
		if err != nil {
			return nil, err
		}

		out := &Result{Files: res.Files}
		for _, f := range res.Files {
			out.Artifacts = append(out.Artifacts, "file:"+f)
		}
		if len(res.Files) > 0 {
			out.Decisions = append(out.Decisions, types.DecisionEntry{
				Phase:      types.PhaseRemediation,
				Decision:   strings.Join(res.Actions, "; "),
				Rationale:  fmt.Sprintf("%s handler setup changed %d files", h.Name(), len(res.Files)),
				ChosenRisk: types.RiskLow,
			})
		}
		return out, nil
	}
}
