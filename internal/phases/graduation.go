package phases

import (
	"context"
	"fmt"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Graduation takes the final measurements the graduation report compares
// against the baseline.
func Graduation() *Definition {
	return &Definition{
		Phase: types.PhaseGraduation,
		Tasks: []Task{
			{ID: "final-debt", Description: "Final tech debt analysis", Run: analyzeDebt},
			{ID: "final-metrics", Description: "Collect final metrics", Run: finalMetrics},
		},
	}
}

func finalMetrics(ctx context.Context, env *Env) (*Result, error) {
	if env.Metrics == nil {
		return nil, Permanent(fmt.Errorf("no metrics collector configured"))
	}
	m, err := env.Metrics.Collect(ctx, env.Root)
	if err != nil {
		return nil, err
	}
	ref := fmt.Sprintf("metrics:files=%d,tests=%d,lines=%d", m.Files, m.TestFiles, m.Lines)
	if b := env.State.Baseline; b != nil {
		ref += fmt.Sprintf(",ratio=%.2f->%.2f", b.TestRatio, m.TestRatio)
	}
	return &Result{Artifacts: []string{ref}}, nil
}
