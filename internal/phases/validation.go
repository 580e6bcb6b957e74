package phases

import (
	"context"
	"fmt"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Validation runs the project's validation commands. A failing command is a
// recorded result for the gate to judge, not a task failure.
func Validation() *Definition {
	return &Definition{
		Phase: types.PhaseValidation,
		Tasks: []Task{
			{ID: "run-validation", Description: "Run validation commands", Run: runValidation},
		},
	}
}

func runValidation(ctx context.Context, env *Env) (*Result, error) {
	if env.Validator == nil {
		return nil, Permanent(fmt.Errorf("no validator configured"))
	}
	cmds, err := env.ValidationCommands()
	if err != nil {
		return nil, err
	}
	summary, err := env.Validator.Validate(ctx, env.Root, cmds)
	if err != nil {
		return nil, err
	}
	env.State.Validation = summary

	passed := 0
	for _, r := range summary.Results {
		if r.Passed {
			passed++
		}
	}
	return &Result{Artifacts: []string{fmt.Sprintf("validation:passed=%d/%d", passed, len(summary.Results))}}, nil
}
