package analysis

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// maxOutput bounds the output kept per command.
const maxOutput = 16 * 1024

// Command is one validation command, run without a shell.
type Command struct {
	Name string
	Args []string
}

// String renders the command line.
func (c Command) String() string { return strings.Join(c.Args, " ") }

// Validator runs validation commands against a project.
type Validator interface {
	Validate(ctx context.Context, root string, commands []Command) (*types.ValidationSummary, error)
}

// CommandValidator executes commands with exec.CommandContext. A failing
// command is a failed result, not an error; every command runs even after a
// failure so the summary is complete.
type CommandValidator struct {
	// Timeout bounds each command; zero means no bound beyond ctx
	Timeout time.Duration
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewCommandValidator creates a validator.
func NewCommandValidator(timeout time.Duration, logger *zap.Logger) *CommandValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandValidator{Timeout: timeout, Logger: logger, Now: time.Now}
}

// Validate implements Validator. It returns an error only when ctx is done.
func (v *CommandValidator) Validate(ctx context.Context, root string, commands []Command) (*types.ValidationSummary, error) {
	logger := v.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	summary := &types.ValidationSummary{Results: make([]types.ValidationResult, 0, len(commands))}

	for _, c := range commands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := v.run(ctx, root, c)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Info("validation command finished",
			zap.String("name", c.Name),
			zap.Bool("passed", result.Passed),
			zap.Duration("duration", result.Duration))
		summary.Results = append(summary.Results, result)
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	summary.RanAt = now().UTC()
	return summary, nil
}

func (v *CommandValidator) run(ctx context.Context, root string, c Command) types.ValidationResult {
	result := types.ValidationResult{Name: c.Name, Command: c.String()}
	if len(c.Args) == 0 {
		result.Output = "no command given"
		return result
	}

	runCtx := ctx
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(runCtx, c.Args[0], c.Args[1:]...)
	cmd.Dir = root
	output, err := cmd.CombinedOutput()
	result.Duration = time.Since(start)
	result.Output = truncate(string(output))

	switch {
	case err == nil:
		result.Passed = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Output = appendLine(result.Output, fmt.Sprintf("%s timed out after %s", c.Name, v.Timeout))
	case errors.Is(err, exec.ErrNotFound):
		result.Output = appendLine(result.Output, fmt.Sprintf("%s not found in PATH", c.Args[0]))
	default:
		result.Output = appendLine(result.Output, fmt.Sprintf("%s failed: %v", c.Name, err))
	}
	return result
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return "...(truncated)\n" + s[len(s)-maxOutput:]
}

func appendLine(s, line string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line
}
