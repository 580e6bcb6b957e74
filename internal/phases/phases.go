// Package phases defines the tasks of each workflow phase. A task does the
// phase's real work through the analysis and plugin collaborators; the
// orchestrator owns sequencing, checkpointing, commits and gates.
package phases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/analysis"
	"github.com/jacopone/brownkit-sub001/internal/plugins"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Env is what a task may read and mutate. Tasks record their outputs on
// State; the orchestrator persists it after every task.
type Env struct {
	Root      string
	State     *types.BrownfieldState
	Registry  *plugins.Registry
	Language  string // configured handler key; empty means detect
	Metrics   analysis.MetricsCollector
	Debt      analysis.TechDebtAnalyzer
	Validator analysis.Validator
	Commands  []analysis.Command // empty selects the handler's commands
	Now       func() time.Time
	Logger    *zap.Logger
}

// Handler resolves the project's language handler: the recorded language
// first, then the configured one, then detection.
func (e *Env) Handler() (plugins.LanguageHandler, error) {
	name := e.State.Project.Language
	if name == "" {
		name = e.Language
	}
	registry := e.Registry
	if registry == nil {
		registry = plugins.DefaultRegistry()
	}
	return registry.Resolve(e.Root, name)
}

// ValidationCommands returns the configured commands, or the handler's.
func (e *Env) ValidationCommands() ([]analysis.Command, error) {
	if len(e.Commands) > 0 {
		return e.Commands, nil
	}
	h, err := e.Handler()
	if err != nil {
		return nil, err
	}
	return h.ValidationCommands(), nil
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Env) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// Result is what a task produced.
type Result struct {
	// Files are project-relative paths to commit for this task
	Files []string
	// Artifacts are opaque references recorded on the task
	Artifacts []string
	// Decisions are appended to the decision log once the task completes
	Decisions []types.DecisionEntry
}

// TaskFunc executes one task.
type TaskFunc func(ctx context.Context, env *Env) (*Result, error)

// Task is one step of a phase.
type Task struct {
	ID          string
	Description string
	Run         TaskFunc
}

// Definition is the ordered task list of one phase.
type Definition struct {
	Phase types.Phase
	Tasks []Task
}

// Specs returns the checkpoint specs for the definition, in order.
func (d *Definition) Specs() []types.TaskSpec {
	specs := make([]types.TaskSpec, len(d.Tasks))
	for i, t := range d.Tasks {
		specs[i] = types.TaskSpec{ID: t.ID, Description: t.Description}
	}
	return specs
}

// Lookup returns the task with the given id.
func (d *Definition) Lookup(id string) (Task, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Validate checks the definition is runnable.
func (d *Definition) Validate() error {
	if !d.Phase.IsValid() {
		return fmt.Errorf("invalid phase %q", d.Phase)
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("phase %s has no tasks", d.Phase)
	}
	seen := make(map[string]bool)
	for _, t := range d.Tasks {
		if t.ID == "" || t.Run == nil {
			return fmt.Errorf("phase %s: task %q needs an id and a function", d.Phase, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("phase %s: duplicate task %q", d.Phase, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Set maps phases to their definitions.
type Set map[types.Phase]*Definition

// NewSet validates and indexes definitions.
func NewSet(defs ...*Definition) (Set, error) {
	s := make(Set, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s[d.Phase]; dup {
			return nil, fmt.Errorf("phase %s defined twice", d.Phase)
		}
		s[d.Phase] = d
	}
	return s, nil
}

// Default returns the built-in definitions of all five phases.
func Default() Set {
	s, err := NewSet(Assessment(), Plan(), Remediation(), Validation(), Graduation())
	if err != nil {
		panic(err)
	}
	return s
}

// For returns the definition of a phase.
func (s Set) For(p types.Phase) (*Definition, error) {
	d, ok := s[p]
	if !ok {
		return nil, types.NewInvalidState("run phase", "no tasks defined for phase %s", p)
	}
	return d, nil
}

// PermanentError marks a task failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the orchestrator does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent. An
// unsupported language is always permanent.
func IsPermanent(err error) bool {
	var perm *PermanentError
	var unsupported *plugins.UnsupportedLanguageError
	return errors.As(err, &perm) || errors.As(err, &unsupported)
}
