package types

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task within a phase
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskComplete   TaskStatus = "complete"
	TaskFailed     TaskStatus = "failed"
)

// IsValid checks if the task status value is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskComplete, TaskFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further work will happen on a task in this
// status during the current phase invocation.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskComplete || s == TaskFailed
}

// Task is a unit of work inside a phase checkpoint.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	ArtifactRefs []string   `json:"artifact_refs"`
	Attempts     int        `json:"attempts,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TaskSpec describes a task before it is placed in a checkpoint.
type TaskSpec struct {
	ID          string
	Description string
}

// PhaseCheckpoint is the durable record of one phase's task progress.
// Task order is execution order.
type PhaseCheckpoint struct {
	Phase         Phase     `json:"phase"`
	Tasks         []Task    `json:"tasks"`
	StartedAt     time.Time `json:"started_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`

	// BaseCommit is HEAD when the phase first started. It is the revert target
	// when the phase fails unrecoverably.
	BaseCommit string `json:"base_commit,omitempty"`

	// GateFailures counts how many times the readiness gate out of this phase
	// has blocked advancement.
	GateFailures int `json:"gate_failures,omitempty"`

	// CompletionCommit carries the phase report committed when the phase
	// passed its gates.
	CompletionCommit string     `json:"completion_commit,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewPhaseCheckpoint creates a checkpoint with every task pending.
func NewPhaseCheckpoint(phase Phase, specs []TaskSpec, now time.Time) (*PhaseCheckpoint, error) {
	if !phase.IsValid() {
		return nil, NewInvalidState("start checkpoint", "invalid phase %q", phase)
	}
	if len(specs) == 0 {
		return nil, NewInvalidState("start checkpoint", "phase %s has no tasks", phase)
	}

	cp := &PhaseCheckpoint{
		Phase:         phase,
		Tasks:         make([]Task, 0, len(specs)),
		StartedAt:     now,
		LastUpdatedAt: now,
	}
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, NewInvalidState("start checkpoint", "task id is required")
		}
		if seen[spec.ID] {
			return nil, NewInvalidState("start checkpoint", "duplicate task id %q", spec.ID)
		}
		seen[spec.ID] = true
		cp.Tasks = append(cp.Tasks, Task{
			ID:           spec.ID,
			Description:  spec.Description,
			Status:       TaskPending,
			ArtifactRefs: []string{},
		})
	}
	return cp, nil
}

// Validate checks the structural invariants of a checkpoint
func (c *PhaseCheckpoint) Validate() error {
	if !c.Phase.IsValid() {
		return fmt.Errorf("invalid phase: %q", c.Phase)
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("checkpoint for %s has no tasks", c.Phase)
	}
	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.ID == "" {
			return fmt.Errorf("checkpoint for %s has a task without id", c.Phase)
		}
		if seen[t.ID] {
			return fmt.Errorf("checkpoint for %s has duplicate task id %q", c.Phase, t.ID)
		}
		seen[t.ID] = true
		if !t.Status.IsValid() {
			return fmt.Errorf("task %s has invalid status %q", t.ID, t.Status)
		}
	}
	if c.LastUpdatedAt.Before(c.StartedAt) {
		return fmt.Errorf("checkpoint for %s updated before it started", c.Phase)
	}
	return nil
}

// ProgressPercentage returns 100 * complete / total. It is derived from the
// task list on every call and is only meaningful once tasks are populated.
func (c *PhaseCheckpoint) ProgressPercentage() float64 {
	if len(c.Tasks) == 0 {
		return 0
	}
	complete := 0
	for _, t := range c.Tasks {
		if t.Status == TaskComplete {
			complete++
		}
	}
	return float64(complete*100) / float64(len(c.Tasks))
}

// DetectInterruption reports whether a prior run ended before every task
// reached a terminal state. It has no side effects.
func (c *PhaseCheckpoint) DetectInterruption() bool {
	if c == nil || len(c.Tasks) == 0 {
		return false
	}
	for _, t := range c.Tasks {
		if !t.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// AllTerminal reports whether every task is complete or failed.
func (c *PhaseCheckpoint) AllTerminal() bool {
	return len(c.Tasks) > 0 && !c.DetectInterruption()
}

// HasFailures reports whether any task is in the failed state.
func (c *PhaseCheckpoint) HasFailures() bool {
	for _, t := range c.Tasks {
		if t.Status == TaskFailed {
			return true
		}
	}
	return false
}

// Task returns the task with the given id.
func (c *PhaseCheckpoint) Task(id string) (*Task, error) {
	for i := range c.Tasks {
		if c.Tasks[i].ID == id {
			return &c.Tasks[i], nil
		}
	}
	return nil, NewInvalidState("lookup task", "unknown task %q in phase %s", id, c.Phase)
}

// NextRunnable returns the first task, in order, that is not terminal.
func (c *PhaseCheckpoint) NextRunnable() *Task {
	for i := range c.Tasks {
		if !c.Tasks[i].Status.IsTerminal() {
			return &c.Tasks[i]
		}
	}
	return nil
}

// StartTask moves a task to in-progress and counts the attempt.
func (c *PhaseCheckpoint) StartTask(id string, now time.Time) error {
	t, err := c.Task(id)
	if err != nil {
		return err
	}
	if t.Status == TaskComplete {
		return NewInvalidState("start task", "task %q is already complete", id)
	}
	t.Status = TaskInProgress
	t.Attempts++
	c.touch(now)
	return nil
}

// MarkTaskComplete marks a task complete. Marking an already complete task is
// a no-op.
func (c *PhaseCheckpoint) MarkTaskComplete(id string, now time.Time) error {
	t, err := c.Task(id)
	if err != nil {
		return err
	}
	if t.Status == TaskComplete {
		return nil
	}
	t.Status = TaskComplete
	t.LastError = ""
	completed := now
	t.CompletedAt = &completed
	c.touch(now)
	return nil
}

// AddArtifacts appends artifact references to a task, skipping duplicates.
func (c *PhaseCheckpoint) AddArtifacts(id string, refs []string, now time.Time) error {
	t, err := c.Task(id)
	if err != nil {
		return err
	}
	changed := false
	for _, ref := range refs {
		if ref == "" || containsString(t.ArtifactRefs, ref) {
			continue
		}
		t.ArtifactRefs = append(t.ArtifactRefs, ref)
		changed = true
	}
	if changed {
		c.touch(now)
	}
	return nil
}

// MarkTaskFailed records a failed task with its last error.
func (c *PhaseCheckpoint) MarkTaskFailed(id, reason string, now time.Time) error {
	t, err := c.Task(id)
	if err != nil {
		return err
	}
	if t.Status == TaskComplete {
		return NewInvalidState("fail task", "task %q is already complete", id)
	}
	t.Status = TaskFailed
	t.LastError = reason
	c.touch(now)
	return nil
}

// RecordAttemptError stores the error of an attempt that will be retried.
func (c *PhaseCheckpoint) RecordAttemptError(id, reason string, now time.Time) error {
	t, err := c.Task(id)
	if err != nil {
		return err
	}
	t.LastError = reason
	c.touch(now)
	return nil
}

// ResetFailed returns failed tasks to pending so a restarted phase retries
// them. It returns the ids that were reset.
func (c *PhaseCheckpoint) ResetFailed(now time.Time) []string {
	var reset []string
	for i := range c.Tasks {
		if c.Tasks[i].Status == TaskFailed {
			c.Tasks[i].Status = TaskPending
			c.Tasks[i].Attempts = 0
			reset = append(reset, c.Tasks[i].ID)
		}
	}
	if len(reset) > 0 {
		c.touch(now)
	}
	return reset
}

// ResetTasks returns the given tasks to pending, clearing their artifacts.
// Used after the commits carrying their work were reverted.
func (c *PhaseCheckpoint) ResetTasks(ids []string, now time.Time) error {
	for _, id := range ids {
		t, err := c.Task(id)
		if err != nil {
			return err
		}
		t.Status = TaskPending
		t.ArtifactRefs = []string{}
		t.CompletedAt = nil
		t.Attempts = 0
	}
	if len(ids) > 0 {
		c.touch(now)
	}
	return nil
}

// RecordGateFailure counts a blocked readiness gate and returns the new
// total.
func (c *PhaseCheckpoint) RecordGateFailure(now time.Time) int {
	c.GateFailures++
	c.touch(now)
	return c.GateFailures
}

// MarkCompleted stamps the phase as completed by the given report commit.
// An empty hash means the report was already committed.
func (c *PhaseCheckpoint) MarkCompleted(hash string, now time.Time) {
	c.CompletionCommit = hash
	completed := now
	c.CompletedAt = &completed
	c.touch(now)
}

// ClearCompletion undoes MarkCompleted.
func (c *PhaseCheckpoint) ClearCompletion(now time.Time) {
	c.CompletionCommit = ""
	c.CompletedAt = nil
	c.touch(now)
}

// Clone returns a deep copy of the checkpoint.
func (c *PhaseCheckpoint) Clone() *PhaseCheckpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Tasks = make([]Task, len(c.Tasks))
	for i, t := range c.Tasks {
		t.ArtifactRefs = append([]string{}, t.ArtifactRefs...)
		if t.CompletedAt != nil {
			ts := *t.CompletedAt
			t.CompletedAt = &ts
		}
		out.Tasks[i] = t
	}
	if c.CompletedAt != nil {
		ts := *c.CompletedAt
		out.CompletedAt = &ts
	}
	return &out
}

// touch advances LastUpdatedAt, never moving it backwards.
func (c *PhaseCheckpoint) touch(now time.Time) {
	if now.After(c.LastUpdatedAt) {
		c.LastUpdatedAt = now
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
