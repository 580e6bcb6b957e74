package types

// RunState is the state of one phase invocation.
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunInProgress RunState = "in_progress"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
)

// IsValid checks if the run state value is valid
func (s RunState) IsValid() bool {
	switch s {
	case RunNotStarted, RunInProgress, RunCompleted, RunFailed:
		return true
	}
	return false
}

// ValidTransitions defines the valid transitions of a phase invocation.
//
//	not_started -> in_progress -> completed
//	                          \-> failed
//
// Completed and failed are terminal for the invocation. A later invocation
// starts again from not_started and re-enters in_progress through
// interruption detection.
func (s RunState) ValidTransitions() []RunState {
	switch s {
	case RunNotStarted:
		return []RunState{RunInProgress}
	case RunInProgress:
		return []RunState{RunCompleted, RunFailed}
	default:
		return []RunState{}
	}
}

// CanTransitionTo checks if a transition from this state to the target state is valid
func (s RunState) CanTransitionTo(target RunState) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the invocation has finished.
func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}
