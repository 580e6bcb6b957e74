package events

import (
	"context"
	"time"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// EventType represents the kind of workflow transition an event records.
type EventType string

const (
	// Phase lifecycle
	EventTypePhaseStarted   EventType = "phase_started"
	EventTypePhaseCompleted EventType = "phase_completed"
	EventTypePhaseBlocked   EventType = "phase_blocked"
	EventTypePhaseFailed    EventType = "phase_failed"

	// Task lifecycle
	EventTypeTaskStarted   EventType = "task_started"
	EventTypeTaskCompleted EventType = "task_completed"
	EventTypeTaskFailed    EventType = "task_failed"
	EventTypeTaskRetried   EventType = "task_retried"

	// EventTypeGateEvaluated indicates a readiness check ran for a transition
	EventTypeGateEvaluated EventType = "gate_evaluated"

	// Version control
	EventTypeCommitCreated   EventType = "commit_created"
	EventTypeCommitSkipped   EventType = "commit_skipped"
	EventTypeRevertPerformed EventType = "revert_performed"

	// Session and state
	EventTypeWorkflowInitialized EventType = "workflow_initialized"
	EventTypeReEntry             EventType = "re_entry"
	EventTypeDecisionLogged      EventType = "decision_logged"
	EventTypeStateReset          EventType = "state_reset"
	EventTypeStateMigrated       EventType = "state_migrated"
	EventTypeStateReconciled     EventType = "state_reconciled"
)

// AllEventTypes lists every known event type.
var AllEventTypes = []EventType{
	EventTypePhaseStarted, EventTypePhaseCompleted, EventTypePhaseBlocked, EventTypePhaseFailed,
	EventTypeTaskStarted, EventTypeTaskCompleted, EventTypeTaskFailed, EventTypeTaskRetried,
	EventTypeGateEvaluated,
	EventTypeCommitCreated, EventTypeCommitSkipped, EventTypeRevertPerformed,
	EventTypeWorkflowInitialized, EventTypeReEntry, EventTypeDecisionLogged, EventTypeStateReset, EventTypeStateMigrated, EventTypeStateReconciled,
}

// IsValid checks if the event type is known
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates events that stopped the workflow
	SeverityCritical EventSeverity = "critical"
)

// Event is one entry in the workflow journal.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// SessionID identifies the workflow session that produced the event
	SessionID string `json:"session_id,omitempty"`
	// Phase is the phase the event belongs to, if any
	Phase types.Phase `json:"phase,omitempty"`
	// TaskID is the task the event belongs to, if any
	TaskID string `json:"task_id,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// TaskData contains structured data for task lifecycle events.
type TaskData struct {
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
	// Artifacts are files the task produced
	Artifacts []string `json:"artifacts,omitempty"`
}

// GateData contains structured data for gate evaluation events.
type GateData struct {
	From         types.Phase `json:"from"`
	To           types.Phase `json:"to"`
	Passed       bool        `json:"passed"`
	UnmetReasons []string    `json:"unmet_reasons,omitempty"`
}

// CommitData contains structured data for commit events.
type CommitData struct {
	Hash    string   `json:"hash,omitempty"`
	Message string   `json:"message"`
	Files   []string `json:"files,omitempty"`
}

// RevertData contains structured data for revert events.
type RevertData struct {
	Mode     string   `json:"mode"`
	Target   string   `json:"target"`
	Reverted []string `json:"reverted,omitempty"`
	Head     string   `json:"head,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ReEntryData contains structured data for re-entry events.
type ReEntryData struct {
	Action         types.ReEntryAction `json:"action"`
	ResumedTaskIDs []string            `json:"resumed_task_ids,omitempty"`
}

// Recorder accepts events for persistence.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// Store is a Recorder that can also answer queries.
type Store interface {
	Recorder

	// List retrieves events matching the filter, oldest first
	List(ctx context.Context, filter Filter) ([]*Event, error)
}

// Filter defines criteria for filtering events.
type Filter struct {
	// Type filters events by event type
	Type EventType
	// Phase filters events by phase
	Phase types.Phase
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// BeforeTime filters events that occurred before this time
	BeforeTime time.Time
	// Limit keeps only the most recent N matches
	Limit int
}

// NopRecorder discards events. It is used when the journal is disabled.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, *Event) error { return nil }
