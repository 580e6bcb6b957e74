package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// NewEvent creates an event with no structured data.
func NewEvent(eventType EventType, phase types.Phase, taskID string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		TaskID:    taskID,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}

// NewTaskEvent creates a task lifecycle event with type-safe data.
func NewTaskEvent(eventType EventType, phase types.Phase, taskID string, severity EventSeverity, message string, data TaskData) (*Event, error) {
	event := NewEvent(eventType, phase, taskID, severity, message)
	if err := event.SetTaskData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewGateEvent creates a gate evaluation event. Blocked transitions are warnings.
func NewGateEvent(message string, data GateData) (*Event, error) {
	severity := SeverityInfo
	if !data.Passed {
		severity = SeverityWarning
	}
	event := NewEvent(EventTypeGateEvaluated, data.From, "", severity, message)
	if err := event.SetGateData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewCommitEvent creates a commit event with type-safe data.
func NewCommitEvent(eventType EventType, phase types.Phase, taskID string, message string, data CommitData) (*Event, error) {
	event := NewEvent(eventType, phase, taskID, SeverityInfo, message)
	if err := event.SetCommitData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewRevertEvent creates a revert event. A revert that failed is critical.
func NewRevertEvent(phase types.Phase, message string, data RevertData) (*Event, error) {
	severity := SeverityWarning
	if data.Error != "" {
		severity = SeverityCritical
	}
	event := NewEvent(EventTypeRevertPerformed, phase, "", severity, message)
	if err := event.SetRevertData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewReEntryEvent creates a re-entry event with type-safe data.
func NewReEntryEvent(phase types.Phase, message string, data ReEntryData) (*Event, error) {
	event := NewEvent(EventTypeReEntry, phase, "", SeverityInfo, message)
	if err := event.SetReEntryData(data); err != nil {
		return nil, err
	}
	return event, nil
}
