package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

func TestExtractEventMetadata_Task(t *testing.T) {
	tests := []struct {
		name     string
		data     events.TaskData
		expected string
	}{
		{
			name:     "first attempt",
			data:     events.TaskData{Attempt: 1},
			expected: "attempt 1",
		},
		{
			name:     "completed with artifacts",
			data:     events.TaskData{Attempt: 2, Duration: 1500 * time.Millisecond, Artifacts: []string{"a.go", "b.go"}},
			expected: "attempt 2 | 1.5s | 2 files",
		},
		{
			name:     "retried with error",
			data:     events.TaskData{Attempt: 1, Error: "exit status 1"},
			expected: "attempt 1 | exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := events.NewTaskEvent(events.EventTypeTaskCompleted, types.PhaseRemediation, "fix-lint",
				events.SeverityInfo, "done", tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, extractEventMetadata(event))
		})
	}
}

func TestExtractEventMetadata_Gate(t *testing.T) {
	passed, err := events.NewGateEvent("gates passed", events.GateData{
		From: types.PhaseAssessment, To: types.PhasePlan, Passed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "assessment → plan | ✓ passed", extractEventMetadata(passed))

	blocked, err := events.NewGateEvent("gates blocked", events.GateData{
		From: types.PhasePlan, To: types.PhaseRemediation,
		UnmetReasons: []string{"remediation plan missing", "plan tasks incomplete"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plan → remediation | ✗ 2 unmet", extractEventMetadata(blocked))
}

func TestExtractEventMetadata_Revert(t *testing.T) {
	event, err := events.NewRevertEvent(types.PhaseRemediation, "reverted", events.RevertData{
		Mode:     "revert",
		Target:   "after 0123abcd",
		Reverted: []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb"},
		Head:     "cccccccccccccccc",
	})
	require.NoError(t, err)
	assert.Equal(t, "revert | 2 commits | cccccccc", extractEventMetadata(event))
}

func TestExtractEventMetadata_MissingData(t *testing.T) {
	event := events.NewEvent(events.EventTypeStateReset, types.PhasePlan, "", events.SeverityWarning, "reset")
	assert.Equal(t, "", extractEventMetadata(event))

	event.Data = map[string]interface{}{"error": "disk full"}
	assert.Equal(t, "disk full", extractEventMetadata(event))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ä...", truncateString("äöüäöüäöü", 4))
}

func TestJoinFieldsSkipsEmpty(t *testing.T) {
	assert.Equal(t, "a | c", joinFields([]string{"a", "", "c"}))
	assert.Equal(t, "", joinFields(nil))
}
