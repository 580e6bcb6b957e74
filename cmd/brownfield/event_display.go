package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/git"
)

// displayActivityEvent prints an event in a two-line format: a header line
// and a line of key metadata.
func displayActivityEvent(event *events.Event) {
	emoji := getEventEmoji(event)
	severityColor := getSeverityColor(event.Severity)
	timestamp := event.Timestamp.Local().Format("15:04:05")

	scope := string(event.Phase)
	if event.TaskID != "" {
		scope += "/" + event.TaskID
	}
	if scope == "" {
		scope = "-"
	}

	maxMessageLen := 60 - len(scope) - len(string(event.Type))
	message := truncateString(event.Message, maxMessageLen)

	fmt.Printf("%s [%s] %s %s: %s\n",
		emoji,
		timestamp,
		color.New(color.FgGreen).Sprint(scope),
		color.New(color.FgMagenta).Sprint(event.Type),
		severityColor.Sprint(message),
	)

	if metadata := extractEventMetadata(event); metadata != "" {
		fmt.Printf("  %s\n", color.New(color.FgHiBlack).Sprint(metadata))
	} else {
		fmt.Println()
	}
}

// getEventEmoji returns the icon for an event type, falling back to severity
func getEventEmoji(event *events.Event) string {
	switch event.Type {
	case events.EventTypeWorkflowInitialized:
		return "🌱"
	case events.EventTypePhaseStarted:
		return "🚀"
	case events.EventTypePhaseCompleted:
		return "🏆"
	case events.EventTypePhaseBlocked:
		return "🚧"
	case events.EventTypeTaskStarted:
		return "▶️"
	case events.EventTypeTaskCompleted:
		return "✅"
	case events.EventTypeTaskRetried:
		return "🔁"
	case events.EventTypeGateEvaluated:
		return "🛡️"
	case events.EventTypeCommitCreated, events.EventTypeCommitSkipped:
		return "🌿"
	case events.EventTypeRevertPerformed:
		return "↩️"
	case events.EventTypeReEntry:
		return "🔄"
	case events.EventTypeDecisionLogged:
		return "📝"
	case events.EventTypeStateMigrated, events.EventTypeStateReconciled, events.EventTypeStateReset:
		return "📦"
	}

	switch event.Severity {
	case events.SeverityInfo:
		return "ℹ️"
	case events.SeverityWarning:
		return "⚠️"
	case events.SeverityError:
		return "❌"
	case events.SeverityCritical:
		return "🔥"
	default:
		return "•"
	}
}

// getSeverityColor returns the appropriate color for a severity level
func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata picks the key data fields of an event, pipe-separated
// and truncated to fit an 80 column terminal.
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeTaskStarted, events.EventTypeTaskCompleted,
		events.EventTypeTaskFailed, events.EventTypeTaskRetried:
		// task: attempt | duration | artifacts | error
		fields = append(fields, fmt.Sprintf("attempt %d", getIntField(event.Data, "attempt", 0)))
		if d := getIntField(event.Data, "duration", 0); d > 0 {
			fields = append(fields, time.Duration(d).Round(time.Millisecond).String())
		}
		if n := getListLen(event.Data, "artifacts"); n > 0 {
			fields = append(fields, fmt.Sprintf("%d files", n))
		}
		fields = append(fields, truncateString(getStringField(event.Data, "error", ""), 40))

	case events.EventTypeGateEvaluated:
		// gate: from → to | result | unmet
		transition := fmt.Sprintf("%s → %s", getStringField(event.Data, "from", "?"), getStringField(event.Data, "to", "?"))
		result := "✓ passed"
		if !getBoolField(event.Data, "passed", false) {
			result = fmt.Sprintf("✗ %d unmet", getListLen(event.Data, "unmet_reasons"))
		}
		fields = []string{transition, result}

	case events.EventTypeCommitCreated, events.EventTypeCommitSkipped:
		// commit: hash | files
		fields = append(fields, git.ShortHash(getStringField(event.Data, "hash", "")))
		if n := getListLen(event.Data, "files"); n > 0 {
			fields = append(fields, fmt.Sprintf("%d files", n))
		}

	case events.EventTypeRevertPerformed:
		// revert: mode | reverted | head | error
		fields = []string{
			getStringField(event.Data, "mode", "unknown"),
			fmt.Sprintf("%d commits", getListLen(event.Data, "reverted")),
			git.ShortHash(getStringField(event.Data, "head", "")),
			truncateString(getStringField(event.Data, "error", ""), 30),
		}

	case events.EventTypeReEntry:
		// re_entry: action | resumed tasks
		fields = append(fields, getStringField(event.Data, "action", "unknown"))
		if n := getListLen(event.Data, "resumed_task_ids"); n > 0 {
			fields = append(fields, fmt.Sprintf("%d tasks", n))
		}

	default:
		if err, ok := event.Data["error"].(string); ok {
			fields = append(fields, truncateString(err, 50))
		}
	}

	return truncateString(joinFields(fields), 70)
}

// Helper functions to safely extract typed fields from event data
func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	if val, ok := data[key].(int); ok {
		return val
	}
	if val, ok := data[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

func getBoolField(data map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := data[key].(bool); ok {
		return val
	}
	return defaultValue
}

func getListLen(data map[string]interface{}, key string) int {
	switch val := data[key].(type) {
	case []interface{}:
		return len(val)
	case []string:
		return len(val)
	}
	return 0
}

// joinFields joins the non-empty fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// truncateString shortens s to maxLen runes, ending with "..."
func truncateString(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
