package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/events"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Note: displayActivityEvent and related helper functions are in event_display.go

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent workflow events from the journal",
	Long: `Display recent events from the workflow journal (.brownfield/journal.db):
- Task starts, retries, completions and failures
- Gate evaluations
- Workflow commits and reverts
- Re-entries, resets and migrations

Examples:
  brownfield activity                        # Show last 20 events
  brownfield activity -n 50                  # Show last 50 events
  brownfield activity --phase remediation    # Events of one phase
  brownfield activity --type gate_evaluated  # Only gate evaluations
  brownfield activity --severity critical    # Only critical events`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		eventType, _ := cmd.Flags().GetString("type")
		phase, _ := cmd.Flags().GetString("phase")
		severity, _ := cmd.Flags().GetString("severity")

		filter := events.Filter{Limit: limit}
		if eventType != "" {
			filter.Type = events.EventType(eventType)
			if !filter.Type.IsValid() {
				exitError(fmt.Errorf("unknown event type %q", eventType))
			}
		}
		if phase != "" {
			filter.Phase = types.Phase(phase)
			if !filter.Phase.IsValid() {
				exitError(fmt.Errorf("unknown phase %q", phase))
			}
		}
		if severity != "" {
			filter.Severity = events.EventSeverity(severity)
		}

		w := openWorkflow("brownfield activity")
		eventList, err := w.Activity(context.Background(), filter)
		if err != nil {
			exitError(fmt.Errorf("fetching events: %w", err))
		}

		if len(eventList) == 0 {
			fmt.Println("No events found")
			return
		}

		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Workflow Activity (%d events) ===", len(eventList))))
		for _, event := range eventList {
			displayActivityEvent(event)
		}
	},
}

func init() {
	activityCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	activityCmd.Flags().String("type", "", "Filter by event type")
	activityCmd.Flags().String("phase", "", "Filter by phase")
	activityCmd.Flags().String("severity", "", "Filter by severity (info, warning, error, critical)")
	rootCmd.AddCommand(activityCmd)
}
