package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current phase and its progress",
	Long: `Display the workflow phase, task progress of the current checkpoint,
the last re-entry and whether another session holds the lock.

Status never takes the lock and never writes anything.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkflow("brownfield status")
		r, err := w.Status(context.Background())
		if err != nil {
			exitError(err)
		}
		s := r.State

		fmt.Printf("\n%s\n\n", bold(cyan("=== Brownfield Workflow: "+s.Project.Name+" ===")))

		for _, p := range types.AllPhases() {
			icon, label := gray("○"), gray(p.Title())
			switch {
			case s.Graduated || p.Before(s.CurrentPhase):
				icon, label = green("✓"), p.Title()
			case p == s.CurrentPhase:
				icon, label = yellow("●"), bold(p.Title())
			}
			fmt.Printf("  %s %s\n", icon, label)
		}
		fmt.Println()

		if s.Graduated {
			fmt.Printf("%s Project graduated\n\n", green("✓"))
		}

		fmt.Printf("  Branch:   %s", r.Branch)
		if r.Protected {
			fmt.Printf(" %s", red("(protected: workflow operations are refused)"))
		}
		fmt.Println()
		fmt.Printf("  Baseline: %s\n", git.ShortHash(s.BaselineCommit))
		if s.Project.Language != "" {
			fmt.Printf("  Language: %s\n", s.Project.Language)
		}
		fmt.Printf("  Updated:  %s\n\n", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

		if cp := r.Checkpoint; cp != nil {
			fmt.Printf("%s %.0f%%\n", yellow(s.CurrentPhase.Title()+" tasks:"), r.Progress)
			for _, t := range cp.Tasks {
				fmt.Printf("  %s %-24s %s\n", taskIcon(t.Status), t.ID, gray(t.Description))
				if t.Status == types.TaskFailed && t.LastError != "" {
					fmt.Printf("      %s\n", red(firstLine(t.LastError)))
				}
			}
			if cp.GateFailures > 0 {
				fmt.Printf("  %s gates blocked %d time(s)\n", yellow("⚠"), cp.GateFailures)
			}
			fmt.Println()
			if r.Interrupted {
				fmt.Printf("%s The last run was interrupted. Run %s to continue.\n\n", yellow("⚠"), bold("brownfield resume"))
			}
		} else if !s.Graduated {
			fmt.Printf("  %s\n\n", gray("Phase not started. Run 'brownfield next'."))
		}

		if ev := r.LastReEntry; ev != nil {
			fmt.Printf("%s %s at %s: %s\n\n", yellow("Last re-entry:"), ev.Action,
				ev.Timestamp.Local().Format("2006-01-02 15:04:05"), ev.Reason)
		}

		if lock := r.Lock; lock != nil {
			fmt.Printf("%s %s (pid %d on %s, %v ago)\n\n", yellow("⚠ Session in progress:"), lock.Holder,
				lock.PID, lock.Hostname, time.Since(lock.StartedAt).Round(time.Second))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func taskIcon(status types.TaskStatus) string {
	switch status {
	case types.TaskComplete:
		return green("✓")
	case types.TaskFailed:
		return red("✗")
	case types.TaskInProgress:
		return yellow("●")
	default:
		return gray("○")
	}
}
