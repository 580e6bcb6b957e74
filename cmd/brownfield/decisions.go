package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

var decisionsPhase string

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show the decision log",
	Long: `List the recorded workflow decisions, oldest first.

Example:
  brownfield decisions
  brownfield decisions --phase remediation`,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkflow("brownfield decisions")
		entries, err := w.Decisions(types.Phase(decisionsPhase))
		if err != nil {
			exitError(err)
		}
		if len(entries) == 0 {
			fmt.Println("No decisions recorded")
			return
		}

		fmt.Println()
		for _, e := range entries {
			fmt.Printf("%s %s %s\n", gray(e.Timestamp.Local().Format("2006-01-02 15:04")),
				riskLabel(e.ChosenRisk), bold(e.Decision))
			fmt.Printf("  Phase: %s\n", e.Phase.Title())
			if e.Rationale != "" {
				fmt.Printf("  Why:   %s\n", e.Rationale)
			}
			for _, alt := range e.Alternatives {
				fmt.Printf("  %s %s %s\n", gray("✗"), alt.Description, gray("("+alt.RejectedReason+")"))
			}
			fmt.Println()
		}
	},
}

func init() {
	decisionsCmd.Flags().StringVar(&decisionsPhase, "phase", "", "Only show decisions of this phase")
	rootCmd.AddCommand(decisionsCmd)
}

func riskLabel(r types.RiskLevel) string {
	label := fmt.Sprintf("[%s]", r)
	switch r {
	case types.RiskCritical:
		return bold(red(label))
	case types.RiskHigh:
		return red(label)
	case types.RiskMedium:
		return yellow(label)
	default:
		return green(label)
	}
}
