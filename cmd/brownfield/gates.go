package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Preview the readiness gates out of the current phase",
	Long: `Evaluate the gates between the current phase and the next one against
fresh metrics and the recorded state. Nothing is run or written.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkflow("brownfield gates")
		ev, err := w.GatesPreview(context.Background())
		if err != nil {
			exitError(err)
		}
		fmt.Println()
		if ev == nil {
			fmt.Printf("%s No transition left: graduation is the last phase\n\n", gray("•"))
			return
		}
		printEvaluation(ev)
		fmt.Println()
		if ev.Passed {
			fmt.Printf("%s Ready to advance to %s\n\n", green("✓"), ev.To.Title())
		} else {
			fmt.Printf("%s %d unmet condition(s)\n\n", yellow("⚠"), len(ev.UnmetReasons))
		}
	},
}

func init() {
	rootCmd.AddCommand(gatesCmd)
}
