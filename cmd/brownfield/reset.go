package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Archive the workflow state and start over",
	Long: `Archive state.json and delete every checkpoint. The decision log, the
event journal and the git history are kept; workflow commits are not
reverted (use 'brownfield revert' first if they should go).

Run 'brownfield init' afterwards to start a new workflow.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkflow("brownfield reset")
		mustConfirm("Archive the workflow state and delete all checkpoints?")

		archive, err := w.Reset(context.Background())
		if err != nil {
			exitError(err)
		}
		fmt.Printf("%s Workflow state archived to %s\n", green("✓"), archive)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
