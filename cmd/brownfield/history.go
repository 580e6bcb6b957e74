package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the workflow commits, oldest first",
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkflow("brownfield history")
		commits, err := w.History(context.Background())
		if err != nil {
			exitError(err)
		}
		if len(commits) == 0 {
			fmt.Println("No workflow commits found")
			return
		}

		fmt.Printf("\n%s\n\n", bold(fmt.Sprintf("Workflow commits (%d):", len(commits))))
		for _, c := range commits {
			fmt.Printf("  %s  %s\n", gray(c.When.Local().Format("2006-01-02 15:04")), commitLine(c))
			if c.RevertOf != "" {
				fmt.Printf("      %s\n", gray("reverts "+c.RevertOf))
			}
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
