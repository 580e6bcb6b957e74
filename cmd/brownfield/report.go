package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/report"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report <phase>",
	Short: "Render the report of a phase",
	Long: `Render the Markdown report of a phase from the current state and print
it. With --output the report is written into that directory instead.

Phases: assessment, plan, remediation, validation, graduation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkflow("brownfield report")
		r, err := w.Report(context.Background(), types.Phase(args[0]))
		if err != nil {
			exitError(err)
		}
		if reportOutput == "" {
			fmt.Print(r.ToMarkdown())
			return
		}
		path, err := report.Write(reportOutput, r)
		if err != nil {
			exitError(err)
		}
		fmt.Printf("%s Wrote %s\n", green("✓"), path)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Write the report into this directory")
	rootCmd.AddCommand(reportCmd)
}
