package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/orchestrator"
)

var initLanguage string

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Start a remediation workflow in the project",
	Long: `Create the workflow state in .brownfield/ and enter the assessment phase.

The current HEAD becomes the baseline commit: reverts never go past it.
The language handler is detected from the project files unless --language
or the language config key names one.

Example:
  brownfield init
  brownfield init billing-api --language go`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := orchestrator.InitOptions{Language: initLanguage}
		if len(args) > 0 {
			opts.Name = args[0]
		}

		w := openWorkflow("brownfield init")
		state, err := w.Init(context.Background(), opts)
		if err != nil {
			exitError(err)
		}

		fmt.Printf("\n%s Initialized brownfield workflow for %s\n", green("✓"), bold(state.Project.Name))
		language := state.Project.Language
		if language == "" {
			language = yellow("none detected (set 'language' in the config)")
		}
		fmt.Printf("  Language: %s\n", language)
		fmt.Printf("  Baseline: %s\n", git.ShortHash(state.BaselineCommit))
		fmt.Printf("  State:    %s\n", w.Layout().StateDir)
		fmt.Printf("  Phase:    %s\n\n", cyan(state.CurrentPhase.Title()))
		fmt.Printf("Run %s to start the assessment.\n", bold("brownfield next"))
	},
}

func init() {
	initCmd.Flags().StringVar(&initLanguage, "language", "", "Language handler to use instead of detection")
	rootCmd.AddCommand(initCmd)
}
