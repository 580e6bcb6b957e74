package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/orchestrator"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

var (
	revertCommit string
	revertLast   int
	revertPhase  string
	revertMode   string
)

var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Undo workflow commits and rewind the checkpoints",
	Long: `Undo workflow commits on request. Only commits carrying the workflow
prefix are touched, and nothing at or before the baseline commit.

Exactly one target is required:
  --commit <hash>   undo every workflow commit after <hash>
  --last <n>        undo the n most recent workflow commits
  --phase <phase>   undo a phase and everything after it, then restart it

In revert mode (the default) inverse commits are created. Reset mode
moves HEAD back and discards the commits.

Example:
  brownfield revert --last 1
  brownfield revert --phase remediation --mode reset --yes`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := orchestrator.RevertOptions{
			Commit: revertCommit,
			LastN:  revertLast,
			Phase:  types.Phase(revertPhase),
		}

		w := openWorkflow("brownfield revert")
		if revertMode != "" {
			if !git.RevertMode(revertMode).IsValid() {
				exitError(fmt.Errorf("--mode must be %q or %q", git.RevertModeRevert, git.RevertModeReset))
			}
			w.Settings().RevertMode = revertMode
		}

		ctx := context.Background()
		history, err := w.History(ctx)
		if err != nil {
			exitError(err)
		}
		fmt.Printf("\n%d workflow commit(s) on this branch.\n", len(history))
		mustConfirm(fmt.Sprintf("Revert %s in %s mode?", describeTarget(opts), w.Settings().RevertMode))

		res, err := w.ForceRevert(ctx, opts)
		if err != nil {
			exitError(err)
		}
		fmt.Println()
		fmt.Printf("%s Revert complete\n", green("✓"))
		printRevert(res)
		fmt.Println()
	},
}

func init() {
	revertCmd.Flags().StringVar(&revertCommit, "commit", "", "Undo every workflow commit after this commit")
	revertCmd.Flags().IntVar(&revertLast, "last", 0, "Undo the N most recent workflow commits")
	revertCmd.Flags().StringVar(&revertPhase, "phase", "", "Undo this phase and everything after it")
	revertCmd.Flags().StringVar(&revertMode, "mode", "", "Revert mode: revert or reset (default from config)")
	revertCmd.MarkFlagsMutuallyExclusive("commit", "last", "phase")
	revertCmd.MarkFlagsOneRequired("commit", "last", "phase")
	rootCmd.AddCommand(revertCmd)
}

func describeTarget(opts orchestrator.RevertOptions) string {
	switch {
	case opts.Phase != "":
		return fmt.Sprintf("phase %s and everything after it", opts.Phase)
	case opts.LastN > 0:
		return fmt.Sprintf("the last %d workflow commit(s)", opts.LastN)
	default:
		return fmt.Sprintf("every workflow commit after %s", git.ShortHash(opts.Commit))
	}
}
