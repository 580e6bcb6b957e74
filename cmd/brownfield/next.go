package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/orchestrator"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Run the current phase and advance when its gates pass",
	Long: `Run every pending task of the current phase, commit what each task
changes and evaluate the readiness gates to the next phase.

An interrupted run is picked up where it stopped. Ctrl+C stops after
the running task is rolled back; the checkpoint keeps everything else.

Exit status is non-zero when the phase failed.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPhase(func(ctx context.Context, w *orchestrator.Workflow) (*orchestrator.Outcome, error) {
			return w.Next(ctx)
		}, "brownfield next")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an interrupted or failed run of the current phase",
	Long: `Resume the current phase from its checkpoint. Completed tasks are not
run again. Unlike next, resume refuses to start a phase that has no
unfinished run.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPhase(func(ctx context.Context, w *orchestrator.Workflow) (*orchestrator.Outcome, error) {
			return w.Resume(ctx)
		}, "brownfield resume")
	},
}

func init() {
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runPhase(run func(context.Context, *orchestrator.Workflow) (*orchestrator.Outcome, error), holder string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := openWorkflow(holder)
	outcome, err := run(ctx, w)
	if err != nil {
		exitError(err)
	}
	printOutcome(outcome)
	if outcome.Status == orchestrator.StatusFailed {
		stop()
		os.Exit(1)
	}
}
