package main

import (
	"fmt"
	"strings"

	"github.com/jacopone/brownkit-sub001/internal/gates"
	"github.com/jacopone/brownkit-sub001/internal/git"
	"github.com/jacopone/brownkit-sub001/internal/orchestrator"
)

// printEvaluation shows every gate of a transition with its unmet reasons.
func printEvaluation(ev *gates.Evaluation) {
	fmt.Printf("%s %s → %s\n", yellow("Gates"), ev.From.Title(), ev.To.Title())
	for _, g := range ev.Gates {
		if g.Result.Passed {
			fmt.Printf("  %s %s\n", green("✓"), g.Name)
			continue
		}
		fmt.Printf("  %s %s\n", red("✗"), g.Name)
		for _, reason := range g.Result.UnmetReasons {
			fmt.Printf("      %s\n", reason)
		}
	}
}

// printOutcome reports what a next or resume invocation did.
func printOutcome(o *orchestrator.Outcome) {
	fmt.Println()
	if o.ReEntry != nil {
		fmt.Printf("%s %s %s: %s\n\n", yellow("↺"), o.ReEntry.Action, o.Phase.Title(), o.ReEntry.Reason)
	}

	for _, c := range o.Commits {
		fmt.Printf("  %s committed %s\n", gray("•"), git.ShortHash(c))
	}
	for _, id := range o.Skipped {
		fmt.Printf("  %s skipped failed task %s\n", yellow("⚠"), id)
	}
	if len(o.Commits) > 0 || len(o.Skipped) > 0 {
		fmt.Println()
	}

	if o.Gate != nil {
		printEvaluation(o.Gate)
		fmt.Println()
	}

	switch o.Status {
	case orchestrator.StatusCompleted:
		switch {
		case o.Graduated:
			fmt.Printf("%s Project graduated\n", green("✓"))
		case o.Advanced:
			fmt.Printf("%s %s complete, advanced to %s\n", green("✓"), o.Phase.Title(), bold(o.NextPhase.Title()))
		default:
			fmt.Printf("%s %s complete\n", green("✓"), o.Phase.Title())
		}
		if o.Report != "" {
			fmt.Printf("  Report: %s\n", o.Report)
		}

	case orchestrator.StatusBlocked:
		fmt.Printf("%s %s blocked (%.0f%% of tasks complete)\n", yellow("⚠"), o.Phase.Title(), o.Progress)
		for _, reason := range o.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
		fmt.Printf("\nFix the blockers and run %s again.\n", bold("brownfield next"))

	case orchestrator.StatusInterrupted:
		fmt.Printf("%s %s interrupted at %.0f%%\n", yellow("⚠"), o.Phase.Title(), o.Progress)
		fmt.Printf("Run %s to continue from the checkpoint.\n", bold("brownfield resume"))

	case orchestrator.StatusFailed:
		fmt.Printf("%s %s failed: %v\n", red("✗"), o.Phase.Title(), o.Err)
		if o.Revert != nil {
			printRevert(o.Revert)
		}
	}
	fmt.Println()
}

// printRevert lists the workflow commits a revert undid.
func printRevert(res *git.RevertResult) {
	if len(res.Reverted) == 0 {
		fmt.Printf("  %s\n", gray("no workflow commits to revert"))
		return
	}
	fmt.Printf("  Reverted %d workflow commit(s) (%s mode):\n", len(res.Reverted), res.Mode)
	for _, c := range res.Reverted {
		fmt.Printf("    %s %s\n", red("↶"), commitLine(c))
	}
	fmt.Printf("  HEAD is now %s\n", git.ShortHash(res.Head))
}

func commitLine(c git.CommitInfo) string {
	return fmt.Sprintf("%s %s", yellow(git.ShortHash(c.Hash)), c.Subject)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
