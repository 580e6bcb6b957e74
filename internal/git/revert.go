package git

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AutoRevert removes workflow-authored changes after an unrecoverable
// failure. It never touches the baseline commit or anything before it, and
// never removes human commits.
type AutoRevert struct {
	repo     *Repo
	guard    *BranchGuard
	history  *HistoryTracker
	prefix   string
	baseline string
	mode     RevertMode
}

// AutoRevertConfig holds auto-revert configuration
type AutoRevertConfig struct {
	Repo     *Repo
	Guard    *BranchGuard // Optional: refuse to revert on protected branches
	History  *HistoryTracker
	Prefix   string
	Baseline string     // commit that predates the workflow's first run
	Mode     RevertMode // Optional: defaults to RevertModeRevert
}

// NewAutoRevert creates an auto-revert bound to a baseline commit.
func NewAutoRevert(cfg *AutoRevertConfig) (*AutoRevert, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Baseline == "" {
		return nil, fmt.Errorf("baseline commit is required")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = RevertModeRevert
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid revert mode %q", mode)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	history := cfg.History
	if history == nil {
		history = NewHistoryTracker(cfg.Repo, prefix)
	}
	return &AutoRevert{
		repo:     cfg.Repo,
		guard:    cfg.Guard,
		history:  history,
		prefix:   prefix,
		baseline: cfg.Baseline,
		mode:     mode,
	}, nil
}

// Revert undoes the workflow commits selected by target. Every failure is
// returned as *RevertError naming the boundary reached.
func (a *AutoRevert) Revert(ctx context.Context, target RevertTarget) (*RevertResult, error) {
	head, err := a.repo.Head(ctx)
	if err != nil {
		return nil, &RevertError{Target: target.String(), Err: err}
	}
	fail := func(err error) (*RevertResult, error) {
		return nil, &RevertError{Target: target.String(), Reached: head, Err: err}
	}

	if (target.Commit == "") == (target.LastN <= 0) {
		return fail(fmt.Errorf("exactly one of commit or last-N must be given"))
	}

	since, err := a.history.Since(ctx, a.baseline)
	if err != nil {
		return fail(fmt.Errorf("baseline: %w", err))
	}
	reverted := make(map[string]bool)
	for _, c := range since {
		if c.IsRevert() {
			reverted[c.RevertOf] = true
		}
	}

	newer, targetHash, err := a.selectRange(ctx, since, reverted, target)
	if err != nil {
		return fail(err)
	}

	if a.guard != nil {
		if err := a.guard.Require(ctx); err != nil {
			return fail(err)
		}
	}
	if err := a.repo.CheckConflicts(ctx); err != nil {
		return fail(err)
	}
	status, err := a.repo.GetStatus(ctx)
	if err != nil {
		return fail(err)
	}
	if status.HasChanges {
		return fail(fmt.Errorf("%w: %s", ErrDirtyWorktree, strings.Join(status.Paths(), ", ")))
	}

	result := &RevertResult{Mode: a.mode, Target: targetHash, Reverted: []CommitInfo{}, Created: []string{}}
	switch a.mode {
	case RevertModeReset:
		err = a.reset(ctx, newer, targetHash, result)
	default:
		err = a.revert(ctx, newer, reverted, result)
	}
	if err != nil {
		return nil, err
	}

	if result.Head, err = a.repo.Head(ctx); err != nil {
		return nil, &RevertError{Target: target.String(), Reached: head, Err: err}
	}
	a.repo.logger.Info("auto-revert complete",
		zap.String("mode", string(a.mode)),
		zap.String("target", ShortHash(targetHash)),
		zap.Int("reverted", len(result.Reverted)),
		zap.String("head", ShortHash(result.Head)))
	return result, nil
}

// selectRange returns the commits newer than the resolved target (newest
// first) and the target hash.
func (a *AutoRevert) selectRange(ctx context.Context, since []CommitInfo, reverted map[string]bool, target RevertTarget) ([]CommitInfo, string, error) {
	if target.Commit != "" {
		full, err := a.repo.ResolveCommit(ctx, target.Commit)
		if err != nil {
			return nil, "", err
		}
		if full == a.baseline {
			return since, full, nil
		}
		for i, c := range since {
			if c.Hash == full {
				return since[:i], full, nil
			}
		}
		return nil, "", fmt.Errorf("target %s predates the workflow baseline %s or is not on the current history",
			ShortHash(full), ShortHash(a.baseline))
	}

	var picked, oldest int
	for i, c := range since {
		if picked == target.LastN {
			break
		}
		if c.Workflow && !c.IsRevert() && !reverted[c.Hash] {
			picked++
			oldest = i
		}
	}
	if picked < target.LastN {
		return nil, "", fmt.Errorf("only %d workflow commits can be reverted, %d requested", picked, target.LastN)
	}
	targetHash := a.baseline
	if oldest+1 < len(since) {
		targetHash = since[oldest+1].Hash
	}
	return since[:oldest+1], targetHash, nil
}

func (a *AutoRevert) revert(ctx context.Context, newer []CommitInfo, reverted map[string]bool, result *RevertResult) error {
	for _, c := range newer {
		if !c.Workflow || c.IsRevert() || reverted[c.Hash] {
			continue
		}

		boundary := func(err error) error {
			reached, _ := a.repo.Head(ctx)
			done := make([]string, len(result.Reverted))
			for i, r := range result.Reverted {
				done[i] = r.Hash
			}
			return &RevertError{Target: result.Target, Reached: reached, Reverted: done, Failed: c.Hash, Err: err}
		}

		patch, err := a.repo.run(ctx, "diff", "--binary", c.Hash+"^", c.Hash)
		if err != nil {
			return boundary(fmt.Errorf("reading changes: %w", err))
		}
		if strings.TrimSpace(patch) == "" {
			continue
		}
		// git apply --index is all-or-nothing: a conflict leaves the tree as it was.
		if _, err := a.repo.runInput(ctx, bytes.NewReader([]byte(patch)), "apply", "--index", "-R", "--whitespace=nowarn"); err != nil {
			return boundary(fmt.Errorf("%w: %v", ErrConflicted, err))
		}
		if _, err := a.repo.run(ctx, "diff", "--cached", "--quiet"); err == nil {
			continue
		}

		msg := fmt.Sprintf("%s revert: %s\n\nThis reverts commit %s.\n",
			a.prefix, strings.TrimSpace(strings.TrimPrefix(c.Subject, a.prefix)), c.Hash)
		if _, err := a.repo.run(ctx, "commit", "-q", "-m", msg); err != nil {
			return boundary(fmt.Errorf("committing revert: %w", err))
		}
		created, err := a.repo.Head(ctx)
		if err != nil {
			return boundary(err)
		}
		result.Reverted = append(result.Reverted, c)
		result.Created = append(result.Created, created)
		a.repo.logger.Info("reverted workflow commit",
			zap.String("commit", c.Short()),
			zap.String("revert", ShortHash(created)))
	}
	return nil
}

func (a *AutoRevert) reset(ctx context.Context, newer []CommitInfo, targetHash string, result *RevertResult) error {
	for _, c := range newer {
		if !c.Workflow {
			reached, _ := a.repo.Head(ctx)
			return &RevertError{Target: result.Target, Reached: reached,
				Err: fmt.Errorf("commit %s (%s) is not workflow-authored; use revert mode", c.Short(), c.Subject)}
		}
	}
	if _, err := a.repo.run(ctx, "reset", "-q", "--hard", targetHash); err != nil {
		reached, _ := a.repo.Head(ctx)
		return &RevertError{Target: result.Target, Reached: reached, Err: fmt.Errorf("reset: %w", err)}
	}
	result.Reverted = append(result.Reverted, newer...)
	return nil
}
