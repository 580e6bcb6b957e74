package git

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SafeCommit creates marker-prefixed commits of exactly the given files.
type SafeCommit struct {
	repo   *Repo
	guard  *BranchGuard
	prefix string
}

// NewSafeCommit creates a committer. An empty prefix selects DefaultPrefix.
func NewSafeCommit(repo *Repo, guard *BranchGuard, prefix string) *SafeCommit {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SafeCommit{repo: repo, guard: guard, prefix: prefix}
}

// Prefix returns the workflow marker.
func (s *SafeCommit) Prefix() string { return s.prefix }

// Message returns the full commit message for a subject.
func (s *SafeCommit) Message(subject string) string {
	return s.prefix + " " + strings.TrimSpace(subject)
}

// Commit stages files and commits them alone with the marker-prefixed
// message, returning the new commit hash.
//
// Nothing is touched when the branch is protected (ErrProtectedBranch) or the
// repository is conflicted (ErrConflicted). When the files carry no changes
// the result is ErrNothingToCommit; an empty commit is never created.
func (s *SafeCommit) Commit(ctx context.Context, message string, files []string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message is required")
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no files given", ErrNothingToCommit)
	}

	if err := s.guard.Require(ctx); err != nil {
		return "", err
	}
	if err := s.repo.CheckConflicts(ctx); err != nil {
		return "", err
	}

	rels := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := s.repo.relPath(f)
		if err != nil {
			return "", err
		}
		rels = append(rels, rel)
	}

	addArgs := append([]string{"add", "-A", "--"}, rels...)
	if _, err := s.repo.run(ctx, addArgs...); err != nil {
		return "", fmt.Errorf("staging files: %w", err)
	}

	diffArgs := append([]string{"diff", "--cached", "--quiet", "--"}, rels...)
	if _, err := s.repo.run(ctx, diffArgs...); err == nil {
		return "", ErrNothingToCommit
	} else if exitCode(err) != 1 {
		return "", fmt.Errorf("checking staged changes: %w", err)
	}

	full := s.Message(message)
	commitArgs := append([]string{"commit", "-q", "-m", full, "--"}, rels...)
	if _, err := s.repo.run(ctx, commitArgs...); err != nil {
		return "", fmt.Errorf("git commit failed in %s: %w", s.repo.root, err)
	}

	hash, err := s.repo.Head(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash: %w", err)
	}
	s.repo.logger.Info("workflow commit created",
		zap.String("commit", ShortHash(hash)),
		zap.String("message", full),
		zap.Int("files", len(rels)))
	return hash, nil
}
