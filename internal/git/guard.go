package git

import (
	"context"
	"fmt"
	"strings"
)

// DefaultProtectedBranches are refused for automatic commits.
var DefaultProtectedBranches = []string{"main", "master"}

// BranchGuard checks the active branch against the protected set.
type BranchGuard struct {
	repo      *Repo
	protected []string
}

// NewBranchGuard creates a guard. An empty list selects
// DefaultProtectedBranches.
func NewBranchGuard(repo *Repo, protected []string) *BranchGuard {
	if len(protected) == 0 {
		protected = DefaultProtectedBranches
	}
	out := make([]string, len(protected))
	copy(out, protected)
	return &BranchGuard{repo: repo, protected: out}
}

// Protected returns the protected branch names.
func (g *BranchGuard) Protected() []string {
	out := make([]string, len(g.protected))
	copy(out, g.protected)
	return out
}

// CheckProtected reports whether the active branch is protected. The branch
// is read fresh on every call.
func (g *BranchGuard) CheckProtected(ctx context.Context) (bool, string, error) {
	branch, err := g.repo.CurrentBranch(ctx)
	if err != nil {
		return false, "", err
	}
	for _, p := range g.protected {
		if strings.EqualFold(branch, p) {
			return true, branch, nil
		}
	}
	return false, branch, nil
}

// Require returns an error wrapping ErrProtectedBranch when the active branch
// is protected, and a plain error for a detached HEAD.
func (g *BranchGuard) Require(ctx context.Context) error {
	protected, branch, err := g.CheckProtected(ctx)
	if err != nil {
		return fmt.Errorf("checking branch: %w", err)
	}
	if protected {
		return fmt.Errorf("%w %q: switch to a working branch (git switch -c brownfield/remediation)", ErrProtectedBranch, branch)
	}
	if branch == "" {
		return fmt.Errorf("refusing to commit on a detached HEAD")
	}
	return nil
}
