package git

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPrefix marks every workflow-authored commit.
const DefaultPrefix = "[brownfield]"

var (
	// ErrProtectedBranch is returned when a mutation is attempted on a
	// protected branch.
	ErrProtectedBranch = errors.New("refusing to commit on a protected branch")

	// ErrNothingToCommit is returned when the given files carry no changes.
	ErrNothingToCommit = errors.New("no changes to commit")

	// ErrConflicted is returned when the repository has unmerged paths or an
	// operation (merge, revert, rebase) in progress.
	ErrConflicted = errors.New("repository is in a conflicted state")

	// ErrDirtyWorktree is returned when uncommitted changes block a revert.
	ErrDirtyWorktree = errors.New("working tree has uncommitted changes")

	// ErrNoCommits is returned for a repository without any commit yet.
	ErrNoCommits = errors.New("repository has no commits")
)

// Status represents the git status of a repository.
type Status struct {
	Modified  []string
	Untracked []string
	Deleted   []string
	Added     []string
	Renamed   []string
	Unmerged  []string

	// HasChanges is true if any changes exist
	HasChanges bool
}

// Paths returns every path mentioned by the status.
func (s *Status) Paths() []string {
	var out []string
	for _, group := range [][]string{s.Modified, s.Untracked, s.Deleted, s.Added, s.Renamed, s.Unmerged} {
		out = append(out, group...)
	}
	return out
}

// CommitInfo describes one commit in first-parent history.
type CommitInfo struct {
	Hash    string    `json:"hash"`
	Subject string    `json:"subject"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`

	// Workflow is true when the subject carries the workflow marker.
	Workflow bool `json:"workflow"`
	// RevertOf is set on workflow commits created by AutoRevert.
	RevertOf string `json:"revert_of,omitempty"`
}

// Short returns the abbreviated hash.
func (c CommitInfo) Short() string { return ShortHash(c.Hash) }

// IsRevert reports whether the commit undoes another workflow commit.
func (c CommitInfo) IsRevert() bool { return c.RevertOf != "" }

// ShortHash abbreviates a commit hash to 8 characters.
func ShortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// RevertMode selects how AutoRevert removes workflow commits.
type RevertMode string

const (
	// RevertModeRevert adds inverse commits and keeps history intact.
	RevertModeRevert RevertMode = "revert"
	// RevertModeReset moves HEAD back. Only allowed when every commit being
	// dropped is workflow-authored.
	RevertModeReset RevertMode = "reset"
)

// IsValid checks if the revert mode value is valid
func (m RevertMode) IsValid() bool {
	return m == RevertModeRevert || m == RevertModeReset
}

// RevertTarget selects what to undo: everything after Commit, or the LastN
// most recent workflow commits. Exactly one must be set.
type RevertTarget struct {
	Commit string
	LastN  int
}

func (t RevertTarget) String() string {
	if t.Commit != "" {
		return "after " + ShortHash(t.Commit)
	}
	return fmt.Sprintf("last %d workflow commits", t.LastN)
}

// RevertResult reports what AutoRevert did.
type RevertResult struct {
	Mode     RevertMode   `json:"mode"`
	Target   string       `json:"target"`
	Reverted []CommitInfo `json:"reverted"` // workflow commits undone, newest first
	Created  []string     `json:"created"`  // revert commits created (revert mode)
	Head     string       `json:"head"`
}

// RevertError is returned when AutoRevert cannot finish. It is fatal: the
// caller must halt and report the boundary reached.
type RevertError struct {
	Target   string   // requested target
	Reached  string   // HEAD when the revert stopped
	Reverted []string // workflow commits already undone, newest first
	Failed   string   // commit being reverted when it failed, if any
	Err      error
}

func (e *RevertError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "auto-revert to %s stopped at %s", e.Target, ShortHash(e.Reached))
	if e.Failed != "" {
		fmt.Fprintf(&b, " while reverting %s", ShortHash(e.Failed))
	}
	if len(e.Reverted) > 0 {
		short := make([]string, len(e.Reverted))
		for i, h := range e.Reverted {
			short[i] = ShortHash(h)
		}
		fmt.Fprintf(&b, " (already reverted: %s)", strings.Join(short, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RevertError) Unwrap() error { return e.Err }
