package git

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var revertTrailer = regexp.MustCompile(`(?m)^This reverts commit ([0-9a-f]{7,40})\.?$`)

// HistoryTracker enumerates workflow-authored commits.
type HistoryTracker struct {
	repo   *Repo
	prefix string
}

// NewHistoryTracker creates a tracker. An empty prefix selects DefaultPrefix.
func NewHistoryTracker(repo *Repo, prefix string) *HistoryTracker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &HistoryTracker{repo: repo, prefix: prefix}
}

// IsWorkflowMessage reports whether a commit message carries the marker.
func (h *HistoryTracker) IsWorkflowMessage(msg string) bool {
	return msg == h.prefix || strings.HasPrefix(msg, h.prefix+" ")
}

// GetBrownfieldCommits returns every workflow commit on the first-parent
// history of HEAD, oldest first.
func (h *HistoryTracker) GetBrownfieldCommits(ctx context.Context) ([]CommitInfo, error) {
	all, _, err := h.walk(ctx, "")
	if err != nil {
		if errors.Is(err, ErrNoCommits) {
			return []CommitInfo{}, nil
		}
		return nil, err
	}
	out := make([]CommitInfo, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Workflow {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Since returns every commit (workflow or not) after base on the first-parent
// history of HEAD, newest first. It fails when base is not on that history.
func (h *HistoryTracker) Since(ctx context.Context, base string) ([]CommitInfo, error) {
	commits, found, err := h.walk(ctx, base)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("commit %s is not on the history of HEAD", ShortHash(base))
	}
	return commits, nil
}

// walk follows first parents from HEAD, newest first, stopping before stopAt.
// found reports whether stopAt was reached.
func (h *HistoryTracker) walk(ctx context.Context, stopAt string) (commits []CommitInfo, found bool, err error) {
	repo, err := h.repo.open()
	if err != nil {
		return nil, false, err
	}
	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, false, ErrNoCommits
		}
		return nil, false, fmt.Errorf("reading HEAD: %w", err)
	}

	c, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, false, fmt.Errorf("loading commit %s: %w", ref.Hash(), err)
	}
	for c != nil {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if stopAt != "" && c.Hash.String() == stopAt {
			return commits, true, nil
		}
		commits = append(commits, h.info(c))
		if c.NumParents() == 0 {
			break
		}
		c, err = c.Parent(0)
		if err != nil {
			return nil, false, fmt.Errorf("loading parent: %w", err)
		}
	}
	return commits, stopAt == "", nil
}

func (h *HistoryTracker) info(c *object.Commit) CommitInfo {
	subject := c.Message
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	info := CommitInfo{
		Hash:     c.Hash.String(),
		Subject:  strings.TrimSpace(subject),
		Message:  c.Message,
		Author:   c.Author.Name,
		When:     c.Author.When,
		Workflow: h.IsWorkflowMessage(c.Message),
	}
	if info.Workflow {
		if m := revertTrailer.FindStringSubmatch(c.Message); m != nil {
			info.RevertOf = m[1]
		}
	}
	return info
}
