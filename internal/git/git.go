// Package git is the version-control safety layer: one repository session
// shared by the branch guard, the atomic committer, the history tracker and
// auto-revert.
package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// Repo is the repository session handle. It holds no cached branch or commit
// state: every query re-reads the repository at the point of use.
type Repo struct {
	root    string
	gitPath string
	logger  *zap.Logger
}

// Config holds repository session configuration
type Config struct {
	Path   string
	Logger *zap.Logger // Optional: defaults to a no-op logger
}

// Open creates a session for the working tree at cfg.Path.
// It verifies that git is available and that the path is a repository.
func Open(ctx context.Context, cfg *Config) (*Repo, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := gogit.PlainOpen(root); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", root, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Repo{root: root, gitPath: gitPath, logger: logger}

	// Verify git works
	if _, err := r.run(ctx, "version"); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}
	return r, nil
}

// Root returns the working tree root.
func (r *Repo) Root() string { return r.root }

func (r *Repo) open() (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(r.root)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", r.root, err)
	}
	return repo, nil
}

// CurrentBranch returns the short name of the checked-out branch, or "" with
// detached HEAD. An unborn branch (no commits yet) still has a name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target().Short(), nil
	}
	return "", nil
}

// Head returns the hash HEAD points at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", ErrNoCommits
		}
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// ResolveCommit expands a revision (full or abbreviated hash, branch, HEAD~n)
// to a full commit hash.
func (r *Repo) ResolveCommit(ctx context.Context, rev string) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("unknown commit %q", rev)
	}
	return strings.TrimSpace(out), nil
}

// GetStatus returns the git status of the working tree. Ignored files are
// not reported.
func (r *Repo) GetStatus(ctx context.Context) (*Status, error) {
	output, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", r.root, err)
	}

	status := &Status{
		Modified:  []string{},
		Untracked: []string{},
		Deleted:   []string{},
		Added:     []string{},
		Renamed:   []string{},
		Unmerged:  []string{},
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		code := line[0:2]
		path := line[3:]

		// XY where X=index, Y=working tree
		switch {
		case code == "??":
			status.Untracked = append(status.Untracked, path)
		case code == "UU" || code == "AA" || code == "DD" || strings.Contains(code, "U"):
			status.Unmerged = append(status.Unmerged, path)
		case code[0] == 'A':
			status.Added = append(status.Added, path)
		case code[0] == 'R':
			status.Renamed = append(status.Renamed, path)
		case code[0] == 'D' || code[1] == 'D':
			status.Deleted = append(status.Deleted, path)
		default:
			status.Modified = append(status.Modified, path)
		}
		status.HasChanges = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}
	return status, nil
}

// IsClean reports whether the working tree has no changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	status, err := r.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return !status.HasChanges, nil
}

// CheckConflicts returns ErrConflicted when there are unmerged paths or a
// merge, revert, cherry-pick or rebase is in progress.
func (r *Repo) CheckConflicts(ctx context.Context) error {
	out, err := r.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err == nil && strings.TrimSpace(out) != "" {
		files := strings.Fields(out)
		return fmt.Errorf("%w: unmerged paths %s", ErrConflicted, strings.Join(files, ", "))
	}

	gitDir, err := r.run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return fmt.Errorf("locating git dir: %w", err)
	}
	gitDir = strings.TrimSpace(gitDir)
	for _, marker := range []string{"MERGE_HEAD", "REVERT_HEAD", "CHERRY_PICK_HEAD", "rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(gitDir, marker)); err == nil {
			return fmt.Errorf("%w: %s in progress", ErrConflicted, marker)
		}
	}
	return nil
}

// Discard restores the given paths to their HEAD content, removing files
// that do not exist in HEAD. Used to clean up after a failed task.
func (r *Repo) Discard(ctx context.Context, paths []string) error {
	for _, p := range paths {
		rel, err := r.relPath(p)
		if err != nil {
			return err
		}
		if _, err := r.run(ctx, "cat-file", "-e", "HEAD:"+filepath.ToSlash(rel)); err == nil {
			if _, err := r.run(ctx, "checkout", "HEAD", "--", rel); err != nil {
				return fmt.Errorf("restoring %s: %w", rel, err)
			}
			continue
		}
		if _, err := r.run(ctx, "rm", "-r", "-q", "--cached", "--ignore-unmatch", "--", rel); err != nil {
			return fmt.Errorf("unstaging %s: %w", rel, err)
		}
		if err := os.RemoveAll(filepath.Join(r.root, rel)); err != nil {
			return fmt.Errorf("removing %s: %w", rel, err)
		}
	}
	return nil
}

// relPath converts p to a path relative to the root and rejects paths that
// escape the working tree.
func (r *Repo) relPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, p)
	}
	rel, err := filepath.Rel(r.root, filepath.Clean(abs))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the repository", p)
	}
	return rel, nil
}

// run executes git in the repository and returns stdout. On failure the
// error carries stderr.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	return r.runInput(ctx, nil, args...)
}

func (r *Repo) runInput(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, append([]string{"-C", r.root}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = stdin
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.String(), fmt.Errorf("git %s: %w", args[0], err)
		}
		return stdout.String(), fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}

// exitCode returns the process exit code carried by err, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
