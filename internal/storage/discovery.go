package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// DefaultStateDirName is the directory, relative to the project root, that
// holds all workflow state.
const DefaultStateDirName = ".brownfield"

// Layout resolves every file the workflow persists for one project.
type Layout struct {
	Root     string // project root (the git working tree)
	StateDir string // absolute path of the state directory
}

// NewLayout builds a layout for a project root. stateDir may be relative to
// root; empty selects DefaultStateDirName.
func NewLayout(root, stateDir string) (Layout, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if stateDir == "" {
		stateDir = DefaultStateDirName
	}
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(absRoot, stateDir)
	}
	return Layout{Root: absRoot, StateDir: stateDir}, nil
}

func (l Layout) StatePath() string     { return filepath.Join(l.StateDir, "state.json") }
func (l Layout) CheckpointDir() string { return filepath.Join(l.StateDir, "checkpoints") }
func (l Layout) DecisionsPath() string { return filepath.Join(l.StateDir, "decisions.md") }
func (l Layout) JournalPath() string   { return filepath.Join(l.StateDir, "journal.db") }
func (l Layout) LockPath() string      { return filepath.Join(l.StateDir, "workflow.lock") }
func (l Layout) ConfigPath() string    { return filepath.Join(l.StateDir, "config.yaml") }

// CheckpointPath returns the checkpoint artifact for a phase.
func (l Layout) CheckpointPath(p types.Phase) string {
	return filepath.Join(l.CheckpointDir(), string(p)+".json")
}

// Ensure creates the state directory. The directory ignores itself so that
// workflow bookkeeping never shows up as a change in the working tree.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.CheckpointDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	ignore := filepath.Join(l.StateDir, ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		if err := os.WriteFile(ignore, []byte("*\n"), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", ignore, err)
		}
	}
	return nil
}

// DiscoverProjectRoot returns the project root for the current invocation.
//
// BROWNFIELD_DIR wins when set, which keeps tests isolated. Otherwise the
// current directory is used as is: we do not walk up the tree, so a nested
// checkout never picks up a parent project's workflow.
func DiscoverProjectRoot() (string, error) {
	if dir := os.Getenv("BROWNFIELD_DIR"); dir != "" {
		return filepath.Abs(dir)
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return dir, nil
}

// IsInitialized reports whether a state file exists in the layout.
func (l Layout) IsInitialized() bool {
	_, err := os.Stat(l.StatePath())
	return err == nil
}
