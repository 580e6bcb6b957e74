package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// CheckpointStore persists one artifact per phase under checkpoints/.
type CheckpointStore struct {
	layout Layout
	logger *zap.Logger
}

// NewCheckpointStore creates a checkpoint store for a layout.
func NewCheckpointStore(layout Layout, logger *zap.Logger) *CheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointStore{layout: layout, logger: logger}
}

// Save atomically writes the checkpoint artifact for cp.Phase.
func (c *CheckpointStore) Save(cp *types.PhaseCheckpoint) error {
	if err := cp.Validate(); err != nil {
		return &types.InvalidStateError{Op: "save checkpoint", Reason: "validation failed", Err: err}
	}
	path := c.layout.CheckpointPath(cp.Phase)
	if err := writeJSONAtomic(path, cp); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	c.logger.Debug("checkpoint saved",
		zap.String("phase", string(cp.Phase)),
		zap.Float64("progress", cp.ProgressPercentage()))
	return nil
}

// Load reads the checkpoint artifact for a phase. A missing artifact yields
// *types.StateNotFoundError.
func (c *CheckpointStore) Load(p types.Phase) (*types.PhaseCheckpoint, error) {
	path := c.layout.CheckpointPath(p)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.StateNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp types.PhaseCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &types.InvalidStateError{Op: "load checkpoint", Reason: "malformed checkpoint " + filepath.Base(path), Err: err}
	}
	if cp.Phase != p {
		return nil, types.NewInvalidState("load checkpoint", "%s holds a checkpoint for phase %s", filepath.Base(path), cp.Phase)
	}
	if err := cp.Validate(); err != nil {
		return nil, &types.InvalidStateError{Op: "load checkpoint", Reason: "validation failed", Err: err}
	}
	return &cp, nil
}

// Delete removes the artifact for a phase. Missing artifacts are ignored.
func (c *CheckpointStore) Delete(p types.Phase) error {
	if err := os.Remove(c.layout.CheckpointPath(p)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}

// List returns the phases that have artifacts, in workflow order.
func (c *CheckpointStore) List() []types.Phase {
	var out []types.Phase
	for _, p := range types.AllPhases() {
		if _, err := os.Stat(c.layout.CheckpointPath(p)); err == nil {
			out = append(out, p)
		}
	}
	return out
}
