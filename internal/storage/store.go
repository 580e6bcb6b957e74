package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Store groups the state file and the checkpoint artifacts of one project.
type Store struct {
	Layout      Layout
	State       *StateStore
	Checkpoints *CheckpointStore
	logger      *zap.Logger
}

// Config holds store configuration
type Config struct {
	Layout Layout
	Logger *zap.Logger // Optional: defaults to a no-op logger
}

// NewStore creates a store and makes sure the state directory exists.
func NewStore(cfg *Config) (*Store, error) {
	if cfg.Layout.StateDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Layout.Ensure(); err != nil {
		return nil, err
	}
	return &Store{
		Layout:      cfg.Layout,
		State:       NewStateStore(cfg.Layout.StatePath(), logger),
		Checkpoints: NewCheckpointStore(cfg.Layout, logger),
		logger:      logger,
	}, nil
}

// Persist writes the checkpoint artifacts for the given phases and then the
// state file. The state file is authoritative; if a crash happens between the
// two writes, Reconcile recovers the newer checkpoint on the next load.
func (s *Store) Persist(state *types.BrownfieldState, phases ...types.Phase) error {
	for _, p := range phases {
		cp := state.Checkpoint(p)
		if cp == nil {
			continue
		}
		if err := s.Checkpoints.Save(cp); err != nil {
			return err
		}
	}
	return s.State.Save(state)
}

// Reconcile adopts checkpoint artifacts that are newer than the copy embedded
// in the state and returns the phases it updated. Artifacts for phases after
// the current phase are ignored.
func (s *Store) Reconcile(state *types.BrownfieldState) ([]types.Phase, error) {
	var adopted []types.Phase
	for _, p := range s.Checkpoints.List() {
		if state.CurrentPhase.Before(p) {
			s.logger.Warn("ignoring checkpoint ahead of current phase",
				zap.String("phase", string(p)),
				zap.String("current", string(state.CurrentPhase)))
			continue
		}
		artifact, err := s.Checkpoints.Load(p)
		if err != nil {
			return adopted, err
		}
		embedded := state.Checkpoint(p)
		if embedded != nil && !artifact.LastUpdatedAt.After(embedded.LastUpdatedAt) {
			continue
		}
		state.Checkpoints[p] = artifact
		state.Touch(artifact.LastUpdatedAt)
		adopted = append(adopted, p)
		s.logger.Info("recovered checkpoint newer than state",
			zap.String("phase", string(p)),
			zap.Float64("progress", artifact.ProgressPercentage()))
	}
	return adopted, nil
}

// DropCheckpoints deletes the artifacts of every phase after p.
func (s *Store) DropCheckpoints(after types.Phase) error {
	for _, p := range types.AllPhases() {
		if after.Before(p) {
			if err := s.Checkpoints.Delete(p); err != nil {
				return err
			}
		}
	}
	return nil
}
