package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// CompareSchemaVersions compares two dotted schema versions ("1.1.0") and
// returns -1, 0 or +1. Invalid versions sort before valid ones.
func CompareSchemaVersions(a, b string) int {
	return semver.Compare(canonicalVersion(a), canonicalVersion(b))
}

// ValidSchemaVersion reports whether v is a well-formed schema version.
func ValidSchemaVersion(v string) bool {
	return v != "" && semver.IsValid(canonicalVersion(v))
}

func canonicalVersion(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// ReadSchemaVersion extracts schema_version from a raw state payload without
// decoding the rest of it.
func ReadSchemaVersion(data []byte) (string, error) {
	var header struct {
		SchemaVersion string `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return "", err
	}
	return header.SchemaVersion, nil
}

// StateStore persists the BrownfieldState aggregate as a single JSON file.
type StateStore struct {
	path   string
	logger *zap.Logger
}

// NewStateStore creates a store for the state file at path.
func NewStateStore(path string, logger *zap.Logger) *StateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{path: path, logger: logger}
}

// Path returns the state file path.
func (s *StateStore) Path() string { return s.path }

// Exists reports whether a state file has been written.
func (s *StateStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads and validates the persisted state.
//
// A missing file yields *types.StateNotFoundError. A payload that fails
// validation yields *types.InvalidStateError; when the only problem is an
// older schema version the error has NeedsMigration set.
func (s *StateStore) Load() (*types.BrownfieldState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.StateNotFoundError{Path: s.path}
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	return DecodeState(data)
}

// DecodeState parses and validates a state payload.
func DecodeState(data []byte) (*types.BrownfieldState, error) {
	version, err := ReadSchemaVersion(data)
	if err != nil {
		return nil, &types.InvalidStateError{Op: "load state", Reason: "malformed state payload", Err: err}
	}
	if !ValidSchemaVersion(version) {
		return nil, types.NewInvalidState("load state", "missing or invalid schema_version %q", version)
	}
	switch c := CompareSchemaVersions(version, types.CurrentSchemaVersion); {
	case c < 0:
		return nil, &types.InvalidStateError{
			Op:             "load state",
			Reason:         fmt.Sprintf("schema_version %s is older than %s", version, types.CurrentSchemaVersion),
			NeedsMigration: true,
		}
	case c > 0:
		return nil, types.NewInvalidState("load state", "schema_version %s is newer than supported %s", version, types.CurrentSchemaVersion)
	}

	var state types.BrownfieldState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &types.InvalidStateError{Op: "load state", Reason: "malformed state payload", Err: err}
	}
	if state.Checkpoints == nil {
		state.Checkpoints = make(map[types.Phase]*types.PhaseCheckpoint)
	}
	if state.ReEntryEvents == nil {
		state.ReEntryEvents = []types.ReEntryEvent{}
	}
	if err := state.Validate(); err != nil {
		return nil, &types.InvalidStateError{Op: "load state", Reason: "validation failed", Err: err}
	}
	return &state, nil
}

// Save validates and atomically writes the full aggregate.
func (s *StateStore) Save(state *types.BrownfieldState) error {
	if err := state.Validate(); err != nil {
		return &types.InvalidStateError{Op: "save state", Reason: "validation failed", Err: err}
	}
	if err := writeJSONAtomic(s.path, state); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	s.logger.Debug("state saved",
		zap.String("path", s.path),
		zap.String("phase", string(state.CurrentPhase)))
	return nil
}

// Archive renames the state file aside as state.json.reset-<timestamp> and
// returns the archive path. The state is never deleted.
func (s *StateStore) Archive(now time.Time) (string, error) {
	if !s.Exists() {
		return "", &types.StateNotFoundError{Path: s.path}
	}
	archive := fmt.Sprintf("%s.reset-%s", s.path, now.UTC().Format("20060102T150405Z"))
	if err := os.Rename(s.path, archive); err != nil {
		return "", fmt.Errorf("archiving state file: %w", err)
	}
	s.logger.Info("state archived", zap.String("archive", archive))
	return archive, nil
}
