package migrations

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/storage"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Payload is a decoded state file. Numbers are kept as json.Number so that
// migrating never changes their textual form.
type Payload map[string]interface{}

// Migration upgrades a state payload from one schema version to the next.
type Migration struct {
	From        string
	To          string
	Description string
	Up          func(p Payload) error
}

// Result describes what MigrateStateFile did.
type Result struct {
	FromVersion string
	ToVersion   string
	Applied     []string // descriptions, in order
	BackupPath  string
}

// Migrated reports whether any migration ran.
func (r *Result) Migrated() bool { return len(r.Applied) > 0 }

// Manager handles state file migrations
type Manager struct {
	migrations []Migration
	target     string
	logger     *zap.Logger
}

// NewManager creates a manager targeting the current schema version with the
// built-in migrations registered.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{target: types.CurrentSchemaVersion, logger: logger}
	for _, mig := range builtin() {
		m.Register(mig)
	}
	return m
}

// Register adds a migration to the manager
func (m *Manager) Register(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

// Target returns the schema version migrations lead to.
func (m *Manager) Target() string { return m.target }

// BackupPath returns where the pre-migration payload of path is kept.
func BackupPath(path string) string { return path + ".bak" }

// DigestPath returns where the digest of the migrated payload of path is
// kept. Rollback compares it with the current file.
func DigestPath(path string) string { return path + ".migrated.sha256" }

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CheckMigrationNeeded reports whether a payload's schema_version is older
// than the supported version. A newer or malformed version is an error.
func (m *Manager) CheckMigrationNeeded(payload []byte) (bool, error) {
	version, err := storage.ReadSchemaVersion(payload)
	if err != nil {
		return false, &types.InvalidStateError{Op: "check migration", Reason: "malformed state payload", Err: err}
	}
	if !storage.ValidSchemaVersion(version) {
		return false, types.NewInvalidState("check migration", "missing or invalid schema_version %q", version)
	}
	switch c := storage.CompareSchemaVersions(version, m.target); {
	case c > 0:
		return false, types.NewInvalidState("check migration", "schema_version %s is newer than supported %s", version, m.target)
	case c < 0:
		return true, nil
	}
	return false, nil
}

// MigrateStateFile upgrades the state file at path to the target version.
// The original bytes are written to BackupPath(path) before anything changes.
// A file already at the target version is left untouched.
func (m *Manager) MigrateStateFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.StateNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	needed, err := m.CheckMigrationNeeded(data)
	if err != nil {
		return nil, err
	}
	version, _ := storage.ReadSchemaVersion(data)
	result := &Result{FromVersion: version, ToVersion: version}
	if !needed {
		return result, nil
	}

	payload, err := decodePayload(data)
	if err != nil {
		return nil, &types.InvalidStateError{Op: "migrate state", Reason: "malformed state payload", Err: err}
	}

	for storage.CompareSchemaVersions(version, m.target) < 0 {
		step, ok := m.stepFrom(version)
		if !ok {
			return nil, types.NewInvalidState("migrate state", "no migration registered from schema_version %s", version)
		}
		if err := step.Up(payload); err != nil {
			return nil, &types.InvalidStateError{Op: "migrate state", Reason: fmt.Sprintf("%s -> %s", step.From, step.To), Err: err}
		}
		payload["schema_version"] = step.To
		result.Applied = append(result.Applied, step.Description)
		version = step.To
	}
	result.ToVersion = version

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing migrated state: %w", err)
	}
	out = append(out, '\n')
	if _, err := storage.DecodeState(out); err != nil {
		return nil, fmt.Errorf("migrated state does not validate: %w", err)
	}

	result.BackupPath = BackupPath(path)
	if err := storage.WriteFileAtomic(result.BackupPath, data, 0644); err != nil {
		return nil, fmt.Errorf("writing migration backup: %w", err)
	}
	if err := storage.WriteFileAtomic(DigestPath(path), []byte(digest(out)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing migration digest: %w", err)
	}
	if err := storage.WriteFileAtomic(path, out, 0644); err != nil {
		return nil, fmt.Errorf("writing migrated state: %w", err)
	}

	m.logger.Info("state migrated",
		zap.String("path", path),
		zap.String("from", result.FromVersion),
		zap.String("to", result.ToVersion),
		zap.Strings("applied", result.Applied))
	return result, nil
}

// RollbackMigration restores the pre-migration payload saved by
// MigrateStateFile and removes the backup. When the state file no longer
// holds the bytes the migration wrote, progress saved since then would be
// lost, so the rollback is refused unless force is set.
func (m *Manager) RollbackMigration(path string, force bool) error {
	backup := BackupPath(path)
	data, err := os.ReadFile(backup)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewInvalidState("rollback migration", "no migration backup for %s", path)
		}
		return fmt.Errorf("reading migration backup: %w", err)
	}
	if !force {
		if err := m.checkUnchanged(path); err != nil {
			return err
		}
	}
	if err := storage.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("restoring state file: %w", err)
	}
	for _, p := range []string{backup, DigestPath(path)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing migration backup: %w", err)
		}
	}
	m.logger.Info("state migration rolled back", zap.String("path", path), zap.Bool("forced", force))
	return nil
}

// checkUnchanged verifies that path still holds the migrated payload.
func (m *Manager) checkUnchanged(path string) error {
	want, err := os.ReadFile(DigestPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewInvalidState("rollback migration", "no digest of the migrated state for %s; use --force to restore the backup anyway", path)
		}
		return fmt.Errorf("reading migration digest: %w", err)
	}
	current, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading state file: %w", err)
	}
	if digest(current) != strings.TrimSpace(string(want)) {
		return types.NewInvalidState("rollback migration", "state changed since the migration; use --force to discard the newer progress")
	}
	return nil
}

func (m *Manager) stepFrom(version string) (Migration, bool) {
	for _, mig := range m.migrations {
		if storage.CompareSchemaVersions(mig.From, version) == 0 {
			return mig, true
		}
	}
	return Migration{}, false
}

func decodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("state payload is not an object")
	}
	return p, nil
}

// builtin returns the state schema history.
func builtin() []Migration {
	return []Migration{
		{
			From:        "1.0.0",
			To:          "1.1.0",
			Description: "rename phase to current_phase and add re_entry_events",
			Up: func(p Payload) error {
				if phase, ok := p["phase"]; ok {
					if _, exists := p["current_phase"]; !exists {
						p["current_phase"] = phase
					}
					delete(p, "phase")
				}
				if _, ok := p["re_entry_events"]; !ok {
					p["re_entry_events"] = []interface{}{}
				}
				return nil
			},
		},
		{
			From:        "1.1.0",
			To:          "2.0.0",
			Description: "key checkpoints by phase",
			Up: func(p Payload) error {
				raw, ok := p["checkpoints"]
				if !ok || raw == nil {
					p["checkpoints"] = map[string]interface{}{}
					return nil
				}
				list, ok := raw.([]interface{})
				if !ok {
					if _, already := raw.(map[string]interface{}); already {
						return nil
					}
					return fmt.Errorf("checkpoints has unexpected type %T", raw)
				}
				keyed := make(map[string]interface{}, len(list))
				for i, item := range list {
					cp, ok := item.(map[string]interface{})
					if !ok {
						return fmt.Errorf("checkpoints[%d] is not an object", i)
					}
					phase, _ := cp["phase"].(string)
					if phase == "" {
						return fmt.Errorf("checkpoints[%d] has no phase", i)
					}
					if _, dup := keyed[phase]; dup {
						return fmt.Errorf("duplicate checkpoint for phase %s", phase)
					}
					keyed[phase] = cp
				}
				p["checkpoints"] = keyed
				return nil
			},
		},
	}
}
