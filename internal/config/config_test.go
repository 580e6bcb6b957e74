package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialBackoff.D())
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxBackoff.D())
	assert.Equal(t, 10*time.Minute, cfg.Retry.TaskTimeout.D())
	assert.Equal(t, OnExhaustedAbort, cfg.Retry.OnExhausted)
	assert.Equal(t, []string{"main", "master"}, cfg.ProtectedBranches)
	assert.True(t, cfg.Journal.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
protected_branches: [release, main]
reports_dir: reports
auto_migrate: false
retry:
  max_attempts: 5
  task_timeout: 2m
  on_exhausted: skip
gates:
  max_critical_debt: 2
validation:
  commands:
    - name: unit
      args: [go, test, ./...]
log:
  format: json
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"release", "main"}, cfg.ProtectedBranches)
	assert.Equal(t, "reports", cfg.ReportsDir)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Retry.TaskTimeout.D())
	assert.Equal(t, time.Second, cfg.Retry.InitialBackoff.D(), "unset keys keep defaults")
	assert.Equal(t, OnExhaustedSkip, cfg.Retry.OnExhausted)
	assert.Equal(t, 2, cfg.Gates.MaxCriticalDebt)
	require.Len(t, cfg.Validation.Commands, 1)
	assert.Equal(t, []string{"go", "test", "./..."}, cfg.Validation.Commands[0].Args)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "[brownfield]", cfg.CommitPrefix)
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "retry: [unclosed"},
		{"bad duration", "retry:\n  task_timeout: soon\n"},
		{"out of range attempts", "retry:\n  max_attempts: 0\n"},
		{"unknown exhaustion policy", "retry:\n  on_exhausted: ignore\n"},
		{"absolute state dir", "state_dir: /tmp/state\n"},
		{"command without args", "validation:\n  commands:\n    - name: unit\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BROWNFIELD_PROTECTED_BRANCHES", "trunk, prod ,")
	t.Setenv("BROWNFIELD_MAX_ATTEMPTS", "7")
	t.Setenv("BROWNFIELD_INITIAL_BACKOFF", "10ms")
	t.Setenv("BROWNFIELD_MIN_TEST_RATIO", "0.25")
	t.Setenv("BROWNFIELD_JOURNAL_ENABLED", "false")
	t.Setenv("BROWNFIELD_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"trunk", "prod"}, cfg.ProtectedBranches)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.InitialBackoff.D())
	assert.InDelta(t, 0.25, cfg.Gates.MinTestRatio, 1e-9)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvInvalidValues(t *testing.T) {
	tests := map[string]string{
		"BROWNFIELD_MAX_ATTEMPTS":      "three",
		"BROWNFIELD_AUTO_MIGRATE":      "maybe",
		"BROWNFIELD_TASK_TIMEOUT":      "10",
		"BROWNFIELD_MIN_TEST_RATIO":    "lots",
		"BROWNFIELD_REVERT_MODE":       "squash",
		"BROWNFIELD_LOG_FORMAT":        "xml",
		"BROWNFIELD_MAX_GATE_FAILURES": "-1",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".brownfield", "config.yaml")
	cfg := Default()
	cfg.Retry.TaskTimeout = Duration(90 * time.Second)
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "task_timeout: 1m30s")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateBackoffOrdering(t *testing.T) {
	cfg := Default()
	cfg.Retry.MaxBackoff = Duration(time.Millisecond)
	assert.ErrorContains(t, cfg.Validate(), "max_backoff")
}
