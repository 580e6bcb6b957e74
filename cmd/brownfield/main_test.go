package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFlags(t *testing.T, dir, cfg, level string) {
	t.Helper()
	oldDir, oldCfg, oldLevel := flagDir, flagConfig, flagLogLevel
	flagDir, flagConfig, flagLogLevel = dir, cfg, level
	t.Cleanup(func() { flagDir, flagConfig, flagLogLevel = oldDir, oldCfg, oldLevel })
}

func TestLoadSettingsReadsStateDirConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".brownfield"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".brownfield", "config.yaml"),
		[]byte("commit_prefix: \"[remediate]\"\nretry:\n  max_attempts: 5\n"), 0644))
	withFlags(t, root, "", "")

	settings, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, "[remediate]", settings.CommitPrefix)
	assert.Equal(t, 5, settings.Retry.MaxAttempts)
	assert.Equal(t, []string{"main", "master"}, settings.ProtectedBranches)
}

func TestLoadSettingsExplicitConfigAndLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reports_dir: out/reports\n"), 0644))
	withFlags(t, t.TempDir(), path, "debug")

	settings, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, "out/reports", settings.ReportsDir)
	assert.Equal(t, "debug", settings.Log.Level)
}

func TestLoadSettingsRejectsBadLogLevel(t *testing.T) {
	withFlags(t, t.TempDir(), "", "loud")
	_, err := loadSettings()
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"init", "status", "next", "resume", "gates", "revert", "history",
		"decisions", "report", "activity", "migrate", "reset"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
