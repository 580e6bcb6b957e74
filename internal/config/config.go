package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Retry exhaustion policies.
const (
	OnExhaustedAbort = "abort"
	OnExhaustedSkip  = "skip"
)

// Config is the workflow configuration, loaded from <state_dir>/config.yaml.
type Config struct {
	// StateDir is the state directory relative to the project root
	StateDir string `yaml:"state_dir"`

	// ProtectedBranches are never committed to, reverted on, or reset
	ProtectedBranches []string `yaml:"protected_branches"`

	// CommitPrefix marks workflow-authored commits
	CommitPrefix string `yaml:"commit_prefix"`

	// ReportsDir is where phase reports are written, relative to the project root
	ReportsDir string `yaml:"reports_dir"`

	// AutoMigrate upgrades an older state file when a session opens
	AutoMigrate bool `yaml:"auto_migrate"`

	// Language forces a language handler instead of detection
	Language string `yaml:"language,omitempty"`

	// RevertMode is "revert" (inverse commits) or "reset" (hard reset)
	RevertMode string `yaml:"revert_mode"`

	Retry      RetryConfig      `yaml:"retry"`
	Gates      GatesConfig      `yaml:"gates"`
	Validation ValidationConfig `yaml:"validation"`
	Journal    JournalConfig    `yaml:"journal"`
	Log        LogConfig        `yaml:"log"`
}

// RetryConfig bounds how often a failing task is re-run.
type RetryConfig struct {
	// MaxAttempts per task, including the first
	// Default: 3, Range: 1-10
	MaxAttempts int `yaml:"max_attempts"`

	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	Multiplier     float64  `yaml:"multiplier"`

	// TaskTimeout bounds a single attempt; a timeout is a failed attempt
	TaskTimeout Duration `yaml:"task_timeout"`

	// OnExhausted is "abort" (fail the phase) or "skip" (mark failed and continue)
	OnExhausted string `yaml:"on_exhausted"`
}

// GatesConfig parameterises the readiness gates.
type GatesConfig struct {
	MaxCriticalDebt int     `yaml:"max_critical_debt"`
	MinTestRatio    float64 `yaml:"min_test_ratio"`

	// MaxGateFailures escalates a repeatedly blocked phase; 0 = unlimited
	MaxGateFailures int `yaml:"max_gate_failures"`
}

// ValidationConfig lists the commands run by the validation phase. When empty,
// the language handler's defaults are used.
type ValidationConfig struct {
	Commands []CommandConfig `yaml:"commands,omitempty"`
	Timeout  Duration        `yaml:"timeout"`
}

// CommandConfig is one validation command, executed without a shell.
type CommandConfig struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`
}

// JournalConfig controls the SQLite event journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		StateDir:          ".brownfield",
		ProtectedBranches: []string{"main", "master"},
		CommitPrefix:      "[brownfield]",
		ReportsDir:        "docs/brownfield",
		AutoMigrate:       true,
		RevertMode:        "revert",
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: Duration(time.Second),
			MaxBackoff:     Duration(30 * time.Second),
			Multiplier:     2.0,
			TaskTimeout:    Duration(10 * time.Minute),
			OnExhausted:    OnExhaustedAbort,
		},
		Gates: GatesConfig{
			MaxCriticalDebt: 0,
			MinTestRatio:    0.1,
			MaxGateFailures: 0,
		},
		Validation: ValidationConfig{
			Timeout: Duration(15 * time.Minute),
		},
		Journal: JournalConfig{Enabled: true},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("state_dir is required")
	}
	if filepath.IsAbs(c.StateDir) {
		return fmt.Errorf("state_dir must be relative to the project root (got %q)", c.StateDir)
	}
	if strings.TrimSpace(c.CommitPrefix) == "" {
		return fmt.Errorf("commit_prefix is required")
	}
	if strings.ContainsAny(c.CommitPrefix, "\n\r") {
		return fmt.Errorf("commit_prefix must be a single line")
	}
	for _, b := range c.ProtectedBranches {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("protected_branches cannot contain empty names")
		}
	}
	if c.RevertMode != "revert" && c.RevertMode != "reset" {
		return fmt.Errorf("revert_mode must be 'revert' or 'reset' (got %q)", c.RevertMode)
	}

	r := c.Retry
	if r.MaxAttempts < 1 || r.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be between 1 and 10 (got %d)", r.MaxAttempts)
	}
	if r.InitialBackoff < 0 || r.MaxBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if r.MaxBackoff < r.InitialBackoff {
		return fmt.Errorf("retry.max_backoff (%s) must be >= retry.initial_backoff (%s)", r.MaxBackoff, r.InitialBackoff)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1 (got %g)", r.Multiplier)
	}
	if r.TaskTimeout <= 0 {
		return fmt.Errorf("retry.task_timeout must be positive (got %s)", r.TaskTimeout)
	}
	if r.OnExhausted != OnExhaustedAbort && r.OnExhausted != OnExhaustedSkip {
		return fmt.Errorf("retry.on_exhausted must be 'abort' or 'skip' (got %q)", r.OnExhausted)
	}

	g := c.Gates
	if g.MaxCriticalDebt < 0 {
		return fmt.Errorf("gates.max_critical_debt cannot be negative (got %d)", g.MaxCriticalDebt)
	}
	if g.MinTestRatio < 0 || g.MinTestRatio > 1 {
		return fmt.Errorf("gates.min_test_ratio must be between 0 and 1 (got %g)", g.MinTestRatio)
	}
	if g.MaxGateFailures < 0 {
		return fmt.Errorf("gates.max_gate_failures cannot be negative (got %d)", g.MaxGateFailures)
	}

	for i, cmd := range c.Validation.Commands {
		if cmd.Name == "" {
			return fmt.Errorf("validation.commands[%d]: name is required", i)
		}
		if len(cmd.Args) == 0 {
			return fmt.Errorf("validation.commands[%d] (%s): args are required", i, cmd.Name)
		}
	}
	if c.Validation.Timeout <= 0 {
		return fmt.Errorf("validation.timeout must be positive (got %s)", c.Validation.Timeout)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'console' or 'json' (got %q)", c.Log.Format)
	}
	return nil
}

// Load reads path over the defaults, applies BROWNFIELD_* environment
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"30s\": %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}
