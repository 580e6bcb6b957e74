package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides fields from environment variables:
//   - BROWNFIELD_STATE_DIR, BROWNFIELD_REPORTS_DIR, BROWNFIELD_COMMIT_PREFIX
//   - BROWNFIELD_PROTECTED_BRANCHES: comma-separated list
//   - BROWNFIELD_AUTO_MIGRATE, BROWNFIELD_JOURNAL_ENABLED: booleans
//   - BROWNFIELD_LANGUAGE, BROWNFIELD_REVERT_MODE
//   - BROWNFIELD_MAX_ATTEMPTS, BROWNFIELD_INITIAL_BACKOFF, BROWNFIELD_MAX_BACKOFF,
//     BROWNFIELD_TASK_TIMEOUT, BROWNFIELD_ON_EXHAUSTED
//   - BROWNFIELD_MAX_CRITICAL_DEBT, BROWNFIELD_MIN_TEST_RATIO, BROWNFIELD_MAX_GATE_FAILURES
//   - BROWNFIELD_LOG_LEVEL, BROWNFIELD_LOG_FORMAT
//
// Returns an error if any environment variable has an invalid value.
func (c *Config) ApplyEnv() error {
	parsers := []func() error{
		func() error { return parseEnvString("BROWNFIELD_STATE_DIR", &c.StateDir) },
		func() error { return parseEnvString("BROWNFIELD_REPORTS_DIR", &c.ReportsDir) },
		func() error { return parseEnvString("BROWNFIELD_COMMIT_PREFIX", &c.CommitPrefix) },
		func() error { return parseEnvList("BROWNFIELD_PROTECTED_BRANCHES", &c.ProtectedBranches) },
		func() error { return parseEnvBool("BROWNFIELD_AUTO_MIGRATE", &c.AutoMigrate) },
		func() error { return parseEnvBool("BROWNFIELD_JOURNAL_ENABLED", &c.Journal.Enabled) },
		func() error { return parseEnvString("BROWNFIELD_LANGUAGE", &c.Language) },
		func() error { return parseEnvString("BROWNFIELD_REVERT_MODE", &c.RevertMode) },
		func() error { return parseEnvInt("BROWNFIELD_MAX_ATTEMPTS", &c.Retry.MaxAttempts) },
		func() error { return parseEnvDuration("BROWNFIELD_INITIAL_BACKOFF", &c.Retry.InitialBackoff) },
		func() error { return parseEnvDuration("BROWNFIELD_MAX_BACKOFF", &c.Retry.MaxBackoff) },
		func() error { return parseEnvDuration("BROWNFIELD_TASK_TIMEOUT", &c.Retry.TaskTimeout) },
		func() error { return parseEnvString("BROWNFIELD_ON_EXHAUSTED", &c.Retry.OnExhausted) },
		func() error { return parseEnvInt("BROWNFIELD_MAX_CRITICAL_DEBT", &c.Gates.MaxCriticalDebt) },
		func() error { return parseEnvFloat("BROWNFIELD_MIN_TEST_RATIO", &c.Gates.MinTestRatio) },
		func() error { return parseEnvInt("BROWNFIELD_MAX_GATE_FAILURES", &c.Gates.MaxGateFailures) },
		func() error { return parseEnvString("BROWNFIELD_LOG_LEVEL", &c.Log.Level) },
		func() error { return parseEnvString("BROWNFIELD_LOG_FORMAT", &c.Log.Format) },
	}
	for _, parse := range parsers {
		if err := parse(); err != nil {
			return err
		}
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvDuration(key string, dest *Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = Duration(parsed)
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

func parseEnvList(key string, dest *[]string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dest = out
	return nil
}
