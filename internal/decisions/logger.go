// Package decisions keeps the append-only rationale trail of the workflow.
package decisions

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Logger validates, stamps and appends decision entries to a sink.
type Logger struct {
	sink   Sink
	now    func() time.Time
	logger *zap.Logger
}

// Config holds decision logger configuration
type Config struct {
	Sink   Sink
	Now    func() time.Time // Optional: defaults to time.Now
	Logger *zap.Logger      // Optional: defaults to a no-op logger
}

// NewLogger creates a decision logger.
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	l := &Logger{sink: cfg.Sink, now: cfg.Now, logger: cfg.Logger}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l, nil
}

// Record appends an entry. Missing ID and timestamp are filled in; the stored
// entry is returned.
func (l *Logger) Record(entry types.DecisionEntry) (types.DecisionEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()[:8]
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC().Truncate(time.Second)
	}
	if entry.ChosenRisk == "" {
		entry.ChosenRisk = types.RiskLow
	}
	if entry.Alternatives == nil {
		entry.Alternatives = []types.Alternative{}
	}
	if err := entry.Validate(); err != nil {
		return entry, fmt.Errorf("invalid decision: %w", err)
	}
	if err := checkRenderable(entry); err != nil {
		return entry, fmt.Errorf("invalid decision: %w", err)
	}
	if err := l.sink.Append(entry); err != nil {
		return entry, err
	}
	l.logger.Info("decision logged",
		zap.String("id", entry.ID),
		zap.String("phase", string(entry.Phase)),
		zap.String("risk", string(entry.ChosenRisk)))
	return entry, nil
}

// Log is a shorthand for Record.
func (l *Logger) Log(phase types.Phase, decision, rationale string, risk types.RiskLevel, alternatives ...types.Alternative) (types.DecisionEntry, error) {
	return l.Record(types.DecisionEntry{
		Phase:        phase,
		Decision:     decision,
		Rationale:    rationale,
		ChosenRisk:   risk,
		Alternatives: alternatives,
	})
}

// checkRenderable rejects text that would break the log's block structure.
func checkRenderable(e types.DecisionEntry) error {
	for _, text := range []string{e.Decision, e.Rationale} {
		for _, line := range strings.Split(text, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == Separator || strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "### ") {
				return fmt.Errorf("line %q is reserved by the decision log format", trimmed)
			}
		}
	}
	return nil
}

// FilterByPhase returns the entries recorded for a phase, in log order.
func FilterByPhase(entries []types.DecisionEntry, p types.Phase) []types.DecisionEntry {
	var out []types.DecisionEntry
	for _, e := range entries {
		if e.Phase == p {
			out = append(out, e)
		}
	}
	return out
}
