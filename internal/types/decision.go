package types

import (
	"fmt"
	"time"
)

// RiskLevel is the operator-assessed risk of a decision.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// IsValid checks if the risk level value is valid
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Alternative is an option that was considered and rejected.
type Alternative struct {
	Description    string `json:"description"`
	RejectedReason string `json:"rejected_reason"`
}

// DecisionEntry is one append-only record in the decision log. Entries are
// never mutated after they are written.
type DecisionEntry struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Phase        Phase         `json:"phase"`
	Decision     string        `json:"decision"`
	Rationale    string        `json:"rationale,omitempty"`
	Alternatives []Alternative `json:"alternatives"`
	ChosenRisk   RiskLevel     `json:"chosen_risk"`
}

// Validate checks the decision entry has the fields the log requires
func (d *DecisionEntry) Validate() error {
	if !d.Phase.IsValid() {
		return fmt.Errorf("invalid phase: %q", d.Phase)
	}
	if d.Decision == "" {
		return fmt.Errorf("decision text is required")
	}
	if !d.ChosenRisk.IsValid() {
		return fmt.Errorf("invalid risk level: %q", d.ChosenRisk)
	}
	for i, alt := range d.Alternatives {
		if alt.Description == "" {
			return fmt.Errorf("alternatives[%d]: description is required", i)
		}
	}
	return nil
}
