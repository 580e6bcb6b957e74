package types

import (
	"fmt"
	"sort"
	"time"
)

// CurrentSchemaVersion is the schema version written by this build. Older
// payloads go through internal/storage/migrations.
const CurrentSchemaVersion = "2.0.0"

// ReEntryAction describes what the workflow did after detecting that a prior
// run of a phase did not finish.
type ReEntryAction string

const (
	ReEntryResumed   ReEntryAction = "resumed"
	ReEntryRestarted ReEntryAction = "restarted"
	ReEntryAborted   ReEntryAction = "aborted"
)

// IsValid checks if the re-entry action value is valid
func (a ReEntryAction) IsValid() bool {
	switch a {
	case ReEntryResumed, ReEntryRestarted, ReEntryAborted:
		return true
	}
	return false
}

// ReEntryEvent records one detected interruption and how it was handled.
type ReEntryEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Phase     Phase         `json:"phase"`
	Reason    string        `json:"reason"`
	Action    ReEntryAction `json:"action"`
}

// ProjectInfo identifies the project under remediation.
type ProjectInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
}

// Metrics is a snapshot produced by a metrics collector.
type Metrics struct {
	Files       int       `json:"files"`
	SourceFiles int       `json:"source_files"`
	TestFiles   int       `json:"test_files"`
	Lines       int       `json:"lines"`
	TestRatio   float64   `json:"test_ratio"`
	CollectedAt time.Time `json:"collected_at"`
}

// DebtSeverity classifies a tech-debt item.
type DebtSeverity string

const (
	DebtCritical DebtSeverity = "critical"
	DebtHigh     DebtSeverity = "high"
	DebtMedium   DebtSeverity = "medium"
	DebtLow      DebtSeverity = "low"
)

// DebtItem is one piece of categorized tech debt.
type DebtItem struct {
	File     string       `json:"file"`
	Line     int          `json:"line"`
	Marker   string       `json:"marker"`
	Severity DebtSeverity `json:"severity"`
	Text     string       `json:"text"`
}

// DebtSummary is the output of a tech-debt analysis.
type DebtSummary struct {
	Items      []DebtItem `json:"items"`
	AnalyzedAt time.Time  `json:"analyzed_at"`
}

// Count returns the number of items with the given severity.
func (d *DebtSummary) Count(sev DebtSeverity) int {
	if d == nil {
		return 0
	}
	n := 0
	for _, item := range d.Items {
		if item.Severity == sev {
			n++
		}
	}
	return n
}

// PlanItem is one remediation step chosen during the Plan phase.
type PlanItem struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Severity DebtSeverity `json:"severity"`
	Files    []string     `json:"files,omitempty"`
}

// RemediationPlan is recorded by the Plan phase and consumed by Remediation.
type RemediationPlan struct {
	Items      []PlanItem `json:"items"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// ValidationResult is the outcome of one validation command.
type ValidationResult struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Passed   bool          `json:"passed"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ValidationSummary groups the results of one validation run.
type ValidationSummary struct {
	Results []ValidationResult `json:"results"`
	RanAt   time.Time          `json:"ran_at"`
}

// Passed reports whether every validation command passed.
func (v *ValidationSummary) Passed() bool {
	if v == nil {
		return false
	}
	for _, r := range v.Results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// BrownfieldState is the aggregate root of a remediation workflow. It owns its
// checkpoints and re-entry events.
type BrownfieldState struct {
	SchemaVersion string                     `json:"schema_version"`
	Project       ProjectInfo                `json:"project"`
	CurrentPhase  Phase                      `json:"current_phase"`
	Checkpoints   map[Phase]*PhaseCheckpoint `json:"checkpoints"`
	ReEntryEvents []ReEntryEvent             `json:"re_entry_events"`

	// BaselineCommit is HEAD when the workflow was initialised. Nothing at or
	// before it is ever reverted.
	BaselineCommit string `json:"baseline_commit,omitempty"`

	Baseline   *Metrics           `json:"baseline,omitempty"`
	TechDebt   *DebtSummary       `json:"tech_debt,omitempty"`
	Plan       *RemediationPlan   `json:"plan,omitempty"`
	Validation *ValidationSummary `json:"validation,omitempty"`

	Graduated bool      `json:"graduated"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBrownfieldState creates the state for a fresh workflow in the Assessment
// phase.
func NewBrownfieldState(project ProjectInfo, baselineCommit string, now time.Time) *BrownfieldState {
	return &BrownfieldState{
		SchemaVersion:  CurrentSchemaVersion,
		Project:        project,
		CurrentPhase:   PhaseAssessment,
		Checkpoints:    make(map[Phase]*PhaseCheckpoint),
		ReEntryEvents:  []ReEntryEvent{},
		BaselineCommit: baselineCommit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the structural invariants of the aggregate.
func (s *BrownfieldState) Validate() error {
	if s.SchemaVersion == "" {
		return fmt.Errorf("schema_version is required")
	}
	if s.Project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if !s.CurrentPhase.IsValid() {
		return fmt.Errorf("invalid current_phase: %q", s.CurrentPhase)
	}
	for phase, cp := range s.Checkpoints {
		if cp == nil {
			return fmt.Errorf("checkpoint for %s is null", phase)
		}
		if cp.Phase != phase {
			return fmt.Errorf("checkpoint keyed %s belongs to phase %s", phase, cp.Phase)
		}
		if err := cp.Validate(); err != nil {
			return err
		}
		if s.CurrentPhase.Before(phase) {
			return fmt.Errorf("checkpoint for %s exists but current phase is %s", phase, s.CurrentPhase)
		}
	}
	for i, ev := range s.ReEntryEvents {
		if !ev.Action.IsValid() {
			return fmt.Errorf("re_entry_events[%d]: invalid action %q", i, ev.Action)
		}
		if !ev.Phase.IsValid() {
			return fmt.Errorf("re_entry_events[%d]: invalid phase %q", i, ev.Phase)
		}
	}
	return nil
}

// Checkpoint returns the checkpoint for a phase, or nil.
func (s *BrownfieldState) Checkpoint(p Phase) *PhaseCheckpoint {
	if s.Checkpoints == nil {
		return nil
	}
	return s.Checkpoints[p]
}

// StartCheckpoint creates the checkpoint for a phase. It fails when one
// already exists; callers that resume use the existing checkpoint instead.
func (s *BrownfieldState) StartCheckpoint(p Phase, specs []TaskSpec, baseCommit string, now time.Time) (*PhaseCheckpoint, error) {
	if existing := s.Checkpoint(p); existing != nil {
		return nil, NewInvalidState("start checkpoint", "checkpoint for phase %s already exists", p)
	}
	cp, err := NewPhaseCheckpoint(p, specs, now)
	if err != nil {
		return nil, err
	}
	cp.BaseCommit = baseCommit
	if s.Checkpoints == nil {
		s.Checkpoints = make(map[Phase]*PhaseCheckpoint)
	}
	s.Checkpoints[p] = cp
	s.touch(now)
	return cp, nil
}

// RecordReEntry appends a re-entry event.
func (s *BrownfieldState) RecordReEntry(p Phase, reason string, action ReEntryAction, now time.Time) ReEntryEvent {
	ev := ReEntryEvent{Timestamp: now, Phase: p, Reason: reason, Action: action}
	s.ReEntryEvents = append(s.ReEntryEvents, ev)
	s.touch(now)
	return ev
}

// LastReEntry returns the most recent re-entry event for a phase.
func (s *BrownfieldState) LastReEntry(p Phase) (ReEntryEvent, bool) {
	for i := len(s.ReEntryEvents) - 1; i >= 0; i-- {
		if s.ReEntryEvents[i].Phase == p {
			return s.ReEntryEvents[i], true
		}
	}
	return ReEntryEvent{}, false
}

// AdvancePhase moves current_phase one step forward. The caller passes the
// outcome of the readiness gates for that exact transition; the phase does not
// move unless it passed.
func (s *BrownfieldState) AdvancePhase(to Phase, gatesPassed bool, now time.Time) error {
	if !IsAdjacent(s.CurrentPhase, to) {
		return NewInvalidState("advance phase", "cannot advance from %s to %s", s.CurrentPhase, to)
	}
	if !gatesPassed {
		return &PhaseError{Phase: s.CurrentPhase, Reason: fmt.Sprintf("readiness gates to %s not passed", to)}
	}
	s.CurrentPhase = to
	s.touch(now)
	return nil
}

// RewindTo moves current_phase backwards after an explicit revert, dropping
// the checkpoints of every later phase.
func (s *BrownfieldState) RewindTo(p Phase, now time.Time) error {
	if !p.IsValid() {
		return NewInvalidState("rewind", "invalid phase %q", p)
	}
	if s.CurrentPhase.Before(p) {
		return NewInvalidState("rewind", "cannot rewind forward from %s to %s", s.CurrentPhase, p)
	}
	for phase := range s.Checkpoints {
		if p.Before(phase) {
			delete(s.Checkpoints, phase)
		}
	}
	s.CurrentPhase = p
	s.Graduated = false
	s.touch(now)
	return nil
}

// SortedPhases returns the phases that have checkpoints, in workflow order.
func (s *BrownfieldState) SortedPhases() []Phase {
	phases := make([]Phase, 0, len(s.Checkpoints))
	for p := range s.Checkpoints {
		phases = append(phases, p)
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i].Before(phases[j]) })
	return phases
}

// Touch advances UpdatedAt without moving it backwards.
func (s *BrownfieldState) Touch(now time.Time) { s.touch(now) }

func (s *BrownfieldState) touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}
