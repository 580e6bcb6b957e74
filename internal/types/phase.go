package types

import "fmt"

// Phase is one of the five ordered stages of the remediation workflow.
type Phase string

const (
	PhaseAssessment  Phase = "assessment"
	PhasePlan        Phase = "plan"
	PhaseRemediation Phase = "remediation"
	PhaseValidation  Phase = "validation"
	PhaseGraduation  Phase = "graduation"
)

// phaseOrder is the total order of phases. Forward advancement only ever
// moves one step along it.
var phaseOrder = []Phase{
	PhaseAssessment,
	PhasePlan,
	PhaseRemediation,
	PhaseValidation,
	PhaseGraduation,
}

// AllPhases returns the phases in workflow order.
func AllPhases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// IsValid checks if the phase value is valid
func (p Phase) IsValid() bool {
	return p.Index() >= 0
}

// Index returns the position of the phase in workflow order, or -1 for an
// unknown phase.
func (p Phase) Index() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Before reports whether p comes strictly before other in workflow order.
func (p Phase) Before(other Phase) bool {
	return p.Index() < other.Index()
}

// Next returns the phase that follows p. The second return value is false for
// the final phase or an unknown phase.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i == len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

// IsAdjacent reports whether to is the direct successor of from.
func IsAdjacent(from, to Phase) bool {
	next, ok := from.Next()
	return ok && next == to
}

// Title returns the display name of the phase ("Assessment", "Plan", ...).
func (p Phase) Title() string {
	switch p {
	case PhaseAssessment:
		return "Assessment"
	case PhasePlan:
		return "Plan"
	case PhaseRemediation:
		return "Remediation"
	case PhaseValidation:
		return "Validation"
	case PhaseGraduation:
		return "Graduation"
	}
	return string(p)
}

// ParsePhase converts a case-sensitive phase name into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown phase %q (expected one of %v)", s, phaseOrder)
	}
	return p, nil
}
