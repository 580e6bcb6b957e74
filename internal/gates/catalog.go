package gates

import (
	"fmt"

	"github.com/jacopone/brownkit-sub001/internal/types"
)

// Inputs carries values produced by external collaborators that a gate may
// read in addition to the state. The orchestrator gathers them before
// evaluation; gates never fetch anything themselves.
type Inputs struct {
	Metrics    *types.Metrics
	Debt       *types.DebtSummary
	Validation *types.ValidationSummary
}

// Predicate evaluates one gate. It must be pure: same state and inputs, same
// result.
type Predicate func(state *types.BrownfieldState, in Inputs) Result

// ReadinessGate is a named precondition for one phase transition.
type ReadinessGate struct {
	Name      string
	From      types.Phase
	To        types.Phase
	Predicate Predicate
}

// Result is the outcome of evaluating a gate, or a set of gates.
type Result struct {
	Passed       bool     `json:"passed"`
	UnmetReasons []string `json:"unmet_reasons"`
}

// Pass returns a passing result.
func Pass() Result {
	return Result{Passed: true, UnmetReasons: []string{}}
}

// Fail returns a failing result with the given reasons.
func Fail(reasons ...string) Result {
	return Result{Passed: false, UnmetReasons: reasons}
}

// GateOutcome is the result of one named gate within a transition.
type GateOutcome struct {
	Name   string `json:"name"`
	Result Result `json:"result"`
}

// Evaluation is the combined result of every gate for one transition.
type Evaluation struct {
	From  types.Phase   `json:"from"`
	To    types.Phase   `json:"to"`
	Gates []GateOutcome `json:"gates"`
	Result
}

// Catalog is an ordered, validated set of readiness gates.
type Catalog struct {
	gates []ReadinessGate
}

// NewCatalog validates a gate list. Every adjacent phase pair must have at
// least one gate and no gate may target a non-adjacent pair.
func NewCatalog(gates []ReadinessGate) (*Catalog, error) {
	covered := make(map[types.Phase]bool)
	names := make(map[string]bool)
	for i, g := range gates {
		if g.Name == "" {
			return nil, fmt.Errorf("gate %d: name is required", i)
		}
		if names[g.Name] {
			return nil, fmt.Errorf("gate %s: duplicate name", g.Name)
		}
		names[g.Name] = true
		if g.Predicate == nil {
			return nil, fmt.Errorf("gate %s: predicate is required", g.Name)
		}
		if !types.IsAdjacent(g.From, g.To) {
			return nil, fmt.Errorf("gate %s: %s -> %s is not an adjacent phase transition", g.Name, g.From, g.To)
		}
		covered[g.From] = true
	}

	phases := types.AllPhases()
	for _, from := range phases[:len(phases)-1] {
		if !covered[from] {
			to, _ := from.Next()
			return nil, fmt.Errorf("no readiness gate covers %s -> %s", from, to)
		}
	}

	out := make([]ReadinessGate, len(gates))
	copy(out, gates)
	return &Catalog{gates: out}, nil
}

// Gates returns the catalog in declaration order.
func (c *Catalog) Gates() []ReadinessGate {
	out := make([]ReadinessGate, len(c.gates))
	copy(out, c.gates)
	return out
}

// For returns the gates for one transition in declaration order.
func (c *Catalog) For(from, to types.Phase) []ReadinessGate {
	var out []ReadinessGate
	for _, g := range c.gates {
		if g.From == from && g.To == to {
			out = append(out, g)
		}
	}
	return out
}

// Evaluate applies every gate for the exact (from, to) transition. The
// transition passes only if all of them pass; unmet reasons are concatenated
// in declaration order.
func (c *Catalog) Evaluate(from, to types.Phase, state *types.BrownfieldState, in Inputs) (*Evaluation, error) {
	if !types.IsAdjacent(from, to) {
		return nil, types.NewInvalidState("evaluate gates", "%s -> %s is not an adjacent phase transition", from, to)
	}
	if state == nil {
		return nil, types.NewInvalidState("evaluate gates", "state is required")
	}

	eval := &Evaluation{From: from, To: to, Result: Pass()}
	for _, g := range c.For(from, to) {
		res := g.Predicate(state, in)
		if res.UnmetReasons == nil {
			res.UnmetReasons = []string{}
		}
		eval.Gates = append(eval.Gates, GateOutcome{Name: g.Name, Result: res})
		if !res.Passed {
			eval.Passed = false
			eval.UnmetReasons = append(eval.UnmetReasons, res.UnmetReasons...)
		}
	}
	return eval, nil
}

// EvaluateNext evaluates the transition out of the state's current phase. It
// returns nil for the final phase.
func (c *Catalog) EvaluateNext(state *types.BrownfieldState, in Inputs) (*Evaluation, error) {
	to, ok := state.CurrentPhase.Next()
	if !ok {
		return nil, nil
	}
	return c.Evaluate(state.CurrentPhase, to, state, in)
}
