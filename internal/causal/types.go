// Package causal builds a cause-and-effect graph over an evaluation log and
// answers why-questions about the mistakes in it, including counterfactual
// replays of edited derivations.
package causal

import "github.com/chigenori053/mathlang/internal/eval"

// NodeKind distinguishes the three node families in the graph.
type NodeKind string

const (
	// NodeStep is an evaluation phase event (problem, prepare, step, end,
	// explain).
	NodeStep NodeKind = "step"
	// NodeRule is a knowledge rule application shared by every step that
	// used the rule.
	NodeRule NodeKind = "rule"
	// NodeError marks a mistake or fatal outcome.
	NodeError NodeKind = "error"
)

// EdgeKind labels the causal relation an edge encodes.
type EdgeKind string

const (
	// EdgeStepTransition links consecutive phase events in evaluation order.
	EdgeStepTransition EdgeKind = "step_transition"
	// EdgeRuleUsage links a rule node to a step that applied it.
	EdgeRuleUsage EdgeKind = "rule_usage"
	// EdgeErrorCause links the responsible step or rule node to an error
	// node.
	EdgeErrorCause EdgeKind = "error_cause"
	// EdgeExplainLink attaches a free-text explanation to the step it
	// annotates, outside the derivation chain.
	EdgeExplainLink EdgeKind = "explain_link"
)

// Node is one vertex of the causal graph. Order is the insertion sequence
// number, assigned by the graph; it is the recency key for ranking.
type Node struct {
	ID        string      `json:"id"`
	Kind      NodeKind    `json:"kind"`
	Phase     eval.Phase  `json:"phase,omitempty"`
	StepIndex int         `json:"step_index"`
	RuleID    string      `json:"rule_id,omitempty"`
	Status    eval.Status `json:"status,omitempty"`
	Label     string      `json:"label,omitempty"`
	Order     int         `json:"order"`
}

// samePayload reports whether two nodes carry identical content, ignoring
// the graph-assigned insertion order.
func samePayload(a, b Node) bool {
	a.Order, b.Order = 0, 0
	return a == b
}

// Edge is one directed relation between two nodes.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}
