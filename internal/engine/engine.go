package engine

import (
	"github.com/chigenori053/mathlang/internal/expr"
	"github.com/chigenori053/mathlang/internal/knowledge"
)

// TransitionResult is the outcome of verifying one step transition.
type TransitionResult struct {
	// Valid reports mathematical equivalence of before and after.
	Valid bool
	// RuleID is the justifying rule: a knowledge-base rule id, the reserved
	// trivial-identity id when the learner restated the same expression, or
	// empty when the transition is valid but no rule could be attributed.
	RuleID string
	// Trivial marks the restated-expression case.
	Trivial bool
}

// Engine orchestrates normalize, equivalence check and rule attribution for
// one step transition, dispatching between the fraction-aware and plain
// arithmetic rule domains.
type Engine struct {
	registry *knowledge.Registry
	checker  *EquivalenceChecker
}

func New(registry *knowledge.Registry, checker *EquivalenceChecker) *Engine {
	return &Engine{registry: registry, checker: checker}
}

// EvaluateTransition verifies that after is equivalent to before and, when it
// is, attributes a justifying rule. Rule matching runs on the raw trees so
// the structure the learner wrote (commutativity, folding, distribution)
// stays visible; equivalence runs on normalized forms. The error return is
// fatal only (malformed expression, fatal normalization failure).
func (e *Engine) EvaluateTransition(before, after expr.Expr) (TransitionResult, error) {
	equivalent, err := e.checker.IsEquivalent(before, after)
	if err != nil {
		return TransitionResult{}, err
	}
	if !equivalent {
		return TransitionResult{Valid: false}, nil
	}
	if expr.Equal(before, after) {
		return TransitionResult{Valid: true, RuleID: knowledge.TrivialIdentityRuleID, Trivial: true}, nil
	}
	if rule, ok := e.matchRule(before, after); ok {
		return TransitionResult{Valid: true, RuleID: rule.ID}, nil
	}
	return TransitionResult{Valid: true}, nil
}

// matchRule picks the rule domain: any Rational node on either side selects
// the fraction path, which falls back to arithmetic rules for the purely
// integer sub-derivations inside a fraction-bearing expression.
func (e *Engine) matchRule(before, after expr.Expr) (knowledge.Rule, bool) {
	if expr.ContainsRational(before) || expr.ContainsRational(after) {
		if rule, ok := e.registry.MatchDeep(before, after, knowledge.DomainFraction); ok {
			return rule, true
		}
	}
	return e.registry.MatchDeep(before, after, knowledge.DomainArithmetic)
}

// Registry exposes the knowledge base for rule detail lookups in reports.
func (e *Engine) Registry() *knowledge.Registry { return e.registry }
