// Package knowledge holds the rewrite-rule knowledge base: rule definitions
// loaded from YAML, pattern unification over expression trees, and the
// registry that attributes a justifying rule to a verified step transition.
package knowledge

import (
	"fmt"
	"strings"

	"github.com/chigenori053/mathlang/internal/expr"
)

// Rule domains. A registry may hold rules for several domains side by side;
// matching is always scoped to one domain.
const (
	DomainArithmetic = "arithmetic"
	DomainFraction   = "fraction"
)

// TrivialIdentityRuleID is the reserved rule id the engine attributes when
// two normalized forms are literally identical and no rewrite rule is needed.
const TrivialIdentityRuleID = "CORE-IDENT-000"

// Rule is a named rewrite axiom. Every Symbol occurring in PatternBefore or
// PatternAfter is a pattern variable; a rule matches a (before, after) pair
// only if one consistent variable assignment satisfies both patterns and all
// constraints. Rules are immutable once loaded.
type Rule struct {
	ID            string
	Domain        string
	Category      string
	Priority      int
	PatternBefore expr.Expr
	PatternAfter  expr.Expr
	Constraints   []Constraint
	Description   string
}

// ConstraintKind names a side-condition predicate evaluated against pattern
// variable bindings.
type ConstraintKind string

const (
	// ConstraintNonZero requires the bound expression to not be the
	// constant zero. Non-constant bindings satisfy it heuristically.
	ConstraintNonZero ConstraintKind = "nonzero"
	// ConstraintConstSum requires c = a + b over constant bindings.
	ConstraintConstSum ConstraintKind = "const_sum"
	// ConstraintConstProduct requires c = a * b over constant bindings.
	ConstraintConstProduct ConstraintKind = "const_product"
	// ConstraintConstPower requires c = a ^ b over constant bindings.
	ConstraintConstPower ConstraintKind = "const_power"
	// ConstraintConstReduced requires c/d to be a/b in lowest terms with a
	// positive denominator.
	ConstraintConstReduced ConstraintKind = "const_reduced"
)

// Constraint is one parsed side condition, e.g. const_sum(a, b, c).
type Constraint struct {
	Kind ConstraintKind
	Args []string
}

var constraintArity = map[ConstraintKind]int{
	ConstraintNonZero:      1,
	ConstraintConstSum:     3,
	ConstraintConstProduct: 3,
	ConstraintConstPower:   3,
	ConstraintConstReduced: 4,
}

// ParseConstraint parses the textual form kind(arg, ...).
func ParseConstraint(s string) (Constraint, error) {
	open := strings.Index(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Constraint{}, fmt.Errorf("%w: constraint %q", ErrLoad, s)
	}
	kind := ConstraintKind(strings.TrimSpace(s[:open]))
	arity, known := constraintArity[kind]
	if !known {
		return Constraint{}, fmt.Errorf("%w: unknown constraint %q", ErrLoad, kind)
	}
	var args []string
	for _, a := range strings.Split(s[open+1:len(s)-1], ",") {
		args = append(args, strings.TrimSpace(a))
	}
	if len(args) != arity {
		return Constraint{}, fmt.Errorf("%w: constraint %q wants %d args, got %d", ErrLoad, kind, arity, len(args))
	}
	return Constraint{Kind: kind, Args: args}, nil
}

// Holds evaluates the constraint under the given bindings. Unbound variables
// fail the constraint; non-constant bindings fail every const_* predicate.
func (c Constraint) Holds(b Bindings) bool {
	vals := make([][2]int64, len(c.Args))
	for i, name := range c.Args {
		bound, ok := b[name]
		if !ok {
			return false
		}
		if c.Kind == ConstraintNonZero {
			n, _, isConst := expr.ConstValue(bound)
			// A symbolic denominator is accepted; only a literal zero
			// violates the condition.
			if isConst && n == 0 {
				return false
			}
			return true
		}
		n, d, isConst := expr.ConstValue(bound)
		if !isConst || d == 0 {
			return false
		}
		vals[i] = [2]int64{n, d}
	}
	switch c.Kind {
	case ConstraintConstSum:
		a, bb, cc := vals[0], vals[1], vals[2]
		return a[0]*bb[1]*cc[1]+bb[0]*a[1]*cc[1] == cc[0]*a[1]*bb[1]
	case ConstraintConstProduct:
		a, bb, cc := vals[0], vals[1], vals[2]
		return a[0]*bb[0]*cc[1] == cc[0]*a[1]*bb[1]
	case ConstraintConstPower:
		a, bb, cc := vals[0], vals[1], vals[2]
		if a[1] != 1 || bb[1] != 1 || cc[1] != 1 || bb[0] < 0 || bb[0] > 32 {
			return false
		}
		out := int64(1)
		for i := int64(0); i < bb[0]; i++ {
			out *= a[0]
		}
		return out == cc[0]
	case ConstraintConstReduced:
		a, bb, cc, dd := vals[0], vals[1], vals[2], vals[3]
		if a[1] != 1 || bb[1] != 1 || cc[1] != 1 || dd[1] != 1 {
			return false
		}
		if bb[0] == 0 || dd[0] <= 0 {
			return false
		}
		// Same value and already in lowest terms.
		if a[0]*dd[0] != cc[0]*bb[0] {
			return false
		}
		return gcd(abs(cc[0]), dd[0]) == 1
	}
	return false
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
