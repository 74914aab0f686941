// Package expr defines the immutable algebraic expression tree shared by the
// parser, normalizer, knowledge matcher and evaluation engines. Expressions
// are values: transformations always build new trees and never mutate nodes
// in place.
package expr

// Expr is the sealed expression variant. Concrete types: Integer, Rational,
// Symbol, Sum, Product, Power, Negation, Call.
type Expr interface {
	isExpr()
}

// Integer is an exact integer constant.
type Integer struct {
	Value int64
}

// Rational is an exact fraction. After normalization the denominator is
// positive and the fraction is reduced to lowest terms; Rational(n, 1)
// collapses to Integer(n).
type Rational struct {
	Num int64
	Den int64
}

// Symbol is a free variable such as x or y.
type Symbol struct {
	Name string
}

// Sum is an n-ary addition. A normalized Sum is flattened, has at least two
// terms and carries its terms in canonical order.
type Sum struct {
	Terms []Expr
}

// Product is an n-ary multiplication with the same flattening invariants as
// Sum.
type Product struct {
	Factors []Expr
}

// Power is base raised to exponent.
type Power struct {
	Base     Expr
	Exponent Expr
}

// Negation is unary minus around a non-constant expression.
type Negation struct {
	Inner Expr
}

// Call is a named function application, e.g. sqrt(x).
type Call struct {
	Name string
	Args []Expr
}

func (Integer) isExpr()  {}
func (Rational) isExpr() {}
func (Symbol) isExpr()   {}
func (Sum) isExpr()      {}
func (Product) isExpr()  {}
func (Power) isExpr()    {}
func (Negation) isExpr() {}
func (Call) isExpr()     {}

// Equal reports deep structural equality.
func Equal(a, b Expr) bool {
	return Compare(a, b) == 0
}

// IsConstant reports whether e is an Integer or Rational leaf.
func IsConstant(e Expr) bool {
	switch e.(type) {
	case Integer, Rational:
		return true
	}
	return false
}

// ConstValue returns the exact rational value of a constant leaf, including
// a Negation wrapping one. ok is false for any other node.
func ConstValue(e Expr) (num, den int64, ok bool) {
	switch v := e.(type) {
	case Integer:
		return v.Value, 1, true
	case Rational:
		return v.Num, v.Den, true
	case Negation:
		if n, d, isConst := ConstValue(v.Inner); isConst {
			return -n, d, true
		}
	}
	return 0, 0, false
}

// NodeCount returns the number of nodes in the tree. Used to bound
// normalization against pathological input.
func NodeCount(e Expr) int {
	n := 1
	switch v := e.(type) {
	case Sum:
		for _, t := range v.Terms {
			n += NodeCount(t)
		}
	case Product:
		for _, f := range v.Factors {
			n += NodeCount(f)
		}
	case Power:
		n += NodeCount(v.Base) + NodeCount(v.Exponent)
	case Negation:
		n += NodeCount(v.Inner)
	case Call:
		for _, a := range v.Args {
			n += NodeCount(a)
		}
	}
	return n
}

// ContainsRational reports whether any node in the tree is a Rational.
// The evaluation engine uses this to pick the fraction-aware path.
func ContainsRational(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if _, ok := n.(Rational); ok {
			found = true
			return false
		}
		return true
	})
	return found
}

// Symbols returns the free symbol names of e in first-appearance order.
func Symbols(e Expr) []string {
	var names []string
	seen := map[string]bool{}
	Walk(e, func(n Expr) bool {
		if s, ok := n.(Symbol); ok && !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
		return true
	})
	return names
}

// Walk visits e and its children depth-first. The visitor returns false to
// stop the traversal.
func Walk(e Expr, visit func(Expr) bool) bool {
	if !visit(e) {
		return false
	}
	switch v := e.(type) {
	case Sum:
		for _, t := range v.Terms {
			if !Walk(t, visit) {
				return false
			}
		}
	case Product:
		for _, f := range v.Factors {
			if !Walk(f, visit) {
				return false
			}
		}
	case Power:
		if !Walk(v.Base, visit) {
			return false
		}
		if !Walk(v.Exponent, visit) {
			return false
		}
	case Negation:
		if !Walk(v.Inner, visit) {
			return false
		}
	case Call:
		for _, a := range v.Args {
			if !Walk(a, visit) {
				return false
			}
		}
	}
	return true
}
