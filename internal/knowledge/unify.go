package knowledge

import "github.com/chigenori053/mathlang/internal/expr"

// Bindings maps pattern variable names to the concrete subtrees they matched.
type Bindings map[string]expr.Expr

// Unify matches subject against pattern, extending b. Every Symbol in the
// pattern is a variable; a repeated variable must bind structurally equal
// subtrees. Unification is pure: on failure b may hold partial bindings and
// must be discarded by the caller.
func Unify(pattern, subject expr.Expr, b Bindings) bool {
	switch p := pattern.(type) {
	case expr.Symbol:
		if bound, ok := b[p.Name]; ok {
			return expr.Equal(bound, subject)
		}
		b[p.Name] = subject
		return true

	case expr.Integer:
		s, ok := subject.(expr.Integer)
		return ok && s.Value == p.Value

	case expr.Rational:
		s, ok := subject.(expr.Rational)
		return ok && s.Num == p.Num && s.Den == p.Den

	case expr.Negation:
		s, ok := subject.(expr.Negation)
		return ok && Unify(p.Inner, s.Inner, b)

	case expr.Sum:
		s, ok := subject.(expr.Sum)
		if !ok || len(s.Terms) != len(p.Terms) {
			return false
		}
		for i := range p.Terms {
			if !Unify(p.Terms[i], s.Terms[i], b) {
				return false
			}
		}
		return true

	case expr.Product:
		// A pattern written "a / b" parses to a * b^-1; let it also match a
		// literal Rational so fraction rules apply to reduced constants.
		if num, den, ok := quotientPattern(p); ok {
			if r, isRat := subject.(expr.Rational); isRat {
				return Unify(num, expr.Integer{Value: r.Num}, b) &&
					Unify(den, expr.Integer{Value: r.Den}, b)
			}
		}
		s, ok := subject.(expr.Product)
		if !ok || len(s.Factors) != len(p.Factors) {
			return false
		}
		for i := range p.Factors {
			if !Unify(p.Factors[i], s.Factors[i], b) {
				return false
			}
		}
		return true

	case expr.Power:
		s, ok := subject.(expr.Power)
		return ok && Unify(p.Base, s.Base, b) && Unify(p.Exponent, s.Exponent, b)

	case expr.Call:
		s, ok := subject.(expr.Call)
		if !ok || s.Name != p.Name || len(s.Args) != len(p.Args) {
			return false
		}
		for i := range p.Args {
			if !Unify(p.Args[i], s.Args[i], b) {
				return false
			}
		}
		return true
	}
	return false
}

func quotientPattern(p expr.Product) (num, den expr.Expr, ok bool) {
	if len(p.Factors) != 2 {
		return nil, nil, false
	}
	pow, isPow := p.Factors[1].(expr.Power)
	if !isPow {
		return nil, nil, false
	}
	if exp, isInt := pow.Exponent.(expr.Integer); !isInt || exp.Value != -1 {
		return nil, nil, false
	}
	return p.Factors[0], pow.Base, true
}
