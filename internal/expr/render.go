package expr

import (
	"fmt"
	"strings"
)

// Operator precedence levels for rendering.
const (
	precSum = iota + 1
	precProduct
	precUnary
	precPower
	precAtom
)

// Render produces the canonical infix display form of an expression with
// minimal parentheses.
func Render(e Expr) string {
	return render(e, 0)
}

func render(e Expr, parent int) string {
	switch v := e.(type) {
	case Integer:
		if v.Value < 0 && parent > precSum {
			return fmt.Sprintf("(%d)", v.Value)
		}
		return fmt.Sprintf("%d", v.Value)

	case Rational:
		s := fmt.Sprintf("%d/%d", v.Num, v.Den)
		if parent >= precProduct {
			return "(" + s + ")"
		}
		return s

	case Symbol:
		return v.Name

	case Sum:
		parts := make([]string, 0, len(v.Terms))
		for i, t := range v.Terms {
			if i == 0 {
				parts = append(parts, render(t, precSum))
				continue
			}
			if neg, ok := t.(Negation); ok {
				parts = append(parts, "- "+render(neg.Inner, precUnary))
				continue
			}
			parts = append(parts, "+ "+render(t, precSum))
		}
		s := strings.Join(parts, " ")
		if parent >= precProduct {
			return "(" + s + ")"
		}
		return s

	case Product:
		if num, den, ok := asQuotient(v); ok {
			s := render(num, precProduct) + " / " + render(den, precUnary)
			if parent >= precUnary {
				return "(" + s + ")"
			}
			return s
		}
		parts := make([]string, len(v.Factors))
		for i, f := range v.Factors {
			parts[i] = render(f, precProduct)
		}
		s := strings.Join(parts, " * ")
		if parent >= precUnary {
			return "(" + s + ")"
		}
		return s

	case Power:
		s := render(v.Base, precPower) + "^" + render(v.Exponent, precPower)
		if parent >= precPower {
			return "(" + s + ")"
		}
		return s

	case Negation:
		s := "-" + render(v.Inner, precUnary)
		if parent >= precProduct {
			return "(" + s + ")"
		}
		return s

	case Call:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = render(a, 0)
		}
		return v.Name + "(" + strings.Join(args, ", ") + ")"
	}
	return ""
}

// asQuotient recognizes a two-factor Product of the shape a * b^-1, the tree
// the parser builds for symbolic division, so it renders back as "a / b".
func asQuotient(p Product) (num, den Expr, ok bool) {
	if len(p.Factors) != 2 {
		return nil, nil, false
	}
	pow, isPow := p.Factors[1].(Power)
	if !isPow {
		return nil, nil, false
	}
	if exp, isInt := pow.Exponent.(Integer); !isInt || exp.Value != -1 {
		return nil, nil, false
	}
	return p.Factors[0], pow.Base, true
}
