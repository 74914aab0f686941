package expr

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMalformed reports a structurally invalid expression: an unbound
	// function name or wrong arity. Callers must treat it as fatal rather
	// than as "not equivalent".
	ErrMalformed = errors.New("expr: malformed expression")

	// ErrUndefined reports an evaluation point where the expression has no
	// value (division by zero, sqrt of a negative, log of a non-positive).
	// The equivalence checker resamples on it.
	ErrUndefined = errors.New("expr: undefined at evaluation point")
)

// EvalNumeric evaluates e at the given symbol assignment. Unassigned symbols
// evaluate as an ErrMalformed failure, since sampling always binds every free
// symbol before evaluating.
func EvalNumeric(e Expr, env map[string]float64) (float64, error) {
	switch v := e.(type) {
	case Integer:
		return float64(v.Value), nil

	case Rational:
		if v.Den == 0 {
			return 0, ErrUndefined
		}
		return float64(v.Num) / float64(v.Den), nil

	case Symbol:
		val, ok := env[v.Name]
		if !ok {
			return 0, fmt.Errorf("%w: unbound symbol %q", ErrMalformed, v.Name)
		}
		return val, nil

	case Sum:
		total := 0.0
		for _, t := range v.Terms {
			x, err := EvalNumeric(t, env)
			if err != nil {
				return 0, err
			}
			total += x
		}
		return total, nil

	case Product:
		total := 1.0
		for _, f := range v.Factors {
			x, err := EvalNumeric(f, env)
			if err != nil {
				return 0, err
			}
			total *= x
		}
		return total, nil

	case Power:
		base, err := EvalNumeric(v.Base, env)
		if err != nil {
			return 0, err
		}
		exp, err := EvalNumeric(v.Exponent, env)
		if err != nil {
			return 0, err
		}
		if base == 0 && exp < 0 {
			return 0, ErrUndefined
		}
		out := math.Pow(base, exp)
		if math.IsNaN(out) || math.IsInf(out, 0) {
			return 0, ErrUndefined
		}
		return out, nil

	case Negation:
		x, err := EvalNumeric(v.Inner, env)
		if err != nil {
			return 0, err
		}
		return -x, nil

	case Call:
		return evalCall(v, env)
	}
	return 0, fmt.Errorf("%w: unknown node", ErrMalformed)
}

func evalCall(c Call, env map[string]float64) (float64, error) {
	arg := func() (float64, error) {
		if len(c.Args) != 1 {
			return 0, fmt.Errorf("%w: %s expects 1 argument, got %d", ErrMalformed, c.Name, len(c.Args))
		}
		return EvalNumeric(c.Args[0], env)
	}
	switch c.Name {
	case "sqrt":
		x, err := arg()
		if err != nil {
			return 0, err
		}
		if x < 0 {
			return 0, ErrUndefined
		}
		return math.Sqrt(x), nil
	case "abs":
		x, err := arg()
		if err != nil {
			return 0, err
		}
		return math.Abs(x), nil
	case "exp":
		x, err := arg()
		if err != nil {
			return 0, err
		}
		return math.Exp(x), nil
	case "log", "ln":
		x, err := arg()
		if err != nil {
			return 0, err
		}
		if x <= 0 {
			return 0, ErrUndefined
		}
		return math.Log(x), nil
	case "sin":
		x, err := arg()
		if err != nil {
			return 0, err
		}
		return math.Sin(x), nil
	case "cos":
		x, err := arg()
		if err != nil {
			return 0, err
		}
		return math.Cos(x), nil
	case "tan":
		x, err := arg()
		if err != nil {
			return 0, err
		}
		return math.Tan(x), nil
	}
	return 0, fmt.Errorf("%w: unknown function %q", ErrMalformed, c.Name)
}
