package expr

// Expand distributes products over sums, recursively, e.g.
// a*(b+c) becomes a*b + a*c. The result is not normalized.
func Expand(e Expr) Expr {
	switch v := e.(type) {
	case Sum:
		terms := make([]Expr, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = Expand(t)
		}
		return Sum{Terms: terms}

	case Product:
		factors := make([]Expr, len(v.Factors))
		for i, f := range v.Factors {
			factors[i] = Expand(f)
		}
		// Distribute over the first Sum factor, then expand the result so
		// remaining Sum factors distribute too.
		for i, f := range factors {
			s, ok := f.(Sum)
			if !ok {
				continue
			}
			rest := make([]Expr, 0, len(factors)-1)
			rest = append(rest, factors[:i]...)
			rest = append(rest, factors[i+1:]...)
			terms := make([]Expr, len(s.Terms))
			for j, t := range s.Terms {
				terms[j] = Product{Factors: append(append([]Expr{}, rest...), t)}
			}
			return Expand(Sum{Terms: terms})
		}
		return Product{Factors: factors}

	case Power:
		return Power{Base: Expand(v.Base), Exponent: Expand(v.Exponent)}
	case Negation:
		return Negation{Inner: Expand(v.Inner)}
	case Call:
		args := make([]Expr, len(v.Args))
		for i, a := range v.Args {
			args[i] = Expand(a)
		}
		return Call{Name: v.Name, Args: args}
	}
	return e
}

// FactorCommon pulls the greatest common integer factor out of a Sum, e.g.
// 2x + 4 becomes 2 * (x + 2). Expressions without such a factor are returned
// unchanged.
func FactorCommon(e Expr) Expr {
	s, ok := e.(Sum)
	if !ok || len(s.Terms) == 0 {
		return e
	}
	g := int64(0)
	for _, t := range s.Terms {
		g = gcd(g, abs64(integerCoefficient(t)))
		if g == 1 {
			return e
		}
	}
	if g <= 1 {
		return e
	}
	terms := make([]Expr, len(s.Terms))
	for i, t := range s.Terms {
		terms[i] = divideByInteger(t, g)
	}
	return Product{Factors: []Expr{Integer{g}, Sum{Terms: terms}}}
}

// integerCoefficient returns the integer constant multiplier of a term, or 1
// when the term has none.
func integerCoefficient(e Expr) int64 {
	switch v := e.(type) {
	case Integer:
		return v.Value
	case Negation:
		return -integerCoefficient(v.Inner)
	case Product:
		for _, f := range v.Factors {
			if c, ok := f.(Integer); ok {
				return c.Value
			}
		}
	}
	return 1
}

func divideByInteger(e Expr, g int64) Expr {
	switch v := e.(type) {
	case Integer:
		return Integer{v.Value / g}
	case Negation:
		return Negation{Inner: divideByInteger(v.Inner, g)}
	case Product:
		factors := make([]Expr, len(v.Factors))
		copy(factors, v.Factors)
		for i, f := range factors {
			if c, ok := f.(Integer); ok {
				if c.Value/g == 1 && len(factors) > 1 {
					return Product{Factors: append(factors[:i:i], factors[i+1:]...)}
				}
				factors[i] = Integer{c.Value / g}
				return Product{Factors: factors}
			}
		}
	}
	return e
}
