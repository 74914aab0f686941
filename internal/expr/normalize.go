package expr

import (
	"errors"
	"math"
	"sort"
)

// MaxNodes bounds the size of trees the normalizer will process. Oversized
// input is a fatal structural failure, never a hang.
const MaxNodes = 4096

// maxFoldExponent bounds constant power folding; larger exponents are left
// symbolic rather than risking overflow.
const maxFoldExponent = 32

var (
	// ErrDivisionByZero reports a provably-zero denominator encountered
	// during constant folding. It is a fatal normalization error.
	ErrDivisionByZero = errors.New("expr: division by zero")

	// ErrTooLarge reports an expression exceeding MaxNodes, or a folded
	// constant too large for exact int64 arithmetic.
	ErrTooLarge = errors.New("expr: expression exceeds size limits")
)

// Normalize canonicalizes an expression tree: children first, then flatten
// associative operators, fold constants, strip identity elements, sort
// commutative operands by the total order, normalize signs and reduce
// rational constants. Normalize is idempotent: applying it to its own output
// yields a structurally identical tree.
//
// The normal form contains no Negation nodes; unary minus is folded into
// constants or expressed as a leading -1 factor of a Product.
func Normalize(e Expr) (Expr, error) {
	if NodeCount(e) > MaxNodes {
		return nil, ErrTooLarge
	}
	return normalize(e)
}

func normalize(e Expr) (Expr, error) {
	switch v := e.(type) {
	case Integer, Symbol:
		return v, nil

	case Rational:
		r, err := ratReduce(rat{v.Num, v.Den})
		if err != nil {
			return nil, err
		}
		return r.toExpr(), nil

	case Negation:
		inner, err := normalize(v.Inner)
		if err != nil {
			return nil, err
		}
		if c, ok := constOf(inner); ok {
			return rat{-c.n, c.d}.toExpr(), nil
		}
		return normalize(Product{Factors: []Expr{Integer{-1}, inner}})

	case Sum:
		return normalizeSum(v)

	case Product:
		return normalizeProduct(v)

	case Power:
		return normalizePower(v)

	case Call:
		args := make([]Expr, len(v.Args))
		for i, a := range v.Args {
			na, err := normalize(a)
			if err != nil {
				return nil, err
			}
			args[i] = na
		}
		return Call{Name: v.Name, Args: args}, nil
	}
	return e, nil
}

func normalizeSum(s Sum) (Expr, error) {
	var terms []Expr
	acc := rat{0, 1}
	for _, t := range s.Terms {
		nt, err := normalize(t)
		if err != nil {
			return nil, err
		}
		// Flatten a directly nested Sum.
		if nested, ok := nt.(Sum); ok {
			for _, inner := range nested.Terms {
				if c, isConst := constOf(inner); isConst {
					acc, err = ratAdd(acc, c)
					if err != nil {
						return nil, err
					}
					continue
				}
				terms = append(terms, inner)
			}
			continue
		}
		if c, isConst := constOf(nt); isConst {
			acc, err = ratAdd(acc, c)
			if err != nil {
				return nil, err
			}
			continue
		}
		terms = append(terms, nt)
	}
	if acc.n != 0 {
		terms = append(terms, acc.toExpr())
	}
	switch len(terms) {
	case 0:
		return Integer{0}, nil
	case 1:
		return terms[0], nil
	}
	sort.SliceStable(terms, func(i, j int) bool { return Compare(terms[i], terms[j]) < 0 })
	return Sum{Terms: terms}, nil
}

func normalizeProduct(p Product) (Expr, error) {
	var factors []Expr
	acc := rat{1, 1}
	for _, f := range p.Factors {
		nf, err := normalize(f)
		if err != nil {
			return nil, err
		}
		if nested, ok := nf.(Product); ok {
			for _, inner := range nested.Factors {
				if c, isConst := constOf(inner); isConst {
					acc, err = ratMul(acc, c)
					if err != nil {
						return nil, err
					}
					continue
				}
				factors = append(factors, inner)
			}
			continue
		}
		if c, isConst := constOf(nf); isConst {
			acc, err = ratMul(acc, c)
			if err != nil {
				return nil, err
			}
			continue
		}
		factors = append(factors, nf)
	}
	// Zero annihilates the whole product.
	if acc.n == 0 {
		return Integer{0}, nil
	}
	if !(acc.n == 1 && acc.d == 1) {
		factors = append(factors, acc.toExpr())
	}
	switch len(factors) {
	case 0:
		return Integer{1}, nil
	case 1:
		return factors[0], nil
	}
	sort.SliceStable(factors, func(i, j int) bool { return Compare(factors[i], factors[j]) < 0 })
	return Product{Factors: factors}, nil
}

func normalizePower(p Power) (Expr, error) {
	base, err := normalize(p.Base)
	if err != nil {
		return nil, err
	}
	exp, err := normalize(p.Exponent)
	if err != nil {
		return nil, err
	}
	if ei, ok := exp.(Integer); ok {
		switch ei.Value {
		case 0:
			return Integer{1}, nil
		case 1:
			return base, nil
		}
		if c, isConst := constOf(base); isConst && ei.Value >= -maxFoldExponent && ei.Value <= maxFoldExponent {
			folded, err := ratPow(c, ei.Value)
			if err != nil {
				return nil, err
			}
			return folded.toExpr(), nil
		}
	}
	return Power{Base: base, Exponent: exp}, nil
}

// rat is an exact fraction used during constant folding.
type rat struct {
	n, d int64
}

func (r rat) toExpr() Expr {
	if r.d == 1 {
		return Integer{r.n}
	}
	return Rational{Num: r.n, Den: r.d}
}

func constOf(e Expr) (rat, bool) {
	switch v := e.(type) {
	case Integer:
		return rat{v.Value, 1}, true
	case Rational:
		return rat{v.Num, v.Den}, true
	}
	return rat{}, false
}

func ratReduce(r rat) (rat, error) {
	if r.d == 0 {
		return rat{}, ErrDivisionByZero
	}
	if r.d < 0 {
		r.n, r.d = -r.n, -r.d
	}
	g := gcd(abs64(r.n), r.d)
	if g > 1 {
		r.n /= g
		r.d /= g
	}
	return r, nil
}

func ratAdd(a, b rat) (rat, error) {
	x, err := mul64(a.n, b.d)
	if err != nil {
		return rat{}, err
	}
	y, err := mul64(b.n, a.d)
	if err != nil {
		return rat{}, err
	}
	num, err := add64(x, y)
	if err != nil {
		return rat{}, err
	}
	den, err := mul64(a.d, b.d)
	if err != nil {
		return rat{}, err
	}
	return ratReduce(rat{num, den})
}

func ratMul(a, b rat) (rat, error) {
	num, err := mul64(a.n, b.n)
	if err != nil {
		return rat{}, err
	}
	den, err := mul64(a.d, b.d)
	if err != nil {
		return rat{}, err
	}
	return ratReduce(rat{num, den})
}

// mul64 multiplies with an overflow check; a folded constant that cannot be
// represented exactly fails normalization instead of wrapping around.
func mul64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a == math.MinInt64 || b == math.MinInt64 {
		return 0, ErrTooLarge
	}
	p := a * b
	if p/b != a {
		return 0, ErrTooLarge
	}
	return p, nil
}

func add64(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrTooLarge
	}
	return s, nil
}

func ratPow(base rat, exp int64) (rat, error) {
	if exp < 0 {
		if base.n == 0 {
			return rat{}, ErrDivisionByZero
		}
		base = rat{base.d, base.n}
		exp = -exp
	}
	out := rat{1, 1}
	for i := int64(0); i < exp; i++ {
		var err error
		out, err = ratMul(out, base)
		if err != nil {
			return rat{}, err
		}
	}
	return out, nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
