package expr

import (
	"math/big"
	"strings"
)

// Type ranks for the canonical total order. Constants sort before symbols so
// folded constants lead a Sum or Product after sorting.
const (
	rankInteger = iota
	rankRational
	rankSymbol
	rankNegation
	rankPower
	rankCall
	rankProduct
	rankSum
)

func rank(e Expr) int {
	switch e.(type) {
	case Integer:
		return rankInteger
	case Rational:
		return rankRational
	case Symbol:
		return rankSymbol
	case Negation:
		return rankNegation
	case Power:
		return rankPower
	case Call:
		return rankCall
	case Product:
		return rankProduct
	default:
		return rankSum
	}
}

// Compare imposes a total order over expression trees: type rank first, then
// structural/lexicographic comparison of contents. Sorting commutative
// operands by this order makes commutative equivalence detectable by plain
// structural equality.
func Compare(a, b Expr) int {
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra - rb
	}
	switch va := a.(type) {
	case Integer:
		return cmpInt64(va.Value, b.(Integer).Value)
	case Rational:
		vb := b.(Rational)
		// Compare as fractions: n1/d1 vs n2/d2 without division.
		if c := cmpRat(va.Num, va.Den, vb.Num, vb.Den); c != 0 {
			return c
		}
		return cmpInt64(va.Den, vb.Den)
	case Symbol:
		return strings.Compare(va.Name, b.(Symbol).Name)
	case Negation:
		return Compare(va.Inner, b.(Negation).Inner)
	case Power:
		vb := b.(Power)
		if c := Compare(va.Base, vb.Base); c != 0 {
			return c
		}
		return Compare(va.Exponent, vb.Exponent)
	case Call:
		vb := b.(Call)
		if c := strings.Compare(va.Name, vb.Name); c != 0 {
			return c
		}
		return compareLists(va.Args, vb.Args)
	case Product:
		return compareLists(va.Factors, b.(Product).Factors)
	default:
		return compareLists(a.(Sum).Terms, b.(Sum).Terms)
	}
}

func compareLists(a, b []Expr) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	for i := range a {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// cmpRat compares an/ad against bn/bd by cross multiplication. Operands too
// large for an exact int64 cross product fall back to big.Int so the order
// stays total even for extreme constants.
func cmpRat(an, ad, bn, bd int64) int {
	// floor(sqrt(MaxInt64)); products of values below it cannot overflow.
	const safe = int64(3037000499)
	if abs64(an) < safe && abs64(ad) < safe && abs64(bn) < safe && abs64(bd) < safe {
		return cmpInt64(an*bd, bn*ad)
	}
	x := new(big.Int).Mul(big.NewInt(an), big.NewInt(bd))
	y := new(big.Int).Mul(big.NewInt(bn), big.NewInt(ad))
	return x.Cmp(y)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
