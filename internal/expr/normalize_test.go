package expr

import (
	"errors"
	"math"
	"testing"
)

func mustNormalize(t *testing.T, e Expr) Expr {
	t.Helper()
	n, err := Normalize(e)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return n
}

func TestNormalize_FoldsConstants(t *testing.T) {
	// (3+5)*4 -> 32
	e := Product{Factors: []Expr{
		Sum{Terms: []Expr{Integer{3}, Integer{5}}},
		Integer{4},
	}}
	got := mustNormalize(t, e)
	if !Equal(got, Integer{32}) {
		t.Fatalf("expected 32, got %s", Render(got))
	}
}

func TestNormalize_CanonicalOrder(t *testing.T) {
	// y + x and x + y normalize to the same tree.
	a := mustNormalize(t, Sum{Terms: []Expr{Symbol{"y"}, Symbol{"x"}}})
	b := mustNormalize(t, Sum{Terms: []Expr{Symbol{"x"}, Symbol{"y"}}})
	if !Equal(a, b) {
		t.Fatalf("commuted sums differ: %s vs %s", Render(a), Render(b))
	}
}

func TestNormalize_FlattensNestedSums(t *testing.T) {
	// (x + (y + 1)) + 2 -> x + y + 3
	e := Sum{Terms: []Expr{
		Sum{Terms: []Expr{Symbol{"x"}, Sum{Terms: []Expr{Symbol{"y"}, Integer{1}}}}},
		Integer{2},
	}}
	got := mustNormalize(t, e)
	want := mustNormalize(t, Sum{Terms: []Expr{Integer{3}, Symbol{"x"}, Symbol{"y"}}})
	if !Equal(got, want) {
		t.Fatalf("expected %s, got %s", Render(want), Render(got))
	}
}

func TestNormalize_StripsIdentities(t *testing.T) {
	// x + 0 -> x, x * 1 -> x
	if got := mustNormalize(t, Sum{Terms: []Expr{Symbol{"x"}, Integer{0}}}); !Equal(got, Symbol{"x"}) {
		t.Fatalf("x + 0: got %s", Render(got))
	}
	if got := mustNormalize(t, Product{Factors: []Expr{Symbol{"x"}, Integer{1}}}); !Equal(got, Symbol{"x"}) {
		t.Fatalf("x * 1: got %s", Render(got))
	}
}

func TestNormalize_ZeroAnnihilatesProduct(t *testing.T) {
	e := Product{Factors: []Expr{Symbol{"x"}, Integer{0}, Symbol{"y"}}}
	if got := mustNormalize(t, e); !Equal(got, Integer{0}) {
		t.Fatalf("expected 0, got %s", Render(got))
	}
}

func TestNormalize_ReducesRationals(t *testing.T) {
	cases := []struct {
		in   Expr
		want Expr
	}{
		{Rational{2, 4}, Rational{1, 2}},
		{Rational{4, 2}, Integer{2}},
		{Rational{3, -6}, Rational{-1, 2}},
		{Rational{0, 5}, Integer{0}},
	}
	for _, tc := range cases {
		got := mustNormalize(t, tc.in)
		if !Equal(got, tc.want) {
			t.Errorf("normalize %s: expected %s, got %s", Render(tc.in), Render(tc.want), Render(got))
		}
	}
}

func TestNormalize_EliminatesNegation(t *testing.T) {
	// -(x) becomes -1 * x; -(3) becomes -3. No Negation survives.
	got := mustNormalize(t, Negation{Inner: Symbol{"x"}})
	Walk(got, func(e Expr) bool {
		if _, ok := e.(Negation); ok {
			t.Fatalf("normal form contains Negation: %s", Render(got))
		}
		return true
	})
	if got := mustNormalize(t, Negation{Inner: Integer{3}}); !Equal(got, Integer{-3}) {
		t.Fatalf("-(3): got %s", Render(got))
	}
	// Double negation cancels.
	if got := mustNormalize(t, Negation{Inner: Negation{Inner: Symbol{"x"}}}); !Equal(got, Symbol{"x"}) {
		t.Fatalf("-(-x): got %s", Render(got))
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	exprs := []Expr{
		Sum{Terms: []Expr{Symbol{"y"}, Negation{Inner: Symbol{"x"}}, Rational{2, 4}}},
		Product{Factors: []Expr{Integer{2}, Sum{Terms: []Expr{Symbol{"x"}, Integer{1}}}}},
		Power{Base: Sum{Terms: []Expr{Symbol{"x"}, Integer{0}}}, Exponent: Integer{2}},
		Call{Name: "sqrt", Args: []Expr{Rational{8, 2}}},
	}
	for _, e := range exprs {
		once := mustNormalize(t, e)
		twice := mustNormalize(t, once)
		if !Equal(once, twice) {
			t.Errorf("not idempotent for %s: %s vs %s", Render(e), Render(once), Render(twice))
		}
	}
}

func TestNormalize_DivisionByZero(t *testing.T) {
	_, err := Normalize(Rational{1, 0})
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestNormalize_NodeLimit(t *testing.T) {
	terms := make([]Expr, MaxNodes+1)
	for i := range terms {
		terms[i] = Integer{int64(i)}
	}
	_, err := Normalize(Sum{Terms: terms})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestNormalize_ConstantPowerFold(t *testing.T) {
	if got := mustNormalize(t, Power{Base: Integer{2}, Exponent: Integer{10}}); !Equal(got, Integer{1024}) {
		t.Fatalf("2^10: got %s", Render(got))
	}
	// Exponent 0 and 1 simplify structurally.
	if got := mustNormalize(t, Power{Base: Symbol{"x"}, Exponent: Integer{0}}); !Equal(got, Integer{1}) {
		t.Fatalf("x^0: got %s", Render(got))
	}
	if got := mustNormalize(t, Power{Base: Symbol{"x"}, Exponent: Integer{1}}); !Equal(got, Symbol{"x"}) {
		t.Fatalf("x^1: got %s", Render(got))
	}
}

func TestNormalize_ConstantOverflowGuard(t *testing.T) {
	cases := []struct {
		name string
		in   Expr
	}{
		{"product", Product{Factors: []Expr{Integer{4000000000}, Integer{4000000000}}}},
		{"sum", Sum{Terms: []Expr{Integer{math.MaxInt64}, Integer{math.MaxInt64}}}},
		{"power", Power{Base: Integer{10}, Exponent: Integer{25}}},
		{"rational", Product{Factors: []Expr{Rational{1, 4000000000}, Rational{1, 4000000000}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Normalize(tc.in); !errors.Is(err, ErrTooLarge) {
				t.Fatalf("expected ErrTooLarge, got %v", err)
			}
		})
	}
	// Values near the limit still fold exactly.
	got := mustNormalize(t, Product{Factors: []Expr{Integer{3000000000}, Integer{3}}})
	if !Equal(got, Integer{9000000000}) {
		t.Fatalf("expected exact fold, got %s", Render(got))
	}
}
