package expr

import "testing"

func TestRender(t *testing.T) {
	cases := []struct {
		name string
		in   Expr
		want string
	}{
		{"integer", Integer{42}, "42"},
		{"rational", Rational{1, 2}, "1/2"},
		{"sum", Sum{Terms: []Expr{Symbol{"x"}, Integer{1}}}, "x + 1"},
		{"subtraction", Sum{Terms: []Expr{Symbol{"x"}, Negation{Inner: Integer{1}}}}, "x - 1"},
		{"product", Product{Factors: []Expr{Integer{2}, Symbol{"x"}}}, "2 * x"},
		{"quotient", Product{Factors: []Expr{Symbol{"a"}, Power{Base: Symbol{"b"}, Exponent: Integer{-1}}}}, "a / b"},
		{"power", Power{Base: Symbol{"x"}, Exponent: Integer{2}}, "x^2"},
		{"negation", Negation{Inner: Symbol{"x"}}, "-x"},
		{"call", Call{Name: "sqrt", Args: []Expr{Symbol{"x"}}}, "sqrt(x)"},
		{
			"sum inside product",
			Product{Factors: []Expr{Sum{Terms: []Expr{Integer{3}, Integer{5}}}, Integer{4}}},
			"(3 + 5) * 4",
		},
	}
	for _, tc := range cases {
		if got := Render(tc.in); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestRenderParenthesizesNestedPowers(t *testing.T) {
	e := Power{Base: Power{Base: Symbol{"x"}, Exponent: Integer{2}}, Exponent: Integer{3}}
	if got := Render(e); got != "(x^2)^3" {
		t.Fatalf("expected (x^2)^3, got %q", got)
	}
}
