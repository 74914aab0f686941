package expr

import "testing"

func TestExpandDistributes(t *testing.T) {
	// 2 * (x + 3) -> 2*x + 2*3
	e := Product{Factors: []Expr{Integer{2}, Sum{Terms: []Expr{Symbol{"x"}, Integer{3}}}}}
	got, err := Normalize(Expand(e))
	if err != nil {
		t.Fatalf("normalize expanded: %v", err)
	}
	want, err := Normalize(Sum{Terms: []Expr{
		Product{Factors: []Expr{Integer{2}, Symbol{"x"}}},
		Integer{6},
	}})
	if err != nil {
		t.Fatalf("normalize want: %v", err)
	}
	if !Equal(got, want) {
		t.Fatalf("expected %s, got %s", Render(want), Render(got))
	}
}

func TestExpandHandlesMultipleSums(t *testing.T) {
	// (x + 1) * (y + 2) expands to four terms.
	e := Product{Factors: []Expr{
		Sum{Terms: []Expr{Symbol{"x"}, Integer{1}}},
		Sum{Terms: []Expr{Symbol{"y"}, Integer{2}}},
	}}
	expanded := Expand(e)
	s, ok := expanded.(Sum)
	if !ok {
		t.Fatalf("expected a Sum, got %s", Render(expanded))
	}
	count := 0
	for _, term := range s.Terms {
		Walk(term, func(n Expr) bool {
			if _, isSum := n.(Sum); isSum && !Equal(n, expanded) {
				t.Fatalf("unexpanded sum inside term %s", Render(term))
			}
			return true
		})
		count++
	}
	if count != 4 {
		t.Fatalf("expected 4 terms, got %d: %s", count, Render(expanded))
	}
}

func TestExpandLeavesAtomsAlone(t *testing.T) {
	for _, e := range []Expr{Symbol{"x"}, Integer{5}, Rational{1, 3}} {
		if got := Expand(e); !Equal(got, e) {
			t.Errorf("expected %s unchanged, got %s", Render(e), Render(got))
		}
	}
}

func TestFactorCommon(t *testing.T) {
	// 2x + 4 -> 2 * (x + 2)
	e := Sum{Terms: []Expr{
		Product{Factors: []Expr{Integer{2}, Symbol{"x"}}},
		Integer{4},
	}}
	got := FactorCommon(e)
	p, ok := got.(Product)
	if !ok || len(p.Factors) != 2 {
		t.Fatalf("expected a two-factor product, got %s", Render(got))
	}
	if !Equal(p.Factors[0], Integer{2}) {
		t.Fatalf("expected leading factor 2, got %s", Render(p.Factors[0]))
	}
}

func TestFactorCommonNoFactor(t *testing.T) {
	// 2x + 3 has no common integer factor above 1.
	e := Sum{Terms: []Expr{
		Product{Factors: []Expr{Integer{2}, Symbol{"x"}}},
		Integer{3},
	}}
	if got := FactorCommon(e); !Equal(got, e) {
		t.Fatalf("expected unchanged, got %s", Render(got))
	}
}
