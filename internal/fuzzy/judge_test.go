package fuzzy

import (
	"math"
	"testing"
)

func TestEncoderDeterministic(t *testing.T) {
	enc := NewEncoder()
	a := enc.EncodeExpression("7 * 4")
	b := enc.EncodeExpression("7 * 4")
	if len(a) != Dimension {
		t.Fatalf("expected %d dims, got %d", Dimension, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("encoding not deterministic at dim %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEncoderUnitNorm(t *testing.T) {
	enc := NewEncoder()
	vec := enc.EncodeExpression("x^2 + 2*x + 1")
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Fatalf("expected unit vector, squared norm %v", norm)
	}
}

func TestCosineBounds(t *testing.T) {
	enc := NewEncoder()
	a := enc.EncodeExpression("8 * 4")
	b := enc.EncodeExpression("(3 + 5) * 4")
	sim := Cosine(a, b)
	if sim < 0 || sim > 1 {
		t.Fatalf("cosine out of range: %v", sim)
	}
	if self := Cosine(a, a); math.Abs(self-1.0) > 1e-9 {
		t.Fatalf("self-similarity: expected 1, got %v", self)
	}
	if Cosine(a, nil) != 0 {
		t.Fatalf("mismatched lengths must score 0")
	}
	// An empty text embeds to the zero vector, which matches nothing.
	if Cosine(a, enc.EncodeText("")) != 0 {
		t.Fatalf("zero vector must score 0")
	}
}

func TestJudgeStepDeterministic(t *testing.T) {
	j := NewJudge()
	first := j.JudgeStep("8 * 4", "7 * 4", "ARITH-MUL-003")
	second := j.JudgeStep("8 * 4", "7 * 4", "ARITH-MUL-003")
	if first != second {
		t.Fatalf("judgment not deterministic: %+v vs %+v", first, second)
	}
	if first.Score.Combined < 0 || first.Score.Combined > 1 {
		t.Fatalf("combined score out of range: %v", first.Score.Combined)
	}
}

func TestJudgeStepExactLabel(t *testing.T) {
	j := NewJudge()
	res := j.JudgeStep("8 * 4", "8 * 4", "")
	if res.Label != LabelExact {
		t.Fatalf("identical text: expected %s, got %s", LabelExact, res.Label)
	}
	if math.Abs(res.Score.ExprSimilarity-1.0) > 1e-9 {
		t.Fatalf("identical text similarity: got %v", res.Score.ExprSimilarity)
	}
}

func TestJudgeStepUnrelatedScoresLower(t *testing.T) {
	j := NewJudge()
	near := j.JudgeStep("8 * 4", "8 * 4", "")
	far := j.JudgeStep("8 * 4", "sin(x) + cos(y)", "")
	if far.Score.Combined >= near.Score.Combined {
		t.Fatalf("unrelated expression scored %v, identical scored %v",
			far.Score.Combined, near.Score.Combined)
	}
}
