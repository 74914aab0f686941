// Package fuzzy grades near-miss steps: a deterministic hash encoder maps
// expressions to unit vectors, cosine similarity scores candidate steps
// against the expected derivation, and the judge turns scores into labels.
// The encoder output doubles as the vector persisted for similar-mistake
// lookup.
package fuzzy

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
)

// Dimension of every encoded vector.
const Dimension = 32

// Encoder deterministically embeds expression text into a unit vector.
// Identical input always produces an identical vector; there is no learned
// component.
type Encoder struct{}

func NewEncoder() *Encoder { return &Encoder{} }

// EncodeExpression embeds an expression's source text together with its
// whitespace tokens, so both the exact spelling and the token sequence
// contribute.
func (e *Encoder) EncodeExpression(text string) []float32 {
	vec := make([]float64, Dimension)
	accumulate(vec, text, "raw")
	for i, tok := range strings.Fields(text) {
		accumulate(vec, fmt.Sprintf("%d:%s", i, tok), "tok")
	}
	return finalize(vec)
}

// EncodeText embeds free text such as a rule id or explanation.
func (e *Encoder) EncodeText(text string) []float32 {
	vec := make([]float64, Dimension)
	if text != "" {
		accumulate(vec, text, "text")
	}
	return finalize(vec)
}

func accumulate(vec []float64, payload, salt string) {
	digest := sha256.Sum256([]byte(salt + ":" + payload))
	for i := range vec {
		b := digest[i%len(digest)]
		vec[i] += float64(b)/255.0*2.0 - 1.0
	}
}

func finalize(vec []float64) []float32 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// Cosine returns the cosine similarity of two vectors clamped to [0, 1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	v := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, v))
}
