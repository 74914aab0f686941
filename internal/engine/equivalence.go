// Package engine verifies step transitions: it decides whether two
// expressions are mathematically equal and attributes a justifying rule from
// the knowledge base.
package engine

import (
	"errors"
	"math"
	"math/rand"

	"github.com/chigenori053/mathlang/internal/expr"
)

const (
	// Sampling parameters: independent trials with distinct seeds, bounded
	// resampling around undefined points (zero denominators and the like).
	defaultTrials  = 3
	maxResamples   = 8
	sampleSeedBase = 0x6d6c
	floatTolerance = 1e-8
)

// ErrMalformed mirrors expr.ErrMalformed at this layer: the checker could
// not evaluate a tree at all, which is fatal rather than "not equivalent".
var ErrMalformed = expr.ErrMalformed

// EquivalenceChecker decides mathematical equality of two expressions:
// normalized structural comparison first, numeric sampling as the heuristic
// fallback. It carries no state and is safe for concurrent use.
type EquivalenceChecker struct {
	trials int
}

func NewEquivalenceChecker() *EquivalenceChecker {
	return &EquivalenceChecker{trials: defaultTrials}
}

// IsEquivalent reports whether a and b are mathematically equal. The error
// return is reserved for fatal conditions: malformed expressions and fatal
// normalization failures. An inconclusive sampling run is false, not an
// error.
func (c *EquivalenceChecker) IsEquivalent(a, b expr.Expr) (bool, error) {
	na, err := expr.Normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := expr.Normalize(b)
	if err != nil {
		return false, err
	}
	if expr.Equal(na, nb) {
		return true, nil
	}
	return c.sample(na, nb)
}

// sample evaluates both sides at pseudo-random assignments of their free
// symbols. Each trial uses its own seed so an accidental cancellation in one
// stream cannot fake agreement. A single numeric disagreement forces false.
func (c *EquivalenceChecker) sample(a, b expr.Expr) (bool, error) {
	names := unionSymbols(a, b)
	for trial := 0; trial < c.trials; trial++ {
		rng := rand.New(rand.NewSource(int64(sampleSeedBase + trial)))
		ok, err := c.trialAgrees(a, b, names, rng)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *EquivalenceChecker) trialAgrees(a, b expr.Expr, names []string, rng *rand.Rand) (bool, error) {
	for attempt := 0; attempt < maxResamples; attempt++ {
		env := make(map[string]float64, len(names))
		for _, name := range names {
			env[name] = sampleValue(rng)
		}
		va, err := expr.EvalNumeric(a, env)
		if errors.Is(err, expr.ErrUndefined) {
			continue
		}
		if err != nil {
			return false, err
		}
		vb, err := expr.EvalNumeric(b, env)
		if errors.Is(err, expr.ErrUndefined) {
			continue
		}
		if err != nil {
			return false, err
		}
		return closeEnough(va, vb), nil
	}
	// Every attempt hit an undefined point: inconclusive, treat as false.
	return false, nil
}

// sampleValue draws a small nonzero value, keeping clear of zero so
// denominators stay well conditioned.
func sampleValue(rng *rand.Rand) float64 {
	v := rng.Float64()*6 + 0.5
	if rng.Intn(2) == 0 {
		v = -v
	}
	return v
}

func closeEnough(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= floatTolerance*scale
}

func unionSymbols(a, b expr.Expr) []string {
	names := expr.Symbols(a)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range expr.Symbols(b) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}
