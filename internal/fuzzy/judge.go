package fuzzy

import "fmt"

// Label classifies how close a mistaken step came to a sound one.
type Label string

const (
	LabelExact      Label = "exact"
	LabelEquivalent Label = "equivalent"
	LabelApproxEq   Label = "approx_eq"
	LabelAnalogous  Label = "analogous"
	LabelUnknown    Label = "unknown"
)

// Score breaks the judgment into its similarity components.
type Score struct {
	ExprSimilarity float64 `json:"expr_similarity"`
	RuleSimilarity float64 `json:"rule_similarity"`
	Combined       float64 `json:"combined_score"`
}

// Result is one step judgment.
type Result struct {
	Label  Label  `json:"label"`
	Score  Score  `json:"score"`
	Reason string `json:"reason"`
}

// Combined-score weights and label thresholds.
const (
	exprWeight      = 0.8
	ruleWeight      = 0.2
	exactThreshold  = 0.999
	approxThreshold = 0.85
	analogThreshold = 0.55
)

// Judge scores candidate steps against the expected derivation.
type Judge struct {
	encoder *Encoder
}

func NewJudge() *Judge {
	return &Judge{encoder: NewEncoder()}
}

// JudgeStep compares the candidate expression against the previous reference
// expression, optionally weighing the applied rule id. It is deterministic:
// the same inputs always yield the same result.
func (j *Judge) JudgeStep(previous, candidate, appliedRuleID string) Result {
	exprSim := Cosine(
		j.encoder.EncodeExpression(previous),
		j.encoder.EncodeExpression(candidate),
	)
	ruleSim := 0.0
	if appliedRuleID != "" {
		ruleSim = Cosine(
			j.encoder.EncodeText(appliedRuleID),
			j.encoder.EncodeExpression(candidate),
		)
	}
	combined := exprWeight*exprSim + ruleWeight*ruleSim

	label := LabelUnknown
	switch {
	case previous == candidate:
		label = LabelExact
	case combined >= exactThreshold:
		label = LabelEquivalent
	case combined >= approxThreshold:
		label = LabelApproxEq
	case combined >= analogThreshold:
		label = LabelAnalogous
	}

	return Result{
		Label: label,
		Score: Score{
			ExprSimilarity: exprSim,
			RuleSimilarity: ruleSim,
			Combined:       combined,
		},
		Reason: fmt.Sprintf("expression similarity %.2f against previous step", exprSim),
	}
}
