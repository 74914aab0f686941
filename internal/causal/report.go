package causal

import (
	"github.com/chigenori053/mathlang/internal/eval"
	"github.com/chigenori053/mathlang/internal/knowledge"
)

// NodeSummary is the query-result view of a graph node.
type NodeSummary struct {
	ID        string      `json:"id"`
	Kind      NodeKind    `json:"kind"`
	Phase     eval.Phase  `json:"phase,omitempty"`
	StepIndex int         `json:"step_index"`
	Status    eval.Status `json:"status,omitempty"`
	Label     string      `json:"label,omitempty"`
}

func summarize(nodes []Node) []NodeSummary {
	out := make([]NodeSummary, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeSummary{
			ID:        n.ID,
			Kind:      n.Kind,
			Phase:     n.Phase,
			StepIndex: n.StepIndex,
			Status:    n.Status,
			Label:     n.Label,
		})
	}
	return out
}

// ErrorAnalysis explains one error node: its ranked causes and the most
// promising fix candidates.
type ErrorAnalysis struct {
	NodeID        string        `json:"node_id"`
	StepIndex     int           `json:"step_index"`
	Phase         eval.Phase    `json:"phase"`
	Status        eval.Status   `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Causes        []NodeSummary `json:"causes"`
	FixCandidates []NodeSummary `json:"fix_candidates"`
}

// RuleUsage aggregates one knowledge rule's appearances in the derivation.
type RuleUsage struct {
	RuleID      string `json:"rule_id"`
	Domain      string `json:"domain,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Uses        int    `json:"uses"`
}

// AnalysisReport is the full post-session causal summary.
type AnalysisReport struct {
	Steps    int             `json:"steps"`
	Mistakes int             `json:"mistakes"`
	Fatals   int             `json:"fatals"`
	Final    string          `json:"final_expression,omitempty"`
	Errors   []ErrorAnalysis `json:"errors"`
	Rules    []RuleUsage     `json:"rules"`
}

// BuildAnalysis summarizes an ingested session: per-error cause chains plus
// rule usage detail resolved against the knowledge registry.
func (ce *Engine) BuildAnalysis(records []eval.StepRecord, registry *knowledge.Registry) (AnalysisReport, error) {
	report := AnalysisReport{}
	usage := make(map[string]int)
	var ruleOrder []string
	for _, rec := range records {
		if rec.Phase == eval.PhaseStep {
			report.Steps++
		}
		switch rec.Status {
		case eval.StatusMistake:
			report.Mistakes++
		case eval.StatusFatal:
			report.Fatals++
		}
		if rec.RuleID != "" {
			if _, ok := usage[rec.RuleID]; !ok {
				ruleOrder = append(ruleOrder, rec.RuleID)
			}
			usage[rec.RuleID]++
		}
	}
	if n := len(records); n > 0 {
		report.Final = records[n-1].Rendered
	}

	for _, errNode := range ce.ErrorNodes() {
		causes, err := ce.WhyError(errNode.ID)
		if err != nil {
			return AnalysisReport{}, err
		}
		fixes, err := ce.SuggestFixCandidates(errNode.ID, DefaultFixLimit)
		if err != nil {
			return AnalysisReport{}, err
		}
		report.Errors = append(report.Errors, ErrorAnalysis{
			NodeID:        errNode.ID,
			StepIndex:     errNode.StepIndex,
			Phase:         errNode.Phase,
			Status:        errNode.Status,
			Reason:        errNode.Label,
			Causes:        summarize(causes),
			FixCandidates: summarize(fixes),
		})
	}

	for _, id := range ruleOrder {
		ru := RuleUsage{RuleID: id, Uses: usage[id]}
		if registry != nil {
			if rule, ok := registry.Rule(id); ok {
				ru.Domain = rule.Domain
				ru.Category = rule.Category
				ru.Description = rule.Description
			}
		}
		report.Rules = append(report.Rules, ru)
	}
	return report, nil
}
