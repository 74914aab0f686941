package causal

import (
	"fmt"
	"sort"

	"github.com/chigenori053/mathlang/internal/engine"
	"github.com/chigenori053/mathlang/internal/eval"
)

// DefaultFixLimit bounds fix-candidate lists when the caller passes no limit.
const DefaultFixLimit = 3

// Engine ingests evaluation records into a causal graph and answers
// why-error and fix-candidate queries over it. Queries never mutate the
// graph, so an ingested engine is safe for repeated reads.
//
// Ingestion is order-sensitive: records must arrive in evaluation order
// because transition edges connect consecutive events. Node ids derive
// deterministically from (phase, step index), so re-ingesting the same log
// is a no-op.
type Engine struct {
	graph   *Graph
	rewrite *engine.Engine
	lastID  string
}

func New(rewrite *engine.Engine) *Engine {
	return &Engine{graph: NewGraph(), rewrite: rewrite}
}

// Graph exposes the underlying graph for export and direct traversal.
func (ce *Engine) Graph() *Graph { return ce.graph }

func stepNodeID(phase eval.Phase, index int) string {
	return fmt.Sprintf("%s-%d", phase, index)
}

func errorNodeID(index int) string {
	return fmt.Sprintf("error-%d", index)
}

func ruleNodeID(ruleID string) string {
	return "rule-" + ruleID
}

// IngestRecord adds one record's nodes and edges to the graph.
func (ce *Engine) IngestRecord(rec eval.StepRecord) error {
	id := stepNodeID(rec.Phase, rec.StepIndex)
	node := Node{
		ID:        id,
		Kind:      NodeStep,
		Phase:     rec.Phase,
		StepIndex: rec.StepIndex,
		RuleID:    rec.RuleID,
		Status:    rec.Status,
		Label:     rec.Rendered,
	}
	_, seen := ce.graph.Node(id)
	if err := ce.graph.AddNode(node); err != nil {
		return err
	}
	if seen {
		// Re-ingested record: edges already exist, just refresh the cursor.
		if rec.Phase != eval.PhaseExplain {
			ce.lastID = id
		}
		return nil
	}
	if ce.lastID != "" {
		kind := EdgeStepTransition
		if rec.Phase == eval.PhaseExplain {
			kind = EdgeExplainLink
		}
		if err := ce.graph.AddEdge(ce.lastID, id, kind); err != nil {
			return err
		}
	}
	if rec.RuleID != "" {
		rid := ruleNodeID(rec.RuleID)
		if err := ce.graph.AddNode(Node{ID: rid, Kind: NodeRule, RuleID: rec.RuleID, Label: rec.RuleID}); err != nil {
			return err
		}
		if err := ce.graph.AddEdge(rid, id, EdgeRuleUsage); err != nil {
			return err
		}
	}
	if rec.Status != eval.StatusOK {
		eid := errorNodeID(rec.StepIndex)
		reason := ""
		if rec.Meta != nil {
			reason = rec.Meta[eval.MetaReason]
		}
		errNode := Node{
			ID:        eid,
			Kind:      NodeError,
			Phase:     rec.Phase,
			StepIndex: rec.StepIndex,
			Status:    rec.Status,
			Label:     reason,
		}
		if err := ce.graph.AddNode(errNode); err != nil {
			return err
		}
		if err := ce.graph.AddEdge(id, eid, EdgeErrorCause); err != nil {
			return err
		}
		if rec.RuleID != "" {
			if err := ce.graph.AddEdge(ruleNodeID(rec.RuleID), eid, EdgeErrorCause); err != nil {
				return err
			}
		}
	}
	// Explanations annotate the chain without advancing it.
	if rec.Phase != eval.PhaseExplain {
		ce.lastID = id
	}
	return nil
}

// IngestLog ingests records in input order.
func (ce *Engine) IngestLog(records []eval.StepRecord) error {
	for _, rec := range records {
		if err := ce.IngestRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// ErrorNodes returns all error nodes in insertion order.
func (ce *Engine) ErrorNodes() []Node {
	var out []Node
	for _, n := range ce.graph.Nodes() {
		if n.Kind == NodeError {
			out = append(out, n)
		}
	}
	return out
}

// WhyError ranks the ancestors of an error node as causes: nearer nodes
// first, breaking ties toward the more recent event. The mistaken step
// itself is always the top cause.
func (ce *Engine) WhyError(errorID string) ([]Node, error) {
	node, ok := ce.graph.Node(errorID)
	if !ok || node.Kind != NodeError {
		return nil, fmt.Errorf("%w: error node %s", ErrUnknownNode, errorID)
	}
	depth := ce.ancestorDepths(errorID)
	ancestors, err := ce.graph.Ancestors(errorID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ancestors, func(i, j int) bool {
		di, dj := depth[ancestors[i].ID], depth[ancestors[j].ID]
		if di != dj {
			return di < dj
		}
		return ancestors[i].Order > ancestors[j].Order
	})
	return ancestors, nil
}

// SuggestFixCandidates picks the ancestors most worth revisiting: mistaken
// step nodes first, then other step nodes, then rule nodes, most recent
// first within each band.
func (ce *Engine) SuggestFixCandidates(errorID string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = DefaultFixLimit
	}
	node, ok := ce.graph.Node(errorID)
	if !ok || node.Kind != NodeError {
		return nil, fmt.Errorf("%w: error node %s", ErrUnknownNode, errorID)
	}
	ancestors, err := ce.graph.Ancestors(errorID)
	if err != nil {
		return nil, err
	}
	band := func(n Node) int {
		switch {
		case n.Kind == NodeStep && n.Status != eval.StatusOK:
			return 0
		case n.Kind == NodeStep:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(ancestors, func(i, j int) bool {
		bi, bj := band(ancestors[i]), band(ancestors[j])
		if bi != bj {
			return bi < bj
		}
		return ancestors[i].Order > ancestors[j].Order
	})
	if len(ancestors) > limit {
		ancestors = ancestors[:limit]
	}
	return ancestors, nil
}

// ancestorDepths walks parent edges breadth-first and records the shortest
// edge distance from the start node to each ancestor.
func (ce *Engine) ancestorDepths(id string) map[string]int {
	depth := map[string]int{id: 0}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range ce.graph.Parents(cur) {
			if _, seen := depth[p.ID]; seen {
				continue
			}
			depth[p.ID] = depth[cur] + 1
			queue = append(queue, p.ID)
		}
	}
	return depth
}
