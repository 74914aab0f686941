package causal

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/chigenori053/mathlang/internal/engine"
	"github.com/chigenori053/mathlang/internal/eval"
	"github.com/chigenori053/mathlang/internal/knowledge"
	"github.com/chigenori053/mathlang/internal/parser"
)

func newRewrite(t *testing.T) *engine.Engine {
	t.Helper()
	registry, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	return engine.New(registry, engine.NewEquivalenceChecker())
}

// runRecords evaluates src and returns the emitted records. Fatal runs are
// fine here: the evaluator keeps the records it emitted before aborting.
func runRecords(t *testing.T, rewrite *engine.Engine, src string) []eval.StepRecord {
	t.Helper()
	prog, err := parser.ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	ev := eval.New(rewrite)
	if err := ev.Run(prog); err != nil && !errors.Is(err, eval.ErrFatal) {
		t.Fatalf("Run: %v", err)
	}
	return ev.Records()
}

const mistakeSrc = "problem: (3+5)*4\nstep: 7*4\nend: 35\n"

func TestIngestMistakePath(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	if err := ce.IngestLog(runRecords(t, rewrite, mistakeSrc)); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}

	g := ce.Graph()
	for _, id := range []string{"problem-0", "step-1", "error-1", "end-2", "error-2"} {
		if _, ok := g.Node(id); !ok {
			t.Errorf("missing node %s", id)
		}
	}
	if errs := ce.ErrorNodes(); len(errs) != 2 {
		t.Fatalf("expected 2 error nodes, got %d", len(errs))
	}

	// The mistaken step is wired both into the derivation chain and to its
	// error node.
	children := g.Children("step-1")
	ids := make(map[string]bool, len(children))
	for _, c := range children {
		ids[c.ID] = true
	}
	if !ids["error-1"] || !ids["end-2"] {
		t.Fatalf("step-1 children: %v", children)
	}
}

func TestWhyErrorRanksMistakenStepFirst(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	if err := ce.IngestLog(runRecords(t, rewrite, mistakeSrc)); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}

	causes, err := ce.WhyError("error-1")
	if err != nil {
		t.Fatalf("WhyError: %v", err)
	}
	if len(causes) != 2 {
		t.Fatalf("expected 2 causes, got %d", len(causes))
	}
	if causes[0].ID != "step-1" || causes[0].Status != eval.StatusMistake {
		t.Errorf("top cause: expected mistaken step-1, got %+v", causes[0])
	}
	if causes[1].ID != "problem-0" {
		t.Errorf("second cause: expected problem-0, got %s", causes[1].ID)
	}

	// The downstream end error sees the mistaken step behind the end step.
	causes, err = ce.WhyError("error-2")
	if err != nil {
		t.Fatalf("WhyError(error-2): %v", err)
	}
	if causes[0].ID != "end-2" {
		t.Errorf("nearest cause of the end error: expected end-2, got %s", causes[0].ID)
	}

	if _, err := ce.WhyError("step-1"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("WhyError on a non-error node: expected ErrUnknownNode, got %v", err)
	}
}

func TestSuggestFixCandidatesBanding(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	if err := ce.IngestLog(runRecords(t, rewrite, mistakeSrc)); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}

	fixes, err := ce.SuggestFixCandidates("error-2", 0)
	if err != nil {
		t.Fatalf("SuggestFixCandidates: %v", err)
	}
	if len(fixes) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(fixes))
	}
	// Mistaken steps first, most recent first, then the ok problem step.
	if fixes[0].ID != "end-2" || fixes[1].ID != "step-1" || fixes[2].ID != "problem-0" {
		t.Fatalf("candidate order: got %s, %s, %s", fixes[0].ID, fixes[1].ID, fixes[2].ID)
	}

	fixes, err = ce.SuggestFixCandidates("error-2", 1)
	if err != nil {
		t.Fatalf("SuggestFixCandidates(limit 1): %v", err)
	}
	if len(fixes) != 1 || fixes[0].ID != "end-2" {
		t.Fatalf("limit 1: got %v", fixes)
	}
}

func TestReingestionIsIdempotent(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	records := runRecords(t, rewrite, mistakeSrc)
	if err := ce.IngestLog(records); err != nil {
		t.Fatalf("first IngestLog: %v", err)
	}
	nodes, edges := len(ce.Graph().Nodes()), len(ce.Graph().Edges())
	if err := ce.IngestLog(records); err != nil {
		t.Fatalf("second IngestLog: %v", err)
	}
	if n := len(ce.Graph().Nodes()); n != nodes {
		t.Errorf("node count changed on re-ingest: %d -> %d", nodes, n)
	}
	if e := len(ce.Graph().Edges()); e != edges {
		t.Errorf("edge count changed on re-ingest: %d -> %d", edges, e)
	}
}

func TestIngestConflictingRecord(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	if err := ce.IngestLog(runRecords(t, rewrite, mistakeSrc)); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}
	bad := eval.StepRecord{StepIndex: 1, Phase: eval.PhaseStep, Rendered: "9 * 4", Status: eval.StatusOK}
	if err := ce.IngestRecord(bad); !errors.Is(err, ErrNodeConflict) {
		t.Fatalf("expected ErrNodeConflict, got %v", err)
	}
}

func TestRuleUsageNodes(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	if err := ce.IngestLog(runRecords(t, rewrite, "problem: (3+5)*4\nstep: 8*4\nend: 32\n")); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}
	rid := "rule-ARITH-ADD-003"
	node, ok := ce.Graph().Node(rid)
	if !ok {
		t.Fatalf("missing rule node %s", rid)
	}
	if node.Kind != NodeRule {
		t.Errorf("rule node kind: got %s", node.Kind)
	}
	children := ce.Graph().Children(rid)
	if len(children) != 1 || children[0].ID != "step-1" {
		t.Errorf("rule usage edge: got %v", children)
	}
}

func TestExplainLinkDoesNotAdvanceChain(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	src := "problem: (3+5)*4\nstep: 8*4\nexplain: fold the sum first\nend: 32\n"
	if err := ce.IngestLog(runRecords(t, rewrite, src)); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}
	g := ce.Graph()
	// The end step transitions from the computation step, not the note.
	parents := g.Parents("end-3")
	found := false
	for _, p := range parents {
		if p.ID == "step-1" {
			found = true
		}
		if p.ID == "explain-2" {
			t.Errorf("end must not descend from the explain note")
		}
	}
	if !found {
		t.Errorf("end-3 parents: %v", parents)
	}
	for _, e := range g.Edges() {
		if e.To == "explain-2" && e.Kind != EdgeExplainLink {
			t.Errorf("edge into explain node has kind %s", e.Kind)
		}
	}
}

func TestExportFormats(t *testing.T) {
	rewrite := newRewrite(t)
	ce := New(rewrite)
	if err := ce.IngestLog(runRecords(t, rewrite, mistakeSrc)); err != nil {
		t.Fatalf("IngestLog: %v", err)
	}
	text := ExportText(ce.Graph())
	for _, want := range []string{"step-1", "error-1", "step_transition", "error_cause"} {
		if !strings.Contains(text, want) {
			t.Errorf("text export missing %q", want)
		}
	}
	dot := ExportDOT(ce.Graph())
	if !strings.HasPrefix(dot, "digraph") {
		t.Errorf("dot export does not start with digraph: %q", dot[:20])
	}
	for _, want := range []string{`"step-1"`, `"error-1"`, "->"} {
		if !strings.Contains(dot, want) {
			t.Errorf("dot export missing %q", want)
		}
	}

	snapshot := ExportJSON(ce.Graph())
	if len(snapshot.Nodes) == 0 || len(snapshot.Edges) == 0 {
		t.Fatal("json export is empty")
	}
	if snapshot.Nodes[0].ID != "problem-0" {
		t.Errorf("json export first node %q, want problem-0", snapshot.Nodes[0].ID)
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	for _, want := range []string{`"nodes"`, `"edges"`, `"error_cause"`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("json export missing %q", want)
		}
	}
}
