package eval

import (
	"errors"
	"testing"

	"github.com/chigenori053/mathlang/internal/engine"
	"github.com/chigenori053/mathlang/internal/fuzzy"
	"github.com/chigenori053/mathlang/internal/knowledge"
	"github.com/chigenori053/mathlang/internal/parser"
)

func newEvaluator(t *testing.T, opts ...Option) *Evaluator {
	t.Helper()
	registry, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	return New(engine.New(registry, engine.NewEquivalenceChecker()), opts...)
}

func runSource(t *testing.T, ev *Evaluator, src string) error {
	t.Helper()
	prog, err := parser.ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	return ev.Run(prog)
}

func statuses(records []StepRecord) []Status {
	out := make([]Status, len(records))
	for i, r := range records {
		out[i] = r.Status
	}
	return out
}

func TestRunOKPath(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: (3+5)*4\nstep: 8*4\nend: 32\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	records := ev.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Status != StatusOK {
			t.Fatalf("record %d: expected ok, got %s", rec.StepIndex, rec.Status)
		}
	}
	if ev.State() != StateFinished {
		t.Fatalf("expected Finished, got %s", ev.State())
	}
	if records[1].RuleID != "ARITH-ADD-003" {
		t.Errorf("step attribution: expected ARITH-ADD-003, got %q", records[1].RuleID)
	}
}

func TestRunMistakePath(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: (3+5)*4\nstep: 7*4\nend: 35\n")
	if err != nil {
		t.Fatalf("mistakes must not abort the run: %v", err)
	}
	records := ev.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	step := records[1]
	if step.Status != StatusMistake {
		t.Fatalf("expected step mistake, got %s", step.Status)
	}
	if step.Meta[MetaReason] != ReasonInvalidStep {
		t.Errorf("expected reason %s, got %s", ReasonInvalidStep, step.Meta[MetaReason])
	}
	if step.Meta[MetaExpected] != "(3 + 5) * 4" {
		t.Errorf("expected expected=(3 + 5) * 4, got %q", step.Meta[MetaExpected])
	}
	end := records[2]
	if end.Status != StatusMistake {
		t.Fatalf("expected end mistake, got %s", end.Status)
	}
	if end.Meta[MetaReason] != ReasonFinalMismatch {
		t.Errorf("expected reason %s, got %s", ReasonFinalMismatch, end.Meta[MetaReason])
	}
	// The reference advanced to the mistaken step, so the expectation the
	// end is judged against is 7*4, not the original problem.
	if end.Meta[MetaExpected] != "7 * 4" {
		t.Errorf("expected expected=7 * 4, got %q", end.Meta[MetaExpected])
	}
	if ev.State() != StateFinished {
		t.Fatalf("expected Finished, got %s", ev.State())
	}
}

func TestReferencePolicyAfterMistake(t *testing.T) {
	// A follow-up step consistent with the mistaken one distinguishes the
	// two reference policies: the advancing default accepts it, the frozen
	// variant judges it against the last verified expression.
	const src = "problem: (3+5)*4\nstep: 7*4\nstep: 28\nend: done\n"

	advancing := newEvaluator(t)
	if err := runSource(t, advancing, src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := advancing.Records()[2].Status; got != StatusOK {
		t.Fatalf("advancing policy: expected 28 accepted against 7*4, got %s", got)
	}

	frozen := newEvaluator(t, WithFrozenReference())
	if err := runSource(t, frozen, src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := frozen.Records()[2].Status; got != StatusMistake {
		t.Fatalf("frozen policy: expected 28 rejected against (3+5)*4, got %s", got)
	}
}

func TestEndBeforeProblemIsFatal(t *testing.T) {
	ev := newEvaluator(t)
	err := ev.SubmitEnd("35")
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	records := ev.Records()
	if len(records) != 1 || records[0].Status != StatusFatal {
		t.Fatalf("expected a single fatal record, got %v", statuses(records))
	}
	if records[0].Meta[MetaReason] != ReasonMissingProblem {
		t.Errorf("expected reason %s, got %s", ReasonMissingProblem, records[0].Meta[MetaReason])
	}
	if ev.State() != StateAborted {
		t.Fatalf("expected Aborted, got %s", ev.State())
	}
	// Every transition after the abort fails without emitting records.
	if err := ev.SubmitProblem("1"); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if len(ev.Records()) != 1 {
		t.Fatal("post-abort transitions must not append records")
	}
}

func TestParseErrorIsFatalButRecordsSurvive(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: (3+5)*4\nstep: 8*4\nstep: 2 +* 3\nend: 32\n")
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	records := ev.Records()
	if len(records) != 3 {
		t.Fatalf("expected records up to and including the fatal, got %d", len(records))
	}
	last := records[len(records)-1]
	if last.Status != StatusFatal || last.Meta[MetaReason] != ReasonParseError {
		t.Fatalf("expected fatal parse_error, got %s/%s", last.Status, last.Meta[MetaReason])
	}
}

func TestDuplicateProblemIsFatal(t *testing.T) {
	ev := newEvaluator(t)
	if err := ev.SubmitProblem("1 + 2"); err != nil {
		t.Fatalf("SubmitProblem: %v", err)
	}
	if err := ev.SubmitProblem("3"); !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
}

func TestMissingEndIsFatal(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2 + 3\nstep: 5\n")
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	last := ev.Records()[len(ev.Records())-1]
	if last.Meta[MetaReason] != ReasonMissingEnd {
		t.Fatalf("expected reason %s, got %s", ReasonMissingEnd, last.Meta[MetaReason])
	}
}

func TestPrepareExpressionRewritesReference(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2*(x+3)\nprepare: 2*x + 2*3\nstep: 2*x + 6\nend: done\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, rec := range ev.Records() {
		if rec.Status != StatusOK {
			t.Fatalf("record %d (%s): expected ok, got %s", rec.StepIndex, rec.Phase, rec.Status)
		}
	}
}

func TestPrepareMismatchIsRecoverable(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2 + 3\nprepare: 2 + 4\nstep: 5\nend: 5\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	records := ev.Records()
	prep := records[1]
	if prep.Status != StatusMistake || prep.Meta[MetaReason] != ReasonPrepareMismatch {
		t.Fatalf("expected prepare mismatch, got %s/%s", prep.Status, prep.Meta[MetaReason])
	}
	// A mismatched prepare leaves the reference at the problem, so the
	// following correct step stays ok.
	if records[2].Status != StatusOK {
		t.Fatalf("expected step ok, got %s", records[2].Status)
	}
}

func TestPrepareDirectiveNormalize(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2/4 + 0\nprepare: auto\nstep: 1/2\nend: done\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	prep := ev.Records()[1]
	if prep.Status != StatusOK || prep.Meta[MetaDirective] != "normalize" {
		t.Fatalf("expected normalize directive record, got %+v", prep)
	}
	if prep.Rendered != "1/2" {
		t.Fatalf("expected reference normalized to 1/2, got %q", prep.Rendered)
	}
}

func TestPrepareUnknownDirectiveIsFatal(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2 + 3\nprepare: @simplify\nend: 5\n")
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	last := ev.Records()[len(ev.Records())-1]
	if last.Meta[MetaReason] != ReasonUnknownDirective {
		t.Fatalf("expected reason %s, got %s", ReasonUnknownDirective, last.Meta[MetaReason])
	}
}

func TestPrepareAfterStepIsFatal(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2 + 3\nstep: 5\nprepare: auto\nend: 5\n")
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
}

func TestEndDoneRequiresAStep(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2 + 3\nend: done\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	end := ev.Records()[1]
	if end.Status != StatusMistake || end.Meta[MetaReason] != ReasonEmptyDerivation {
		t.Fatalf("expected empty_derivation mistake, got %s/%s", end.Status, end.Meta[MetaReason])
	}
}

func TestDuplicateEndIsFatal(t *testing.T) {
	ev := newEvaluator(t)
	if err := runSource(t, ev, "problem: 2 + 3\nstep: 5\nend: 5\n"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := ev.SubmitEnd("5"); !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal on duplicate end, got %v", err)
	}
}

func TestExplainRecordsAnnotation(t *testing.T) {
	ev := newEvaluator(t)
	err := runSource(t, ev, "problem: 2 + 3\nexplain: adding the constants\nstep: 5\nend: done\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	explain := ev.Records()[1]
	if explain.Phase != PhaseExplain || explain.Status != StatusOK {
		t.Fatalf("expected ok explain record, got %+v", explain)
	}
	if explain.Meta[MetaDetail] != "adding the constants" {
		t.Fatalf("expected explain text preserved, got %q", explain.Meta[MetaDetail])
	}
}

func TestMistakeCarriesFuzzyJudgment(t *testing.T) {
	ev := newEvaluator(t, WithJudge(fuzzy.NewJudge()))
	err := runSource(t, ev, "problem: (3+5)*4\nstep: 7*4\nend: done\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	step := ev.Records()[1]
	if step.Status != StatusMistake {
		t.Fatalf("expected mistake, got %s", step.Status)
	}
	if step.Meta[MetaFuzzyLabel] == "" || step.Meta[MetaFuzzyScore] == "" {
		t.Fatalf("expected fuzzy metadata on the mistake, got %v", step.Meta)
	}
}

func TestSinkReceivesRecords(t *testing.T) {
	var seen []StepRecord
	ev := newEvaluator(t, WithSink(SinkFunc(func(r StepRecord) { seen = append(seen, r) })))
	if err := runSource(t, ev, "problem: 2 + 3\nstep: 5\nend: 5\n"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != len(ev.Records()) {
		t.Fatalf("sink saw %d records, evaluator kept %d", len(seen), len(ev.Records()))
	}
}
