package causal

import (
	"errors"
	"fmt"

	"github.com/chigenori053/mathlang/internal/eval"
)

// InterventionKind names the supported derivation edits.
type InterventionKind string

const (
	// InterventionReplace swaps the expression of the step at StepIndex.
	InterventionReplace InterventionKind = "replace_step"
	// InterventionInsertBefore adds a new step just before StepIndex.
	InterventionInsertBefore InterventionKind = "insert_before"
	// InterventionInsertAfter adds a new step just after StepIndex.
	InterventionInsertAfter InterventionKind = "insert_after"
	// InterventionDelete removes the step at StepIndex.
	InterventionDelete InterventionKind = "delete_step"
	// InterventionSetEnd overrides the final end expression.
	InterventionSetEnd InterventionKind = "set_end"
)

// Intervention is one edit to a recorded derivation. StepIndex refers to the
// record's original step index, not its position in the list.
type Intervention struct {
	Kind       InterventionKind `json:"kind"`
	StepIndex  int              `json:"step_index"`
	Expression string           `json:"expression,omitempty"`
}

// StepDiff is one position where the replay diverged from the original run.
type StepDiff struct {
	Position     int         `json:"position"`
	Phase        eval.Phase  `json:"phase"`
	Before       string      `json:"before,omitempty"`
	After        string      `json:"after,omitempty"`
	BeforeStatus eval.Status `json:"before_status,omitempty"`
	AfterStatus  eval.Status `json:"after_status,omitempty"`
}

// CounterfactualReport describes the outcome of replaying an edited
// derivation. Invalid interventions are reported in Problems rather than
// failing the whole replay.
type CounterfactualReport struct {
	Changed         bool              `json:"changed"`
	Problems        []string          `json:"problems,omitempty"`
	Diffs           []StepDiff        `json:"diffs,omitempty"`
	FinalExpression string            `json:"final_expression,omitempty"`
	RerunRecords    []eval.StepRecord `json:"rerun_records"`
	FirstFatal      *eval.StepRecord  `json:"first_fatal,omitempty"`
	LastPhase       eval.Phase        `json:"last_phase,omitempty"`
}

// CounterfactualResult replays an edited copy of baseRecords through a fresh
// evaluator and reports what changed. Statuses are recomputed from scratch:
// an edit early in the derivation can flip the correctness of every later
// step. The original records and this engine's graph are never touched.
func (ce *Engine) CounterfactualResult(interventions []Intervention, baseRecords []eval.StepRecord) CounterfactualReport {
	report := CounterfactualReport{}
	mutated := eval.CloneRecords(baseRecords)
	for _, iv := range interventions {
		var err error
		mutated, err = applyIntervention(mutated, iv)
		if err != nil {
			report.Problems = append(report.Problems, err.Error())
		}
	}

	ev := eval.New(ce.rewrite)
	var runErr error
	for _, rec := range mutated {
		if runErr = replayRecord(ev, rec); runErr != nil {
			break
		}
	}
	if runErr == nil && ev.State() != eval.StateFinished {
		runErr = ev.SubmitEndDone()
		if errors.Is(runErr, eval.ErrAborted) {
			runErr = nil
		}
	}

	report.RerunRecords = ev.Records()
	for i := range report.RerunRecords {
		rec := report.RerunRecords[i]
		if rec.Status == eval.StatusFatal && report.FirstFatal == nil {
			fatal := rec.Clone()
			report.FirstFatal = &fatal
		}
	}
	if n := len(report.RerunRecords); n > 0 {
		report.LastPhase = report.RerunRecords[n-1].Phase
	}
	if ref := ev.Reference(); ref != nil {
		report.FinalExpression = report.RerunRecords[len(report.RerunRecords)-1].Rendered
	}
	report.Diffs = diffRecords(baseRecords, report.RerunRecords)
	report.Changed = len(report.Diffs) > 0
	return report
}

// replayRecord resubmits one recorded event to a fresh evaluator.
func replayRecord(ev *eval.Evaluator, rec eval.StepRecord) error {
	switch rec.Phase {
	case eval.PhaseProblem:
		return ev.SubmitProblem(sourceOf(rec))
	case eval.PhasePrepare:
		if rec.Meta != nil && rec.Meta[eval.MetaDirective] != "" {
			return ev.SubmitPrepareDirective(rec.Meta[eval.MetaDirective])
		}
		return ev.SubmitPrepare(sourceOf(rec))
	case eval.PhaseStep:
		return ev.SubmitStep(sourceOf(rec))
	case eval.PhaseEnd:
		if rec.Expression == "" {
			return ev.SubmitEndDone()
		}
		return ev.SubmitEnd(rec.Expression)
	case eval.PhaseExplain:
		detail := ""
		if rec.Meta != nil {
			detail = rec.Meta[eval.MetaDetail]
		}
		return ev.SubmitExplain(detail)
	}
	return nil
}

func sourceOf(rec eval.StepRecord) string {
	if rec.Expression != "" {
		return rec.Expression
	}
	return rec.Rendered
}

func applyIntervention(records []eval.StepRecord, iv Intervention) ([]eval.StepRecord, error) {
	if iv.Kind == InterventionSetEnd {
		for i := range records {
			if records[i].Phase == eval.PhaseEnd {
				records[i].Expression = iv.Expression
				records[i].Rendered = iv.Expression
				return records, nil
			}
		}
		return records, fmt.Errorf("set_end: derivation has no end record")
	}

	pos := -1
	for i, rec := range records {
		if rec.Phase == eval.PhaseStep && rec.StepIndex == iv.StepIndex {
			pos = i
			break
		}
	}
	if pos < 0 {
		return records, fmt.Errorf("%s: no step record with index %d", iv.Kind, iv.StepIndex)
	}

	switch iv.Kind {
	case InterventionReplace:
		records[pos].Expression = iv.Expression
		records[pos].Rendered = iv.Expression
	case InterventionDelete:
		records = append(records[:pos], records[pos+1:]...)
	case InterventionInsertBefore, InterventionInsertAfter:
		at := pos
		if iv.Kind == InterventionInsertAfter {
			at = pos + 1
		}
		inserted := eval.StepRecord{Phase: eval.PhaseStep, Expression: iv.Expression, Rendered: iv.Expression}
		records = append(records, eval.StepRecord{})
		copy(records[at+1:], records[at:])
		records[at] = inserted
	default:
		return records, fmt.Errorf("unknown intervention kind %q", iv.Kind)
	}
	return records, nil
}

// diffRecords compares original and replay records pairwise by position.
// Length differences count as diffs against an empty counterpart.
func diffRecords(before, after []eval.StepRecord) []StepDiff {
	var diffs []StepDiff
	n := len(before)
	if len(after) > n {
		n = len(after)
	}
	for i := 0; i < n; i++ {
		var b, a eval.StepRecord
		if i < len(before) {
			b = before[i]
		}
		if i < len(after) {
			a = after[i]
		}
		if b.Rendered == a.Rendered && b.Status == a.Status && b.Phase == a.Phase {
			continue
		}
		phase := a.Phase
		if phase == "" {
			phase = b.Phase
		}
		diffs = append(diffs, StepDiff{
			Position:     i,
			Phase:        phase,
			Before:       b.Rendered,
			After:        a.Rendered,
			BeforeStatus: b.Status,
			AfterStatus:  a.Status,
		})
	}
	return diffs
}
