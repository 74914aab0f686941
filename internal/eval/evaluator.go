package eval

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/chigenori053/mathlang/internal/engine"
	"github.com/chigenori053/mathlang/internal/expr"
	"github.com/chigenori053/mathlang/internal/fuzzy"
	"github.com/chigenori053/mathlang/internal/parser"
)

var (
	// ErrFatal wraps every fatal transition outcome. The fatal record is
	// emitted before the error returns, so the log stays complete.
	ErrFatal = errors.New("fatal evaluation error")
	// ErrAborted is returned by any transition attempted after a fatal.
	ErrAborted = errors.New("session already aborted")
)

// AdvanceReferenceOnMistake is the reference-tracking policy after a mistaken
// step: when true the reference advances to the last-submitted expression so
// the learner's own path stays traceable, when false it freezes at the last
// verified expression. The default follows the traceability policy; tests
// exercise both branches through WithFrozenReference.
const AdvanceReferenceOnMistake = true

// State is the evaluator phase-machine state.
type State string

const (
	StateAwaitingProblem State = "awaiting_problem"
	StateHasProblem      State = "has_problem"
	StateHasPrepared     State = "has_prepared"
	StateStepping        State = "stepping"
	StateFinished        State = "finished"
	StateAborted         State = "aborted"
)

// Evaluator drives one program through problem/prepare/step/end, judging each
// step against the current reference expression. Wrong answers are recorded
// as mistakes and evaluation continues; only structural failures abort.
type Evaluator struct {
	engine  *engine.Engine
	judge   *fuzzy.Judge
	logger  *zap.Logger
	sink    Sink
	advance bool

	state     State
	reference expr.Expr
	records   []StepRecord
	stepIndex int
	stepCount int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithJudge attaches a fuzzy judge; mistaken steps then carry a closeness
// label and score in their metadata.
func WithJudge(j *fuzzy.Judge) Option {
	return func(e *Evaluator) { e.judge = j }
}

// WithLogger attaches a structured logger for per-record debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithSink streams records to the sink as they are emitted, in addition to
// the evaluator's own log.
func WithSink(s Sink) Option {
	return func(e *Evaluator) { e.sink = s }
}

// WithFrozenReference keeps the reference at the last verified expression
// after a mistaken step instead of advancing it.
func WithFrozenReference() Option {
	return func(e *Evaluator) { e.advance = false }
}

func New(eng *engine.Engine, opts ...Option) *Evaluator {
	e := &Evaluator{
		engine:  eng,
		logger:  zap.NewNop(),
		advance: AdvanceReferenceOnMistake,
		state:   StateAwaitingProblem,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State reports the current phase-machine state.
func (e *Evaluator) State() State { return e.state }

// Records returns the evaluation log accumulated so far. The slice is shared;
// callers that mutate entries must clone first.
func (e *Evaluator) Records() []StepRecord { return e.records }

// Reference returns the current reference expression, nil before a problem
// has been submitted.
func (e *Evaluator) Reference() expr.Expr { return e.reference }

// SubmitProblem establishes the reference expression. Valid only as the first
// transition of a session.
func (e *Evaluator) SubmitProblem(source string) error {
	if e.state == StateAborted {
		return ErrAborted
	}
	if e.state != StateAwaitingProblem {
		return e.fatal(PhaseProblem, source, ReasonDuplicateProblem, "problem already submitted")
	}
	tree, err := parser.ParseExpression(source)
	if err != nil {
		return e.fatal(PhaseProblem, source, ReasonParseError, err.Error())
	}
	e.reference = tree
	e.emit(StepRecord{
		Phase:      PhaseProblem,
		Expression: source,
		Rendered:   expr.Render(tree),
		Status:     StatusOK,
	})
	e.state = StateHasProblem
	return nil
}

// SubmitPrepare rewrites the reference to an equivalent staged form. A
// non-equivalent expression is a mistake, not an abort, and leaves the
// reference unchanged. Valid only between problem and the first step.
func (e *Evaluator) SubmitPrepare(source string) error {
	if e.state == StateAborted {
		return ErrAborted
	}
	if e.state == StateAwaitingProblem {
		return e.fatal(PhasePrepare, source, ReasonMissingProblem, "prepare before problem")
	}
	if e.state != StateHasProblem {
		return e.fatal(PhasePrepare, source, ReasonOutOfPhase, "prepare after stepping began")
	}
	tree, err := parser.ParseExpression(source)
	if err != nil {
		return e.fatal(PhasePrepare, source, ReasonParseError, err.Error())
	}
	res, err := e.engine.EvaluateTransition(e.reference, tree)
	if err != nil {
		return e.fatal(PhasePrepare, source, ReasonEngineFailure, err.Error())
	}
	rec := StepRecord{
		Phase:      PhasePrepare,
		Expression: source,
		Rendered:   expr.Render(tree),
	}
	if res.Valid {
		rec.Status = StatusOK
		rec.RuleID = res.RuleID
		e.reference = tree
	} else {
		rec.Status = StatusMistake
		rec.Meta = map[string]string{
			MetaReason:   ReasonPrepareMismatch,
			MetaExpected: expr.Render(e.reference),
		}
	}
	e.emit(rec)
	e.state = StateHasPrepared
	return nil
}

// SubmitPrepareDirective applies a named deterministic transformation to the
// reference expression. Recognized directives are normalize, expand and
// factor; anything else is fatal.
func (e *Evaluator) SubmitPrepareDirective(name string) error {
	if e.state == StateAborted {
		return ErrAborted
	}
	if e.state == StateAwaitingProblem {
		return e.fatal(PhasePrepare, "@"+name, ReasonMissingProblem, "prepare before problem")
	}
	if e.state != StateHasProblem {
		return e.fatal(PhasePrepare, "@"+name, ReasonOutOfPhase, "prepare after stepping began")
	}
	var (
		next expr.Expr
		err  error
	)
	switch name {
	case "normalize":
		next, err = expr.Normalize(e.reference)
	case "expand":
		next = expr.Expand(e.reference)
	case "factor":
		next = expr.FactorCommon(e.reference)
	default:
		return e.fatal(PhasePrepare, "@"+name, ReasonUnknownDirective, "unrecognized directive "+name)
	}
	if err != nil {
		return e.fatal(PhasePrepare, "@"+name, ReasonEngineFailure, err.Error())
	}
	e.reference = next
	e.emit(StepRecord{
		Phase:    PhasePrepare,
		Rendered: expr.Render(next),
		Status:   StatusOK,
		Meta:     map[string]string{MetaDirective: name},
	})
	e.state = StateHasPrepared
	return nil
}

// SubmitStep verifies one derivation step against the reference. An invalid
// step is a mistake; evaluation continues with the reference advanced or
// frozen per the configured policy.
func (e *Evaluator) SubmitStep(source string) error {
	if e.state == StateAborted {
		return ErrAborted
	}
	switch e.state {
	case StateAwaitingProblem:
		return e.fatal(PhaseStep, source, ReasonMissingProblem, "step before problem")
	case StateFinished:
		return e.fatal(PhaseStep, source, ReasonOutOfPhase, "step after end")
	}
	tree, err := parser.ParseExpression(source)
	if err != nil {
		return e.fatal(PhaseStep, source, ReasonParseError, err.Error())
	}
	res, err := e.engine.EvaluateTransition(e.reference, tree)
	if err != nil {
		return e.fatal(PhaseStep, source, ReasonEngineFailure, err.Error())
	}
	rec := StepRecord{
		Phase:      PhaseStep,
		Expression: source,
		Rendered:   expr.Render(tree),
	}
	if res.Valid {
		rec.Status = StatusOK
		rec.RuleID = res.RuleID
		e.reference = tree
	} else {
		rec.Status = StatusMistake
		rec.Meta = map[string]string{
			MetaReason:   ReasonInvalidStep,
			MetaExpected: expr.Render(e.reference),
		}
		e.attachJudgment(&rec)
		if e.advance {
			e.reference = tree
		}
	}
	e.emit(rec)
	e.stepCount++
	e.state = StateStepping
	return nil
}

// SubmitEnd closes the session with a final expression. A non-equivalent
// final answer is a mistake but still finishes the session.
func (e *Evaluator) SubmitEnd(source string) error {
	if err := e.endPrecondition(source); err != nil {
		return err
	}
	tree, err := parser.ParseExpression(source)
	if err != nil {
		return e.fatal(PhaseEnd, source, ReasonParseError, err.Error())
	}
	res, err := e.engine.EvaluateTransition(e.reference, tree)
	if err != nil {
		return e.fatal(PhaseEnd, source, ReasonEngineFailure, err.Error())
	}
	rec := StepRecord{
		Phase:      PhaseEnd,
		Expression: source,
		Rendered:   expr.Render(tree),
		Status:     StatusOK,
		Meta:       map[string]string{MetaResult: expr.Render(tree)},
	}
	if !res.Valid {
		rec.Status = StatusMistake
		rec.Meta[MetaReason] = ReasonFinalMismatch
		rec.Meta[MetaExpected] = expr.Render(e.reference)
	}
	e.emit(rec)
	e.state = StateFinished
	return nil
}

// SubmitEndDone closes the session without a final expression, asserting only
// that at least one step was taken.
func (e *Evaluator) SubmitEndDone() error {
	if err := e.endPrecondition("done"); err != nil {
		return err
	}
	rec := StepRecord{
		Phase:    PhaseEnd,
		Rendered: expr.Render(e.reference),
		Status:   StatusOK,
		Meta:     map[string]string{MetaResult: expr.Render(e.reference)},
	}
	if e.stepCount == 0 {
		rec.Status = StatusMistake
		rec.Meta[MetaReason] = ReasonEmptyDerivation
	}
	e.emit(rec)
	e.state = StateFinished
	return nil
}

func (e *Evaluator) endPrecondition(source string) error {
	switch e.state {
	case StateAborted:
		return ErrAborted
	case StateAwaitingProblem:
		return e.fatal(PhaseEnd, source, ReasonMissingProblem, "end before problem")
	case StateFinished:
		return e.fatal(PhaseEnd, source, ReasonDuplicateEnd, "end already submitted")
	}
	return nil
}

// SubmitExplain records free-text learner reasoning against the current
// reference. Explanations carry no verification and are always ok.
func (e *Evaluator) SubmitExplain(text string) error {
	if e.state == StateAborted {
		return ErrAborted
	}
	if e.state == StateAwaitingProblem {
		return e.fatal(PhaseExplain, text, ReasonMissingProblem, "explain before problem")
	}
	if e.state == StateFinished {
		return e.fatal(PhaseExplain, text, ReasonOutOfPhase, "explain after end")
	}
	e.emit(StepRecord{
		Phase:    PhaseExplain,
		Rendered: expr.Render(e.reference),
		Status:   StatusOK,
		Meta:     map[string]string{MetaDetail: text},
	})
	return nil
}

// Run drives a whole parsed program. It returns nil when the session reached
// Finished with no fatal record; a fatal at any statement stops the run and
// returns the wrapped fatal error. Records up to and including the fatal one
// remain available through Records.
func (e *Evaluator) Run(prog *parser.Program) error {
	for _, st := range prog.Statements {
		var err error
		switch st.Kind {
		case parser.StmtProblem:
			err = e.SubmitProblem(st.Source)
		case parser.StmtPrepare:
			if st.Directive != "" {
				err = e.SubmitPrepareDirective(st.Directive)
			} else {
				err = e.SubmitPrepare(st.Source)
			}
		case parser.StmtStep:
			err = e.SubmitStep(st.Source)
		case parser.StmtEnd:
			if st.Done {
				err = e.SubmitEndDone()
			} else {
				err = e.SubmitEnd(st.Source)
			}
		case parser.StmtExplain:
			err = e.SubmitExplain(st.Source)
		}
		if err != nil {
			return err
		}
	}
	if e.state != StateFinished {
		return e.fatal(PhaseEnd, "", ReasonMissingEnd, "program ended without an end statement")
	}
	return nil
}

func (e *Evaluator) attachJudgment(rec *StepRecord) {
	if e.judge == nil {
		return
	}
	result := e.judge.JudgeStep(expr.Render(e.reference), rec.Rendered, rec.RuleID)
	rec.Meta[MetaFuzzyLabel] = string(result.Label)
	rec.Meta[MetaFuzzyScore] = strconv.FormatFloat(result.Score.Combined, 'f', 4, 64)
}

func (e *Evaluator) fatal(phase Phase, source, reason, detail string) error {
	e.emit(StepRecord{
		Phase:      phase,
		Expression: source,
		Status:     StatusFatal,
		Meta: map[string]string{
			MetaReason: reason,
			MetaDetail: detail,
		},
	})
	e.state = StateAborted
	return fmt.Errorf("%w: %s: %s", ErrFatal, reason, detail)
}

func (e *Evaluator) emit(rec StepRecord) {
	rec.StepIndex = e.stepIndex
	e.stepIndex++
	e.records = append(e.records, rec)
	if e.sink != nil {
		e.sink.Record(rec)
	}
	e.logger.Debug("step record",
		zap.Int("step_index", rec.StepIndex),
		zap.String("phase", string(rec.Phase)),
		zap.String("status", string(rec.Status)),
		zap.String("rule_id", rec.RuleID),
	)
}
