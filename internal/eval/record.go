// Package eval drives a parsed mathlang program through the phase state
// machine, verifying every step against the prior expression and classifying
// each outcome as ok, mistake or fatal. Wrong answers are data here, not
// errors: only structural failures abort a session.
package eval

// Phase identifies which program phase produced a record.
type Phase string

const (
	PhaseProblem Phase = "problem"
	PhasePrepare Phase = "prepare"
	PhaseStep    Phase = "step"
	PhaseEnd     Phase = "end"
	PhaseExplain Phase = "explain"
)

// Status is the evaluation outcome of one phase event.
type Status string

const (
	// StatusOK marks a verified transition.
	StatusOK Status = "ok"
	// StatusMistake marks a recoverable semantic disagreement; evaluation
	// continues.
	StatusMistake Status = "mistake"
	// StatusFatal marks a structural failure; the session aborts after the
	// record is emitted.
	StatusFatal Status = "fatal"
)

// Mistake and fatal reasons carried in record metadata.
const (
	ReasonParseError       = "parse_error"
	ReasonDuplicateProblem = "duplicate_problem"
	ReasonMissingProblem   = "missing_problem"
	ReasonPrepareMismatch  = "prepare_mismatch"
	ReasonUnknownDirective = "unknown_directive"
	ReasonInvalidStep      = "invalid_step"
	ReasonFinalMismatch    = "final_result_mismatch"
	ReasonDuplicateEnd     = "duplicate_end"
	ReasonEmptyDerivation  = "empty_derivation"
	ReasonEngineFailure    = "engine_failure"
	ReasonMissingEnd       = "missing_end"
	ReasonOutOfPhase       = "out_of_phase"
)

// Metadata keys used in StepRecord.Meta.
const (
	MetaReason     = "reason"
	MetaExpected   = "expected"
	MetaDetail     = "detail"
	MetaDirective  = "directive"
	MetaResult     = "result"
	MetaFuzzyLabel = "fuzzy_label"
	MetaFuzzyScore = "fuzzy_score"
)

// StepRecord is one immutable evaluation log entry. Records are appended in
// strict phase order and preserved through a fatal abort.
type StepRecord struct {
	StepIndex  int               `json:"step_index"`
	Phase      Phase             `json:"phase"`
	Expression string            `json:"expression,omitempty"`
	Rendered   string            `json:"rendered"`
	Status     Status            `json:"status"`
	RuleID     string            `json:"rule_id,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Clone returns a deep copy; counterfactual replay mutates copies, never the
// originals.
func (r StepRecord) Clone() StepRecord {
	out := r
	if r.Meta != nil {
		out.Meta = make(map[string]string, len(r.Meta))
		for k, v := range r.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// CloneRecords deep-copies a record sequence.
func CloneRecords(records []StepRecord) []StepRecord {
	out := make([]StepRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Sink receives records as they are emitted. Implementations must not block;
// persistence sinks should buffer and flush out of band.
type Sink interface {
	Record(StepRecord)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(StepRecord)

func (f SinkFunc) Record(r StepRecord) { f(r) }
