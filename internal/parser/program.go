package parser

import (
	"fmt"
	"strings"
)

// StatementKind identifies a program phase line.
type StatementKind string

const (
	StmtProblem StatementKind = "problem"
	StmtPrepare StatementKind = "prepare"
	StmtStep    StatementKind = "step"
	StmtEnd     StatementKind = "end"
	StmtExplain StatementKind = "explain"
)

// Statement is one phased line of a mathlang program. Expression text is kept
// as source; the evaluator parses it so that a malformed expression is
// classified as a fatal evaluation outcome, not a program load failure.
type Statement struct {
	Kind StatementKind
	// Source is the raw expression text, the explain text, or empty for
	// directive prepares and "end: done".
	Source string
	// Directive is set for prepare lines of the form "prepare: @normalize".
	// The bare word "auto" is shorthand for @normalize.
	Directive string
	// Done marks the "end: done" closing form.
	Done bool
	Line int
}

// Program is an ordered list of statements.
type Program struct {
	Statements []Statement
}

// ParseProgram splits mathlang source into phase statements. Blank lines and
// lines starting with # are skipped. Only section headers are validated here;
// expression syntax is checked during evaluation.
func ParseProgram(src string) (*Program, error) {
	prog := &Program{}
	for lineNo, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		head, rest, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: line %d: missing section header", ErrSyntax, lineNo+1)
		}
		head = strings.TrimSpace(head)
		rest = strings.TrimSpace(rest)
		st := Statement{Source: rest, Line: lineNo + 1}
		switch StatementKind(head) {
		case StmtProblem:
			st.Kind = StmtProblem
		case StmtPrepare:
			st.Kind = StmtPrepare
			if strings.HasPrefix(rest, "@") {
				st.Directive = strings.TrimPrefix(rest, "@")
				st.Source = ""
			} else if rest == "auto" {
				st.Directive = "normalize"
				st.Source = ""
			}
		case StmtStep:
			st.Kind = StmtStep
		case StmtEnd:
			st.Kind = StmtEnd
			if rest == "done" {
				st.Done = true
				st.Source = ""
			}
		case StmtExplain:
			st.Kind = StmtExplain
		default:
			return nil, fmt.Errorf("%w: line %d: unknown section %q", ErrSyntax, lineNo+1, head)
		}
		prog.Statements = append(prog.Statements, st)
	}
	return prog, nil
}
