// Command mathlang evaluates learner programs from the command line and
// prints the evaluation log, causal graph, or counterfactual replays.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chigenori053/mathlang/internal/causal"
	"github.com/chigenori053/mathlang/internal/engine"
	"github.com/chigenori053/mathlang/internal/eval"
	"github.com/chigenori053/mathlang/internal/knowledge"
	"github.com/chigenori053/mathlang/internal/parser"
)

var (
	rulesDir   string
	dotOutput  bool
	fixLimit   int
	replaceArg []string
	endArg     string
)

var rootCmd = &cobra.Command{
	Use:          "mathlang",
	Short:        "Evaluate math derivation programs and explain their mistakes",
	SilenceUsage: true,
}

var checkCmd = &cobra.Command{
	Use:   "check <program-file>",
	Short: "Evaluate a program and print the step records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := runProgram(args[0])
		if err != nil && ev == nil {
			return err
		}
		printRecords(ev.Records())
		if err != nil {
			return fmt.Errorf("session aborted: %v", err)
		}
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <program-file>",
	Short: "Evaluate a program and export its causal graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, runErr := runProgram(args[0])
		if ev == nil {
			return runErr
		}
		ce, err := ingest(ev.Records())
		if err != nil {
			return err
		}
		if dotOutput {
			fmt.Print(causal.ExportDOT(ce.Graph()))
		} else {
			fmt.Print(causal.ExportText(ce.Graph()))
		}
		return nil
	},
}

var whyCmd = &cobra.Command{
	Use:   "why <program-file>",
	Short: "Explain every error in a program's derivation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, runErr := runProgram(args[0])
		if ev == nil {
			return runErr
		}
		ce, err := ingest(ev.Records())
		if err != nil {
			return err
		}
		errs := ce.ErrorNodes()
		if len(errs) == 0 {
			fmt.Println("no errors in derivation")
			return nil
		}
		for _, node := range errs {
			causes, err := ce.WhyError(node.ID)
			if err != nil {
				return err
			}
			fixes, err := ce.SuggestFixCandidates(node.ID, fixLimit)
			if err != nil {
				return err
			}
			fmt.Printf("error %s (%s)\n", node.ID, node.Label)
			for i, c := range causes {
				fmt.Printf("  cause %d: %s %s\n", i+1, c.ID, c.Label)
			}
			for i, f := range fixes {
				fmt.Printf("  fix %d: revisit %s %s\n", i+1, f.ID, f.Label)
			}
		}
		return nil
	},
}

var whatifCmd = &cobra.Command{
	Use:   "whatif <program-file>",
	Short: "Replay a program with edited steps and report what changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, runErr := runProgram(args[0])
		if ev == nil {
			return runErr
		}
		interventions, err := parseInterventions(replaceArg, endArg)
		if err != nil {
			return err
		}
		if len(interventions) == 0 {
			return fmt.Errorf("at least one --replace or --end is required")
		}
		ce, err := ingest(ev.Records())
		if err != nil {
			return err
		}
		report := ce.CounterfactualResult(interventions, ev.Records())
		for _, p := range report.Problems {
			fmt.Printf("invalid intervention: %s\n", p)
		}
		if !report.Changed {
			fmt.Println("no change")
			return nil
		}
		for _, d := range report.Diffs {
			fmt.Printf("position %d (%s): %q [%s] -> %q [%s]\n",
				d.Position, d.Phase, d.Before, d.BeforeStatus, d.After, d.AfterStatus)
		}
		if report.FirstFatal != nil {
			fmt.Printf("replay aborted at %s: %s\n", report.FirstFatal.Phase, report.FirstFatal.Meta[eval.MetaReason])
		}
		fmt.Printf("final expression: %s\n", report.FinalExpression)
		return nil
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the loaded knowledge-base rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		for _, domain := range []string{knowledge.DomainArithmetic, knowledge.DomainFraction} {
			for _, rule := range registry.Rules(domain) {
				fmt.Printf("%-14s %-10s prio=%-3d %s\n", rule.ID, rule.Domain, rule.Priority, rule.Description)
			}
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&rulesDir, "rules", "", "directory of YAML rule files (default: built-in rules)")
	graphCmd.Flags().BoolVar(&dotOutput, "dot", false, "emit Graphviz DOT instead of plain text")
	whyCmd.Flags().IntVar(&fixLimit, "limit", causal.DefaultFixLimit, "max fix candidates per error")
	whatifCmd.Flags().StringArrayVar(&replaceArg, "replace", nil, "replace a step, format index=expression")
	whatifCmd.Flags().StringVar(&endArg, "end", "", "override the final end expression")
	rootCmd.AddCommand(checkCmd, graphCmd, whyCmd, whatifCmd, rulesCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRegistry() (*knowledge.Registry, error) {
	if rulesDir != "" {
		return knowledge.LoadDir(rulesDir)
	}
	return knowledge.Default()
}

// runProgram evaluates a program file. A fatal outcome returns both the
// evaluator (with its records) and the error.
func runProgram(path string) (*eval.Evaluator, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := parser.ParseProgram(string(src))
	if err != nil {
		return nil, err
	}
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	ev := eval.New(engine.New(registry, engine.NewEquivalenceChecker()), eval.WithLogger(zap.NewNop()))
	return ev, ev.Run(prog)
}

func ingest(records []eval.StepRecord) (*causal.Engine, error) {
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	ce := causal.New(engine.New(registry, engine.NewEquivalenceChecker()))
	if err := ce.IngestLog(records); err != nil {
		return nil, err
	}
	return ce, nil
}

func printRecords(records []eval.StepRecord) {
	for _, rec := range records {
		line := fmt.Sprintf("%2d %-8s %-8s %s", rec.StepIndex, rec.Phase, rec.Status, rec.Rendered)
		if rec.RuleID != "" {
			line += "  [" + rec.RuleID + "]"
		}
		if rec.Meta != nil && rec.Meta[eval.MetaReason] != "" {
			line += "  (" + rec.Meta[eval.MetaReason]
			if exp := rec.Meta[eval.MetaExpected]; exp != "" {
				line += ", expected " + exp
			}
			line += ")"
		}
		fmt.Println(line)
	}
}

// parseInterventions turns --replace index=expr flags and the --end override
// into causal interventions.
func parseInterventions(replacements []string, end string) ([]causal.Intervention, error) {
	var out []causal.Intervention
	for _, r := range replacements {
		idxStr, expr, found := strings.Cut(r, "=")
		if !found {
			return nil, fmt.Errorf("bad --replace %q, want index=expression", r)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
		if err != nil {
			return nil, fmt.Errorf("bad --replace index %q", idxStr)
		}
		out = append(out, causal.Intervention{
			Kind:       causal.InterventionReplace,
			StepIndex:  idx,
			Expression: strings.TrimSpace(expr),
		})
	}
	if end != "" {
		out = append(out, causal.Intervention{Kind: causal.InterventionSetEnd, Expression: end})
	}
	return out, nil
}
