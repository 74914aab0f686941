package knowledge

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chigenori053/mathlang/internal/expr"
	"github.com/chigenori053/mathlang/internal/parser"
)

// ErrLoad reports a malformed rule source. Registry construction fails as a
// whole: the engine never runs with a partially loaded knowledge base.
var ErrLoad = errors.New("knowledge: rule load failed")

//go:embed rules/*.yaml
var builtinRules embed.FS

// defaultPriority applies when a rule declares none; explicitly prioritized
// rules sort ahead of it.
const defaultPriority = 100

// Registry is the immutable rule knowledge base. Construct once, share by
// reference; concurrent reads are safe because nothing mutates after load.
type Registry struct {
	byDomain map[string][]Rule
	byID     map[string]Rule
}

type ruleDef struct {
	ID            string   `yaml:"id"`
	Domain        string   `yaml:"domain"`
	Category      string   `yaml:"category"`
	Priority      int      `yaml:"priority"`
	PatternBefore string   `yaml:"pattern_before"`
	PatternAfter  string   `yaml:"pattern_after"`
	Constraints   []string `yaml:"constraints"`
	Description   string   `yaml:"description"`
}

// NewRegistry builds a registry from already-compiled rules. Duplicate ids
// are a load failure. Rules are ordered by (priority, id) per domain so
// matching never depends on map iteration order.
func NewRegistry(rules []Rule) (*Registry, error) {
	r := &Registry{
		byDomain: make(map[string][]Rule),
		byID:     make(map[string]Rule),
	}
	for _, rule := range rules {
		if rule.ID == "" || rule.Domain == "" {
			return nil, fmt.Errorf("%w: rule missing id or domain", ErrLoad)
		}
		if _, dup := r.byID[rule.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrLoad, rule.ID)
		}
		if rule.Priority == 0 {
			rule.Priority = defaultPriority
		}
		r.byID[rule.ID] = rule
		r.byDomain[rule.Domain] = append(r.byDomain[rule.Domain], rule)
	}
	for domain := range r.byDomain {
		rules := r.byDomain[domain]
		sort.SliceStable(rules, func(i, j int) bool {
			if rules[i].Priority != rules[j].Priority {
				return rules[i].Priority < rules[j].Priority
			}
			return rules[i].ID < rules[j].ID
		})
	}
	return r, nil
}

// Default builds the registry from the rule files compiled into the binary.
func Default() (*Registry, error) {
	entries, err := builtinRules.ReadDir("rules")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	var rules []Rule
	for _, entry := range entries {
		data, err := builtinRules.ReadFile("rules/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		parsed, err := compileRuleFile(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		rules = append(rules, parsed...)
	}
	return NewRegistry(rules)
}

// LoadDir builds a registry from every *.yaml file under path, in lexical
// file order.
func LoadDir(path string) (*Registry, error) {
	matches, err := filepath.Glob(filepath.Join(path, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no rule files under %s", ErrLoad, path)
	}
	sort.Strings(matches)
	var rules []Rule
	for _, file := range matches {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		parsed, err := compileRuleFile(filepath.Base(file), data)
		if err != nil {
			return nil, err
		}
		rules = append(rules, parsed...)
	}
	return NewRegistry(rules)
}

func compileRuleFile(name string, data []byte) ([]Rule, error) {
	var defs []ruleDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, name, err)
	}
	rules := make([]Rule, 0, len(defs))
	for _, def := range defs {
		rule, err := compileRule(def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileRule(def ruleDef) (Rule, error) {
	before, err := parser.ParseExpression(def.PatternBefore)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %s pattern_before: %v", ErrLoad, def.ID, err)
	}
	after, err := parser.ParseExpression(def.PatternAfter)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %s pattern_after: %v", ErrLoad, def.ID, err)
	}
	var constraints []Constraint
	for _, raw := range def.Constraints {
		c, err := ParseConstraint(raw)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", def.ID, err)
		}
		constraints = append(constraints, c)
	}
	return Rule{
		ID:            def.ID,
		Domain:        strings.TrimSpace(def.Domain),
		Category:      def.Category,
		Priority:      def.Priority,
		PatternBefore: before,
		PatternAfter:  after,
		Constraints:   constraints,
		Description:   def.Description,
	}, nil
}

// Rule returns the rule with the given id.
func (r *Registry) Rule(id string) (Rule, bool) {
	rule, ok := r.byID[id]
	return rule, ok
}

// Len returns the number of loaded rules.
func (r *Registry) Len() int { return len(r.byID) }

// Rules returns the rules of one domain in their match order.
func (r *Registry) Rules(domain string) []Rule {
	rules := r.byDomain[domain]
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Match finds the highest-priority rule in domain whose before/after patterns
// unify with the given pair under one consistent binding, with all
// constraints satisfied. The (priority, id) ordering fixed at construction
// makes the result deterministic across calls.
func (r *Registry) Match(before, after expr.Expr, domain string) (Rule, bool) {
	for _, rule := range r.byDomain[domain] {
		b := Bindings{}
		if !Unify(rule.PatternBefore, before, b) {
			continue
		}
		if !Unify(rule.PatternAfter, after, b) {
			continue
		}
		if constraintsHold(rule.Constraints, b) {
			return rule, true
		}
	}
	return Rule{}, false
}

// MatchDeep matches the whole pair first, then descends into the single
// differing child when both sides share the same shape, so a rewrite applied
// to a sub-expression (8*4 justified by folding 3+5 inside (3+5)*4) is still
// attributed.
func (r *Registry) MatchDeep(before, after expr.Expr, domain string) (Rule, bool) {
	if rule, ok := r.Match(before, after, domain); ok {
		return rule, true
	}
	subBefore, subAfter, ok := differingChild(before, after)
	if !ok {
		return Rule{}, false
	}
	return r.MatchDeep(subBefore, subAfter, domain)
}

func constraintsHold(cs []Constraint, b Bindings) bool {
	for _, c := range cs {
		if !c.Holds(b) {
			return false
		}
	}
	return true
}

// differingChild returns the single child pair that differs between two
// same-shaped trees, or ok=false when the shapes diverge or more than one
// child changed.
func differingChild(before, after expr.Expr) (expr.Expr, expr.Expr, bool) {
	var lhs, rhs []expr.Expr
	switch b := before.(type) {
	case expr.Sum:
		a, ok := after.(expr.Sum)
		if !ok {
			return nil, nil, false
		}
		lhs, rhs = b.Terms, a.Terms
	case expr.Product:
		a, ok := after.(expr.Product)
		if !ok {
			return nil, nil, false
		}
		lhs, rhs = b.Factors, a.Factors
	case expr.Power:
		a, ok := after.(expr.Power)
		if !ok {
			return nil, nil, false
		}
		lhs, rhs = []expr.Expr{b.Base, b.Exponent}, []expr.Expr{a.Base, a.Exponent}
	case expr.Negation:
		a, ok := after.(expr.Negation)
		if !ok {
			return nil, nil, false
		}
		lhs, rhs = []expr.Expr{b.Inner}, []expr.Expr{a.Inner}
	case expr.Call:
		a, ok := after.(expr.Call)
		if !ok || a.Name != b.Name {
			return nil, nil, false
		}
		lhs, rhs = b.Args, a.Args
	default:
		return nil, nil, false
	}
	if len(lhs) != len(rhs) {
		return nil, nil, false
	}
	var foundB, foundA expr.Expr
	for i := range lhs {
		if expr.Equal(lhs[i], rhs[i]) {
			continue
		}
		if foundB != nil {
			return nil, nil, false
		}
		foundB, foundA = lhs[i], rhs[i]
	}
	if foundB == nil {
		return nil, nil, false
	}
	return foundB, foundA, true
}
