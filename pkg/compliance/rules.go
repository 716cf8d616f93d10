package compliance

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// Rule is an operator-supplied CEL expression over the routing path. The
// expression must evaluate to true for the path to pass. Available
// variables: route, provider, operation, priority (strings) and
// known_provider (bool).
type Rule struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
	Message    string `json:"message" yaml:"message"`
}

type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// RuleSet is a compiled, immutable list of rules. Safe for concurrent use.
type RuleSet struct {
	rules []compiledRule
}

// CompileRules type-checks every expression up front.
func CompileRules(rules []Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("route", cel.StringType),
		cel.Variable("provider", cel.StringType),
		cel.Variable("operation", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("known_provider", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	rs := &RuleSet{}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compilation failed: %w", r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %q: expression must return bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program construction failed: %w", r.Name, err)
		}
		if r.Message == "" {
			r.Message = fmt.Sprintf("rule %s failed", r.Name)
		}
		rs.rules = append(rs.rules, compiledRule{rule: r, prg: prg})
	}
	return rs, nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Evaluate returns the messages of every rule the path fails, in rule
// order. A rule that cannot be evaluated counts as failed.
func (rs *RuleSet) Evaluate(path contracts.RoutingPath) []string {
	if rs == nil {
		return nil
	}
	input := map[string]any{
		"route":          string(path.RouteType),
		"provider":       string(path.Provider),
		"operation":      string(path.OperationType),
		"priority":       string(path.Priority),
		"known_provider": path.Provider.Known(),
	}
	var failed []string
	for _, cr := range rs.rules {
		out, _, err := cr.prg.Eval(input)
		if err != nil {
			failed = append(failed, fmt.Sprintf("rule %s could not be evaluated: %v", cr.rule.Name, err))
			continue
		}
		ok, isBool := out.Value().(bool)
		if !isBool || !ok {
			failed = append(failed, cr.rule.Message)
		}
	}
	return failed
}
