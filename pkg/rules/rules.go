// Package rules evaluates operator-defined risk rules. Rules are CEL
// expressions over proposal fields; a rule that evaluates to true adds a
// check result with its configured score. Rules extend the fixed dimension
// checks, they never replace them.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/cord/pkg/contracts"
	"github.com/Mindburn-Labs/cord/pkg/policy"
)

// Set holds compiled custom rules.
type Set struct {
	rules []compiledRule
}

type compiledRule struct {
	def     policy.RuleDef
	program cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("action_type", cel.StringType),
		cel.Variable("target_path", cel.StringType),
		cel.Variable("network_target", cel.StringType),
		cel.Variable("tool_name", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("session_intent", cel.StringType),
		cel.Variable("grants", cel.ListType(cel.StringType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// Compile builds a rule set from definitions. Any rule that fails to
// compile or does not produce a bool fails the whole set: a policy file
// with a broken rule is a configuration error, not a soft degradation.
func Compile(defs []policy.RuleDef) (*Set, error) {
	if len(defs) == 0 {
		return &Set{}, nil
	}
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("rules: env: %w", err)
	}

	set := &Set{rules: make([]compiledRule, 0, len(defs))}
	for _, def := range defs {
		ast, iss := env.Compile(def.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("rules: compile %q: %w", def.Name, iss.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rules: %q must evaluate to bool, got %s", def.Name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rules: program %q: %w", def.Name, err)
		}
		set.rules = append(set.rules, compiledRule{def: def, program: program})
	}
	return set, nil
}

// Len reports the number of compiled rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Evaluate runs every rule against a proposal and returns a check result
// per rule that fired. Evaluation errors on a single rule skip that rule.
func (s *Set) Evaluate(p *contracts.Proposal) []contracts.CheckResult {
	if s == nil || len(s.rules) == 0 {
		return nil
	}

	vars := map[string]any{
		"text":           p.Text,
		"action_type":    string(p.ActionType),
		"target_path":    p.TargetPath,
		"network_target": p.NetworkTarget,
		"tool_name":      p.ToolName,
		"source":         string(p.Source),
		"session_intent": p.SessionIntent,
		"grants":         p.Grants,
		"context":        p.Context,
	}

	var results []contracts.CheckResult
	for _, rule := range s.rules {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			continue
		}
		fired, ok := out.Value().(bool)
		if !ok || !fired {
			continue
		}
		article := rule.def.Article
		if article == "" {
			article = "CORD — Custom Rule"
		}
		results = append(results, contracts.CheckResult{
			Dimension: rule.def.Name,
			Article:   article,
			Score:     rule.def.Score,
			Reasons:   []string{fmt.Sprintf("Custom rule '%s' matched", rule.def.Name)},
			HardBlock: rule.def.HardBlock,
		})
	}
	return results
}
