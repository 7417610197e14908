// Package contracts defines the shared value types of the CORD decision
// engine: the Proposal submitted for evaluation, the CheckResult produced by
// each risk dimension, and the Verdict returned to the caller.
package contracts

import "encoding/json"

// Decision is the outcome of a CORD evaluation.
type Decision string

const (
	DecisionAllow     Decision = "ALLOW"
	DecisionChallenge Decision = "CHALLENGE"
	DecisionContain   Decision = "CONTAIN"
	DecisionBlock     Decision = "BLOCK"
)

// ActionType categorizes a proposed action.
type ActionType string

const (
	ActionCommand       ActionType = "command"
	ActionFileOp        ActionType = "file_op"
	ActionNetwork       ActionType = "network"
	ActionFinancial     ActionType = "financial"
	ActionCommunication ActionType = "communication"
	ActionSystem        ActionType = "system"
	ActionQuery         ActionType = "query"
	ActionUnknown       ActionType = "unknown"
)

// Source tags the provenance of a proposal's raw input.
type Source string

const (
	SourceAgent      Source = "agent"
	SourceExternal   Source = "external"
	SourceUser       Source = "user"
	SourceToolResult Source = "tool_result"
)

// Proposal is a structured description of an action submitted for evaluation.
// Proposals are built per call and treated as immutable once normalized.
type Proposal struct {
	Text          string         `json:"text"`
	ActionType    ActionType     `json:"action_type"`
	TargetPath    string         `json:"target_path,omitempty"`
	NetworkTarget string         `json:"network_target,omitempty"`
	Grants        []string       `json:"grants"`
	SessionIntent string         `json:"session_intent"`
	Context       map[string]any `json:"context"`

	// Interceptor fields.
	ToolName string `json:"tool_name,omitempty"`
	Source   Source `json:"source,omitempty"`
	RawInput string `json:"raw_input,omitempty"`
}

// EnsureDefaults coerces nil collections and empty tags to safe values.
func (p *Proposal) EnsureDefaults() {
	if p.Grants == nil {
		p.Grants = []string{}
	}
	if p.Context == nil {
		p.Context = map[string]any{}
	}
	if p.ActionType == "" {
		p.ActionType = ActionUnknown
	}
	if p.Source == "" {
		p.Source = SourceAgent
	}
}

// ContextBool reads a context flag, treating absent or non-truthy values as false.
func (p *Proposal) ContextBool(key string) bool {
	v, ok := p.Context[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return v != nil
	}
}

// ContextFloat reads a numeric context value, returning 0 when absent or
// not a number.
func (p *Proposal) ContextFloat(key string) float64 {
	v, ok := p.Context[key]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// CheckResult is the output of a single dimension check.
// A zero-score result with no hard block is "clean".
type CheckResult struct {
	Dimension string   `json:"dimension"`
	Article   string   `json:"article"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons"`
	HardBlock bool     `json:"hard_block"`
}

// Flagged reports whether the result contributes to the verdict's
// reasons and violations.
func (r CheckResult) Flagged() bool {
	return r.Score > 0 || r.HardBlock
}

// Verdict is the final result of the evaluation pipeline.
type Verdict struct {
	Decision          Decision           `json:"decision"`
	Score             float64            `json:"score"`
	RiskProfile       map[string]float64 `json:"risk_profile"`
	Reasons           []string           `json:"reasons"`
	Alternatives      []string           `json:"alternatives"`
	ArticleViolations []string           `json:"article_violations"`
	LogID             string             `json:"log_id"`
}

// ToJSON renders the verdict as indented JSON for CLI and bridge output.
func (v *Verdict) ToJSON() ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
