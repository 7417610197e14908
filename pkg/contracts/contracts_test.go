package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDefaults(t *testing.T) {
	p := &Proposal{Text: "x"}
	p.EnsureDefaults()
	assert.NotNil(t, p.Grants)
	assert.NotNil(t, p.Context)
	assert.Equal(t, ActionUnknown, p.ActionType)
	assert.Equal(t, SourceAgent, p.Source)

	p = &Proposal{ActionType: ActionCommand, Source: SourceExternal}
	p.EnsureDefaults()
	assert.Equal(t, ActionCommand, p.ActionType)
	assert.Equal(t, SourceExternal, p.Source)
}

func TestContextBool(t *testing.T) {
	p := &Proposal{Context: map[string]any{
		"t": true, "f": false,
		"s": "yes", "empty": "", "zero_s": "0", "false_s": "false",
		"n": 1.0, "zero_n": 0.0,
	}}
	assert.True(t, p.ContextBool("t"))
	assert.False(t, p.ContextBool("f"))
	assert.True(t, p.ContextBool("s"))
	assert.False(t, p.ContextBool("empty"))
	assert.False(t, p.ContextBool("zero_s"))
	assert.False(t, p.ContextBool("false_s"))
	assert.True(t, p.ContextBool("n"))
	assert.False(t, p.ContextBool("zero_n"))
	assert.False(t, p.ContextBool("absent"))
}

func TestContextFloat(t *testing.T) {
	p := &Proposal{Context: map[string]any{
		"f": 2.5, "i": 3, "j": json.Number("4.5"), "s": "not a number",
	}}
	assert.Equal(t, 2.5, p.ContextFloat("f"))
	assert.Equal(t, 3.0, p.ContextFloat("i"))
	assert.Equal(t, 4.5, p.ContextFloat("j"))
	assert.Zero(t, p.ContextFloat("s"))
	assert.Zero(t, p.ContextFloat("absent"))
}

func TestFlagged(t *testing.T) {
	assert.False(t, CheckResult{}.Flagged())
	assert.True(t, CheckResult{Score: 0.5}.Flagged())
	assert.True(t, CheckResult{HardBlock: true}.Flagged())
}

func TestVerdictToJSON(t *testing.T) {
	v := &Verdict{
		Decision:    DecisionBlock,
		Score:       9.5,
		RiskProfile: map[string]float64{"security_check": 5},
		LogID:       "abc",
	}
	out, err := v.ToJSON()
	require.NoError(t, err)

	var round Verdict
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, v.Decision, round.Decision)
	assert.Equal(t, v.LogID, round.LogID)
}
