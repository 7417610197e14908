// Package interceptor enforces CORD evaluation at the tool-call boundary.
// Instead of asking agents to evaluate each action themselves, wrap the
// tool functions: every invocation builds a proposal from the call
// arguments, runs the full pipeline, and routes on the verdict. BLOCK and
// unapproved CHALLENGE surface as typed errors; ALLOW and CONTAIN execute.
package interceptor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/cord/pkg/contracts"
	"github.com/Mindburn-Labs/cord/pkg/engine"
)

// ToolFunc is the shape of a guarded tool: positional args plus named args.
type ToolFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// ChallengeHandler decides a CHALLENGE verdict. Returning true allows
// execution.
type ChallengeHandler func(v *contracts.Verdict, toolName string, args []any, kwargs map[string]any) bool

// VerdictCallback observes every evaluation, regardless of outcome.
type VerdictCallback func(v *contracts.Verdict, toolName string)

// ToolBlockedError is returned when a tool call is blocked.
type ToolBlockedError struct {
	Verdict     *contracts.Verdict
	ToolName    string
	ArgsSummary string
}

func (e *ToolBlockedError) Error() string {
	reasons := e.Verdict.Reasons
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return fmt.Sprintf("CORD BLOCK — %s(%s) [score=%v, violations=%v] %s",
		e.ToolName, e.ArgsSummary, e.Verdict.Score, e.Verdict.ArticleViolations,
		strings.Join(reasons, "; "))
}

// ToolChallengedError is returned when a tool call is challenged and no
// handler approved it.
type ToolChallengedError struct {
	Verdict     *contracts.Verdict
	ToolName    string
	ArgsSummary string
}

func (e *ToolChallengedError) Error() string {
	return fmt.Sprintf("CORD CHALLENGE — %s(%s) [score=%v] Requires principal confirmation.",
		e.ToolName, e.ArgsSummary, e.Verdict.Score)
}

var toolActionTypes = map[string]contracts.ActionType{
	"exec": contracts.ActionCommand, "shell": contracts.ActionCommand,
	"command": contracts.ActionCommand, "bash": contracts.ActionCommand,
	"subprocess": contracts.ActionCommand,
	"write":      contracts.ActionFileOp, "edit": contracts.ActionFileOp,
	"create": contracts.ActionFileOp, "delete": contracts.ActionFileOp,
	"move": contracts.ActionFileOp, "copy": contracts.ActionFileOp,
	"read": contracts.ActionQuery, "query": contracts.ActionQuery,
	"search": contracts.ActionQuery, "list": contracts.ActionQuery,
	"get":     contracts.ActionQuery,
	"network": contracts.ActionNetwork, "browser": contracts.ActionNetwork,
	"fetch": contracts.ActionNetwork, "request": contracts.ActionNetwork,
	"http":    contracts.ActionNetwork,
	"message": contracts.ActionCommunication, "send": contracts.ActionCommunication,
	"email": contracts.ActionCommunication, "post": contracts.ActionCommunication,
	"publish": contracts.ActionCommunication,
}

var urlHost = regexp.MustCompile(`https?://([^\s/]+)`)

// rawInputCap bounds captured untrusted input for scanning performance.
const rawInputCap = 2000

func looksLikePath(s string) bool {
	for _, scheme := range []string{"http://", "https://", "ftp://", "s3://"} {
		if strings.HasPrefix(s, scheme) {
			return false
		}
	}
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~/") ||
		strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func capString(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > rawInputCap {
		s = s[:rawInputCap]
	}
	return s
}

func firstKwarg(kwargs map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := kwargs[key]; ok && v != nil {
			s := capString(v)
			if s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// BuildProposal maps a tool call's arguments into a proposal. Field
// extraction depends on the tool class: shell tools take the command as
// text and a shell grant, file tools pick the first path-like argument,
// network tools extract the URL host, message and write tools capture the
// outbound content as raw input for injection scanning.
func BuildProposal(toolName string, args []any, kwargs map[string]any, source contracts.Source, sessionIntent string) *contracts.Proposal {
	allValues := make([]any, 0, len(args)+len(kwargs))
	allValues = append(allValues, args...)
	// Keyed args in sorted key order, so the assembled text (and with it
	// the audit trail) is stable across calls.
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		allValues = append(allValues, kwargs[k])
	}

	var textParts []string
	for _, v := range allValues {
		if v != nil {
			textParts = append(textParts, fmt.Sprintf("%v", v))
		}
	}
	text := toolName
	if len(textParts) > 0 {
		text = strings.Join(textParts, " ")
	}

	actionType, ok := toolActionTypes[toolName]
	if !ok {
		actionType = contracts.ActionUnknown
	}

	var targetPath, networkTarget, rawInput string
	grants := []string{}

	switch toolName {
	case "exec", "shell", "command", "bash", "subprocess":
		grants = []string{"shell"}
		if len(args) > 0 {
			text = fmt.Sprintf("%v", args[0])
		} else if s, ok := firstKwarg(kwargs, "cmd", "command"); ok {
			text = s
		}

	case "write", "edit", "create", "delete", "move", "copy":
		for _, v := range allValues {
			if s, ok := v.(string); ok && looksLikePath(s) {
				targetPath = s
				break
			}
		}
		rawInput, _ = firstKwarg(kwargs, "content", "data", "body", "text")

	case "network", "browser", "fetch", "request", "http":
		for _, v := range allValues {
			if m := urlHost.FindStringSubmatch(fmt.Sprintf("%v", v)); m != nil {
				networkTarget = m[1]
				break
			}
		}
		if v, ok := kwargs["url"]; ok {
			if m := urlHost.FindStringSubmatch(fmt.Sprintf("%v", v)); m != nil {
				networkTarget = m[1]
			}
		}

	case "read", "query", "search", "list", "get":
		for _, v := range allValues {
			if s, ok := v.(string); ok && looksLikePath(s) {
				targetPath = s
				break
			}
		}

	case "message", "send", "email", "post", "publish":
		rawInput, _ = firstKwarg(kwargs, "body", "content", "message", "text")
	}

	if rawInput == "" {
		rawInput, _ = firstKwarg(kwargs, "raw_input", "input", "body", "content", "data", "payload")
	}

	return &contracts.Proposal{
		Text:          text,
		ActionType:    actionType,
		TargetPath:    targetPath,
		NetworkTarget: networkTarget,
		Grants:        grants,
		SessionIntent: sessionIntent,
		Context:       map[string]any{},
		ToolName:      toolName,
		Source:        source,
		RawInput:      rawInput,
	}
}

func summarizeArgs(args []any, kwargs map[string]any) string {
	const maxLen = 80
	var parts []string
	for i, a := range args {
		if i == 3 {
			break
		}
		parts = append(parts, fmt.Sprintf("%#v", a))
	}
	n := 0
	for k, v := range kwargs {
		if n == 3 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s=%#v", k, v))
		n++
	}
	summary := strings.Join(parts, ", ")
	if len(summary) > maxLen {
		summary = summary[:maxLen-3] + "..."
	}
	return summary
}

// Enforcer evaluates tool calls against an engine and keeps a tally of
// the verdicts it produced.
type Enforcer struct {
	ID            string
	ToolName      string
	Source        contracts.Source
	SessionIntent string
	OnChallenge   ChallengeHandler
	OnVerdict     VerdictCallback

	engine *engine.Engine

	mu              sync.Mutex
	verdicts        []*contracts.Verdict
	blockedCount    int
	allowedCount    int
	challengedCount int
}

// NewEnforcer builds an enforcer for one tool.
func NewEnforcer(eng *engine.Engine, toolName string) *Enforcer {
	return &Enforcer{
		ID:       uuid.NewString(),
		ToolName: toolName,
		Source:   contracts.SourceAgent,
		engine:   eng,
	}
}

func (e *Enforcer) record(v *contracts.Verdict) {
	e.mu.Lock()
	e.verdicts = append(e.verdicts, v)
	e.mu.Unlock()
	if e.OnVerdict != nil {
		e.OnVerdict(v, e.ToolName)
	}
}

// Call evaluates fn's arguments and executes fn when the verdict permits.
// It returns *ToolBlockedError on BLOCK and *ToolChallengedError on an
// unapproved CHALLENGE.
func (e *Enforcer) Call(ctx context.Context, fn ToolFunc, args []any, kwargs map[string]any) (any, error) {
	proposal := BuildProposal(e.ToolName, args, kwargs, e.Source, e.SessionIntent)
	verdict, err := e.engine.Evaluate(ctx, proposal)
	if err != nil {
		return nil, err
	}
	e.record(verdict)
	summary := summarizeArgs(args, kwargs)

	switch verdict.Decision {
	case contracts.DecisionBlock:
		e.mu.Lock()
		e.blockedCount++
		e.mu.Unlock()
		return nil, &ToolBlockedError{Verdict: verdict, ToolName: e.ToolName, ArgsSummary: summary}
	case contracts.DecisionChallenge:
		e.mu.Lock()
		e.challengedCount++
		e.mu.Unlock()
		approved := false
		if e.OnChallenge != nil {
			approved = e.OnChallenge(verdict, e.ToolName, args, kwargs)
		}
		if !approved {
			return nil, &ToolChallengedError{Verdict: verdict, ToolName: e.ToolName, ArgsSummary: summary}
		}
	}

	e.mu.Lock()
	e.allowedCount++
	e.mu.Unlock()
	return fn(ctx, args, kwargs)
}

// EvaluateOnly runs the pipeline on text without executing anything.
// Useful for pre-flight checks.
func (e *Enforcer) EvaluateOnly(ctx context.Context, text string) (*contracts.Verdict, error) {
	proposal := &contracts.Proposal{
		Text:          text,
		ToolName:      e.ToolName,
		Source:        e.Source,
		SessionIntent: e.SessionIntent,
	}
	verdict, err := e.engine.Evaluate(ctx, proposal)
	if err != nil {
		return nil, err
	}
	e.record(verdict)
	return verdict, nil
}

// LastVerdict returns the most recent verdict, or nil before the first
// evaluation.
func (e *Enforcer) LastVerdict() *contracts.Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.verdicts) == 0 {
		return nil
	}
	return e.verdicts[len(e.verdicts)-1]
}

// TotalEvaluations returns how many verdicts this enforcer produced.
func (e *Enforcer) TotalEvaluations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.verdicts)
}

// Counts returns the allowed, challenged, and blocked tallies.
func (e *Enforcer) Counts() (allowed, challenged, blocked int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allowedCount, e.challengedCount, e.blockedCount
}

// GuardOption configures Guard and GuardRegistry wrappers.
type GuardOption func(*Enforcer)

// WithSource sets the proposal source for guarded calls.
func WithSource(source contracts.Source) GuardOption {
	return func(e *Enforcer) { e.Source = source }
}

// WithSessionIntent sets the declared session intent for guarded calls.
func WithSessionIntent(intent string) GuardOption {
	return func(e *Enforcer) { e.SessionIntent = intent }
}

// WithChallengeHandler sets the CHALLENGE approval hook.
func WithChallengeHandler(h ChallengeHandler) GuardOption {
	return func(e *Enforcer) { e.OnChallenge = h }
}

// WithVerdictCallback sets the telemetry hook invoked after every
// evaluation.
func WithVerdictCallback(cb VerdictCallback) GuardOption {
	return func(e *Enforcer) { e.OnVerdict = cb }
}

// Guard wraps a single tool function with CORD enforcement.
func Guard(eng *engine.Engine, toolName string, fn ToolFunc, opts ...GuardOption) ToolFunc {
	enforcer := NewEnforcer(eng, toolName)
	for _, opt := range opts {
		opt(enforcer)
	}
	return func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return enforcer.Call(ctx, fn, args, kwargs)
	}
}

// GuardRegistry wraps every tool in a registry. nameMap overrides the
// CORD tool name for registry keys that don't match a tool class
// (e.g. {"run_cmd": "exec"}).
func GuardRegistry(eng *engine.Engine, tools map[string]ToolFunc, nameMap map[string]string, opts ...GuardOption) map[string]ToolFunc {
	guarded := make(map[string]ToolFunc, len(tools))
	for key, fn := range tools {
		name := key
		if mapped, ok := nameMap[key]; ok {
			name = mapped
		}
		guarded[key] = Guard(eng, name, fn, opts...)
	}
	return guarded
}
