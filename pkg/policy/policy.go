// Package policy holds the CORD policy tables: dimension weights, decision
// thresholds, detection regexes, verb and keyword lists, tool risk tiers,
// and action-type classification hints.
//
// Every keyword list whose false-positive cost matters is compiled into a
// word-boundary alternation at init. Substring containment is never used for
// verbs: "block" must not trigger "lock", "performance" must not trigger "rm".
package policy

import (
	"regexp"
	"strings"
)

// Weights maps each dimension to its scoring weight. Dimensions absent from
// the map weigh 1.
var Weights = map[string]float64{
	"long_term_alignment":  3,
	"moral_check":          5,
	"truth_check":          2,
	"consequence_analysis": 3,
	"sustainability_check": 2,
	"financial_risk":       3,
	"security_check":       4,
	"drift_check":          2,
	"evaluation_framework": 3,
	"temperament_check":    1,
	"identity_check":       1,

	// Security sub-dimensions.
	"injection":       4,
	"exfil":           4,
	"privilege":       4,
	"irreversibility": 4,
	"intent_drift":    3,
	"anomaly":         2,

	"prompt_injection": 5,
	"pii_leakage":      4,
	"rate_anomaly":     3,
	"tool_risk":        1,
}

// Thresholds are the composite-score boundaries for decision mapping.
// Block is tested before Challenge, so with the default Challenge == Block
// the CHALLENGE decision is reachable only in reconfigured deployments.
type Thresholds struct {
	Allow     float64
	Contain   float64
	Challenge float64
	Block     float64
}

// DefaultThresholds returns the stock decision boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Allow: 3, Contain: 5, Challenge: 7, Block: 7}
}

// Security detection patterns.
var (
	InjectionPattern = regexp.MustCompile(`(?i)(<<|\{\{|\}\}\s*--|;\s*--|` +
		`\bunion\b|\bdrop\b|\binsert\b|\bexec\b|\bshutdown\b|` +
		`\brm\s+-rf\b|curl\s+https?:|` +
		`\beval\b|\bimport\s+os\b|\bsubprocess\b|` +
		`__import__|os\.system|os\.popen)`)

	ExfilPattern = regexp.MustCompile(`(?i)(upload|exfil|curl\s+https?:|wget\s+https?:|scp\s|nc\s|` +
		`requests\.post|urllib|httpx\.post|` +
		`send.*to.*server|transmit|beacon)`)

	SecretsPattern = regexp.MustCompile(`(?i)(api[_\- ]?keys?|tokens?|passwords?|secrets?\b|aws_secret|` +
		`authorization|credentials?|private[_\- ]?keys?|` +
		`ssh[_\- ]?keys?|\.env\b|keychain|passphrase|` +
		`system\s+prompts?)`)
)

// HighImpactVerbs are actions that raise irreversibility risk.
var HighImpactVerbs = []string{
	"delete", "drop", "shutdown", "format", "wipe",
	"disable", "lock", "kill", "terminate", "overwrite",
	"purge", "destroy", "truncate", "revoke", "erase",
	"rm", "remove", "uninstall",
}

// HighImpactVerbsPattern matches any high-impact verb at word boundaries.
var HighImpactVerbsPattern = regexp.MustCompile(
	`(?i)\b(` + strings.Join(HighImpactVerbs, "|") + `)\b`)

// AllowlistKeywords are safety signals that reduce irreversibility scoring.
var AllowlistKeywords = []string{
	"read-only", "preview", "dry-run", "simulate", "list",
	"status", "check", "verify", "inspect", "view",
	"describe", "explain", "show", "query", "search",
}

// AllowlistKeywordsPattern matches any allowlist keyword at word boundaries.
var AllowlistKeywordsPattern = regexp.MustCompile(
	`(?i)\b(` + strings.Join(AllowlistKeywords, "|") + `)\b`)

// MoralBlockPattern covers the hard prohibitions: fraud, coercion,
// impersonation, and behavioral extortion phrased without the keyword.
var MoralBlockPattern = regexp.MustCompile(`(?i)(steal|fraud|blackmail|extort|coerce|` +
	`impersonate|forge|counterfeit|phish|` +
	`exploit\s+vuln|hack\s+into|breach\s+security|` +
	`harm\s+\w+|threaten|deceive\s+\w+|manipulate\s+\w+|` +
	`pretend\s+to\s+be\s+(a\s+)?human|` +
	`as\s+if\s+i\s+am\b|as\s+if\s+you\s+are\b|` +
	`pose\s+as|masquerade\s+as|` +
	`the\s+human\s+owner|acting\s+as\s+the\s+human|` +
	`unless\s+(they|you|he|she|we|i)\s+(pay|comply|agree|cooperate|transfer)|` +
	`compromising\s+(photos?|images?|videos?|materials?|info|information|data|documents?|evidence)|` +
	`(leak|release|expose|publish|send)\s+.{0,30}(unless|or\s+else|if\s+not))`)

// IdentityViolationPattern covers non-contiguous identity violations.
var IdentityViolationPattern = regexp.MustCompile(`(?i)(pretend\s+to\s+be\s+(a\s+)?human|` +
	`as\s+if\s+i\s+am\b|as\s+if\s+you\s+are\b|` +
	`\bimpersonate\b|claim\s+to\s+be|` +
	`pose\s+as|masquerade\s+as|` +
	`the\s+human\s+owner|acting\s+as\s+the\s+human|` +
	`respond.*as.*human|present.*as.*human)`)

// FinancialRiskPattern flags risk-seeking financial language.
var FinancialRiskPattern = regexp.MustCompile(`(?i)(transfer\s+funds|wire\s+money|invest\s+all|` +
	`leverage|margin\s+call|high[_-]?risk|` +
	`gamble|bet\s+on|speculate|all[_-]?in|` +
	`borrow|loan|credit\s+card|overdraft)`)

// PromptInjectionPattern detects hostile instructions hidden in data the
// agent is asked to process. The \s* and filler-word allowances defeat
// word-splitting attacks that survive normalization.
var PromptInjectionPattern = regexp.MustCompile(`(?is)(` +
	`ignore\s*(?:\w+\s+){0,3}instructions?|` +
	`disregard\s*(?:\w+\s+){0,3}(instructions?|rules?|guidelines?|constraints?)|` +
	`forget\s*(everything|your\s*instructions?|what\s*you\s*were\s*told)|` +
	`new\s*instructions?\s*:|override\s*:|system\s*override|` +
	`you\s*are\s*now|from\s*now\s*on\s*you\s*(are|will|must)|act\s*as\s*(a|an|if\s*you\s*are)|` +
	`your\s*new\s*(role|purpose|mission|goal|task)\s*is|` +
	`pretend\s*(you\s*have\s*no|you\s*don.t\s*have|there\s*are\s*no)\s*(rules?|constraints?|limits?)|` +
	`jailbreak|DAN\s*mode|developer\s*mode|god\s*mode|unrestricted\s*mode|` +
	`<\|.*?\|>|<system>|</system>|<\|im_start\||<\|im_end\||` +
	`\[INST\]|\[/INST\]|\[SYSTEM\]|###\s*system|###\s*instruction|` +
	`ignoreprevious\w*instruct|disregardall\w*|forgetinstruct\w*|` +
	`youarenow\w*|fromnowon\w*|` +
	`the\s*(following|above)\s*(text|content|data)\s*(is|contains)\s*(your|new)\s*instructions?|` +
	`translate\s*(this|the\s*following)\s*(and|then)\s*(also|additionally)\s*(do|execute|run)|` +
	`after\s*(reading|processing|translating|summarizing).*?(do|execute|send|call)` +
	`)`)

// PIIPatterns detect personally identifiable information by type.
// Iterated via PIIOrder so scoring and redaction are deterministic.
var PIIPatterns = map[string]*regexp.Regexp{
	"ssn": regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9}\b`),
	"credit_card": regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|` +
		`5[1-5][0-9]{14}|` +
		`3[47][0-9]{13}|` +
		`3(?:0[0-5]|[68][0-9])[0-9]{11}|` +
		`6(?:011|5[0-9]{2})[0-9]{12})\b`),
	"email": regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	"phone": regexp.MustCompile(`\b(\+1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	"ip_address": regexp.MustCompile(
		`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`),
}

// PIIOrder fixes the scan order over PIIPatterns.
var PIIOrder = []string{"ssn", "credit_card", "email", "phone", "ip_address"}

// PIIFieldNamesPattern matches PII field names in payloads (keys, columns).
var PIIFieldNamesPattern = regexp.MustCompile(`(?i)\b(social_security|ssn|credit_card|card_number|cvv|` +
	`date_of_birth|dob|passport|drivers_license|` +
	`medical_record|health_record|diagnosis|prescription|` +
	`bank_account|routing_number|tax_id|ein|itin)\b`)

// ToolRiskTiers assigns a baseline risk score per tool class.
var ToolRiskTiers = map[string]float64{
	"exec":    3.0,
	"write":   1.5,
	"edit":    1.0,
	"browser": 2.0,
	"network": 2.5,
	"read":    0.0,
	"query":   0.0,
	"message": 1.5,
}

// ActionTypeHint pairs an action type with its classification regex.
type ActionTypeHint struct {
	Type    string
	Pattern *regexp.Regexp
}

// ActionTypeHints classify free-text proposals. First match wins, in order.
var ActionTypeHints = []ActionTypeHint{
	{"command", regexp.MustCompile(`(?i)(^(git|npm|pip|docker|kubectl|sudo|apt|brew|make)\s)`)},
	{"file_op", regexp.MustCompile(`(?i)(write|read|edit|create|delete|move|copy|rename)\s+(file|dir|folder|path)`)},
	{"network", regexp.MustCompile(`(?i)(curl|wget|fetch|request|api\s+call|http|upload|download)`)},
	{"financial", regexp.MustCompile(`(?i)(buy|sell|pay|transfer|invest|trade|purchase|invoice)`)},
	{"communication", regexp.MustCompile(`(?i)(send|email|message|post|publish|tweet|reply|comment)`)},
	{"system", regexp.MustCompile(`(?i)(install|uninstall|configure|chmod|chown|mount|systemctl|service)`)},
}

// ElevatedGrantMarkers identify grants that confer elevated privilege.
var ElevatedGrantMarkers = []string{"admin", "sudo", "root", "write:system"}

// IntentStopWords are removed before intent/proposal token overlap.
var IntentStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "to": {}, "and": {}, "or": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "of": {}, "is": {}, "it": {}, "do": {},
}

// IntentSynonyms expands declared-intent tokens before overlap matching.
var IntentSynonyms = map[string][]string{
	"update":  {"edit", "modify", "change", "tweak", "revise", "fix", "patch", "write"},
	"publish": {"push", "deploy", "release", "ship", "upload"},
	"site":    {"html", "page", "website", "web", "contact", "index", "manifesto", "architecture"},
	"api":     {"api", "artificial", "persistent", "intelligence"},
	"build":   {"compile", "make", "create", "construct"},
	"delete":  {"remove", "drop", "purge", "clean", "wipe", "rm"},
}

// Weight returns the configured weight for a dimension, defaulting to 1.
func Weight(dimension string) float64 {
	if w, ok := Weights[dimension]; ok {
		return w
	}
	return 1
}
