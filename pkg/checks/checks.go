// Package checks implements the fourteen risk dimension checks. Each check
// inspects a normalized proposal and returns one CheckResult; a hard block
// from any check bypasses threshold scoring entirely.
package checks

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/cord/pkg/contracts"
	"github.com/Mindburn-Labs/cord/pkg/policy"
)

// Check evaluates one risk dimension of a proposal.
type Check func(p *contracts.Proposal) contracts.CheckResult

// All lists every dimension check in its fixed execution order.
var All = []Check{
	PrimeDirective,
	MoralConstraints,
	TruthIntegrity,
	ConsequenceAnalysis,
	Sustainability,
	FinancialRisk,
	Security,
	Drift,
	EvaluationFramework,
	Temperament,
	Identity,
	PromptInjection,
	PIILeakage,
	ToolRisk,
}

// Run executes every check against a proposal, in order.
func Run(p *contracts.Proposal) []contracts.CheckResult {
	results := make([]contracts.CheckResult, 0, len(All))
	for _, check := range All {
		results = append(results, check(p))
	}
	return results
}

var shortTermSignals = []string{
	"quick fix", "hack around", "skip test", "ignore warning",
	"temporary workaround", "just ship it", "no time to",
	"deal with later", "tech debt", "shortcut",
}

// PrimeDirective flags actions that trade long-term interests for
// short-term gain.
func PrimeDirective(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string
	text := strings.ToLower(p.Text)

	for _, signal := range shortTermSignals {
		if strings.Contains(text, signal) {
			score += 1.0
			reasons = append(reasons, fmt.Sprintf(
				"Short-term signal detected: '%s' — may conflict with long-term interests", signal))
		}
	}
	if p.ContextBool("bypasses_review") {
		score += 1.5
		reasons = append(reasons, "Action bypasses review process — threatens long-term quality")
	}

	return contracts.CheckResult{
		Dimension: "long_term_alignment",
		Article:   "Article I — Prime Directive",
		Score:     min(score, 3.0),
		Reasons:   reasons,
	}
}

var deceptionSignals = []string{"hide from", "cover up", "mislead", "fake", "fabricate"}

// MoralConstraints enforces the hard prohibitions: fraud, harm, coercion,
// impersonation. A pattern hit blocks immediately.
func MoralConstraints(p *contracts.Proposal) contracts.CheckResult {
	if policy.MoralBlockPattern.MatchString(p.Text) {
		return contracts.CheckResult{
			Dimension: "moral_check",
			Article:   "Article II — Moral Constraints",
			Score:     5.0,
			Reasons:   []string{"Moral violation detected — Article II prohibits this action"},
			HardBlock: true,
		}
	}

	var score float64
	var reasons []string
	lower := strings.ToLower(p.Text)
	for _, signal := range deceptionSignals {
		if strings.Contains(lower, signal) {
			score += 2.0
			reasons = append(reasons, fmt.Sprintf("Deception signal: '%s'", signal))
		}
	}

	return contracts.CheckResult{
		Dimension: "moral_check",
		Article:   "Article II — Moral Constraints",
		Score:     min(score, 5.0),
		Reasons:   reasons,
		HardBlock: score >= 4.0,
	}
}

var fabricationSignals = []string{
	"make up", "invent data", "fake results", "fabricate",
	"hallucinate", "pretend", "assume without",
}

// TruthIntegrity flags fabricated claims and reliance on unverified data.
func TruthIntegrity(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string
	text := strings.ToLower(p.Text)

	for _, signal := range fabricationSignals {
		if strings.Contains(text, signal) {
			score += 2.0
			reasons = append(reasons, fmt.Sprintf(
				"Truth violation: '%s' — manufactured certainty is deception", signal))
		}
	}
	if p.ContextBool("unverified_data") {
		score += 1.0
		reasons = append(reasons, "Action relies on unverified data — Article III requires verification")
	}

	return contracts.CheckResult{
		Dimension: "truth_check",
		Article:   "Article III — Truth & Intellectual Integrity",
		Score:     min(score, 3.0),
		Reasons:   reasons,
	}
}

// ConsequenceAnalysis asks whether second-order consequences were evaluated
// before a high-impact action.
func ConsequenceAnalysis(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string
	text := strings.ToLower(p.Text)

	highImpact := policy.HighImpactVerbsPattern.MatchString(text)
	if highImpact && !p.ContextBool("consequence_analysis_done") {
		score += 2.0
		reasons = append(reasons, "High-impact action without documented consequence analysis")
	}
	if p.ContextBool("no_rollback_plan") && highImpact {
		score += 1.0
		reasons = append(reasons, "No rollback plan for irreversible action")
	}

	return contracts.CheckResult{
		Dimension: "consequence_analysis",
		Article:   "Article IV — Proactive Reasoning",
		Score:     min(score, 3.0),
		Reasons:   reasons,
	}
}

// Sustainability respects the principal's stated capacity limits.
func Sustainability(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string

	if p.ContextBool("exceeds_capacity") {
		score += 2.0
		reasons = append(reasons, "Action exceeds stated capacity limits — growth without sustainability is destruction")
	}
	if p.ContextBool("burnout_risk") {
		score += 1.5
		reasons = append(reasons, "Burnout risk flagged — CORD builds people up, never burns them out")
	}

	return contracts.CheckResult{
		Dimension: "sustainability_check",
		Article:   "Article V — Human Optimization Mandate",
		Score:     min(score, 3.0),
		Reasons:   reasons,
	}
}

// FinancialRisk covers ROI evaluation, solvency protection, and impulsive
// spending detection.
func FinancialRisk(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string

	if policy.FinancialRiskPattern.MatchString(p.Text) {
		score += 2.0
		reasons = append(reasons, "Financial risk pattern detected — requires structured assessment")
	}

	amount := p.ContextFloat("financial_amount")
	if amount > 0 {
		if !p.ContextBool("roi_evaluated") {
			score += 1.5
			reasons = append(reasons, fmt.Sprintf("Financial action ($%v) without ROI evaluation", amount))
		}
		if p.ContextBool("impulsive") {
			score += 2.0
			reasons = append(reasons, "Impulsive financial behavior detected — every dollar is a decision")
		}
	}

	return contracts.CheckResult{
		Dimension: "financial_risk",
		Article:   "Article VI — Financial Stewardship Protocol",
		Score:     min(score, 4.0),
		Reasons:   reasons,
	}
}

// Security detects injection, exfiltration, secrets exposure, privilege
// escalation, and irreversibility. A score of 4 or more is a hard block.
func Security(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string
	text := p.Text

	if policy.InjectionPattern.MatchString(text) {
		score += 2.0
		reasons = append(reasons, "Injection risk — hostile pattern detected")
	}
	if policy.ExfilPattern.MatchString(text) {
		score += 2.0
		reasons = append(reasons, "Data exfiltration risk — outbound data transfer detected")
	}
	if policy.SecretsPattern.MatchString(text) {
		score += 1.5
		reasons = append(reasons, "Secrets exposure risk — sensitive credential pattern detected")
	}

	// Only genuinely elevated grants count, not normal write scopes.
	dangerous := policy.HighImpactVerbsPattern.MatchString(text)
	elevated := false
	for _, g := range p.Grants {
		lower := strings.ToLower(g)
		for _, marker := range policy.ElevatedGrantMarkers {
			if strings.Contains(lower, marker) {
				elevated = true
			}
		}
	}
	switch {
	case dangerous && elevated:
		score += 2.0
		reasons = append(reasons, "Privilege escalation risk — high-impact verb with elevated grants")
	case dangerous:
		score += 1.0
		reasons = append(reasons, "High-impact verb detected — requires caution")
	}

	if dangerous && !policy.AllowlistKeywordsPattern.MatchString(text) {
		score += 2.0
		reasons = append(reasons, "Irreversible action without safety indicators (dry-run, preview, etc.)")
	}

	hardBlock := score >= 4.0
	if hardBlock {
		reasons = append(reasons, "Security threat level critical — BLOCK enforced")
	}

	return contracts.CheckResult{
		Dimension: "security_check",
		Article:   "Article VII — Security & Privacy Doctrine",
		Score:     min(score, 5.0),
		Reasons:   reasons,
		HardBlock: hardBlock,
	}
}

var driftSignals = []string{
	"override constitution", "override protocols", "ignore rules",
	"bypass policy", "disable safety", "turn off checks",
	"skip validation", "modify core values", "change the rules",
}

// Drift blocks attempts to alter the engine's own rules. Core values are
// immutable; only capability adapts.
func Drift(p *contracts.Proposal) contracts.CheckResult {
	text := strings.ToLower(p.Text)
	for _, signal := range driftSignals {
		if strings.Contains(text, signal) {
			return contracts.CheckResult{
				Dimension: "drift_check",
				Article:   "Article VIII — Learning & Adaptation",
				Score:     3.0,
				Reasons: []string{fmt.Sprintf(
					"Protocol drift attempt: '%s' — Protocols I-III are immutable", signal)},
				HardBlock: true,
			}
		}
	}
	return contracts.CheckResult{
		Dimension: "drift_check",
		Article:   "Article VIII — Learning & Adaptation",
	}
}

// EvaluationFramework applies the structured-assessment gate to significant
// actions. A completed ROI evaluation implies the full assessment:
// alternatives compared, consequences weighed.
func EvaluationFramework(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string
	text := strings.ToLower(p.Text)

	financialSignificant := p.ContextFloat("financial_amount") >= 100
	significant := policy.HighImpactVerbsPattern.MatchString(text) ||
		p.ContextBool("significant_impact") ||
		financialSignificant

	roiDone := p.ContextBool("roi_evaluated")
	riskAssessed := p.ContextBool("risk_assessment_done") || roiDone
	alternativeConsidered := p.ContextBool("alternative_considered") || roiDone
	consequencesStated := p.ContextBool("consequences_stated") || roiDone

	if significant {
		if !riskAssessed {
			score += 1.0
			reasons = append(reasons, "Significant action without structured risk assessment (Art IX req 1)")
		}
		if !alternativeConsidered {
			score += 0.5
			reasons = append(reasons, "No alternative solution presented (Art IX req 2)")
		}
		if !consequencesStated {
			score += 0.5
			reasons = append(reasons, "Long-term consequences not documented (Art IX req 3)")
		}
	}

	return contracts.CheckResult{
		Dimension: "evaluation_framework",
		Article:   "Article IX — Command Evaluation Framework",
		Score:     min(score, 3.0),
		Reasons:   reasons,
	}
}

var escalationSignals = []string{
	"threaten", "ultimatum", "demand immediate", "or else",
	"final warning", "last chance",
}

// Temperament flags emotional escalation in the proposed response.
func Temperament(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string
	text := strings.ToLower(p.Text)

	for _, signal := range escalationSignals {
		if strings.Contains(text, signal) {
			score += 1.0
			reasons = append(reasons, fmt.Sprintf(
				"Emotional escalation detected: '%s' — respond with empathetic clarity", signal))
		}
	}

	return contracts.CheckResult{
		Dimension: "temperament_check",
		Article:   "Article X — Temperament",
		Score:     min(score, 2.0),
		Reasons:   reasons,
	}
}

// Identity keeps the agent in role: no pretense, no impersonation.
func Identity(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string

	if m := policy.IdentityViolationPattern.FindString(strings.ToLower(p.Text)); m != "" {
		score += 3.0
		reasons = append(reasons, fmt.Sprintf("Identity violation: '%s' — CORD knows what it is", m))
	}

	return contracts.CheckResult{
		Dimension: "identity_check",
		Article:   "Article XI — Identity",
		Score:     min(score, 3.0),
		Reasons:   reasons,
	}
}

var imperativeVerbs = []string{"ignore", "forget", "disregard", "override", "instead", "now do"}

// PromptInjection detects hostile instructions hidden in the proposal text
// or in raw external input. One pattern hit is a hard block.
func PromptInjection(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string

	targets := []string{p.Text}
	if p.RawInput != "" {
		targets = append(targets, p.RawInput)
	}
	for _, target := range targets {
		if m := policy.PromptInjectionPattern.FindString(target); m != "" {
			score += 4.0
			reasons = append(reasons, fmt.Sprintf(
				"Prompt injection attempt detected: '%s' — external data is trying to hijack agent behavior",
				truncate(m, 60)))
			break
		}
	}

	// External input with unusual command-like density is a soft signal.
	if p.Source == contracts.SourceExternal && score == 0 {
		lower := strings.ToLower(p.Text)
		hits := 0
		for _, v := range imperativeVerbs {
			if strings.Contains(lower, v) {
				hits++
			}
		}
		if hits >= 2 {
			score += 1.5
			reasons = append(reasons,
				"External input contains multiple imperative override signals — possible soft injection attempt")
		}
	}

	return contracts.CheckResult{
		Dimension: "prompt_injection",
		Article:   "Article VII — Security & Privacy Doctrine",
		Score:     min(score, 5.0),
		Reasons:   reasons,
		HardBlock: score >= 4.0,
	}
}

// PIILeakage detects personal data in outbound communications, file writes,
// and network calls before it leaves the system.
func PIILeakage(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string
	var found []string

	scanTarget := p.Text
	if p.RawInput != "" {
		scanTarget = p.Text + " " + p.RawInput
	}

	for _, piiType := range policy.PIIOrder {
		if policy.PIIPatterns[piiType].MatchString(scanTarget) {
			// Outbound email addresses are often intentional, so medium risk.
			weight := 2.0
			if piiType == "email" {
				weight = 1.0
			}
			score += weight
			found = append(found, piiType)
		}
	}

	if policy.PIIFieldNamesPattern.MatchString(scanTarget) {
		score += 1.5
		reasons = append(reasons, "PII field names detected in payload — data schema exposure risk")
	}

	if len(found) > 0 {
		reasons = append(reasons, fmt.Sprintf(
			"PII detected in proposal: %s — verify consent before transmitting",
			strings.Join(found, ", ")))
	}

	outbound := p.ActionType == contracts.ActionNetwork ||
		p.ActionType == contracts.ActionCommunication ||
		p.ActionType == contracts.ActionFileOp
	if score > 0 && outbound {
		score *= 1.5
		reasons = append(reasons,
			"PII detected in outbound action — transmission without redaction is a privacy violation")
	}

	return contracts.CheckResult{
		Dimension: "pii_leakage",
		Article:   "Article VII — Security & Privacy Doctrine",
		Score:     min(score, 5.0),
		Reasons:   reasons,
	}
}

// ToolRisk applies a baseline score from the tool's risk tier.
// exec > network > browser > message/write > edit > read.
func ToolRisk(p *contracts.Proposal) contracts.CheckResult {
	var score float64
	var reasons []string

	if p.ToolName != "" {
		name := strings.ToLower(p.ToolName)
		tier, ok := policy.ToolRiskTiers[name]
		if !ok {
			tier = 0.5
		}
		if tier > 0 {
			score = tier
			reasons = append(reasons, fmt.Sprintf(
				"Tool '%s' has elevated baseline risk (tier score: %v)", p.ToolName, tier))
		}
		if name == "exec" {
			for _, g := range p.Grants {
				if g == "shell" {
					score += 1.0
					reasons = append(reasons, "exec + shell grant — highest risk combination")
					break
				}
			}
		}
	}

	return contracts.CheckResult{
		Dimension: "tool_risk",
		Article:   "Article IX — Command Evaluation Framework",
		Score:     min(score, 4.0),
		Reasons:   reasons,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
