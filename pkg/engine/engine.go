// Package engine orchestrates the CORD evaluation pipeline:
//
//	1. Normalize    — sanitize text, classify the action
//	2. Authenticate — verify an intent lock exists
//	3. Scope check  — targets within allowed boundaries?
//	4. Intent match — proposal aligned with the declared intent?
//	5. Rate check   — burst detection over the audit log
//	6. Checks       — the fourteen risk dimensions, plus custom rules
//	7. Score        — weighted composite with anomaly amplification
//	8. Audit        — append to the hash-chained log
//	9. Verdict      — structured result to the caller
//
// A risky proposal is not an error: every proposal yields a verdict.
// Evaluate returns an error only when the pipeline itself fails, which
// means the audit log could not be written.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/Mindburn-Labs/cord/pkg/audit"
	"github.com/Mindburn-Labs/cord/pkg/checks"
	"github.com/Mindburn-Labs/cord/pkg/config"
	"github.com/Mindburn-Labs/cord/pkg/contracts"
	"github.com/Mindburn-Labs/cord/pkg/intentlock"
	"github.com/Mindburn-Labs/cord/pkg/normalizer"
	"github.com/Mindburn-Labs/cord/pkg/observability"
	"github.com/Mindburn-Labs/cord/pkg/policy"
	"github.com/Mindburn-Labs/cord/pkg/rules"
	"github.com/Mindburn-Labs/cord/pkg/scoring"
	"github.com/Mindburn-Labs/cord/pkg/store"
)

// Rate limiting is deliberately generous: active legitimate sessions run
// 10-20 proposals a minute. Flag above 30/min, hard block above 60/min.
const (
	rateWindow   = 60 * time.Second
	rateMaxCount = 40
	rateFlagPer  = 30.0
	rateBlockPer = 60.0
)

// Engine evaluates proposals against the full CORD pipeline.
type Engine struct {
	log         *audit.Log
	lockPath    string
	repoRoot    string
	thresholds  policy.Thresholds
	weights     map[string]float64
	ruleSet     *rules.Set
	history     *store.History
	instruments *observability.Instruments
	logger      *slog.Logger
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithRepoRoot sets the root directory for path scope checks.
func WithRepoRoot(root string) Option {
	return func(e *Engine) { e.repoRoot = root }
}

// WithLogger sets the engine's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithThresholds overrides the decision thresholds.
func WithThresholds(t policy.Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// New builds an engine from configuration. A policy file, when configured,
// supplies weight and threshold overrides plus custom rules; a history
// database, when configured, mirrors verdicts for fast statistics.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:         audit.New(cfg.LogPath, audit.RedactionLevel(cfg.Redaction)),
		lockPath:    cfg.LockPath,
		thresholds:  policy.DefaultThresholds(),
		ruleSet:     &rules.Set{},
		instruments: observability.New(),
		logger:      slog.Default(),
	}

	if cfg.PolicyFile != "" {
		file, err := policy.LoadFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("engine: policy file: %w", err)
		}
		e.weights, e.thresholds = file.Apply()
		set, err := rules.Compile(file.Rules)
		if err != nil {
			return nil, fmt.Errorf("engine: policy file: %w", err)
		}
		e.ruleSet = set
	}

	if cfg.HistoryDB != "" {
		history, err := store.Open(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("engine: history db: %w", err)
		}
		e.history = history
	}

	if wd, err := os.Getwd(); err == nil {
		e.repoRoot = wd
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the optional history database.
func (e *Engine) Close() error {
	if e.history != nil {
		return e.history.Close()
	}
	return nil
}

// AuditLog exposes the engine's audit log for verification and reads.
func (e *Engine) AuditLog() *audit.Log { return e.log }

// LockPath returns the intent lock location the engine authenticates
// against.
func (e *Engine) LockPath() string { return e.lockPath }

// History returns the verdict index, or nil when not configured.
func (e *Engine) History() *store.History { return e.history }

// ClassifyAction infers an action type from proposal text. First matching
// hint wins; unmatched text stays unknown.
func ClassifyAction(text string) contracts.ActionType {
	for _, hint := range policy.ActionTypeHints {
		if hint.Pattern.MatchString(text) {
			return contracts.ActionType(hint.Type)
		}
	}
	return contracts.ActionUnknown
}

func (e *Engine) normalize(p *contracts.Proposal) {
	p.EnsureDefaults()
	p.Text = strings.TrimSpace(p.Text)
	if p.ActionType == "" || p.ActionType == contracts.ActionUnknown {
		p.ActionType = ClassifyAction(p.Text)
	}
	p.Text, p.RawInput = normalizer.NormalizeProposal(p.Text, p.RawInput)
}

func authenticate(lock *intentlock.Lock) *contracts.CheckResult {
	if lock != nil {
		return nil
	}
	return &contracts.CheckResult{
		Dimension: "authentication",
		Article:   "CORD — Intent Lock",
		Score:     2.0,
		Reasons:   []string{"No intent lock set — session purpose undefined, operating in restricted mode"},
	}
}

func (e *Engine) scopeCheck(p *contracts.Proposal, lock *intentlock.Lock) *contracts.CheckResult {
	if lock == nil {
		return nil
	}

	var score float64
	var reasons []string

	if p.TargetPath != "" && !lock.Scope.PathAllowed(p.TargetPath, e.repoRoot) {
		score += 2.0
		reasons = append(reasons, fmt.Sprintf("Path '%s' is outside allowed scope", p.TargetPath))
	}
	if p.NetworkTarget != "" && !lock.Scope.NetworkAllowed(p.NetworkTarget) {
		score += 2.0
		reasons = append(reasons, fmt.Sprintf("Network target '%s' is not in allowlist", p.NetworkTarget))
	}
	// Command scope only applies to proposals that look like CLI commands.
	if p.Text != "" && (p.ActionType == contracts.ActionCommand || p.ActionType == contracts.ActionSystem) {
		if !lock.Scope.CommandAllowed(p.Text) {
			score += 1.0
			reasons = append(reasons, "Command not in allowed command patterns")
		}
	}

	if score == 0 {
		return nil
	}
	return &contracts.CheckResult{
		Dimension: "scope_check",
		Article:   "CORD — Scope Enforcement",
		Score:     score,
		Reasons:   reasons,
		HardBlock: score >= 4.0,
	}
}

func intentMatch(p *contracts.Proposal, lock *intentlock.Lock) *contracts.CheckResult {
	if lock == nil || lock.IntentAligned(p.Text, p.SessionIntent) {
		return nil
	}
	return &contracts.CheckResult{
		Dimension: "intent_drift",
		Article:   "CORD — Intent Alignment",
		Score:     1.5,
		Reasons: []string{
			fmt.Sprintf("Proposal may drift from declared intent: '%s'", lock.IntentText),
			"No meaningful overlap between proposal and session intent",
		},
	}
}

func (e *Engine) rateCheck() *contracts.CheckResult {
	exceeded, count, perMin := e.log.RateWindow(rateWindow, rateMaxCount)
	if perMin <= rateFlagPer && !exceeded {
		return nil
	}
	score := 2.0
	if perMin > rateFlagPer {
		score = math.Min(2.0+perMin/rateFlagPer, 5.0)
	}
	return &contracts.CheckResult{
		Dimension: "rate_anomaly",
		Article:   "Article VII — Security & Privacy Doctrine",
		Score:     score,
		Reasons: []string{fmt.Sprintf(
			"Rate anomaly: %d proposals in last 60s (%v/min) — possible abuse loop or runaway agent",
			count, perMin)},
		HardBlock: exceeded && perMin > rateBlockPer,
	}
}

func suggestAlternatives(p *contracts.Proposal, results []contracts.CheckResult) []string {
	var alternatives []string
	text := strings.ToLower(p.Text)

	reasonContains := func(sub string, fold bool) bool {
		for _, r := range results {
			for _, reason := range r.Reasons {
				if fold {
					reason = strings.ToLower(reason)
				}
				if strings.Contains(reason, sub) {
					return true
				}
			}
		}
		return false
	}

	if reasonContains("irreversi", true) {
		alternatives = append(alternatives, "Run with --dry-run or --preview first to assess impact")
	}
	if reasonContains("exfil", false) {
		alternatives = append(alternatives, "Review data before sending — minimize what leaves the system")
	}
	if reasonContains("financial", true) {
		alternatives = append(alternatives, "Perform a structured ROI analysis before committing funds")
	}
	if reasonContains("scope", true) {
		alternatives = append(alternatives, "Update intent lock to expand scope if this action is intentional")
	}
	for _, v := range []string{"rm -rf", "delete", "wipe", "purge"} {
		if strings.Contains(text, v) {
			alternatives = append(alternatives, "Use a staging/trash approach instead of permanent deletion")
			break
		}
	}
	if len(alternatives) == 0 {
		alternatives = append(alternatives, "No specific alternative needed — action appears within bounds")
	}
	return alternatives
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Evaluate runs the full pipeline on a proposal. The returned error is
// infrastructure failure only (audit write); every policy outcome,
// including BLOCK, is a verdict.
func (e *Engine) Evaluate(ctx context.Context, p *contracts.Proposal) (*contracts.Verdict, error) {
	ctx, span := e.instruments.StartEvaluation(ctx)
	defer span.End()
	started := time.Now()

	if p == nil {
		p = &contracts.Proposal{}
	}
	e.normalize(p)

	lock := intentlock.Load(e.lockPath)

	results := checks.Run(p)
	results = append(results, e.ruleSet.Evaluate(p)...)
	if r := authenticate(lock); r != nil {
		results = append(results, *r)
	}
	if r := e.scopeCheck(p, lock); r != nil {
		results = append(results, *r)
	}
	if r := intentMatch(p, lock); r != nil {
		results = append(results, *r)
	}
	if r := e.rateCheck(); r != nil {
		results = append(results, *r)
	}

	base := scoring.Composite(results, e.weights)
	anomaly := scoring.Anomaly(results)
	total := base + anomaly
	decision := scoring.Decide(total, results, e.thresholds)

	reasons := scoring.CollectReasons(results)
	violations := scoring.CollectViolations(results)
	alternatives := suggestAlternatives(p, results)

	riskProfile := map[string]float64{}
	for _, r := range results {
		if r.Score > 0 {
			riskProfile[r.Dimension] = r.Score
		}
	}
	if anomaly > 0 {
		riskProfile["anomaly_amplification"] = anomaly
	}

	logID, err := e.log.Append(map[string]any{
		"decision":       string(decision),
		"score":          round2(total),
		"risk_profile":   riskProfile,
		"reasons":        reasons,
		"violations":     violations,
		"proposal":       p.Text,
		"action_type":    string(p.ActionType),
		"target_path":    p.TargetPath,
		"network_target": p.NetworkTarget,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: audit append: %w", err)
	}

	verdict := &contracts.Verdict{
		Decision:          decision,
		Score:             round2(total),
		RiskProfile:       riskProfile,
		Reasons:           reasons,
		Alternatives:      alternatives,
		ArticleViolations: violations,
		LogID:             logID,
	}

	if e.history != nil {
		if err := e.history.Record(verdict, p.ActionType); err != nil {
			e.logger.Warn("history record failed", "error", err)
		}
	}

	e.instruments.RecordDecision(ctx, string(decision), time.Since(started).Seconds())
	if decision == contracts.DecisionBlock {
		e.logger.Warn("proposal blocked", "score", verdict.Score, "violations", violations)
	} else {
		e.logger.Debug("proposal evaluated", "decision", string(decision), "score", verdict.Score)
	}

	return verdict, nil
}
