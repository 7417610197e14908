// Package scoring turns check results into a composite score and a decision.
package scoring

import (
	"github.com/Mindburn-Labs/cord/pkg/contracts"
	"github.com/Mindburn-Labs/cord/pkg/policy"
)

// Composite computes the weighted sum of all check scores. A nil weight
// table means the default policy weights.
func Composite(results []contracts.CheckResult, weights map[string]float64) float64 {
	var total float64
	for _, r := range results {
		total += r.Score * weightFor(weights, r.Dimension)
	}
	return total
}

func weightFor(weights map[string]float64, dimension string) float64 {
	if weights == nil {
		return policy.Weight(dimension)
	}
	if w, ok := weights[dimension]; ok {
		return w
	}
	return 1
}

// Anomaly amplifies the score when several dimensions flag high risk at
// once. Correlated signals mean more than their sum.
func Anomaly(results []contracts.CheckResult) float64 {
	high := 0
	for _, r := range results {
		if r.Score >= 2 {
			high++
		}
	}
	switch {
	case high >= 4:
		return 3.0
	case high >= 3:
		return 2.0
	case high >= 2:
		return 1.0
	}
	return 0.0
}

// HasHardBlock reports whether any result demands an immediate BLOCK.
func HasHardBlock(results []contracts.CheckResult) bool {
	for _, r := range results {
		if r.HardBlock {
			return true
		}
	}
	return false
}

// Decide maps a composite score to a decision. Hard blocks dominate; the
// block threshold is tested before challenge, so equal thresholds resolve
// to BLOCK.
func Decide(score float64, results []contracts.CheckResult, t policy.Thresholds) contracts.Decision {
	if HasHardBlock(results) {
		return contracts.DecisionBlock
	}
	switch {
	case score >= t.Block:
		return contracts.DecisionBlock
	case score >= t.Challenge:
		return contracts.DecisionChallenge
	case score >= t.Contain:
		return contracts.DecisionContain
	}
	return contracts.DecisionAllow
}

// CollectReasons gathers the reasons of every flagged result, in check order.
func CollectReasons(results []contracts.CheckResult) []string {
	var reasons []string
	for _, r := range results {
		if r.Flagged() {
			reasons = append(reasons, r.Reasons...)
		}
	}
	return reasons
}

// CollectViolations gathers article references from flagged results,
// deduplicated, first-seen order.
func CollectViolations(results []contracts.CheckResult) []string {
	var violations []string
	seen := map[string]struct{}{}
	for _, r := range results {
		if !r.Flagged() {
			continue
		}
		if _, ok := seen[r.Article]; ok {
			continue
		}
		seen[r.Article] = struct{}{}
		violations = append(violations, r.Article)
	}
	return violations
}
