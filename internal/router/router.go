package router

import (
	"fmt"
	"strings"

	"github.com/vanta-core/vanta/internal/state"
)

// DeterminePath scores query against the six ordered rules in §4.1 and
// returns a routing decision. It never panics: any unexpected condition
// during feature extraction or scoring is recovered and converted into the
// same conservative fallback a caller sees for an empty query.
func DeterminePath(query string, ctx Context, cfg Config, prefs Preferences) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			decision = fallbackDecision()
		}
	}()

	if ctx.ActivationMode == state.ModeOff || strings.TrimSpace(query) == "" {
		return fallbackDecision()
	}

	features := extractFeatures(query, ctx.PriorTurnCount)
	featureMap := map[string]float64{
		"length":             float64(features.Length),
		"is_question":        features.IsQuestion,
		"is_imperative":      features.IsImperative,
		"creativity":         features.Creativity,
		"complexity":         features.Complexity,
		"time_sensitivity":   features.TimeSensitivity,
		"context_dependence": features.ContextDependence,
	}

	localMs, apiMs := estimateLatencies(ctx, cfg)

	parallelThreshold := cfg.ParallelThreshold
	if prefs.ParallelThreshold > 0 {
		parallelThreshold = prefs.ParallelThreshold
	}

	path, reasoning, confidence := applyRules(features, cfg, prefs, ctx, parallelThreshold)

	return Decision{
		Path:             path,
		Confidence:       clipConfidence(confidence),
		Reasoning:        reasoning,
		Features:         featureMap,
		EstimatedLocalMs: localMs,
		EstimatedAPIMs:   apiMs,
	}
}

// applyRules evaluates the ordered decision table; the first matching rule
// wins (§4.1).
func applyRules(f Features, cfg Config, prefs Preferences, ctx Context, parallelThreshold float64) (state.Path, string, float64) {
	if f.Length > cfg.ThresholdVeryLong || f.Creativity > cfg.CreativityAPIThreshold {
		dist := distanceAboveThreshold(float64(f.Length), float64(cfg.ThresholdVeryLong), f.Creativity, cfg.CreativityAPIThreshold)
		return state.PathAPI, "rule_2_long_or_creative", dist
	}

	if f.Length < cfg.ThresholdSimple && f.Complexity < cfg.ComplexityLocalThreshold {
		dist := distanceBelowThreshold(float64(cfg.ThresholdSimple)-float64(f.Length), cfg.ComplexityLocalThreshold-f.Complexity)
		return state.PathLocal, "rule_3_short_and_simple", dist
	}

	if f.TimeSensitivity > cfg.TimeSensitivityThreshold {
		bias := prefs.LocalBias
		if bias == 0 {
			bias = 1
		}
		return state.PathLocal, "rule_4_time_sensitive", 0.5 + 0.2*bias
	}

	if f.Complexity > parallelThreshold && ctx.ResourceBudgetAllowsParallel {
		return state.PathParallel, "rule_5_complex_parallel_budget", f.Complexity - parallelThreshold
	}

	return state.PathStaged, "rule_6_default_staged", 0.55
}

// distanceAboveThreshold turns "how far over the line" into a [0,1]-ish
// confidence signal; the clip in DeterminePath bounds the final result.
func distanceAboveThreshold(length, lengthThreshold, creativity, creativityThreshold float64) float64 {
	lengthDist := 0.0
	if lengthThreshold > 0 {
		lengthDist = (length - lengthThreshold) / lengthThreshold
	}
	creativityDist := creativity - creativityThreshold
	if creativityDist > lengthDist {
		return 0.5 + creativityDist
	}
	return 0.5 + lengthDist
}

func distanceBelowThreshold(lengthRoom, complexityRoom float64) float64 {
	return 0.5 + (lengthRoom+complexityRoom)/2
}

func clipConfidence(c float64) float64 {
	if c < 0.5 {
		return 0.5
	}
	if c > 0.99 {
		return 0.99
	}
	return c
}

// estimateLatencies uses the recent latencies carried in ctx when positive,
// falling back to configured priors (§4.1).
func estimateLatencies(ctx Context, cfg Config) (localMs, apiMs float64) {
	localMs = float64(cfg.PriorLocalMs)
	apiMs = float64(cfg.PriorAPIMs)
	if ctx.RecentLocalLatencyMs > 0 {
		localMs = ctx.RecentLocalLatencyMs
	}
	if ctx.RecentAPILatencyMs > 0 {
		apiMs = ctx.RecentAPILatencyMs
	}
	return localMs, apiMs
}

// String implements fmt.Stringer for debug logging of a Decision.
func (d Decision) String() string {
	return fmt.Sprintf("path=%s confidence=%.2f reasoning=%s", d.Path, d.Confidence, d.Reasoning)
}
