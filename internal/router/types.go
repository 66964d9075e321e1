// Package router implements the query classifier that decides which track
// (or pair of tracks) should handle a turn: local, API, both in parallel, or
// local-first-then-escalate. The decision function is pure and total — it
// never panics and always returns a usable [Decision], recovering from
// anything unexpected into the same conservative fallback a caller would
// want from a misbehaving classifier.
package router

import "github.com/vanta-core/vanta/internal/state"

// Config holds the thresholds and weights that drive routing decisions
// (§4.1, §4.10). Field names mirror internal/config.RouterConfig so callers
// typically construct a Config directly from the loaded configuration.
type Config struct {
	ThresholdVeryLong        int
	ThresholdSimple          int
	ComplexityLocalThreshold float64
	CreativityAPIThreshold   float64
	TimeSensitivityThreshold float64
	ParallelThreshold        float64
	MinAcceptableTokens      int

	// Priors used when C6 has no rolling latency history yet.
	PriorLocalMs int
	PriorAPIMs   int
}

// Preferences are the optimizer's current routing adjustments (§3.5). A
// zero-value Preferences applies no bias.
type Preferences struct {
	LocalBias         float64
	ParallelThreshold float64 // overrides Config.ParallelThreshold when non-zero
	TimeoutMultiplier float64
}

// Context is the subset of turn state a routing decision may consult:
// whether the system is even accepting input, and recent track latencies
// for the estimate fields of a Decision.
type Context struct {
	ActivationMode state.ActivationMode
	// RecentLocalLatencyMs and RecentAPILatencyMs are recent track latencies
	// supplied by the caller (cmd/vanta passes C6's mean latencies; no median
	// is computed); a value <= 0 means "no history yet" and the configured
	// priors are used instead.
	RecentLocalLatencyMs float64
	RecentAPILatencyMs   float64
	// ResourceBudgetAllowsParallel reflects the optimizer's current resource
	// constraints (§4.6); when false, rule 5 cannot select PARALLEL even if
	// complexity clears the threshold.
	ResourceBudgetAllowsParallel bool
	// PriorTurnCount is how many turns already exist on this conversation;
	// used only for the context-dependence feature.
	PriorTurnCount int
}

// Features are the scored signals extracted from a query (§4.1), each
// normalized to [0, 1] except Length which is a raw token count.
type Features struct {
	Length            int
	IsQuestion        float64
	IsImperative      float64
	Creativity        float64
	Complexity        float64
	TimeSensitivity   float64
	ContextDependence float64
}

// Decision is the routing outcome (§3.2).
type Decision struct {
	Path             state.Path
	Confidence       float64
	Reasoning        string
	Features         map[string]float64
	EstimatedLocalMs float64
	EstimatedAPIMs   float64
}

const fallbackReasoning = "router_fallback"

func fallbackDecision() Decision {
	return Decision{
		Path:       state.PathLocal,
		Confidence: 0.5,
		Reasoning:  fallbackReasoning,
	}
}
