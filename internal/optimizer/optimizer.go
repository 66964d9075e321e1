package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/vanta-core/vanta/internal/config"
	"github.com/vanta-core/vanta/internal/router"
	"github.com/vanta-core/vanta/internal/state"
)

// adaptationStep bounds how far any single preference field can move in one
// adaptation cycle (§4.6: "at most ±0.1 ... to prevent thrashing").
const adaptationStep = 0.1

// defaultPreferenceWeight is the neutral integration weight each track
// starts at before any quality-gap adaptation has run.
const defaultPreferenceWeight = 1.0

// integrationWeights mirrors integrator.Config's APIPreferenceWeight/
// LocalPreferenceWeight pair. Kept as a plain struct rather than importing
// internal/integrator, so the optimizer's only domain dependency stays
// router/state.
type integrationWeights struct {
	api   float64
	local float64
}

// Timeouts are the recommended per-track deadlines for the next turn.
type Timeouts struct {
	LocalMs    int
	APIMs      int
	ParallelMs int
}

// Recommendations is what GetOptimizationRecommendations returns.
type Recommendations struct {
	RoutingPreferences router.Preferences
	ResourceStatus     Usage
	Timeouts           Timeouts
	Caching            bool
}

// Status is what GetOptimizationStatus returns.
type Status struct {
	Strategy    config.OptimizerStrategy
	Preferences router.Preferences
	Violations  []string
}

type inFlight struct {
	start time.Time
	query string
}

// Optimizer is the adaptive optimizer: it owns a Collector, a
// ResourceMonitor, and the mutable routing preferences the router consults,
// and periodically nudges those preferences from recent metrics and
// resource pressure.
type Optimizer struct {
	cfg         config.OptimizerConfig
	constraints config.ResourceConstraints
	collector   *Collector
	monitor     *ResourceMonitor

	mu       sync.RWMutex
	prefs    router.Preferences
	weights  integrationWeights
	requests map[string]inFlight

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New constructs an Optimizer. monitor may be nil only if the caller never
// calls StartAdaptationLoop with resource-based heuristics enabled.
func New(cfg config.OptimizerConfig, constraints config.ResourceConstraints, monitor *ResourceMonitor) *Optimizer {
	return &Optimizer{
		cfg:         cfg,
		constraints: constraints,
		collector:   NewCollector(cfg.RingBufferSize),
		monitor:     monitor,
		weights:     integrationWeights{api: defaultPreferenceWeight, local: defaultPreferenceWeight},
		requests:    make(map[string]inFlight),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// RecordRequestStart remembers when a turn began, keyed by an opaque id
// (the turn's conversation_id + turn_index, typically), for latency
// accounting at completion.
func (o *Optimizer) RecordRequestStart(id, query string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests[id] = inFlight{start: time.Now(), query: query}
}

// RecordRequestCompletion records the outcome of a finished track and
// forgets the in-flight entry for id.
func (o *Optimizer) RecordRequestCompletion(id string, path state.Path, resp state.TrackResponse) {
	o.mu.Lock()
	start, tracked := o.requests[id]
	delete(o.requests, id)
	o.mu.Unlock()

	latency := resp.LatencyMs
	if tracked && latency == 0 {
		latency = float64(time.Since(start.start).Milliseconds())
	}

	usage := Usage{}
	if o.monitor != nil {
		usage = o.monitor.Current()
	}

	o.collector.Record(PerformanceMetric{
		Timestamp:    time.Now(),
		Path:         path,
		RequestID:    id,
		LatencyMs:    latency,
		MemoryMB:     usage.MemoryMB,
		CPUPercent:   usage.CPUPercent,
		GPUMemMB:     usage.GPUMemMB,
		QualityScore: resp.QualityScore,
		CostEstimate: resp.CostEstimate,
		Success:      resp.Success,
		ErrorKind:    resp.ErrorKind,
		Tokens:       resp.TokensUsed,
	})
}

// GetMetricsSummary reports the aggregate metrics for path, or across all
// paths when path is nil.
func (o *Optimizer) GetMetricsSummary(path *state.Path) Summary {
	return o.collector.Summary(path)
}

// GetOptimizationStatus reports the current strategy, live preferences, and
// any constraint violations observed in the latest resource sample.
func (o *Optimizer) GetOptimizationStatus() Status {
	o.mu.RLock()
	prefs := o.prefs
	o.mu.RUnlock()

	var violations []string
	if o.monitor != nil {
		violations = o.monitor.CheckConstraints(o.constraints)
	}
	return Status{Strategy: o.cfg.Strategy, Preferences: prefs, Violations: violations}
}

// GetIntegrationWeights reports the current api/local integration weights
// that the §4.6 quality-gap heuristic adjusts. These feed the integrator's
// preference() scoring, not the router, so they are not part of
// GetOptimizationStatus's Preferences.
func (o *Optimizer) GetIntegrationWeights() (apiWeight, localWeight float64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.weights.api, o.weights.local
}

// GetOptimizationRecommendations bundles the current preferences, resource
// status, recommended per-track timeouts, and a caching hint for the next
// turn's query.
func (o *Optimizer) GetOptimizationRecommendations(query string) Recommendations {
	o.mu.RLock()
	prefs := o.prefs
	o.mu.RUnlock()

	usage := Usage{}
	if o.monitor != nil {
		usage = o.monitor.Current()
	}

	local := state.PathLocal
	api := state.PathAPI
	localSummary := o.collector.Summary(&local)
	apiSummary := o.collector.Summary(&api)

	mult := prefs.TimeoutMultiplier
	if mult <= 0 {
		mult = 1.0
	}
	timeouts := Timeouts{
		LocalMs:    baseTimeoutMs(localSummary, mult),
		APIMs:      baseTimeoutMs(apiSummary, mult),
		ParallelMs: baseTimeoutMs(apiSummary, mult),
	}

	return Recommendations{
		RoutingPreferences: prefs,
		ResourceStatus:     usage,
		Timeouts:           timeouts,
		Caching:            query != "",
	}
}

func baseTimeoutMs(s Summary, multiplier float64) int {
	const floorMs = 2000
	if s.Count == 0 {
		return floorMs
	}
	ms := int(s.MeanLatencyMs * multiplier * 1.5)
	if ms < floorMs {
		return floorMs
	}
	return ms
}

// StartAdaptationLoop runs the adjustment heuristics every
// AdaptationIntervalSecs (30s default) until ctx is cancelled or Stop is
// called.
func (o *Optimizer) StartAdaptationLoop(ctx context.Context) {
	interval := time.Duration(o.cfg.AdaptationIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stop:
				return
			case <-ticker.C:
				o.adapt()
			}
		}
	}()
}

// Stop halts the adaptation loop and waits for it to exit.
func (o *Optimizer) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	<-o.done
}

// adapt applies the §4.6 heuristics, each step bounded by adaptationStep.
func (o *Optimizer) adapt() {
	local := state.PathLocal
	api := state.PathAPI
	localSummary := o.collector.Summary(&local)
	apiSummary := o.collector.Summary(&api)

	o.mu.Lock()
	defer o.mu.Unlock()

	if apiSummary.Count > 0 && apiSummary.SuccessRate < o.cfg.MinAPISuccess {
		o.prefs.LocalBias = clampStep(o.prefs.LocalBias, +adaptationStep)
	}

	if localSummary.Count > 0 && int(localSummary.MeanLatencyMs) > o.constraints.TargetLatencyMs && o.constraints.TargetLatencyMs > 0 {
		o.prefs.LocalBias = clampStep(o.prefs.LocalBias, -adaptationStep)
		o.prefs.ParallelThreshold = clampStep(o.prefs.ParallelThreshold, +adaptationStep)
	}

	if o.monitor != nil {
		violations := o.monitor.CheckConstraints(o.constraints)
		if len(violations) > 0 {
			o.prefs.ParallelThreshold = clampStep(o.prefs.ParallelThreshold, +adaptationStep)
		}
	}

	qualityGap := apiSummary.MeanQuality - localSummary.MeanQuality
	if apiSummary.Count > 0 && localSummary.Count > 0 && qualityGap > o.cfg.QualityGapThreshold {
		o.prefs.LocalBias = clampStep(o.prefs.LocalBias, -adaptationStep)
		o.weights.api = clampWeight(o.weights.api, +adaptationStep)
		o.weights.local = clampWeight(o.weights.local, -adaptationStep)
	}
}

// clampStep moves current by delta, clamped to [-1, 1] — the preference
// fields are signed biases the router adds to its baseline thresholds.
func clampStep(current, delta float64) float64 {
	next := current + delta
	if next > 1 {
		return 1
	}
	if next < -1 {
		return -1
	}
	return next
}

// clampWeight moves current by delta, clamped to [0, 2] — the integration
// weights are multipliers on a 0..1 quality score, so 1 is neutral and 0
// removes a track from consideration entirely.
func clampWeight(current, delta float64) float64 {
	next := current + delta
	if next > 2 {
		return 2
	}
	if next < 0 {
		return 0
	}
	return next
}
