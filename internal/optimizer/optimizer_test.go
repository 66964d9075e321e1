package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/vanta-core/vanta/internal/config"
	"github.com/vanta-core/vanta/internal/state"
)

func TestRecordRequestStartAndCompletion_FeedsMetrics(t *testing.T) {
	o := New(config.OptimizerConfig{RingBufferSize: 10}, config.ResourceConstraints{}, nil)
	o.RecordRequestStart("turn-1", "hi")
	o.RecordRequestCompletion("turn-1", state.PathLocal, state.TrackResponse{Success: true, LatencyMs: 42})

	local := state.PathLocal
	s := o.GetMetricsSummary(&local)
	if s.Count != 1 || s.MeanLatencyMs != 42 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestAdapt_LowAPISuccessIncreasesLocalBias(t *testing.T) {
	o := New(config.OptimizerConfig{RingBufferSize: 10, MinAPISuccess: 0.9}, config.ResourceConstraints{}, nil)
	for i := 0; i < 5; i++ {
		o.collector.Record(PerformanceMetric{Path: state.PathAPI, Success: false, ErrorKind: state.ErrKindServiceUnavailable})
	}

	o.adapt()

	status := o.GetOptimizationStatus()
	if status.Preferences.LocalBias <= 0 {
		t.Errorf("local bias = %v, want > 0 after low API success rate", status.Preferences.LocalBias)
	}
}

func TestAdapt_StepIsBounded(t *testing.T) {
	o := New(config.OptimizerConfig{RingBufferSize: 10, MinAPISuccess: 0.9}, config.ResourceConstraints{}, nil)
	for i := 0; i < 5; i++ {
		o.collector.Record(PerformanceMetric{Path: state.PathAPI, Success: false})
	}
	o.adapt()
	o.adapt()

	status := o.GetOptimizationStatus()
	if status.Preferences.LocalBias > 0.2+1e-9 {
		t.Errorf("local bias = %v, grew by more than 0.1 per cycle across two cycles", status.Preferences.LocalBias)
	}
}

func TestGetOptimizationRecommendations_EmptyHistoryUsesFloor(t *testing.T) {
	o := New(config.OptimizerConfig{RingBufferSize: 10}, config.ResourceConstraints{}, nil)
	rec := o.GetOptimizationRecommendations("hello")
	if rec.Timeouts.LocalMs != 2000 {
		t.Errorf("local timeout = %d, want floor 2000", rec.Timeouts.LocalMs)
	}
	if !rec.Caching {
		t.Error("expected caching hint true for non-empty query")
	}
}

func TestAdapt_QualityGapShiftsIntegrationWeightsTowardAPI(t *testing.T) {
	o := New(config.OptimizerConfig{RingBufferSize: 10, QualityGapThreshold: 0.15}, config.ResourceConstraints{}, nil)
	localQuality := 0.5
	apiQuality := 0.9
	o.collector.Record(PerformanceMetric{Path: state.PathLocal, Success: true, QualityScore: &localQuality})
	o.collector.Record(PerformanceMetric{Path: state.PathAPI, Success: true, QualityScore: &apiQuality})

	beforeAPI, beforeLocal := o.GetIntegrationWeights()

	o.adapt()

	afterAPI, afterLocal := o.GetIntegrationWeights()
	if afterAPI <= beforeAPI {
		t.Errorf("api weight = %v, want > %v after a wide quality gap favoring the api track", afterAPI, beforeAPI)
	}
	if afterLocal >= beforeLocal {
		t.Errorf("local weight = %v, want < %v after a wide quality gap favoring the api track", afterLocal, beforeLocal)
	}
}

func TestGetIntegrationWeights_DefaultsToNeutral(t *testing.T) {
	o := New(config.OptimizerConfig{RingBufferSize: 10}, config.ResourceConstraints{}, nil)
	api, local := o.GetIntegrationWeights()
	if api != defaultPreferenceWeight || local != defaultPreferenceWeight {
		t.Errorf("weights = (%v, %v), want both %v before any adaptation", api, local, defaultPreferenceWeight)
	}
}

func TestStartAdaptationLoop_StopsCleanly(t *testing.T) {
	o := New(config.OptimizerConfig{RingBufferSize: 10, AdaptationIntervalSecs: 0}, config.ResourceConstraints{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.StartAdaptationLoop(ctx)
	time.Sleep(time.Millisecond)
	o.Stop()
}
