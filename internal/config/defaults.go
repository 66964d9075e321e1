package config

import "time"

// Default returns a [Config] populated with the built-in defaults named
// throughout §4 of the specification. Load merges a YAML file on top of
// this value, so every field here is a genuine fallback, not just a zero
// value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel: LogInfo,
		},
		Activation: ActivationConfig{
			Mode:            ActivationWakeWord,
			EnergyThreshold: 0.02,
			TimeoutSeconds:  30,
		},
		Router: RouterConfig{
			ThresholdVeryLong:        60,
			ThresholdSimple:          8,
			ComplexityLocalThreshold: 0.3,
			CreativityAPIThreshold:   0.6,
			TimeSensitivityThreshold: 0.5,
			ParallelThreshold:        0.55,
			MinAcceptableTokens:      6,
			PriorLocalMs:             400,
			PriorAPIMs:               1200,
		},
		Local: LocalConfig{
			Quantization:  "q4_0",
			Threads:       4,
			BatchSize:     512,
			ContextSize:   4096,
			Temperature:   0.7,
			TopP:          0.9,
			TopK:          40,
			RepeatPenalty: 1.1,
			Architecture:  "mistral",
		},
		Remote: RemoteConfig{
			Timeout:     20 * time.Second,
			MaxRetries:  3,
			BaseBackoff: 500 * time.Millisecond,
		},
		Integration: IntegrationConfig{
			SimilarityHigh:        0.8,
			SimilarityMedium:      0.5,
			APIPreferenceWeight:   0.6,
			LocalPreferenceWeight: 0.4,
		},
		Optimizer: OptimizerConfig{
			Strategy:                StrategyAdaptive,
			AdaptationIntervalSecs:  30,
			MonitoringEnabled:       true,
			ResourceSampleIntervalS: 5,
			RingBufferSize:          100,
			MinAPISuccess:           0.8,
			QualityGapThreshold:     0.15,
			Constraints: ResourceConstraints{
				MaxMemoryMB:           4096,
				MaxCPUPercent:         85,
				MaxConcurrentRequests: 4,
				TargetLatencyMs:       1500,
				BatteryThresholdPct:   20,
			},
		},
		Memory: MemoryConfig{
			WorkingMemoryTokenCap:  6000,
			SummarizationThreshold: 20,
			MaxConversationHistory: 50,
			MaxRelevantMemories:    5,
			EmbeddingDimensions:    1536,
		},
		Persistence: PersistenceConfig{
			StateDir:          "data/state",
			ModelRegistryPath: "data/model_registry.json",
		},
	}
}
