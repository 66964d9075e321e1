// Package config provides the layered configuration schema, loader, and
// provider registry for the dual-track voice assistant core (§4.10, §6.1).
package config

import "time"

// Config is the root configuration structure, built-in defaults merged with
// a YAML file and then per-call overrides (§4.10 "Layered merge").
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Activation  ActivationConfig  `yaml:"activation"`
	Router      RouterConfig      `yaml:"router"`
	Local       LocalConfig       `yaml:"local"`
	Remote      RemoteConfig      `yaml:"remote"`
	Integration IntegrationConfig `yaml:"integration"`
	Optimizer   OptimizerConfig   `yaml:"optimizer"`
	Memory      MemoryConfig      `yaml:"memory"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// ServerConfig holds process-wide settings not named by a specific component.
type ServerConfig struct {
	LogLevel    LogLevel `yaml:"log_level"`
	ModelRoot   string   `yaml:"model_root"`
	RegistryPath string  `yaml:"model_registry_path"`
}

// ActivationConfig configures the activation gating state machine (§4.10,
// supplemented per SPEC_FULL.md §4).
type ActivationConfig struct {
	Mode            ActivationMode `yaml:"mode"`
	EnergyThreshold float64        `yaml:"energy_threshold"`
	TimeoutSeconds  float64        `yaml:"timeout_s"`
}

// RouterConfig holds the thresholds, weights, and latency priors used by the
// C2 router (§4.1).
type RouterConfig struct {
	ThresholdVeryLong        int     `yaml:"threshold_very_long"`
	ThresholdSimple          int     `yaml:"threshold_simple"`
	ComplexityLocalThreshold float64 `yaml:"complexity_local_threshold"`
	CreativityAPIThreshold   float64 `yaml:"creativity_api_threshold"`
	TimeSensitivityThreshold float64 `yaml:"time_sensitivity_threshold"`
	ParallelThreshold        float64 `yaml:"parallel_threshold"`
	MinAcceptableTokens      int     `yaml:"min_acceptable_tokens"`

	// PriorLocalMs/PriorAPIMs are used when the optimizer has no rolling
	// latency history yet.
	PriorLocalMs int `yaml:"prior_local_ms"`
	PriorAPIMs   int `yaml:"prior_api_ms"`
}

// LocalConfig configures the C3 local controller.
type LocalConfig struct {
	ModelPath      string   `yaml:"model_path"`
	Quantization   string   `yaml:"quantization"`
	Threads        int      `yaml:"threads"`
	BatchSize      int      `yaml:"batch_size"`
	ContextSize    int      `yaml:"context_size"`
	Temperature    float64  `yaml:"temperature"`
	TopP           float64  `yaml:"top_p"`
	TopK           int      `yaml:"top_k"`
	RepeatPenalty  float64  `yaml:"repeat_penalty"`
	StopSequences  []string `yaml:"stop_sequences"`
	Architecture   string   `yaml:"architecture"`
	GPULayers      int      `yaml:"gpu_layers"`
	LowVRAM        bool     `yaml:"low_vram"`
}

// RemoteConfig configures the C4 remote controller.
type RemoteConfig struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
}

// IntegrationConfig configures the C5 integrator's merge strategy
// thresholds (§4.4).
type IntegrationConfig struct {
	SimilarityHigh       float64 `yaml:"similarity_high"`
	SimilarityMedium     float64 `yaml:"similarity_medium"`
	APIPreferenceWeight  float64 `yaml:"api_preference_weight"`
	LocalPreferenceWeight float64 `yaml:"local_preference_weight"`
	LatencyPriority      bool    `yaml:"latency_priority"`
}

// OptimizerConfig configures the C6 adaptive optimizer (§4.6).
type OptimizerConfig struct {
	Strategy                 OptimizerStrategy `yaml:"strategy"`
	AdaptationIntervalSecs   int               `yaml:"adaptation_interval_seconds"`
	MonitoringEnabled        bool              `yaml:"monitoring_enabled"`
	ResourceSampleIntervalS  int               `yaml:"resource_sample_interval_seconds"`
	Constraints              ResourceConstraints `yaml:"constraints"`
	MinAPISuccess            float64           `yaml:"min_api_success"`
	QualityGapThreshold      float64           `yaml:"quality_gap_threshold"`
	RingBufferSize           int               `yaml:"ring_buffer_size"`
}

// ResourceConstraints mirrors §4.6's resource constraint set.
type ResourceConstraints struct {
	MaxMemoryMB           int     `yaml:"max_memory_mb"`
	MaxCPUPercent         float64 `yaml:"max_cpu_percent"`
	MaxGPUMemoryMB        int     `yaml:"max_gpu_memory_mb"`
	MaxConcurrentRequests int     `yaml:"max_concurrent_requests"`
	TargetLatencyMs       int     `yaml:"target_latency_ms"`
	MaxCostPerRequest     float64 `yaml:"max_cost_per_request"`
	BatteryThresholdPct   float64 `yaml:"battery_threshold_percent"`
}

// PersistenceConfig configures the C9 checkpointer's durability backend
// (§6.2, §6.3).
type PersistenceConfig struct {
	// StateDir roots the per-conversation checkpoints/conversations/
	// preferences/vectors layout when PostgresDSN is empty (§6.2).
	StateDir string `yaml:"state_dir"`
	// PostgresDSN, when set, backs checkpoints with a PostgreSQL table
	// instead of the local file layout.
	PostgresDSN string `yaml:"postgres_dsn"`
	// ModelRegistryPath points at the §6.3 model registry JSON document.
	ModelRegistryPath string `yaml:"model_registry_path"`
	// BackupIntervalSeconds is parsed from the config file, but no code in
	// this module reads it: no periodic backups are taken at any value.
	BackupIntervalSeconds int `yaml:"backup_interval_seconds"`
}

// MemoryConfig configures the C8 memory nodes and their backing engine.
type MemoryConfig struct {
	WorkingMemoryTokenCap  int    `yaml:"working_memory_token_cap"`
	SummarizationThreshold int    `yaml:"summarization_threshold"`
	MaxConversationHistory int    `yaml:"max_conversation_history"`
	VectorStorePath        string `yaml:"vector_store_path"`
	MaxRelevantMemories    int    `yaml:"max_relevant_memories"`
	PostgresDSN            string `yaml:"postgres_dsn"`
	EmbeddingDimensions    int    `yaml:"embedding_dimensions"`
}
