// Package state defines the typed turn state (§3.1) that a single voice
// exchange flows through, and the reducers that combine concurrent node
// updates into it. There is exactly one mutable value of type [TurnState]
// per in-flight turn; nodes never retain a pointer into it across a reducer
// call — they read a value, compute an update, and hand it back to be
// merged.
package state

import "time"

// ActivationStatus is the gating state named in §3.1.
type ActivationStatus string

const (
	StatusInactive   ActivationStatus = "INACTIVE"
	StatusListening  ActivationStatus = "LISTENING"
	StatusProcessing ActivationStatus = "PROCESSING"
	StatusSpeaking   ActivationStatus = "SPEAKING"
)

// ActivationMode mirrors config.ActivationMode without importing the config
// package, keeping state dependency-free of configuration.
type ActivationMode string

const (
	ModeContinuous ActivationMode = "CONTINUOUS"
	ModeWakeWord   ActivationMode = "WAKE_WORD"
	ModeScheduled  ActivationMode = "SCHEDULED"
	ModeManual     ActivationMode = "MANUAL"
	ModeOff        ActivationMode = "OFF"
)

// Path is the routing decision named in §3.2.
type Path string

const (
	PathLocal    Path = "LOCAL"
	PathAPI      Path = "API"
	PathParallel Path = "PARALLEL"
	PathStaged   Path = "STAGED"
)

// Role tags a chat message per §6.4.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the append-only Messages reducer field.
type Message struct {
	Type     Role           `json:"type"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Time     time.Time      `json:"created_time"`
}

// AudioState is the shallow-merge `audio` field (§3.1).
type AudioState struct {
	LastFrameHandle     string    `json:"last_frame_handle,omitempty"`
	LastTranscript      string    `json:"last_transcript,omitempty"`
	LastSynthesizedUtt  string    `json:"last_synthesized_utterance,omitempty"`
	Level               float64   `json:"level"`
	LastTranscribedTime time.Time `json:"last_transcribed_time,omitempty"`
	Error               string    `json:"error,omitempty"`
}

// MemoryState is the shallow-merge `memory` field (§3.1, §4.7).
type MemoryState struct {
	RetrievedContext        []RetrievedSnippet `json:"retrieved_context,omitempty"`
	ConversationHistory     []Message          `json:"conversation_history,omitempty"`
	LastSummary             string             `json:"last_summary,omitempty"`
	LastStoredMessageCount  int                `json:"last_stored_message_count"`
	RetrieveStatus          string             `json:"retrieve_status,omitempty"`
	StoreStatus             string             `json:"store_status,omitempty"`
	SummarizeStatus         string             `json:"summarize_status,omitempty"`
}

// RetrievedSnippet is one item of retrieved memory context.
type RetrievedSnippet struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ConfigState is the shallow-merge `config` field — the subset of
// configuration that varies per-call rather than process-wide.
type ConfigState struct {
	ActivationMode  ActivationMode `json:"activation_mode,omitempty"`
	TTSEnabled      bool           `json:"tts_enabled"`
	MemoryEnabled   bool           `json:"memory_enabled"`
	SummarizationThreshold int     `json:"summarization_threshold"`
	MaxConversationHistory int     `json:"max_conversation_history"`
}

// Activation is the shallow-merge `activation` field (§3.1).
type Activation struct {
	Status            ActivationStatus `json:"status"`
	Mode              ActivationMode   `json:"mode"`
	LastActivationTime time.Time       `json:"last_activation_time,omitempty"`
	WakeWordDetected  bool             `json:"wake_word_detected"`
}

// ErrorKind names a recoverable failure category (§7).
type ErrorKind string

const (
	ErrKindNone             ErrorKind = ""
	ErrKindNotInitialized   ErrorKind = "NotInitialized"
	ErrKindTimeout          ErrorKind = "Timeout"
	ErrKindGenerationFailed ErrorKind = "GenerationFailed"
	ErrKindResourceExhausted ErrorKind = "ResourceExhausted"
	ErrKindTokenization     ErrorKind = "Tokenization"
	ErrKindNetworkTimeout   ErrorKind = "NetworkTimeout"
	ErrKindServiceUnavailable ErrorKind = "ServiceUnavailable"
	ErrKindAuthFailed       ErrorKind = "AuthFailed"
	ErrKindRateLimited      ErrorKind = "RateLimited"
	ErrKindValidationError  ErrorKind = "ValidationError"
	ErrKindResponseMalformed ErrorKind = "ResponseMalformed"
	ErrKindCancelled        ErrorKind = "Cancelled"
)

// TrackResponse is §3.3.
type TrackResponse struct {
	Content      string    `json:"content"`
	Success      bool      `json:"success"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	TokensUsed   int       `json:"tokens_used"`
	LatencyMs    float64   `json:"latency_ms"`
	CostEstimate float64   `json:"cost_estimate"`
	QualityScore *float64  `json:"quality_score,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Source       string    `json:"source"` // "local" | "api"
}

// RoutingDecision is §3.2.
type RoutingDecision struct {
	Path            Path               `json:"path"`
	Confidence      float64            `json:"confidence"`
	Reasoning       string             `json:"reasoning"`
	Features        map[string]float64 `json:"features,omitempty"`
	EstimatedLocalMs float64           `json:"estimated_local_ms"`
	EstimatedAPIMs   float64           `json:"estimated_api_ms"`
}

// Processing is the deep-merge `processing` field — the sole field written
// concurrently by both the local and API track nodes. Local writes only
// Local* sub-keys; API writes only API* sub-keys, so a shallow struct merge
// with "non-zero right wins" is sufficient and lock-free between the two
// producers as long as each node only ever sets its own sub-keys.
type Processing struct {
	Path            Path            `json:"path,omitempty"`
	Decision        *RoutingDecision `json:"decision,omitempty"`
	LocalCompleted  bool            `json:"local_completed"`
	APICompleted    bool            `json:"api_completed"`
	LocalResponse   *TrackResponse  `json:"local_response,omitempty"`
	APIResponse     *TrackResponse  `json:"api_response,omitempty"`
	LocalError      string          `json:"local_error,omitempty"`
	APIError        string          `json:"api_error,omitempty"`
	FinalResponse   string          `json:"final_response,omitempty"`
	Integration     *IntegrationResult `json:"integration_result,omitempty"`
	StartTime       time.Time       `json:"start_time,omitempty"`
	FatalError      string          `json:"fatal_error,omitempty"`
}

// IntegrationResult is §3.4.
type IntegrationResult struct {
	Content         string         `json:"content"`
	Source          string         `json:"source"`   // local | api | integrated | fallback
	Strategy        string         `json:"strategy"`  // preference | fastest | combine | interrupt | single_source
	SimilarityScore *float64       `json:"similarity_score,omitempty"`
	ProcessingMs    float64        `json:"processing_ms"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// TurnState is the single mapping with fixed top-level fields from §3.1.
type TurnState struct {
	ConversationID string      `json:"conversation_id"`
	TurnIndex      int         `json:"turn_index"`
	Messages       []Message   `json:"messages"`
	Audio          AudioState  `json:"audio"`
	Memory         MemoryState `json:"memory"`
	Config         ConfigState `json:"config"`
	Activation     Activation  `json:"activation"`
	Processing     Processing  `json:"processing"`
}

// New returns a freshly initialised TurnState for the given conversation,
// activation mode, and turn index, in the INACTIVE status with tts/memory
// enabled by default (§5.2 should_synthesize_speech / should_update_memory).
func New(conversationID string, turnIndex int, mode ActivationMode) TurnState {
	return TurnState{
		ConversationID: conversationID,
		TurnIndex:      turnIndex,
		Activation: Activation{
			Status: StatusInactive,
			Mode:   mode,
		},
		Config: ConfigState{
			ActivationMode: mode,
			TTSEnabled:     true,
			MemoryEnabled:  true,
		},
	}
}
