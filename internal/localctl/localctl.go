// Package localctl implements the local inference controller (§4.2): a
// single on-device model, lazily loaded, with one Generate call in flight
// at a time (§5.6), resolved through internal/modelregistry. Replies are
// extracted with internal/promptfmt; the request messages are sent to the
// provider as a message list and are not rendered by promptfmt.Format.
package localctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vanta-core/vanta/internal/modelregistry"
	"github.com/vanta-core/vanta/internal/promptfmt"
	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/pkg/provider/llm"
	"github.com/vanta-core/vanta/pkg/types"
)

// ErrNotInitialized is returned by Stream when Load fails. Generate reports
// the same condition through the track response's NotInitialized error kind.
var ErrNotInitialized = errors.New("local controller not initialized")

// Params are the per-call sampling parameters. A zero Temperature falls back
// to Config's default and MaxTokens is passed through as-is; TopP, TopK,
// RepeatPenalty and StopSequences are not forwarded to the provider.
type Params struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	MaxTokens     int
	StopSequences []string
}

// Config mirrors internal/config.LocalConfig, the subset Generate needs.
type Config struct {
	ModelID      string // key into the model registry
	Architecture promptfmt.Architecture
	Temperature  float64
	TopP         float64
	TopK         int
	RepeatPenalty float64
	StopSequences []string
}

// Controller serializes calls to a single loaded local model (§5.6: one
// mutex guards the model; PARALLEL-path local inference is serialized
// against any other local-track inference the same way).
type Controller struct {
	registry *modelregistry.Registry
	provider llm.Provider // the loaded model's runtime handle
	cfg      Config

	mu       sync.Mutex
	loadOnce sync.Once
	loadErr  error
}

// New constructs a Controller. provider is the already-constructed runtime
// adapter (e.g. an Ollama-backed llm.Provider) that will serve generations
// once Load succeeds; registry resolves cfg.ModelID to a file path for
// Load's existence check.
func New(provider llm.Provider, registry *modelregistry.Registry, cfg Config) *Controller {
	return &Controller{provider: provider, registry: registry, cfg: cfg}
}

// Load resolves the configured model id through the registry. It is called
// lazily by Generate on first use, and is idempotent — a second call is a
// no-op returning the first call's result.
func (c *Controller) Load() error {
	c.loadOnce.Do(func() {
		if c.registry == nil {
			return
		}
		if _, err := c.registry.Resolve(c.cfg.ModelID); err != nil {
			c.loadErr = fmt.Errorf("%w: %v", modelregistry.ErrModelNotFound, err)
		}
	})
	return c.loadErr
}

// Generate produces a single complete response for prompt (the full message
// history), honoring deadline as a hard wall-clock bound. It never returns
// an error from business failures — those are reported via
// state.TrackResponse.Success/ErrorKind, matching the "never raise out of a
// node" contract (§7). Generate has no error return.
func (c *Controller) Generate(ctx context.Context, messages []types.Message, params Params, deadline time.Duration) state.TrackResponse {
	start := time.Now()

	if err := c.Load(); err != nil {
		return failure(state.ErrKindNotInitialized, err.Error(), start)
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: resolveTemperature(params, c.cfg),
		MaxTokens:   params.MaxTokens,
	}

	resp, err := c.provider.Complete(callCtx, req)
	latency := time.Since(start)

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return state.TrackResponse{
				Success:   false,
				ErrorKind: state.ErrKindTimeout,
				LatencyMs: float64(latency.Milliseconds()),
				Source:    "local",
			}
		}
		return state.TrackResponse{
			Success:      false,
			ErrorKind:    state.ErrKindGenerationFailed,
			LatencyMs:    float64(latency.Milliseconds()),
			Source:       "local",
			FinishReason: err.Error(),
		}
	}

	content := promptfmt.ExtractResponse(resp.Content, c.cfg.Architecture)

	tokensUsed := resp.Usage.TotalTokens
	if tokensUsed == 0 {
		tokensUsed = resp.Usage.CompletionTokens
	}

	return state.TrackResponse{
		Content:      content,
		Success:      true,
		TokensUsed:   tokensUsed,
		LatencyMs:    float64(latency.Milliseconds()),
		CostEstimate: 0, // local inference has no per-call monetary cost
		Source:       "local",
		FinishReason: "stop",
	}
}

// Stream produces an incremental response as a channel of text chunks,
// terminating the channel on completion, cancellation, or failure. The
// final received value carries a non-empty FinishReason. The controller's
// mutex is held only while the stream is opened, not while its chunks are
// delivered, so a Stream can overlap another inference.
func (c *Controller) Stream(ctx context.Context, messages []types.Message, params Params, deadline time.Duration) (<-chan llm.Chunk, error) {
	if err := c.Load(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)

	c.mu.Lock()
	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: resolveTemperature(params, c.cfg),
		MaxTokens:   params.MaxTokens,
	}
	ch, err := c.provider.StreamCompletion(callCtx, req)
	c.mu.Unlock()

	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		defer cancel()
		for chunk := range ch {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func resolveTemperature(p Params, cfg Config) float64 {
	if p.Temperature != 0 {
		return p.Temperature
	}
	return cfg.Temperature
}

func failure(kind state.ErrorKind, reason string, start time.Time) state.TrackResponse {
	return state.TrackResponse{
		Success:      false,
		ErrorKind:    kind,
		LatencyMs:    float64(time.Since(start).Milliseconds()),
		Source:       "local",
		FinishReason: reason,
	}
}
