// Package remotectl implements the remote inference controller (§4.3): a
// stateless HTTP-backed call to a configured LLM provider, with
// exponential-backoff retry on transient failures and a deadline that spans
// the whole retry sequence rather than any single attempt.
package remotectl

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/pkg/provider/llm"
	"github.com/vanta-core/vanta/pkg/types"
)

// Sentinel errors a RemoteProvider implementation wraps its failures in so
// Controller can classify them without depending on any one vendor SDK's
// error types. An error that matches none of these is classified as
// NetworkTimeout — see classify.
var (
	ErrAuthFailed        = errors.New("remote: authentication failed")
	ErrRateLimited       = errors.New("remote: rate limited")
	ErrServiceUnavailable = errors.New("remote: service unavailable")
	ErrValidation        = errors.New("remote: request validation failed")
	ErrResponseMalformed = errors.New("remote: malformed response")
)

// PriceEntry is the per-1000-token cost of a model, used to compute
// TrackResponse.CostEstimate.
type PriceEntry struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// PriceTable maps a model name to its price entry. An unlisted model costs
// nothing to estimate (CostEstimate is reported as 0, not an error).
type PriceTable map[string]PriceEntry

// Config mirrors internal/config.RemoteConfig, the subset Generate needs.
type Config struct {
	Model       string
	MaxRetries  int
	BaseBackoff time.Duration
}

// Controller drives a single configured remote provider. It holds no
// per-call state: concurrent Generate calls are independent, matching §4.3's
// "stateless" requirement. Concurrency across calls is bounded by the
// semaphore the caller wraps Controller with (§5.6's
// max_concurrent_requests), not by Controller itself.
type Controller struct {
	provider llm.Provider
	prices   PriceTable
	cfg      Config
}

// New constructs a Controller around an already-configured provider adapter
// (any-llm-go, openai-go, anthropic-sdk-go, or a LAN model server speaking
// the same interface).
func New(provider llm.Provider, prices PriceTable, cfg Config) *Controller {
	return &Controller{provider: provider, prices: prices, cfg: cfg}
}

// Params are the per-call sampling parameters.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Generate drives the configured provider to completion, retrying transient
// failures up to cfg.MaxRetries times with exponential backoff, all within
// deadline measured from the first attempt. Like the local controller, it
// never returns a Go error for business failures — only TrackResponse's
// Success/ErrorKind fields report them.
func (c *Controller) Generate(ctx context.Context, messages []types.Message, params Params, deadline time.Duration) state.TrackResponse {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	var lastErr error
	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.BaseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-callCtx.Done():
				return c.timeoutOrFailure(callCtx, start)
			}
		}

		resp, err := c.provider.Complete(callCtx, req)
		if err == nil {
			return c.success(resp, time.Since(start))
		}
		lastErr = err

		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return c.timeoutOrFailure(callCtx, start)
		}
		if !transient(err) {
			return c.failure(classify(err), err.Error(), start)
		}
	}
	return c.failure(classify(lastErr), lastErr.Error(), start)
}

// Stream drives a streaming completion. Unlike Generate, a stream that fails
// mid-flight is not retried — the caller has already received partial
// output, so retrying would duplicate it.
func (c *Controller) Stream(ctx context.Context, messages []types.Message, params Params, deadline time.Duration) (<-chan llm.Chunk, error) {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	ch, err := c.provider.StreamCompletion(callCtx, req)
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

func (c *Controller) success(resp *llm.CompletionResponse, latency time.Duration) state.TrackResponse {
	if resp == nil {
		return c.failure(state.ErrKindResponseMalformed, "provider returned nil response", time.Now().Add(-latency))
	}
	return state.TrackResponse{
		Content:      resp.Content,
		Success:      true,
		TokensUsed:   resp.Usage.TotalTokens,
		LatencyMs:    float64(latency.Milliseconds()),
		CostEstimate: c.cost(resp.Usage),
		Source:       "api",
		FinishReason: "stop",
	}
}

func (c *Controller) timeoutOrFailure(callCtx context.Context, start time.Time) state.TrackResponse {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return c.failure(state.ErrKindTimeout, "deadline exceeded across retries", start)
	}
	return c.failure(state.ErrKindNetworkTimeout, callCtx.Err().Error(), start)
}

func (c *Controller) failure(kind state.ErrorKind, reason string, start time.Time) state.TrackResponse {
	return state.TrackResponse{
		Success:      false,
		ErrorKind:    kind,
		LatencyMs:    float64(time.Since(start).Milliseconds()),
		Source:       "api",
		FinishReason: reason,
	}
}

func (c *Controller) cost(u llm.Usage) float64 {
	entry, ok := c.prices[c.cfg.Model]
	if !ok {
		return 0
	}
	return float64(u.PromptTokens)/1000*entry.PromptPer1K + float64(u.CompletionTokens)/1000*entry.CompletionPer1K
}

// transient reports whether err should be retried: network errors,
// service-unavailable (5xx), and rate-limiting. Auth failures, validation
// errors, and malformed responses are not retried since a repeat attempt
// would fail identically.
func transient(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, ErrAuthFailed), errors.Is(err, ErrValidation), errors.Is(err, ErrResponseMalformed):
		return false
	default:
		// Unclassified errors are assumed to be transient network issues,
		// matching the source's conservative retry-by-default stance.
		return true
	}
}

func classify(err error) state.ErrorKind {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return state.ErrKindAuthFailed
	case errors.Is(err, ErrRateLimited):
		return state.ErrKindRateLimited
	case errors.Is(err, ErrServiceUnavailable):
		return state.ErrKindServiceUnavailable
	case errors.Is(err, ErrValidation):
		return state.ErrKindValidationError
	case errors.Is(err, ErrResponseMalformed):
		return state.ErrKindResponseMalformed
	default:
		return state.ErrKindNetworkTimeout
	}
}
