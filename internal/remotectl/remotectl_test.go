package remotectl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanta-core/vanta/pkg/provider/llm"
	llmmock "github.com/vanta-core/vanta/pkg/provider/llm/mock"
	"github.com/vanta-core/vanta/pkg/types"
)

func TestGenerate_Success(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "hello there",
			Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	prices := PriceTable{"gpt-4o": {PromptPer1K: 0.005, CompletionPer1K: 0.015}}
	ctl := New(provider, prices, Config{Model: "gpt-4o", MaxRetries: 2, BaseBackoff: time.Millisecond})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Source != "api" {
		t.Errorf("source = %q, want api", resp.Source)
	}
	wantCost := 10.0/1000*0.005 + 5.0/1000*0.015
	if resp.CostEstimate != wantCost {
		t.Errorf("cost = %v, want %v", resp.CostEstimate, wantCost)
	}
}

// countingProvider fails the first N calls with a transient error, then
// succeeds, letting tests observe retry behavior without sleeping long.
type countingProvider struct {
	llm.Provider
	failUntil int32
	calls     int32
	failErr   error
	response  *llm.CompletionResponse
}

func (p *countingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if n <= p.failUntil {
		return nil, p.failErr
	}
	return p.response, nil
}

func (p *countingProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func TestGenerate_RetriesTransientErrorsThenSucceeds(t *testing.T) {
	provider := &countingProvider{failUntil: 2, failErr: ErrServiceUnavailable, response: &llm.CompletionResponse{Content: "ok"}}
	ctl := New(provider, nil, Config{MaxRetries: 3, BaseBackoff: time.Millisecond})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if !resp.Success {
		t.Fatalf("expected eventual success, got %+v", resp)
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", provider.calls)
	}
}

func TestGenerate_NonTransientErrorIsNotRetried(t *testing.T) {
	provider := &countingProvider{failUntil: 100, failErr: ErrAuthFailed}
	ctl := New(provider, nil, Config{MaxRetries: 3, BaseBackoff: time.Millisecond})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.ErrorKind != "AuthFailed" {
		t.Errorf("error kind = %q, want AuthFailed", resp.ErrorKind)
	}
	if provider.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-transient error)", provider.calls)
	}
}

func TestGenerate_ExhaustsRetriesReturnsFailure(t *testing.T) {
	provider := &countingProvider{failUntil: 100, failErr: ErrRateLimited}
	ctl := New(provider, nil, Config{MaxRetries: 2, BaseBackoff: time.Millisecond})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if resp.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if resp.ErrorKind != "RateLimited" {
		t.Errorf("error kind = %q, want RateLimited", resp.ErrorKind)
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", provider.calls)
	}
}

func TestGenerate_DeadlineExceededDuringBackoffIsTimeout(t *testing.T) {
	provider := &countingProvider{failUntil: 100, failErr: ErrServiceUnavailable}
	ctl := New(provider, nil, Config{MaxRetries: 5, BaseBackoff: 50 * time.Millisecond})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, 30*time.Millisecond)
	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.ErrorKind != "Timeout" {
		t.Errorf("error kind = %q, want Timeout", resp.ErrorKind)
	}
}

func TestGenerate_UnpricedModelReportsZeroCost(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok", Usage: llm.Usage{PromptTokens: 5}}}
	ctl := New(provider, PriceTable{}, Config{Model: "unknown-model"})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if resp.CostEstimate != 0 {
		t.Errorf("cost = %v, want 0 for unpriced model", resp.CostEstimate)
	}
}
