package localctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vanta-core/vanta/internal/modelregistry"
	"github.com/vanta-core/vanta/internal/promptfmt"
	"github.com/vanta-core/vanta/pkg/provider/llm"
	llmmock "github.com/vanta-core/vanta/pkg/provider/llm/mock"
	"github.com/vanta-core/vanta/pkg/types"
)

func registryWithModel(t *testing.T, id string) *modelregistry.Registry {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	if err := os.WriteFile(modelPath, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	content := `{"models":[{"id":"` + id + `","type":"llm","path":"` + modelPath + `","format":"gguf"}]}`
	regPath := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(regPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return modelregistry.Load(regPath)
}

func TestGenerate_Success(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: " Here's the answer. </s><s>[INST] ",
			Usage:   llm.Usage{TotalTokens: 12},
		},
	}
	reg := registryWithModel(t, "local-model")
	ctl := New(provider, reg, Config{ModelID: "local-model", Architecture: promptfmt.ArchMistral, Temperature: 0.7})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Content != "Here's the answer." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Source != "local" {
		t.Errorf("source = %q, want local", resp.Source)
	}
	if resp.TokensUsed != 12 {
		t.Errorf("tokens used = %d, want 12", resp.TokensUsed)
	}
}

func TestGenerate_UnresolvableModelReturnsNotInitialized(t *testing.T) {
	provider := &llmmock.Provider{}
	reg := modelregistry.Load("/nonexistent/registry.json")
	ctl := New(provider, reg, Config{ModelID: "missing-model"})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if resp.Success {
		t.Fatal("expected failure for unresolvable model")
	}
	if resp.ErrorKind != "NotInitialized" {
		t.Errorf("error kind = %q, want NotInitialized", resp.ErrorKind)
	}
}

func TestGenerate_ProviderErrorIsGenerationFailed(t *testing.T) {
	provider := &llmmock.Provider{CompleteErr: errors.New("model crashed")}
	reg := registryWithModel(t, "local-model")
	ctl := New(provider, reg, Config{ModelID: "local-model"})

	resp := ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "hi"}}, Params{}, time.Second)
	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.ErrorKind != "GenerationFailed" {
		t.Errorf("error kind = %q, want GenerationFailed", resp.ErrorKind)
	}
}

func TestGenerate_SerializesConcurrentCalls(t *testing.T) {
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	reg := registryWithModel(t, "local-model")
	ctl := New(provider, reg, Config{ModelID: "local-model"})

	done := make(chan struct{})
	go func() {
		ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "a"}}, Params{}, time.Second)
		close(done)
	}()
	ctl.Generate(context.Background(), []types.Message{{Role: "user", Content: "b"}}, Params{}, time.Second)
	<-done

	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(provider.CompleteCalls))
	}
}

func TestLoad_IsIdempotent(t *testing.T) {
	reg := registryWithModel(t, "local-model")
	ctl := New(&llmmock.Provider{}, reg, Config{ModelID: "local-model"})

	if err := ctl.Load(); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := ctl.Load(); err != nil {
		t.Fatalf("second load: %v", err)
	}
}
