package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vanta-core/vanta/pkg/provider/embeddings"
	"github.com/vanta-core/vanta/pkg/provider/llm"
	"github.com/vanta-core/vanta/pkg/provider/stt"
	"github.com/vanta-core/vanta/pkg/provider/tts"
	"github.com/vanta-core/vanta/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind named in §4.10. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(RemoteConfig) (llm.Provider, error)
	stt        map[string]func(RemoteConfig) (stt.Provider, error)
	tts        map[string]func(RemoteConfig) (tts.Provider, error)
	embeddings map[string]func(RemoteConfig) (embeddings.Provider, error)
	vad        map[string]func(RemoteConfig) (vad.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(RemoteConfig) (llm.Provider, error)),
		stt:        make(map[string]func(RemoteConfig) (stt.Provider, error)),
		tts:        make(map[string]func(RemoteConfig) (tts.Provider, error)),
		embeddings: make(map[string]func(RemoteConfig) (embeddings.Provider, error)),
		vad:        make(map[string]func(RemoteConfig) (vad.Engine, error)),
	}
}

// RegisterLLM registers a remote LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(RemoteConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(RemoteConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(RemoteConfig) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(RemoteConfig) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(RemoteConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateLLM instantiates a remote LLM provider using the factory registered
// under cfg.Provider.
func (r *Registry) CreateLLM(cfg RemoteConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateSTT instantiates an STT provider using the factory registered under cfg.Provider.
func (r *Registry) CreateSTT(cfg RemoteConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateTTS instantiates a TTS provider using the factory registered under cfg.Provider.
func (r *Registry) CreateTTS(cfg RemoteConfig) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under cfg.Provider.
func (r *Registry) CreateEmbeddings(cfg RemoteConfig) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateVAD instantiates a VAD engine using the factory registered under cfg.Provider.
func (r *Registry) CreateVAD(cfg RemoteConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}
