// Package modelregistry reads the model registry file (§6.3): a single JSON
// document listing every local model installed on disk, which the local
// controller consults to resolve a logical model id to a file path.
package modelregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrModelNotFound is returned when a lookup id has no registry entry, or
// resolves to an entry whose file is missing on disk.
var ErrModelNotFound = errors.New("model not found")

// Kind is the functional category of a registered model.
type Kind string

const (
	KindLLM       Kind = "llm"
	KindEmbedding Kind = "embedding"
	KindWhisper   Kind = "whisper"
	KindTTS       Kind = "tts"
	KindVAD       Kind = "vad"
)

// Format is the on-disk weight format of a registered model.
type Format string

const (
	FormatGGUF Format = "gguf"
	FormatGGML Format = "ggml"
	FormatPT   Format = "pt"
	FormatONNX Format = "onnx"
	FormatAPI  Format = "api"
)

// Entry describes one installed model.
type Entry struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         Kind           `json:"type"`
	Path         string         `json:"path"`
	Format       Format         `json:"format"`
	Size         int64          `json:"size"`
	Quantization string         `json:"quantization,omitempty"`
	Hash         string         `json:"hash,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

type document struct {
	Models []Entry `json:"models"`
}

// Registry holds the parsed model list, keyed by id for O(1) lookup.
type Registry struct {
	byID map[string]Entry
}

// Load reads and parses the registry file at path. A missing or malformed
// file is not fatal: it logs a startup warning and returns an empty
// registry, matching the source's _load_registry fallback behavior — the
// local controller surfaces ModelNotFound lazily, at first use, rather than
// failing the whole process over an optional file.
func Load(path string) *Registry {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("model registry file not readable, starting with an empty registry", "path", path, "error", err)
		return &Registry{byID: map[string]Entry{}}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("model registry file is not valid JSON, starting with an empty registry", "path", path, "error", err)
		return &Registry{byID: map[string]Entry{}}
	}

	reg := &Registry{byID: make(map[string]Entry, len(doc.Models))}
	for _, e := range doc.Models {
		if _, err := os.Stat(e.Path); err != nil {
			slog.Warn("registered model file is missing on disk", "id", e.ID, "path", e.Path)
		}
		reg.byID[e.ID] = e
	}
	return reg
}

// Resolve looks up id and returns its entry. Returns ErrModelNotFound if the
// id is unregistered, or if its backing file no longer exists.
func (r *Registry) Resolve(id string) (Entry, error) {
	e, ok := r.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: id %q", ErrModelNotFound, id)
	}
	if _, err := os.Stat(e.Path); err != nil {
		return Entry{}, fmt.Errorf("%w: id %q path %q: %v", ErrModelNotFound, id, e.Path, err)
	}
	return e, nil
}

// ListByType returns every entry whose Type matches kind.
func (r *Registry) ListByType(kind Kind) []Entry {
	out := make([]Entry, 0)
	for _, e := range r.byID {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}
