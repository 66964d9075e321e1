package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, merges it on top of
// [Default], applies environment variable overrides, and returns a
// validated [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, merges it on top of
// [Default], warns (never errors) on unrecognised top-level keys per
// §6.1, applies secret/model-root environment overrides, and validates the
// result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read yaml: %w", err)
	}

	cfg := Default()
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
		warnUnknownKeys(raw)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment secrets and the model directory root be
// supplied outside the YAML file (§6.1).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VANTA_API_KEY_ENV"); v != "" {
		cfg.Remote.APIKeyEnv = v
	}
	if v := os.Getenv("VANTA_MODEL_ROOT"); v != "" {
		cfg.Server.ModelRoot = v
	}
}

// knownTopLevelKeys lists the section names recognised by [Config]. Used
// only for the unknown-key warning pass; it never rejects a config.
var knownTopLevelKeys = map[string]bool{
	"server": true, "activation": true, "router": true, "local": true,
	"remote": true, "integration": true, "optimizer": true, "memory": true,
	"persistence": true,
}

// warnUnknownKeys walks the top-level mapping of the document and logs a
// warning for any key not present in [knownTopLevelKeys]. Unlike
// dec.KnownFields(true), this never fails decoding — per §6.1, unknown
// keys are warnings, not errors.
func warnUnknownKeys(raw []byte) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return
	}
	if len(doc.Content) == 0 {
		return
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if !knownTopLevelKeys[key] {
			slog.Warn("unknown configuration key — ignored", "key", key)
		}
	}
}

// Validate checks that cfg contains a coherent set of values and returns a
// joined error listing every validation failure found (§4.10).
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Activation.Mode != "" && !cfg.Activation.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("activation.mode %q is invalid; valid values: wake_word, continuous, scheduled, manual, off", cfg.Activation.Mode))
	}

	if cfg.Local.Temperature < 0 || cfg.Local.Temperature > 2 {
		errs = append(errs, fmt.Errorf("local.temperature %.2f is out of range [0, 2]", cfg.Local.Temperature))
	}
	if cfg.Local.ContextSize != 0 && cfg.Local.ContextSize < 512 {
		errs = append(errs, fmt.Errorf("local.context_size %d is below the minimum of 512", cfg.Local.ContextSize))
	}
	if cfg.Local.TopP < 0 || cfg.Local.TopP > 1 {
		errs = append(errs, fmt.Errorf("local.top_p %.2f is out of range [0, 1]", cfg.Local.TopP))
	}

	if cfg.Remote.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("remote.max_retries %d must not be negative", cfg.Remote.MaxRetries))
	}
	if cfg.Remote.Provider != "" && cfg.Remote.APIKeyEnv == "" {
		slog.Warn("remote.provider is configured but remote.api_key_env is empty; requests will likely fail authentication")
	}

	if cfg.Integration.SimilarityMedium > cfg.Integration.SimilarityHigh {
		errs = append(errs, fmt.Errorf("integration.similarity_medium (%.2f) must not exceed similarity_high (%.2f)", cfg.Integration.SimilarityMedium, cfg.Integration.SimilarityHigh))
	}

	if cfg.Optimizer.Strategy != "" && !cfg.Optimizer.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("optimizer.strategy %q is invalid", cfg.Optimizer.Strategy))
	}
	if cfg.Optimizer.AdaptationIntervalSecs < 0 {
		errs = append(errs, fmt.Errorf("optimizer.adaptation_interval_seconds must not be negative"))
	}

	if cfg.Memory.PostgresDSN != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("memory.postgres_dsn is configured but memory.embedding_dimensions is unset; defaulting to 1536")
	}
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; long-term memory will not be available")
	}

	return errors.Join(errs...)
}
