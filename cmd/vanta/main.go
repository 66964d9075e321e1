// Command vanta is the entry point for the dual-track voice assistant
// core: it loads configuration, wires the local/remote inference
// controllers, memory engine, and checkpoint store into a [graph.Graph],
// then drives turns from stdin until interrupted.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/semaphore"

	"github.com/vanta-core/vanta/internal/activation"
	"github.com/vanta-core/vanta/internal/checkpoint"
	"github.com/vanta-core/vanta/internal/config"
	"github.com/vanta-core/vanta/internal/graph"
	"github.com/vanta-core/vanta/internal/integrator"
	"github.com/vanta-core/vanta/internal/localctl"
	"github.com/vanta-core/vanta/internal/memorynodes"
	"github.com/vanta-core/vanta/internal/modelregistry"
	"github.com/vanta-core/vanta/internal/observe"
	"github.com/vanta-core/vanta/internal/optimizer"
	"github.com/vanta-core/vanta/internal/promptfmt"
	"github.com/vanta-core/vanta/internal/remotectl"
	"github.com/vanta-core/vanta/internal/resilience"
	"github.com/vanta-core/vanta/internal/router"
	"github.com/vanta-core/vanta/internal/session"
	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/internal/voice"
	"github.com/vanta-core/vanta/pkg/audio"
	pgmem "github.com/vanta-core/vanta/pkg/memory/postgres"
	"github.com/vanta-core/vanta/pkg/provider/embeddings/ollama"
	"github.com/vanta-core/vanta/pkg/provider/embeddings/openai"
	"github.com/vanta-core/vanta/pkg/provider/llm"
	"github.com/vanta-core/vanta/pkg/provider/llm/anyllm"
	"github.com/vanta-core/vanta/pkg/provider/stt"
	"github.com/vanta-core/vanta/pkg/provider/stt/deepgram"
	"github.com/vanta-core/vanta/pkg/provider/stt/whisper"
	"github.com/vanta-core/vanta/pkg/provider/tts"
	"github.com/vanta-core/vanta/pkg/provider/tts/coqui"
	"github.com/vanta-core/vanta/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on a clean shutdown, 1 on a startup
// failure, 2 on a fatal runtime error (§6.6).
func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	conversationID := flag.String("conversation", "default", "conversation id to resume or start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vanta: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vanta: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("vanta starting", "config", *configPath, "conversation", *conversationID)

	shutdownMetrics, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "vanta",
		ServiceVersion: "dev",
	})
	if err != nil {
		slog.Warn("telemetry provider init failed — continuing without it", "err", err)
		shutdownMetrics = func(context.Context) error { return nil }
	}
	defer shutdownMetrics(context.Background())

	var metrics *observe.Metrics
	if m, err := observe.NewMetrics(otel.GetMeterProvider()); err != nil {
		slog.Warn("metrics instruments unavailable", "err", err)
	} else {
		metrics = m
	}

	deps, cp, cleanup, err := buildDeps(cfg, metrics)
	if err != nil {
		slog.Error("failed to build dependencies", "err", err)
		return 1
	}
	defer cleanup()

	g := graph.New(deps)

	if watcher, err := config.NewWatcher(*configPath, onConfigChange); err != nil {
		slog.Warn("config watcher unavailable — edits to the config file require a restart", "err", err)
	} else {
		defer watcher.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("ready — type a message and press enter; Ctrl+C to shut down")
	if err := runTurnLoop(ctx, g, cp, *conversationID); err != nil {
		slog.Error("fatal runtime error", "err", err)
		return 2
	}

	slog.Info("goodbye")
	return 0
}

// runTurnLoop reads lines from stdin, treating each as a pre-transcribed
// user utterance (this deployment has no live audio capture device wired),
// drives one turn through g per line, and checkpoints the result.
func runTurnLoop(ctx context.Context, g *graph.Graph, cp *checkpoint.Checkpointer, conversationID string) error {
	threadID := conversationID

	ts, turnIndex, ok, err := cp.GetLatest(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("recover latest checkpoint: %w", err)
	}
	if ok {
		turnIndex++
		slog.Info("resumed conversation", "conversation_id", conversationID, "from_turn", turnIndex)
	} else {
		ts = state.New(conversationID, 0, state.ModeManual)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		turn := state.New(conversationID, turnIndex, state.ModeManual)
		turn.Activation.Status = state.StatusListening
		turn.Messages = append(ts.Messages, state.Message{
			Type:    state.RoleUser,
			Content: line,
			Time:    time.Now(),
		})
		turn.Memory = ts.Memory

		result, err := g.Run(ctx, turn, audio.AudioFrame{})
		if err != nil && !errors.Is(err, graph.ErrTurnNotAccepted) {
			slog.Error("turn aborted", "err", err, "turn_index", turnIndex)
		}
		ts = result

		if reply := result.Processing.FinalResponse; reply != "" {
			fmt.Println(reply)
		}

		if err := cp.Put(ctx, conversationID, threadID, turnIndex, result); err != nil {
			slog.Error("checkpoint write failed", "err", err, "turn_index", turnIndex)
			if turnIndex == 0 {
				return fmt.Errorf("no durable checkpoint could be established: %w", err)
			}
		}
		turnIndex++
	}
}

// buildDeps constructs every collaborator a [graph.Graph] needs plus the
// checkpoint store that persists turns across runs, and a cleanup function
// for everything that owns a live connection or background goroutine.
func buildDeps(cfg *config.Config, metrics *observe.Metrics) (graph.Deps, *checkpoint.Checkpointer, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	registry := modelregistry.Load(cfg.Persistence.ModelRegistryPath)

	var localProvider llm.Provider
	if cfg.Local.ModelPath != "" {
		p, err := anyllm.NewOllama(cfg.Local.ModelPath)
		if err != nil {
			slog.Warn("local model provider unavailable — local track disabled", "err", err)
		} else {
			localProvider = p
		}
	}

	var localCtl *localctl.Controller
	if localProvider != nil {
		localCtl = localctl.New(localProvider, registry, localctl.Config{
			ModelID:       cfg.Local.ModelPath,
			Architecture:  promptfmt.Architecture(cfg.Local.Architecture),
			Temperature:   cfg.Local.Temperature,
			TopP:          cfg.Local.TopP,
			TopK:          cfg.Local.TopK,
			RepeatPenalty: cfg.Local.RepeatPenalty,
			StopSequences: cfg.Local.StopSequences,
		})
	}

	var remoteCtl *remotectl.Controller
	if cfg.Remote.Provider != "" {
		opts := remoteProviderOptions(cfg.Remote)
		p, err := anyllm.New(cfg.Remote.Provider, cfg.Remote.Model, opts...)
		if err != nil {
			slog.Warn("remote model provider unavailable — api track disabled", "err", err)
		} else {
			fb := resilience.NewLLMFallback(p, cfg.Remote.Provider, resilience.FallbackConfig{})
			remoteCtl = remotectl.New(fb, nil, remotectl.Config{
				Model:       cfg.Remote.Model,
				MaxRetries:  cfg.Remote.MaxRetries,
				BaseBackoff: cfg.Remote.BaseBackoff,
			})
		}
	}

	var sem *semaphore.Weighted
	if n := cfg.Optimizer.Constraints.MaxConcurrentRequests; n > 0 {
		sem = semaphore.NewWeighted(int64(n))
	}

	var monitor *optimizer.ResourceMonitor
	if cfg.Optimizer.MonitoringEnabled {
		monitor = optimizer.NewResourceMonitor(nil, time.Duration(cfg.Optimizer.ResourceSampleIntervalS)*time.Second)
	}
	opt := optimizer.New(cfg.Optimizer, cfg.Optimizer.Constraints, monitor)
	opt.StartAdaptationLoop(context.Background())
	closers = append(closers, opt.Stop)

	transcriber, sttCloser := buildTranscriber()
	if sttCloser != nil {
		closers = append(closers, sttCloser)
	}
	synthesizer, ttsCloser := buildSynthesizer()
	if ttsCloser != nil {
		closers = append(closers, ttsCloser)
	}

	act, err := activation.New(
		activation.FromConfig(cfg.Activation, 16000, 20, 0.5, 0.3),
		nil, // no concrete VAD engine is wired yet; only ModeManual/ModeOff are safe
		activation.ThresholdWakeWordDetector{Threshold: 0.7},
	)
	if err != nil {
		return graph.Deps{}, nil, cleanup, fmt.Errorf("activation manager: %w", err)
	}

	engine, memCloser, err := buildMemoryEngine(cfg)
	if err != nil {
		return graph.Deps{}, nil, cleanup, err
	}
	if memCloser != nil {
		closers = append(closers, memCloser)
	}

	cp, err := buildCheckpointer(cfg)
	if err != nil {
		return graph.Deps{}, nil, cleanup, err
	}

	deps := graph.Deps{
		Activation:  act,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Memory:      engine,
		MemoryConfig: memorynodes.Config{
			MaxRelevantMemories:    cfg.Memory.MaxRelevantMemories,
			SummarizationThreshold: cfg.Memory.SummarizationThreshold,
			MaxConversationHistory: cfg.Memory.MaxConversationHistory,
		},
		SessionID: func(ts state.TurnState) string { return ts.ConversationID },
		RoutingPrefs: func() router.Preferences {
			return opt.GetOptimizationStatus().Preferences
		},
		RoutingContext: func() router.Context {
			localSummary := opt.GetMetricsSummary(&state.PathLocal)
			apiSummary := opt.GetMetricsSummary(&state.PathAPI)
			return router.Context{
				RecentLocalLatencyMs:         localSummary.MeanLatencyMs,
				RecentAPILatencyMs:           apiSummary.MeanLatencyMs,
				ResourceBudgetAllowsParallel: len(opt.GetOptimizationStatus().Violations) == 0,
			}
		},
		RouterConfig: router.Config{
			ThresholdVeryLong:        cfg.Router.ThresholdVeryLong,
			ThresholdSimple:          cfg.Router.ThresholdSimple,
			ComplexityLocalThreshold: cfg.Router.ComplexityLocalThreshold,
			CreativityAPIThreshold:   cfg.Router.CreativityAPIThreshold,
			TimeSensitivityThreshold: cfg.Router.TimeSensitivityThreshold,
			ParallelThreshold:        cfg.Router.ParallelThreshold,
			MinAcceptableTokens:      cfg.Router.MinAcceptableTokens,
			PriorLocalMs:             cfg.Router.PriorLocalMs,
			PriorAPIMs:               cfg.Router.PriorAPIMs,
		},
		Local:           localCtl,
		LocalParams:     localctl.Params{Temperature: cfg.Local.Temperature, TopP: cfg.Local.TopP, TopK: cfg.Local.TopK, RepeatPenalty: cfg.Local.RepeatPenalty, StopSequences: cfg.Local.StopSequences},
		Remote:          remoteCtl,
		RemoteParams:    remotectl.Params{Temperature: 0.7},
		RemoteSemaphore: sem,
		Integration: integrator.Config{
			SimilarityHigh:        cfg.Integration.SimilarityHigh,
			SimilarityMedium:      cfg.Integration.SimilarityMedium,
			APIPreferenceWeight:   cfg.Integration.APIPreferenceWeight,
			LocalPreferenceWeight: cfg.Integration.LocalPreferenceWeight,
			LatencyPriority:       cfg.Integration.LatencyPriority,
		},
		IntegrationWeights: opt.GetIntegrationWeights,
		Optimizer:          opt,
		Metrics:            metrics,
	}

	return deps, cp, cleanup, nil
}

func buildCheckpointer(cfg *config.Config) (*checkpoint.Checkpointer, error) {
	if cfg.Persistence.PostgresDSN != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Persistence.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: connect postgres: %w", err)
		}
		store := checkpoint.NewPostgresStore(pool)
		if err := store.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("checkpoint: migrate: %w", err)
		}
		return checkpoint.New(store), nil
	}
	return checkpoint.New(checkpoint.NewFileStore(cfg.Persistence.StateDir)), nil
}

func buildMemoryEngine(cfg *config.Config) (memorynodes.Engine, func(), error) {
	var eng memorynodes.Engine

	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn unset — running without long-term memory")
		return eng, nil, nil
	}

	dims := cfg.Memory.EmbeddingDimensions
	if dims <= 0 {
		dims = 1536
	}
	store, err := pgmem.NewStore(context.Background(), cfg.Memory.PostgresDSN, dims)
	if err != nil {
		slog.Warn("memory store unavailable — running without long-term memory", "err", err)
		return eng, nil, nil
	}

	eng.Sessions = session.NewMemoryGuard(store.L1())
	eng.Semantic = store.L2()
	eng.Graph = store

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if emb, err := openai.New(apiKey, "text-embedding-3-small"); err != nil {
			slog.Warn("embeddings provider unavailable", "err", err)
		} else {
			eng.Embedder = emb
		}
	} else if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if emb, err := ollama.New(host, "nomic-embed-text"); err != nil {
			slog.Warn("embeddings provider unavailable", "err", err)
		} else {
			eng.Embedder = emb
		}
	}

	if cfg.Remote.Provider != "" {
		if p, err := anyllm.New(cfg.Remote.Provider, cfg.Remote.Model, remoteProviderOptions(cfg.Remote)...); err != nil {
			slog.Warn("summariser provider unavailable", "err", err)
		} else {
			eng.Summariser = session.NewLLMSummariser(p)
		}
	}

	return eng, func() { store.Close() }, nil
}

func buildTranscriber() (voice.Transcriber, func()) {
	if apiKey := os.Getenv("DEEPGRAM_API_KEY"); apiKey != "" {
		p, err := deepgram.New(apiKey)
		if err != nil {
			slog.Warn("deepgram stt unavailable", "err", err)
		} else {
			return wrapTranscriber(p), nil
		}
	}
	if url := os.Getenv("WHISPER_SERVER_URL"); url != "" {
		p, err := whisper.New(url)
		if err != nil {
			slog.Warn("whisper stt unavailable", "err", err)
		} else {
			return wrapTranscriber(p), nil
		}
	}
	slog.Info("no speech-to-text provider configured — text-only turns")
	return nil, nil
}

func wrapTranscriber(p stt.Provider) voice.Transcriber {
	fb := resilience.NewSTTFallback(p, "primary", resilience.FallbackConfig{})
	return &voice.StreamingTranscriber{Provider: fb}
}

func buildSynthesizer() (voice.Synthesizer, func()) {
	if apiKey := os.Getenv("ELEVENLABS_API_KEY"); apiKey != "" {
		p, err := elevenlabs.New(apiKey)
		if err != nil {
			slog.Warn("elevenlabs tts unavailable", "err", err)
		} else {
			return wrapSynthesizer(p), nil
		}
	}
	if url := os.Getenv("COQUI_SERVER_URL"); url != "" {
		p, err := coqui.New(url)
		if err != nil {
			slog.Warn("coqui tts unavailable", "err", err)
		} else {
			return wrapSynthesizer(p), nil
		}
	}
	slog.Info("no text-to-speech provider configured — replies are text-only")
	return nil, nil
}

func wrapSynthesizer(p tts.Provider) voice.Synthesizer {
	fb := resilience.NewTTSFallback(p, "primary", resilience.FallbackConfig{})
	return &voice.StreamingSynthesizer{Provider: fb}
}

func remoteProviderOptions(cfg config.RemoteConfig) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			opts = append(opts, anyllmlib.WithAPIKey(key))
		}
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

// onConfigChange is invoked by the background config watcher whenever the
// file on disk changes. Router, integration, and optimizer settings are
// copied into graph.Deps by buildDeps once, at startup, so only the log
// level is safe to hot-swap here; everything else
// DiffConfigs reports requires rebuilding the controllers it would affect
// and is logged for an operator to act on, not applied automatically.
func onConfigChange(old, new *config.Config) {
	d := config.DiffConfigs(old, new)
	if d.LogLevelChanged {
		slog.SetDefault(newLogger(d.NewLogLevel))
		slog.Info("log level changed via config reload", "level", d.NewLogLevel)
	}
	if d.RouterChanged {
		slog.Warn("router config changed on disk — restart to apply")
	}
	if d.IntegrationChanged {
		slog.Warn("integration config changed on disk — restart to apply")
	}
	if d.OptimizerChanged {
		slog.Warn("optimizer config changed on disk — restart to apply")
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
