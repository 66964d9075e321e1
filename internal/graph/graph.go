// Package graph wires the per-turn node functions (§4.5) into the ordered,
// conditionally-branching pipeline a single voice exchange flows through:
// check_activation -> stt -> retrieve_memory -> router -> {local, api,
// parallel} -> integration -> tts -> store_memory -> summarize_memory ->
// prune_memory. Each node is a function of [state.TurnState] that returns a
// partial update; [Graph.Run] applies the §5.3 reducers and the §5.2
// conditional edges to drive one turn start to finish.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/vanta-core/vanta/internal/activation"
	"github.com/vanta-core/vanta/internal/integrator"
	"github.com/vanta-core/vanta/internal/localctl"
	"github.com/vanta-core/vanta/internal/memorynodes"
	"github.com/vanta-core/vanta/internal/observe"
	"github.com/vanta-core/vanta/internal/optimizer"
	"github.com/vanta-core/vanta/internal/remotectl"
	"github.com/vanta-core/vanta/internal/router"
	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/internal/voice"
	"github.com/vanta-core/vanta/pkg/audio"
	"github.com/vanta-core/vanta/pkg/types"
)

// ErrTurnNotAccepted is returned by [Graph.Run] when the should_process edge
// decides the turn should end immediately — the system is not in a state
// that accepts input. It is not a failure: the caller simply has nothing
// further to do with this frame.
var ErrTurnNotAccepted = errors.New("graph: turn not accepted, activation status does not permit processing")

// Deps bundles every collaborator a turn's nodes call into. Any field may be
// left at its zero value for a track the deployment does not use (e.g. a
// text-only build with Transcriber/Synthesizer nil skips stt/tts).
type Deps struct {
	Activation  *activation.Manager
	Transcriber voice.Transcriber
	Synthesizer voice.Synthesizer
	Voice       types.VoiceProfile

	Memory       memorynodes.Engine
	MemoryConfig memorynodes.Config

	RouterConfig    router.Config
	RoutingContext  func() router.Context
	RoutingPrefs    func() router.Preferences
	SessionID       func(state.TurnState) string

	Local        *localctl.Controller
	LocalParams  localctl.Params
	Remote       *remotectl.Controller
	RemoteParams remotectl.Params
	// RemoteSemaphore bounds how many API calls may be outstanding at once
	// (§5.6 max_concurrent_requests). Nil means unbounded.
	RemoteSemaphore *semaphore.Weighted

	Integration integrator.Config
	// IntegrationWeights, when set, overrides Integration's
	// APIPreferenceWeight/LocalPreferenceWeight with the optimizer's live,
	// quality-gap-adjusted values (§4.6) at integration time rather than the
	// value frozen into Integration at startup.
	IntegrationWeights func() (apiWeight, localWeight float64)
	Optimizer          *optimizer.Optimizer

	Metrics *observe.Metrics

	// GuardTimeoutMultiplier scales the larger of the recommended local/api
	// timeouts into the turn-level guard deadline (§5.5, default 2).
	GuardTimeoutMultiplier float64
}

// Graph runs turns against a fixed set of [Deps].
type Graph struct {
	deps Deps
}

// New constructs a Graph. deps is copied; callers should not mutate it after
// construction (swap the *Controller/*Manager values themselves if they need
// to change live).
func New(deps Deps) *Graph {
	if deps.GuardTimeoutMultiplier <= 0 {
		deps.GuardTimeoutMultiplier = 2
	}
	return &Graph{deps: deps}
}

// Run drives ts through one full turn. frame is the captured audio this turn
// is triggered by; pass a zero [audio.AudioFrame] for a text-only or
// already-transcribed turn (the stt node is skipped when Deps.Transcriber is
// nil or frame.Data is empty).
//
// Run never panics: a panicking node aborts the turn, the returned state has
// Activation.Status reset to INACTIVE and Processing.FatalError set, and Run
// returns a non-nil error (§7 "unhandled exception at graph level"). A turn
// that should_process rejects returns ErrTurnNotAccepted with the state
// otherwise unchanged.
func (g *Graph) Run(ctx context.Context, ts state.TurnState, frame audio.AudioFrame) (result state.TurnState, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ts
			result.Activation.Status = state.StatusInactive
			result.Processing.FatalError = fmt.Sprintf("panic: %v", r)
			err = fmt.Errorf("graph: turn aborted: %v", r)
		}
	}()

	ts, frameReady := g.checkActivation(ctx, ts, frame)
	if shouldProcess(ts.Activation) != "continue" {
		return ts, ErrTurnNotAccepted
	}

	ts = g.stt(ctx, ts, frame, frameReady)
	ts = g.retrieveMemory(ctx, ts)
	ts = g.route(ctx, ts)

	ts, guardTimedOut := g.dispatchTracks(ctx, ts)
	_ = checkProcessingComplete(ts.Processing.Path, ts.Processing.LocalCompleted, ts.Processing.APICompleted, guardTimedOut)

	ts = g.integrate(ctx, ts)

	if shouldSynthesizeSpeech(lastAssistantMessage(ts.Messages), ts.Config.TTSEnabled) == "synthesize" {
		ts = g.tts(ctx, ts)
	}

	sessionID := ""
	if g.deps.SessionID != nil {
		sessionID = g.deps.SessionID(ts)
	}

	if shouldUpdateMemory(len(ts.Messages), ts.Memory.LastStoredMessageCount, ts.Config.MemoryEnabled) == "update" {
		ts.Memory = memorynodes.StoreMemory(ctx, ts, sessionID, g.deps.Memory, g.deps.MemoryConfig)
	}

	threshold := ts.Config.SummarizationThreshold
	if threshold == 0 {
		threshold = g.deps.MemoryConfig.SummarizationThreshold
	}
	if shouldSummarizeConversation(len(ts.Memory.ConversationHistory), threshold) == "summarize" {
		ts.Memory = g.runNode(ctx, "summarize_memory", ts, func(ctx context.Context) state.TurnState {
			ts.Memory = memorynodes.SummarizeMemory(ctx, ts, g.deps.Memory)
			return ts
		}).Memory
	}

	historyCap := ts.Config.MaxConversationHistory
	if historyCap == 0 {
		historyCap = g.deps.MemoryConfig.MaxConversationHistory
	}
	ts.Memory = memorynodes.PruneMemory(ts, memorynodes.Config{MaxConversationHistory: historyCap})

	if g.deps.Metrics != nil {
		g.deps.Metrics.RecordAssistantTurn(ctx, ts.ConversationID)
	}

	return ts, nil
}

// runNode instruments a node call with tracing, structured logging, and the
// node-duration/node-execution metrics (§4.5's "each node wraps its body").
// fn must not itself panic past this point for anything other than a real
// bug — runNode does not recover, by design: Run's outer recover is the
// single place a node's panic is turned into the turn-level fatal error, so
// every node is wrapped exactly once.
func (g *Graph) runNode(ctx context.Context, name string, ts state.TurnState, fn func(context.Context) state.TurnState) state.TurnState {
	ctx, span := observe.StartSpan(ctx, "graph.node."+name)
	defer span.End()
	start := time.Now()

	out := fn(ctx)

	if g.deps.Metrics != nil {
		g.deps.Metrics.NodeDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("node", name)))
		g.deps.Metrics.RecordNodeExecution(ctx, name, "ok")
	}
	observe.Logger(ctx).Debug("graph: node complete", "node", name, "duration_ms", time.Since(start).Milliseconds())
	return out
}

func lastAssistantMessage(messages []state.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Type == state.RoleAssistant {
			return messages[i].Content
		}
	}
	return ""
}
