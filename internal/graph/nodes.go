package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanta-core/vanta/internal/integrator"
	"github.com/vanta-core/vanta/internal/memorynodes"
	"github.com/vanta-core/vanta/internal/router"
	"github.com/vanta-core/vanta/internal/state"
	"github.com/vanta-core/vanta/pkg/audio"
	"github.com/vanta-core/vanta/pkg/types"
)

// checkActivation implements the check_activation node (§4.5, §5.2). It
// reports both the updated activation snapshot and whether this particular
// frame carries something worth transcribing — distinct from whether the
// turn as a whole continues, which shouldProcess decides from the snapshot
// alone.
func (g *Graph) checkActivation(ctx context.Context, ts state.TurnState, frame audio.AudioFrame) (state.TurnState, bool) {
	if g.deps.Activation == nil {
		return ts, len(frame.Data) > 0
	}
	frameReady := false
	ts = g.runNode(ctx, "check_activation", ts, func(context.Context) state.TurnState {
		res, err := g.deps.Activation.ProcessFrame(frame)
		if err != nil {
			ts.Audio.Error = fmt.Sprintf("check_activation: %v", err)
			return ts
		}
		ts.Activation = res.Activation
		frameReady = res.ShouldProcess
		return ts
	})
	return ts, frameReady
}

// stt implements the stt node (§4.5, §4.9). A failed or skipped transcription
// never aborts the turn: it leaves ts.Messages untouched and records the
// failure on ts.Audio.Error, exactly as §7 requires of every node.
func (g *Graph) stt(ctx context.Context, ts state.TurnState, frame audio.AudioFrame, frameReady bool) state.TurnState {
	if !frameReady || g.deps.Transcriber == nil || len(frame.Data) == 0 {
		return ts
	}
	return g.runNode(ctx, "stt", ts, func(ctx context.Context) state.TurnState {
		result, err := g.deps.Transcriber.Transcribe(ctx, frame)
		if err != nil {
			ts.Audio.Error = fmt.Sprintf("stt: %v", err)
			return ts
		}
		ts.Audio.Error = ""
		ts.Audio.LastTranscript = result.Text
		ts.Audio.LastTranscribedTime = time.Now()
		if strings.TrimSpace(result.Text) != "" {
			ts = state.AppendMessages(ts, state.Message{
				Type:    state.RoleUser,
				Content: result.Text,
				Time:    time.Now(),
			})
		}
		return ts
	})
}

// retrieveMemory implements the retrieve_memory node by delegating to
// internal/memorynodes, the package C8 already built this node in.
func (g *Graph) retrieveMemory(ctx context.Context, ts state.TurnState) state.TurnState {
	return g.runNode(ctx, "retrieve_memory", ts, func(ctx context.Context) state.TurnState {
		ts.Memory = memorynodes.RetrieveMemory(ctx, ts, g.sessionID(ts), g.deps.Memory, g.deps.MemoryConfig)
		return ts
	})
}

// route implements the router node (§4.1, §4.5).
func (g *Graph) route(ctx context.Context, ts state.TurnState) state.TurnState {
	return g.runNode(ctx, "router", ts, func(context.Context) state.TurnState {
		query := lastUserMessage(ts.Messages)

		routerCtx := router.Context{ActivationMode: ts.Activation.Mode, PriorTurnCount: ts.TurnIndex}
		if g.deps.RoutingContext != nil {
			routerCtx = g.deps.RoutingContext()
			// ActivationMode/PriorTurnCount are turn-local; the optimizer has
			// no notion of either, so they always come from ts regardless of
			// what the live closure reports for resource/latency fields.
			routerCtx.ActivationMode = ts.Activation.Mode
			routerCtx.PriorTurnCount = ts.TurnIndex
		}
		var prefs router.Preferences
		if g.deps.RoutingPrefs != nil {
			prefs = g.deps.RoutingPrefs()
		}

		decision := router.DeterminePath(query, routerCtx, g.deps.RouterConfig, prefs)
		rd := state.RoutingDecision{
			Path:             decision.Path,
			Confidence:       decision.Confidence,
			Reasoning:        decision.Reasoning,
			Features:         decision.Features,
			EstimatedLocalMs: decision.EstimatedLocalMs,
			EstimatedAPIMs:   decision.EstimatedAPIMs,
		}
		ts.Processing = state.Processing{
			Path:      decision.Path,
			Decision:  &rd,
			StartTime: time.Now(),
		}
		return ts
	})
}

// trackTimeouts resolves the per-track and turn-level guard deadlines from
// the optimizer's live recommendations (§4.6), falling back to a fixed floor
// when no optimizer is wired.
func (g *Graph) trackTimeouts(query string) (local, api, guard time.Duration) {
	localMs, apiMs := 2000, 2000
	if g.deps.Optimizer != nil {
		rec := g.deps.Optimizer.GetOptimizationRecommendations(query)
		localMs, apiMs = rec.Timeouts.LocalMs, rec.Timeouts.APIMs
	}
	local = time.Duration(localMs) * time.Millisecond
	api = time.Duration(apiMs) * time.Millisecond
	maxMs := localMs
	if apiMs > maxMs {
		maxMs = apiMs
	}
	guard = time.Duration(float64(maxMs)*g.deps.GuardTimeoutMultiplier) * time.Millisecond
	return local, api, guard
}

// dispatchTracks implements the local_processing/api_processing dispatch and
// the check_processing_complete wait (§4.5, §5.1, §5.5): it runs whichever
// tracks determine_processing_path selects, under a turn-level guard
// deadline, and reports whether that guard fired before both tracks
// finished naturally.
func (g *Graph) dispatchTracks(ctx context.Context, ts state.TurnState) (state.TurnState, bool) {
	query := lastUserMessage(ts.Messages)
	localTimeout, apiTimeout, guardTimeout := g.trackTimeouts(query)

	guardCtx, cancel := context.WithTimeout(ctx, guardTimeout)
	defer cancel()

	switch determineProcessingPath(ts.Processing.Path) {
	case "local":
		update := g.runLocalTrack(guardCtx, &ts, localTimeout)
		ts = state.MergeProcessing(ts, update)
		ts = state.MergeProcessing(ts, state.Processing{APICompleted: true})
	case "api":
		update := g.runAPITrack(guardCtx, &ts, apiTimeout)
		ts = state.MergeProcessing(ts, update)
		ts = state.MergeProcessing(ts, state.Processing{LocalCompleted: true})
	default:
		if ts.Processing.Path == state.PathStaged {
			g.dispatchStaged(guardCtx, &ts, localTimeout, apiTimeout)
		} else {
			g.dispatchParallel(guardCtx, &ts, localTimeout, apiTimeout)
		}
	}

	timedOut := errors.Is(guardCtx.Err(), context.DeadlineExceeded)
	return ts, timedOut
}

// dispatchParallel runs both tracks concurrently via errgroup (§5.1: "for
// path = PARALLEL, local_processing and api_processing are dispatched
// concurrently"). Neither helper ever returns an error — failures are
// recorded on the TurnState itself — so Wait only ever reports the guard
// context's own cancellation. Each goroutine computes its own partial
// [state.Processing] update and folds it in through [state.MergeProcessing]
// under a mutex — the sole channel by which the two tracks combine results
// (§5.3), since both would otherwise race on the same ts.Processing struct.
func (g *Graph) dispatchParallel(ctx context.Context, ts *state.TurnState, localTimeout, apiTimeout time.Duration) {
	var mu sync.Mutex
	var eg errgroup.Group
	eg.Go(func() error {
		update := g.runLocalTrack(ctx, ts, localTimeout)
		mu.Lock()
		*ts = state.MergeProcessing(*ts, update)
		mu.Unlock()
		return nil
	})
	eg.Go(func() error {
		update := g.runAPITrack(ctx, ts, apiTimeout)
		mu.Lock()
		*ts = state.MergeProcessing(*ts, update)
		mu.Unlock()
		return nil
	})
	_ = eg.Wait()
}

// dispatchStaged implements the STAGED path's local-first-then-escalate
// behaviour: local runs first, and the API track only runs if local failed
// or its answer falls short of MinAcceptableTokens. Both *_completed flags
// are always left true so check_processing_complete never waits on a track
// that was deliberately skipped.
func (g *Graph) dispatchStaged(ctx context.Context, ts *state.TurnState, localTimeout, apiTimeout time.Duration) {
	*ts = state.MergeProcessing(*ts, g.runLocalTrack(ctx, ts, localTimeout))

	escalate := ts.Processing.LocalResponse == nil || !ts.Processing.LocalResponse.Success
	if !escalate && g.deps.RouterConfig.MinAcceptableTokens > 0 {
		escalate = wordCount(ts.Processing.LocalResponse.Content) < g.deps.RouterConfig.MinAcceptableTokens
	}
	if escalate {
		*ts = state.MergeProcessing(*ts, g.runAPITrack(ctx, ts, apiTimeout))
	} else {
		*ts = state.MergeProcessing(*ts, state.Processing{APICompleted: true})
	}
}

// runLocalTrack runs the local track and returns the partial [state.Processing]
// update the caller should merge in; it only reads ts, never writes it, so it
// is safe to call concurrently with runAPITrack against the same ts.
func (g *Graph) runLocalTrack(ctx context.Context, ts *state.TurnState, timeout time.Duration) state.Processing {
	if g.deps.Local == nil {
		return state.Processing{LocalError: string(state.ErrKindNotInitialized), LocalCompleted: true}
	}
	id := fmt.Sprintf("%s-%d-local", ts.ConversationID, ts.TurnIndex)
	query := lastUserMessage(ts.Messages)
	if g.deps.Optimizer != nil {
		g.deps.Optimizer.RecordRequestStart(id, query)
	}

	resp := g.deps.Local.Generate(ctx, toTypesMessages(ts.Messages), g.deps.LocalParams, timeout)

	if g.deps.Optimizer != nil {
		g.deps.Optimizer.RecordRequestCompletion(id, state.PathLocal, resp)
	}
	update := state.Processing{LocalResponse: &resp, LocalCompleted: true}
	if !resp.Success {
		update.LocalError = string(resp.ErrorKind)
	}
	return update
}

// runAPITrack runs the API track and returns the partial [state.Processing]
// update the caller should merge in; see runLocalTrack for the concurrency
// contract.
func (g *Graph) runAPITrack(ctx context.Context, ts *state.TurnState, timeout time.Duration) state.Processing {
	if g.deps.Remote == nil {
		return state.Processing{APIError: string(state.ErrKindNotInitialized), APICompleted: true}
	}

	if g.deps.RemoteSemaphore != nil {
		if err := g.deps.RemoteSemaphore.Acquire(ctx, 1); err != nil {
			return state.Processing{APIError: string(state.ErrKindTimeout), APICompleted: true}
		}
		defer g.deps.RemoteSemaphore.Release(1)
	}

	id := fmt.Sprintf("%s-%d-api", ts.ConversationID, ts.TurnIndex)
	query := lastUserMessage(ts.Messages)
	if g.deps.Optimizer != nil {
		g.deps.Optimizer.RecordRequestStart(id, query)
	}

	resp := g.deps.Remote.Generate(ctx, toTypesMessages(ts.Messages), g.deps.RemoteParams, timeout)

	if g.deps.Optimizer != nil {
		g.deps.Optimizer.RecordRequestCompletion(id, state.PathAPI, resp)
	}
	update := state.Processing{APIResponse: &resp, APICompleted: true}
	if !resp.Success {
		update.APIError = string(resp.ErrorKind)
	}
	return update
}

// integrate implements the integration node (§4.4, §4.5). It always leaves
// the turn with either a real or fallback assistant message and moves
// activation into SPEAKING, matching the §8 testable property.
func (g *Graph) integrate(ctx context.Context, ts state.TurnState) state.TurnState {
	return g.runNode(ctx, "integration", ts, func(context.Context) state.TurnState {
		cfg := g.deps.Integration
		if g.deps.IntegrationWeights != nil {
			cfg.APIPreferenceWeight, cfg.LocalPreferenceWeight = g.deps.IntegrationWeights()
		}
		result := integrator.Integrate(ts.Processing.LocalResponse, ts.Processing.APIResponse, ts.Processing.Path, cfg)
		ts = state.MergeProcessing(ts, state.Processing{Integration: &result, FinalResponse: result.Content})
		if result.Content != "" {
			ts = state.AppendMessages(ts, state.Message{
				Type:    state.RoleAssistant,
				Content: result.Content,
				Time:    time.Now(),
			})
		}
		ts.Activation.Status = state.StatusSpeaking
		if g.deps.Activation != nil {
			g.deps.Activation.SetStatus(state.StatusSpeaking)
		}
		return ts
	})
}

// tts implements the tts node (§4.5, §4.9). Synthesis failures are recorded
// on ts.Audio.Error and never block the turn from finishing.
func (g *Graph) tts(ctx context.Context, ts state.TurnState) state.TurnState {
	if g.deps.Synthesizer == nil {
		return ts
	}
	return g.runNode(ctx, "tts", ts, func(ctx context.Context) state.TurnState {
		_, err := g.deps.Synthesizer.Synthesize(ctx, ts.Processing.FinalResponse, g.deps.Voice)
		if err != nil {
			ts.Audio.Error = fmt.Sprintf("tts: %v", err)
			return ts
		}
		ts.Audio.LastSynthesizedUtt = ts.Processing.FinalResponse
		ts.Activation.Status = state.StatusInactive
		if g.deps.Activation != nil {
			g.deps.Activation.SetStatus(state.StatusInactive)
		}
		return ts
	})
}

func (g *Graph) sessionID(ts state.TurnState) string {
	if g.deps.SessionID != nil {
		return g.deps.SessionID(ts)
	}
	return ts.ConversationID
}

func lastUserMessage(messages []state.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Type == state.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func toTypesMessages(msgs []state.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = types.Message{Role: string(m.Type), Content: m.Content}
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
