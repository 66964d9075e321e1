package graph

import "github.com/vanta-core/vanta/internal/state"

// The six conditional edge functions of §5.2. Every one of them is total: it
// never panics and it always returns one of its documented values, falling
// back to the safe/conservative option on any input it was not expecting to
// see (a nil pointer, an unrecognised enum value). A router that can itself
// fail unpredictably would defeat the purpose of keeping the graph's control
// flow deterministic.

// shouldProcess is the should_process edge: it gates every turn on the
// activation status check_activation just wrote.
func shouldProcess(activation state.Activation) string {
	switch activation.Status {
	case state.StatusListening, state.StatusProcessing, state.StatusSpeaking:
		return "continue"
	default:
		return "end"
	}
}

// determineProcessingPath is the determine_processing_path edge. STAGED is
// not one of the three dispatch branches the graph distinguishes at this
// point — its local-first-then-escalate behaviour is decided inside the
// "parallel" branch once both controllers are in hand (see dispatchStaged).
func determineProcessingPath(path state.Path) string {
	switch path {
	case state.PathLocal:
		return "local"
	case state.PathAPI:
		return "api"
	case state.PathParallel:
		return "parallel"
	default:
		return "parallel"
	}
}

// checkProcessingComplete is the check_processing_complete edge (§5.2, §5.5):
// ready once every track the path requires has reported completed, or once
// the turn-level guard deadline has passed, whichever comes first.
func checkProcessingComplete(path state.Path, localCompleted, apiCompleted bool, timedOut bool) string {
	if timedOut {
		return "ready"
	}
	switch path {
	case state.PathLocal:
		if localCompleted {
			return "ready"
		}
	case state.PathAPI:
		if apiCompleted {
			return "ready"
		}
	default: // PARALLEL and STAGED require both tracks
		if localCompleted && apiCompleted {
			return "ready"
		}
	}
	return "waiting"
}

// shouldSynthesizeSpeech is the should_synthesize_speech edge.
func shouldSynthesizeSpeech(lastAssistantMessage string, ttsEnabled bool) string {
	if lastAssistantMessage != "" && ttsEnabled {
		return "synthesize"
	}
	return "skip"
}

// shouldUpdateMemory is the should_update_memory edge.
func shouldUpdateMemory(messageCount, lastStoredCount int, memoryEnabled bool) string {
	if memoryEnabled && messageCount >= 2 && messageCount > lastStoredCount {
		return "update"
	}
	return "skip"
}

// shouldSummarizeConversation is the should_summarize_conversation edge.
func shouldSummarizeConversation(historyLen, threshold int) string {
	if threshold > 0 && historyLen >= threshold {
		return "summarize"
	}
	return "continue"
}
